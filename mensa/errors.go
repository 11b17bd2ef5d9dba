package mensa

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies failures of the ordering client.
type Kind string

const (
	KindRemoteUnavailable Kind = "remote_unavailable"
	KindRemoteFormat      Kind = "remote_format"
	KindDayNotFound       Kind = "day_not_found"
	KindMealNotFound      Kind = "meal_not_found"
	KindSlotNotFound      Kind = "slot_not_found"
	KindSlotFull          Kind = "slot_full"
)

// Sentinels for errors.Is. A *Error matches the sentinel of its Kind.
var (
	ErrRemoteUnavailable = errors.New("mensa: remote unavailable")
	ErrRemoteFormat      = errors.New("mensa: unexpected response format")
	ErrDayNotFound       = errors.New("mensa: day not found")
	ErrMealNotFound      = errors.New("mensa: meal not found")
	ErrSlotNotFound      = errors.New("mensa: slot not found")
	ErrSlotFull          = errors.New("mensa: slot full")
)

var sentinels = map[Kind]error{
	KindRemoteUnavailable: ErrRemoteUnavailable,
	KindRemoteFormat:      ErrRemoteFormat,
	KindDayNotFound:       ErrDayNotFound,
	KindMealNotFound:      ErrMealNotFound,
	KindSlotNotFound:      ErrSlotNotFound,
	KindSlotFull:          ErrSlotFull,
}

// Error is returned by every Client operation.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error

	// Status is the HTTP status for KindRemoteUnavailable responses, 0 for transport errors.
	Status int

	transient bool
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("mensa: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(strings.ReplaceAll(string(e.Kind), "_", " "))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel belonging to e.Kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// Code returns an upper-case identifier for log summaries.
func (k Kind) Code() string {
	return strings.ToUpper(string(k))
}

// Transient reports whether repeating the same request may succeed.
func (e *Error) Transient() bool { return e.transient }

func newError(kind Kind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

func formatError(op string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindRemoteFormat, Op: op, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
