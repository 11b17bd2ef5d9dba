package mensa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Slot is one pickup time with its remaining capacity. Free may be zero or
// negative for a listed slot that is already taken.
type Slot struct {
	Label string
	Free  int
}

// Slots keeps the order the backend listed them in.
type Slots []Slot

// Available returns the slots with Free > 0.
func (s Slots) Available() Slots {
	var out Slots
	for _, slot := range s {
		if slot.Free > 0 {
			out = append(out, slot)
		}
	}
	return out
}

// HasAvailable reports whether any slot has capacity left.
func (s Slots) HasAvailable() bool {
	for _, slot := range s {
		if slot.Free > 0 {
			return true
		}
	}
	return false
}

// Match returns the first slot whose label starts with prefix.
func (s Slots) Match(prefix string) (Slot, bool) {
	for _, slot := range s {
		if strings.HasPrefix(slot.Label, prefix) {
			return slot, true
		}
	}
	return Slot{}, false
}

// decodeSlots reads a JSON object of label to capacity in document order.
// An empty array stands for no slots.
func decodeSlots(op string, body []byte) (Slots, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, formatError(op, err, "decode slots")
	}
	switch tok {
	case json.Delim('['):
		if end, err := dec.Token(); err != nil || end != json.Delim(']') {
			return nil, formatError(op, err, "slots: expected empty array")
		}
		return Slots{}, nil
	case json.Delim('{'):
	default:
		return nil, formatError(op, nil, "slots: unexpected token %v", tok)
	}

	slots := Slots{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, formatError(op, err, "decode slot label")
		}
		label, _ := keyTok.(string)
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return nil, formatError(op, err, "slot %q", label)
		}
		free, err := n.Int64()
		if err != nil {
			return nil, formatError(op, err, "slot %q", label)
		}
		slots = append(slots, Slot{Label: label, Free: int(free)})
	}
	if _, err := dec.Token(); err != nil {
		return nil, formatError(op, err, "decode slots")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, formatError(op, err, "trailing data after slots")
	}
	return slots, nil
}

// FetchFreeSlots lists pickup slots for email on isoDate. The call does not
// use a Session.
func (c *Client) FetchFreeSlots(ctx context.Context, email, isoDate string) (Slots, error) {
	const op = "slots"
	form := url.Values{}
	form.Set("mensa_id", strconv.Itoa(c.opts.MensaID))
	form.Set("tag", isoDate)
	form.Set("id", email)
	encoded := form.Encode()

	hc := c.httpClient(nil)
	var slots Slots
	err := c.withRetry(ctx, op, func() error {
		req, err := http.NewRequest(http.MethodPost, c.opts.SlotsURL, strings.NewReader(encoded))
		if err != nil {
			return &Error{Kind: KindRemoteUnavailable, Op: op, Err: err}
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		body, err := c.send(ctx, hc, op, req)
		if err != nil {
			return err
		}
		slots, err = decodeSlots(op, body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return slots, nil
}

func (s Slot) String() string {
	return fmt.Sprintf("%s (%d free)", s.Label, s.Free)
}
