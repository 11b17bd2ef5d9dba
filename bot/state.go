package bot

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/m3rciful/mensabot/mensa"
)

// State is the closed set of conversation states. Only types in this
// package implement it.
type State interface {
	stateName() string
}

// AwaitingFirstName is the state of a new or restarted conversation.
type AwaitingFirstName struct{}

type AwaitingLastName struct {
	FirstName string `json:"first_name"`
}

type AwaitingEmail struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Idle holds a complete profile; the user may start an order.
type Idle struct {
	User mensa.Profile `json:"user"`
}

// AwaitingMealSelection waits for a button press on the meal prompt.
type AwaitingMealSelection struct {
	User            mensa.Profile `json:"user"`
	IsoDate         string        `json:"iso_date"`
	PromptMessageID int           `json:"prompt_message_id"`
}

// AwaitingSlotSelection waits for a button press on the slot prompt.
type AwaitingSlotSelection struct {
	User            mensa.Profile `json:"user"`
	IsoDate         string        `json:"iso_date"`
	MealHash        string        `json:"meal_hash"`
	PromptMessageID int           `json:"prompt_message_id"`
}

const (
	nameAwaitingFirstName     = "awaiting_first_name"
	nameAwaitingLastName      = "awaiting_last_name"
	nameAwaitingEmail         = "awaiting_email"
	nameIdle                  = "idle"
	nameAwaitingMealSelection = "awaiting_meal_selection"
	nameAwaitingSlotSelection = "awaiting_slot_selection"
)

func (AwaitingFirstName) stateName() string     { return nameAwaitingFirstName }
func (AwaitingLastName) stateName() string      { return nameAwaitingLastName }
func (AwaitingEmail) stateName() string         { return nameAwaitingEmail }
func (Idle) stateName() string                  { return nameIdle }
func (AwaitingMealSelection) stateName() string { return nameAwaitingMealSelection }
func (AwaitingSlotSelection) stateName() string { return nameAwaitingSlotSelection }

// StateName returns the stable name of s, used in logs and storage.
func StateName(s State) string {
	if s == nil {
		return "none"
	}
	return s.stateName()
}

// ErrUnknownState is returned for stored or in-memory states outside the closed set.
var ErrUnknownState = errors.New("bot: unknown state")

// activePrompt returns the message id whose buttons the state waits for.
func activePrompt(s State) (int, bool) {
	switch st := s.(type) {
	case AwaitingMealSelection:
		return st.PromptMessageID, true
	case AwaitingSlotSelection:
		return st.PromptMessageID, true
	}
	return 0, false
}

// Codec stores states as {"kind": <name>, "data": <fields>}.
type Codec struct{}

type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (Codec) Marshal(s State) ([]byte, error) {
	switch s.(type) {
	case AwaitingFirstName, AwaitingLastName, AwaitingEmail, Idle, AwaitingMealSelection, AwaitingSlotSelection:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownState, s)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: s.stateName(), Data: data})
}

func (Codec) Unmarshal(raw []byte) (State, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("bot: decode state: %w", err)
	}
	switch env.Kind {
	case nameAwaitingFirstName:
		return AwaitingFirstName{}, nil
	case nameAwaitingLastName:
		return decodeAs[AwaitingLastName](env.Data)
	case nameAwaitingEmail:
		return decodeAs[AwaitingEmail](env.Data)
	case nameIdle:
		return decodeAs[Idle](env.Data)
	case nameAwaitingMealSelection:
		return decodeAs[AwaitingMealSelection](env.Data)
	case nameAwaitingSlotSelection:
		return decodeAs[AwaitingSlotSelection](env.Data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownState, env.Kind)
}

func decodeAs[S State](data json.RawMessage) (State, error) {
	var s S
	if len(data) == 0 {
		return nil, fmt.Errorf("bot: decode state %s: missing data", s.stateName())
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("bot: decode state %s: %w", s.stateName(), err)
	}
	return s, nil
}
