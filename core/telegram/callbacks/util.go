package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ParseCallbackData splits Telebot's "\f<unique>|<payload>" encoding. Data
// that was already split by Telebot (Unique set) is returned as is.
func ParseCallbackData(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	unique, payload, _ := strings.Cut(raw, "|")
	return strings.TrimSpace(unique), payload
}

// MessageID returns the id of the message carrying the pressed button, or 0.
func MessageID(c tele.Context) int {
	cb := c.Callback()
	if cb == nil || cb.Message == nil {
		return 0
	}
	return cb.Message.ID
}

const respondedKey = "cb_responded"

// Respond answers the callback query once and marks it answered so the
// router does not answer it again.
func Respond(c tele.Context, text string) error {
	if c.Callback() == nil || Responded(c) {
		return nil
	}
	c.Set(respondedKey, true)
	if text == "" {
		return c.Respond()
	}
	return c.Respond(&tele.CallbackResponse{Text: text})
}

// Responded reports whether Respond already answered this callback.
func Responded(c tele.Context) bool {
	v, _ := c.Get(respondedKey).(bool)
	return v
}
