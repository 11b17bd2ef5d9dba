package callbacks

import (
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	cases := []struct {
		name    string
		cb      *tele.Callback
		key     string
		payload string
	}{
		{"nil", nil, "", ""},
		{"raw encoding", &tele.Callback{Data: "\fmeal|abc123"}, "meal", "abc123"},
		{"payload keeps separators", &tele.Callback{Data: "\fslot|12:00|x"}, "slot", "12:00|x"},
		{"no payload", &tele.Callback{Data: "\fstart"}, "start", ""},
		{"already split", &tele.Callback{Unique: "slot", Data: "12:00:00"}, "slot", "12:00:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, payload := ParseCallbackData(tc.cb)
			require.Equal(t, tc.key, key)
			require.Equal(t, tc.payload, payload)
		})
	}
}
