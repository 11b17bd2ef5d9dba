package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeISODate(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)

	cases := map[string]string{
		"2024-03-04":   "2024-03-04",
		" 2024-3-4 ":   "2024-03-04",
		"04.03.2024":   "2024-03-04",
		"4.3.2024":     "2024-03-04",
		"04.03.24":     "2024-03-04",
		"04/03/2024":   "2024-03-04",
		"04.03.2024 9": "04.03.2024 9",
	}
	for in, want := range cases {
		got, _ := NormalizeISODate(in, berlin)
		require.Equal(t, want, got, in)
	}

	_, ok := NormalizeISODate("tomorrow", nil)
	require.False(t, ok)
}
