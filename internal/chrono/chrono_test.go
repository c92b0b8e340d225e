package chrono

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInvocationTime(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, time.August, 26, 9, 30, 15, 987654321, la)

	got := InvocationTime(Fixed(now))
	require.Equal(t, time.UTC, got.Location())
	require.Equal(t, 0, got.Nanosecond())
	require.Equal(t, now.Unix(), got.Unix())
}
