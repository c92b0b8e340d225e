package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionsPut(t *testing.T) {
	sessions := Sessions{}
	sessions.Put("Fall 2024", "Intro", ClassRecord{City: "Oakland"})
	sessions.Put("Fall 2024", "Intro", ClassRecord{City: "Berkeley"})
	sessions.Put("Spring 2025", "Advanced", ClassRecord{City: "Fresno"})

	require.Equal(t, 2, sessions.Count())
	require.Equal(t, "Berkeley", sessions["Fall 2024"]["Intro"].City)
	require.Equal(t, []string{"Fall 2024", "Spring 2025"}, sessions.SessionNames())
	require.Equal(t, []string{"Intro"}, sessions.ClassNames("Fall 2024"))
	require.Empty(t, sessions.ClassNames("missing"))
}

func TestStamp(t *testing.T) {
	now := time.Date(2024, time.March, 2, 10, 4, 5, 0, time.UTC)
	record := Stamp("S", "N", ClassRecord{City: "C", Start: "D", End: "E"}, now)

	require.Equal(t, "2024-03-02T10:04:05Z", record.Created)
	require.Equal(t, record.Created, record.Modified)
	require.Equal(t, now.Unix()+365*24*60*60, record.Ttl)
	require.Equal(t, ClassRecord{City: "C", Start: "D", End: "E"}, record.Record())
}
