package dates_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayloop/availsync/internal/dates"
)

func TestNormalize(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   string
		want string
	}{
		{name: "canonical", in: "2024-06-10", want: "2024-06-10"},
		{name: "compact", in: "20240610", want: "2024-06-10"},
		{name: "ical datetime utc", in: "20240610T140000Z", want: "2024-06-10"},
		{name: "ical datetime floating", in: "20240610T140000", want: "2024-06-10"},
		{name: "rfc3339", in: "2024-06-10T14:00:00Z", want: "2024-06-10"},
		{name: "datetime without zone", in: "2024-06-10T14:00:00", want: "2024-06-10"},
		{name: "us slashes", in: "06/10/2024", want: "2024-06-10"},
		{name: "surrounding whitespace", in: "  2024-06-10 ", want: "2024-06-10"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := dates.Normalize(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "not-a-date", "2024-13-40", "10 June"} {
		_, err := dates.Normalize(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestDay(t *testing.T) {
	at := time.Date(2024, 6, 10, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, "2024-06-10", dates.Day(at))
}

func TestDaysBetweenEndExclusive(t *testing.T) {
	start := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC)

	got := dates.DaysBetween(start, end)
	assert.Equal(t, []string{"2024-06-10", "2024-06-11", "2024-06-12"}, got)
}

func TestDaysBetweenDegenerateRanges(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	assert.Empty(t, dates.DaysBetween(day, day))
	assert.Empty(t, dates.DaysBetween(day, day.AddDate(0, 0, -1)))
}
