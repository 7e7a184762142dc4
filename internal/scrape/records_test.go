package scrape

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var payloadNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func TestParseCalendarPayloadAirbnbShape(t *testing.T) {
	body := []byte(`{
		"data": {
			"merlin": {
				"pdpAvailabilityCalendar": {
					"calendarMonths": [{
						"days": [
							{"calendarDate": "2024-06-10", "available": false, "minNights": 2},
							{"calendarDate": "2024-06-11", "available": true, "minNights": 2, "price": {"amount": "189.00"}}
						]
					}]
				}
			}
		}
	}`)

	records := parseCalendarPayload(body, "prop-1", payloadNow)
	require.Len(t, records, 2)

	byDate := map[string]int{}
	for i, r := range records {
		byDate[r.Date] = i
	}
	blocked := records[byDate["2024-06-10"]]
	assert.False(t, blocked.IsAvailable)
	require.NotNil(t, blocked.MinStay)
	assert.Equal(t, 2, *blocked.MinStay)

	open := records[byDate["2024-06-11"]]
	assert.True(t, open.IsAvailable)
	require.NotNil(t, open.Price)
	assert.True(t, open.Price.Equal(decimal.RequireFromString("189.00")))
}

func TestParseCalendarPayloadAliasKeys(t *testing.T) {
	body := []byte(`{"days": [
		{"day": "2024-06-10", "bookable": true, "price": "$1,250.50", "min_nights": 3},
		{"day": "2024-06-11", "isBlocked": true, "maxStay": 14}
	]}`)

	records := parseCalendarPayload(body, "prop-1", payloadNow)
	require.Len(t, records, 2)

	assert.True(t, records[0].IsAvailable)
	require.NotNil(t, records[0].Price)
	assert.True(t, records[0].Price.Equal(decimal.RequireFromString("1250.50")))
	require.NotNil(t, records[0].MinStay)
	assert.Equal(t, 3, *records[0].MinStay)

	assert.False(t, records[1].IsAvailable, "isBlocked inverts")
	require.NotNil(t, records[1].MaxStay)
	assert.Equal(t, 14, *records[1].MaxStay)
}

func TestParseCalendarPayloadIgnoresNoise(t *testing.T) {
	body := []byte(`{
		"listing": {"id": 42, "title": "Beach house"},
		"reviews": [{"date": "2024-01-05", "rating": 5}],
		"days": [{"date": "2024-06-10", "available": true}]
	}`)

	// The review object has a date but no availability signal.
	records := parseCalendarPayload(body, "prop-1", payloadNow)
	require.Len(t, records, 1)
	assert.Equal(t, "2024-06-10", records[0].Date)
}

func TestParseCalendarPayloadUnparsable(t *testing.T) {
	assert.Empty(t, parseCalendarPayload([]byte("<html>"), "prop-1", payloadNow))
	assert.Empty(t, parseCalendarPayload([]byte(`{"days": []}`), "prop-1", payloadNow))
}

func TestParsePrice(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{in: "120", want: "120"},
		{in: "$120.50", want: "120.50"},
		{in: " $1,250 ", want: "1250"},
	} {
		got := parsePrice(tc.in)
		require.NotNil(t, got, "input %q", tc.in)
		assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "input %q", tc.in)
	}

	assert.Nil(t, parsePrice(""))
	assert.Nil(t, parsePrice("free"))
	assert.Nil(t, parsePrice("$"))
}
