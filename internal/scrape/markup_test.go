package scrape

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scanNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func TestScanMarkupKeyedFragments(t *testing.T) {
	html := `<html><script>window.__STATE__ = {"calendar":{
		"2024-06-10":{"available":false,"minNights":2},
		"2024-06-11":{"available":true},
		"2024-06-12":{"bookable":false}
	}}</script></html>`

	records := ScanMarkup(html, "prop-1", scanNow)
	require.Len(t, records, 3)

	byDate := map[string]bool{}
	for _, r := range records {
		byDate[r.Date] = r.IsAvailable
	}
	assert.False(t, byDate["2024-06-10"])
	assert.True(t, byDate["2024-06-11"])
	assert.False(t, byDate["2024-06-12"])
}

func TestScanMarkupInlineFragments(t *testing.T) {
	html := `<script type="application/json">{"days":[
		{"date":"2024-06-10","price":"120","available":true},
		{"date":"2024-06-11","price":"125","available":false}
	]}</script>`

	records := ScanMarkup(html, "prop-1", scanNow)
	require.Len(t, records, 2)
	assert.Equal(t, "2024-06-10", records[0].Date)
	assert.True(t, records[0].IsAvailable)
	assert.False(t, records[1].IsAvailable)
}

func TestScanMarkupBookedRangeFallback(t *testing.T) {
	html := `<html><body>
		<div class="notice">Booked: 2024-06-10 - 2024-06-13</div>
		<div class="notice">Unavailable: 2024-07-01 to 2024-07-03</div>
	</body></html>`

	records := ScanMarkup(html, "prop-1", scanNow)

	got := map[string]bool{}
	for _, r := range records {
		assert.False(t, r.IsAvailable)
		got[r.Date] = true
	}
	// End-exclusive: checkout days are not blocked.
	assert.Equal(t, map[string]bool{
		"2024-06-10": true,
		"2024-06-11": true,
		"2024-06-12": true,
		"2024-07-01": true,
		"2024-07-02": true,
	}, got)
}

func TestScanMarkupJSONFragmentsSuppressTextFallback(t *testing.T) {
	html := `<script>{"2024-06-10":{"available":true}}</script>
		<p>Booked: 2024-08-01 - 2024-08-05</p>`

	records := ScanMarkup(html, "prop-1", scanNow)
	require.Len(t, records, 1)
	assert.Equal(t, "2024-06-10", records[0].Date)
}

func TestScanMarkupNothingFound(t *testing.T) {
	records := ScanMarkup("<html><body><h1>Listing</h1></body></html>", "prop-1", scanNow)
	assert.Empty(t, records)
}

func TestScanMarkupDedups(t *testing.T) {
	html := `<script>{"2024-06-10":{"available":false}}</script>
		<script>{"date":"2024-06-10","available":true}</script>`

	records := ScanMarkup(html, "prop-1", scanNow)
	require.Len(t, records, 1)
	assert.False(t, records[0].IsAvailable, "first match wins")
}
