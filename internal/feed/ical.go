// Package feed ingests hosted calendar feeds and converts their booking
// intervals into per-day availability records.
package feed

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/stayloop/availsync/internal/dates"
)

// Event is one VEVENT's booking interval. End is exclusive: a booking from
// the 10th to the 13th blocks the 10th, 11th and 12th.
type Event struct {
	UID     string
	Summary string
	Start   time.Time
	End     time.Time
}

const (
	beginCalendar = "BEGIN:VCALENDAR"
	endCalendar   = "END:VCALENDAR"
)

// parseEvents reads VEVENT blocks from an iCal body. Events whose start or
// end fail to parse are dropped rather than failing the whole feed.
func parseEvents(r io.Reader) ([]Event, error) {
	var (
		events  []Event
		current map[string]string
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var lastField string
	for scanner.Scan() {
		line := scanner.Text()

		// Folded lines continue the previous property.
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if current != nil && lastField != "" {
				current[lastField] += strings.TrimLeft(line, " \t")
			}
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		// Strip property parameters, e.g. DTSTART;VALUE=DATE:20240610.
		if semi := strings.Index(field, ";"); semi != -1 {
			field = field[:semi]
		}
		field = strings.ToUpper(strings.TrimSpace(field))

		switch field {
		case "BEGIN":
			if strings.EqualFold(value, "VEVENT") {
				current = map[string]string{}
				lastField = ""
			}
		case "END":
			if strings.EqualFold(value, "VEVENT") && current != nil {
				if ev, ok := eventFromProps(current); ok {
					events = append(events, ev)
				}
				current = nil
				lastField = ""
			}
		case "UID", "SUMMARY", "DTSTART", "DTEND":
			if current != nil {
				current[field] = unescape(value)
				lastField = field
			}
		default:
			lastField = ""
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading feed body: %s", err)
	}

	return events, nil
}

func eventFromProps(props map[string]string) (Event, bool) {
	start, err := dates.Parse(props["DTSTART"])
	if err != nil {
		return Event{}, false
	}
	end, err := dates.Parse(props["DTEND"])
	if err != nil {
		return Event{}, false
	}

	return Event{
		UID:     props["UID"],
		Summary: props["SUMMARY"],
		Start:   dates.Truncate(start),
		End:     dates.Truncate(end),
	}, true
}

// unescape undoes the common iCal text escapes.
func unescape(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, `\,`, ",")
	s = strings.ReplaceAll(s, `\;`, ";")
	s = strings.ReplaceAll(s, `\\`, `\`)
	return s
}
