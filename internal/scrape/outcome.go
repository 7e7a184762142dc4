// Package scrape drives a headless browser through a per-platform chain of
// extraction strategies to pull day-level availability off vendor pages.
package scrape

import "github.com/stayloop/availsync/internal/availsync"

// OutcomeStatus tags what a strategy produced.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeEmpty   OutcomeStatus = "empty"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Outcome is the tagged result of one strategy run. Failed carries a reason;
// Success carries records; Empty carries neither.
type Outcome struct {
	Status  OutcomeStatus
	Records []availsync.AvailabilityRecord
	Reason  string
}

func Success(records []availsync.AvailabilityRecord) Outcome {
	if len(records) == 0 {
		return Empty()
	}
	return Outcome{Status: OutcomeSuccess, Records: records}
}

func Empty() Outcome {
	return Outcome{Status: OutcomeEmpty}
}

func Failed(reason string) Outcome {
	return Outcome{Status: OutcomeFailed, Reason: reason}
}
