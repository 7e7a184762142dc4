package availsync

import (
	"errors"
	"fmt"
)

// ErrorKind tags a SyncError with its place in the failure taxonomy. The kind
// decides whether the retry loop runs again or gives up immediately.
type ErrorKind string

const (
	// KindTransport is a network or navigation failure. Retryable.
	KindTransport ErrorKind = "transport"
	// KindInvalidURL is a rejected source URL. Not retryable.
	KindInvalidURL ErrorKind = "invalid_url"
	// KindMalformedFeed is a response without calendar markers. Not retryable.
	KindMalformedFeed ErrorKind = "malformed_feed"
	// KindNoData means every strategy ran and none produced a valid record.
	// Retryable at the attempt level.
	KindNoData ErrorKind = "no_data"
	// KindNotFound means the property is missing. Aborts the whole series.
	KindNotFound ErrorKind = "not_found"
	// KindTimeout is an attempt or whole-sync deadline. Retryable per attempt.
	KindTimeout ErrorKind = "timeout"
	// KindCancelled is a cooperative cancellation, not a failure.
	KindCancelled ErrorKind = "cancelled"
)

// SyncError is the error union flowing out of the extraction paths.
type SyncError struct {
	Kind ErrorKind
	Msg  string
	Err  error // wrapped cause, may be nil
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could plausibly succeed.
func (e *SyncError) Retryable() bool {
	switch e.Kind {
	case KindTransport, KindNoData, KindTimeout:
		return true
	}
	return false
}

// NewSyncError builds a tagged error; cause may be nil.
func NewSyncError(kind ErrorKind, msg string, cause error) *SyncError {
	return &SyncError{Kind: kind, Msg: msg, Err: cause}
}

// KindOf extracts the taxonomy kind from any error. Unclassified failures
// count as transport, since those are the ones worth retrying blind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if se, ok := AsSyncError(err); ok {
		return se.Kind
	}
	return KindTransport
}

// AsSyncError unwraps err to a *SyncError if there is one in the chain.
func AsSyncError(err error) (*SyncError, bool) {
	se := &SyncError{}
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
