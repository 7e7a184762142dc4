// Package errors defines the HTTP error envelope and the mapping from
// domain sync errors onto response statuses.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/stayloop/availsync/internal/availsync"
)

// Error represents a universal error type between the services.
type Error struct {
	Status  int
	Err     error // The error this wraps
	Details []Detail
}

type Detail struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s, details: %v", e.Status, e.Err, e.Details)
}

type transport struct {
	Message string   `json:"message"`
	Details []Detail `json:"details"`
	Status  int      `json:"status"`
}

func (s *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(transport{
		Message: s.Err.Error(),
		Details: s.Details,
		Status:  s.Status,
	})
}

func (s *Error) UnmarshalJSON(byts []byte) error {
	t := transport{}
	if err := json.Unmarshal(byts, &t); err != nil {
		return err
	}

	s.Err = errors.New(t.Message)
	s.Details = t.Details
	s.Status = t.Status
	return nil
}

func E(args ...any) *Error {
	ret := &Error{
		Status:  http.StatusInternalServerError,
		Err:     nil,
		Details: nil,
	}

	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			ret.Err = errors.New(arg)
		case error:
			ret.Err = arg
		case int:
			ret.Status = arg
		case Detail:
			ret.Details = append(ret.Details, arg)
		case []Detail:
			ret.Details = append(ret.Details, arg...)
		}
	}

	return ret
}

// FromDomain converts a sync error into the HTTP envelope. Errors without a
// known kind come back as 500s.
func FromDomain(err error) *Error {
	if errors.Is(err, availsync.ErrNotFound) {
		return E(http.StatusNotFound, err)
	}

	switch availsync.KindOf(err) {
	case availsync.KindNotFound:
		return E(http.StatusNotFound, err)
	case availsync.KindInvalidURL, availsync.KindMalformedFeed:
		return E(http.StatusUnprocessableEntity, err)
	case availsync.KindNoData:
		return E(http.StatusBadGateway, err)
	case availsync.KindTimeout:
		return E(http.StatusGatewayTimeout, err)
	case availsync.KindCancelled:
		return E(http.StatusConflict, err)
	}
	return E(http.StatusInternalServerError, err)
}
