package errors_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stayloop/availsync/internal/availsync"
	aserrs "github.com/stayloop/availsync/internal/errors"
)

func TestEConstructor(t *testing.T) {
	got := aserrs.E(
		"something went wrong",
		aserrs.Detail{Field: "url", Error: "was bad"},
		http.StatusBadRequest,
	)
	want := &aserrs.Error{
		Err: errors.New("something went wrong"),
		Details: []aserrs.Detail{
			{Field: "url", Error: "was bad"},
		},
		Status: http.StatusBadRequest,
	}

	assert.Equal(t, want, got)
}

func TestFromDomain(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want int
	}{
		{
			name: "not found sentinel",
			err:  availsync.ErrNotFound,
			want: http.StatusNotFound,
		},
		{
			name: "not found kind",
			err:  availsync.NewSyncError(availsync.KindNotFound, "property missing", nil),
			want: http.StatusNotFound,
		},
		{
			name: "invalid url",
			err:  availsync.NewSyncError(availsync.KindInvalidURL, "bad scheme", nil),
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "malformed feed",
			err:  availsync.NewSyncError(availsync.KindMalformedFeed, "no calendar markers", nil),
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "no data",
			err:  availsync.NewSyncError(availsync.KindNoData, "nothing extracted", nil),
			want: http.StatusBadGateway,
		},
		{
			name: "timeout",
			err:  availsync.NewSyncError(availsync.KindTimeout, "deadline", nil),
			want: http.StatusGatewayTimeout,
		},
		{
			name: "cancelled",
			err:  availsync.NewSyncError(availsync.KindCancelled, "cancelled", nil),
			want: http.StatusConflict,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: http.StatusInternalServerError,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, aserrs.FromDomain(tc.err).Status)
		})
	}
}
