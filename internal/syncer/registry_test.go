package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayloop/availsync/internal/availsync"
)

func TestRegistryRejectsDuplicateProperty(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Add("prop-1", []availsync.Source{availsync.SourceFeed}, func() {})
	require.True(t, ok)

	_, ok = r.Add("prop-1", []availsync.Source{availsync.SourceFeed}, func() {})
	assert.False(t, ok)
	assert.Len(t, r.List(), 1)
}

func TestRegistryCancelFiresAndRemoves(t *testing.T) {
	r := NewRegistry()

	fired := false
	_, ok := r.Add("prop-1", []availsync.Source{availsync.SourceScraping}, func() { fired = true })
	require.True(t, ok)

	assert.True(t, r.Cancel("prop-1"))
	assert.True(t, fired)
	assert.Empty(t, r.List())
	assert.False(t, r.Cancel("prop-1"))
}

func TestRegistryStaleRemoveKeepsNewerRegistration(t *testing.T) {
	r := NewRegistry()

	staleToken, ok := r.Add("prop-1", []availsync.Source{availsync.SourceFeed}, func() {})
	require.True(t, ok)

	// The first worker gets cancelled, and a fresh sync registers before the
	// cancelled worker's deferred Remove runs.
	require.True(t, r.Cancel("prop-1"))
	newToken, ok := r.Add("prop-1", []availsync.Source{availsync.SourceFeed}, func() {})
	require.True(t, ok)

	r.Remove("prop-1", staleToken)
	require.Len(t, r.List(), 1, "stale remove must not drop the newer registration")

	r.Remove("prop-1", newToken)
	assert.Empty(t, r.List())
}
