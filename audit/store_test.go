package audit

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"edugrants/core/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "events.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAssignsIncreasingSequences(t *testing.T) {
	store := newTestStore(t)
	var last uint64
	for i := 0; i < 5; i++ {
		seq, err := store.Append("grants.program_created", map[string]string{"id": strconv.Itoa(i)})
		require.NoError(t, err)
		require.Greater(t, seq, last)
		last = seq
	}
	entries, err := store.List("", 0)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		require.Greater(t, entries[i].Sequence, entries[i-1].Sequence)
	}
}

func TestListPrefixAndLimit(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Append("grants.program_created", nil)
	require.NoError(t, err)
	_, err = store.Append("grants.program_approved", nil)
	require.NoError(t, err)
	_, err = store.Append("grants.fee_updated", nil)
	require.NoError(t, err)

	entries, err := store.List("grants.program_", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entries, err = store.List("", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "grants.program_created", entries[0].Type)
}

type carrierEvent struct {
	evt *types.Event
}

func (c carrierEvent) EventType() string {
	if c.evt == nil {
		return ""
	}
	return c.evt.Type
}

func (c carrierEvent) Event() *types.Event { return c.evt }

func TestEmitJournalsCarrierEvents(t *testing.T) {
	store := newTestStore(t)
	store.Emit(carrierEvent{evt: &types.Event{Type: "grants.program_claimed", Attributes: map[string]string{"payout": "950000"}}})
	store.Emit(carrierEvent{evt: nil}) // dropped, not fatal

	entries, err := store.List("", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "grants.program_claimed", entries[0].Type)
	require.Equal(t, "950000", entries[0].Attributes["payout"])
}
