package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/relayscout/pkg/models"
)

func storeRecord(t *testing.T, h *HistoryStore, id, actor string, ts int64, content, source string) {
	t.Helper()
	raw := models.RawRecord{ID: id, Actor: actor, CreatedAt: ts, Content: content}
	profile, err := models.ParseProfile(content)
	require.NoError(t, err)
	h.Insert(models.NewRecord(raw, profile, source))
}

func ids(records []*models.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestHistoryStore_OrdersNewestFirst(t *testing.T) {
	h := NewHistoryStore()
	storeRecord(t, h, "b", "X", 200, `{}`, "s1")
	storeRecord(t, h, "a", "X", 100, `{}`, "s1")
	storeRecord(t, h, "d", "X", 400, `{}`, "s1")
	storeRecord(t, h, "c", "X", 300, `{}`, "s1")

	records := h.Records("X")
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids(records))
	for i := 0; i+1 < len(records); i++ {
		assert.GreaterOrEqual(t, records[i].CreatedAt, records[i+1].CreatedAt)
	}
	assert.Equal(t, "d", h.Newest("X").ID)
}

func TestHistoryStore_EqualTimestampsKeepArrivalOrder(t *testing.T) {
	h := NewHistoryStore()
	storeRecord(t, h, "first", "X", 100, `{}`, "s1")
	storeRecord(t, h, "newer", "X", 150, `{}`, "s1")
	storeRecord(t, h, "second", "X", 100, `{}`, "s2")
	storeRecord(t, h, "third", "X", 100, `{}`, "s3")

	assert.Equal(t, []string{"newer", "first", "second", "third"}, ids(h.Records("X")))
	assert.Equal(t, "newer", h.Newest("X").ID)
}

func TestHistoryStore_Lookup(t *testing.T) {
	h := NewHistoryStore()
	storeRecord(t, h, "a", "X", 100, `{}`, "s1")

	assert.NotNil(t, h.Lookup("X", "a"))
	assert.Nil(t, h.Lookup("X", "b"))
	assert.Nil(t, h.Lookup("Y", "a"))
	assert.Nil(t, h.Newest("Y"))
	assert.Zero(t, h.Len("Y"))
}

func TestHistoryStore_Diff(t *testing.T) {
	h := NewHistoryStore()
	storeRecord(t, h, "v1", "X", 100, `{"name":"alice","lud16":"alice@old.com"}`, "s1")
	storeRecord(t, h, "v2", "X", 200, `{"name":"alice","display_name":"Alice","lud16":"alice@new.com"}`, "s1")
	storeRecord(t, h, "v3", "X", 300, `{"display_name":"Alice","lud16":"alice@new.com","about":"hi"}`, "s1")

	// v3 vs v2: only fields outside the tracked set changed.
	assert.Empty(t, h.Diff("X", 0))

	changes := h.Diff("X", 1)
	assert.Equal(t, []models.FieldChange{
		{Field: FieldDisplayName, Previous: "", Current: "Alice"},
		{Field: FieldAddress, Previous: "alice@old.com", Current: "alice@new.com"},
	}, changes)

	// Oldest entry and out-of-range indexes report no change.
	assert.Empty(t, h.Diff("X", 2))
	assert.Empty(t, h.Diff("X", -1))
	assert.Empty(t, h.Diff("X", 10))
	assert.Empty(t, h.Diff("unknown", 0))
}

func TestHistoryStore_DiffNameBehindDisplayName(t *testing.T) {
	h := NewHistoryStore()
	storeRecord(t, h, "v1", "X", 100, `{"display_name":"Alice","name":"alice"}`, "s1")
	storeRecord(t, h, "v2", "X", 200, `{"display_name":"Alice","name":"alice2"}`, "s1")

	assert.Equal(t, []models.FieldChange{
		{Field: FieldName, Previous: "alice", Current: "alice2"},
	}, h.Diff("X", 0))
}

func TestHistoryStore_SingleRecordHasNoTransitions(t *testing.T) {
	h := NewHistoryStore()
	storeRecord(t, h, "only", "X", 100, `{"name":"x","lud16":"x@y.com"}`, "s1")

	entries := h.Entries("X")
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Changes)
	assert.Equal(t, "x", entries[0].Name)
	assert.Equal(t, "x@y.com", entries[0].Address)
	assert.Equal(t, []string{"s1"}, entries[0].SeenOn)
}

func TestHistoryStore_RecordsAreCopies(t *testing.T) {
	h := NewHistoryStore()
	storeRecord(t, h, "a", "X", 100, `{}`, "s1")

	records := h.Records("X")
	records[0].Provenance.Add("s2")

	assert.Equal(t, []string{"s1"}, h.Lookup("X", "a").SeenOn())
}

func TestHistoryStore_ActorsAndReset(t *testing.T) {
	h := NewHistoryStore()
	storeRecord(t, h, "a", "zed", 1, `{}`, "s1")
	storeRecord(t, h, "b", "amy", 1, `{}`, "s1")

	assert.Equal(t, []string{"amy", "zed"}, h.Actors())

	h.Reset()
	assert.Empty(t, h.Actors())
	assert.Nil(t, h.Lookup("amy", "b"))
}
