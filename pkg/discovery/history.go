package discovery

import (
	"slices"
	"sort"

	"github.com/ekaya-inc/relayscout/pkg/models"
)

// Tracked field names reported by Diff.
const (
	FieldDisplayName = models.FieldDisplayName
	FieldName        = models.FieldName
	FieldAddress     = "lud16"
)

// HistoryStore keeps every distinct record per actor, newest first.
// It is not safe for concurrent use; Engine serializes all access.
type HistoryStore struct {
	byActor map[string][]*models.Record
	byID    map[string]map[string]*models.Record
}

// NewHistoryStore creates an empty history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		byActor: make(map[string][]*models.Record),
		byID:    make(map[string]map[string]*models.Record),
	}
}

// Lookup returns the stored record with the given identity, or nil.
func (h *HistoryStore) Lookup(actor, id string) *models.Record {
	return h.byID[actor][id]
}

// Insert stores a record that is not yet known. The history stays sorted by
// CreatedAt descending; a record whose timestamp equals existing ones is placed
// after them, so equal timestamps keep arrival order.
func (h *HistoryStore) Insert(r *models.Record) {
	history := h.byActor[r.Actor]
	idx := sort.Search(len(history), func(i int) bool {
		return history[i].CreatedAt < r.CreatedAt
	})
	h.byActor[r.Actor] = slices.Insert(history, idx, r)

	ids, ok := h.byID[r.Actor]
	if !ok {
		ids = make(map[string]*models.Record)
		h.byID[r.Actor] = ids
	}
	ids[r.ID] = r
}

// Newest returns the actor's most recent record, or nil.
func (h *HistoryStore) Newest(actor string) *models.Record {
	history := h.byActor[actor]
	if len(history) == 0 {
		return nil
	}
	return history[0]
}

// Len returns the number of distinct records stored for actor.
func (h *HistoryStore) Len(actor string) int {
	return len(h.byActor[actor])
}

// Records returns clones of the actor's records, newest first.
func (h *HistoryStore) Records(actor string) []*models.Record {
	history := h.byActor[actor]
	out := make([]*models.Record, len(history))
	for i, r := range history {
		out[i] = r.Clone()
	}
	return out
}

// Diff compares history[i] with its older neighbor history[i+1] and reports
// the tracked fields that changed. The oldest entry, and any index out of
// range, reports no change.
func (h *HistoryStore) Diff(actor string, i int) []models.FieldChange {
	history := h.byActor[actor]
	if i < 0 || i+1 >= len(history) {
		return nil
	}
	return diffProfiles(history[i].Profile, history[i+1].Profile)
}

// Entries returns the read-only timeline for an actor, each entry carrying its
// diff against the next older entry.
func (h *HistoryStore) Entries(actor string) []models.HistoryEntry {
	history := h.byActor[actor]
	entries := make([]models.HistoryEntry, len(history))
	for i, r := range history {
		entries[i] = models.HistoryEntry{
			ID:        r.ID,
			CreatedAt: r.CreatedAt,
			Name:      r.Profile.Label(),
			Address:   r.Profile.Address(),
			SeenOn:    r.SeenOn(),
			Changes:   h.Diff(actor, i),
		}
	}
	return entries
}

// Actors returns every actor with at least one record, sorted.
func (h *HistoryStore) Actors() []string {
	actors := make([]string, 0, len(h.byActor))
	for actor := range h.byActor {
		actors = append(actors, actor)
	}
	sort.Strings(actors)
	return actors
}

// Reset drops all histories.
func (h *HistoryStore) Reset() {
	h.byActor = make(map[string][]*models.Record)
	h.byID = make(map[string]map[string]*models.Record)
}

func diffProfiles(current, previous *models.Profile) []models.FieldChange {
	var changes []models.FieldChange
	if cur, prev := current.DisplayName, previous.DisplayName; cur != prev {
		changes = append(changes, models.FieldChange{Field: FieldDisplayName, Previous: prev, Current: cur})
	}
	if cur, prev := current.Name, previous.Name; cur != prev {
		changes = append(changes, models.FieldChange{Field: FieldName, Previous: prev, Current: cur})
	}
	if cur, prev := current.Address(), previous.Address(); cur != prev {
		changes = append(changes, models.FieldChange{Field: FieldAddress, Previous: prev, Current: cur})
	}
	return changes
}
