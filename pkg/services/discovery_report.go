package services

import (
	"fmt"
	"slices"
	"time"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/relayscout/pkg/apperrors"
	"github.com/ekaya-inc/relayscout/pkg/discovery"
	"github.com/ekaya-inc/relayscout/pkg/logging"
	"github.com/ekaya-inc/relayscout/pkg/models"
)

const notAvailable = "N/A"

// AddressView is one discovered address as presented to clients.
type AddressView struct {
	Order        int                  `json:"order"`
	Address      string               `json:"address"`
	Actor        string               `json:"actor"`
	ShortActor   string               `json:"short_actor"`
	Relays       []string             `json:"relays"`
	RelayCount   int                  `json:"relay_count"`
	Label        string               `json:"label"`
	Versions     int                  `json:"versions"`
	AdmittedAt   time.Time            `json:"admitted_at"`
	Verification *AddressVerification `json:"verification,omitempty"`
}

// TimelineEntry is one profile version in an actor's stats view.
type TimelineEntry struct {
	ID          string               `json:"id"`
	CreatedAt   int64                `json:"created_at"`
	Timestamp   time.Time            `json:"timestamp"`
	Name        string               `json:"name"`
	Address     string               `json:"lud16"`
	SeenOn      []string             `json:"seen_on"`
	SeenOnHosts []string             `json:"seen_on_hosts"`
	ChangeLabel string               `json:"change_label,omitempty"`
	Changes     []models.FieldChange `json:"changes,omitempty"`
}

// ActorStats is the per-actor history view.
type ActorStats struct {
	Actor       string          `json:"actor"`
	ShortActor  string          `json:"short_actor"`
	TotalEvents int             `json:"total_events"`
	Timeline    []TimelineEntry `json:"timeline"`
}

// DiscoveryReportService builds read-only views over the discovery engine.
type DiscoveryReportService interface {
	// Addresses returns admitted addresses in admission order.
	Addresses() []AddressView
	// ActorStats returns the actor's profile timeline, newest first.
	// Returns apperrors.ErrNotFound for an actor with no stored history.
	ActorStats(actor string) (*ActorStats, error)
}

type discoveryReportService struct {
	engine   *discovery.Engine
	verifier AddressVerificationService
}

// NewDiscoveryReportService creates a report service. verifier may be nil.
func NewDiscoveryReportService(engine *discovery.Engine, verifier AddressVerificationService) DiscoveryReportService {
	return &discoveryReportService{engine: engine, verifier: verifier}
}

// FoundOnLabel renders the corroboration label, e.g. "Found on 2 relays".
func FoundOnLabel(n int) string {
	noun := "relay"
	if n != 1 {
		noun = inflection.Plural(noun)
	}
	return fmt.Sprintf("Found on %d %s", n, noun)
}

func (s *discoveryReportService) Addresses() []AddressView {
	discovered := s.engine.Discovered()
	views := make([]AddressView, 0, len(discovered))

	for _, d := range discovered {
		v := AddressView{
			Order:      d.Order,
			Address:    d.Address,
			Actor:      d.Actor,
			ShortActor: logging.ShortActor(d.Actor),
			Relays:     d.Sources,
			RelayCount: len(d.Sources),
			Label:      FoundOnLabel(len(d.Sources)),
			Versions:   d.Versions,
			AdmittedAt: d.AdmittedAt,
		}
		if s.verifier != nil {
			if result, ok := s.verifier.Get(d.Address); ok {
				v.Verification = result
			}
		}
		views = append(views, v)
	}
	return views
}

func (s *discoveryReportService) ActorStats(actor string) (*ActorStats, error) {
	entries, records := s.engine.Snapshot(actor)
	if len(entries) == 0 {
		return nil, fmt.Errorf("actor %s: %w", logging.ShortActor(actor), apperrors.ErrNotFound)
	}

	stats := &ActorStats{
		Actor:       actor,
		ShortActor:  logging.ShortActor(actor),
		TotalEvents: len(entries),
		Timeline:    make([]TimelineEntry, 0, len(entries)),
	}

	for i, e := range entries {
		entry := TimelineEntry{
			ID:          e.ID,
			CreatedAt:   e.CreatedAt,
			Timestamp:   time.Unix(e.CreatedAt, 0).UTC(),
			Name:        orNotAvailable(e.Name),
			Address:     orNotAvailable(e.Address),
			SeenOn:      e.SeenOn,
			SeenOnHosts: make([]string, len(e.SeenOn)),
			Changes:     e.Changes,
		}
		for j, src := range e.SeenOn {
			entry.SeenOnHosts[j] = logging.DisplayHost(src)
		}
		if i+1 < len(records) {
			entry.ChangeLabel = nameChangeLabel(e.Changes, records[i+1].Profile)
		}
		stats.Timeline = append(stats.Timeline, entry)
	}

	return stats, nil
}

// nameChangeLabel describes a display name or name change recorded in changes,
// naming the previous profile's label.
func nameChangeLabel(changes []models.FieldChange, previous *models.Profile) string {
	if previous == nil || !slices.ContainsFunc(changes, isNameChange) {
		return ""
	}
	prior := previous.Label()
	if prior == "" {
		prior = "None"
	}
	return fmt.Sprintf("Name changed from %q", prior)
}

func isNameChange(c models.FieldChange) bool {
	return c.Field == discovery.FieldDisplayName || c.Field == discovery.FieldName
}

func orNotAvailable(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}

var _ DiscoveryReportService = (*discoveryReportService)(nil)
