package tools

import (
	"context"
	"time"

	"github.com/ekaya-inc/relayscout/pkg/apperrors"
	"github.com/ekaya-inc/relayscout/pkg/models"
	"github.com/ekaya-inc/relayscout/pkg/services"
	"github.com/ekaya-inc/relayscout/pkg/services/workqueue"
)

type mockSession struct {
	status     *services.SessionStatus
	startErr   error
	stopReason models.StopReason
}

func (m *mockSession) Start(ctx context.Context) (*services.SessionStatus, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.status = &services.SessionStatus{SessionID: "s-1", State: models.SessionRunning, Cap: 21, Message: services.MessageConnecting}
	return m.status, nil
}

func (m *mockSession) Stop(reason models.StopReason) *services.SessionStatus {
	m.stopReason = reason
	m.status = &services.SessionStatus{State: models.SessionStopped, Reason: reason, Message: services.MessageStopped}
	return m.status
}

func (m *mockSession) Status() *services.SessionStatus {
	if m.status == nil {
		return &services.SessionStatus{State: models.SessionIdle, Message: services.MessageIdle}
	}
	return m.status
}

func (m *mockSession) HandleGoal() {}

type mockReport struct {
	addresses []services.AddressView
	stats     map[string]*services.ActorStats
}

func (m *mockReport) Addresses() []services.AddressView { return m.addresses }

func (m *mockReport) ActorStats(actor string) (*services.ActorStats, error) {
	stats, ok := m.stats[actor]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return stats, nil
}

type mockRegistry struct {
	sources []models.Source
	addErr  error
	removed string
}

func (m *mockRegistry) Add(ctx context.Context, rawURL string) (*models.Source, error) {
	if m.addErr != nil {
		return nil, m.addErr
	}
	s := models.Source{URL: rawURL, AddedAt: time.Unix(0, 0).UTC()}
	m.sources = append(m.sources, s)
	return &s, nil
}

func (m *mockRegistry) Remove(url string) error {
	for i, s := range m.sources {
		if s.URL == url {
			m.sources = append(m.sources[:i], m.sources[i+1:]...)
			m.removed = url
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockRegistry) List() []models.Source { return m.sources }

func (m *mockRegistry) URLs() []string {
	urls := make([]string, len(m.sources))
	for i, s := range m.sources {
		urls[i] = s.URL
	}
	return urls
}

type mockEnrichment struct {
	actor string
}

func (m *mockEnrichment) Enrich(ctx context.Context, actor string) (*services.EnrichmentRun, error) {
	normalized, err := services.NormalizeActor(actor)
	if err != nil {
		return nil, err
	}
	m.actor = normalized
	return &services.EnrichmentRun{ID: "run-1", Actor: normalized, State: services.EnrichmentRunning}, nil
}

func (m *mockEnrichment) Runs() []services.EnrichmentRun { return nil }

func (m *mockEnrichment) Shutdown() {}

type mockVerifier struct {
	results map[string]*services.AddressVerification
	err     error
}

func (m *mockVerifier) HandleAdmission(models.DiscoveredAddress) {}

func (m *mockVerifier) Verify(ctx context.Context, address string) (*services.AddressVerification, error) {
	if m.err != nil {
		return nil, m.err
	}
	result := &services.AddressVerification{Address: address, Status: services.VerificationValid, AllowsNostr: true}
	if m.results == nil {
		m.results = make(map[string]*services.AddressVerification)
	}
	m.results[address] = result
	return result, nil
}

func (m *mockVerifier) Get(address string) (*services.AddressVerification, bool) {
	r, ok := m.results[address]
	return r, ok
}

func (m *mockVerifier) List() []services.AddressVerification {
	out := make([]services.AddressVerification, 0, len(m.results))
	for _, r := range m.results {
		out = append(out, *r)
	}
	return out
}

func (m *mockVerifier) Tasks() []workqueue.TaskSnapshot { return nil }

var (
	_ services.DiscoverySessionService    = (*mockSession)(nil)
	_ services.DiscoveryReportService     = (*mockReport)(nil)
	_ services.SourceRegistry             = (*mockRegistry)(nil)
	_ services.DeepEnrichmentService      = (*mockEnrichment)(nil)
	_ services.AddressVerificationService = (*mockVerifier)(nil)
)
