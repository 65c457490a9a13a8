package handlers

import (
	"context"
	"time"

	"github.com/ekaya-inc/relayscout/pkg/models"
	"github.com/ekaya-inc/relayscout/pkg/services"
	"github.com/ekaya-inc/relayscout/pkg/services/workqueue"
)

// mockSourceRegistry is a configurable SourceRegistry.
type mockSourceRegistry struct {
	sources   []models.Source
	err       error
	addedURL  string
	removeURL string
}

func (m *mockSourceRegistry) Add(ctx context.Context, rawURL string) (*models.Source, error) {
	m.addedURL = rawURL
	if m.err != nil {
		return nil, m.err
	}
	s := models.Source{URL: rawURL, AddedAt: time.Unix(0, 0).UTC()}
	m.sources = append(m.sources, s)
	return &s, nil
}

func (m *mockSourceRegistry) Remove(url string) error {
	m.removeURL = url
	return m.err
}

func (m *mockSourceRegistry) List() []models.Source { return m.sources }

func (m *mockSourceRegistry) URLs() []string {
	urls := make([]string, len(m.sources))
	for i, s := range m.sources {
		urls[i] = s.URL
	}
	return urls
}

// mockSessionService is a configurable DiscoverySessionService.
type mockSessionService struct {
	status     *services.SessionStatus
	err        error
	stopReason models.StopReason
}

func (m *mockSessionService) Start(ctx context.Context) (*services.SessionStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.status = &services.SessionStatus{State: models.SessionRunning, Message: services.MessageConnecting, Cap: 21}
	return m.status, nil
}

func (m *mockSessionService) Stop(reason models.StopReason) *services.SessionStatus {
	m.stopReason = reason
	return &services.SessionStatus{State: models.SessionStopped, Reason: reason, Message: services.MessageStopped}
}

func (m *mockSessionService) Status() *services.SessionStatus {
	if m.status == nil {
		return &services.SessionStatus{State: models.SessionIdle}
	}
	return m.status
}

func (m *mockSessionService) HandleGoal() {}

// mockReportService is a configurable DiscoveryReportService.
type mockReportService struct {
	addresses []services.AddressView
	stats     *services.ActorStats
	err       error
}

func (m *mockReportService) Addresses() []services.AddressView { return m.addresses }

func (m *mockReportService) ActorStats(actor string) (*services.ActorStats, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.stats, nil
}

// mockEnrichmentService is a configurable DeepEnrichmentService.
type mockEnrichmentService struct {
	runs []services.EnrichmentRun
	err  error
}

func (m *mockEnrichmentService) Enrich(ctx context.Context, actor string) (*services.EnrichmentRun, error) {
	if m.err != nil {
		return nil, m.err
	}
	run := services.EnrichmentRun{ID: "run-1", Actor: actor, State: services.EnrichmentRunning}
	m.runs = append(m.runs, run)
	return &run, nil
}

func (m *mockEnrichmentService) Runs() []services.EnrichmentRun { return m.runs }
func (m *mockEnrichmentService) Shutdown()                      {}

// mockVerificationService is a configurable AddressVerificationService.
type mockVerificationService struct {
	results []services.AddressVerification
	err     error
}

func (m *mockVerificationService) HandleAdmission(models.DiscoveredAddress) {}

func (m *mockVerificationService) Verify(ctx context.Context, address string) (*services.AddressVerification, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &services.AddressVerification{Address: address, Status: services.VerificationValid}, nil
}

func (m *mockVerificationService) Get(address string) (*services.AddressVerification, bool) {
	for _, r := range m.results {
		if r.Address == address {
			return &r, true
		}
	}
	return nil, false
}

func (m *mockVerificationService) List() []services.AddressVerification { return m.results }

func (m *mockVerificationService) Tasks() []workqueue.TaskSnapshot {
	return []workqueue.TaskSnapshot{{ID: "t1", Name: "verify a@b.com", Status: workqueue.TaskStatusCompleted}}
}
