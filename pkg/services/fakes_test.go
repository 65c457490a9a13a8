package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/relayscout/pkg/discovery"
	"github.com/ekaya-inc/relayscout/pkg/models"
	"github.com/ekaya-inc/relayscout/pkg/relay"
)

// fakeStream is a relay.Stream driven directly by tests.
type fakeStream struct {
	ctx     context.Context
	urls    []string
	filter  relay.Filter
	handler relay.Handler

	once   sync.Once
	done   chan struct{}
	mu     sync.Mutex
	closes int

	// closeGate, when set, holds Close until it is closed.
	closeGate chan struct{}
}

func (s *fakeStream) Close() {
	s.mu.Lock()
	s.closes++
	gate := s.closeGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	s.once.Do(func() { close(s.done) })
}

func (s *fakeStream) holdClose() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeGate = make(chan struct{})
	return s.closeGate
}

func (s *fakeStream) Done() <-chan struct{} { return s.done }
func (s *fakeStream) Relays() []string      { return s.urls }
func (s *fakeStream) EventCount() int       { return 0 }

func (s *fakeStream) Statuses() map[string]relay.ConnStatus {
	out := make(map[string]relay.ConnStatus, len(s.urls))
	for _, u := range s.urls {
		out[u] = relay.StatusConnected
	}
	return out
}

func (s *fakeStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// deliver simulates relayURL delivering ev.
func (s *fakeStream) deliver(ev relay.Event, relayURL string) {
	if s.handler.OnEvent != nil {
		s.handler.OnEvent(ev, relayURL)
	}
}

func (s *fakeStream) eose(relayURL string) {
	if s.handler.OnEOSE != nil {
		s.handler.OnEOSE(relayURL)
	}
}

// fakeSubscriber records every subscription it opens.
type fakeSubscriber struct {
	mu      sync.Mutex
	streams []*fakeStream
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, urls []string, filter relay.Filter, handler relay.Handler) relay.Stream {
	s := &fakeStream{
		ctx:     ctx,
		urls:    urls,
		filter:  filter,
		handler: handler,
		done:    make(chan struct{}),
	}
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()
	return s
}

func (f *fakeSubscriber) last() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

func (f *fakeSubscriber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

// fakeProber fails for URLs in unreachable.
type fakeProber struct {
	mu          sync.Mutex
	unreachable map[string]bool
	probed      []string
}

func (p *fakeProber) Probe(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed = append(p.probed, url)
	if p.unreachable[url] {
		return fmt.Errorf("dial %s: connection refused", url)
	}
	return nil
}

// fakeMetrics captures service-level metrics.
type fakeMetrics struct {
	mu            sync.Mutex
	starts        int
	stops         []models.StopReason
	verifications []string
	subscriptions int
	relays        int
}

func (m *fakeMetrics) RecordSessionStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
}

func (m *fakeMetrics) RecordSessionStop(reason models.StopReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops = append(m.stops, reason)
}

func (m *fakeMetrics) RecordVerification(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications = append(m.verifications, outcome)
}

func (m *fakeMetrics) AddSubscriptions(delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions += delta
}

func (m *fakeMetrics) SetRegisteredRelays(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relays = n
}

func (m *fakeMetrics) snapshot() fakeMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fakeMetrics{
		starts:        m.starts,
		stops:         append([]models.StopReason(nil), m.stops...),
		verifications: append([]string(nil), m.verifications...),
		subscriptions: m.subscriptions,
		relays:        m.relays,
	}
}

func actorKey(i int) string {
	return fmt.Sprintf("%064x", i)
}

func metadataEvent(id, actor string, createdAt int64, name, lud16 string) relay.Event {
	return relay.Event{
		ID:        id,
		PubKey:    actor,
		CreatedAt: createdAt,
		Kind:      relay.KindMetadata,
		Content:   fmt.Sprintf(`{"name":%q,"lud16":%q}`, name, lud16),
	}
}

// sessionFixture wires an engine, registry, fake subscriber and session the
// way main does.
type sessionFixture struct {
	engine     *discovery.Engine
	registry   SourceRegistry
	subscriber *fakeSubscriber
	metrics    *fakeMetrics
	session    DiscoverySessionService
}

func newSessionFixture(t *testing.T, relays ...string) *sessionFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	f := &sessionFixture{
		subscriber: &fakeSubscriber{},
		metrics:    &fakeMetrics{},
	}
	f.engine = discovery.NewEngine(models.DefaultDiscoveryCap, logger,
		discovery.WithGoalHook(func() { f.session.HandleGoal() }))
	f.registry = NewSourceRegistry(relays, &fakeProber{}, f.metrics, logger)
	f.session = NewDiscoverySessionService(f.engine, f.registry, f.subscriber,
		SessionConfig{PerSourceLimit: 50}, f.metrics, logger)
	return f
}
