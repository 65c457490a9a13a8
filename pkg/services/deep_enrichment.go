package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/relayscout/pkg/apperrors"
	"github.com/ekaya-inc/relayscout/pkg/discovery"
	"github.com/ekaya-inc/relayscout/pkg/logging"
	"github.com/ekaya-inc/relayscout/pkg/models"
	"github.com/ekaya-inc/relayscout/pkg/relay"
)

const (
	// DefaultEnrichmentWindow is how long an enrichment subscription stays open.
	DefaultEnrichmentWindow = 5 * time.Second

	// DefaultEnrichmentLabel is the provenance label for enrichment deliveries.
	DefaultEnrichmentLabel = "deep-search"

	maxRetainedRuns = 50
)

var (
	actorPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

	errEnrichmentClosed = errors.New("enrichment service is shut down")
)

// NormalizeActor lowercases actor and checks it is a 64 character hex key.
func NormalizeActor(actor string) (string, error) {
	a := strings.ToLower(strings.TrimSpace(actor))
	if !actorPattern.MatchString(a) {
		return "", fmt.Errorf("%w: expected 64 hex characters", apperrors.ErrInvalidActor)
	}
	return a, nil
}

// EnrichmentState is the lifecycle state of one enrichment run.
type EnrichmentState string

const (
	EnrichmentRunning   EnrichmentState = "running"
	EnrichmentCompleted EnrichmentState = "completed"
)

// EnrichmentRun describes one targeted history fetch.
type EnrichmentRun struct {
	ID         string          `json:"id"`
	Actor      string          `json:"actor"`
	State      EnrichmentState `json:"state"`
	Relays     int             `json:"relays"`
	Received   int             `json:"received"`
	Stored     int             `json:"stored"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// DeepEnrichmentService fetches the full profile history of one actor.
type DeepEnrichmentService interface {
	// Enrich starts a bounded fetch of every stored profile record for actor and
	// returns immediately. The run ignores ctx and ends when its window elapses.
	Enrich(ctx context.Context, actor string) (*EnrichmentRun, error)

	// Runs returns recent runs, oldest first.
	Runs() []EnrichmentRun

	// Shutdown ends every running fetch and waits for it to finish.
	Shutdown()
}

// EnrichmentConfig holds deep enrichment settings.
type EnrichmentConfig struct {
	Window time.Duration
	Label  string
}

type deepEnrichmentService struct {
	engine     *discovery.Engine
	registry   SourceRegistry
	subscriber relay.Subscriber
	config     EnrichmentConfig
	metrics    MetricsRecorder
	logger     *zap.Logger

	mu     sync.Mutex
	runs   []*EnrichmentRun
	closed bool

	wg       sync.WaitGroup
	shutdown chan struct{}
}

// NewDeepEnrichmentService creates an enrichment controller.
func NewDeepEnrichmentService(
	engine *discovery.Engine,
	registry SourceRegistry,
	subscriber relay.Subscriber,
	config EnrichmentConfig,
	metrics MetricsRecorder,
	logger *zap.Logger,
) DeepEnrichmentService {
	if config.Window <= 0 {
		config.Window = DefaultEnrichmentWindow
	}
	if config.Label == "" {
		config.Label = DefaultEnrichmentLabel
	}
	return &deepEnrichmentService{
		engine:     engine,
		registry:   registry,
		subscriber: subscriber,
		config:     config,
		metrics:    metricsOrNop(metrics),
		logger:     logger.Named("enrichment"),
		shutdown:   make(chan struct{}),
	}
}

func (s *deepEnrichmentService) Enrich(_ context.Context, actor string) (*EnrichmentRun, error) {
	actor, err := NormalizeActor(actor)
	if err != nil {
		return nil, err
	}

	urls := s.registry.URLs()
	if len(urls) == 0 {
		return nil, apperrors.ErrNoSources
	}

	run := &EnrichmentRun{
		ID:        uuid.New().String(),
		Actor:     actor,
		State:     EnrichmentRunning,
		Relays:    len(urls),
		StartedAt: time.Now(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errEnrichmentClosed
	}
	s.wg.Add(1)
	s.runs = append(s.runs, run)
	if len(s.runs) > maxRetainedRuns {
		s.runs = slices.Delete(s.runs, 0, len(s.runs)-maxRetainedRuns)
	}
	snapshot := *run
	s.mu.Unlock()

	s.logger.Info("Deep enrichment started",
		zap.String("run_id", run.ID),
		zap.String("actor", logging.ShortActor(actor)),
		zap.Int("relays", len(urls)),
		zap.Duration("window", s.config.Window))

	go s.fetch(run, urls)

	return &snapshot, nil
}

func (s *deepEnrichmentService) fetch(run *EnrichmentRun, urls []string) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Window)
	defer cancel()

	filter := relay.Filter{
		Kinds:   []int{relay.KindMetadata},
		Authors: []string{run.Actor},
	}
	handler := relay.Handler{
		OnEvent: func(ev relay.Event, _ string) {
			if ev.Kind != relay.KindMetadata || ev.PubKey != run.Actor {
				return
			}
			result := s.engine.Ingest(ev.Record(), s.config.Label, models.OriginEnrichment)

			s.mu.Lock()
			run.Received++
			if result == discovery.ResultStored {
				run.Stored++
			}
			s.mu.Unlock()
		},
	}

	stream := s.subscriber.Subscribe(ctx, urls, filter, handler)
	s.metrics.AddSubscriptions(1)
	defer func() {
		stream.Close()
		s.metrics.AddSubscriptions(-1)

		now := time.Now()
		s.mu.Lock()
		run.State = EnrichmentCompleted
		run.FinishedAt = &now
		received, stored := run.Received, run.Stored
		s.mu.Unlock()

		s.logger.Info("Deep enrichment finished",
			zap.String("run_id", run.ID),
			zap.String("actor", logging.ShortActor(run.Actor)),
			zap.Int("received", received),
			zap.Int("stored", stored))
	}()

	select {
	case <-ctx.Done():
	case <-stream.Done():
	case <-s.shutdown:
	}
}

func (s *deepEnrichmentService) Runs() []EnrichmentRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]EnrichmentRun, len(s.runs))
	for i, r := range s.runs {
		out[i] = *r
	}
	return out
}

func (s *deepEnrichmentService) Shutdown() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.shutdown)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

var _ DeepEnrichmentService = (*deepEnrichmentService)(nil)
