package services

import (
	"context"
	"fmt"
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

// Session status messages.
const (
	MessageIdle       = "Ready."
	MessageConnecting = "Connecting to relays..."
	MessageSearching  = "Searching for more events..."
	MessageStopped    = "Discovery stopped."
)

// GoalMessage is the status message shown when a session reaches its cap.
func GoalMessage(capacity int) string {
	return fmt.Sprintf("Goal reached: %d unique addresses found.", capacity)
}

// SessionStatus is a snapshot of the discovery session.
type SessionStatus struct {
	SessionID string                      `json:"session_id,omitempty"`
	State     models.SessionState         `json:"state"`
	Reason    models.StopReason           `json:"reason,omitempty"`
	Count     int                         `json:"count"`
	Cap       int                         `json:"cap"`
	Message   string                      `json:"message"`
	Relays    map[string]relay.ConnStatus `json:"relays,omitempty"`
	Events    int                         `json:"events"`
	StartedAt *time.Time                  `json:"started_at,omitempty"`
	StoppedAt *time.Time                  `json:"stopped_at,omitempty"`
}

// DiscoverySessionService runs the broad scan that fills the discovery index.
type DiscoverySessionService interface {
	// Start clears all discovery state and subscribes to every registered relay.
	// Returns apperrors.ErrSessionRunning if a session is already running.
	Start(ctx context.Context) (*SessionStatus, error)

	// Stop ends the running session. Once Stop returns, no discovery delivery
	// mutates state. Stopping a session that is not running is a no-op.
	Stop(reason models.StopReason) *SessionStatus

	// Status returns the current session snapshot.
	Status() *SessionStatus

	// HandleGoal is the engine goal hook. It stops the session that reached
	// the cap without blocking the caller.
	HandleGoal()
}

// SessionConfig holds the broad scan settings.
type SessionConfig struct {
	PerSourceLimit int
}

type discoverySessionService struct {
	engine     *discovery.Engine
	registry   SourceRegistry
	subscriber relay.Subscriber
	config     SessionConfig
	metrics    MetricsRecorder
	logger     *zap.Logger

	mu        sync.Mutex
	id        string
	state     models.SessionState
	reason    models.StopReason
	message   string
	stream    relay.Stream
	startedAt *time.Time
	stoppedAt *time.Time
	// events counts deliveries of the last stream after it is closed.
	events int
}

// NewDiscoverySessionService creates an idle session controller.
func NewDiscoverySessionService(
	engine *discovery.Engine,
	registry SourceRegistry,
	subscriber relay.Subscriber,
	config SessionConfig,
	metrics MetricsRecorder,
	logger *zap.Logger,
) DiscoverySessionService {
	return &discoverySessionService{
		engine:     engine,
		registry:   registry,
		subscriber: subscriber,
		config:     config,
		metrics:    metricsOrNop(metrics),
		logger:     logger.Named("session"),
		state:      models.SessionIdle,
		message:    MessageIdle,
	}
}

func (s *discoverySessionService) Start(ctx context.Context) (*SessionStatus, error) {
	urls := s.registry.URLs()

	s.mu.Lock()
	if s.state == models.SessionRunning {
		s.mu.Unlock()
		return nil, apperrors.ErrSessionRunning
	}
	if len(urls) == 0 {
		s.mu.Unlock()
		return nil, apperrors.ErrNoSources
	}

	generation := s.engine.Reset()
	now := time.Now()
	id := uuid.New().String()
	s.id = id
	s.state = models.SessionRunning
	s.reason = ""
	s.message = MessageConnecting
	s.startedAt = &now
	s.stoppedAt = nil
	s.events = 0
	s.mu.Unlock()

	s.metrics.RecordSessionStart()
	s.logger.Info("Discovery session started",
		zap.String("session_id", id),
		zap.Int("relays", len(urls)),
		zap.Int("cap", s.engine.Cap()))

	filter := relay.Filter{
		Kinds: []int{relay.KindMetadata},
		Limit: s.config.PerSourceLimit,
	}
	handler := relay.Handler{
		OnEvent: func(ev relay.Event, relayURL string) {
			if ev.Kind != relay.KindMetadata {
				return
			}
			// A restart may unseal the engine before this stream is closed.
			s.engine.IngestSession(generation, ev.Record(), relayURL)
		},
		OnEOSE: func(relayURL string) {
			s.handleEOSE(id, relayURL)
		},
	}

	// The subscription outlives the request that started it.
	stream := s.subscriber.Subscribe(context.WithoutCancel(ctx), urls, filter, handler)
	s.metrics.AddSubscriptions(1)

	s.mu.Lock()
	if s.id != id || s.state != models.SessionRunning {
		// Stopped while subscribing.
		status := s.statusLocked()
		s.mu.Unlock()
		s.closeStream(stream)
		return status, nil
	}
	s.stream = stream
	status := s.statusLocked()
	s.mu.Unlock()

	return status, nil
}

func (s *discoverySessionService) Stop(reason models.StopReason) *SessionStatus {
	return s.stop("", reason)
}

func (s *discoverySessionService) HandleGoal() {
	s.mu.Lock()
	id := s.id
	s.mu.Unlock()

	go s.stop(id, models.StopGoal)
}

// stop ends the session. A non-empty id restricts it to that session.
func (s *discoverySessionService) stop(id string, reason models.StopReason) *SessionStatus {
	s.mu.Lock()
	if s.state != models.SessionRunning || (id != "" && id != s.id) {
		status := s.statusLocked()
		s.mu.Unlock()
		return status
	}

	s.engine.Seal()
	now := time.Now()
	s.state = models.SessionStopped
	s.reason = reason
	s.stoppedAt = &now
	if reason == models.StopGoal {
		s.message = GoalMessage(s.engine.Cap())
	} else {
		s.message = MessageStopped
	}
	stream := s.stream
	s.stream = nil
	if stream != nil {
		s.events = stream.EventCount()
	}
	sessionID := s.id
	status := s.statusLocked()
	s.mu.Unlock()

	// Closing waits for in-flight handlers, which may need s.mu.
	if stream != nil {
		s.closeStream(stream)
	}
	s.metrics.RecordSessionStop(reason)

	s.logger.Info("Discovery session stopped",
		zap.String("session_id", sessionID),
		zap.String("reason", string(reason)),
		zap.Int("found", status.Count),
		zap.Int("events", status.Events))

	return status
}

func (s *discoverySessionService) Status() *SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *discoverySessionService) handleEOSE(id, relayURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id != id || s.state != models.SessionRunning {
		return
	}
	s.logger.Debug("Initial sync complete", zap.String("relay", logging.SanitizeSourceURL(relayURL)))
	if s.message == MessageConnecting {
		s.message = MessageSearching
	}
}

func (s *discoverySessionService) closeStream(stream relay.Stream) {
	stream.Close()
	s.metrics.AddSubscriptions(-1)
}

// statusLocked must be called with mu held.
func (s *discoverySessionService) statusLocked() *SessionStatus {
	status := &SessionStatus{
		SessionID: s.id,
		State:     s.state,
		Reason:    s.reason,
		Count:     s.engine.Count(),
		Cap:       s.engine.Cap(),
		Message:   s.message,
		Events:    s.events,
		StartedAt: s.startedAt,
		StoppedAt: s.stoppedAt,
	}
	if s.stream != nil {
		status.Relays = s.stream.Statuses()
		status.Events = s.stream.EventCount()
	}
	return status
}

var _ DiscoverySessionService = (*discoverySessionService)(nil)
