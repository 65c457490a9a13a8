package services

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/relayscout/pkg/apperrors"
	"github.com/ekaya-inc/relayscout/pkg/logging"
	"github.com/ekaya-inc/relayscout/pkg/models"
)

// RelayProber checks that a relay accepts connections.
type RelayProber interface {
	Probe(ctx context.Context, url string) error
}

// SourceRegistry holds the relays a discovery session subscribes to.
type SourceRegistry interface {
	// Add sanitizes and validates rawURL, probes it, and registers it.
	Add(ctx context.Context, rawURL string) (*models.Source, error)
	// Remove unregisters url. Running subscriptions are not affected.
	Remove(url string) error
	// List returns registered sources in registration order.
	List() []models.Source
	// URLs returns registered relay URLs in registration order.
	URLs() []string
}

type sourceRegistry struct {
	mu      sync.RWMutex
	sources []models.Source

	prober  RelayProber
	metrics MetricsRecorder
	logger  *zap.Logger
	now     func() time.Time
}

// NewSourceRegistry creates a registry seeded with defaults. Defaults are
// sanitized and deduplicated but not probed; invalid ones are skipped.
func NewSourceRegistry(defaults []string, prober RelayProber, metrics MetricsRecorder, logger *zap.Logger) SourceRegistry {
	r := &sourceRegistry{
		prober:  prober,
		metrics: metricsOrNop(metrics),
		logger:  logger.Named("sources"),
		now:     time.Now,
	}

	for _, raw := range defaults {
		u, err := NormalizeSourceURL(raw)
		if err != nil {
			r.logger.Warn("Skipping invalid default relay",
				zap.String("relay", logging.SanitizeSourceURL(raw)),
				zap.Error(err))
			continue
		}
		if r.indexOf(u) >= 0 {
			continue
		}
		r.sources = append(r.sources, models.Source{URL: u, AddedAt: r.now()})
	}
	r.metrics.SetRegisteredRelays(len(r.sources))

	return r
}

// NormalizeSourceURL trims rawURL, repairs a doubled scheme separator
// ("wss:://"), and requires a ws:// or wss:// URL with a host.
func NormalizeSourceURL(rawURL string) (string, error) {
	u := strings.TrimSpace(rawURL)
	switch {
	case strings.HasPrefix(u, "wss:://"):
		u = "wss://" + strings.TrimPrefix(u, "wss:://")
	case strings.HasPrefix(u, "ws:://"):
		u = "ws://" + strings.TrimPrefix(u, "ws:://")
	}

	if !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
		return "", apperrors.ErrInvalidSourceURL
	}

	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", apperrors.ErrInvalidSourceURL)
	}

	return u, nil
}

func (r *sourceRegistry) Add(ctx context.Context, rawURL string) (*models.Source, error) {
	u, err := NormalizeSourceURL(rawURL)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	exists := r.indexOf(u) >= 0
	r.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("relay %s already registered: %w", u, apperrors.ErrConflict)
	}

	if err := r.prober.Probe(ctx, u); err != nil {
		r.logger.Info("Relay probe failed",
			zap.String("relay", logging.SanitizeSourceURL(u)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSourceUnreachable, logging.SanitizeSourceURL(u))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another Add may have registered the same URL while probing.
	if r.indexOf(u) >= 0 {
		return nil, fmt.Errorf("relay %s already registered: %w", u, apperrors.ErrConflict)
	}

	source := models.Source{URL: u, AddedAt: r.now()}
	r.sources = append(r.sources, source)
	r.metrics.SetRegisteredRelays(len(r.sources))

	r.logger.Info("Relay added", zap.String("relay", logging.SanitizeSourceURL(u)))
	return &source, nil
}

func (r *sourceRegistry) Remove(rawURL string) error {
	u := strings.TrimSpace(rawURL)

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(u)
	if i < 0 {
		return fmt.Errorf("relay %s: %w", u, apperrors.ErrNotFound)
	}
	r.sources = slices.Delete(r.sources, i, i+1)
	r.metrics.SetRegisteredRelays(len(r.sources))

	r.logger.Info("Relay removed", zap.String("relay", logging.SanitizeSourceURL(u)))
	return nil
}

func (r *sourceRegistry) List() []models.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.sources)
}

func (r *sourceRegistry) URLs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	urls := make([]string, len(r.sources))
	for i, s := range r.sources {
		urls[i] = s.URL
	}
	return urls
}

// indexOf must be called with mu held.
func (r *sourceRegistry) indexOf(u string) int {
	return slices.IndexFunc(r.sources, func(s models.Source) bool { return s.URL == u })
}

var _ SourceRegistry = (*sourceRegistry)(nil)
