package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/ekaya-inc/relayscout/pkg/logging"
)

// DefaultProbeTimeout bounds a connectivity probe.
const DefaultProbeTimeout = 3 * time.Second

// Prober checks that a relay accepts WebSocket connections.
type Prober struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewProber creates a prober; timeout <= 0 uses DefaultProbeTimeout.
func NewProber(timeout time.Duration, logger *zap.Logger) *Prober {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Prober{
		timeout: timeout,
		logger:  logger.Named("relay-probe"),
	}
}

// Probe opens and immediately closes a connection to url. It returns an error
// if the relay cannot be reached within the probe timeout.
func (p *Prober) Probe(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		p.logger.Debug("Relay probe failed",
			zap.String("relay", logging.SanitizeSourceURL(url)),
			zap.String("error", logging.SanitizeError(err)),
		)
		return fmt.Errorf("failed to connect to relay: %w", err)
	}
	conn.Close(websocket.StatusNormalClosure, "probe")

	p.logger.Debug("Relay probe succeeded",
		zap.String("relay", logging.SanitizeSourceURL(url)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}
