package relay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/ekaya-inc/relayscout/pkg/logging"
)

// ConnStatus represents the current state of a relay connection.
type ConnStatus string

const (
	StatusDisconnected ConnStatus = "disconnected"
	StatusConnecting   ConnStatus = "connecting"
	StatusConnected    ConnStatus = "connected"
	StatusReconnecting ConnStatus = "reconnecting"
	StatusClosed       ConnStatus = "closed"
)

// ErrClosedByRelay is returned when the relay ends the subscription with CLOSED.
var ErrClosedByRelay = errors.New("subscription closed by relay")

// ErrReconnectsExhausted is returned when a relay stays unreachable past MaxReconnects.
var ErrReconnectsExhausted = errors.New("relay reconnects exhausted")

const defaultReadLimit = 1 << 20 // 1MB

// ClientConfig holds configuration for a relay client.
type ClientConfig struct {
	// ReadLimit caps a single inbound message; 0 uses 1MB.
	ReadLimit int64
	// MaxReconnects stops the client after this many failed connections; 0 retries until stopped.
	MaxReconnects int
}

// Client holds one subscription open on one relay. Events are delivered to the
// handler from the client's read loop, so deliveries from one relay stay FIFO.
type Client struct {
	url            string
	subscriptionID string
	filter         Filter
	handler        Handler
	config         ClientConfig
	logger         *zap.Logger
	backoff        func(attempt int) time.Duration

	mu             sync.RWMutex
	status         ConnStatus
	connectedSince *time.Time
	eoseSent       bool
	events         int
	cancel         context.CancelFunc
	done           chan struct{}
}

// NewClient creates a client that will open subscriptionID with filter on url.
func NewClient(
	url string,
	subscriptionID string,
	filter Filter,
	handler Handler,
	config ClientConfig,
	logger *zap.Logger,
) *Client {
	if config.ReadLimit <= 0 {
		config.ReadLimit = defaultReadLimit
	}
	return &Client{
		url:            url,
		subscriptionID: subscriptionID,
		filter:         filter,
		handler:        handler,
		config:         config,
		logger:         logger.With(zap.String("relay", logging.SanitizeSourceURL(url))),
		backoff:        backoffDuration,
		status:         StatusDisconnected,
		done:           make(chan struct{}),
	}
}

// Start connects, sends the REQ and relays messages to the handler. On
// disconnection it reconnects with exponential backoff and re-sends the REQ.
// Blocks until ctx is cancelled, Stop is called, the relay sends CLOSED or
// MaxReconnects is exhausted. It returns nil when cancelled and the terminal
// error when the relay ended the subscription or could not be reached.
func (c *Client) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.setStatus(StatusClosed)
		close(c.done)
	}()

	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		if attempt == 0 {
			c.setStatus(StatusConnecting)
		} else {
			c.setStatus(StatusReconnecting)
		}

		err := c.connectAndServe(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrClosedByRelay) {
			c.logger.Info("Relay closed subscription", zap.String("reason", logging.SanitizeError(err)))
			return err
		}

		attempt++
		if c.config.MaxReconnects > 0 && attempt > c.config.MaxReconnects {
			c.logger.Warn("Giving up on relay",
				zap.String("error", logging.SanitizeError(err)),
				zap.Int("attempts", attempt),
			)
			return fmt.Errorf("%w after %d attempts: %w", ErrReconnectsExhausted, attempt, err)
		}

		c.setStatus(StatusReconnecting)
		backoff := c.backoff(attempt)
		c.logger.Debug("Relay disconnected, reconnecting",
			zap.String("error", logging.SanitizeError(err)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}

// Stop cancels the client and waits for its read loop to exit. Safe to call
// more than once and before Start.
func (c *Client) Stop() {
	c.mu.RLock()
	cancel := c.cancel
	c.mu.RUnlock()

	if cancel == nil {
		return
	}
	cancel()
	<-c.done
}

// Done is closed once Start has returned.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// URL returns the relay URL.
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status.
func (c *Client) Status() ConnStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// ConnectedSince returns when the current connection was established.
func (c *Client) ConnectedSince() *time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectedSince
}

// EventCount returns the number of events delivered to the handler.
func (c *Client) EventCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.events
}

func (c *Client) setStatus(s ConnStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
	if s != StatusConnected {
		c.connectedSince = nil
	}
}

// connectAndServe establishes a single WebSocket connection, opens the
// subscription and handles messages until the connection drops or ctx is cancelled.
func (c *Client) connectAndServe(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to relay: %w", err)
	}
	defer func() {
		if ctx.Err() != nil {
			c.sendClose(conn)
		}
		conn.Close(websocket.StatusNormalClosure, "closing subscription")
	}()

	conn.SetReadLimit(c.config.ReadLimit)

	req, err := EncodeReq(c.subscriptionID, c.filter)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, req); err != nil {
		return fmt.Errorf("failed to send REQ: %w", err)
	}

	now := time.Now()
	c.mu.Lock()
	c.status = StatusConnected
	c.connectedSince = &now
	c.mu.Unlock()

	return c.messageLoop(ctx, conn)
}

// messageLoop reads messages from the relay and dispatches them.
func (c *Client) messageLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("websocket read error: %w", err)
		}

		msg, err := ParseMessage(data)
		if err != nil {
			c.logger.Debug("Failed to parse relay message", zap.Error(err))
			continue
		}

		switch m := msg.(type) {
		case *EventMessage:
			if m.SubscriptionID != c.subscriptionID || ctx.Err() != nil {
				continue
			}
			c.mu.Lock()
			c.events++
			c.mu.Unlock()
			if c.handler.OnEvent != nil {
				c.handler.OnEvent(m.Event, c.url)
			}
		case *EOSEMessage:
			if m.SubscriptionID != c.subscriptionID {
				continue
			}
			c.mu.Lock()
			first := !c.eoseSent
			c.eoseSent = true
			c.mu.Unlock()
			// Reconnects replay the backlog; only the first EOSE is reported.
			if first && c.handler.OnEOSE != nil {
				c.handler.OnEOSE(c.url)
			}
		case *ClosedMessage:
			if m.SubscriptionID != c.subscriptionID {
				continue
			}
			return fmt.Errorf("%w: %s", ErrClosedByRelay, m.Message)
		case *NoticeMessage:
			c.logger.Debug("Relay notice", zap.String("message", logging.TruncateString(m.Message, 200)))
		default:
			c.logger.Debug("Unexpected message type from relay",
				zap.String("type", fmt.Sprintf("%T", msg)),
			)
		}
	}
}

// sendClose tells the relay to drop the subscription before the socket closes.
func (c *Client) sendClose(conn *websocket.Conn) {
	data, err := EncodeClose(c.subscriptionID)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.logger.Debug("Failed to send CLOSE", zap.Error(err))
	}
}

// backoffDuration calculates exponential backoff with jitter.
// Base: 1s, max: 60s, jitter: ±25%.
func backoffDuration(attempt int) time.Duration {
	base := math.Pow(2, float64(attempt-1)) // 1, 2, 4, 8, ...
	seconds := math.Min(base, 60)
	jitter := seconds * 0.25 * (2*rand.Float64() - 1) //nolint:gosec
	return time.Duration((seconds + jitter) * float64(time.Second))
}
