package relay

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/relayscout/pkg/logging"
)

// Handler receives deliveries from a subscription. Both callbacks are invoked
// from the per-relay read loops, concurrently across relays.
type Handler struct {
	// OnEvent is called for every event, tagged with the relay that delivered it.
	OnEvent func(ev Event, relayURL string)
	// OnEOSE is called once per relay when its stored events are exhausted.
	OnEOSE func(relayURL string)
}

// Stream is an open subscription across one or more relays.
type Stream interface {
	// Close ends the subscription and waits until no handler call is in flight.
	Close()
	Done() <-chan struct{}
	Relays() []string
	Statuses() map[string]ConnStatus
	EventCount() int
}

// Subscriber opens one logical subscription across many relays.
type Subscriber interface {
	Subscribe(ctx context.Context, urls []string, filter Filter, handler Handler) Stream
}

// Pool opens subscriptions and tracks the ones still running.
type Pool struct {
	config ClientConfig
	logger *zap.Logger

	mu     sync.Mutex
	active map[string]*Subscription
}

var (
	_ Subscriber = (*Pool)(nil)
	_ Stream     = (*Subscription)(nil)
)

// NewPool creates a relay pool.
func NewPool(config ClientConfig, logger *zap.Logger) *Pool {
	return &Pool{
		config: config,
		logger: logger.Named("relay-pool"),
		active: make(map[string]*Subscription),
	}
}

// Subscribe opens filter on every url, one client per relay. The subscription
// runs until Close is called, ctx is cancelled, or every relay has ended it.
func (p *Pool) Subscribe(ctx context.Context, urls []string, filter Filter, handler Handler) Stream {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		ID:     uuid.New().String(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	for _, url := range urls {
		sub.clients = append(sub.clients, NewClient(url, sub.ID, filter, handler, p.config, p.logger))
	}

	p.mu.Lock()
	p.active[sub.ID] = sub
	p.mu.Unlock()

	p.logger.Debug("Opening subscription",
		zap.String("subscription_id", sub.ID),
		zap.Int("relays", len(urls)),
	)

	// One relay ending must not cancel the others.
	var g errgroup.Group
	for _, client := range sub.clients {
		g.Go(func() error {
			return client.Start(ctx)
		})
	}

	go func() {
		err := g.Wait()
		cancel()
		p.mu.Lock()
		delete(p.active, sub.ID)
		p.mu.Unlock()
		if err != nil {
			p.logger.Info("Subscription ended by relay",
				zap.String("subscription_id", sub.ID),
				zap.String("error", logging.SanitizeError(err)),
			)
		}
		sub.err = err
		close(sub.done)
	}()

	return sub
}

// Active returns the number of subscriptions that are still running.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Shutdown closes every running subscription.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	subs := make([]*Subscription, 0, len(p.active))
	for _, sub := range p.active {
		subs = append(subs, sub)
	}
	p.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	p.logger.Info("Relay pool shut down", zap.Int("subscriptions", len(subs)))
}

// Subscription is the Stream opened by Pool.
type Subscription struct {
	ID string

	clients []*Client
	cancel  context.CancelFunc
	once    sync.Once
	done    chan struct{}
	err     error
}

// Close ends the subscription on every relay and waits for all read loops to
// exit, so no handler call happens after Close returns. Closing an already
// closed subscription is a no-op. Close must not be called from a Handler
// callback.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// Done is closed when every relay client has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the first terminal relay error once Done is closed. It is nil
// while running and when the subscription was cancelled.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Relays returns the relay URLs covered by the subscription.
func (s *Subscription) Relays() []string {
	urls := make([]string, len(s.clients))
	for i, c := range s.clients {
		urls[i] = c.URL()
	}
	return urls
}

// Statuses returns the connection status of each relay.
func (s *Subscription) Statuses() map[string]ConnStatus {
	out := make(map[string]ConnStatus, len(s.clients))
	for _, c := range s.clients {
		out[c.URL()] = c.Status()
	}
	return out
}

// EventCount returns the number of events delivered across all relays.
func (s *Subscription) EventCount() int {
	total := 0
	for _, c := range s.clients {
		total += c.EventCount()
	}
	return total
}
