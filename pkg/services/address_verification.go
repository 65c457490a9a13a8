package services

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/relayscout/pkg/apperrors"
	"github.com/ekaya-inc/relayscout/pkg/lnurl"
	"github.com/ekaya-inc/relayscout/pkg/logging"
	"github.com/ekaya-inc/relayscout/pkg/models"
	"github.com/ekaya-inc/relayscout/pkg/services/workqueue"
)

// VerificationStatus is the outcome of a payment address lookup.
type VerificationStatus string

const (
	VerificationPending VerificationStatus = "pending"
	VerificationValid   VerificationStatus = "valid"
	VerificationInvalid VerificationStatus = "invalid"
	VerificationError   VerificationStatus = "error"
)

// AddressVerification is the advisory check result for one address.
type AddressVerification struct {
	Address     string             `json:"address"`
	Actor       string             `json:"actor,omitempty"`
	Status      VerificationStatus `json:"status"`
	Error       string             `json:"error,omitempty"`
	Callback    string             `json:"callback,omitempty"`
	MinSendable int64              `json:"min_sendable,omitempty"`
	MaxSendable int64              `json:"max_sendable,omitempty"`
	AllowsNostr bool               `json:"allows_nostr,omitempty"`
	CheckedAt   *time.Time         `json:"checked_at,omitempty"`
}

// AddressResolver looks up the pay endpoint behind a Lightning address.
type AddressResolver interface {
	Resolve(ctx context.Context, address string) (*lnurl.PayEndpoint, error)
}

// AddressVerificationService checks admitted addresses in the background.
// Results are advisory and never affect discovery.
type AddressVerificationService interface {
	// HandleAdmission is the engine admission hook. It queues a lookup and
	// returns immediately.
	HandleAdmission(addr models.DiscoveredAddress)

	// Verify looks up address synchronously and stores the result.
	Verify(ctx context.Context, address string) (*AddressVerification, error)

	// Get returns the stored result for address.
	Get(address string) (*AddressVerification, bool)

	// List returns every stored result, ordered by address.
	List() []AddressVerification

	// Tasks returns the background lookups the queue remembers.
	Tasks() []workqueue.TaskSnapshot
}

type addressVerificationService struct {
	resolver AddressResolver
	queue    *workqueue.Queue
	metrics  MetricsRecorder
	logger   *zap.Logger

	mu      sync.RWMutex
	results map[string]*AddressVerification
}

// NewAddressVerificationService creates a verifier that runs lookups on queue.
func NewAddressVerificationService(resolver AddressResolver, queue *workqueue.Queue, metrics MetricsRecorder, logger *zap.Logger) AddressVerificationService {
	return &addressVerificationService{
		resolver: resolver,
		queue:    queue,
		metrics:  metricsOrNop(metrics),
		logger:   logger.Named("verifier"),
		results:  make(map[string]*AddressVerification),
	}
}

func (s *addressVerificationService) HandleAdmission(addr models.DiscoveredAddress) {
	key := strings.ToLower(addr.Address)

	s.mu.Lock()
	if existing, ok := s.results[key]; ok && existing.Status != VerificationError {
		// Pending or already decided.
		s.mu.Unlock()
		return
	}
	s.results[key] = &AddressVerification{
		Address: addr.Address,
		Actor:   addr.Actor,
		Status:  VerificationPending,
	}
	s.mu.Unlock()

	s.queue.Enqueue(&verifyAddressTask{
		BaseTask: workqueue.NewBaseTask("verify " + addr.Address),
		address:  addr.Address,
		actor:    addr.Actor,
		service:  s,
	})
}

func (s *addressVerificationService) Verify(ctx context.Context, address string) (*AddressVerification, error) {
	if _, _, err := lnurl.ParseAddress(address); err != nil {
		return nil, err
	}

	actor := ""
	if existing, ok := s.Get(address); ok {
		actor = existing.Actor
	}
	result, _ := s.check(ctx, address, actor)
	return result, nil
}

// check resolves address, stores the outcome and returns it. The error is
// non-nil only for failures worth retrying later.
func (s *addressVerificationService) check(ctx context.Context, address, actor string) (*AddressVerification, error) {
	start := time.Now()
	pay, err := s.resolver.Resolve(ctx, address)
	elapsed := time.Since(start)
	now := time.Now()

	result := &AddressVerification{
		Address:   address,
		Actor:     actor,
		CheckedAt: &now,
	}

	switch {
	case err == nil:
		result.Status = VerificationValid
		result.Callback = pay.Callback
		result.MinSendable = pay.MinSendable
		result.MaxSendable = pay.MaxSendable
		result.AllowsNostr = pay.AllowsNostr
	case isPermanentLookupFailure(err):
		result.Status = VerificationInvalid
		result.Error = logging.SanitizeError(err)
	default:
		result.Status = VerificationError
		result.Error = logging.SanitizeError(err)
	}

	s.mu.Lock()
	s.results[strings.ToLower(address)] = result
	s.mu.Unlock()

	s.metrics.RecordVerification(string(result.Status), elapsed)
	s.logger.Debug("Address checked",
		zap.String("address", address),
		zap.String("status", string(result.Status)),
		zap.Duration("elapsed", elapsed))

	copied := *result
	if result.Status == VerificationError {
		return &copied, err
	}
	return &copied, nil
}

func isPermanentLookupFailure(err error) bool {
	if errors.Is(err, lnurl.ErrNotPayEndpoint) || errors.Is(err, apperrors.ErrInvalidAddress) {
		return true
	}
	var statusErr *lnurl.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= http.StatusBadRequest && !statusErr.IsRetryable()
	}
	return false
}

func (s *addressVerificationService) Get(address string) (*AddressVerification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.results[strings.ToLower(address)]
	if !ok {
		return nil, false
	}
	copied := *result
	return &copied, true
}

func (s *addressVerificationService) List() []AddressVerification {
	s.mu.RLock()
	out := make([]AddressVerification, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, *r)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b AddressVerification) int {
		return strings.Compare(a.Address, b.Address)
	})
	return out
}

func (s *addressVerificationService) Tasks() []workqueue.TaskSnapshot {
	return s.queue.GetTasks()
}

// verifyAddressTask runs one background lookup.
type verifyAddressTask struct {
	workqueue.BaseTask
	address string
	actor   string
	service *addressVerificationService
}

func (t *verifyAddressTask) Execute(ctx context.Context, _ workqueue.TaskEnqueuer) error {
	_, err := t.service.check(ctx, t.address, t.actor)
	return err
}

var _ AddressVerificationService = (*addressVerificationService)(nil)
