// Package discovery merges profile records delivered by many sources into
// per-actor histories and a capped index of payment addresses.
//
// All mutation goes through Engine, which processes one record at a time
// under a single mutex: parsing, provenance merge, ordered insert and index
// admission happen as one atomic step per record.
package discovery

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/relayscout/pkg/logging"
	"github.com/ekaya-inc/relayscout/pkg/models"
)

// Result classifies what Ingest did with a record.
type Result string

const (
	ResultStored    Result = "stored"
	ResultDuplicate Result = "duplicate"
	ResultMalformed Result = "malformed"
	ResultInvalid   Result = "invalid"
	ResultDropped   Result = "dropped"
)

// Recorder receives ingestion outcomes. Implemented by the metrics collector.
type Recorder interface {
	RecordIngest(origin models.Origin, result Result)
	RecordAdmission(order int)
	RecordRejection()
}

type nopRecorder struct{}

func (nopRecorder) RecordIngest(models.Origin, Result) {}
func (nopRecorder) RecordAdmission(int)                {}
func (nopRecorder) RecordRejection()                   {}

// Option configures an Engine.
type Option func(*Engine)

// WithGoalHook sets the function called once when the cap is reached.
// It runs after the engine lock is released.
func WithGoalHook(fn func()) Option {
	return func(e *Engine) {
		e.onGoal = fn
	}
}

// WithAdmissionHook sets the function called for every newly admitted address.
// It runs after the engine lock is released.
func WithAdmissionHook(fn func(models.DiscoveredAddress)) Option {
	return func(e *Engine) {
		e.onAdmit = fn
	}
}

// WithRecorder sets the ingestion outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// Engine is the single writer for actor histories and the discovery index.
type Engine struct {
	mu      sync.Mutex
	history *HistoryStore
	index   *Index
	// sealed drops discovery-origin records; set by Seal and on reaching the cap.
	sealed bool
	// generation counts resets; session deliveries carry the one they were opened under.
	generation uint64

	onGoal   func()
	onAdmit  func(models.DiscoveredAddress)
	recorder Recorder
	logger   *zap.Logger
}

// NewEngine creates an engine whose index admits at most capacity addresses.
// A new engine is sealed until Reset is called.
func NewEngine(capacity int, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		history:  NewHistoryStore(),
		index:    NewIndex(capacity),
		sealed:   true,
		recorder: nopRecorder{},
		logger:   logger.Named("discovery"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ingest processes one record delivered by source. It never returns an error:
// malformed or late input is classified and discarded without touching state.
func (e *Engine) Ingest(raw models.RawRecord, source string, origin models.Origin) Result {
	return e.ingestAt(0, raw, source, origin)
}

// IngestSession processes a discovery record for the session opened by the
// Reset that returned generation. Records from an older session are dropped
// even when a newer session has unsealed the engine.
func (e *Engine) IngestSession(generation uint64, raw models.RawRecord, source string) Result {
	return e.ingestAt(generation, raw, source, models.OriginDiscovery)
}

// ingestAt ingests raw; a zero generation skips the session check.
func (e *Engine) ingestAt(generation uint64, raw models.RawRecord, source string, origin models.Origin) Result {
	result, admitted, goal := e.ingest(generation, raw, source, origin)
	e.recorder.RecordIngest(origin, result)

	if admitted != nil {
		e.recorder.RecordAdmission(admitted.Order)
		if e.onAdmit != nil {
			e.onAdmit(*admitted)
		}
	}
	if goal && e.onGoal != nil {
		e.onGoal()
	}
	return result
}

func (e *Engine) ingest(generation uint64, raw models.RawRecord, source string, origin models.Origin) (Result, *models.DiscoveredAddress, bool) {
	if raw.ID == "" || raw.Actor == "" || !origin.IsValid() {
		return ResultInvalid, nil, false
	}

	// A payload that does not parse never counts as a delivery, not even of a
	// known id.
	profile, err := models.ParseProfile(raw.Content)
	if err != nil {
		e.logger.Debug("Skipping malformed profile",
			zap.String("actor", logging.ShortActor(raw.Actor)),
			zap.String("source", logging.SanitizeSourceURL(source)),
			zap.Error(err))
		return ResultMalformed, nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if origin == models.OriginDiscovery && (e.sealed || (generation != 0 && generation != e.generation)) {
		return ResultDropped, nil, false
	}

	result := ResultStored
	if existing := e.history.Lookup(raw.Actor, raw.ID); existing != nil {
		existing.Provenance.Add(source)
		result = ResultDuplicate
	} else {
		e.history.Insert(models.NewRecord(raw, profile, source))
	}

	eval := e.index.Evaluate(raw.Actor, e.history.Newest(raw.Actor), source)
	if eval.Rejected {
		e.recorder.RecordRejection()
	}
	if !eval.Admitted {
		return result, nil, false
	}

	e.logger.Info("Discovered address",
		zap.String("address", eval.Address),
		zap.String("actor", logging.ShortActor(raw.Actor)),
		zap.Int("order", eval.Order),
		zap.Int("cap", e.index.Cap()))

	admitted := &models.DiscoveredAddress{
		Address:  eval.Address,
		Actor:    raw.Actor,
		Order:    eval.Order,
		Sources:  e.index.Corroboration(eval.Address),
		Versions: e.history.Len(raw.Actor),
	}

	if eval.Goal {
		e.sealed = true
	}
	return result, admitted, eval.Goal
}

// Reset clears every history and admission and reopens the engine to
// discovery traffic. It returns the new generation for IngestSession.
func (e *Engine) Reset() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.Reset()
	e.index.Reset()
	e.sealed = false
	e.generation++
	return e.generation
}

// Seal makes the engine drop discovery-origin records. Once Seal returns, no
// discovery delivery can mutate state until the next Reset.
func (e *Engine) Seal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sealed = true
}

// Sealed reports whether discovery traffic is currently dropped.
func (e *Engine) Sealed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sealed
}

// Count returns the number of admitted addresses.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.Count()
}

// Cap returns the admission limit.
func (e *Engine) Cap() int {
	return e.index.cap
}

// Discovered returns a snapshot of admitted addresses in admission order, with
// current corroboration sets and version counts.
func (e *Engine) Discovered() []models.DiscoveredAddress {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := e.index.Entries()
	for i := range entries {
		entries[i].Versions = e.history.Len(entries[i].Actor)
	}
	return entries
}

// Corroboration returns the sources that delivered address, admitted or not.
func (e *Engine) Corroboration(address string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.Corroboration(address)
}

// History returns the actor's timeline, newest first, and whether the actor is known.
func (e *Engine) History(actor string) ([]models.HistoryEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.history.Len(actor) == 0 {
		return nil, false
	}
	return e.history.Entries(actor), true
}

// Snapshot returns the actor's timeline together with clones of the records
// behind it, read under one lock so both slices line up.
func (e *Engine) Snapshot(actor string) ([]models.HistoryEntry, []*models.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Entries(actor), e.history.Records(actor)
}

// Records returns clones of the actor's records, newest first.
func (e *Engine) Records(actor string) []*models.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Records(actor)
}

// Diff reports tracked field changes between history[i] and history[i+1] for actor.
func (e *Engine) Diff(actor string, i int) []models.FieldChange {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Diff(actor, i)
}

// Actors returns every actor with stored history.
func (e *Engine) Actors() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Actors()
}
