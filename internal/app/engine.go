// Package engine provides the core labeling service that implements
// the dependencies required by the HTTP API: task allocation under the
// redundancy cap, submission recording with consensus evaluation,
// conflict review, payroll settlement and per-annotator stats.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/adapters/journal"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/adapters/repository"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/consensus"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/model"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/pkg/logger"
)

// Default engine configuration constants.
const (
	defaultRedundancy     = 5
	defaultReservationTTL = 15 * time.Minute
	defaultSweepInterval  = time.Minute
	defaultDefaultBounty  = 0.50
	defaultMaxBounty      = 1000
	defaultJournalSize    = 1024
)

// Caller identifies who is invoking an operation. Identity and role are
// established by an out-of-scope session layer and passed in opaque.
type Caller struct {
	ID   string
	Role model.Role
}

// Engine implements the API dependencies for the labeling system.
// Every operation runs inside exactly one store transaction so it
// either fully applies or leaves no trace.
type Engine struct {
	mu sync.RWMutex

	// Core components
	store    repository.Store
	resolver *consensus.Resolver
	journal  journal.Journal

	// Configuration
	redundancy     int
	reservationTTL time.Duration
	sweepInterval  time.Duration
	defaultBounty  float64
	maxBounty      float64
	journalSize    int

	// State
	started bool
	stopCh  chan struct{}
	now     func() time.Time

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithStore sets the entity store. Defaults to an in-memory store.
func WithStore(store repository.Store) Option {
	return func(e *Engine) {
		if store != nil {
			e.store = store
		}
	}
}

// WithRedundancy sets the per-task cap N.
func WithRedundancy(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.redundancy = n
		}
	}
}

// WithReservationTTL sets how long an unsubmitted reservation holds its
// slot before the sweeper reclaims it.
func WithReservationTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.reservationTTL = ttl
		}
	}
}

// WithSweepInterval sets how often the reservation sweeper runs.
func WithSweepInterval(interval time.Duration) Option {
	return func(e *Engine) {
		if interval > 0 {
			e.sweepInterval = interval
		}
	}
}

// WithBountyLimits sets the default and maximum task bounty.
func WithBountyLimits(def, max float64) Option {
	return func(e *Engine) {
		if def > 0 {
			e.defaultBounty = def
		}
		if max >= def {
			e.maxBounty = max
		}
	}
}

// WithJournalSize bounds the audit journal.
func WithJournalSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.journalSize = size
		}
	}
}

// WithClock sets the time source. Used by tests to drive reservation
// expiry deterministically.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New constructs a new Engine with default configuration.
func New(opts ...Option) *Engine {
	e := &Engine{
		redundancy:     defaultRedundancy,
		reservationTTL: defaultReservationTTL,
		sweepInterval:  defaultSweepInterval,
		defaultBounty:  defaultDefaultBounty,
		maxBounty:      defaultMaxBounty,
		journalSize:    defaultJournalSize,
		stopCh:         make(chan struct{}),
		now:            func() time.Time { return time.Now().UTC() },
		logger:         nil, // Will be replaced when the engine starts
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Start initializes the engine components and launches the background
// sweeper and journal drain loops.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}

	if e.logger == nil {
		e.logger = logger.Get()
	}

	e.logger.Info(ctx, "starting labeling engine...")

	if e.store == nil {
		e.store = repository.NewMemStore(ctx)
		e.logger.Info(ctx, "using in-memory store")
	}
	e.resolver = consensus.New(consensus.WithRedundancy(e.redundancy))
	e.journal = journal.NewInMemoryJournal(journal.WithCapacity(e.journalSize))

	go e.drainLoop(ctx)
	go e.sweepLoop(ctx)

	e.started = true
	e.logger.Info(ctx, "labeling engine started",
		logger.Int("redundancy", e.redundancy),
		logger.Any("reservationTTL", e.reservationTTL),
		logger.Any("sweepInterval", e.sweepInterval),
	)

	return nil
}

// Stop gracefully shuts down the engine.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return
	}

	ctx := context.Background()
	e.logger.Info(ctx, "stopping labeling engine...")

	select {
	case <-e.stopCh:
		// Channel already closed
	default:
		close(e.stopCh)
	}

	if e.journal != nil {
		_ = e.journal.Close()
	}
	if e.store != nil {
		_ = e.store.Close()
	}

	e.started = false
	e.logger.Info(ctx, "labeling engine stopped")
}

// Redundancy returns the configured per-task cap N.
func (e *Engine) Redundancy() int {
	return e.redundancy
}

// GetStats returns engine statistics for monitoring.
func (e *Engine) GetStats() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := map[string]interface{}{
		"started":          e.started,
		"redundancy":       e.redundancy,
		"reservationTTLMS": e.reservationTTL.Milliseconds(),
	}
	if e.started && e.journal != nil {
		stats["journalLength"] = e.journal.Len(context.Background())
	}
	return stats
}

// record publishes a best-effort audit event.
func (e *Engine) record(ctx context.Context, ev journal.Event) {
	ev.At = e.now()
	if e.journal == nil {
		return
	}
	e.journal.Publish(ctx, ev)
}
