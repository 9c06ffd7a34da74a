package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jerson21/santitelas-frontend-sub003/internal/domain/validation"
)

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// Fetcher retrieves the full pending list. Entries carry absolute creation
// timestamps relative to fetchedAt.
type Fetcher interface {
	Fetch(ctx context.Context) (entries []validation.Entry, fetchedAt time.Time, err error)
}

// SnapshotSink applies a polled snapshot. asOf is the sink revision captured
// before the fetch started.
type SnapshotSink interface {
	Revision() uint64
	ReconcilePolled(entries []validation.Entry, fetchedAt time.Time, asOf uint64) validation.ChangeSet
}

// PollObserver is notified after every fetch, typically for metrics
type PollObserver interface {
	PollCompleted(ctx context.Context, err error, count int, latency time.Duration)
}

// ---------------------------------------------------------------------------
// PollFallbackConfig
// ---------------------------------------------------------------------------

// PollFallbackConfig holds configuration for the poll fallback scheduler
type PollFallbackConfig struct {
	// Interval is the fixed delay between ticks
	Interval time.Duration
	// Timeout bounds a single fetch
	Timeout time.Duration
}

// DefaultPollFallbackConfig returns default configuration
func DefaultPollFallbackConfig() PollFallbackConfig {
	return PollFallbackConfig{
		Interval: 10 * time.Second,
		Timeout:  8 * time.Second,
	}
}

// Validate validates the configuration
func (c *PollFallbackConfig) Validate() error {
	if c.Interval <= 0 {
		return ErrInvalidConfig
	}
	if c.Timeout <= 0 || c.Timeout > c.Interval {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// PollFallbackScheduler
// ---------------------------------------------------------------------------

// PollStatus reports the outcome of the most recent polls
type PollStatus struct {
	Active        bool      `json:"active"`
	InFlight      bool      `json:"in_flight"`
	LastPollAt    time.Time `json:"last_poll_at,omitempty"`
	LastSuccessAt time.Time `json:"last_success_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	Polls         uint64    `json:"polls"`
	Failures      uint64    `json:"failures"`
	Skipped       uint64    `json:"skipped"`
}

// PollFallbackScheduler keeps the store fresh over HTTP while the push
// channel is down. Ticks while active() reports false are ignored, and at
// most one fetch is outstanding at a time.
type PollFallbackScheduler struct {
	config   PollFallbackConfig
	fetcher  Fetcher
	sink     SnapshotSink
	active   func() bool
	observer PollObserver
	logger   *zap.Logger
	now      func() time.Time

	running  atomic.Bool
	inFlight atomic.Bool

	statusMu sync.RWMutex
	status   PollStatus
}

// PollOption configures a PollFallbackScheduler
type PollOption func(*PollFallbackScheduler)

// WithPollObserver reports every fetch result
func WithPollObserver(o PollObserver) PollOption {
	return func(s *PollFallbackScheduler) { s.observer = o }
}

// WithPollClock overrides the clock used for status timestamps
func WithPollClock(now func() time.Time) PollOption {
	return func(s *PollFallbackScheduler) { s.now = now }
}

// NewPollFallbackScheduler creates a new scheduler. pushConnected reports
// whether the push channel is up; ticks are skipped while it returns true.
func NewPollFallbackScheduler(config PollFallbackConfig, fetcher Fetcher, sink SnapshotSink, pushConnected func() bool, logger *zap.Logger, opts ...PollOption) (*PollFallbackScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if pushConnected == nil {
		pushConnected = func() bool { return false }
	}

	s := &PollFallbackScheduler{
		config:  config,
		fetcher: fetcher,
		sink:    sink,
		active:  func() bool { return !pushConnected() },
		logger:  logger.Named("poll"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run ticks until ctx is cancelled. It returns nil on cancellation.
func (s *PollFallbackScheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSchedulerRunning
	}
	defer s.running.Store(false)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info("Poll fallback scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("timeout", s.config.Timeout),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Poll fallback scheduler stopped")
			return nil
		case <-ticker.C:
			active := s.active()
			s.setActive(active)
			if !active {
				continue
			}
			if err := s.poll(ctx); errors.Is(err, ErrPollInFlight) {
				s.statusMu.Lock()
				s.status.Skipped++
				s.statusMu.Unlock()
				s.logger.Debug("Poll tick skipped, fetch still in flight")
			}
		}
	}
}

// TriggerNow runs an immediate fetch through the same single-flight guard,
// regardless of the push channel state.
func (s *PollFallbackScheduler) TriggerNow(ctx context.Context) error {
	return s.poll(ctx)
}

// Status returns a copy of the current poll status
func (s *PollFallbackScheduler) Status() PollStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st := s.status
	st.InFlight = s.inFlight.Load()
	return st
}

func (s *PollFallbackScheduler) setActive(active bool) {
	s.statusMu.Lock()
	changed := s.status.Active != active
	s.status.Active = active
	s.statusMu.Unlock()
	if changed {
		s.logger.Info("Poll fallback state changed", zap.Bool("active", active))
	}
}

// poll performs one guarded fetch and applies its snapshot
func (s *PollFallbackScheduler) poll(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrPollInFlight
	}
	defer s.inFlight.Store(false)

	asOf := s.sink.Revision()
	started := s.now()

	fetchCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	entries, fetchedAt, err := s.fetcher.Fetch(fetchCtx)
	latency := s.now().Sub(started)

	s.statusMu.Lock()
	s.status.Polls++
	s.status.LastPollAt = started
	if err != nil {
		s.status.Failures++
		s.status.LastError = err.Error()
	} else {
		s.status.LastSuccessAt = fetchedAt
		s.status.LastError = ""
	}
	s.statusMu.Unlock()

	if s.observer != nil {
		s.observer.PollCompleted(ctx, err, len(entries), latency)
	}

	if err != nil {
		s.logger.Warn("Poll fetch failed, keeping cached list",
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return err
	}

	cs := s.sink.ReconcilePolled(entries, fetchedAt, asOf)
	s.logger.Debug("Poll snapshot applied",
		zap.Int("entries", len(entries)),
		zap.Int("changes", len(cs.Changes)),
		zap.Uint64("as_of", asOf),
		zap.Duration("latency", latency),
	)
	return nil
}
