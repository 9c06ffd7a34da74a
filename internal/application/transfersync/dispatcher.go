package transfersync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jerson21/santitelas-frontend-sub003/internal/domain/validation"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/logger"
)

// DefaultDecisionTimeout bounds the wait for a decision acknowledgment
const DefaultDecisionTimeout = 15 * time.Second

// Emitter is the slice of the transport the dispatcher needs
type Emitter interface {
	Emit(ctx context.Context, event string, payload any) error
	IsConnected() bool
}

// DecisionObserver receives completed decisions, typically for metrics
type DecisionObserver interface {
	DecisionCompleted(ctx context.Context, approved bool, outcome validation.Outcome, latency time.Duration)
}

// Result describes how a decision ended
type Result struct {
	DecisionID string             `json:"decision_id"`
	ID         validation.ID      `json:"id"`
	Approved   bool               `json:"approved"`
	Outcome    validation.Outcome `json:"outcome"`
	Detail     string             `json:"detail,omitempty"`
	Latency    time.Duration      `json:"latency"`
}

// DispatcherConfig holds dispatcher settings
type DispatcherConfig struct {
	Admin   string
	Timeout time.Duration
	LockTTL time.Duration
}

type ack struct {
	ok     bool
	detail string
}

// Dispatcher sends approve/reject decisions and waits for the server to
// confirm them. A decision is confirmed by the id leaving the store (terminal
// event or snapshot omission), fails on a server error naming the id, and
// times out otherwise.
type Dispatcher struct {
	cfg      DispatcherConfig
	store    *Store
	emitter  Emitter
	lock     validation.DecisionLock
	journal  validation.DecisionJournal
	observer DecisionObserver
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	waiters map[validation.ID]chan ack

	unsubscribe func()
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithJournal records every decision and its outcome
func WithJournal(j validation.DecisionJournal) DispatcherOption {
	return func(d *Dispatcher) { d.journal = j }
}

// WithDecisionObserver reports completed decisions
func WithDecisionObserver(o DecisionObserver) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

// NewDispatcher creates a dispatcher bound to store. Close releases the store
// subscription.
func NewDispatcher(cfg DispatcherConfig, store *Store, emitter Emitter, lock validation.DecisionLock, zl *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDecisionTimeout
	}
	if cfg.LockTTL < cfg.Timeout {
		cfg.LockTTL = 2 * cfg.Timeout
	}
	d := &Dispatcher{
		cfg:     cfg,
		store:   store,
		emitter: emitter,
		lock:    lock,
		logger:  logger.Component(zl, "dispatcher"),
		now:     time.Now,
		waiters: make(map[validation.ID]chan ack),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.unsubscribe = store.Subscribe(d.onChange)
	return d
}

// Close detaches the dispatcher from the store
func (d *Dispatcher) Close() {
	d.unsubscribe()
}

// Approve is Decide with approved=true
func (d *Dispatcher) Approve(ctx context.Context, id validation.ID, reason string) (Result, error) {
	return d.Decide(ctx, id, true, reason)
}

// Reject is Decide with approved=false
func (d *Dispatcher) Reject(ctx context.Context, id validation.ID, reason string) (Result, error) {
	return d.Decide(ctx, id, false, reason)
}

// Decide sends one decision for id and waits for its outcome. Precondition
// failures return an error and send nothing. Once sent, the outcome is
// reported in Result and the processing mark is released unless the id left
// the store.
func (d *Dispatcher) Decide(ctx context.Context, id validation.ID, approved bool, reason string) (Result, error) {
	res := Result{ID: id, Approved: approved}

	if !d.emitter.IsConnected() {
		return res, validation.ErrNotConnected
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		if !approved {
			return res, validation.ErrReasonRequired
		}
		reason = "Aprobado por " + d.cfg.Admin
	}
	req, ok := d.store.Get(id)
	if !ok {
		return res, validation.ErrValidationNotFound
	}

	acquired, err := d.lock.Acquire(ctx, id, d.cfg.LockTTL)
	if err != nil {
		return res, fmt.Errorf("acquire decision lock for %s: %w", id, err)
	}
	if !acquired {
		return res, validation.ErrDecisionInFlight
	}
	defer func() {
		if err := d.lock.Release(context.WithoutCancel(ctx), id); err != nil {
			d.logger.Warn("release decision lock", zap.Stringer("id", id), zap.Error(err))
		}
	}()

	wait, ok := d.register(id)
	if !ok {
		return res, validation.ErrDecisionInFlight
	}
	defer d.unregister(id)

	if err := d.store.MarkProcessing(id); err != nil {
		return res, err
	}

	started := d.now()
	res.DecisionID = uuid.NewString()
	log := logger.L(ctx, d.logger).With(
		zap.String("decision_id", res.DecisionID),
		zap.Stringer("id", id),
		zap.Bool("approved", approved))
	d.record(ctx, &validation.Decision{
		DecisionID:   res.DecisionID,
		ValidationID: id,
		Approved:     approved,
		Reason:       reason,
		Admin:        d.cfg.Admin,
		Monto:        req.Monto.String(),
		Outcome:      validation.OutcomePending,
		RequestedAt:  started,
	})

	err = d.emitter.Emit(ctx, EventRespondDecision, DecisionPayload{
		ID:            id,
		Validada:      approved,
		Observaciones: reason,
		AdminUsuario:  d.cfg.Admin,
	})
	if err != nil {
		res.Outcome = validation.OutcomeFailed
		res.Detail = "send failed: " + err.Error()
		d.finish(ctx, &res, started, log)
		return res, nil
	}
	log.Info("decision sent")

	timer := time.NewTimer(d.cfg.Timeout)
	defer timer.Stop()

	select {
	case a := <-wait:
		res.Outcome = validation.OutcomeFailed
		if a.ok {
			res.Outcome = validation.OutcomeOk
		}
		res.Detail = a.detail
	case <-timer.C:
		res.Outcome = validation.OutcomeTimedOut
		res.Detail = fmt.Sprintf("no confirmation within %s", d.cfg.Timeout)
	case <-ctx.Done():
		res.Outcome = validation.OutcomeTimedOut
		res.Detail = "caller gave up: " + ctx.Err().Error()
		d.finish(ctx, &res, started, log)
		return res, ctx.Err()
	}

	d.finish(ctx, &res, started, log)
	return res, nil
}

// OnServerError fails the in-flight decision for id, if any
func (d *Dispatcher) OnServerError(id validation.ID, detail string) bool {
	return d.signal(id, ack{ok: false, detail: detail})
}

// InFlight returns the ids with an outstanding decision
func (d *Dispatcher) InFlight() []validation.ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]validation.ID, 0, len(d.waiters))
	for id := range d.waiters {
		out = append(out, id)
	}
	return out
}

func (d *Dispatcher) onChange(cs validation.ChangeSet) {
	for _, c := range cs.Removed() {
		d.signal(c.ID, ack{ok: true, detail: string(c.Reason)})
	}
}

func (d *Dispatcher) signal(id validation.ID, a ack) bool {
	d.mu.Lock()
	ch, ok := d.waiters[id]
	d.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- a:
	default:
	}
	return true
}

func (d *Dispatcher) register(id validation.ID) (<-chan ack, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.waiters[id]; exists {
		return nil, false
	}
	ch := make(chan ack, 1)
	d.waiters[id] = ch
	return ch, true
}

func (d *Dispatcher) unregister(id validation.ID) {
	d.mu.Lock()
	delete(d.waiters, id)
	d.mu.Unlock()
}

func (d *Dispatcher) finish(ctx context.Context, res *Result, started time.Time, log *zap.Logger) {
	completed := d.now()
	res.Latency = completed.Sub(started)

	if res.Outcome != validation.OutcomeOk {
		d.store.ReleaseProcessing(res.ID)
		log.Warn("decision not confirmed",
			zap.String("outcome", string(res.Outcome)),
			zap.String("detail", res.Detail),
			zap.Duration("latency", res.Latency))
	} else {
		log.Info("decision confirmed", zap.Duration("latency", res.Latency))
	}

	if d.journal != nil {
		jctx := context.WithoutCancel(ctx)
		if err := d.journal.Complete(jctx, res.DecisionID, res.Outcome, res.Detail, completed); err != nil {
			d.logger.Warn("journal completion failed", zap.String("decision_id", res.DecisionID), zap.Error(err))
		}
	}
	if d.observer != nil {
		d.observer.DecisionCompleted(ctx, res.Approved, res.Outcome, res.Latency)
	}
}

func (d *Dispatcher) record(ctx context.Context, dec *validation.Decision) {
	if d.journal == nil {
		return
	}
	if err := d.journal.Record(context.WithoutCancel(ctx), dec); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("journal record failed", zap.String("decision_id", dec.DecisionID), zap.Error(err))
	}
}
