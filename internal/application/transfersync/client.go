// Package transfersync keeps the administrator's view of pending transfer
// validations in sync with the POS server and sends approve/reject
// decisions. Push events and poll snapshots are reconciled into one Store;
// the SyncClient wires the transport, the poll fallback, the dispatcher and
// the notification coordinator around it.
package transfersync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jerson21/santitelas-frontend-sub003/internal/application/notification"
	"github.com/jerson21/santitelas-frontend-sub003/internal/domain/validation"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/logger"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/scheduler"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/transport"
)

var (
	// ErrClientClosed is returned by Run after Close
	ErrClientClosed = errors.New("sync client closed")
	// ErrClientRunning is returned when Run is called twice
	ErrClientRunning = errors.New("sync client already running")
	// ErrJournalDisabled is returned by RecentDecisions without a journal
	ErrJournalDisabled = errors.New("decision journal is disabled")
	// ErrMissingDependency is returned by NewSyncClient for incomplete deps
	ErrMissingDependency = errors.New("sync client dependency missing")
)

// ClientDeps are the collaborators a SyncClient drives. Transport, Store,
// Dispatcher and Poller are required.
type ClientDeps struct {
	Transport  *transport.Manager
	Store      *Store
	Dispatcher *Dispatcher
	Poller     *scheduler.PollFallbackScheduler
	Notifier   *notification.Coordinator
	Journal    validation.DecisionJournal
	// Listeners are subscribed to the store for the client's lifetime
	Listeners []Listener
	// Closers release backends (lock, journal database) on Close
	Closers []io.Closer
}

// Status is a point-in-time view of the whole client
type Status struct {
	Identity     Identity             `json:"identity"`
	Transport    transport.Stats      `json:"transport"`
	Poll         scheduler.PollStatus `json:"poll"`
	Pending      int                  `json:"pending"`
	Revision     uint64               `json:"revision"`
	InFlight     []validation.ID      `json:"in_flight"`
	Notification *notification.State  `json:"notification,omitempty"`
}

// SyncClient owns the lifecycle of one administrator session
type SyncClient struct {
	identity   Identity
	token      string
	transport  *transport.Manager
	store      *Store
	dispatcher *Dispatcher
	poller     *scheduler.PollFallbackScheduler
	notifier   *notification.Coordinator
	journal    validation.DecisionJournal
	logger     *zap.Logger
	now        func() time.Time

	running atomic.Bool

	// listAsOf holds the store revision captured for every pending list
	// request still unanswered, oldest first. The server answers in order.
	listMu   sync.Mutex
	listAsOf []uint64

	mu        sync.Mutex
	disposers []func() error
	closed    bool
}

// NewSyncClient wires subscriptions between deps. Every registration is
// pushed on a cleanup stack that Close unwinds in reverse order, so a
// partially constructed client can always be closed.
func NewSyncClient(identity Identity, token string, deps ClientDeps, zl *zap.Logger) (*SyncClient, error) {
	if deps.Transport == nil || deps.Store == nil || deps.Dispatcher == nil || deps.Poller == nil {
		return nil, ErrMissingDependency
	}
	c := &SyncClient{
		identity:   identity,
		token:      token,
		transport:  deps.Transport,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		poller:     deps.Poller,
		notifier:   deps.Notifier,
		journal:    deps.Journal,
		logger:     logger.Component(zl, "sync").With(zap.String("usuario", identity.Usuario)),
		now:        time.Now,
	}

	for _, closer := range deps.Closers {
		c.push(closer.Close)
	}
	if c.notifier != nil {
		c.pushFunc(c.notifier.Close)
	}
	c.pushFunc(c.dispatcher.Close)
	c.pushFunc(c.transport.Disconnect)

	if c.notifier != nil {
		c.pushFunc(c.store.Subscribe(c.notifier.OnChange))
	}
	for _, l := range deps.Listeners {
		c.pushFunc(c.store.Subscribe(l))
	}

	c.pushFunc(c.transport.OnConnected(c.onConnected))
	c.pushFunc(c.transport.OnDisconnected(c.onDisconnected))

	handlers := map[string]transport.Handler{
		EventPendingList:         c.onPendingList,
		EventNewPending:          c.onNewPending,
		EventProcessed:           c.onTerminal(validation.RemovalProcessed),
		EventCancelled:           c.onTerminal(validation.RemovalCancelled),
		EventCashierDisconnected: c.onCashierDisconnected,
		EventError:               c.onServerError,
		EventPeerRequest:         c.onPeerEvent(EventPeerRequest),
		EventPeerCancel:          c.onPeerEvent(EventPeerCancel),
	}
	for event, h := range handlers {
		c.pushFunc(c.transport.Subscribe(event, h))
	}

	return c, nil
}

// Run connects and keeps the poll fallback running until ctx is cancelled.
// Connection failures never end Run; they are retried by the transport and
// covered by polling.
func (c *SyncClient) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.mu.Unlock()
	if !c.running.CompareAndSwap(false, true) {
		return ErrClientRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.pushFunc(cancel)

	connectErr := c.transport.Connect(runCtx, transport.Credentials{Token: c.token})
	if connectErr != nil {
		c.logger.Warn("initial connection failed, relying on poll fallback", zap.Error(connectErr))
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return c.poller.Run(gctx)
	})
	if connectErr != nil {
		g.Go(func() error {
			if err := c.poller.TriggerNow(gctx); err != nil {
				c.logger.Debug("initial poll failed", zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

// Pending returns the current pending list ordered by timestamp, then id
func (c *SyncClient) Pending() []validation.ValidationRequest {
	return c.store.PendingList()
}

// Approve sends an approval and waits for its outcome
func (c *SyncClient) Approve(ctx context.Context, id validation.ID, reason string) (Result, error) {
	return c.dispatcher.Approve(ctx, id, reason)
}

// Reject sends a rejection and waits for its outcome. reason is required.
func (c *SyncClient) Reject(ctx context.Context, id validation.ID, reason string) (Result, error) {
	return c.dispatcher.Reject(ctx, id, reason)
}

// Refresh asks for a fresh snapshot: over the push channel while connected,
// through an immediate poll otherwise
func (c *SyncClient) Refresh(ctx context.Context) error {
	if c.transport.IsConnected() {
		return c.requestSnapshot(ctx)
	}
	return c.poller.TriggerNow(ctx)
}

// Reconnect restarts the transport loop, typically after it gave up
func (c *SyncClient) Reconnect(ctx context.Context) error {
	c.logger.Info("manual reconnect requested")
	return c.transport.Reconnect(ctx)
}

// RecentDecisions lists journaled decisions, newest first
func (c *SyncClient) RecentDecisions(ctx context.Context, limit int) ([]validation.Decision, error) {
	if c.journal == nil {
		return nil, ErrJournalDisabled
	}
	return c.journal.ListRecent(ctx, limit)
}

// Ready reports whether the push session completed its handshake
func (c *SyncClient) Ready() bool {
	return c.transport.IsReady()
}

// Status returns the combined client status
func (c *SyncClient) Status() Status {
	st := Status{
		Identity:  c.identity,
		Transport: c.transport.Stats(),
		Poll:      c.poller.Status(),
		Pending:   c.store.Count(),
		Revision:  c.store.Revision(),
		InFlight:  c.dispatcher.InFlight(),
	}
	if c.notifier != nil {
		ns := c.notifier.State()
		st.Notification = &ns
	}
	return st
}

// Close unwinds the cleanup stack: the poll loop stops, subscriptions are
// disposed, the transport closes, audio stops, the title is restored and
// backends are released. It is idempotent.
func (c *SyncClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	disposers := c.disposers
	c.disposers = nil
	c.mu.Unlock()

	var errs []error
	for i := len(disposers) - 1; i >= 0; i-- {
		if err := c.safeDispose(disposers[i]); err != nil {
			errs = append(errs, err)
		}
	}
	c.logger.Info("sync client closed")
	return errors.Join(errs...)
}

func (c *SyncClient) push(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = c.safeDispose(fn)
		return
	}
	c.disposers = append(c.disposers, fn)
}

func (c *SyncClient) pushFunc(fn func()) {
	c.push(func() error { fn(); return nil })
}

func (c *SyncClient) safeDispose(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("cleanup panicked", zap.Any("panic", r), zap.Stack("stacktrace"))
			err = fmt.Errorf("cleanup panicked: %v", r)
		}
	}()
	return fn()
}

// ---------------------------------------------------------------------------
// Push channel handlers
// ---------------------------------------------------------------------------

func (c *SyncClient) onConnected(ctx context.Context) {
	c.logger.Info("push channel connected, joining as administrator", zap.String("rol", c.identity.Rol))
	join := JoinAdminPayload{Usuario: c.identity.Usuario, Rol: c.identity.Rol}
	if err := c.transport.Emit(ctx, EventJoinAdmin, join); err != nil {
		c.logger.Warn("join_admin failed", zap.Error(err))
		return
	}
	if err := c.requestSnapshot(ctx); err != nil {
		c.logger.Warn("pending list request failed", zap.Error(err))
	}
}

func (c *SyncClient) onDisconnected(err error) {
	c.listMu.Lock()
	c.listAsOf = nil
	c.listMu.Unlock()
	if err != nil {
		c.logger.Warn("push channel lost, poll fallback takes over", zap.Error(err))
		return
	}
	c.logger.Info("push channel closed")
}

func (c *SyncClient) requestSnapshot(ctx context.Context) error {
	c.listMu.Lock()
	asOf := c.store.Revision()
	c.listAsOf = append(c.listAsOf, asOf)
	c.listMu.Unlock()
	if err := c.transport.Emit(ctx, EventRequestPending, struct{}{}); err != nil {
		c.dropListRequest(asOf)
		return err
	}
	return nil
}

// dropListRequest forgets one unanswered request made at asOf
func (c *SyncClient) dropListRequest(asOf uint64) {
	c.listMu.Lock()
	defer c.listMu.Unlock()
	for i := len(c.listAsOf) - 1; i >= 0; i-- {
		if c.listAsOf[i] == asOf {
			c.listAsOf = append(c.listAsOf[:i], c.listAsOf[i+1:]...)
			return
		}
	}
}

// nextListAsOf pops the revision of the oldest unanswered request. An
// unsolicited list has none and is reconciled without an AsOf.
func (c *SyncClient) nextListAsOf() (uint64, bool) {
	c.listMu.Lock()
	defer c.listMu.Unlock()
	if len(c.listAsOf) == 0 {
		return 0, false
	}
	asOf := c.listAsOf[0]
	c.listAsOf = c.listAsOf[1:]
	return asOf, true
}

func (c *SyncClient) onPendingList(_ context.Context, data json.RawMessage) {
	entries, err := validation.DecodeEntries(data)
	if err != nil {
		c.logger.Warn("undecodable pending list", zap.Error(err))
		return
	}
	snap := Snapshot{
		Entries:    entries,
		Source:     validation.SourcePush,
		ReceivedAt: c.now(),
	}
	if asOf, ok := c.nextListAsOf(); ok {
		snap.AsOf = asOf
		snap.asOfSet = true
	}
	cs := c.store.ReconcileSnapshot(snap)
	c.transport.MarkReady()
	c.logger.Debug("pending list applied",
		zap.Int("entries", len(entries)),
		zap.Int("pending", cs.Count),
		zap.Uint64("revision", cs.Revision))
}

func (c *SyncClient) onNewPending(_ context.Context, data json.RawMessage) {
	var e validation.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Warn("undecodable pending transfer", zap.Error(err))
		return
	}
	cs := c.store.ReconcileAdd(e)
	if len(cs.Added()) > 0 {
		c.logger.Info("new transfer pending validation",
			zap.Stringer("id", e.ID),
			zap.String("cajero", e.Cajero),
			zap.Stringer("monto", e.Monto))
	}
}

func (c *SyncClient) onTerminal(reason validation.RemovalReason) transport.Handler {
	return func(_ context.Context, data json.RawMessage) {
		var p idPayload
		if err := json.Unmarshal(data, &p); err != nil || p.ID <= 0 {
			c.logger.Warn("terminal event without a usable id",
				zap.String("reason", string(reason)), zap.Error(err))
			return
		}
		c.store.ReconcileRemove(p.ID, reason)
		fields := []zap.Field{zap.Stringer("id", p.ID), zap.String("reason", string(reason))}
		if p.Motivo != "" {
			fields = append(fields, zap.String("motivo", p.Motivo))
		}
		c.logger.Info("transfer resolved", fields...)
	}
}

func (c *SyncClient) onCashierDisconnected(_ context.Context, data json.RawMessage) {
	var p cashierDisconnectedPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ID <= 0 {
		c.logger.Warn("cashier disconnect event without a usable id", zap.Error(err))
		return
	}
	flag := true
	if p.Desconectado != nil {
		flag = *p.Desconectado
	}
	c.store.ReconcileFlagUpdate(p.ID, flag, p.Mensaje)
}

func (c *SyncClient) onServerError(_ context.Context, data json.RawMessage) {
	p := decodeErrorPayload(data)
	log := c.logger.With(zap.String("error", p.text()))
	if p.ID > 0 && c.dispatcher.OnServerError(p.ID, p.text()) {
		log.Warn("server rejected in-flight decision", zap.Stringer("id", p.ID))
		return
	}
	log.Warn("server reported an error")
}

func (c *SyncClient) onPeerEvent(event string) transport.Handler {
	return func(_ context.Context, data json.RawMessage) {
		c.logger.Debug("ignoring cashier-side event", zap.String("event", event), zap.Int("bytes", len(data)))
	}
}
