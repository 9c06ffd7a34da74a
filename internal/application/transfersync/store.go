package transfersync

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jerson21/santitelas-frontend-sub003/internal/domain/validation"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/logger"
)

// DefaultTombstoneTTL is how long a terminal id is remembered
const DefaultTombstoneTTL = 10 * time.Minute

// Listener receives change sets in revision order. Listeners run outside the
// store lock and may read the store. A listener must not mutate the store
// synchronously: the nested apply would wait for its own delivery turn.
type Listener func(validation.ChangeSet)

// Snapshot is a full authoritative list of pending validations
type Snapshot struct {
	Entries []validation.Entry
	Source  validation.Source
	// AsOf is the store revision captured when the snapshot was requested.
	// Entries first observed after AsOf are never dropped by this snapshot.
	// Zero means the snapshot reflects server state at apply time.
	AsOf uint64
	// ReceivedAt stamps entries that carry neither a timestamp nor an age
	ReceivedAt time.Time

	// asOfSet makes a zero AsOf literal: the request predates every mutation
	asOfSet bool
}

type record struct {
	req       validation.ValidationRequest
	firstSeen uint64
}

type tombstone struct {
	estado validation.Estado
	at     time.Time
}

// omission remembers the revision at which a snapshot dropped an id, so an
// older snapshot still listing it cannot bring it back
type omission struct {
	revision uint64
	at       time.Time
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithClock overrides the store clock
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithTombstoneTTL sets how long terminal ids are remembered
func WithTombstoneTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.tombstoneTTL = ttl }
}

// Store is the canonical id -> request mapping of pending validations.
// Every mutation goes through apply, which serializes push events, poll
// snapshots and local command marks.
type Store struct {
	mu           sync.Mutex
	entries      map[validation.ID]*record
	tombstones   map[validation.ID]tombstone
	omitted      map[validation.ID]omission
	revision     uint64
	listeners    map[uint64]Listener
	nextListener uint64

	// deliveries are ticketed under mu and run in ticket order under emitMu
	emitMu     sync.Mutex
	emitCond   *sync.Cond
	nextTicket uint64
	turn       uint64

	tombstoneTTL time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewStore creates an empty store. Revisions start at 1.
func NewStore(zl *zap.Logger, opts ...StoreOption) *Store {
	s := &Store{
		entries:      make(map[validation.ID]*record),
		tombstones:   make(map[validation.ID]tombstone),
		omitted:      make(map[validation.ID]omission),
		revision:     1,
		listeners:    make(map[uint64]Listener),
		tombstoneTTL: DefaultTombstoneTTL,
		now:          time.Now,
		logger:       logger.Component(zl, "store"),
	}
	s.emitCond = sync.NewCond(&s.emitMu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a listener and returns its disposer
func (s *Store) Subscribe(l Listener) (dispose func()) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// ReconcileSnapshot merges a full snapshot by id. Known ids keep local flags
// the snapshot does not mention and keep their processing mark. Tracked ids
// missing from the snapshot are dropped as resolved elsewhere. Tombstoned
// ids, and ids a newer snapshot already dropped, are ignored.
func (s *Store) ReconcileSnapshot(snap Snapshot) validation.ChangeSet {
	source := snap.Source
	if source == "" {
		source = validation.SourcePoll
	}
	return s.apply(source, func(m *mutation) {
		receivedAt := snap.ReceivedAt
		if receivedAt.IsZero() {
			receivedAt = m.now
		}
		asOf := snap.AsOf
		if asOf == 0 && !snap.asOfSet {
			asOf = s.revision
		}

		listed := make(map[validation.ID]struct{}, len(snap.Entries))
		for _, e := range snap.Entries {
			if e.ID > 0 {
				if _, dup := listed[e.ID]; dup {
					continue
				}
				listed[e.ID] = struct{}{}
			}
			if err := e.Validate(); err != nil {
				s.logger.Warn("skipping invalid snapshot entry", zap.Error(err))
				continue
			}
			if s.isTombstoned(e.ID) {
				continue
			}
			if rec, ok := s.entries[e.ID]; ok {
				m.merge(rec, e)
				continue
			}
			if om, ok := s.omitted[e.ID]; ok && om.revision > asOf {
				s.logger.Debug("stale snapshot lists an id dropped since it was requested",
					zap.Stringer("id", e.ID),
					zap.Uint64("as_of", asOf),
					zap.Uint64("dropped_at", om.revision))
				continue
			}
			m.add(e.ToRequest(receivedAt))
		}

		for id, rec := range s.entries {
			if _, ok := listed[id]; ok {
				continue
			}
			if rec.firstSeen > asOf {
				continue
			}
			s.logger.Info("validation omitted from snapshot, treating as resolved",
				zap.Stringer("id", id),
				zap.String("source", string(source)))
			m.remove(id, validation.RemovalSnapshotOmitted)
			s.omitted[id] = omission{revision: m.revision, at: m.now}
		}
	})
}

// ReconcilePolled applies a snapshot fetched over HTTP. asOf is the revision
// captured before the fetch started.
func (s *Store) ReconcilePolled(entries []validation.Entry, fetchedAt time.Time, asOf uint64) validation.ChangeSet {
	return s.ReconcileSnapshot(Snapshot{
		Entries:    entries,
		Source:     validation.SourcePoll,
		AsOf:       asOf,
		ReceivedAt: fetchedAt,
		asOfSet:    true,
	})
}

// ReconcileAdd inserts a pushed entry. Known and tombstoned ids are ignored.
func (s *Store) ReconcileAdd(e validation.Entry) validation.ChangeSet {
	return s.apply(validation.SourcePush, func(m *mutation) {
		if err := e.Validate(); err != nil {
			s.logger.Warn("ignoring invalid pushed entry", zap.Error(err))
			return
		}
		if _, ok := s.entries[e.ID]; ok || s.isTombstoned(e.ID) {
			return
		}
		m.add(e.ToRequest(m.now))
	})
}

// ReconcileRemove deletes an id after a terminal event. It is idempotent and
// always leaves a tombstone so stale snapshots cannot resurrect the id.
func (s *Store) ReconcileRemove(id validation.ID, reason validation.RemovalReason) validation.ChangeSet {
	return s.apply(validation.SourcePush, func(m *mutation) {
		s.tombstones[id] = tombstone{estado: reason.Terminal(), at: m.now}
		if _, ok := s.entries[id]; ok {
			m.remove(id, reason)
		}
	})
}

// ReconcileFlagUpdate sets the submitter-disconnected flag on a tracked id.
// Unknown ids are ignored.
func (s *Store) ReconcileFlagUpdate(id validation.ID, flag bool, message string) validation.ChangeSet {
	return s.apply(validation.SourcePush, func(m *mutation) {
		rec, ok := s.entries[id]
		if !ok {
			return
		}
		if rec.req.CajeroDesconectado == flag && rec.req.Mensaje == message {
			return
		}
		rec.req.CajeroDesconectado = flag
		rec.req.Mensaje = message
		m.record(validation.ChangeUpdated, rec.req, "")
	})
}

// MarkProcessing locks a tracked id while a decision is outstanding
func (s *Store) MarkProcessing(id validation.ID) error {
	var err error
	s.apply(validation.SourceCommand, func(m *mutation) {
		rec, ok := s.entries[id]
		if !ok {
			err = validation.ErrValidationNotFound
			return
		}
		if rec.req.Estado == validation.EstadoProcessing {
			return
		}
		rec.req.Estado = validation.EstadoProcessing
		m.record(validation.ChangeProcessing, rec.req, "")
	})
	return err
}

// ReleaseProcessing clears a processing mark. Absent ids are ignored.
func (s *Store) ReleaseProcessing(id validation.ID) {
	s.apply(validation.SourceCommand, func(m *mutation) {
		rec, ok := s.entries[id]
		if !ok || rec.req.Estado != validation.EstadoProcessing {
			return
		}
		rec.req.Estado = validation.EstadoPending
		m.record(validation.ChangeReleased, rec.req, "")
	})
}

// PendingList returns the tracked requests ordered by timestamp, then id
func (s *Store) PendingList() []validation.ValidationRequest {
	s.mu.Lock()
	out := make([]validation.ValidationRequest, 0, len(s.entries))
	for _, rec := range s.entries {
		out = append(out, rec.req)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns the tracked request for id
func (s *Store) Get(id validation.ID) (validation.ValidationRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.entries[id]
	if !ok {
		return validation.ValidationRequest{}, false
	}
	return rec.req, true
}

// Count returns the number of pending requests
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Revision returns the revision of the latest mutation
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Terminal reports whether id has been removed by a terminal event recently
func (s *Store) Terminal(id validation.ID) (validation.Estado, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isTombstoned(id) {
		return "", false
	}
	return s.tombstones[id].estado, true
}

// isTombstoned must be called with mu held
func (s *Store) isTombstoned(id validation.ID) bool {
	ts, ok := s.tombstones[id]
	if !ok {
		return false
	}
	return s.now().Sub(ts.at) < s.tombstoneTTL
}

// pruneTombstones must be called with mu held. Omission marks share the
// tombstone TTL.
func (s *Store) pruneTombstones(now time.Time) {
	for id, ts := range s.tombstones {
		if now.Sub(ts.at) >= s.tombstoneTTL {
			delete(s.tombstones, id)
		}
	}
	for id, om := range s.omitted {
		if now.Sub(om.at) >= s.tombstoneTTL {
			delete(s.omitted, id)
		}
	}
}

type mutation struct {
	store    *Store
	now      time.Time
	revision uint64
	changes  []validation.Change
}

func (m *mutation) record(kind validation.ChangeKind, req validation.ValidationRequest, reason validation.RemovalReason) {
	m.changes = append(m.changes, validation.Change{Kind: kind, ID: req.ID, Request: req, Reason: reason})
}

func (m *mutation) add(req validation.ValidationRequest) {
	m.store.entries[req.ID] = &record{req: req, firstSeen: m.revision}
	delete(m.store.omitted, req.ID)
	m.record(validation.ChangeAdded, req, "")
}

func (m *mutation) remove(id validation.ID, reason validation.RemovalReason) {
	rec := m.store.entries[id]
	delete(m.store.entries, id)
	m.record(validation.ChangeRemoved, rec.req, reason)
}

// merge refreshes server-owned fields of a known record. Local estado and
// the creation timestamp are kept; flags change only when the entry sets them.
func (m *mutation) merge(rec *record, e validation.Entry) {
	next := rec.req
	next.Cajero = e.Cajero
	next.Cliente = e.Cliente
	next.Monto = e.Monto
	next.CuentaDestino = e.CuentaDestino
	next.Referencia = e.Referencia
	next.NumeroVale = e.NumeroVale
	if e.CajeroDesconectado != nil {
		next.CajeroDesconectado = *e.CajeroDesconectado
		if !next.CajeroDesconectado && e.Mensaje == nil {
			next.Mensaje = ""
		}
	}
	if e.Mensaje != nil {
		next.Mensaje = *e.Mensaje
	}
	if sameRequest(rec.req, next) {
		return
	}
	rec.req = next
	m.record(validation.ChangeUpdated, next, "")
}

func sameRequest(a, b validation.ValidationRequest) bool {
	return a.Cajero == b.Cajero &&
		a.Cliente == b.Cliente &&
		a.Monto.Equal(b.Monto) &&
		a.CuentaDestino == b.CuentaDestino &&
		a.Referencia == b.Referencia &&
		a.NumeroVale == b.NumeroVale &&
		a.CajeroDesconectado == b.CajeroDesconectado &&
		a.Mensaje == b.Mensaje
}

// apply is the single reconciliation entry point. It runs fn under the
// store lock, bumps the revision when fn recorded changes, and delivers the
// resulting change set to listeners. The delivery ticket is drawn under mu,
// so deliveries keep revision order without mu being held while waiting.
func (s *Store) apply(source validation.Source, fn func(m *mutation)) validation.ChangeSet {
	s.mu.Lock()
	now := s.now()
	s.pruneTombstones(now)

	prev := len(s.entries)
	m := &mutation{store: s, now: now, revision: s.revision + 1}
	fn(m)

	cs := validation.ChangeSet{
		Revision:  s.revision,
		Source:    source,
		PrevCount: prev,
		Count:     len(s.entries),
		Changes:   m.changes,
	}
	if len(m.changes) == 0 {
		s.mu.Unlock()
		return cs
	}

	s.revision = m.revision
	cs.Revision = m.revision
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}

	ticket := s.nextTicket
	s.nextTicket++
	s.mu.Unlock()

	s.emitMu.Lock()
	for s.turn != ticket {
		s.emitCond.Wait()
	}
	s.emitMu.Unlock()

	defer func() {
		s.emitMu.Lock()
		s.turn++
		s.emitCond.Broadcast()
		s.emitMu.Unlock()
	}()

	for _, l := range listeners {
		s.deliver(l, cs)
	}
	return cs
}

func (s *Store) deliver(l Listener, cs validation.ChangeSet) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("store listener panicked",
				zap.Uint64("revision", cs.Revision),
				zap.Any("panic", r),
				zap.Stack("stacktrace"),
			)
		}
	}()
	l(cs)
}
