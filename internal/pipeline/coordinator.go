package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/ligue-crm/internal/entity"
)

const DefaultBackendTimeout = 10 * time.Second

// Phase is the drag-and-drop state. The coordinator itself only moves between
// Idle, Dragging and Resolving; Committed and RolledBack are reported per Move.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDragging
	PhaseResolving
	PhaseCommitted
	PhaseRolledBack
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDragging:
		return "dragging"
	case PhaseResolving:
		return "resolving"
	case PhaseCommitted:
		return "committed"
	case PhaseRolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// LeadStore is the part of the lead repository the coordinator needs.
type LeadStore interface {
	LeadLister
	Update(ctx context.Context, id string, patch entity.LeadPatch) (*entity.Lead, error)
}

type StatusChange struct {
	LeadID string        `json:"lead_id"`
	From   entity.Status `json:"from"`
	To     entity.Status `json:"to"`
	At     time.Time     `json:"at"`
}

// StatusChangePublisher is told about every committed move.
type StatusChangePublisher interface {
	PublishStatusChanged(ctx context.Context, change StatusChange) error
}

type Option func(*Coordinator)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout bounds each backend call. A timeout takes the failure path.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithPublisher(p StatusChangePublisher) Option {
	return func(c *Coordinator) { c.publisher = p }
}

// WithObserver registers fn to be called with the outcome of every drop.
func WithObserver(fn func(Outcome)) Option {
	return func(c *Coordinator) { c.observer = fn }
}

// Coordinator turns drops into optimistic status changes. It is the only
// writer of individual lead statuses in the Cache.
type Coordinator struct {
	cache     *Cache
	store     LeadStore
	logger    *zap.Logger
	timeout   time.Duration
	publisher StatusChangePublisher
	observer  func(Outcome)

	mu       sync.Mutex
	phase    Phase
	dragging string

	inflight sync.WaitGroup
}

func NewCoordinator(cache *Cache, store LeadStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		cache:   cache,
		store:   store,
		logger:  zap.NewNop(),
		timeout: DefaultBackendTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DragStart records the picked-up lead. It returns false when the lead is
// unknown to the cache.
func (c *Coordinator) DragStart(leadID string) bool {
	if _, ok := c.cache.Get(leadID); !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseDragging
	c.dragging = leadID
	return true
}

// DragCancel abandons the current drag without a drop.
func (c *Coordinator) DragCancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseIdle
	c.dragging = ""
}

func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Dragging returns the lead currently picked up, if any.
func (c *Coordinator) Dragging() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dragging, c.dragging != ""
}

// OnDrop moves draggedID to the column designated by targetID. targetID is a
// status or another lead's ID. The cache write is done before OnDrop returns;
// the backend update runs in the background and the returned Move reports
// its outcome.
func (c *Coordinator) OnDrop(ctx context.Context, draggedID, targetID string) *Move {
	c.mu.Lock()
	c.phase = PhaseResolving
	c.dragging = ""
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.phase = PhaseIdle
		c.mu.Unlock()
	}()

	lead, ok := c.cache.Get(draggedID)
	if !ok {
		return c.noop(draggedID, "")
	}

	to, ok := resolveTarget(ParseDropTarget(targetID), c.cache)
	if !ok || to == lead.Status {
		return c.noop(draggedID, lead.Status)
	}

	move := newMove(draggedID, lead.Status, to)
	var prev entity.Status

	op := Optimistic[uint64]{
		Apply: func() (uint64, bool) {
			p, version, ok := c.cache.setStatus(draggedID, to)
			prev = p
			return version, ok
		},
		Confirm: func(ctx context.Context) error {
			_, err := c.store.Update(ctx, draggedID, entity.LeadPatch{Status: &to})
			return err
		},
		Revert: func(ctx context.Context, version uint64) bool {
			return c.rollback(ctx, draggedID, version, prev)
		},
		Settle: func(version uint64) {
			c.cache.settle(draggedID, version)
		},
	}

	// setStatus re-checks the status under the cache lock, so a drop that
	// raced with another one on the same lead still ends as a no-op.
	finish, err := op.Start()
	if err != nil {
		if prev == "" {
			prev = lead.Status
		}
		return c.noop(draggedID, prev)
	}
	move.From = prev

	base := context.WithoutCancel(ctx)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		callCtx, cancel := context.WithTimeout(base, c.timeout)
		outcome, err := finish(callCtx)
		cancel()

		c.report(base, move, outcome, err)
		move.finish(outcome, err)
	}()

	return move
}

// Wait blocks until every backend call started by OnDrop has finished.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}

func (c *Coordinator) noop(leadID string, status entity.Status) *Move {
	m := newMove(leadID, status, status)
	m.finish(OutcomeNoop, nil)
	if c.observer != nil {
		c.observer(OutcomeNoop)
	}
	return m
}

// rollback discards the optimistic value by reloading from the store, but
// only while it is still the latest write for the lead.
func (c *Coordinator) rollback(ctx context.Context, id string, version uint64, prev entity.Status) bool {
	if !c.cache.isCurrent(id, version) {
		return false
	}
	c.cache.discard(id, version)

	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	if err := c.cache.Refresh(refreshCtx, c.store); err != nil {
		c.logger.Warn("cache refresh after failed move failed, restoring previous status",
			zap.String("lead_id", id),
			zap.String("status", string(prev)),
			zap.Error(err))
		return c.cache.restoreStatus(id, version, prev)
	}
	return true
}

func (c *Coordinator) report(ctx context.Context, move *Move, outcome Outcome, err error) {
	fields := []zap.Field{
		zap.String("lead_id", move.LeadID),
		zap.String("from", string(move.From)),
		zap.String("to", string(move.To)),
		zap.Stringer("outcome", outcome),
	}

	switch outcome {
	case OutcomeCommitted:
		c.logger.Info("lead moved", fields...)
		if c.publisher != nil {
			change := StatusChange{LeadID: move.LeadID, From: move.From, To: move.To, At: time.Now()}
			if pubErr := c.publisher.PublishStatusChanged(ctx, change); pubErr != nil {
				c.logger.Warn("failed to publish status change", append(fields, zap.Error(pubErr))...)
			}
		}
	default:
		c.logger.Warn("lead move rejected by store", append(fields, zap.Error(err))...)
	}

	if c.observer != nil {
		c.observer(outcome)
	}
}

// Move is the handle of one drop.
type Move struct {
	LeadID string
	From   entity.Status
	To     entity.Status

	done    chan struct{}
	mu      sync.Mutex
	outcome Outcome
	err     error
}

func newMove(leadID string, from, to entity.Status) *Move {
	return &Move{LeadID: leadID, From: from, To: to, done: make(chan struct{})}
}

func (m *Move) finish(outcome Outcome, err error) {
	m.mu.Lock()
	m.outcome = outcome
	m.err = err
	m.mu.Unlock()
	close(m.done)
}

func (m *Move) Done() <-chan struct{} {
	return m.done
}

// Outcome returns OutcomePending until the backend call has finished.
func (m *Move) Outcome() Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcome
}

// Err is the backend error behind a rollback, if any.
func (m *Move) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Move) Phase() Phase {
	switch m.Outcome() {
	case OutcomePending:
		return PhaseResolving
	case OutcomeCommitted:
		return PhaseCommitted
	case OutcomeRolledBack, OutcomeSuperseded:
		return PhaseRolledBack
	}
	return PhaseIdle
}

func (m *Move) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-m.done:
		return m.Outcome(), m.Err()
	case <-ctx.Done():
		return OutcomePending, ctx.Err()
	}
}
