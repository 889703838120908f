package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pinreview/backend/internal/models"
)

// docState is the engine's view of one target.
type docState struct {
	target   models.AnnotationTarget
	comments []models.Comment
}

func (d docState) clone() docState {
	return docState{target: d.target.Clone(), comments: models.CloneComments(d.comments)}
}

func (d *docState) comment(id string) (models.Comment, bool) {
	for i := range d.comments {
		if d.comments[i].ID == id {
			return d.comments[i], true
		}
	}
	return models.Comment{}, false
}

// pendingOp is an optimistic mutation whose remote write has not settled.
// apply must be idempotent: it is replayed over every new snapshot.
type pendingOp struct {
	id    uint64
	apply func(*docState)
}

type targetState struct {
	base    docState
	pending []pendingOp
	view    docState
	queue   *writeQueue
	cancel  context.CancelFunc
	refs    int
}

func (s *targetState) recompute() {
	view := s.base.clone()
	for _, op := range s.pending {
		op.apply(&view)
	}
	s.view = view
}

// Coordinator applies mutations optimistically and syncs them to the store.
type Coordinator struct {
	store  Store
	mirror TaskMirror
	logger *zap.Logger

	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	targets map[string]*targetState
	opSeq   uint64

	hub      *hub
	inflight sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithIDs replaces the uuid generator.
func WithIDs(newID func() string) Option {
	return func(c *Coordinator) { c.newID = newID }
}

// NewCoordinator creates a coordinator. mirror may be nil, in which case
// due dates are stored but not mirrored.
func NewCoordinator(store Store, mirror TaskMirror, logger *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   store,
		mirror:  mirror,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		targets: make(map[string]*targetState),
		hub:     newHub(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open loads a target and starts following its canonical snapshots. Every
// Open must be paired with a Close.
func (c *Coordinator) Open(ctx context.Context, targetID string) (*models.AnnotationTarget, error) {
	c.mu.Lock()
	if st, ok := c.targets[targetID]; ok {
		st.refs++
		t := st.view.target.Clone()
		c.mu.Unlock()
		return &t, nil
	}
	c.mu.Unlock()

	target, err := c.store.GetTarget(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("open target %s: %w", targetID, err)
	}
	comments, err := c.store.ListComments(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("load comments of %s: %w", targetID, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	snapshots, err := c.store.Subscribe(subCtx, targetID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to %s: %w", targetID, err)
	}

	c.mu.Lock()
	if st, ok := c.targets[targetID]; ok {
		// lost a race with another Open
		st.refs++
		t := st.view.target.Clone()
		c.mu.Unlock()
		cancel()
		return &t, nil
	}
	st := &targetState{
		base:   docState{target: target.Clone(), comments: models.CloneComments(comments)},
		queue:  newWriteQueue(),
		cancel: cancel,
		refs:   1,
	}
	st.recompute()
	c.targets[targetID] = st
	t := st.view.target.Clone()
	c.mu.Unlock()

	go c.follow(targetID, st, snapshots)

	c.logger.Info("Opened target", zap.String("target_id", targetID), zap.Int("comments", len(comments)))
	return &t, nil
}

// Close releases one Open of the target. Writes already issued still run.
func (c *Coordinator) Close(targetID string) {
	c.mu.Lock()
	st, ok := c.targets[targetID]
	if !ok {
		c.mu.Unlock()
		return
	}
	st.refs--
	if st.refs > 0 {
		c.mu.Unlock()
		return
	}
	delete(c.targets, targetID)
	c.mu.Unlock()

	st.cancel()
	st.queue.close()
	c.logger.Info("Closed target", zap.String("target_id", targetID))
}

// Wait blocks until every issued remote write has settled.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}

// Shutdown closes every open target and waits for in-flight writes or ctx.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	states := c.targets
	c.targets = make(map[string]*targetState)
	c.mu.Unlock()

	for _, st := range states {
		st.cancel()
		st.queue.close()
	}

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns the events of a target and a function to stop them.
func (c *Coordinator) Subscribe(targetID string) (<-chan Event, func()) {
	return c.hub.subscribe(targetID)
}

// Comments returns the local view of a target's comments.
func (c *Coordinator) Comments(targetID string) ([]models.Comment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.targets[targetID]
	if !ok {
		return nil, ErrTargetNotOpen
	}
	return models.CloneComments(st.view.comments), nil
}

// Target returns the local view of an open target.
func (c *Coordinator) Target(targetID string) (*models.AnnotationTarget, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.targets[targetID]
	if !ok {
		return nil, ErrTargetNotOpen
	}
	t := st.view.target.Clone()
	return &t, nil
}

// follow reconciles canonical snapshots until the subscription ends. A
// tombstone, or the store ending the subscription on its own, retires st.
func (c *Coordinator) follow(targetID string, st *targetState, snapshots <-chan models.Snapshot) {
	for snap := range snapshots {
		if snap.Deleted {
			break
		}
		c.reconcile(targetID, snap)
	}
	if c.retire(targetID, st) {
		c.logger.Info("Target deleted remotely", zap.String("target_id", targetID))
		c.hub.publish(Event{Type: EventDeleted, TargetID: targetID})
	}
}

// retire drops st if it is still the open state of targetID. Writes already
// queued still run. It reports whether st was dropped.
func (c *Coordinator) retire(targetID string, st *targetState) bool {
	c.mu.Lock()
	cur, ok := c.targets[targetID]
	if !ok || cur != st {
		c.mu.Unlock()
		return false
	}
	delete(c.targets, targetID)
	c.mu.Unlock()

	st.cancel()
	st.queue.close()
	return true
}

func (c *Coordinator) reconcile(targetID string, snap models.Snapshot) {
	c.mu.Lock()
	st, ok := c.targets[targetID]
	if !ok {
		c.mu.Unlock()
		return
	}
	if snap.Target != nil {
		st.base.target = snap.Target.Clone()
	}
	st.base.comments = models.CloneComments(snap.Comments)
	st.recompute()
	view := st.view.clone()
	pending := len(st.pending)
	c.mu.Unlock()

	c.logger.Debug("Reconciled snapshot",
		zap.String("target_id", targetID),
		zap.Int("comments", len(snap.Comments)),
		zap.Int("pending", pending),
	)
	c.publishView(targetID, view, snap.Target != nil)
}

func (c *Coordinator) publishView(targetID string, view docState, withTarget bool) {
	c.hub.publish(Event{Type: EventComments, TargetID: targetID, Comments: view.comments})
	if withTarget {
		t := view.target
		c.hub.publish(Event{Type: EventTarget, TargetID: targetID, Target: &t})
	}
}

// mutation is what a public operation hands to mutate.
type mutation struct {
	op        string
	commentID string
	apply     func(*docState)
	remote    func(ctx context.Context) error
	// after runs once the mutation is confirmed, still in issue order.
	after func(ctx context.Context)
	// touchesTarget publishes a target event along with the comments.
	touchesTarget bool
}

// mutate runs prepare under the lock against the current view, applies the
// resulting mutation locally and queues its remote write.
func (c *Coordinator) mutate(targetID string, prepare func(view *docState) (mutation, error)) error {
	c.mu.Lock()
	st, ok := c.targets[targetID]
	if !ok {
		c.mu.Unlock()
		return ErrTargetNotOpen
	}
	m, err := prepare(&st.view)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	c.opSeq++
	opID := c.opSeq
	st.pending = append(st.pending, pendingOp{id: opID, apply: m.apply})
	st.recompute()
	view := st.view.clone()

	c.inflight.Add(1)
	queued := st.queue.push(func() {
		defer c.inflight.Done()
		ctx := context.Background()
		err := m.remote(ctx)
		c.settle(targetID, opID, m, err)
		if err == nil && m.after != nil {
			m.after(ctx)
		}
	})
	if !queued {
		c.inflight.Done()
	}
	c.mu.Unlock()

	c.publishView(targetID, view, m.touchesTarget)
	return nil
}

// settle folds a confirmed mutation into the base state or drops a
// rejected one.
func (c *Coordinator) settle(targetID string, opID uint64, m mutation, err error) {
	c.mu.Lock()
	st, ok := c.targets[targetID]
	if !ok {
		c.mu.Unlock()
		if err != nil {
			c.warn(targetID, m.commentID, m.op, err, false)
		}
		return
	}
	for i, op := range st.pending {
		if op.id == opID {
			st.pending = append(st.pending[:i], st.pending[i+1:]...)
			break
		}
	}
	if err == nil {
		m.apply(&st.base)
	}
	st.recompute()
	view := st.view.clone()
	c.mu.Unlock()

	if err != nil {
		c.warn(targetID, m.commentID, m.op, err, true)
		c.publishView(targetID, view, m.touchesTarget)
	}
}

// fold applies a confirmed follow-up change, such as a linked task id, to
// both the base and the view.
func (c *Coordinator) fold(targetID string, apply func(*docState)) {
	c.mu.Lock()
	st, ok := c.targets[targetID]
	if !ok {
		c.mu.Unlock()
		return
	}
	apply(&st.base)
	st.recompute()
	view := st.view.clone()
	c.mu.Unlock()

	c.publishView(targetID, view, false)
}

func (c *Coordinator) warn(targetID, commentID, op string, err error, reverted bool) {
	c.logger.Warn("Remote write failed",
		zap.String("target_id", targetID),
		zap.String("comment_id", commentID),
		zap.String("op", op),
		zap.Bool("reverted", reverted),
		zap.Error(err),
	)
	w := &Warning{
		TargetID:  targetID,
		CommentID: commentID,
		Op:        op,
		Message:   err.Error(),
		Reverted:  reverted,
		At:        c.now(),
	}
	c.hub.publish(Event{Type: EventWarning, TargetID: targetID, Warning: w})
}
