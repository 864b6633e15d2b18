package relsync

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/d60-Lab/followsync/pkg/logger"
)

// DefaultConfirmTimeout bounds how long an edge may stay pending.
const DefaultConfirmTimeout = 8 * time.Second

// EventType names the transition an Event reports.
type EventType int

const (
	EventOptimistic EventType = iota + 1
	EventCommitted
	EventRolledBack
	EventHydrated
	EventForgotten
)

func (t EventType) String() string {
	switch t {
	case EventOptimistic:
		return "optimistic"
	case EventCommitted:
		return "committed"
	case EventRolledBack:
		return "rolled_back"
	case EventHydrated:
		return "hydrated"
	case EventForgotten:
		return "forgotten"
	default:
		return "unknown"
	}
}

// Event is delivered to the listener after each state change, in the order
// the changes were applied.
type Event struct {
	Type            EventType
	Edge            Edge
	Previous        Status
	Followers       int64
	ViewerFollowing int64
	// Err is set on EventRolledBack and carries the user-visible reason.
	Err error
}

// Outcome is how a toggle request resolved.
type Outcome struct {
	TargetID   string
	Generation uint64
	// Previous is the stable status the toggle started from.
	Previous Status
	// Status is the edge status after resolution. Unset when Stale.
	Status    Status
	Committed bool
	// Stale means a newer generation superseded the request and its
	// response was ignored.
	Stale bool
	Err   error
}

// Request is the handle for one in-flight toggle.
type Request struct {
	targetID   string
	generation uint64
	previous   Status
	done       chan struct{}
	outcome    Outcome
}

func (r *Request) TargetID() string { return r.targetID }

func (r *Request) Generation() uint64 { return r.generation }

// Done is closed once the request has resolved.
func (r *Request) Done() <-chan struct{} { return r.done }

// Wait blocks until the request resolves or ctx ends. A rolled back request
// returns its Outcome together with the error that caused the rollback.
func (r *Request) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-r.done:
		return r.outcome, r.outcome.Err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (r *Request) finish(o Outcome) {
	r.outcome = o
	close(r.done)
}

type flight struct {
	req      *Request
	previous Status
}

// Option configures a Controller.
type Option func(*Controller)

// WithConfirmTimeout bounds each confirmation call.
func WithConfirmTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithListener registers fn to receive events. fn runs synchronously and must
// not call Toggle, Hydrate or Forget itself.
func WithListener(fn func(Event)) Option {
	return func(c *Controller) { c.listener = fn }
}

// WithStore lets the caller share a Store, e.g. with a renderer.
func WithStore(s *Store) Option {
	return func(c *Controller) { c.store = s }
}

// WithCounts lets the caller share a CountAggregator.
func WithCounts(a *CountAggregator) Option {
	return func(c *Controller) { c.counts = a }
}

// Controller runs the optimistic apply, confirm, commit or rollback protocol
// for every edge of one viewer. It is the only writer of its Store and
// CountAggregator.
type Controller struct {
	viewerID string
	gateway  Gateway
	store    *Store
	counts   *CountAggregator
	timeout  time.Duration
	listener func(Event)

	// mu serializes every state transition.
	mu         sync.Mutex
	generation uint64
	inflight   map[string]*flight
	closed     bool

	// emitMu keeps listener delivery in transition order.
	emitMu sync.Mutex

	wg conc.WaitGroup
}

// NewController builds a controller for viewerID talking to gw.
func NewController(viewerID string, gw Gateway, opts ...Option) *Controller {
	c := &Controller{
		viewerID: viewerID,
		gateway:  gw,
		timeout:  DefaultConfirmTimeout,
		inflight: make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewStore()
	}
	if c.counts == nil {
		c.counts = NewCountAggregator()
	}
	return c
}

// ViewerID returns the user whose edges this controller owns.
func (c *Controller) ViewerID() string { return c.viewerID }

// Toggle flips the edge to targetID. The change is visible at once; the
// returned Request resolves when the authority confirms or rejects it.
// Toggling an edge that is still pending fails with a Busy error.
func (c *Controller) Toggle(ctx context.Context, targetID string) (*Request, error) {
	if targetID == "" {
		return nil, &Error{Kind: KindInvalid, Op: "toggle", Message: "target user is required"}
	}
	if targetID == c.viewerID {
		return nil, &Error{Kind: KindInvalid, Op: "toggle", TargetID: targetID, Message: "you cannot follow yourself"}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, &Error{Kind: KindInvalid, Op: "toggle", TargetID: targetID, Message: "relation sync is shut down"}
	}

	edge := c.store.Get(targetID)
	if edge.Status.Pending() {
		c.mu.Unlock()
		return nil, &Error{Kind: KindBusy, Op: "toggle", TargetID: targetID, Message: "a change to this user is still being confirmed, try again in a moment"}
	}

	prev := edge.Status
	next := pendingFrom(prev)
	c.generation++
	gen := c.generation
	edge = c.store.Set(targetID, next, gen)
	c.counts.OnCommit(prev, next, targetID)

	req := &Request{targetID: targetID, generation: gen, previous: prev, done: make(chan struct{})}
	c.inflight[targetID] = &flight{req: req, previous: prev}
	c.wg.Go(func() { c.confirm(ctx, req, next) })

	c.emitLocked(Event{Type: EventOptimistic, Edge: edge, Previous: prev})
	return req, nil
}

// confirm issues the remote call for req and resolves it. The wait is bounded
// by the confirm timeout even if the gateway ignores its context.
func (c *Controller) confirm(ctx context.Context, req *Request, pending Status) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	op := "follow"
	if pending == PendingUnfollow {
		op = "unfollow"
	}

	resCh := make(chan error, 1)
	go func() { resCh <- c.call(callCtx, pending, req.targetID, req.generation) }()

	var err error
	select {
	case err = <-resCh:
	case <-callCtx.Done():
		err = callCtx.Err()
	}
	c.resolve(req, classify(callCtx, op, req.targetID, err))
}

func (c *Controller) call(ctx context.Context, pending Status, targetID string, gen uint64) error {
	if pending == PendingFollow {
		res, err := c.gateway.Follow(ctx, targetID, gen)
		if err != nil {
			return err
		}
		if !res.OK {
			return &Error{Kind: KindRejected, Message: res.Message}
		}
		return nil
	}
	res, err := c.gateway.Unfollow(ctx, targetID, gen)
	if err != nil {
		return err
	}
	if !res.OK {
		return &Error{Kind: KindRejected, Message: res.Message}
	}
	return nil
}

// resolve applies the response for req if req is still the current request
// of its edge, and discards it otherwise.
func (c *Controller) resolve(req *Request, cerr *Error) {
	c.mu.Lock()
	fl, ok := c.inflight[req.targetID]
	edge, found := c.store.Lookup(req.targetID)
	if !ok || fl.req != req || !found || edge.Generation != req.generation {
		c.mu.Unlock()
		logger.Debug("discarding superseded relation response",
			zap.String("target", req.targetID),
			zap.Uint64("generation", req.generation),
		)
		req.finish(Outcome{TargetID: req.targetID, Generation: req.generation, Previous: req.previous, Stale: true})
		return
	}
	delete(c.inflight, req.targetID)

	if cerr == nil {
		final := settle(edge.Status)
		committed := c.store.Set(req.targetID, final, req.generation)
		c.counts.OnCommit(edge.Status, final, req.targetID)
		c.emitLocked(Event{Type: EventCommitted, Edge: committed, Previous: fl.previous})
		req.finish(Outcome{TargetID: req.targetID, Generation: req.generation, Previous: fl.previous, Status: final, Committed: true})
		return
	}

	restored := c.store.Set(req.targetID, fl.previous, req.generation)
	c.counts.OnCommit(edge.Status, fl.previous, req.targetID)
	logger.Info("relation change rolled back",
		zap.String("target", req.targetID),
		zap.Uint64("generation", req.generation),
		zap.Stringer("kind", cerr.Kind),
		zap.Error(cerr),
	)
	c.emitLocked(Event{Type: EventRolledBack, Edge: restored, Previous: edge.Status, Err: cerr})
	req.finish(Outcome{TargetID: req.targetID, Generation: req.generation, Previous: fl.previous, Status: fl.previous, Err: cerr})
}

// Hydrate loads ground truth from the authority. Edges that changed locally
// after the fetch started keep their newer local state. Edges of users absent
// from the snapshot are discarded, and any in-flight response for an
// overridden edge becomes stale.
func (c *Controller) Hydrate(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &Error{Kind: KindInvalid, Op: "hydrate", Message: "relation sync is shut down"}
	}
	startGen := c.generation
	c.mu.Unlock()

	snap, err := c.gateway.FetchSnapshot(ctx, c.viewerID)
	if err != nil {
		return classify(ctx, "hydrate", "", err)
	}

	c.mu.Lock()
	c.counts.SetViewer(snap.FollowingCount, snap.FollowersCount)
	loaded := make(map[string]bool, len(snap.Users))
	for _, u := range snap.Users {
		if u.ID == "" || u.ID == c.viewerID {
			continue
		}
		loaded[u.ID] = true
		if cur, ok := c.store.Lookup(u.ID); ok && cur.Generation > startGen {
			continue
		}
		status := NotFollowing
		if u.IsFollowing {
			status = Following
		}
		c.generation++
		delete(c.inflight, u.ID)
		c.store.Set(u.ID, status, c.generation)
		c.counts.Rebase(u.ID, u.FollowersCount)
	}
	for _, e := range c.store.Snapshot() {
		if !loaded[e.TargetID] {
			c.forgetLocked(e.TargetID)
		}
	}
	logger.Debug("relations hydrated", zap.String("viewer", c.viewerID), zap.Int("users", len(loaded)))
	c.emitLocked(Event{Type: EventHydrated})
	return nil
}

// Forget discards the edge to targetID, e.g. when the user leaves the loaded
// set. An in-flight response for it will be ignored.
func (c *Controller) Forget(targetID string) {
	c.mu.Lock()
	if !c.forgetLocked(targetID) {
		c.mu.Unlock()
		return
	}
	c.emitLocked(Event{Type: EventForgotten, Edge: Edge{TargetID: targetID}})
}

func (c *Controller) forgetLocked(targetID string) bool {
	delete(c.inflight, targetID)
	c.counts.Forget(targetID)
	return c.store.Forget(targetID)
}

// emitLocked hands ev to the listener. It must be called with c.mu held and
// releases it.
func (c *Controller) emitLocked(ev Event) {
	if c.listener == nil {
		c.mu.Unlock()
		return
	}
	if ev.Edge.TargetID != "" {
		ev.Followers = c.counts.Followers(ev.Edge.TargetID)
	}
	ev.ViewerFollowing = c.counts.ViewerFollowing()
	c.emitMu.Lock()
	c.mu.Unlock()
	defer c.emitMu.Unlock()
	c.listener(ev)
}

// Edge returns the current edge to targetID, creating a NotFollowing edge on
// first observation.
func (c *Controller) Edge(targetID string) Edge { return c.store.Get(targetID) }

// Followers returns the displayed follower count of targetID.
func (c *Controller) Followers(targetID string) int64 { return c.counts.Followers(targetID) }

// ViewerFollowing returns how many users the viewer follows.
func (c *Controller) ViewerFollowing() int64 { return c.counts.ViewerFollowing() }

// ViewerFollowers returns how many users follow the viewer.
func (c *Controller) ViewerFollowers() int64 { return c.counts.ViewerFollowers() }

// InFlight returns the number of unresolved requests.
func (c *Controller) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// EdgeView is one row of a rendered relation list.
type EdgeView struct {
	Edge
	Followers int64 `json:"followers"`
}

// View is a read-only rendering snapshot.
type View struct {
	ViewerID        string     `json:"viewer_id"`
	ViewerFollowing int64      `json:"viewer_following"`
	ViewerFollowers int64      `json:"viewer_followers"`
	Edges           []EdgeView `json:"edges"`
}

// View captures edges and counts consistently with each other.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	edges := c.store.Snapshot()
	counts := c.counts.Snapshot()
	v := View{
		ViewerID:        c.viewerID,
		ViewerFollowing: counts.ViewerFollowing,
		ViewerFollowers: counts.ViewerFollowers,
		Edges:           make([]EdgeView, len(edges)),
	}
	for i, e := range edges {
		v.Edges[i] = EdgeView{Edge: e, Followers: counts.Followers[e.TargetID]}
	}
	return v
}

// Close stops accepting toggles and waits for in-flight confirmations, each of
// which is bounded by the confirm timeout.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
}
