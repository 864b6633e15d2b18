package relsync

import (
	"context"
	"sync"
	"testing"
	"time"
)

// gatewayCall is one remote call held open until the test replies.
type gatewayCall struct {
	op         string
	targetID   string
	generation uint64
	reply      chan error
}

func (c gatewayCall) succeed() { c.reply <- nil }

func (c gatewayCall) fail(err error) { c.reply <- err }

// scriptedGateway blocks every mutation until the test answers it. When
// auto is set, calls are answered immediately with its result instead.
type scriptedGateway struct {
	mu    sync.Mutex
	calls []gatewayCall
	ch    chan gatewayCall

	auto     func(op, targetID string) error
	snapshot func(ctx context.Context) (*Snapshot, error)
}

func newScriptedGateway() *scriptedGateway {
	return &scriptedGateway{ch: make(chan gatewayCall, 64)}
}

func (g *scriptedGateway) Follow(ctx context.Context, targetID string, gen uint64) (FollowResult, error) {
	if err := g.do(ctx, "follow", targetID, gen); err != nil {
		return FollowResult{}, err
	}
	return FollowResult{OK: true}, nil
}

func (g *scriptedGateway) Unfollow(ctx context.Context, targetID string, gen uint64) (UnfollowResult, error) {
	if err := g.do(ctx, "unfollow", targetID, gen); err != nil {
		return UnfollowResult{}, err
	}
	return UnfollowResult{OK: true}, nil
}

func (g *scriptedGateway) FetchSnapshot(ctx context.Context, userID string) (*Snapshot, error) {
	if g.snapshot == nil {
		return &Snapshot{UserID: userID}, nil
	}
	return g.snapshot(ctx)
}

func (g *scriptedGateway) do(ctx context.Context, op, targetID string, gen uint64) error {
	c := gatewayCall{op: op, targetID: targetID, generation: gen, reply: make(chan error, 1)}
	g.mu.Lock()
	g.calls = append(g.calls, c)
	auto := g.auto
	g.mu.Unlock()

	if auto != nil {
		return auto(op, targetID)
	}
	g.ch <- c
	select {
	case err := <-c.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *scriptedGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// next returns the next call the controller issued.
func (g *scriptedGateway) next(t *testing.T) gatewayCall {
	t.Helper()
	select {
	case c := <-g.ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no gateway call issued")
		return gatewayCall{}
	}
}

func wait(t *testing.T, req *Request) (Outcome, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := req.Wait(ctx)
	if ctx.Err() != nil {
		t.Fatalf("request for %s did not resolve", req.TargetID())
	}
	return out, err
}
