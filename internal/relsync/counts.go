package relsync

import (
	"sync"

	"go.uber.org/zap"

	"github.com/d60-Lab/followsync/pkg/logger"
)

// Counts is a rendered view of follower/following numbers.
type Counts struct {
	// Followers of each loaded target user.
	Followers map[string]int64 `json:"followers"`
	// ViewerFollowing is how many users the viewer follows.
	ViewerFollowing int64 `json:"viewer_following"`
	// ViewerFollowers is how many users follow the viewer.
	ViewerFollowers int64 `json:"viewer_followers"`
}

// CountAggregator derives counts from edge transitions. Counts only move when a
// transition crosses the counted boundary (see Status.Counted), so a confirm of
// an optimistic change leaves them untouched.
type CountAggregator struct {
	mu              sync.RWMutex
	followers       map[string]int64
	viewerFollowing int64
	viewerFollowers int64
}

// NewCountAggregator returns an aggregator with all counts at zero.
func NewCountAggregator() *CountAggregator {
	return &CountAggregator{followers: make(map[string]int64)}
}

// OnCommit applies the count change implied by moving the viewer's edge to
// targetID from prev to next. It returns the applied delta (-1, 0 or +1).
func (a *CountAggregator) OnCommit(prev, next Status, targetID string) int64 {
	var delta int64
	switch {
	case prev.Counted() && !next.Counted():
		delta = -1
	case !prev.Counted() && next.Counted():
		delta = 1
	default:
		return 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.followers[targetID] = clamp(a.followers[targetID]+delta, "followers", targetID)
	a.viewerFollowing = clamp(a.viewerFollowing+delta, "viewer_following", targetID)
	return delta
}

// Rebase sets a target's follower count from ground truth.
func (a *CountAggregator) Rebase(targetID string, followers int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.followers[targetID] = clamp(followers, "followers", targetID)
}

// SetViewer sets the viewer's own counts from ground truth.
func (a *CountAggregator) SetViewer(following, followers int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.viewerFollowing = clamp(following, "viewer_following", "")
	a.viewerFollowers = clamp(followers, "viewer_followers", "")
}

// Forget drops the target's count.
func (a *CountAggregator) Forget(targetID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.followers, targetID)
}

// Followers returns the displayed follower count of targetID.
func (a *CountAggregator) Followers(targetID string) int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.followers[targetID]
}

// ViewerFollowing returns how many users the viewer follows.
func (a *CountAggregator) ViewerFollowing() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.viewerFollowing
}

// ViewerFollowers returns how many users follow the viewer.
func (a *CountAggregator) ViewerFollowers() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.viewerFollowers
}

// Snapshot copies the current counts.
func (a *CountAggregator) Snapshot() Counts {
	a.mu.RLock()
	defer a.mu.RUnlock()
	followers := make(map[string]int64, len(a.followers))
	for k, v := range a.followers {
		followers[k] = v
	}
	return Counts{Followers: followers, ViewerFollowing: a.viewerFollowing, ViewerFollowers: a.viewerFollowers}
}

func clamp(v int64, counter, targetID string) int64 {
	if v >= 0 {
		return v
	}
	logger.Warn("relation count would go negative, clamped",
		zap.String("counter", counter),
		zap.String("target", targetID),
		zap.Int64("value", v),
	)
	return 0
}
