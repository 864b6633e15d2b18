package relsync

import "context"

// Gateway is the remote authority for follow edges. Implementations must
// honor ctx deadlines and report failures as *Error so the kind survives.
type Gateway interface {
	// Follow creates the edge viewer -> targetID. generation tags the request.
	Follow(ctx context.Context, targetID string, generation uint64) (FollowResult, error)
	// Unfollow deletes the edge viewer -> targetID.
	Unfollow(ctx context.Context, targetID string, generation uint64) (UnfollowResult, error)
	// FetchSnapshot returns ground truth for userID and the users it can see.
	FetchSnapshot(ctx context.Context, userID string) (*Snapshot, error)
}

// FollowResult is the authority's answer to a follow.
type FollowResult struct {
	OK             bool   `json:"ok"`
	FollowersCount *int64 `json:"followers_count,omitempty"`
	Message        string `json:"message,omitempty"`
}

// UnfollowResult is the authority's answer to an unfollow.
type UnfollowResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Snapshot is ground truth for hydration.
type Snapshot struct {
	UserID         string         `json:"user_id"`
	FollowingCount int64          `json:"following_count"`
	FollowersCount int64          `json:"followers_count"`
	Users          []UserRelation `json:"users"`
}

// UserRelation is one discovered user as seen by the viewer.
type UserRelation struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	FollowersCount int64  `json:"followers_count"`
	FollowingCount int64  `json:"following_count"`
	IsFollowing    bool   `json:"is_following"`
}
