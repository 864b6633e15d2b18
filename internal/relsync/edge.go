package relsync

import "fmt"

// Status is the synchronization status of one directed follow edge.
type Status int

const (
	NotFollowing Status = iota
	Following
	PendingFollow
	PendingUnfollow
)

func (s Status) String() string {
	switch s {
	case NotFollowing:
		return "not_following"
	case Following:
		return "following"
	case PendingFollow:
		return "pending_follow"
	case PendingUnfollow:
		return "pending_unfollow"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Pending reports whether a confirmation is outstanding.
func (s Status) Pending() bool { return s == PendingFollow || s == PendingUnfollow }

// Counted reports whether the edge contributes to displayed counts. A pending
// follow already counts and a pending unfollow no longer does.
func (s Status) Counted() bool { return s == Following || s == PendingFollow }

// pendingFrom returns the optimistic status entered when toggling a stable status.
func pendingFrom(s Status) Status {
	if s == Following {
		return PendingUnfollow
	}
	return PendingFollow
}

// settle returns the stable status a pending status commits to.
func settle(s Status) Status {
	switch s {
	case PendingFollow:
		return Following
	case PendingUnfollow:
		return NotFollowing
	default:
		return s
	}
}

// Edge is the viewer's relation to one target user.
type Edge struct {
	TargetID   string `json:"target_id"`
	Status     Status `json:"status"`
	Generation uint64 `json:"generation"`
}

// Following reports the committed relation, ignoring any optimistic change.
func (e Edge) Following() bool {
	return e.Status == Following || e.Status == PendingUnfollow
}
