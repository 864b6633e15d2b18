package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/d60-Lab/followsync/internal/cache"
	"github.com/d60-Lab/followsync/internal/model"
	"github.com/d60-Lab/followsync/internal/repository"
	"github.com/d60-Lab/followsync/pkg/logger"
)

var (
	ErrFollowSelf       = errors.New("cannot follow self")
	ErrUserNotFound     = errors.New("user not found")
	ErrAlreadyFollowing = errors.New("already following")
	ErrNotFollowing     = errors.New("not following")
)

const maxPageSize = 100

// UserRelation 快照中单个用户的关系视图
type UserRelation struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	FollowersCount int64  `json:"followers_count"`
	FollowingCount int64  `json:"following_count"`
	IsFollowing    bool   `json:"is_following"`
}

// Snapshot 观察者视角的批量关系快照
type Snapshot struct {
	UserID         string         `json:"user_id"`
	FollowingCount int64          `json:"following_count"`
	FollowersCount int64          `json:"followers_count"`
	Users          []UserRelation `json:"users"`
}

// SnapshotQuery UserIDs 为空时按分页列出可发现用户
type SnapshotQuery struct {
	UserIDs  []string
	Page     int
	PageSize int
}

// Profile 当前用户资料及计数
type Profile struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	Bio            string `json:"bio"`
	FollowersCount int64  `json:"followers_count"`
	FollowingCount int64  `json:"following_count"`
}

// RelationshipService 关系链服务
type RelationshipService interface {
	// Follow 返回目标用户最新计数
	Follow(ctx context.Context, fromUserID, toUserID string) (model.RelationCounts, error)
	Unfollow(ctx context.Context, fromUserID, toUserID string) (model.RelationCounts, error)
	Snapshot(ctx context.Context, viewerID string, q SnapshotQuery) (*Snapshot, error)
	Counts(ctx context.Context, userIDs []string) (map[string]model.RelationCounts, error)
	Profile(ctx context.Context, userID string) (*Profile, error)
	ListFollowing(ctx context.Context, userID string, page, pageSize int) ([]string, error)
	ListFans(ctx context.Context, userID string, page, pageSize int) ([]string, error)
}

type relationshipService struct {
	userRepo   repository.UserRepository
	followRepo repository.FollowRepository
	fanRepo    repository.FanRepository
	replicator *FanReplicator
	counts     *cache.CountCache
}

// NewRelationshipService replicator 与 counts 可为 nil
func NewRelationshipService(userRepo repository.UserRepository, followRepo repository.FollowRepository, fanRepo repository.FanRepository, replicator *FanReplicator, counts *cache.CountCache) RelationshipService {
	return &relationshipService{userRepo: userRepo, followRepo: followRepo, fanRepo: fanRepo, replicator: replicator, counts: counts}
}

func (s *relationshipService) Follow(ctx context.Context, fromUserID, toUserID string) (model.RelationCounts, error) {
	if fromUserID == toUserID {
		return model.RelationCounts{}, ErrFollowSelf
	}
	if err := s.requireUser(ctx, toUserID); err != nil {
		return model.RelationCounts{}, err
	}
	if err := s.followRepo.Create(ctx, fromUserID, toUserID); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.RelationCounts{}, ErrAlreadyFollowing
		}
		return model.RelationCounts{}, err
	}
	s.invalidate(ctx, fromUserID, toUserID)
	if s.replicator != nil {
		s.replicator.EnqueueAdd(toUserID, fromUserID)
	}
	return s.countsOf(ctx, toUserID)
}

func (s *relationshipService) Unfollow(ctx context.Context, fromUserID, toUserID string) (model.RelationCounts, error) {
	if err := s.followRepo.Delete(ctx, fromUserID, toUserID); err != nil {
		if errors.Is(err, repository.ErrNotExist) {
			return model.RelationCounts{}, ErrNotFollowing
		}
		return model.RelationCounts{}, err
	}
	s.invalidate(ctx, fromUserID, toUserID)
	if s.replicator != nil {
		s.replicator.EnqueueRemove(toUserID, fromUserID)
	}
	return s.countsOf(ctx, toUserID)
}

func (s *relationshipService) Snapshot(ctx context.Context, viewerID string, q SnapshotQuery) (*Snapshot, error) {
	var users []*model.User
	var err error
	if len(q.UserIDs) > 0 {
		users, err = s.userRepo.ListByIDs(ctx, without(q.UserIDs, viewerID))
	} else {
		page, size := normalizePage(q.Page, q.PageSize)
		users, err = s.userRepo.ListDiscoverable(ctx, viewerID, (page-1)*size, size)
	}
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	ids := make([]string, 0, len(users)+1)
	ids = append(ids, viewerID)
	for _, u := range users {
		ids = append(ids, u.ID)
	}

	counts, err := s.Counts(ctx, ids)
	if err != nil {
		return nil, err
	}
	following, err := s.followRepo.FollowingAmong(ctx, viewerID, ids[1:])
	if err != nil {
		return nil, fmt.Errorf("following among: %w", err)
	}

	snap := &Snapshot{
		UserID:         viewerID,
		FollowingCount: counts[viewerID].Following,
		FollowersCount: counts[viewerID].Followers,
		Users:          make([]UserRelation, 0, len(users)),
	}
	for _, u := range users {
		c := counts[u.ID]
		snap.Users = append(snap.Users, UserRelation{
			ID:             u.ID,
			Username:       u.Username,
			FollowersCount: c.Followers,
			FollowingCount: c.Following,
			IsFollowing:    following[u.ID],
		})
	}
	return snap, nil
}

// Counts 先读缓存，未命中的用户走分组 COUNT 并回填
func (s *relationshipService) Counts(ctx context.Context, userIDs []string) (map[string]model.RelationCounts, error) {
	out := make(map[string]model.RelationCounts, len(userIDs))
	missing := userIDs
	if s.counts != nil {
		out, missing = s.counts.Get(ctx, userIDs)
	}
	if len(missing) == 0 {
		return out, nil
	}

	followers, err := s.followRepo.CountFollowers(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("count followers: %w", err)
	}
	following, err := s.followRepo.CountFollowing(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("count following: %w", err)
	}
	loaded := make([]model.RelationCounts, 0, len(missing))
	for _, id := range missing {
		rc := model.RelationCounts{UserID: id, Followers: followers[id], Following: following[id]}
		out[id] = rc
		loaded = append(loaded, rc)
	}
	if s.counts != nil {
		s.counts.Set(ctx, loaded...)
	}
	return out, nil
}

func (s *relationshipService) Profile(ctx context.Context, userID string) (*Profile, error) {
	u, err := s.userRepo.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotExist) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	rc, err := s.countsOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		Bio:            u.Bio,
		FollowersCount: rc.Followers,
		FollowingCount: rc.Following,
	}, nil
}

func (s *relationshipService) ListFollowing(ctx context.Context, userID string, page, pageSize int) ([]string, error) {
	page, pageSize = normalizePage(page, pageSize)
	items, err := s.followRepo.ListFollowings(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	res := make([]string, len(items))
	for i, it := range items {
		res[i] = it.FolloweeID
	}
	return res, nil
}

func (s *relationshipService) ListFans(ctx context.Context, userID string, page, pageSize int) ([]string, error) {
	page, pageSize = normalizePage(page, pageSize)
	items, err := s.fanRepo.ListFans(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	res := make([]string, len(items))
	for i, it := range items {
		res[i] = it.FanID
	}
	return res, nil
}

func (s *relationshipService) requireUser(ctx context.Context, userID string) error {
	ok, err := s.userRepo.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

func (s *relationshipService) countsOf(ctx context.Context, userID string) (model.RelationCounts, error) {
	m, err := s.Counts(ctx, []string{userID})
	if err != nil {
		return model.RelationCounts{}, err
	}
	return m[userID], nil
}

func (s *relationshipService) invalidate(ctx context.Context, userIDs ...string) {
	if s.counts == nil {
		return
	}
	if err := s.counts.Invalidate(ctx, userIDs...); err != nil {
		logger.Warn("count cache invalidate failed", zap.Strings("users", userIDs), zap.Error(err))
	}
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop && id != "" {
			out = append(out, id)
		}
	}
	return out
}
