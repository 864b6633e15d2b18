package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/followsync/internal/api/middleware"
	"github.com/d60-Lab/followsync/internal/model"
	"github.com/d60-Lab/followsync/internal/service"
	"github.com/d60-Lab/followsync/pkg/response"
)

type mutationResult struct {
	OK             bool  `json:"ok"`
	FollowersCount int64 `json:"followers_count"`
}

// Follow 关注用户（粉丝表异步冗余）
// @Summary 关注用户
// @Tags 关系链
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "目标用户ID"
// @Param X-Relation-Generation header int false "客户端请求代号"
// @Success 200 {object} response.Response{data=mutationResult}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 429 {object} response.Response
// @Router /api/v1/follow/{user_id} [post]
func (h *Handler) Follow(c *gin.Context) {
	rc, err := h.relService.Follow(c.Request.Context(), middleware.UserID(c), c.Param("user_id"))
	h.writeMutation(c, rc, err)
}

// Unfollow 取消关注
// @Summary 取消关注
// @Tags 关系链
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "目标用户ID"
// @Param X-Relation-Generation header int false "客户端请求代号"
// @Success 200 {object} response.Response{data=mutationResult}
// @Failure 401 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 429 {object} response.Response
// @Router /api/v1/unfollow/{user_id} [delete]
func (h *Handler) Unfollow(c *gin.Context) {
	rc, err := h.relService.Unfollow(c.Request.Context(), middleware.UserID(c), c.Param("user_id"))
	h.writeMutation(c, rc, err)
}

func (h *Handler) writeMutation(c *gin.Context, rc model.RelationCounts, err error) {
	switch {
	case err == nil:
		response.Success(c, mutationResult{OK: true, FollowersCount: rc.Followers})
	case errors.Is(err, service.ErrFollowSelf):
		response.BadRequest(c, "you cannot follow yourself")
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, "user not found")
	case errors.Is(err, service.ErrAlreadyFollowing):
		response.Conflict(c, "already following this user")
	case errors.Is(err, service.ErrNotFollowing):
		response.Conflict(c, "not following this user")
	default:
		response.InternalError(c, err)
	}
}

// Snapshot 批量关系快照，替代逐个用户查询
// @Summary 关系快照
// @Tags 关系链
// @Produce json
// @Security BearerAuth
// @Param user_ids query string false "逗号分隔的用户ID，缺省时列出可发现用户"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=service.Snapshot}
// @Router /api/v1/relations/snapshot [get]
func (h *Handler) Snapshot(c *gin.Context) {
	q := service.SnapshotQuery{Page: queryInt(c, "page", 1), PageSize: queryInt(c, "page_size", 10)}
	if raw := c.Query("user_ids"); raw != "" {
		q.UserIDs = strings.Split(raw, ",")
	}
	snap, err := h.relService.Snapshot(c.Request.Context(), middleware.UserID(c), q)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, snap)
}

// Profile 当前用户资料
// @Summary 个人资料
// @Tags 用户
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=service.Profile}
// @Failure 404 {object} response.Response
// @Router /api/v1/profile [get]
func (h *Handler) Profile(c *gin.Context) {
	p, err := h.relService.Profile(c.Request.Context(), middleware.UserID(c))
	if errors.Is(err, service.ErrUserNotFound) {
		response.NotFound(c, "user not found")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, p)
}

// ListFollowing 查询某用户关注的人
// @Summary 查询关注列表
// @Tags 关系链
// @Param user_id path string true "用户ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/relations/{user_id}/following [get]
func (h *Handler) ListFollowing(c *gin.Context) {
	userID := c.Param("user_id")
	page, pageSize := queryInt(c, "page", 1), queryInt(c, "page_size", 10)
	list, err := h.relService.ListFollowing(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}

// ListFans 查询某用户的粉丝
// @Summary 查询粉丝列表（来自冗余表）
// @Tags 关系链
// @Param user_id path string true "用户ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/relations/{user_id}/fans [get]
func (h *Handler) ListFans(c *gin.Context) {
	userID := c.Param("user_id")
	page, pageSize := queryInt(c, "page", 1), queryInt(c, "page_size", 10)
	list, err := h.relService.ListFans(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}
