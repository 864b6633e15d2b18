package handler

import (
	"github.com/d60-Lab/followsync/internal/service"
)

// Handler 关系链 HTTP 处理器
type Handler struct {
	relService service.RelationshipService
}

func New(relService service.RelationshipService) *Handler {
	return &Handler{relService: relService}
}
