package http

import (
	"github.com/gin-gonic/gin"

	"github.com/datacharted/go-provisioning-backend/internal/provisioning/service"
)

type Handler struct {
	svc    *service.Orchestrator
	status *service.StatusReporter
}

func New(svc *service.Orchestrator, status *service.StatusReporter) *Handler {
	return &Handler{svc: svc, status: status}
}

// Register mounts the project provisioning routes on rg. The caller is
// responsible for attaching the account middleware first.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("", h.create)
	rg.GET("", h.list)
	rg.GET("/:project_id", h.get)
	rg.GET("/:project_id/status", h.getStatus)
	rg.DELETE("/:project_id", h.delete)
}
