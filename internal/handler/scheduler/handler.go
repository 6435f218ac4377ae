package scheduler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskhive/notifier/internal/handler"
	"github.com/taskhive/notifier/internal/scheduler"
	apperrors "github.com/taskhive/notifier/pkg/errors"
)

// Handler exposes the manual trigger: one evaluation+dispatch cycle, now.
// With dry_run=true it reports the would-be dispatch count without
// enqueueing anything.
type Handler struct {
	scheduler *scheduler.Scheduler
}

func NewHandler(s *scheduler.Scheduler) *Handler {
	return &Handler{scheduler: s}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/scheduler/trigger", h.Trigger)
}

type triggerResponse struct {
	DryRun   bool `json:"dry_run"`
	Due      int  `json:"due"`
	Enqueued int  `json:"enqueued"`
}

func (h *Handler) Trigger(c *gin.Context) {
	dryRun := c.Query("dry_run") == "true"

	due, enqueued, err := h.scheduler.RunOnce(c.Request.Context(), dryRun)
	if err != nil {
		if errors.Is(err, apperrors.ErrSchedulerOverlap) {
			c.JSON(http.StatusConflict, handler.NewErrorResponse("a tick is already running"))
			return
		}
		if errors.Is(err, apperrors.ErrStoreUnavailable) {
			c.JSON(http.StatusServiceUnavailable, handler.NewErrorResponse("rule store unavailable"))
			return
		}
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("trigger failed"))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(triggerResponse{
		DryRun:   dryRun,
		Due:      due,
		Enqueued: enqueued,
	}))
}
