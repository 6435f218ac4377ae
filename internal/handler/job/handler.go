package job

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taskhive/notifier/internal/handler"
	"github.com/taskhive/notifier/internal/repository"
	apperrors "github.com/taskhive/notifier/pkg/errors"
)

// Handler exposes job status lookups so operators can follow a delivery
// attempt through its lifecycle.
type Handler struct {
	jobs repository.JobRepository
}

func NewHandler(jobs repository.JobRepository) *Handler {
	return &Handler{jobs: jobs}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	jobs := r.Group("/jobs")
	{
		jobs.GET("/:id", h.Get)
	}
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid job id"))
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Code == apperrors.ErrNotFound {
			c.JSON(http.StatusNotFound, handler.NewErrorResponse("job not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to get job"))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(job))
}
