package delivery

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taskhive/notifier/internal/handler"
	"github.com/taskhive/notifier/internal/repository"
	apperrors "github.com/taskhive/notifier/pkg/errors"
)

// Handler is the read-only audit surface over delivery logs.
type Handler struct {
	logs repository.DeliveryLogRepository
}

func NewHandler(logs repository.DeliveryLogRepository) *Handler {
	return &Handler{logs: logs}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	deliveries := r.Group("/deliveries")
	{
		deliveries.GET("", h.List)
		deliveries.GET("/:id", h.Get)
	}
}

func (h *Handler) List(c *gin.Context) {
	filter := repository.DeliveryLogFilter{}

	if v := c.Query("rule_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid rule_id"))
			return
		}
		filter.RuleID = &id
	}
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}

	filter.Limit = 50
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 || limit > 500 {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid limit"))
			return
		}
		filter.Limit = limit
	}

	logs, err := h.logs.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to list deliveries"))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(logs))
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid delivery id"))
		return
	}

	log, err := h.logs.Get(c.Request.Context(), id)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Code == apperrors.ErrNotFound {
			c.JSON(http.StatusNotFound, handler.NewErrorResponse("delivery not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to get delivery"))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(log))
}
