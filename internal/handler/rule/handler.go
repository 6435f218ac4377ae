package rule

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taskhive/notifier/internal/channel"
	"github.com/taskhive/notifier/internal/handler"
	"github.com/taskhive/notifier/internal/model"
	"github.com/taskhive/notifier/internal/repository"
	apperrors "github.com/taskhive/notifier/pkg/errors"
	"github.com/taskhive/notifier/pkg/validator"
)

// Handler is the rule write path the external CRUD layer calls into.
// Malformed configurations are rejected here and never reach the
// evaluator or delivery path.
type Handler struct {
	rules repository.RuleRepository
}

func NewHandler(rules repository.RuleRepository) *Handler {
	return &Handler{rules: rules}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	rules := r.Group("/rules")
	{
		rules.POST("", h.Create)
		rules.GET("", h.List)
		rules.GET("/:id", h.Get)
		rules.PUT("/:id", h.Update)
		rules.PATCH("/:id/enable", h.Enable)
		rules.PATCH("/:id/disable", h.Disable)
		rules.DELETE("/:id", h.Delete)
	}
}

type ruleRequest struct {
	OwnerID      string `json:"owner_id" validate:"required,uuid"`
	SubjectID    string `json:"subject_id" validate:"required,uuid"`
	Channel      string `json:"channel" validate:"required,oneof=email sms push in_app"`
	OffsetAmount int    `json:"offset_amount" validate:"required,gt=0"`
	OffsetUnit   string `json:"offset_unit" validate:"required,oneof=minutes hours days"`
	Enabled      *bool  `json:"enabled"`
}

func (h *Handler) Create(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid request body"))
		return
	}
	if verrs := validator.Validate(req); verrs != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(verrs[0].Field+" "+verrs[0].Message))
		return
	}

	rule := &model.ReminderRule{
		OwnerID:      uuid.MustParse(req.OwnerID),
		SubjectID:    uuid.MustParse(req.SubjectID),
		Channel:      req.Channel,
		OffsetAmount: req.OffsetAmount,
		OffsetUnit:   model.OffsetUnit(req.OffsetUnit),
		Enabled:      true,
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if !channel.KnownTag(rule.Channel) {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("unknown channel tag"))
		return
	}

	if err := h.rules.Create(c.Request.Context(), rule); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(rule))
}

func (h *Handler) List(c *gin.Context) {
	ownerID, err := uuid.Parse(c.Query("owner_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("owner_id query parameter is required"))
		return
	}

	rules, err := h.rules.ListByOwner(c.Request.Context(), ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rules))
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid rule id"))
		return
	}

	rule, err := h.rules.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rule))
}

func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid rule id"))
		return
	}

	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid request body"))
		return
	}
	if verrs := validator.Validate(req); verrs != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(verrs[0].Field+" "+verrs[0].Message))
		return
	}

	existing, err := h.rules.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	existing.Channel = req.Channel
	existing.OffsetAmount = req.OffsetAmount
	existing.OffsetUnit = model.OffsetUnit(req.OffsetUnit)
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}

	if err := h.rules.Update(c.Request.Context(), existing); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(existing))
}

func (h *Handler) Enable(c *gin.Context) {
	h.setEnabled(c, true)
}

func (h *Handler) Disable(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *Handler) setEnabled(c *gin.Context, enabled bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid rule id"))
		return
	}

	if err := h.rules.SetEnabled(c.Request.Context(), id, enabled); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"id": id, "enabled": enabled}))
}

func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid rule id"))
		return
	}

	if err := h.rules.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case apperrors.ErrNotFound:
			c.JSON(http.StatusNotFound, handler.NewErrorResponse(appErr.Message))
			return
		case apperrors.ErrBadRequest:
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse(appErr.Message))
			return
		case apperrors.ErrConflict:
			c.JSON(http.StatusConflict, handler.NewErrorResponse(appErr.Message))
			return
		}
	}
	c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("internal server error"))
}
