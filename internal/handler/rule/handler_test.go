package rule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/notifier/internal/model"
	apperrors "github.com/taskhive/notifier/pkg/errors"
)

type fakeRuleRepo struct {
	rules map[uuid.UUID]*model.ReminderRule
}

func newFakeRuleRepo() *fakeRuleRepo {
	return &fakeRuleRepo{rules: make(map[uuid.UUID]*model.ReminderRule)}
}

func (r *fakeRuleRepo) Create(ctx context.Context, rule *model.ReminderRule) error {
	if err := rule.Validate(); err != nil {
		return apperrors.NewBadRequest(err.Error(), err)
	}
	rule.ID = uuid.New()
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt
	r.rules[rule.ID] = rule
	return nil
}

func (r *fakeRuleRepo) Get(ctx context.Context, id uuid.UUID) (*model.ReminderRule, error) {
	if rule, ok := r.rules[id]; ok {
		return rule, nil
	}
	return nil, apperrors.NewNotFound("reminder rule", nil)
}

func (r *fakeRuleRepo) Update(ctx context.Context, rule *model.ReminderRule) error {
	if _, ok := r.rules[rule.ID]; !ok {
		return apperrors.NewNotFound("reminder rule", nil)
	}
	r.rules[rule.ID] = rule
	return nil
}

func (r *fakeRuleRepo) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	rule, ok := r.rules[id]
	if !ok {
		return apperrors.NewNotFound("reminder rule", nil)
	}
	rule.Enabled = enabled
	return nil
}

func (r *fakeRuleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.rules[id]; !ok {
		return apperrors.NewNotFound("reminder rule", nil)
	}
	delete(r.rules, id)
	return nil
}

func (r *fakeRuleRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.ReminderRule, error) {
	var out []*model.ReminderRule
	for _, rule := range r.rules {
		if rule.OwnerID == ownerID {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *fakeRuleRepo) ListDue(ctx context.Context, now time.Time, dedupWindow time.Duration, limit int) ([]*model.DueRule, error) {
	return nil, nil
}

func (r *fakeRuleRepo) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	return nil
}

func setupRouter(repo *fakeRuleRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	NewHandler(repo).RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func validBody() map[string]interface{} {
	return map[string]interface{}{
		"owner_id":      uuid.New().String(),
		"subject_id":    uuid.New().String(),
		"channel":       "email",
		"offset_amount": 30,
		"offset_unit":   "minutes",
	}
}

func TestCreateRule(t *testing.T) {
	repo := newFakeRuleRepo()
	engine := setupRouter(repo)

	w := doJSON(t, engine, "POST", "/api/v1/rules", validBody())

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, repo.rules, 1)
	for _, rule := range repo.rules {
		assert.True(t, rule.Enabled, "rules default to enabled")
	}
}

func TestCreateRuleRejectsBadOffset(t *testing.T) {
	repo := newFakeRuleRepo()
	engine := setupRouter(repo)

	body := validBody()
	body["offset_amount"] = -5

	w := doJSON(t, engine, "POST", "/api/v1/rules", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, repo.rules)
}

func TestCreateRuleRejectsUnknownChannel(t *testing.T) {
	repo := newFakeRuleRepo()
	engine := setupRouter(repo)

	body := validBody()
	body["channel"] = "fax"

	w := doJSON(t, engine, "POST", "/api/v1/rules", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, repo.rules)
}

func TestCreateRuleRejectsBadUnit(t *testing.T) {
	repo := newFakeRuleRepo()
	engine := setupRouter(repo)

	body := validBody()
	body["offset_unit"] = "weeks"

	w := doJSON(t, engine, "POST", "/api/v1/rules", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRuleNotFound(t *testing.T) {
	engine := setupRouter(newFakeRuleRepo())

	w := doJSON(t, engine, "GET", fmt.Sprintf("/api/v1/rules/%s", uuid.New()), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, engine, "GET", "/api/v1/rules/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnableDisableRule(t *testing.T) {
	repo := newFakeRuleRepo()
	engine := setupRouter(repo)

	rule := &model.ReminderRule{
		OwnerID:      uuid.New(),
		SubjectID:    uuid.New(),
		Channel:      "email",
		OffsetAmount: 10,
		OffsetUnit:   model.OffsetUnitMinutes,
		Enabled:      true,
	}
	require.NoError(t, repo.Create(context.Background(), rule))

	w := doJSON(t, engine, "PATCH", fmt.Sprintf("/api/v1/rules/%s/disable", rule.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, repo.rules[rule.ID].Enabled)

	w = doJSON(t, engine, "PATCH", fmt.Sprintf("/api/v1/rules/%s/enable", rule.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, repo.rules[rule.ID].Enabled)
}

func TestDeleteRule(t *testing.T) {
	repo := newFakeRuleRepo()
	engine := setupRouter(repo)

	rule := &model.ReminderRule{
		OwnerID:      uuid.New(),
		SubjectID:    uuid.New(),
		Channel:      "email",
		OffsetAmount: 10,
		OffsetUnit:   model.OffsetUnitMinutes,
	}
	require.NoError(t, repo.Create(context.Background(), rule))

	w := doJSON(t, engine, "DELETE", fmt.Sprintf("/api/v1/rules/%s", rule.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, repo.rules)

	w = doJSON(t, engine, "DELETE", fmt.Sprintf("/api/v1/rules/%s", rule.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRulesRequiresOwner(t *testing.T) {
	engine := setupRouter(newFakeRuleRepo())

	w := doJSON(t, engine, "GET", "/api/v1/rules", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, engine, "GET", fmt.Sprintf("/api/v1/rules?owner_id=%s", uuid.New()), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
