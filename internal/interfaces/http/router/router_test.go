package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jerson21/santitelas-frontend-sub003/internal/application/transfersync"
	"github.com/jerson21/santitelas-frontend-sub003/internal/domain/validation"
	"github.com/jerson21/santitelas-frontend-sub003/internal/interfaces/http/handler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubService struct {
	approved []validation.ID
}

func (s *stubService) Pending() []validation.ValidationRequest {
	return []validation.ValidationRequest{{ID: 9, Cajero: "ana"}}
}

func (s *stubService) Approve(_ context.Context, id validation.ID, _ string) (transfersync.Result, error) {
	s.approved = append(s.approved, id)
	return transfersync.Result{ID: id, Approved: true, Outcome: validation.OutcomeOk}, nil
}

func (s *stubService) Reject(_ context.Context, id validation.ID, _ string) (transfersync.Result, error) {
	return transfersync.Result{ID: id, Outcome: validation.OutcomeOk}, nil
}

func (s *stubService) Refresh(context.Context) error   { return nil }
func (s *stubService) Reconnect(context.Context) error { return nil }

func (s *stubService) RecentDecisions(context.Context, int) ([]validation.Decision, error) {
	return nil, transfersync.ErrJournalDisabled
}

func (s *stubService) Status() transfersync.Status { return transfersync.Status{Pending: 1} }
func (s *stubService) Ready() bool                 { return true }

func newTestEngine(metrics http.Handler) (*gin.Engine, *stubService) {
	svc := &stubService{}
	return NewEngine(zap.NewNop(), Handlers{
		Validation: handler.NewValidationHandler(svc),
		System:     handler.NewSystemHandler("transfer-sync", "test", svc),
		Metrics:    metrics,
	}), svc
}

func TestNewEngine_Routes(t *testing.T) {
	engine, svc := newTestEngine(nil)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/v1/validations", http.StatusOK},
		{http.MethodPost, "/api/v1/validations/9/approve", http.StatusOK},
		{http.MethodPost, "/api/v1/validations/9/reject", http.StatusOK},
		{http.MethodPost, "/api/v1/validations/refresh", http.StatusAccepted},
		{http.MethodGet, "/api/v1/status", http.StatusOK},
		{http.MethodGet, "/api/v1/decisions", http.StatusNotImplemented},
		{http.MethodPost, "/api/v1/connection/reconnect", http.StatusAccepted},
		{http.MethodGet, "/api/v1/system/info", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
	assert.Equal(t, []validation.ID{9}, svc.approved)
}

func TestNewEngine_RequestIDOnErrors(t *testing.T) {
	engine, _ := newTestEngine(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/validations/nope/approve", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	var body struct {
		Error struct {
			Code      string `json:"code"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, validation.CodeInvalidInput, body.Error.Code)
	assert.Equal(t, "req-42", body.Error.RequestID)
}

func TestNewEngine_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "transfer_sync_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	engine, _ := newTestEngine(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "transfer_sync_test_total 1"))
}

func TestDomainGroup(t *testing.T) {
	engine := gin.New()
	group := NewDomainGroup("ping", "/ping").
		GET("", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	assert.Equal(t, "ping", group.Name())

	NewRouter(engine, WithAPIVersion("v2")).Register(group).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}
