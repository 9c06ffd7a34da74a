package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jerson21/santitelas-frontend-sub003/internal/application/transfersync"
	"github.com/jerson21/santitelas-frontend-sub003/internal/domain/validation"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/pendingapi"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/scheduler"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/transport"
	"github.com/jerson21/santitelas-frontend-sub003/internal/interfaces/http/dto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockSyncService is a mock implementation of SyncService
type MockSyncService struct {
	mock.Mock
}

func (m *MockSyncService) Pending() []validation.ValidationRequest {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]validation.ValidationRequest)
}

func (m *MockSyncService) Approve(ctx context.Context, id validation.ID, reason string) (transfersync.Result, error) {
	args := m.Called(ctx, id, reason)
	return args.Get(0).(transfersync.Result), args.Error(1)
}

func (m *MockSyncService) Reject(ctx context.Context, id validation.ID, reason string) (transfersync.Result, error) {
	args := m.Called(ctx, id, reason)
	return args.Get(0).(transfersync.Result), args.Error(1)
}

func (m *MockSyncService) Refresh(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSyncService) Reconnect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSyncService) RecentDecisions(ctx context.Context, limit int) ([]validation.Decision, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]validation.Decision), args.Error(1)
}

func (m *MockSyncService) Status() transfersync.Status {
	return m.Called().Get(0).(transfersync.Status)
}

func (m *MockSyncService) Ready() bool {
	return m.Called().Bool(0)
}

func newValidationEngine(svc SyncService) *gin.Engine {
	h := NewValidationHandler(svc)
	r := gin.New()
	r.GET("/validations", h.List)
	r.POST("/validations/refresh", h.Refresh)
	r.POST("/validations/:id/approve", h.Approve)
	r.POST("/validations/:id/reject", h.Reject)
	r.GET("/decisions", h.Decisions)
	r.GET("/status", h.Status)
	r.POST("/connection/reconnect", h.Reconnect)
	return r
}

func perform(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, dto.Response) {
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
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp dto.Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestValidationHandler_List(t *testing.T) {
	svc := new(MockSyncService)
	pending := []validation.ValidationRequest{
		{ID: 1, Cajero: "ana", Monto: decimal.NewFromInt(15000), Estado: validation.EstadoPending},
		{ID: 2, Cajero: "luis", Monto: decimal.NewFromInt(990), Estado: validation.EstadoProcessing},
	}
	svc.On("Pending").Return(pending)

	w, resp := perform(t, newValidationEngine(svc), http.MethodGet, "/validations", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 2, resp.Meta.Total)
	items, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, items, 2)
	svc.AssertExpectations(t)
}

func TestValidationHandler_Approve(t *testing.T) {
	t.Run("confirmed by server", func(t *testing.T) {
		svc := new(MockSyncService)
		svc.On("Approve", mock.Anything, validation.ID(7), "").Return(transfersync.Result{
			DecisionID: "d-1", ID: 7, Approved: true, Outcome: validation.OutcomeOk, Detail: "processed",
		}, nil)

		w, resp := perform(t, newValidationEngine(svc), http.MethodPost, "/validations/7/approve", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, resp.Success)
		data := resp.Data.(map[string]any)
		assert.Equal(t, "ok", data["outcome"])
		assert.Equal(t, "processed", data["detail"])
		svc.AssertExpectations(t)
	})

	t.Run("reason is forwarded", func(t *testing.T) {
		svc := new(MockSyncService)
		svc.On("Approve", mock.Anything, validation.ID(7), "verified by phone").
			Return(transfersync.Result{ID: 7, Approved: true, Outcome: validation.OutcomeOk}, nil)

		w, _ := perform(t, newValidationEngine(svc), http.MethodPost, "/validations/7/approve",
			dto.DecisionRequest{Reason: "verified by phone"})

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("timed out", func(t *testing.T) {
		svc := new(MockSyncService)
		svc.On("Approve", mock.Anything, validation.ID(7), "").Return(transfersync.Result{
			ID: 7, Approved: true, Outcome: validation.OutcomeTimedOut, Detail: "no confirmation", Latency: time.Second,
		}, nil)

		w, resp := perform(t, newValidationEngine(svc), http.MethodPost, "/validations/7/approve", nil)

		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeDecisionTimeout, resp.Error.Code)
		assert.NotNil(t, resp.Data)
	})

	t.Run("failed", func(t *testing.T) {
		svc := new(MockSyncService)
		svc.On("Approve", mock.Anything, validation.ID(7), "").Return(transfersync.Result{
			ID: 7, Approved: true, Outcome: validation.OutcomeFailed, Detail: "server error",
		}, nil)

		w, resp := perform(t, newValidationEngine(svc), http.MethodPost, "/validations/7/approve", nil)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, dto.ErrCodeDecisionFailed, resp.Error.Code)
		assert.Equal(t, "server error", resp.Error.Message)
	})

	t.Run("invalid id never reaches the service", func(t *testing.T) {
		svc := new(MockSyncService)

		w, resp := perform(t, newValidationEngine(svc), http.MethodPost, "/validations/abc/approve", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, validation.CodeInvalidInput, resp.Error.Code)
		svc.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything, mock.Anything)
	})

	domainCases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not pending", validation.ErrValidationNotFound, http.StatusNotFound, validation.CodeNotFound},
		{"not connected", validation.ErrNotConnected, http.StatusServiceUnavailable, validation.CodeNotConnected},
		{"in flight", validation.ErrDecisionInFlight, http.StatusConflict, validation.CodeInFlight},
		{"context cancelled", context.Canceled, http.StatusGatewayTimeout, dto.ErrCodeTimeout},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}
	for _, tc := range domainCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(MockSyncService)
			svc.On("Approve", mock.Anything, validation.ID(3), "").Return(transfersync.Result{}, tc.err)

			w, resp := perform(t, newValidationEngine(svc), http.MethodPost, "/validations/3/approve", nil)

			assert.Equal(t, tc.status, w.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
		})
	}
}

func TestValidationHandler_Reject(t *testing.T) {
	t.Run("reason required", func(t *testing.T) {
		svc := new(MockSyncService)
		svc.On("Reject", mock.Anything, validation.ID(4), "").Return(transfersync.Result{}, validation.ErrReasonRequired)

		w, resp := perform(t, newValidationEngine(svc), http.MethodPost, "/validations/4/reject", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, validation.CodeReasonRequired, resp.Error.Code)
	})

	t.Run("confirmed with reason", func(t *testing.T) {
		svc := new(MockSyncService)
		svc.On("Reject", mock.Anything, validation.ID(4), "monto no coincide").Return(transfersync.Result{
			ID: 4, Outcome: validation.OutcomeOk, Detail: "processed",
		}, nil)

		w, resp := perform(t, newValidationEngine(svc), http.MethodPost, "/validations/4/reject",
			dto.DecisionRequest{Reason: "monto no coincide"})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, resp.Success)
		svc.AssertExpectations(t)
	})

	t.Run("reason too long", func(t *testing.T) {
		svc := new(MockSyncService)

		w, resp := perform(t, newValidationEngine(svc), http.MethodPost, "/validations/4/reject",
			dto.DecisionRequest{Reason: strings.Repeat("x", 501)})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeBadRequest, resp.Error.Code)
		svc.AssertNotCalled(t, "Reject", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("malformed body", func(t *testing.T) {
		svc := new(MockSyncService)
		req := httptest.NewRequest(http.MethodPost, "/validations/4/reject", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		newValidationEngine(svc).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestValidationHandler_Refresh(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "accepted", status: http.StatusAccepted},
		{name: "already in flight", err: scheduler.ErrPollInFlight, status: http.StatusAccepted},
		{name: "poll failed", err: &pendingapi.PollError{StatusCode: 502, Message: "bad gateway"}, status: http.StatusServiceUnavailable, code: dto.ErrCodeUnavailable},
		{name: "push request failed", err: transport.ErrNotConnected, status: http.StatusServiceUnavailable, code: dto.ErrCodeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSyncService)
			svc.On("Refresh", mock.Anything).Return(tt.err)
			svc.On("Pending").Return([]validation.ValidationRequest{{ID: 1}}).Maybe()

			w, resp := perform(t, newValidationEngine(svc), http.MethodPost, "/validations/refresh", nil)

			assert.Equal(t, tt.status, w.Code)
			if tt.code != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.code, resp.Error.Code)
			} else {
				assert.True(t, resp.Success)
			}
		})
	}
}

func TestValidationHandler_Decisions(t *testing.T) {
	t.Run("default limit", func(t *testing.T) {
		svc := new(MockSyncService)
		svc.On("RecentDecisions", mock.Anything, defaultDecisionLimit).Return([]validation.Decision{
			{DecisionID: "d-2", ValidationID: 2, Outcome: validation.OutcomeOk},
		}, nil)

		w, resp := perform(t, newValidationEngine(svc), http.MethodGet, "/decisions", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, resp.Meta.Total)
		svc.AssertExpectations(t)
	})

	t.Run("explicit limit", func(t *testing.T) {
		svc := new(MockSyncService)
		svc.On("RecentDecisions", mock.Anything, 5).Return([]validation.Decision{}, nil)

		w, _ := perform(t, newValidationEngine(svc), http.MethodGet, "/decisions?limit=5", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("bad limit", func(t *testing.T) {
		svc := new(MockSyncService)

		w, _ := perform(t, newValidationEngine(svc), http.MethodGet, "/decisions?limit=-1", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "RecentDecisions", mock.Anything, mock.Anything)
	})

	t.Run("journal disabled", func(t *testing.T) {
		svc := new(MockSyncService)
		svc.On("RecentDecisions", mock.Anything, defaultDecisionLimit).Return(nil, transfersync.ErrJournalDisabled)

		w, resp := perform(t, newValidationEngine(svc), http.MethodGet, "/decisions", nil)

		assert.Equal(t, http.StatusNotImplemented, w.Code)
		assert.Equal(t, dto.ErrCodeNotImplemented, resp.Error.Code)
	})
}

func TestValidationHandler_StatusAndReconnect(t *testing.T) {
	svc := new(MockSyncService)
	svc.On("Status").Return(transfersync.Status{
		Identity:  transfersync.Identity{Usuario: "maria", Rol: "admin"},
		Transport: transport.Stats{StateName: "connected", Ready: true},
		Pending:   3,
		Revision:  12,
	})
	r := newValidationEngine(svc)

	w, resp := perform(t, r, http.MethodGet, "/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	assert.EqualValues(t, 3, data["pending"])

	svc.On("Reconnect", mock.Anything).Return(nil).Once()
	w, resp = perform(t, r, http.MethodPost, "/connection/reconnect", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, resp.Data.(map[string]any)["connected"])

	svc.On("Reconnect", mock.Anything).Return(transport.ErrUnauthorized).Once()
	w, resp = perform(t, r, http.MethodPost, "/connection/reconnect", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, false, resp.Data.(map[string]any)["connected"])
	svc.AssertExpectations(t)
}
