package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jerson21/santitelas-frontend-sub003/internal/application/transfersync"
	"github.com/jerson21/santitelas-frontend-sub003/internal/domain/validation"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/logger"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/pendingapi"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/scheduler"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/transport"
	"github.com/jerson21/santitelas-frontend-sub003/internal/interfaces/http/dto"
)

const defaultDecisionLimit = 50

// SyncService is the slice of the sync client the control API drives
type SyncService interface {
	Pending() []validation.ValidationRequest
	Approve(ctx context.Context, id validation.ID, reason string) (transfersync.Result, error)
	Reject(ctx context.Context, id validation.ID, reason string) (transfersync.Result, error)
	Refresh(ctx context.Context) error
	Reconnect(ctx context.Context) error
	RecentDecisions(ctx context.Context, limit int) ([]validation.Decision, error)
	Status() transfersync.Status
	Ready() bool
}

var _ SyncService = (*transfersync.SyncClient)(nil)

// ValidationHandler exposes pending validations and decisions
type ValidationHandler struct {
	BaseHandler
	svc SyncService
}

// NewValidationHandler creates a new ValidationHandler
func NewValidationHandler(svc SyncService) *ValidationHandler {
	return &ValidationHandler{svc: svc}
}

// List returns the pending validations, oldest first
func (h *ValidationHandler) List(c *gin.Context) {
	pending := h.svc.Pending()
	c.JSON(http.StatusOK, dto.NewListResponse(pending, len(pending)))
}

// Approve sends an approval and waits for the server to confirm it
func (h *ValidationHandler) Approve(c *gin.Context) {
	h.decide(c, true)
}

// Reject sends a rejection and waits for the server to confirm it.
// A reason is required.
func (h *ValidationHandler) Reject(c *gin.Context) {
	h.decide(c, false)
}

func (h *ValidationHandler) decide(c *gin.Context, approved bool) {
	id, err := validation.ParseID(c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	var req dto.DecisionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, err.Error())
			return
		}
	}

	ctx := c.Request.Context()
	var res transfersync.Result
	if approved {
		res, err = h.svc.Approve(ctx, id, req.Reason)
	} else {
		res, err = h.svc.Reject(ctx, id, req.Reason)
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}

	switch res.Outcome {
	case validation.OutcomeOk:
		h.Success(c, res)
	case validation.OutcomeTimedOut:
		c.JSON(dto.GetHTTPStatus(dto.ErrCodeDecisionTimeout), decisionFailure(c, dto.ErrCodeDecisionTimeout, res))
	default:
		c.JSON(dto.GetHTTPStatus(dto.ErrCodeDecisionFailed), decisionFailure(c, dto.ErrCodeDecisionFailed, res))
	}
}

func decisionFailure(c *gin.Context, code string, res transfersync.Result) dto.Response {
	resp := dto.NewErrorResponseWithRequestID(code, res.Detail, getRequestID(c))
	resp.Data = res
	return resp
}

// Refresh requests a fresh pending list
func (h *ValidationHandler) Refresh(c *gin.Context) {
	err := h.svc.Refresh(c.Request.Context())
	var pollErr *pendingapi.PollError
	switch {
	case err == nil:
		h.Accepted(c, gin.H{"pending": len(h.svc.Pending())})
	case errors.Is(err, scheduler.ErrPollInFlight):
		h.Accepted(c, gin.H{"pending": len(h.svc.Pending()), "note": "refresh already in flight"})
	case errors.As(err, &pollErr), errors.Is(err, transport.ErrNotConnected):
		h.ErrorWithCode(c, dto.ErrCodeUnavailable, err.Error())
	default:
		h.HandleError(c, err)
	}
}

// Decisions lists journaled decisions, newest first
func (h *ValidationHandler) Decisions(c *gin.Context) {
	limit := defaultDecisionLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	decisions, err := h.svc.RecentDecisions(c.Request.Context(), limit)
	if errors.Is(err, transfersync.ErrJournalDisabled) {
		h.ErrorWithCode(c, dto.ErrCodeNotImplemented, err.Error())
		return
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(decisions, len(decisions)))
}

// Status returns the combined client status
func (h *ValidationHandler) Status(c *gin.Context) {
	h.Success(c, h.svc.Status())
}

// Reconnect restarts the push channel. A failed first attempt keeps
// retrying in the background, so it is reported as accepted.
func (h *ValidationHandler) Reconnect(c *gin.Context) {
	if err := h.svc.Reconnect(c.Request.Context()); err != nil {
		logger.FromContext(c.Request.Context()).Warn("manual reconnect attempt failed", zap.Error(err))
		h.Accepted(c, gin.H{"connected": false, "error": err.Error()})
		return
	}
	h.Accepted(c, gin.H{"connected": true})
}
