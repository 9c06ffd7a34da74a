package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jerson21/santitelas-frontend-sub003/internal/domain/validation"
)

// ErrDecisionNotFound is returned when completing an unknown decision
var ErrDecisionNotFound = errors.New("decision not found in journal")

const maxListLimit = 500

// DecisionModel is the GORM model for a journaled decision
type DecisionModel struct {
	ID           string          `gorm:"type:varchar(36);primaryKey"`
	ValidationID int64           `gorm:"index;not null"`
	Approved     bool            `gorm:"not null"`
	Reason       string          `gorm:"type:text"`
	Admin        string          `gorm:"type:varchar(100);index"`
	Monto        decimal.Decimal `gorm:"type:decimal(18,2)"`
	Outcome      string          `gorm:"type:varchar(20);index;not null"`
	Detail       string          `gorm:"type:text"`
	RequestedAt  time.Time       `gorm:"index;not null"`
	CompletedAt  *time.Time
}

// TableName returns the table name for the model
func (DecisionModel) TableName() string {
	return "decision_journal"
}

// ToEntity converts the model to a domain decision
func (m *DecisionModel) ToEntity() validation.Decision {
	d := validation.Decision{
		DecisionID:   m.ID,
		ValidationID: validation.ID(m.ValidationID),
		Approved:     m.Approved,
		Reason:       m.Reason,
		Admin:        m.Admin,
		Monto:        m.Monto.String(),
		Outcome:      validation.Outcome(m.Outcome),
		Detail:       m.Detail,
		RequestedAt:  m.RequestedAt,
		CompletedAt:  m.CompletedAt,
	}
	if m.CompletedAt != nil {
		d.Latency = m.CompletedAt.Sub(m.RequestedAt)
	}
	return d
}

// DecisionModelFromEntity creates a model from a domain decision
func DecisionModelFromEntity(d *validation.Decision) (*DecisionModel, error) {
	monto := decimal.Zero
	if d.Monto != "" {
		var err error
		if monto, err = decimal.NewFromString(d.Monto); err != nil {
			return nil, fmt.Errorf("invalid monto %q: %w", d.Monto, err)
		}
	}
	outcome := d.Outcome
	if outcome == "" {
		outcome = validation.OutcomePending
	}
	return &DecisionModel{
		ID:           d.DecisionID,
		ValidationID: int64(d.ValidationID),
		Approved:     d.Approved,
		Reason:       d.Reason,
		Admin:        d.Admin,
		Monto:        monto,
		Outcome:      string(outcome),
		Detail:       d.Detail,
		RequestedAt:  d.RequestedAt.UTC(),
		CompletedAt:  d.CompletedAt,
	}, nil
}

// GormDecisionJournal implements validation.DecisionJournal with GORM
type GormDecisionJournal struct {
	db *gorm.DB
}

// NewGormDecisionJournal creates a new decision journal
func NewGormDecisionJournal(db *gorm.DB) *GormDecisionJournal {
	return &GormDecisionJournal{db: db}
}

// Record inserts a decision
func (r *GormDecisionJournal) Record(ctx context.Context, d *validation.Decision) error {
	model, err := DecisionModelFromEntity(d)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

// Complete stores the outcome of a recorded decision
func (r *GormDecisionJournal) Complete(ctx context.Context, decisionID string, outcome validation.Outcome, detail string, completedAt time.Time) error {
	completed := completedAt.UTC()
	result := r.db.WithContext(ctx).
		Model(&DecisionModel{}).
		Where("id = ?", decisionID).
		Updates(map[string]any{
			"outcome":      string(outcome),
			"detail":       detail,
			"completed_at": completed,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to complete decision: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDecisionNotFound
	}
	return nil
}

// ListRecent returns the latest decisions, newest first
func (r *GormDecisionJournal) ListRecent(ctx context.Context, limit int) ([]validation.Decision, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	var models []DecisionModel
	err := r.db.WithContext(ctx).
		Order("requested_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}

	out := make([]validation.Decision, 0, len(models))
	for i := range models {
		out = append(out, models[i].ToEntity())
	}
	return out, nil
}

var _ validation.DecisionJournal = (*GormDecisionJournal)(nil)
