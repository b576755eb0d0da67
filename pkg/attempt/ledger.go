// Package attempt records second-factor verification outcomes and derives
// lockout decisions from them. There is no stored "locked" flag; a lockout
// exists exactly when the recent failure history says it does.
package attempt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RecordParams describes one verification outcome to record
type RecordParams struct {
	UserID    uuid.UUID
	Method    string
	Success   bool
	IPAddress string
	At        time.Time
}

// Ledger is the append-only record of verification outcomes
type Ledger struct {
	repo Repository
}

// NewLedger creates a Ledger backed by the given repository
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Record appends one outcome to the ledger
func (l *Ledger) Record(ctx context.Context, params RecordParams) error {
	at := params.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	err := l.repo.Append(ctx, Attempt{
		ID:          uuid.New(),
		UserID:      params.UserID,
		Method:      params.Method,
		Success:     params.Success,
		IPAddress:   params.IPAddress,
		AttemptedAt: at,
	})
	if err != nil {
		slog.Error("Failed to record attempt", "userID", params.UserID, "error", err)
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	if !params.Success {
		slog.Info("Recorded failed verification", "userID", params.UserID, "method", params.Method)
	}
	return nil
}

// CountSince reports the user's total attempts at or after since
func (l *Ledger) CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	return l.repo.CountSince(ctx, userID, since)
}
