package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditRecord is one append-only audit row: a terminal execution outcome
// or a risk rejection.
type AuditRecord struct {
	ID              int64
	Timestamp       time.Time
	Symbol          string
	Direction       SignalDirection
	Outcome         string // terminal OrderStatus, or "risk_rejected"
	Attempts        int
	RejectionReason string // set only for risk rejections
}

// AuditStore persists the append-only audit trail.
type AuditStore interface {
	Record(ctx context.Context, rec AuditRecord) error
	List(ctx context.Context, opts ListOpts) ([]AuditRecord, error)
	// ListBefore returns records strictly older than the cutoff, for
	// archival.
	ListBefore(ctx context.Context, before time.Time) ([]AuditRecord, error)
}

// RiskStateStore checkpoints and restores the portfolio risk state across
// process restarts.
type RiskStateStore interface {
	Load(ctx context.Context) (RiskState, error)
	Save(ctx context.Context, state RiskState) error
}
