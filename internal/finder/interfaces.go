package finder

import (
	"context"
	"time"

	"github.com/JakeFAU/cbcr-finder/internal/ledger"
)

// Mirror receives a copy of every appended ledger row.
type Mirror interface {
	InsertRow(ctx context.Context, runID string, row ledger.Row, at time.Time) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Validator inspects a downloaded payload before it is stored.
type Validator func(body []byte) error
