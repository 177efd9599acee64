package periods

import (
	"context"
	"errors"
	"time"

	"github.com/odyssey-erp/odyssey-posting/internal/accounting/shared"
	core "github.com/odyssey-erp/odyssey-posting/internal/shared"
)

// Guard blocks postings dated outside an open fiscal period.
type Guard struct {
	repo Repository
}

// NewGuard constructs a Guard.
func NewGuard(repo Repository) *Guard {
	return &Guard{repo: repo}
}

// EnsureOpen returns PERIOD_NOT_OPEN when no period covers date or the
// covering period is closed or locked.
func (g *Guard) EnsureOpen(ctx context.Context, scope core.Scope, date time.Time) error {
	period, err := g.repo.FindPeriodByDate(ctx, scope, date)
	if errors.Is(err, shared.ErrPeriodNotFound) {
		return core.NewError(core.CodePeriodNotOpen, "no fiscal period covers the journal date", map[string]any{
			"journalDate": date.Format(time.DateOnly),
		})
	}
	if err != nil {
		return core.Wrap(core.CodePeriodLookupFailed, "fiscal period lookup failed", err)
	}
	if period.Status != PeriodStatusOpen {
		return core.NewError(core.CodePeriodNotOpen, "fiscal period is not open for posting", map[string]any{
			"journalDate": date.Format(time.DateOnly),
			"period":      period.Code,
			"status":      string(period.Status),
		})
	}
	return nil
}
