package periods

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-posting/internal/accounting/shared"
	core "github.com/odyssey-erp/odyssey-posting/internal/shared"
)

type stubRepo struct {
	period Period
	err    error
}

func (r stubRepo) FindPeriodByDate(context.Context, core.Scope, time.Time) (Period, error) {
	return r.period, r.err
}

var (
	scope = core.Scope{TenantID: "t1", CompanyID: "c1"}
	may   = Period{
		ID:        "p-2025-05",
		Code:      "2025-05",
		StartDate: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC),
		Status:    PeriodStatusOpen,
	}
	journalDate = time.Date(2025, 5, 15, 9, 0, 0, 0, time.UTC)
)

func TestGuardAllowsOpenPeriod(t *testing.T) {
	g := NewGuard(stubRepo{period: may})
	require.NoError(t, g.EnsureOpen(context.Background(), scope, journalDate))
}

func TestGuardRejectsClosedPeriod(t *testing.T) {
	closed := may
	closed.Status = PeriodStatusLocked
	err := NewGuard(stubRepo{period: closed}).EnsureOpen(context.Background(), scope, journalDate)
	require.Equal(t, core.CodePeriodNotOpen, core.CodeOf(err))
	require.Equal(t, "LOCKED", core.DetailsOf(err)["status"])
}

func TestGuardRejectsMissingPeriod(t *testing.T) {
	err := NewGuard(stubRepo{err: shared.ErrPeriodNotFound}).EnsureOpen(context.Background(), scope, journalDate)
	require.Equal(t, core.CodePeriodNotOpen, core.CodeOf(err))
	require.Equal(t, "2025-05-15", core.DetailsOf(err)["journalDate"])
}

func TestGuardWrapsLookupFailure(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewGuard(stubRepo{err: cause}).EnsureOpen(context.Background(), scope, journalDate)
	require.Equal(t, core.CodePeriodLookupFailed, core.CodeOf(err))
	require.ErrorIs(t, err, cause)
}
