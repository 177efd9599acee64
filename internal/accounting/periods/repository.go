package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-posting/internal/accounting/shared"
	core "github.com/odyssey-erp/odyssey-posting/internal/shared"
)

// Repository reads fiscal periods within a tenant scope.
type Repository interface {
	FindPeriodByDate(ctx context.Context, scope core.Scope, date time.Time) (Period, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// FindPeriodByDate returns the period covering the supplied date, whatever
// its status.
func (r *repository) FindPeriodByDate(ctx context.Context, scope core.Scope, date time.Time) (Period, error) {
	var period Period
	err := r.db.QueryRow(ctx, `SELECT id, code, start_date, end_date, status FROM periods
WHERE tenant_id = $1 AND company_id = $2 AND $3::date BETWEEN start_date AND end_date
ORDER BY start_date LIMIT 1`, scope.TenantID, scope.CompanyID, date).
		Scan(&period.ID, &period.Code, &period.StartDate, &period.EndDate, &period.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrPeriodNotFound
		}
		return Period{}, fmt.Errorf("periods: find by date: %w", err)
	}
	return period, nil
}
