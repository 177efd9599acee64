package partners

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	accounting "github.com/odyssey-erp/odyssey-posting/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-posting/internal/shared"
)

// Repository resolves customers and suppliers within a tenant scope.
type Repository interface {
	GetCustomerByID(ctx context.Context, scope shared.Scope, id string) (Customer, error)
	GetSupplierByID(ctx context.Context, scope shared.Scope, id string) (Supplier, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) GetCustomerByID(ctx context.Context, scope shared.Scope, id string) (Customer, error) {
	var c Customer
	err := r.db.QueryRow(ctx, `SELECT id, code, name, ar_account_id, COALESCE(currency, ''), is_active FROM customers
WHERE tenant_id = $1 AND company_id = $2 AND id = $3`, scope.TenantID, scope.CompanyID, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.ARAccountID, &c.Currency, &c.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, accounting.ErrPartyNotFound
		}
		return Customer{}, err
	}
	return c, nil
}

func (r *repository) GetSupplierByID(ctx context.Context, scope shared.Scope, id string) (Supplier, error) {
	var s Supplier
	err := r.db.QueryRow(ctx, `SELECT id, code, name, ap_account_id, COALESCE(currency, ''), is_active FROM suppliers
WHERE tenant_id = $1 AND company_id = $2 AND id = $3`, scope.TenantID, scope.CompanyID, id).
		Scan(&s.ID, &s.Code, &s.Name, &s.APAccountID, &s.Currency, &s.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, accounting.ErrPartyNotFound
		}
		return Supplier{}, err
	}
	return s, nil
}
