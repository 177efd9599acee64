package mappings

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-posting/internal/accounting/shared"
	core "github.com/odyssey-erp/odyssey-posting/internal/shared"
)

type Repository interface {
	Get(ctx context.Context, scope core.Scope, module, key string) (AccountMapping, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, scope core.Scope, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, errors.New("accounting: module and key required")
	}
	normalized := strings.ToUpper(module)
	var mapping AccountMapping
	err := r.db.QueryRow(ctx, `SELECT module, key, account_id, updated_at FROM account_mappings
WHERE tenant_id = $1 AND company_id = $2 AND module = $3 AND key = $4`, scope.TenantID, scope.CompanyID, normalized, key).
		Scan(&mapping.Module, &mapping.Key, &mapping.AccountID, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, shared.ErrMappingNotFound
		}
		return AccountMapping{}, err
	}
	return mapping, nil
}

// Static is an in-memory Repository keyed by module/key, useful for
// single-company deployments and tests.
type Static map[string]string

// Get implements Repository.
func (s Static) Get(_ context.Context, _ core.Scope, module, key string) (AccountMapping, error) {
	id, ok := s[strings.ToUpper(module)+"."+key]
	if !ok {
		return AccountMapping{}, shared.ErrMappingNotFound
	}
	return AccountMapping{Module: strings.ToUpper(module), Key: key, AccountID: id}, nil
}
