package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-posting/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-posting/internal/platform/db"
	core "github.com/odyssey-erp/odyssey-posting/internal/shared"
)

// Repository reads chart of accounts and bank metadata within a tenant scope.
type Repository interface {
	GetAccountsInfo(ctx context.Context, scope core.Scope, ids []string) (map[string]AccountInfo, error)
	ListAccountsInfo(ctx context.Context, scope core.Scope) ([]AccountInfo, error)
	GetBankAccountByID(ctx context.Context, scope core.Scope, id string) (BankAccount, error)
	GetOrCreateAdvanceAccount(ctx context.Context, scope core.Scope, kind AdvanceKind, currency string) (AccountInfo, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, code, name, type, COALESCE(currency, ''), parent_id, is_active, is_restricted, is_control`

func scanAccount(row pgx.Row) (AccountInfo, error) {
	var a AccountInfo
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Currency, &a.ParentID, &a.IsActive, &a.IsRestricted, &a.IsControl)
	return a, err
}

func (r *repository) GetAccountsInfo(ctx context.Context, scope core.Scope, ids []string) (map[string]AccountInfo, error) {
	result := make(map[string]AccountInfo, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts
WHERE tenant_id = $1 AND company_id = $2 AND id = ANY($3)`, scope.TenantID, scope.CompanyID, ids)
	if err != nil {
		return nil, fmt.Errorf("accounts: query accounts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result[a.ID] = a
	}
	return result, rows.Err()
}

func (r *repository) ListAccountsInfo(ctx context.Context, scope core.Scope) ([]AccountInfo, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts
WHERE tenant_id = $1 AND company_id = $2 ORDER BY code`, scope.TenantID, scope.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("accounts: list accounts: %w", err)
	}
	defer rows.Close()
	var list []AccountInfo
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func (r *repository) GetBankAccountByID(ctx context.Context, scope core.Scope, id string) (BankAccount, error) {
	var b BankAccount
	err := r.db.QueryRow(ctx, `SELECT id, name, account_id, currency, is_active FROM bank_accounts
WHERE tenant_id = $1 AND company_id = $2 AND id = $3`, scope.TenantID, scope.CompanyID, id).
		Scan(&b.ID, &b.Name, &b.AccountID, &b.Currency, &b.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankAccount{}, shared.ErrBankAccountNotFound
		}
		return BankAccount{}, err
	}
	return b, nil
}

// GetOrCreateAdvanceAccount returns the advance account for kind and currency,
// creating it under its template code when the company has none yet.
func (r *repository) GetOrCreateAdvanceAccount(ctx context.Context, scope core.Scope, kind AdvanceKind, currency string) (AccountInfo, error) {
	tmpl, ok := advanceTemplates[kind]
	if !ok {
		return AccountInfo{}, fmt.Errorf("accounts: unsupported advance kind %q", kind)
	}
	var account AccountInfo
	const selectAdvance = `SELECT ` + accountColumns + ` FROM accounts
WHERE tenant_id = $1 AND company_id = $2 AND system_tag = $3 AND COALESCE(currency, $4) = $4
ORDER BY code LIMIT 1`
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		found, err := scanAccount(tx.QueryRow(ctx, selectAdvance, scope.TenantID, scope.CompanyID, string(kind), currency))
		if err == nil {
			account = found
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		created, err := scanAccount(tx.QueryRow(ctx, `INSERT INTO accounts
(tenant_id, company_id, code, name, type, currency, system_tag, is_active, is_restricted, is_control)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, FALSE, FALSE)
ON CONFLICT (tenant_id, company_id, code) DO NOTHING
RETURNING `+accountColumns, scope.TenantID, scope.CompanyID, tmpl.code+"-"+currency, tmpl.name+" ("+currency+")", tmpl.typ, currency, string(kind)))
		if errors.Is(err, pgx.ErrNoRows) {
			// A concurrent caller created it first.
			created, err = scanAccount(tx.QueryRow(ctx, selectAdvance, scope.TenantID, scope.CompanyID, string(kind), currency))
		}
		if err != nil {
			return fmt.Errorf("accounts: create advance account: %w", err)
		}
		account = created
		return nil
	})
	return account, err
}
