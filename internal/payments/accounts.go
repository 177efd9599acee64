package payments

import (
	"context"
	"errors"

	"github.com/odyssey-erp/odyssey-posting/internal/accounting/mappings"
	accounting "github.com/odyssey-erp/odyssey-posting/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-posting/internal/shared"
)

// accountResolver picks AR/AP accounts in priority order: allocation
// override, party record, company default mapping. Lookups are memoized for
// the duration of one compile call.
type accountResolver struct {
	c               *Compiler
	scope           shared.Scope
	party           PartyType
	fallbackPartyID string
	partyAccounts   map[string]string
	defaultAccount  string
}

func (r *accountResolver) receivable(ctx context.Context, a Allocation) (string, error) {
	if a.ARAccountID != nil && *a.ARAccountID != "" {
		return *a.ARAccountID, nil
	}
	id := a.CustomerID
	if id == "" {
		id = r.fallbackPartyID
	}
	if id != "" && r.c.parties != nil {
		accountID, err := r.fromParty(ctx, id, func(ctx context.Context) (*string, error) {
			customer, err := r.c.parties.GetCustomerByID(ctx, r.scope, id)
			if err != nil {
				return nil, err
			}
			return customer.ARAccountID, nil
		})
		if err != nil || accountID != "" {
			return accountID, err
		}
	}
	return r.fromMapping(ctx, mappings.KeyARControl)
}

func (r *accountResolver) payable(ctx context.Context, a Allocation) (string, error) {
	if a.APAccountID != nil && *a.APAccountID != "" {
		return *a.APAccountID, nil
	}
	id := a.SupplierID
	if id == "" {
		id = r.fallbackPartyID
	}
	if id != "" && r.c.parties != nil {
		accountID, err := r.fromParty(ctx, id, func(ctx context.Context) (*string, error) {
			supplier, err := r.c.parties.GetSupplierByID(ctx, r.scope, id)
			if err != nil {
				return nil, err
			}
			return supplier.APAccountID, nil
		})
		if err != nil || accountID != "" {
			return accountID, err
		}
	}
	return r.fromMapping(ctx, mappings.KeyAPControl)
}

func (r *accountResolver) fromParty(ctx context.Context, id string, load func(context.Context) (*string, error)) (string, error) {
	if r.partyAccounts == nil {
		r.partyAccounts = make(map[string]string)
	}
	if accountID, ok := r.partyAccounts[id]; ok {
		return accountID, nil
	}
	accountID, err := load(ctx)
	if err != nil {
		if errors.Is(err, accounting.ErrPartyNotFound) {
			return "", shared.NewError(shared.CodePartyNotFound, "payment party does not exist for this company", map[string]any{
				"partyType": string(r.party),
				"partyId":   id,
			})
		}
		return "", err
	}
	resolved := ""
	if accountID != nil {
		resolved = *accountID
	}
	r.partyAccounts[id] = resolved
	return resolved, nil
}

func (r *accountResolver) fromMapping(ctx context.Context, key string) (string, error) {
	if r.defaultAccount != "" {
		return r.defaultAccount, nil
	}
	mapping, err := r.c.mappings.Get(ctx, r.scope, mappings.ModulePayments, key)
	if err != nil {
		return "", mappingError(err, key)
	}
	r.defaultAccount = mapping.AccountID
	return mapping.AccountID, nil
}

func mappingError(err error, key string) error {
	if errors.Is(err, accounting.ErrMappingNotFound) {
		return shared.NewError(shared.CodeMappingNotFound, "default account mapping is not configured", map[string]any{
			"module": mappings.ModulePayments,
			"key":    key,
		})
	}
	return err
}
