// Package coa checks journal lines against the company's chart of accounts.
package coa

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-posting/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-posting/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-posting/internal/currency"
	"github.com/odyssey-erp/odyssey-posting/internal/shared"
)

// AccountReader is the persistence collaborator consulted during validation.
type AccountReader interface {
	GetAccountsInfo(ctx context.Context, scope shared.Scope, ids []string) (map[string]accounts.AccountInfo, error)
	ListAccountsInfo(ctx context.Context, scope shared.Scope) ([]accounts.AccountInfo, error)
}

// WarningCode classifies soft findings.
type WarningCode string

const (
	WarningControlAccount WarningCode = "CONTROL_ACCOUNT_POSTING"
)

// Warning is a non-blocking finding about a referenced account.
type Warning struct {
	Code      WarningCode `json:"code"`
	AccountID string      `json:"accountId"`
	Message   string      `json:"message"`
}

// Result is returned when every referenced account is postable.
type Result struct {
	Warnings       []Warning                       `json:"warnings,omitempty"`
	AccountDetails map[string]accounts.AccountInfo `json:"accountDetails"`
}

// Validator checks lines against account metadata.
type Validator struct {
	reader AccountReader
}

// NewValidator constructs a Validator.
func NewValidator(reader AccountReader) *Validator {
	return &Validator{reader: reader}
}

// Validate fetches per-line accounts and the full company list concurrently,
// then applies the existence, activity and posting-flag rules. An account
// denominated in one of the also currencies is accepted alongside the
// journal currency.
func (v *Validator) Validate(ctx context.Context, scope shared.Scope, lines []journals.Line, currencyCode string, also ...string) (Result, error) {
	ids := journals.AccountIDs(lines)

	var (
		found   map[string]accounts.AccountInfo
		company []accounts.AccountInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		found, err = v.reader.GetAccountsInfo(gctx, scope, ids)
		return err
	})
	g.Go(func() error {
		var err error
		company, err = v.reader.ListAccountsInfo(gctx, scope)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, shared.Wrap(shared.CodeCOALookupFailed, "chart of accounts lookup failed", err)
	}

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return Result{}, shared.NewError(shared.CodeAccountsNotFound, "one or more accounts do not exist for this company", map[string]any{
			"missingAccountIds": missing,
		})
	}

	if inactive := filter(ids, found, func(a accounts.AccountInfo) bool { return !a.IsActive }); len(inactive) > 0 {
		return Result{}, shared.NewError(shared.CodeInactiveAccounts, "one or more accounts are inactive", map[string]any{
			"accountIds": inactive,
		})
	}
	if restricted := filter(ids, found, func(a accounts.AccountInfo) bool { return a.IsRestricted }); len(restricted) > 0 {
		return Result{}, shared.NewError(shared.CodeRestrictedAccount, "one or more accounts do not allow direct posting", map[string]any{
			"accountIds": restricted,
		})
	}

	parents := make(map[string]struct{})
	for _, a := range company {
		if a.ParentID != nil && *a.ParentID != "" {
			parents[*a.ParentID] = struct{}{}
		}
	}
	if headers := filter(ids, found, func(a accounts.AccountInfo) bool { _, ok := parents[a.ID]; return ok }); len(headers) > 0 {
		return Result{}, shared.NewError(shared.CodeHeaderAccountPosting, "header accounts cannot be posted to directly", map[string]any{
			"accountIds": headers,
		})
	}

	want := currency.Normalize(currencyCode)
	accepted := map[string]struct{}{want: {}}
	for _, c := range also {
		if c = currency.Normalize(c); c != "" {
			accepted[c] = struct{}{}
		}
	}
	mismatched := filter(ids, found, func(a accounts.AccountInfo) bool {
		if a.Currency == "" {
			return false
		}
		_, ok := accepted[currency.Normalize(a.Currency)]
		return !ok
	})
	if len(mismatched) > 0 {
		return Result{}, shared.NewError(shared.CodeAccountCurrencyMismatch, "account currency does not match the journal currency", map[string]any{
			"accountIds": mismatched,
			"currency":   want,
		})
	}

	var warnings []Warning
	for _, id := range ids {
		a := found[id]
		if a.IsControl {
			warnings = append(warnings, Warning{
				Code:      WarningControlAccount,
				AccountID: id,
				Message:   fmt.Sprintf("account %s (%s) is a control account; direct postings bypass its sub-ledger", a.Code, a.Name),
			})
		}
	}

	details := make(map[string]accounts.AccountInfo, len(ids))
	for _, id := range ids {
		details[id] = found[id]
	}
	return Result{Warnings: warnings, AccountDetails: details}, nil
}

func filter(ids []string, found map[string]accounts.AccountInfo, pred func(accounts.AccountInfo) bool) []string {
	var out []string
	for _, id := range ids {
		if pred(found[id]) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
