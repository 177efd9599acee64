package shared

import (
	"errors"
	"fmt"
)

// Kind groups error codes by who is expected to act on them.
type Kind string

const (
	KindInput       Kind = "input"
	KindPolicy      Kind = "policy"
	KindConsistency Kind = "consistency"
	KindDependency  Kind = "dependency"
	KindTransient   Kind = "transient"
	KindInternal    Kind = "internal"
)

// Code is a stable, machine-readable failure identifier.
type Code string

const (
	CodeInvalidCurrency       Code = "INVALID_CURRENCY"
	CodeInvalidCurrencyFormat Code = "INVALID_CURRENCY_FORMAT"
	CodeUnknownCurrency       Code = "UNKNOWN_CURRENCY"
	CodeFutureDate            Code = "FUTURE_DATE"
	CodeNoLines               Code = "NO_LINES"
	CodeTooManyLines          Code = "TOO_MANY_LINES"
	CodeInvalidLineAmounts    Code = "INVALID_LINE_AMOUNTS"
	CodeZeroAmounts           Code = "ZERO_AMOUNTS"
	CodeExchangeRateRequired  Code = "EXCHANGE_RATE_REQUIRED"
	CodeInvalidExchangeRate   Code = "INVALID_EXCHANGE_RATE"
	CodeCurrencyMismatch      Code = "CURRENCY_MISMATCH"
	CodeInvalidAmount         Code = "INVALID_AMOUNT"
	CodeMixedAllocationTypes  Code = "MIXED_ALLOCATION_TYPES"
	CodePartyRequired         Code = "PARTY_REQUIRED"
	CodeInvalidRequest        Code = "INVALID_REQUEST"
	CodeInvalidFXRequest      Code = "INVALID_FX_REQUEST"

	CodeSoDViolation       Code = "SOD_VIOLATION"
	CodeFeatureDisabled    Code = "FEATURE_DISABLED"
	CodeOverThreshold      Code = "OVER_THRESHOLD"
	CodeConflictOfInterest Code = "CONFLICT_OF_INTEREST"

	CodeUnbalancedJournal       Code = "UNBALANCED_JOURNAL"
	CodeJournalUnbalanced       Code = "JOURNAL_UNBALANCED"
	CodeJournalValidationFailed Code = "JOURNAL_VALIDATION_FAILED"
	CodePeriodNotOpen           Code = "PERIOD_NOT_OPEN"

	CodeAccountsNotFound        Code = "ACCOUNTS_NOT_FOUND"
	CodeInactiveAccounts        Code = "INACTIVE_ACCOUNTS"
	CodeRestrictedAccount       Code = "RESTRICTED_ACCOUNT"
	CodeHeaderAccountPosting    Code = "HEADER_ACCOUNT_POSTING"
	CodeAccountCurrencyMismatch Code = "ACCOUNT_CURRENCY_MISMATCH"
	CodeCOALookupFailed         Code = "COA_LOOKUP_FAILED"
	CodeBankAccountNotFound     Code = "BANK_ACCOUNT_NOT_FOUND"
	CodePartyNotFound           Code = "PARTY_NOT_FOUND"
	CodeMappingNotFound         Code = "ACCOUNT_MAPPING_NOT_FOUND"
	CodePeriodLookupFailed      Code = "PERIOD_LOOKUP_FAILED"

	CodeFXSourceFailed     Code = "FX_SOURCE_FAILED"
	CodeFXAllSourcesFailed Code = "FX_ALL_SOURCES_FAILED"
	CodeFXRatesNotFound    Code = "FX_RATES_NOT_FOUND"

	CodeInternal Code = "INTERNAL_ERROR"
)

var codeKinds = map[Code]Kind{
	CodeInvalidCurrency:       KindInput,
	CodeInvalidCurrencyFormat: KindInput,
	CodeUnknownCurrency:       KindInput,
	CodeFutureDate:            KindInput,
	CodeNoLines:               KindInput,
	CodeTooManyLines:          KindInput,
	CodeInvalidLineAmounts:    KindInput,
	CodeZeroAmounts:           KindInput,
	CodeExchangeRateRequired:  KindInput,
	CodeInvalidExchangeRate:   KindInput,
	CodeCurrencyMismatch:      KindInput,
	CodeInvalidAmount:         KindInput,
	CodeMixedAllocationTypes:  KindInput,
	CodePartyRequired:         KindInput,
	CodeInvalidRequest:        KindInput,
	CodeInvalidFXRequest:      KindInput,

	CodeSoDViolation:       KindPolicy,
	CodeFeatureDisabled:    KindPolicy,
	CodeOverThreshold:      KindPolicy,
	CodeConflictOfInterest: KindPolicy,

	CodeUnbalancedJournal:       KindConsistency,
	CodeJournalUnbalanced:       KindConsistency,
	CodeJournalValidationFailed: KindConsistency,
	CodePeriodNotOpen:           KindConsistency,

	CodeAccountsNotFound:        KindDependency,
	CodeInactiveAccounts:        KindDependency,
	CodeRestrictedAccount:       KindDependency,
	CodeHeaderAccountPosting:    KindDependency,
	CodeAccountCurrencyMismatch: KindDependency,
	CodeCOALookupFailed:         KindDependency,
	CodeBankAccountNotFound:     KindDependency,
	CodePartyNotFound:           KindDependency,
	CodeMappingNotFound:         KindDependency,
	CodeFXRatesNotFound:         KindDependency,
	CodePeriodLookupFailed:      KindDependency,

	CodeFXSourceFailed:     KindTransient,
	CodeFXAllSourcesFailed: KindTransient,

	CodeInternal: KindInternal,
}

// KindOf returns the taxonomy bucket for a code. Unregistered codes are internal.
func KindOf(code Code) Kind {
	if kind, ok := codeKinds[code]; ok {
		return kind
	}
	return KindInternal
}

// Error is the structured failure returned across package boundaries.
type Error struct {
	Code      Code
	Kind      Kind
	Message   string
	Details   map[string]any
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind != KindInternal {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on code so sentinel-style comparisons work with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewError builds an error whose kind and retryability derive from code.
func NewError(code Code, message string, details map[string]any) *Error {
	kind := KindOf(code)
	return &Error{
		Code:      code,
		Kind:      kind,
		Message:   message,
		Details:   details,
		Retryable: kind == KindTransient,
	}
}

// Wrap attaches an underlying cause to a coded error.
func Wrap(code Code, message string, err error) *Error {
	e := NewError(code, message, nil)
	e.Err = err
	return e
}

// Internal converts an unexpected error into a generic INTERNAL_ERROR, keeping
// the cause for diagnostics only.
func Internal(err error) *Error {
	if err == nil {
		return nil
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded
	}
	return Wrap(CodeInternal, "internal error", err)
}

// CodeOf extracts the code of err, or empty when err is not coded.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// IsRetryable reports whether err was flagged safe to retry.
func IsRetryable(err error) bool {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Retryable
	}
	return false
}

// DetailsOf returns the details payload of a coded error.
func DetailsOf(err error) map[string]any {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Details
	}
	return nil
}
