package shared

import "errors"

var (
	// ErrAccountNotFound indicates a chart of accounts lookup miss.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrBankAccountNotFound indicates the bank account does not exist in scope.
	ErrBankAccountNotFound = errors.New("accounting: bank account not found")
	// ErrMappingNotFound indicates account mapping missing.
	ErrMappingNotFound = errors.New("accounting: account mapping not found")
	// ErrPeriodNotFound indicates no fiscal period covers the date.
	ErrPeriodNotFound = errors.New("accounting: period not found")
	// ErrPartyNotFound indicates a missing customer or supplier.
	ErrPartyNotFound = errors.New("accounting: party not found")
)
