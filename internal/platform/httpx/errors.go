// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-posting/internal/shared"
)

// ErrValidation marks a request that failed DTO validation or decoding.
var ErrValidation = errors.New("validation failed")

var notFoundCodes = map[shared.Code]struct{}{
	shared.CodeBankAccountNotFound: {},
	shared.CodePartyNotFound:       {},
	shared.CodeFXRatesNotFound:     {},
}

// StatusFor returns the HTTP status for a coded error.
func StatusFor(err *shared.Error) int {
	if err == nil {
		return http.StatusInternalServerError
	}
	switch err.Kind {
	case shared.KindInput:
		return http.StatusUnprocessableEntity
	case shared.KindPolicy:
		return http.StatusForbidden
	case shared.KindConsistency:
		return http.StatusConflict
	case shared.KindDependency:
		if _, ok := notFoundCodes[err.Code]; ok {
			return http.StatusNotFound
		}
		return http.StatusFailedDependency
	case shared.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807. Errors
// without a code are reported as a generic internal error.
func RespondError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrValidation) {
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	coded := shared.Internal(err)
	if coded == nil {
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	status := StatusFor(coded)
	detail := coded.Message
	if coded.Kind == shared.KindInternal {
		detail = ""
	}
	writeProblem(w, ProblemDetail{
		Type:      "urn:odyssey:error:" + string(coded.Code),
		Title:     http.StatusText(status),
		Status:    status,
		Detail:    detail,
		Code:      string(coded.Code),
		Details:   coded.Details,
		Retryable: coded.Retryable,
	})
}
