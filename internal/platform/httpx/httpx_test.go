package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-posting/internal/shared"
)

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	return p
}

func TestRespondErrorMapsKinds(t *testing.T) {
	cases := []struct {
		code   shared.Code
		status int
	}{
		{shared.CodeInvalidCurrency, http.StatusUnprocessableEntity},
		{shared.CodeSoDViolation, http.StatusForbidden},
		{shared.CodeUnbalancedJournal, http.StatusConflict},
		{shared.CodeCOALookupFailed, http.StatusFailedDependency},
		{shared.CodePartyNotFound, http.StatusNotFound},
		{shared.CodeFXAllSourcesFailed, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			rr := httptest.NewRecorder()
			RespondError(rr, shared.NewError(tc.code, "boom", map[string]any{"k": "v"}))
			require.Equal(t, tc.status, rr.Code)
			p := decodeProblem(t, rr)
			require.Equal(t, string(tc.code), p.Code)
			require.Equal(t, "boom", p.Detail)
			require.Equal(t, "v", p.Details["k"])
		})
	}
}

func TestRespondErrorHidesInternalCause(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("pq: password authentication failed"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	p := decodeProblem(t, rr)
	require.Equal(t, string(shared.CodeInternal), p.Code)
	require.Empty(t, p.Detail)
	require.NotContains(t, rr.Body.String(), "password")
}

func TestRespondErrorRetryableFlag(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, shared.NewError(shared.CodeFXAllSourcesFailed, "all down", nil))
	require.True(t, decodeProblem(t, rr).Retryable)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	err := DecodeJSON(httptest.NewRecorder(), req, &dst)
	require.ErrorIs(t, err, ErrValidation)

	rr := httptest.NewRecorder()
	RespondError(rr, err)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestValidateStructCollectsFields(t *testing.T) {
	type line struct {
		AccountID string `validate:"required"`
	}
	type dto struct {
		Currency string `validate:"required,len=3"`
		Lines    []line `validate:"required,min=1,dive"`
	}
	err := ValidateStruct(validator.New(), dto{Currency: "US", Lines: []line{{}}})
	require.Equal(t, shared.CodeInvalidRequest, shared.CodeOf(err))
	fields := shared.DetailsOf(err)["fields"].(map[string]any)
	require.Equal(t, "len", fields["Currency"])
	require.Equal(t, "required", fields["Lines[0].AccountID"])

	require.NoError(t, ValidateStruct(validator.New(), dto{Currency: "USD", Lines: []line{{AccountID: "a"}}}))
}
