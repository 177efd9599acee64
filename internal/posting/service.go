// Package posting validates a proposed journal end to end without persisting
// it. A successful verdict must be re-checked by the ledger writer inside its
// own transaction.
package posting

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/odyssey-posting/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-posting/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-posting/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-posting/internal/currency"
	"github.com/odyssey-erp/odyssey-posting/internal/shared"
	"github.com/odyssey-erp/odyssey-posting/internal/sod"
)

// Context identifies the actor and tenant scope of a submission.
type Context struct {
	TenantID  string   `json:"tenantId" validate:"required"`
	CompanyID string   `json:"companyId" validate:"required"`
	UserID    string   `json:"userId" validate:"required"`
	UserRole  sod.Role `json:"userRole" validate:"required"`
}

// Scope returns the tenant scope of the submission.
func (c Context) Scope() shared.Scope {
	return shared.Scope{TenantID: c.TenantID, CompanyID: c.CompanyID}
}

// Request is a proposed journal.
type Request struct {
	JournalNumber string    `json:"journalNumber" validate:"required"`
	Description   string    `json:"description,omitempty"`
	JournalDate   time.Time `json:"journalDate" validate:"required"`
	Currency      string    `json:"currency" validate:"required"`
	// TransactionCurrency is the source document currency when it differs
	// from Currency; accounts held in it are postable.
	TransactionCurrency string          `json:"transactionCurrency,omitempty"`
	Lines               []journals.Line `json:"lines" validate:"dive"`
	Context             Context         `json:"context"`
}

// Verdict is the outcome of a successful validation.
type Verdict struct {
	Validated        bool                            `json:"validated"`
	RequiresApproval bool                            `json:"requiresApproval"`
	ApproverRoles    []sod.Role                      `json:"approverRoles,omitempty"`
	COAWarnings      []coa.Warning                   `json:"coaWarnings,omitempty"`
	TotalDebit       float64                         `json:"totalDebit"`
	TotalCredit      float64                         `json:"totalCredit"`
	AccountDetails   map[string]accounts.AccountInfo `json:"accountDetails,omitempty"`
}

// COAValidator checks lines against the chart of accounts.
type COAValidator interface {
	Validate(ctx context.Context, scope shared.Scope, lines []journals.Line, currency string, also ...string) (coa.Result, error)
}

// PeriodGuard rejects journal dates outside an open fiscal period.
type PeriodGuard interface {
	EnsureOpen(ctx context.Context, scope shared.Scope, date time.Time) error
}

// Service composes the access, structural, balance, currency, date and chart
// of accounts checks.
type Service struct {
	engine *sod.Engine
	coa    COAValidator
	guard  PeriodGuard
	now    func() time.Time
	tracer trace.Tracer
}

// NewService constructs a Service. A nil engine uses the default rule table.
func NewService(engine *sod.Engine, validator COAValidator) *Service {
	if engine == nil {
		engine = sod.NewEngine(nil)
	}
	return &Service{
		engine: engine,
		coa:    validator,
		now:    time.Now,
		tracer: otel.Tracer("github.com/odyssey-erp/odyssey-posting/internal/posting"),
	}
}

// WithNow overrides the clock used for the future-date check.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithPeriodGuard enables the fiscal period check, which runs after the date
// check and before the chart of accounts lookup.
func (s *Service) WithPeriodGuard(guard PeriodGuard) {
	s.guard = guard
}

// ValidatePosting runs every check in order and stops at the first failure.
func (s *Service) ValidatePosting(ctx context.Context, req Request) (verdict Verdict, err error) {
	ctx, span := s.tracer.Start(ctx, "posting.validate", trace.WithAttributes(
		attribute.String("journal.number", req.JournalNumber),
		attribute.String("tenant.id", req.Context.TenantID),
		attribute.Int("journal.lines", len(req.Lines)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(shared.CodeOf(err)))
		}
		span.End()
	}()

	decision := s.engine.CheckCompliance(sod.ActionJournalPost, req.Context.UserRole, "")
	if !decision.Allowed {
		return Verdict{}, shared.NewError(shared.CodeSoDViolation, decision.Reason, map[string]any{
			"action":     string(sod.ActionJournalPost),
			"userRole":   string(req.Context.UserRole),
			"reasonCode": string(decision.ReasonCode),
		})
	}

	if err := journals.ValidateLines(req.Lines); err != nil {
		return Verdict{}, err
	}
	totals, err := journals.ValidateBalanced(req.Lines)
	if err != nil {
		return Verdict{}, err
	}

	code, err := currency.ValidateCode(req.Currency)
	if err != nil {
		return Verdict{}, shared.NewError(shared.CodeInvalidCurrency, "journal currency must be a 3-letter ISO-4217 code", map[string]any{
			"currency": req.Currency,
			"cause":    string(shared.CodeOf(err)),
		})
	}
	var also []string
	if req.TransactionCurrency != "" {
		txn, err := currency.ValidateCode(req.TransactionCurrency)
		if err != nil {
			return Verdict{}, shared.NewError(shared.CodeInvalidCurrency, "transaction currency must be a 3-letter ISO-4217 code", map[string]any{
				"currency": req.TransactionCurrency,
				"cause":    string(shared.CodeOf(err)),
			})
		}
		if txn != code {
			also = append(also, txn)
		}
	}

	if s.isFuture(req.JournalDate) {
		return Verdict{}, shared.NewError(shared.CodeFutureDate, "journal date cannot be in the future", map[string]any{
			"journalDate": req.JournalDate.Format(time.DateOnly),
			"today":       s.now().Format(time.DateOnly),
		})
	}

	if s.guard != nil {
		if err := s.guard.EnsureOpen(ctx, req.Context.Scope(), req.JournalDate); err != nil {
			return Verdict{}, err
		}
	}

	if s.coa == nil {
		return Verdict{}, shared.Internal(errNoCOAValidator)
	}
	checked, err := s.coa.Validate(ctx, req.Context.Scope(), req.Lines, code, also...)
	if err != nil {
		return Verdict{}, err
	}

	verdict = Verdict{
		Validated:        true,
		RequiresApproval: decision.RequiresApproval,
		COAWarnings:      checked.Warnings,
		TotalDebit:       totals.Debit,
		TotalCredit:      totals.Credit,
		AccountDetails:   checked.AccountDetails,
	}
	if decision.RequiresApproval {
		verdict.ApproverRoles = decision.ApproverRoles
	}
	span.SetAttributes(attribute.Bool("posting.requires_approval", verdict.RequiresApproval))
	return verdict, nil
}

// isFuture compares calendar days in the clock's location.
func (s *Service) isFuture(date time.Time) bool {
	now := s.now()
	loc := now.Location()
	d := date.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return day.After(today)
}
