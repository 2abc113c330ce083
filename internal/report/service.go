package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rpattn/ngoreports/internal/domain"
	"github.com/rpattn/ngoreports/internal/repository"
	"github.com/rpattn/ngoreports/pkg/validator"
)

// ErrInvalidMonth is returned when a month argument is not YYYY-MM.
var ErrInvalidMonth = errors.New("month must be in YYYY-MM format")

// ValidationFailedError carries every rule a submitted report broke.
type ValidationFailedError struct {
	Result validator.ValidationResult
}

func (e *ValidationFailedError) Error() string {
	return "validation failed: " + e.Result.Summary()
}

// Details returns one "field - message" entry per failed rule.
func (e *ValidationFailedError) Details() []string {
	out := make([]string, 0, len(e.Result.Errors))
	for _, v := range e.Result.Errors {
		out = append(out, fmt.Sprintf("%s - %s", v.Field, v.Message))
	}
	return out
}

// Service handles single report submissions and monthly aggregates.
type Service struct {
	reports repository.ReportRepository
	logger  *slog.Logger
}

func NewService(reports repository.ReportRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{reports: reports, logger: logger.With("component", "report")}
}

// Submit validates and upserts one report. The month must already be in
// canonical form.
func (s *Service) Submit(ctx context.Context, candidate validator.ReportCandidate) (domain.Report, error) {
	candidate.NGOID = strings.TrimSpace(candidate.NGOID)
	candidate.Month = strings.TrimSpace(candidate.Month)

	result := validator.ValidateReport(candidate)
	if !result.IsValid {
		return domain.Report{}, &ValidationFailedError{Result: result}
	}

	saved, err := s.reports.Upsert(ctx, domain.Report{
		NGOID:           candidate.NGOID,
		Month:           candidate.Month,
		PeopleHelped:    *candidate.PeopleHelped,
		EventsConducted: *candidate.EventsConducted,
		FundsUtilized:   *candidate.FundsUtilized,
	})
	if err != nil {
		return domain.Report{}, fmt.Errorf("save report: %w", err)
	}
	s.logger.Info("report saved", "ngo_id", saved.NGOID, "month", saved.Month)
	return saved, nil
}

// Dashboard aggregates every report filed for month.
func (s *Service) Dashboard(ctx context.Context, month string) (domain.MonthlySummary, error) {
	month = strings.TrimSpace(month)
	if !validator.IsCanonicalMonth(month) {
		return domain.MonthlySummary{}, ErrInvalidMonth
	}
	summary, err := s.reports.MonthlySummary(ctx, month)
	if err != nil {
		return domain.MonthlySummary{}, fmt.Errorf("summarize month %s: %w", month, err)
	}
	summary.Month = month
	return summary, nil
}

// List returns the reports filed for month ordered by NGO.
func (s *Service) List(ctx context.Context, month string, limit, offset int) ([]domain.Report, error) {
	month = strings.TrimSpace(month)
	if !validator.IsCanonicalMonth(month) {
		return nil, ErrInvalidMonth
	}
	return s.reports.ListByMonth(ctx, month, limit, offset)
}
