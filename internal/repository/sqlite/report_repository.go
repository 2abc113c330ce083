package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/ngoreports/internal/domain"
	"github.com/rpattn/ngoreports/internal/repository"
)

const reportColumns = `ngo_id, month, people_helped, events_conducted, funds_utilized, created_at, updated_at`

const upsertReportSQL = `INSERT INTO reports (` + reportColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (ngo_id, month) DO UPDATE
	SET people_helped = excluded.people_helped,
	    events_conducted = excluded.events_conducted,
	    funds_utilized = excluded.funds_utilized,
	    updated_at = excluded.updated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type reportRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewReportRepository returns a report repository backed by db.
func NewReportRepository(db *sql.DB) repository.ReportRepository {
	return &reportRepository{db: db, now: time.Now}
}

func (r *reportRepository) upsert(ctx context.Context, exec execer, report domain.Report) error {
	stamp := formatTime(r.now())
	_, err := exec.ExecContext(ctx, upsertReportSQL,
		report.NGOID,
		report.Month,
		report.PeopleHelped,
		report.EventsConducted,
		report.FundsUtilized,
		stamp,
		stamp,
	)
	return err
}

func (r *reportRepository) Upsert(ctx context.Context, report domain.Report) (domain.Report, error) {
	if err := r.upsert(ctx, r.db, report); err != nil {
		return domain.Report{}, fmt.Errorf("failed to upsert report: %w", err)
	}
	return r.GetByKey(ctx, report.NGOID, report.Month)
}

// UpsertBatch writes the batch in one transaction. A constraint violation
// only aborts its own statement, so the remaining rows still commit.
func (r *reportRepository) UpsertBatch(ctx context.Context, reports []domain.Report) (repository.BatchUpsertResult, error) {
	if len(reports) == 0 {
		return repository.BatchUpsertResult{}, nil
	}

	failed := make(map[domain.ReportKey]error)
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, rep := range domain.DedupeReports(reports) {
			if err := r.upsert(ctx, tx, rep); err != nil {
				if !isConstraintError(err) {
					return fmt.Errorf("failed to upsert report batch: %w", err)
				}
				failed[rep.Key()] = err
			}
		}
		return nil
	})
	if err != nil {
		return repository.BatchUpsertResult{}, err
	}
	return repository.NewBatchUpsertResult(reports, failed), nil
}

func (r *reportRepository) GetByKey(ctx context.Context, ngoID string, month string) (domain.Report, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE ngo_id = ? AND month = ?`,
		ngoID, month,
	)
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Report{}, repository.ErrNotFound
		}
		return domain.Report{}, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

func (r *reportRepository) ListByMonth(ctx context.Context, month string, limit int, offset int) ([]domain.Report, error) {
	limit, offset = repository.NormalizePage(limit, offset)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE month = ? ORDER BY ngo_id LIMIT ? OFFSET ?`,
		month, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []domain.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}
	return reports, nil
}

func (r *reportRepository) MonthlySummary(ctx context.Context, month string) (domain.MonthlySummary, error) {
	summary := domain.MonthlySummary{Month: month}
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT ngo_id),
		        COALESCE(SUM(people_helped), 0),
		        COALESCE(SUM(events_conducted), 0),
		        COALESCE(SUM(funds_utilized), 0)
		 FROM reports WHERE month = ?`,
		month,
	).Scan(
		&summary.TotalNGOsReporting,
		&summary.TotalPeopleHelped,
		&summary.TotalEventsConducted,
		&summary.TotalFundsUtilized,
	)
	if err != nil {
		return domain.MonthlySummary{}, fmt.Errorf("failed to summarize reports: %w", err)
	}
	return summary, nil
}

func scanReport(row scanner) (domain.Report, error) {
	var (
		report    domain.Report
		createdAt string
		updatedAt string
	)
	if err := row.Scan(
		&report.NGOID,
		&report.Month,
		&report.PeopleHelped,
		&report.EventsConducted,
		&report.FundsUtilized,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Report{}, err
	}
	var err error
	if report.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Report{}, err
	}
	if report.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Report{}, err
	}
	return report, nil
}
