package repository

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rpattn/ngoreports/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const reportColumns = `ngo_id, month, people_helped, events_conducted, funds_utilized, created_at, updated_at`

const upsertReportSQL = `INSERT INTO reports (ngo_id, month, people_helped, events_conducted, funds_utilized)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (ngo_id, month) DO UPDATE
	SET people_helped = EXCLUDED.people_helped,
	    events_conducted = EXCLUDED.events_conducted,
	    funds_utilized = EXCLUDED.funds_utilized,
	    updated_at = NOW()
	RETURNING ` + reportColumns

// Rows are inserted in key order so that concurrent batches sharing keys
// take their row locks in the same order.
const upsertReportBatchSQL = `INSERT INTO reports (ngo_id, month, people_helped, events_conducted, funds_utilized)
	SELECT ngo_id, month, people_helped, events_conducted, funds_utilized
	FROM unnest($1::text[], $2::text[], $3::bigint[], $4::bigint[], $5::bigint[])
	     AS batch(ngo_id, month, people_helped, events_conducted, funds_utilized)
	ORDER BY ngo_id, month
	ON CONFLICT (ngo_id, month) DO UPDATE
	SET people_helped = EXCLUDED.people_helped,
	    events_conducted = EXCLUDED.events_conducted,
	    funds_utilized = EXCLUDED.funds_utilized,
	    updated_at = NOW()`

// maxBatchAttempts bounds retries of a batch aborted by a deadlock or
// serialization failure.
const maxBatchAttempts = 2

type reportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository wires a report repository backed by pgxpool.
func NewReportRepository(pool *pgxpool.Pool) ReportRepository {
	return &reportRepository{pool: pool}
}

func (r *reportRepository) Upsert(ctx context.Context, report domain.Report) (domain.Report, error) {
	row := r.pool.QueryRow(ctx, upsertReportSQL,
		report.NGOID,
		report.Month,
		report.PeopleHelped,
		report.EventsConducted,
		report.FundsUtilized,
	)
	saved, err := scanReport(row)
	if err != nil {
		return domain.Report{}, fmt.Errorf("failed to upsert report: %w", err)
	}
	return saved, nil
}

func (r *reportRepository) UpsertBatch(ctx context.Context, reports []domain.Report) (BatchUpsertResult, error) {
	if len(reports) == 0 {
		return BatchUpsertResult{}, nil
	}

	unique := domain.DedupeReports(reports)
	slices.SortFunc(unique, func(a, b domain.Report) int {
		if c := cmp.Compare(a.NGOID, b.NGOID); c != 0 {
			return c
		}
		return cmp.Compare(a.Month, b.Month)
	})
	var (
		ngoIDs  = make([]string, len(unique))
		months  = make([]string, len(unique))
		people  = make([]int64, len(unique))
		events  = make([]int64, len(unique))
		funding = make([]int64, len(unique))
	)
	for i, rep := range unique {
		ngoIDs[i] = rep.NGOID
		months[i] = rep.Month
		people[i] = rep.PeopleHelped
		events[i] = rep.EventsConducted
		funding[i] = rep.FundsUtilized
	}

	var err error
	for attempt := 0; attempt < maxBatchAttempts; attempt++ {
		_, err = r.pool.Exec(ctx, upsertReportBatchSQL, ngoIDs, months, people, events, funding)
		if !isTransientConflict(err) {
			break
		}
	}
	if err == nil {
		return NewBatchUpsertResult(reports, nil), nil
	}
	if !isRowLevelError(err) {
		return BatchUpsertResult{}, fmt.Errorf("failed to upsert report batch: %w", err)
	}

	// The statement is atomic, so nothing was written. Retry row by row to
	// isolate the offending reports.
	failed := make(map[domain.ReportKey]error)
	for _, rep := range unique {
		if _, err := r.Upsert(ctx, rep); err != nil {
			if !isRowLevelError(err) {
				return BatchUpsertResult{}, err
			}
			failed[rep.Key()] = err
		}
	}
	return NewBatchUpsertResult(reports, failed), nil
}

func (r *reportRepository) GetByKey(ctx context.Context, ngoID string, month string) (domain.Report, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE ngo_id = $1 AND month = $2`,
		ngoID, month,
	)
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Report{}, ErrNotFound
		}
		return domain.Report{}, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

func (r *reportRepository) ListByMonth(ctx context.Context, month string, limit int, offset int) ([]domain.Report, error) {
	limit, offset = NormalizePage(limit, offset)

	rows, err := r.pool.Query(ctx,
		`SELECT `+reportColumns+`
		 FROM reports
		 WHERE month = $1
		 ORDER BY ngo_id
		 LIMIT $2 OFFSET $3`,
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
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT ngo_id),
		        COALESCE(SUM(people_helped), 0)::bigint,
		        COALESCE(SUM(events_conducted), 0)::bigint,
		        COALESCE(SUM(funds_utilized), 0)::bigint
		 FROM reports
		 WHERE month = $1`,
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

// isRowLevelError reports whether err was caused by the data of a row
// (data exception or integrity violation) rather than by the connection.
func isRowLevelError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	class := pgErr.Code
	if len(class) < 2 {
		return false
	}
	return class[:2] == "22" || class[:2] == "23"
}

// isTransientConflict reports a deadlock (40P01) or serialization failure
// (40001). The statement was rolled back and can be retried as is.
func isTransientConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40P01" || pgErr.Code == "40001"
}

func scanReport(row pgx.Row) (domain.Report, error) {
	var (
		report    domain.Report
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
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
	if createdAt.Valid {
		report.CreatedAt = createdAt.Time.UTC()
	}
	if updatedAt.Valid {
		report.UpdatedAt = updatedAt.Time.UTC()
	}
	return report, nil
}
