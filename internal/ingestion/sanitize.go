package ingestion

import (
	"strconv"
	"strings"

	"github.com/rpattn/ngoreports/pkg/validator"
)

// SanitizeRow coerces the raw text of a data row into a report candidate.
// It never fails: unparseable numbers become nil and are rejected by
// validation.
func SanitizeRow(row Row) validator.ReportCandidate {
	return validator.ReportCandidate{
		NGOID:           strings.TrimSpace(row.Value(validator.ColumnNGOID)),
		Month:           NormalizeMonth(row.Value(validator.ColumnMonth)),
		PeopleHelped:    parseCount(row.Value(validator.ColumnPeopleHelped)),
		EventsConducted: parseCount(row.Value(validator.ColumnEventsConducted)),
		FundsUtilized:   parseCount(row.Value(validator.ColumnFundsUtilized)),
	}
}

func parseCount(raw string) *int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
