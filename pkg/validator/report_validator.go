package validator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Column names every report upload must carry.
const (
	ColumnNGOID           = "ngo_id"
	ColumnMonth           = "month"
	ColumnPeopleHelped    = "people_helped"
	ColumnEventsConducted = "events_conducted"
	ColumnFundsUtilized   = "funds_utilized"
)

// RequiredColumns lists the report columns in their canonical order.
var RequiredColumns = []string{
	ColumnNGOID,
	ColumnMonth,
	ColumnPeopleHelped,
	ColumnEventsConducted,
	ColumnFundsUtilized,
}

var monthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// IsCanonicalMonth reports whether value is a YYYY-MM token naming a real month.
func IsCanonicalMonth(value string) bool {
	if !monthPattern.MatchString(value) {
		return false
	}
	month, _ := strconv.Atoi(value[5:])
	return month >= 1 && month <= 12
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	IsValid bool              `json:"is_valid"`
	Errors  []ValidationError `json:"errors"`
}

// Summary joins the errors as "field - message" pairs.
func (r ValidationResult) Summary() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, fmt.Sprintf("%s - %s", e.Field, e.Message))
	}
	return strings.Join(parts, ", ")
}

// ReportCandidate is a sanitized report awaiting validation. A nil numeric
// field means the source text was not a number.
type ReportCandidate struct {
	NGOID           string
	Month           string
	PeopleHelped    *int64
	EventsConducted *int64
	FundsUtilized   *int64
}

// ValidateReport checks a candidate against the report rules and returns
// every failing field.
func ValidateReport(c ReportCandidate) ValidationResult {
	result := ValidationResult{IsValid: true, Errors: []ValidationError{}}
	fail := func(field, message string, value any) {
		result.IsValid = false
		result.Errors = append(result.Errors, ValidationError{Field: field, Message: message, Value: value})
	}

	if c.NGOID == "" {
		fail(ColumnNGOID, "NGO ID is required", nil)
	}

	switch {
	case !monthPattern.MatchString(c.Month):
		fail(ColumnMonth, "Month must be in YYYY-MM format", c.Month)
	case !IsCanonicalMonth(c.Month):
		fail(ColumnMonth, "Month must be between 01 and 12", c.Month)
	}

	numeric := []struct {
		field string
		value *int64
	}{
		{ColumnPeopleHelped, c.PeopleHelped},
		{ColumnEventsConducted, c.EventsConducted},
		{ColumnFundsUtilized, c.FundsUtilized},
	}
	for _, n := range numeric {
		switch {
		case n.value == nil:
			fail(n.field, "must be an integer", nil)
		case *n.value < 0:
			fail(n.field, "must be >= 0", *n.value)
		}
	}

	return result
}

// RowError reports the first invalid data row of an upload. Row is the
// 1-based row number in the file, counting the header as row 1.
type RowError struct {
	Row    int
	Result ValidationResult
}

func (e *RowError) Error() string {
	return fmt.Sprintf("Row %d validation failed: %s", e.Row, e.Result.Summary())
}

// HeaderError reports structural problems with an upload's header row.
type HeaderError struct {
	Missing    []string
	Duplicated []string
}

func (e *HeaderError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "Missing required columns: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Duplicated) > 0 {
		parts = append(parts, "Duplicate required columns: "+strings.Join(e.Duplicated, ", "))
	}
	return strings.Join(parts, "; ")
}

// NormalizeHeader trims whitespace and a leading byte order mark from a column name.
func NormalizeHeader(name string) string {
	return strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
}

// ValidateHeaders ensures every required column is present exactly once.
// Unknown columns are ignored.
func ValidateHeaders(headers []string) error {
	seen := make(map[string]int, len(headers))
	for _, h := range headers {
		seen[NormalizeHeader(h)]++
	}

	herr := &HeaderError{}
	for _, col := range RequiredColumns {
		switch count := seen[col]; {
		case count == 0:
			herr.Missing = append(herr.Missing, col)
		case count > 1:
			herr.Duplicated = append(herr.Duplicated, col)
		}
	}
	if len(herr.Missing) > 0 || len(herr.Duplicated) > 0 {
		return herr
	}
	return nil
}
