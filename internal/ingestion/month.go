package ingestion

import (
	"regexp"
	"strings"
)

var (
	canonicalMonthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)
	slashDatePattern      = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	namedMonthPattern     = regexp.MustCompile(`^([A-Za-z]+)\s+(\d{4})$`)

	monthNames = map[string]string{
		"jan": "01", "january": "01",
		"feb": "02", "february": "02",
		"mar": "03", "march": "03",
		"apr": "04", "april": "04",
		"may": "05",
		"jun": "06", "june": "06",
		"jul": "07", "july": "07",
		"aug": "08", "august": "08",
		"sep": "09", "sept": "09", "september": "09",
		"oct": "10", "october": "10",
		"nov": "11", "november": "11",
		"dec": "12", "december": "12",
	}
)

// NormalizeMonth converts the month formats seen in uploads into YYYY-MM.
// Accepted: YYYY-MM, M/D/YYYY or MM/DD/YYYY (day ignored), and
// "<month name> YYYY". Unrecognized text is returned trimmed so that
// validation rejects it against the originating row; blank input yields "".
func NormalizeMonth(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	if canonicalMonthPattern.MatchString(trimmed) {
		return trimmed
	}

	if m := slashDatePattern.FindStringSubmatch(trimmed); m != nil {
		month := m[1]
		if len(month) == 1 {
			month = "0" + month
		}
		return m[3] + "-" + month
	}

	if m := namedMonthPattern.FindStringSubmatch(trimmed); m != nil {
		if num, ok := monthNames[strings.ToLower(m[1])]; ok {
			return m[2] + "-" + num
		}
	}

	return trimmed
}
