package domain

import "time"

// Report holds one NGO's metrics for one month. (NGOID, Month) is unique.
type Report struct {
	NGOID           string    `json:"ngo_id"`
	Month           string    `json:"month"`
	PeopleHelped    int64     `json:"people_helped"`
	EventsConducted int64     `json:"events_conducted"`
	FundsUtilized   int64     `json:"funds_utilized"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ReportKey is the natural key of a report.
type ReportKey struct {
	NGOID string
	Month string
}

// Key returns the natural key of the report.
func (r Report) Key() ReportKey {
	return ReportKey{NGOID: r.NGOID, Month: r.Month}
}

// MonthlySummary aggregates every report filed for a month.
type MonthlySummary struct {
	Month                string `json:"month"`
	TotalNGOsReporting   int64  `json:"total_ngos_reporting"`
	TotalPeopleHelped    int64  `json:"total_people_helped"`
	TotalEventsConducted int64  `json:"total_events_conducted"`
	TotalFundsUtilized   int64  `json:"total_funds_utilized"`
}

// IsEmpty reports whether no NGO has reported for the month.
func (s MonthlySummary) IsEmpty() bool {
	return s.TotalNGOsReporting == 0
}

// DedupeReports collapses reports sharing a key, keeping the last occurrence
// at the position of the first. Applying the result is equivalent to applying
// the input in order.
func DedupeReports(reports []Report) []Report {
	if len(reports) < 2 {
		return reports
	}
	index := make(map[ReportKey]int, len(reports))
	out := make([]Report, 0, len(reports))
	for _, r := range reports {
		if i, ok := index[r.Key()]; ok {
			out[i] = r
			continue
		}
		index[r.Key()] = len(out)
		out = append(out, r)
	}
	return out
}
