package ingestion

import "testing"

func testRow(values map[string]string) Row {
	header := []string{"ngo_id", "month", "people_helped", "events_conducted", "funds_utilized"}
	fields := make([]string, len(header))
	for i, col := range header {
		fields[i] = values[col]
	}
	return Row{Number: 2, fields: fields, index: headerIndex(header)}
}

func TestSanitizeRow(t *testing.T) {
	c := SanitizeRow(testRow(map[string]string{
		"ngo_id":           "  NGO7 ",
		"month":            "Oct 2025",
		"people_helped":    " 42 ",
		"events_conducted": "0",
		"funds_utilized":   "1500",
	}))

	if c.NGOID != "NGO7" || c.Month != "2025-10" {
		t.Fatalf("unexpected identity fields %+v", c)
	}
	if c.PeopleHelped == nil || *c.PeopleHelped != 42 {
		t.Fatalf("expected people_helped 42, got %v", c.PeopleHelped)
	}
	if c.EventsConducted == nil || *c.EventsConducted != 0 {
		t.Fatalf("expected events_conducted 0, got %v", c.EventsConducted)
	}
	if c.FundsUtilized == nil || *c.FundsUtilized != 1500 {
		t.Fatalf("expected funds_utilized 1500, got %v", c.FundsUtilized)
	}
}

func TestSanitizeRowNonNumeric(t *testing.T) {
	c := SanitizeRow(testRow(map[string]string{
		"ngo_id":           "NGO7",
		"month":            "2025-10",
		"people_helped":    "abc",
		"events_conducted": "",
		"funds_utilized":   "12.5",
	}))
	if c.PeopleHelped != nil || c.EventsConducted != nil || c.FundsUtilized != nil {
		t.Fatalf("expected all numeric fields to be unset, got %+v", c)
	}
}

func TestSanitizeRowShortRecord(t *testing.T) {
	row := Row{Number: 3, fields: []string{"NGO1"}, index: headerIndex([]string{"ngo_id", "month"})}
	c := SanitizeRow(row)
	if c.NGOID != "NGO1" || c.Month != "" || c.PeopleHelped != nil {
		t.Fatalf("unexpected candidate %+v", c)
	}
}
