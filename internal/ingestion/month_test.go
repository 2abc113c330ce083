package ingestion

import "testing"

func TestNormalizeMonth(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2025-10", "2025-10"},
		{"  2025-03 ", "2025-03"},
		{"10/5/2025", "2025-10"},
		{"3/15/2024", "2024-03"},
		{"03/01/2024", "2024-03"},
		{"Oct 2025", "2025-10"},
		{"october 2025", "2025-10"},
		{"OCTOBER 2025", "2025-10"},
		{"sept 2025", "2025-09"},
		{"Sep 2025", "2025-09"},
		{"May   2024", "2024-05"},
		{"garbage", "garbage"},
		{"Smarch 2025", "Smarch 2025"},
		{"2025/10", "2025/10"},
		{"2025-13", "2025-13"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeMonth(tt.in); got != tt.want {
			t.Errorf("NormalizeMonth(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeMonthIdempotent(t *testing.T) {
	for _, in := range []string{"2025-01", "10/5/2025", "Oct 2025", "sept 2025", "garbage"} {
		once := NormalizeMonth(in)
		if twice := NormalizeMonth(once); twice != once {
			t.Errorf("NormalizeMonth not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
