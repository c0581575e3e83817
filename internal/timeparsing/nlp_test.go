package timeparsing

import (
	"testing"
	"time"
)

func TestParseNaturalLanguage(t *testing.T) {
	// Wednesday, March 11, 2026, 10:00 local.
	base := time.Date(2026, 3, 11, 10, 0, 0, 0, time.Local)

	tests := []struct {
		name      string
		input     string
		wantYear  int
		wantMonth time.Month
		wantDay   int
		wantHour  int // -1 skips the hour check
		wantErr   bool
	}{
		{
			name:      "tomorrow",
			input:     "tomorrow",
			wantYear:  2026,
			wantMonth: time.March,
			wantDay:   12,
			wantHour:  -1,
		},
		{
			name:      "yesterday",
			input:     "yesterday",
			wantYear:  2026,
			wantMonth: time.March,
			wantDay:   10,
			wantHour:  -1,
		},
		{
			name:      "next monday lands next week",
			input:     "next monday",
			wantYear:  2026,
			wantMonth: time.March,
			wantDay:   16,
			wantHour:  -1,
		},
		{
			name:      "next friday stays in this week",
			input:     "next friday",
			wantYear:  2026,
			wantMonth: time.March,
			wantDay:   13,
			wantHour:  -1,
		},
		{
			name:      "tomorrow with a time",
			input:     "tomorrow at 9am",
			wantYear:  2026,
			wantMonth: time.March,
			wantDay:   12,
			wantHour:  9,
		},
		{
			name:      "weekday with a time",
			input:     "next monday at 2pm",
			wantYear:  2026,
			wantMonth: time.March,
			wantDay:   16,
			wantHour:  14,
		},
		{
			name:      "in 3 days",
			input:     "in 3 days",
			wantYear:  2026,
			wantMonth: time.March,
			wantDay:   14,
			wantHour:  -1,
		},
		{
			name:      "in 1 week",
			input:     "in 1 week",
			wantYear:  2026,
			wantMonth: time.March,
			wantDay:   18,
			wantHour:  -1,
		},
		{
			name:      "3 days ago",
			input:     "3 days ago",
			wantYear:  2026,
			wantMonth: time.March,
			wantDay:   8,
			wantHour:  -1,
		},

		{name: "prose without a date", input: "patrol sweep notes", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		// A date word embedded in prose must not be plucked out.
		{name: "partial match rejected", input: "meet tomorrow maybe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNaturalLanguage(tt.input, base)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseNaturalLanguage(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}

			if got.Year() != tt.wantYear {
				t.Errorf("ParseNaturalLanguage(%q) year = %d, want %d", tt.input, got.Year(), tt.wantYear)
			}
			if got.Month() != tt.wantMonth {
				t.Errorf("ParseNaturalLanguage(%q) month = %v, want %v", tt.input, got.Month(), tt.wantMonth)
			}
			if got.Day() != tt.wantDay {
				t.Errorf("ParseNaturalLanguage(%q) day = %d, want %d", tt.input, got.Day(), tt.wantDay)
			}
			if tt.wantHour >= 0 && got.Hour() != tt.wantHour {
				t.Errorf("ParseNaturalLanguage(%q) hour = %d, want %d", tt.input, got.Hour(), tt.wantHour)
			}
		})
	}
}

func TestParseRelativeTime(t *testing.T) {
	// Wednesday, March 11, 2026, 10:00 local.
	base := time.Date(2026, 3, 11, 10, 0, 0, 0, time.Local)

	tests := []struct {
		name      string
		input     string
		wantYear  int
		wantMonth time.Month
		wantDay   int
		wantHour  int // -1 skips the hour check
		wantErr   bool
	}{
		{
			name:      "compact offset keeps the clock time",
			input:     "+1d",
			wantYear:  2026,
			wantMonth: time.March,
			wantDay:   12,
			wantHour:  10,
		},
		{
			name:      "compact hours",
			input:     "+6h",
			wantYear:  2026,
			wantMonth: time.March,
			wantDay:   11,
			wantHour:  16,
		},
		{
			name:      "natural language day",
			input:     "tomorrow",
			wantYear:  2026,
			wantMonth: time.March,
			wantDay:   12,
			wantHour:  -1,
		},
		{
			name:      "natural language weekday",
			input:     "next monday",
			wantYear:  2026,
			wantMonth: time.March,
			wantDay:   16,
			wantHour:  -1,
		},
		{
			name:      "bare date parses at midnight",
			input:     "2026-04-01",
			wantYear:  2026,
			wantMonth: time.April,
			wantDay:   1,
			wantHour:  0,
		},
		{
			name:      "RFC3339 taken as written",
			input:     "2026-03-15T14:30:00Z",
			wantYear:  2026,
			wantMonth: time.March,
			wantDay:   15,
			wantHour:  14,
		},

		{name: "garbage", input: "not-a-date", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRelativeTime(tt.input, base)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseRelativeTime(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}

			if got.Year() != tt.wantYear {
				t.Errorf("ParseRelativeTime(%q) year = %d, want %d", tt.input, got.Year(), tt.wantYear)
			}
			if got.Month() != tt.wantMonth {
				t.Errorf("ParseRelativeTime(%q) month = %v, want %v", tt.input, got.Month(), tt.wantMonth)
			}
			if got.Day() != tt.wantDay {
				t.Errorf("ParseRelativeTime(%q) day = %d, want %d", tt.input, got.Day(), tt.wantDay)
			}
			if tt.wantHour >= 0 && got.Hour() != tt.wantHour {
				t.Errorf("ParseRelativeTime(%q) hour = %d, want %d", tt.input, got.Hour(), tt.wantHour)
			}
		})
	}
}

func TestParseRelativeTimeLayerOrder(t *testing.T) {
	base := time.Date(2026, 3, 11, 10, 0, 0, 0, time.Local)

	// "+1d" is a compact offset and must never reach the NLP layer, which
	// would round it differently.
	got, err := ParseRelativeTime("+1d", base)
	if err != nil {
		t.Fatalf("ParseRelativeTime(+1d): %v", err)
	}
	if want := base.AddDate(0, 0, 1); !got.Equal(want) {
		t.Errorf("ParseRelativeTime(+1d) = %v, want %v", got, want)
	}

	// A bare date goes to the absolute layer, not NLP.
	got, err = ParseRelativeTime("2026-03-16", base)
	if err != nil {
		t.Fatalf("ParseRelativeTime(2026-03-16): %v", err)
	}
	if got.Year() != 2026 || got.Month() != time.March || got.Day() != 16 {
		t.Errorf("ParseRelativeTime(2026-03-16) = %v, want Mar 16, 2026", got)
	}
}
