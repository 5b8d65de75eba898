package calendar

import (
	"testing"
	"time"

	"github.com/mplata/loantrack/pkg/models"
)

func TestParseDate_PlainDate(t *testing.T) {
	d, err := ParseDate("2024-01-15")
	if err != nil {
		t.Fatalf("ParseDate failed: %v", err)
	}

	if d.Hour() != 12 {
		t.Errorf("Expected plain date anchored at local noon, got hour %d", d.Hour())
	}
	if got := ToDateString(d); got != "2024-01-15" {
		t.Errorf("Expected round-trip 2024-01-15, got %s", got)
	}
}

func TestParseDate_Timestamp(t *testing.T) {
	d, err := ParseDate("2024-03-10T09:30:00Z")
	if err != nil {
		t.Fatalf("ParseDate failed: %v", err)
	}
	if !d.Equal(time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("Expected 2024-03-10T09:30:00Z, got %s", d)
	}
}

func TestParseDate_Invalid(t *testing.T) {
	if _, err := ParseDate("15/01/2024"); err == nil {
		t.Error("Expected an error for a non-canonical date")
	}
}

func TestAdvance(t *testing.T) {
	start := MustParseDate("2024-01-15")

	tests := []struct {
		name      string
		frequency models.Frequency
		count     int
		want      string
	}{
		{"daily one step", models.FrequencyDaily, 1, "2024-01-16"},
		{"weekly one step", models.FrequencyWeekly, 1, "2024-01-22"},
		{"biweekly is fifteen days", models.FrequencyBiweekly, 1, "2024-01-30"},
		{"biweekly two steps", models.FrequencyBiweekly, 2, "2024-02-14"},
		{"monthly one step", models.FrequencyMonthly, 1, "2024-02-15"},
		{"monthly a year out", models.FrequencyMonthly, 12, "2025-01-15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToDateString(Advance(start, tt.frequency, tt.count))
			if got != tt.want {
				t.Errorf("Advance(%s, %s, %d) = %s, want %s", ToDateString(start), tt.frequency, tt.count, got, tt.want)
			}
		})
	}
}

func TestAdvance_MonthRollover(t *testing.T) {
	// Jan 31 + 1 month rolls over past short February.
	got := ToDateString(Advance(MustParseDate("2024-01-31"), models.FrequencyMonthly, 1))
	if got != "2024-03-02" {
		t.Errorf("Expected native month rollover to 2024-03-02, got %s", got)
	}
}

func TestAdvance_MonthlyAssociativity(t *testing.T) {
	// n single steps must land on the same day as one n-step call.
	start := MustParseDate("2024-01-15")
	for n := 1; n <= 24; n++ {
		stepped := start
		for i := 0; i < n; i++ {
			stepped = Advance(stepped, models.FrequencyMonthly, 1)
		}
		direct := Advance(start, models.FrequencyMonthly, n)
		if !stepped.Equal(direct) {
			t.Errorf("n=%d: stepped %s != direct %s", n, ToDateString(stepped), ToDateString(direct))
		}
	}
}

func TestCountPeriodsBetween_RoundTrip(t *testing.T) {
	start := MustParseDate("2024-01-15")
	frequencies := []models.Frequency{
		models.FrequencyDaily,
		models.FrequencyWeekly,
		models.FrequencyBiweekly,
		models.FrequencyMonthly,
	}
	for _, f := range frequencies {
		for n := 1; n <= 36; n++ {
			end := Advance(start, f, n)
			if got := CountPeriodsBetween(start, end, f); got != n {
				t.Errorf("CountPeriodsBetween(%s, %s, %s) = %d, want %d", ToDateString(start), ToDateString(end), f, got, n)
			}
		}
	}
}

func TestCountPeriodsBetween_DegenerateRangeFloorsAtOne(t *testing.T) {
	start := MustParseDate("2024-06-01")

	if got := CountPeriodsBetween(start, start, models.FrequencyMonthly); got != 1 {
		t.Errorf("Expected floor of 1 for equal dates, got %d", got)
	}
	if got := CountPeriodsBetween(start, MustParseDate("2024-01-01"), models.FrequencyMonthly); got != 1 {
		t.Errorf("Expected floor of 1 for inverted range, got %d", got)
	}
	// End inside the first period also floors at 1.
	if got := CountPeriodsBetween(start, MustParseDate("2024-06-10"), models.FrequencyMonthly); got != 1 {
		t.Errorf("Expected floor of 1 for sub-period range, got %d", got)
	}
}

func TestCountPeriodsBetween_IterationCap(t *testing.T) {
	start := MustParseDate("2024-01-01")
	end := MustParseDate("3000-01-01")
	if got := CountPeriodsBetween(start, end, models.FrequencyDaily); got != MaxPeriods {
		t.Errorf("Expected capped count %d, got %d", MaxPeriods, got)
	}
}
