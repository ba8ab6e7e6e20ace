package utils

import "testing"

func TestFormatRoundedUnit(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "0s"},
		{59, "59s"},
		{-30, "30s"},
		{60, "1m"},
		{3599, "59m"},
		{3600, "1h"},
		{7300, "2h"},
	}

	for _, tt := range tests {
		if got := FormatRoundedUnit(tt.seconds); got != tt.want {
			t.Errorf("FormatRoundedUnit(%d) = %s, want %s", tt.seconds, got, tt.want)
		}
	}
}

func TestFormatHM(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "0h00m"},
		{300, "0h05m"},
		{28800 + 1800, "8h30m"},
		{-5, "0h00m"},
	}

	for _, tt := range tests {
		if got := FormatHM(tt.seconds); got != tt.want {
			t.Errorf("FormatHM(%d) = %s, want %s", tt.seconds, got, tt.want)
		}
	}
}

func TestHours(t *testing.T) {
	tests := []struct {
		seconds int64
		want    float64
	}{
		{0, 0},
		{3600, 1},
		{30600, 8.5},
		{100, 0.03},
		{28800 + 1800, 8.5},
		{1234, 0.34},
	}

	for _, tt := range tests {
		if got := Hours(tt.seconds); got != tt.want {
			t.Errorf("Hours(%d) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}
