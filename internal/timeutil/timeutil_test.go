package timeutil

import (
	"errors"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{"2024-01-31", true},
		{"2024-02-29", true},
		{"2023-02-29", false},
		{"2024-13-01", false},
		{"2024-1-01", false},
		{"20240101", false},
		{"2024-01-01T00:00:00Z", false},
		{"", false},
	}
	for _, tt := range tests {
		_, err := ParseDate(tt.value)
		if tt.ok && err != nil {
			t.Errorf("%q: unexpected error %v", tt.value, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidDate) {
			t.Errorf("%q: expected ErrInvalidDate, got %v", tt.value, err)
		}
	}
}

func TestParseDateFilter(t *testing.T) {
	f, err := ParseDateFilter(" 2024-01-01 ", "2024-01-31")
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	if !f.Active() {
		t.Fatalf("expected active filter")
	}
	if !f.Contains("2024-01-01") || !f.Contains("2024-01-31") {
		t.Fatalf("bounds should be inclusive")
	}
	if f.Contains("2024-02-01") || f.Contains("2023-12-31") {
		t.Fatalf("dates outside range should be excluded")
	}

	if _, err := ParseDateFilter("2024-02-01", "2024-01-01"); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if _, err := ParseDateFilter("Jan 1", ""); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}

	open, err := ParseDateFilter("", "2024-01-15")
	if err != nil {
		t.Fatalf("parse open filter: %v", err)
	}
	if !open.Contains("1999-01-01") || open.Contains("2024-01-16") {
		t.Fatalf("unexpected open-start behaviour")
	}
	if (DateFilter{}).Active() {
		t.Fatalf("zero filter should be inactive")
	}
}

func TestNewWindowDateFilter(t *testing.T) {
	now := time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)
	win, err := NewWindow("7d", now, time.UTC)
	if err != nil {
		t.Fatalf("new window: %v", err)
	}
	if win.Period() != "7d" {
		t.Fatalf("unexpected period %s", win.Period())
	}
	if win.Duration() != 7*24*time.Hour {
		t.Fatalf("unexpected duration %v", win.Duration())
	}
	f := win.DateFilter()
	if f.From != "2024-05-03" || f.To != "2024-05-10" {
		t.Fatalf("unexpected filter %+v", f)
	}
}

func TestNewWindowInvalid(t *testing.T) {
	for _, period := range []string{"bad", "0d", "7w", "d"} {
		if _, err := NewWindow(period, time.Now(), time.UTC); !errors.Is(err, ErrInvalidPeriod) {
			t.Fatalf("%s: expected ErrInvalidPeriod", period)
		}
	}
}
