package util

import (
	"testing"
	"time"
)

func TestParseAtRelativeExpression(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	got, err := ParseAt("in 2 hours", now)
	if err != nil {
		t.Fatalf("ParseAt() error: %v", err)
	}
	if !got.After(now) {
		t.Fatalf("ParseAt(\"in 2 hours\") = %v, want a time after %v", got, now)
	}
}

func TestParseAtTomorrow(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	got, err := ParseAt("tomorrow", now)
	if err != nil {
		t.Fatalf("ParseAt() error: %v", err)
	}
	if got.Day() == now.Day() {
		t.Fatalf("ParseAt(\"tomorrow\") = %v, expected a different day than %v", got, now)
	}
}

func TestParseAtRejectsGibberish(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	if _, err := ParseAt("zzz not a time zzz", now); err == nil {
		t.Fatal("expected an error for input with no time expression")
	}
}
