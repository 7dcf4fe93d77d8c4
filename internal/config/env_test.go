package config

import (
	"testing"
	"time"
)

func TestStringFallsBackWhenUnsetOrBlank(t *testing.T) {
	t.Setenv("ACQ_TEST_STRING", "")
	if got := String("ACQ_TEST_STRING", "fallback"); got != "fallback" {
		t.Fatalf("got %q, want fallback", got)
	}
	t.Setenv("ACQ_TEST_STRING", "  value  ")
	if got := String("ACQ_TEST_STRING", "fallback"); got != "value" {
		t.Fatalf("got %q, want trimmed value", got)
	}
}

func TestDurationParsesAndFallsBack(t *testing.T) {
	t.Setenv("ACQ_TEST_DURATION", "250ms")
	if got := Duration("ACQ_TEST_DURATION", time.Second); got != 250*time.Millisecond {
		t.Fatalf("got %v, want 250ms", got)
	}
	t.Setenv("ACQ_TEST_DURATION", "not-a-duration")
	if got := Duration("ACQ_TEST_DURATION", time.Second); got != time.Second {
		t.Fatalf("got %v, want fallback on parse failure", got)
	}
}

func TestIntParsesAndFallsBack(t *testing.T) {
	t.Setenv("ACQ_TEST_INT", "42")
	if got := Int("ACQ_TEST_INT", 7); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
	t.Setenv("ACQ_TEST_INT", "forty-two")
	if got := Int("ACQ_TEST_INT", 7); got != 7 {
		t.Fatalf("got %d, want fallback on parse failure", got)
	}
}

func TestBoolRecognizesCommonSpellings(t *testing.T) {
	cases := map[string]bool{
		"1": true, "true": true, "YES": true,
		"0": false, "false": false, "No": false,
	}
	for raw, want := range cases {
		t.Setenv("ACQ_TEST_BOOL", raw)
		if got := Bool("ACQ_TEST_BOOL", !want); got != want {
			t.Fatalf("Bool(%q) = %v, want %v", raw, got, want)
		}
	}
	t.Setenv("ACQ_TEST_BOOL", "maybe")
	if got := Bool("ACQ_TEST_BOOL", true); got != true {
		t.Fatal("unparseable value must fall back")
	}
}
