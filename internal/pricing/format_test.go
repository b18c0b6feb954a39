package pricing

import "testing"

func TestFormatterFormat(t *testing.T) {
	f := Formatter{Decimals: 2, RoundMode: RoundHalfDown}

	if got := f.Format(0, true); got != 0 {
		t.Fatalf("expected zero, got %v", got)
	}
	if got := f.Format(123.4905, false); got != 123.4905 {
		t.Fatalf("expected raw value when formatting disabled, got %v", got)
	}
	if got := f.Format(123.4905, true); got != 123.49 {
		t.Fatalf("expected 123.49, got %v", got)
	}
	if got := f.Format(113.516, true); got != 113.52 {
		t.Fatalf("expected 113.52, got %v", got)
	}

	f.FormatNumbers = true
	if got := f.Format(18.0025, false); got != 18 {
		t.Fatalf("expected global formatting to round to 18, got %v", got)
	}
}

func TestFormatterRoundModes(t *testing.T) {
	up := Formatter{Decimals: 2, RoundMode: RoundHalfUp}
	down := Formatter{Decimals: 2, RoundMode: RoundHalfDown}

	if got := up.Round(1.005); got != 1.01 {
		t.Fatalf("half up: expected 1.01, got %v", got)
	}
	if got := down.Round(1.005); got != 1.0 {
		t.Fatalf("half down: expected 1.00, got %v", got)
	}
	if got := up.Round(123.515); got != 123.52 {
		t.Fatalf("half up: expected 123.52, got %v", got)
	}
	if got := down.Round(123.515); got != 123.51 {
		t.Fatalf("half down: expected 123.51, got %v", got)
	}
	if got := down.Round(123.516); got != 123.52 {
		t.Fatalf("half down above tie: expected 123.52, got %v", got)
	}
	if got := (Formatter{Decimals: 0, RoundMode: RoundHalfUp}).Round(2.5); got != 3 {
		t.Fatalf("zero decimals: expected 3, got %v", got)
	}
}

func TestParseRoundMode(t *testing.T) {
	if ParseRoundMode(" UP ") != RoundHalfUp {
		t.Fatal("expected up")
	}
	if ParseRoundMode("") != RoundHalfDown || ParseRoundMode("bankers") != RoundHalfDown {
		t.Fatal("expected down fallback")
	}
}
