package engine

import "testing"

func TestParseTimecode_full(t *testing.T) {
	secs, ok := ParseTimecode("02:05")
	if !ok || secs != 125 {
		t.Errorf("ParseTimecode(02:05) = %d, %v; want 125, true", secs, ok)
	}
	secs, ok = ParseTimecode("99:59")
	if !ok || secs != 5999 {
		t.Errorf("ParseTimecode(99:59) = %d, %v; want 5999, true", secs, ok)
	}
	secs, ok = ParseTimecode("0:07")
	if !ok || secs != 7 {
		t.Errorf("ParseTimecode(0:07) = %d, %v; want 7, true", secs, ok)
	}
}

func TestParseTimecode_partial_forms(t *testing.T) {
	// Forms a user passes through while typing.
	secs, ok := ParseTimecode("12:")
	if !ok || secs != 720 {
		t.Errorf("ParseTimecode(12:) = %d, %v; want 720, true", secs, ok)
	}
	secs, ok = ParseTimecode("12:3")
	if !ok || secs != 723 {
		t.Errorf("ParseTimecode(12:3) = %d, %v; want 723, true", secs, ok)
	}
}

func TestParseTimecode_bare_seconds(t *testing.T) {
	secs, ok := ParseTimecode("45")
	if !ok || secs != 45 {
		t.Errorf("ParseTimecode(45) = %d, %v; want 45, true", secs, ok)
	}
	secs, ok = ParseTimecode("9999")
	if !ok || secs != 9999 {
		t.Errorf("ParseTimecode(9999) = %d, %v; want 9999, true", secs, ok)
	}
	if _, ok := ParseTimecode("10000"); ok {
		t.Error("bare seconds above 9999 should be rejected")
	}
}

func TestParseTimecode_invalid(t *testing.T) {
	for _, text := range []string{"", ":", "ab:cd", "1:60", "1:75", "-5", "1:2:3", "12.5", "100:00"} {
		if secs, ok := ParseTimecode(text); ok {
			t.Errorf("ParseTimecode(%q) = %d, true; want rejection", text, secs)
		}
	}
}

func TestFormatTimecode(t *testing.T) {
	if got := FormatTimecode(0); got != "00:00" {
		t.Errorf("FormatTimecode(0) = %q", got)
	}
	if got := FormatTimecode(65); got != "01:05" {
		t.Errorf("FormatTimecode(65) = %q", got)
	}
	// Truncation, never rounding.
	if got := FormatTimecode(125.9); got != "02:05" {
		t.Errorf("FormatTimecode(125.9) = %q; want 02:05", got)
	}
	// Negative and NaN degrade to zero.
	if got := FormatTimecode(-3); got != "00:00" {
		t.Errorf("FormatTimecode(-3) = %q; want 00:00", got)
	}
}

func TestTimecode_round_trip(t *testing.T) {
	// Format then parse is the identity for every whole second the MM:SS
	// grid can express.
	for s := 0; s < 6000; s++ {
		text := FormatTimecode(float64(s))
		got, ok := ParseTimecode(text)
		if !ok || got != s {
			t.Fatalf("round trip %d -> %q -> %d, %v", s, text, got, ok)
		}
	}
}
