package engine

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// Timecode input grammar, tried in order: full "MM:SS", partial colon forms
// such as "12:" or "12:3", then a bare integer meaning total seconds.
var (
	fullTimecodeRe    = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	partialTimecodeRe = regexp.MustCompile(`^(\d{1,2}):(\d{0,2})$`)
	bareSecondsRe     = regexp.MustCompile(`^(\d+)$`)
)

const (
	maxTimecodeMinutes = 99
	maxBareSeconds     = 9999
)

// ParseTimecode converts a human-edited time string into whole seconds.
// It tolerates the partial forms a user passes through while typing
// ("12:", "12:3"). Anything else yields ok=false; invalid input is a
// signal, not an error condition.
func ParseTimecode(text string) (seconds int, ok bool) {
	if m := fullTimecodeRe.FindStringSubmatch(text); m != nil {
		minutes, _ := strconv.Atoi(m[1])
		secs, _ := strconv.Atoi(m[2])
		if secs < 60 {
			return minutes*60 + secs, true
		}
		return 0, false
	}

	if m := partialTimecodeRe.FindStringSubmatch(text); m != nil {
		minutes, _ := strconv.Atoi(m[1])
		secs := 0
		if m[2] != "" {
			secs, _ = strconv.Atoi(m[2])
		}
		if minutes <= maxTimecodeMinutes && secs < 60 {
			return minutes*60 + secs, true
		}
		return 0, false
	}

	if m := bareSecondsRe.FindStringSubmatch(text); m != nil {
		total, err := strconv.Atoi(m[1])
		if err == nil && total <= maxBareSeconds {
			return total, true
		}
	}

	return 0, false
}

// FormatTimecode renders a seconds value as zero-padded "MM:SS".
// The fractional part is truncated, never rounded: 125.9 -> "02:05".
func FormatTimecode(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	whole := int(seconds)
	return fmt.Sprintf("%02d:%02d", whole/60, whole%60)
}
