// Package timeparse turns hand-typed class times such as "8am", "8:15" or
// "3 o'clock" into an hour and minute.
package timeparse

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	maxHour   = 24
	maxMinute = 60
)

// ParsedTime is a time of day. Both bounds are inclusive, so 24:00 and
// 8:60 are accepted.
type ParsedTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// Minutes returns the offset from midnight in minutes.
func (t ParsedTime) Minutes() int {
	return t.Hour*60 + t.Minute
}

// String renders the time the way the class list shows it: "3:05pm", "8am".
func (t ParsedTime) String() string {
	part := "am"
	if t.Hour >= 12 {
		part = "pm"
	}
	hour := t.Hour
	if hour > 12 {
		hour -= 12
	}
	min := ""
	if t.Minute != 0 {
		min = fmt.Sprintf(":%02d", t.Minute)
	}
	return strconv.Itoa(hour) + min + part
}

// ParseError reports input that is not a recognizable time.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse time %q: %s", e.Input, e.Reason)
}

// Parse reads "H", "H:M", optionally followed by am, pm or o'clock (any case,
// with or without a space). pm adds 12 only to hours below 12. Input with no
// qualifier is returned as typed; whether "3" means 03:00 or 15:00 is left to
// the caller.
func Parse(raw string) (ParsedTime, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedTime{}, &ParseError{Input: raw, Reason: "empty input"}
	}

	num, word := splitMeridiem(s)

	t, err := parseClock(num)
	if err != nil {
		return ParsedTime{}, &ParseError{Input: raw, Reason: err.Error()}
	}

	if word == "" {
		return t, nil
	}

	switch strings.ToUpper(word) {
	case "AM", "O'CLOCK":
	case "PM":
		if t.Hour < 12 {
			t.Hour += 12
		}
	default:
		return ParsedTime{}, &ParseError{Input: raw, Reason: fmt.Sprintf("unknown qualifier %q", word)}
	}
	return t, nil
}

// splitMeridiem separates the leading run of digits and colons from
// whatever follows it.
func splitMeridiem(s string) (num, word string) {
	i := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != ':'
	})
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func parseClock(num string) (ParsedTime, error) {
	if num == "" {
		return ParsedTime{}, fmt.Errorf("missing hour")
	}

	parts := strings.Split(num, ":")
	if len(parts) != 1 && len(parts) != 2 {
		return ParsedTime{}, fmt.Errorf("expected hour or hour:minute, got %q", num)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return ParsedTime{}, fmt.Errorf("bad hour %q", parts[0])
	}
	min := 0
	if len(parts) == 2 {
		min, err = strconv.Atoi(parts[1])
		if err != nil {
			return ParsedTime{}, fmt.Errorf("bad minute %q", parts[1])
		}
	}

	if hour < 0 || hour > maxHour {
		return ParsedTime{}, fmt.Errorf("hour %d out of range", hour)
	}
	if min < 0 || min > maxMinute {
		return ParsedTime{}, fmt.Errorf("minute %d out of range", min)
	}
	return ParsedTime{Hour: hour, Minute: min}, nil
}
