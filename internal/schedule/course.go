// Package schedule holds the class-entry flow: turning what a student typed
// for a course into validated sections, and exporting them as a calendar.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"countdown/internal/timeparse"
)

// RawSection is one meeting of a course as entered, before validation.
type RawSection struct {
	Day   string `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// RawCourse is a course as entered.
type RawCourse struct {
	Name     string       `json:"name"`
	Sections []RawSection `json:"sections"`
}

// Section is a validated weekly meeting.
type Section struct {
	Day   time.Weekday         `json:"day"`
	Start timeparse.ParsedTime `json:"start"`
	End   timeparse.ParsedTime `json:"end"`
}

// String renders a section the way the class list shows it.
func (s Section) String() string {
	return fmt.Sprintf("%s %s - %s", s.Day, s.Start, s.End)
}

// Course is a validated course.
type Course struct {
	Name     string    `json:"name"`
	Sections []Section `json:"sections"`
}

// Raw converts c back to its entered form, with times in display format.
func (c Course) Raw() RawCourse {
	rc := RawCourse{Name: c.Name, Sections: make([]RawSection, 0, len(c.Sections))}
	for _, s := range c.Sections {
		rc.Sections = append(rc.Sections, RawSection{
			Day:   s.Day.String(),
			Start: s.Start.String(),
			End:   s.End.String(),
		})
	}
	return rc
}

// SectionError ties a failure to the section it came from.
type SectionError struct {
	Course string
	Index  int
	Err    error
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("course %q section %d: %v", e.Course, e.Index+1, e.Err)
}

func (e *SectionError) Unwrap() error { return e.Err }

var (
	ErrNoName     = errors.New("course name is required")
	ErrNoSections = errors.New("course has no sections")
)

// ParseDay accepts a full English weekday name or its three-letter
// abbreviation, in any case.
func ParseDay(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) == 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown day %q", s)
}

// ParseSection validates one entered section. A time that does not parse
// rejects the section; nothing is coerced.
func ParseSection(raw RawSection) (Section, error) {
	day, err := ParseDay(raw.Day)
	if err != nil {
		return Section{}, err
	}
	start, err := timeparse.Parse(raw.Start)
	if err != nil {
		return Section{}, err
	}
	end, err := timeparse.Parse(raw.End)
	if err != nil {
		return Section{}, err
	}
	if end.Minutes() <= start.Minutes() {
		return Section{}, fmt.Errorf("end %s is not after start %s", end, start)
	}
	return Section{Day: day, Start: start, End: end}, nil
}

// ParseCourse validates a whole course. The first bad section fails it.
func ParseCourse(raw RawCourse) (Course, error) {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return Course{}, ErrNoName
	}
	if len(raw.Sections) == 0 {
		return Course{}, fmt.Errorf("course %q: %w", name, ErrNoSections)
	}

	c := Course{Name: name, Sections: make([]Section, 0, len(raw.Sections))}
	for i, rs := range raw.Sections {
		s, err := ParseSection(rs)
		if err != nil {
			return Course{}, &SectionError{Course: name, Index: i, Err: err}
		}
		c.Sections = append(c.Sections, s)
	}
	return c, nil
}
