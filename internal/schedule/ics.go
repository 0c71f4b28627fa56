package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
)

const productID = "-//countdown//classes//EN"

// ExportConfig controls calendar export.
type ExportConfig struct {
	// Location is the zone the entered times are in.
	Location *time.Location
	// From anchors the first week; each section starts on its first
	// weekday at or after From.
	From time.Time
	// Weeks is how many times each section repeats.
	Weeks int
	// Now stamps DTSTAMP.
	Now time.Time
}

var weekdays = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// ExportICS renders courses as an iCalendar feed with one weekly recurring
// event per section.
func ExportICS(courses []Course, cfg ExportConfig) (string, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Weeks <= 0 {
		return "", errors.New("weeks must be positive")
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	from := cfg.From.In(cfg.Location)
	midnight := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, cfg.Location)

	for _, c := range courses {
		for i, s := range c.Sections {
			opt := rrule.ROption{
				Freq:      rrule.WEEKLY,
				Count:     cfg.Weeks,
				Byweekday: []rrule.Weekday{weekdays[s.Day]},
			}

			dated := opt
			dated.Dtstart = midnight.Add(time.Duration(s.Start.Minutes()) * time.Minute)
			r, err := rrule.NewRRule(dated)
			if err != nil {
				return "", fmt.Errorf("course %q section %d: %w", c.Name, i+1, err)
			}
			occ := r.All()
			if len(occ) == 0 {
				continue
			}
			start := occ[0]
			end := start.Add(time.Duration(s.End.Minutes()-s.Start.Minutes()) * time.Minute)

			ev := cal.AddEvent(eventUID(c.Name, i))
			ev.SetDtStampTime(cfg.Now)
			ev.SetSummary(c.Name)
			ev.SetStartAt(start)
			ev.SetEndAt(end)
			ev.AddRrule(opt.RRuleString())
		}
	}

	return cal.Serialize(), nil
}

func eventUID(course string, index int) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, course)
	return fmt.Sprintf("%s-%d@countdown", slug, index+1)
}
