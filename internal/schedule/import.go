package schedule

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "countdown/internal/log"
	"countdown/internal/timeparse"
)

// ImportICS reads weekly recurring events back into courses, grouping
// sections by event summary in order of first appearance. Events without a
// weekly RRULE, or that cross midnight, are skipped and logged.
func ImportICS(body []byte, loc *time.Location) ([]Course, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	var courses []Course
	index := map[string]int{}

	for _, ev := range cal.Events() {
		name, sections, err := importEvent(ev, loc)
		if err != nil {
			appLog.Debug("ics import: skipping event", "uid", ev.Id(), "err", err)
			continue
		}
		i, ok := index[name]
		if !ok {
			i = len(courses)
			index[name] = i
			courses = append(courses, Course{Name: name})
		}
		courses[i].Sections = append(courses[i].Sections, sections...)
	}

	return courses, nil
}

func importEvent(ev *ical.VEvent, loc *time.Location) (string, []Section, error) {
	p := ev.GetProperty(ical.ComponentPropertySummary)
	if p == nil || p.Value == "" {
		return "", nil, errors.New("missing SUMMARY")
	}
	name := p.Value

	start, err := ev.GetStartAt()
	if err != nil {
		return "", nil, err
	}
	end, err := ev.GetEndAt()
	if err != nil {
		return "", nil, err
	}
	start, end = start.In(loc), end.In(loc)
	if !end.After(start) || end.YearDay() != start.YearDay() {
		return "", nil, errors.New("event does not fit in one day")
	}

	p = ev.GetProperty(ical.ComponentPropertyRrule)
	if p == nil {
		return "", nil, errors.New("missing RRULE")
	}
	opt, err := rrule.StrToROption(p.Value)
	if err != nil {
		return "", nil, fmt.Errorf("parse RRULE: %w", err)
	}
	if opt.Freq != rrule.WEEKLY {
		return "", nil, fmt.Errorf("RRULE frequency %v is not weekly", opt.Freq)
	}

	days := []time.Weekday{start.Weekday()}
	if len(opt.Byweekday) > 0 {
		days = days[:0]
		for _, wd := range opt.Byweekday {
			days = append(days, fromRRuleDay(wd))
		}
	}

	sections := make([]Section, 0, len(days))
	for _, d := range days {
		sections = append(sections, Section{
			Day:   d,
			Start: timeparse.ParsedTime{Hour: start.Hour(), Minute: start.Minute()},
			End:   timeparse.ParsedTime{Hour: end.Hour(), Minute: end.Minute()},
		})
	}
	return name, sections, nil
}

func fromRRuleDay(wd rrule.Weekday) time.Weekday {
	// rrule counts from Monday, time from Sunday.
	return time.Weekday((wd.Day() + 1) % 7)
}
