// Package availability loads and saves the weekly availability schedules
// edited on the availability pages.
package availability

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	httperrors "github.com/jw6ventures/bookings/internal/http/errors"
	"github.com/jw6ventures/bookings/internal/store"
)

const (
	DaysPerWeek   = 7
	MinutesPerDay = 24 * 60
	MaxNameLength = 100
)

// TimeRange is a half-open [Start, End) span in minutes after midnight.
type TimeRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Form is the editable state of one schedule. Schedule is indexed by
// time.Weekday.
type Form struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	TimeZone     string        `json:"timeZone"`
	IsDefault    bool          `json:"isDefault"`
	Schedule     [][]TimeRange `json:"schedule"`
	EventTypeIDs []int64       `json:"eventTypeIds"`
}

// UpdateInput is the payload of a schedule update. A nil EventTypeIDs leaves
// event type associations untouched.
type UpdateInput struct {
	ScheduleID   int64         `json:"scheduleId"`
	Name         string        `json:"name"`
	Schedule     [][]TimeRange `json:"schedule"`
	TimeZone     string        `json:"timeZone"`
	IsDefault    bool          `json:"isDefault"`
	EventTypeIDs *[]int64      `json:"eventTypeIds,omitempty"`
}

// ParseScheduleID accepts a positive decimal id, optionally padded with
// whitespace.
func ParseScheduleID(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func formFromSchedule(s *store.Schedule, eventTypeIDs []int64) *Form {
	grid := make([][]TimeRange, DaysPerWeek)
	for d := range grid {
		grid[d] = []TimeRange{}
	}
	for _, iv := range s.Availability {
		d := int(iv.Day)
		if d < 0 || d >= DaysPerWeek {
			continue
		}
		grid[d] = append(grid[d], TimeRange{Start: iv.StartMinute, End: iv.EndMinute})
	}
	if eventTypeIDs == nil {
		eventTypeIDs = []int64{}
	}
	return &Form{
		ID:           s.ID,
		Name:         s.Name,
		TimeZone:     s.TimeZone,
		IsDefault:    s.IsDefault,
		Schedule:     grid,
		EventTypeIDs: eventTypeIDs,
	}
}

// validate normalises in and reports every problem at once.
func validate(in *UpdateInput) error {
	verr := httperrors.Validation("invalid schedule")

	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.Name == "":
		verr.WithField("name", "required")
	case utf8.RuneCountInString(in.Name) > MaxNameLength:
		verr.WithField("name", fmt.Sprintf("must be at most %d characters", MaxNameLength))
	}

	in.TimeZone = strings.TrimSpace(in.TimeZone)
	if in.TimeZone == "" {
		verr.WithField("timeZone", "required")
	} else if _, err := time.LoadLocation(in.TimeZone); err != nil {
		verr.WithField("timeZone", "unknown time zone")
	}

	if len(in.Schedule) > DaysPerWeek {
		verr.WithField("schedule", fmt.Sprintf("must have at most %d days", DaysPerWeek))
	}
	for d, ranges := range in.Schedule {
		if d >= DaysPerWeek {
			break
		}
		for i, tr := range ranges {
			if tr.Start < 0 || tr.End > MinutesPerDay || tr.Start >= tr.End {
				verr.WithField(fmt.Sprintf("schedule[%d][%d]", d, i), "start must be before end within the day")
			}
		}
		if overlaps(ranges) {
			verr.WithField(fmt.Sprintf("schedule[%d]", d), "intervals overlap")
		}
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func overlaps(ranges []TimeRange) bool {
	sorted := slices.Clone(ranges)
	slices.SortFunc(sorted, func(a, b TimeRange) int { return a.Start - b.Start })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start < sorted[i-1].End {
			return true
		}
	}
	return false
}

// intervals flattens the grid in day order, keeping each day's order.
func intervals(grid [][]TimeRange) []store.Interval {
	var out []store.Interval
	for d, ranges := range grid {
		for _, tr := range ranges {
			out = append(out, store.Interval{Day: time.Weekday(d), StartMinute: tr.Start, EndMinute: tr.End})
		}
	}
	return out
}

// FormatClock renders minutes after midnight as HH:MM; 1440 is "24:00".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseClock parses HH:MM into minutes after midnight. "24:00" is allowed
// as an end of day.
func ParseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	hours, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	mins, err := strconv.Atoi(m)
	if err != nil || len(m) != 2 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	total := hours*60 + mins
	if hours < 0 || mins < 0 || mins > 59 || total > MinutesPerDay {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return total, nil
}
