package schedule

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
)

// Weekday is an ISO-8601 day of week: Monday=1 .. Sunday=7.
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

func (d Weekday) Valid() bool { return d >= Monday && d <= Sunday }

func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	// time.Weekday counts Sunday as 0.
	return time.Weekday(int(d) % 7).String()
}

// ISOWeekday returns the ISO day of week of t's calendar date.
func ISOWeekday(t time.Time) Weekday {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	return Weekday(wd)
}

// ClockTime is a wall-clock time of day with minute precision, stored as
// minutes after midnight.
type ClockTime int

const minutesPerDay = 24 * 60

// ParseClock accepts "15:04" or "15:04:05". Seconds must be zero.
func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		t, err = time.Parse("15:04:05", s)
		if err != nil {
			return 0, apperr.Validation("invalid time of day %q, expected HH:MM", s)
		}
		if t.Second() != 0 {
			return 0, apperr.Validation("time of day %q must be on a whole minute", s)
		}
	}
	return Clock(t.Hour(), t.Minute()), nil
}

func Clock(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ClockOf returns the time of day of t, truncated to the minute.
func ClockOf(t time.Time) ClockTime {
	return Clock(t.Hour(), t.Minute())
}

func (c ClockTime) Valid() bool { return c >= 0 && c < minutesPerDay }

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On combines c with the calendar date of date.
func (c ClockTime) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, date.Location())
}

func (c ClockTime) Add(minutes int) ClockTime { return c + ClockTime(minutes) }

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return apperr.Validation("time of day must be a string in HH:MM form")
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Date truncates t to its calendar date at midnight UTC. Scheduling dates are
// wall-clock values; the clinic's zone is applied only when reading "now".
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// WallClock returns a clock reporting the current wall-clock time in loc,
// expressed in UTC so it compares directly with scheduled date-times.
func WallClock(loc *time.Location) func() time.Time {
	return func() time.Time {
		n := time.Now().In(loc)
		return time.Date(n.Year(), n.Month(), n.Day(), n.Hour(), n.Minute(), n.Second(), 0, time.UTC)
	}
}
