package clock

import "time"

// DefaultTimezone is the calendar timezone all daily quotas roll over in.
// Quota days follow the students' local midnight, never server midnight.
const DefaultTimezone = "Africa/Nairobi"

const dateKeyLayout = "2006-01-02"

// Clock produces "today" keys in one fixed timezone. All quota logic goes
// through a Clock so tests can pin the current instant.
type Clock struct {
	loc   *time.Location
	nowFn func() time.Time
}

func New(loc *time.Location) *Clock {
	return &Clock{loc: loc, nowFn: time.Now}
}

// NewWithNow returns a Clock with a fixed time source. Test helper.
func NewWithNow(loc *time.Location, nowFn func() time.Time) *Clock {
	return &Clock{loc: loc, nowFn: nowFn}
}

func (c *Clock) Now() time.Time {
	return c.nowFn()
}

// TodayKey returns the current date key (YYYY-MM-DD) in the clock's timezone.
func (c *Clock) TodayKey() string {
	return DateKey(c.nowFn(), c.loc)
}

// DateKey projects an instant into loc and formats it as YYYY-MM-DD.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateKeyLayout)
}
