package domain

import "time"

// WorkdayConfig bounds a single day's reorganization. Zero values are
// replaced by defaults via Normalize, so callers can override only the
// fields they care about.
type WorkdayConfig struct {
	WorkdayStartHour   int // 24h clock
	WorkdayStartMinute int
	WorkdayEndHour     int
	WorkdayEndMinute   int

	BreakDuration time.Duration // gap left between neighbouring blocks

	LunchStartHour   int
	LunchStartMinute int
	LunchDuration    time.Duration
}

const (
	defaultWorkdayStartHour = 8
	defaultWorkdayEndHour   = 22
	defaultLunchStartHour   = 12
)

// DefaultWorkday returns the stock configuration: 08:00-22:00 workday,
// 15 minute inter-block break, lunch at 12:00 for an hour.
func DefaultWorkday() WorkdayConfig {
	return WorkdayConfig{
		WorkdayStartHour: defaultWorkdayStartHour,
		WorkdayEndHour:   defaultWorkdayEndHour,
		BreakDuration:    15 * time.Minute,
		LunchStartHour:   defaultLunchStartHour,
		LunchDuration:    60 * time.Minute,
	}
}

// Normalize fills unset fields with defaults and returns the result.
func (c WorkdayConfig) Normalize() WorkdayConfig {
	d := DefaultWorkday()
	if c.WorkdayStartHour == 0 && c.WorkdayStartMinute == 0 {
		c.WorkdayStartHour = d.WorkdayStartHour
	}
	if c.WorkdayEndHour == 0 && c.WorkdayEndMinute == 0 {
		c.WorkdayEndHour = d.WorkdayEndHour
	}
	if c.BreakDuration == 0 {
		c.BreakDuration = d.BreakDuration
	}
	if c.LunchStartHour == 0 && c.LunchStartMinute == 0 {
		c.LunchStartHour = d.LunchStartHour
	}
	if c.LunchDuration == 0 {
		c.LunchDuration = d.LunchDuration
	}
	return c
}

// WorkdayWindow returns the [start, end) span of the workday on the given date.
func (c WorkdayConfig) WorkdayWindow(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(),
		c.WorkdayStartHour, c.WorkdayStartMinute, 0, 0, date.Location())
	end := time.Date(date.Year(), date.Month(), date.Day(),
		c.WorkdayEndHour, c.WorkdayEndMinute, 0, 0, date.Location())
	return start, end
}

// LunchWindow returns the [start, end) span of lunch on the given date.
func (c WorkdayConfig) LunchWindow(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(),
		c.LunchStartHour, c.LunchStartMinute, 0, 0, date.Location())
	return start, start.Add(c.LunchDuration)
}
