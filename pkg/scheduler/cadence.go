// Package scheduler runs recurring unattended form submissions.
package scheduler

import (
	"errors"
	"fmt"
	"time"
)

// StartLayout formats job start times in names and prompts. Start times are always UTC.
const StartLayout = "2006-01-02 15:04"

// MinPeriod is the shortest custom cadence accepted.
const MinPeriod = 5 * time.Minute

// ErrInvalidCadence is returned for unknown cadence kinds and custom periods below MinPeriod.
var ErrInvalidCadence = errors.New("invalid cadence")

// Kind names a cadence.
type Kind string

const (
	KindHourly  Kind = "hourly"
	KindDaily   Kind = "daily"
	KindWeekly  Kind = "weekly"
	KindMonthly Kind = "monthly"
	KindCustom  Kind = "custom"
)

// Kinds lists the cadence kinds in menu order.
func Kinds() []Kind {
	return []Kind{KindHourly, KindDaily, KindWeekly, KindMonthly, KindCustom}
}

// Cadence says how often a job repeats. Days, Hours and Minutes are only used by KindCustom.
type Cadence struct {
	Kind    Kind `json:"kind"`
	Days    int  `json:"days,omitempty"`
	Hours   int  `json:"hours,omitempty"`
	Minutes int  `json:"minutes,omitempty"`
}

func Hourly() Cadence  { return Cadence{Kind: KindHourly} }
func Daily() Cadence   { return Cadence{Kind: KindDaily} }
func Weekly() Cadence  { return Cadence{Kind: KindWeekly} }
func Monthly() Cadence { return Cadence{Kind: KindMonthly} }

// Custom repeats every days, hours and minutes.
func Custom(days, hours, minutes int) Cadence {
	return Cadence{Kind: KindCustom, Days: days, Hours: hours, Minutes: minutes}
}

// Validate checks the kind and, for custom cadences, the period bounds.
func (c Cadence) Validate() error {
	switch c.Kind {
	case KindHourly, KindDaily, KindWeekly, KindMonthly:
		return nil
	case KindCustom:
		if c.Days < 0 || c.Hours < 0 || c.Minutes < 0 {
			return fmt.Errorf("%w: negative period", ErrInvalidCadence)
		}
		if c.Hours > 23 || c.Minutes > 59 {
			return fmt.Errorf("%w: %d hours and %d minutes out of range", ErrInvalidCadence, c.Hours, c.Minutes)
		}
		if c.Period() < MinPeriod {
			return fmt.Errorf("%w: period must be at least %s", ErrInvalidCadence, MinPeriod)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidCadence, c.Kind)
	}
}

// Period is the fixed interval between fires, or zero for the calendar-based monthly cadence.
func (c Cadence) Period() time.Duration {
	switch c.Kind {
	case KindHourly:
		return time.Hour
	case KindDaily:
		return 24 * time.Hour
	case KindWeekly:
		return 7 * 24 * time.Hour
	case KindCustom:
		return time.Duration(c.Days)*24*time.Hour +
			time.Duration(c.Hours)*time.Hour +
			time.Duration(c.Minutes)*time.Minute
	default:
		return 0
	}
}

// Describe renders the cadence the way the job list shows it.
func (c Cadence) Describe() string {
	switch c.Kind {
	case KindHourly:
		return "Submit hourly"
	case KindDaily:
		return "Submit daily"
	case KindWeekly:
		return "Submit weekly"
	case KindMonthly:
		return "Submit monthly"
	case KindCustom:
		return fmt.Sprintf("Submit every %d days, %d hours and %d minutes", c.Days, c.Hours, c.Minutes)
	default:
		return string(c.Kind)
	}
}

// Next returns the first fire time strictly after after. Fires happen at start and then every
// period; a monthly cadence fires on the start's day of month, or the last day of shorter months.
func (c Cadence) Next(start, after time.Time) time.Time {
	start = start.UTC()
	after = after.UTC()
	if after.Before(start) {
		return start
	}

	if c.Kind == KindMonthly {
		months := (after.Year()-start.Year())*12 + int(after.Month()-start.Month())
		if months < 0 {
			months = 0
		}
		for {
			at := monthOffset(start, months)
			if at.After(after) {
				return at
			}
			months++
		}
	}

	period := c.Period()
	if period <= 0 {
		return time.Time{}
	}
	n := after.Sub(start)/period + 1
	return start.Add(n * period)
}

// monthOffset moves start by months calendar months, clamping the day to the target month.
func monthOffset(start time.Time, months int) time.Time {
	first := time.Date(start.Year(), start.Month()+time.Month(months), 1,
		start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), time.UTC)
	day := start.Day()
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

// JobName derives the human-readable label of a job.
func JobName(c Cadence, start time.Time) string {
	return fmt.Sprintf("%s, starting from %s", c.Describe(), start.UTC().Format(StartLayout))
}
