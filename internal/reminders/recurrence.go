package reminders

import (
	"fmt"
	"slices"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ziadkadry99/lifeos-notify/internal/preferences"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// DefaultCronLookback is how far back a cron activation still counts as due.
const DefaultCronLookback = 5 * time.Minute

// Evaluator decides when a definition is due. It is pure: the same
// definition and instant always give the same answer.
type Evaluator struct {
	CronLookback time.Duration
}

// DefaultEvaluator uses DefaultCronLookback.
var DefaultEvaluator = Evaluator{CronLookback: DefaultCronLookback}

// IsDue reports whether d has an occurrence in the period containing now
// that is at or before now.
func IsDue(d Definition, now time.Time) (bool, error) { return DefaultEvaluator.IsDue(d, now) }

// PeriodBucket returns the idempotency key of the period containing now.
func PeriodBucket(d Definition, now time.Time) (string, error) {
	return DefaultEvaluator.PeriodBucket(d, now)
}

func (e Evaluator) IsDue(d Definition, now time.Time) (bool, error) {
	_, ok, err := e.Occurrence(d, now)
	return ok, err
}

// PeriodBucket keys the current period: the local date for daily, the
// ISO week for weekly, the month for monthly and the activation minute
// for cron.
func (e Evaluator) PeriodBucket(d Definition, now time.Time) (string, error) {
	local := now.In(d.Location())
	switch d.Pattern {
	case PatternDaily:
		return local.Format("2006-01-02"), nil
	case PatternWeekly:
		year, week := local.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), nil
	case PatternMonthly:
		return local.Format("2006-01"), nil
	case PatternCron:
		occ, ok, err := e.Occurrence(d, now)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("%w: no cron activation near %s", ErrInvalid, now.Format(time.RFC3339))
		}
		return occ.In(d.Location()).Format("2006-01-02T15:04"), nil
	}
	return "", fmt.Errorf("%w: unknown repeat_pattern %q", ErrInvalid, d.Pattern)
}

// Occurrence returns the instant the current period's reminder is
// scheduled for and whether that instant has been reached. Occurrences
// that precede the definition's creation are never due.
func (e Evaluator) Occurrence(d Definition, now time.Time) (time.Time, bool, error) {
	occ, ok, err := e.occurrence(d, now)
	if ok && !d.CreatedAt.IsZero() && occ.Before(d.CreatedAt) {
		ok = false
	}
	return occ, ok, err
}

func (e Evaluator) occurrence(d Definition, now time.Time) (time.Time, bool, error) {
	loc := d.Location()
	local := now.In(loc)

	if d.Pattern == PatternCron {
		return e.cronOccurrence(d, now)
	}

	minutes, err := preferences.ParseClock(d.TimeOfDay)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	at := func(day time.Time) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, loc)
	}

	switch d.Pattern {
	case PatternDaily:
		if len(d.DaysOfWeek) > 0 && !slices.Contains(d.DaysOfWeek, local.Weekday()) {
			return time.Time{}, false, nil
		}
		occ := at(local)
		return occ, !occ.After(now), nil

	case PatternWeekly:
		days := d.DaysOfWeek
		if len(days) == 0 {
			days = []time.Weekday{time.Monday}
		}
		// Walk the ISO week from Monday up to today; the period fires at
		// its first allowed day not before the definition was created.
		offset := (int(local.Weekday()) + 6) % 7
		monday := local.AddDate(0, 0, -offset)
		for i := 0; i <= offset; i++ {
			day := monday.AddDate(0, 0, i)
			if !slices.Contains(days, day.Weekday()) {
				continue
			}
			occ := at(day)
			if !d.CreatedAt.IsZero() && occ.Before(d.CreatedAt) {
				continue
			}
			return occ, !occ.After(now), nil
		}
		return time.Time{}, false, nil

	case PatternMonthly:
		day := min(d.DayOfMonth, daysIn(local.Year(), local.Month()))
		occ := time.Date(local.Year(), local.Month(), day, minutes/60, minutes%60, 0, 0, loc)
		return occ, !occ.After(now), nil
	}
	return time.Time{}, false, fmt.Errorf("%w: unknown repeat_pattern %q", ErrInvalid, d.Pattern)
}

// cronOccurrence finds the latest activation in (now-lookback, now].
func (e Evaluator) cronOccurrence(d Definition, now time.Time) (time.Time, bool, error) {
	sched, err := cronParser.Parse(d.Cron)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: cron %q: %v", ErrInvalid, d.Cron, err)
	}
	lookback := e.CronLookback
	if lookback <= 0 {
		lookback = DefaultCronLookback
	}

	var (
		latest time.Time
		found  bool
	)
	for next := sched.Next(now.Add(-lookback).In(d.Location())); !next.IsZero() && !next.After(now); next = sched.Next(next) {
		latest, found = next, true
	}
	return latest, found, nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
