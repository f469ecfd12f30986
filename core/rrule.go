package core

import (
	"iter"
	"time"
)

// =============================================================================
// RECURRENCE - Occurrence dates of a schedule
// =============================================================================

// RRule yields the payment dates in [start, until]. One-time schedules yield
// start regardless of until. The sequence is lazy and finite.
func (s *PaymentSchedule) RRule(start, until Date) (iter.Seq[Date], error) {
	if s.PaymentType == OneTimePayment {
		return func(yield func(Date) bool) { yield(start) }, nil
	}

	switch s.Frequency {
	case FrequencyDaily:
		return everyNDays(start, until, 1), nil
	case FrequencyWeekly:
		return everyNDays(start, until, 7), nil
	case FrequencyBiweekly:
		return everyNDays(start, until, 14), nil
	case FrequencyMonthly:
		day := s.DayOfMonth
		if day == 0 {
			day = 1
		}
		return monthlyOn(start, until, day), nil
	default:
		return nil, &ConfigError{Field: "frequency", Value: string(s.Frequency)}
	}
}

func everyNDays(start, until Date, n int) iter.Seq[Date] {
	return func(yield func(Date) bool) {
		for d := start; d.BeforeOrEqual(until); d = d.AddDays(n) {
			if !yield(d) {
				return
			}
		}
	}
}

// monthlyOn skips months that have no such day instead of clamping.
func monthlyOn(start, until Date, day int) iter.Seq[Date] {
	return func(yield func(Date) bool) {
		year, month := start.Year(), start.Month()
		for {
			first := NewDate(year, month, 1)
			if first.After(until) {
				return
			}
			if day <= DaysInMonth(year, month) {
				d := NewDate(year, month, day)
				if d.AfterOrEqual(start) && d.BeforeOrEqual(until) {
					if !yield(d) {
						return
					}
				}
			}
			if month == time.December {
				year, month = year+1, time.January
			} else {
				month++
			}
		}
	}
}

// PaymentHorizon is the last date to materialize: end, or Dec 31 of the year
// after today for open-ended schedules.
func PaymentHorizon(end *Date, today Date) Date {
	if end != nil {
		return *end
	}
	return EndOfYear(today.Year() + 1)
}

// PlannedDates collects the occurrences for an activity range.
func (s *PaymentSchedule) PlannedDates(start Date, end *Date, today Date) ([]Date, error) {
	seq, err := s.RRule(start, PaymentHorizon(end, today))
	if err != nil {
		return nil, err
	}
	var dates []Date
	for d := range seq {
		dates = append(dates, d)
	}
	return dates, nil
}

// CountOccurrences counts the occurrences in p.
func (s *PaymentSchedule) CountOccurrences(p Period) (int, error) {
	seq, err := s.RRule(p.Start, p.End)
	if err != nil {
		return 0, err
	}
	n := 0
	for range seq {
		n++
	}
	return n, nil
}
