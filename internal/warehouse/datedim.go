//-------------------------------------------------------------------------
//
// pgEdge Star Schema Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package warehouse

import (
	"fmt"
	"time"
)

// Weekday and Weekend label date_dim.order_weekday.
const (
	Weekday = "Weekday"
	Weekend = "Weekend"
)

var dayNames = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

var dateAttrColumns = []string{
	"order_year",
	"order_month",
	"order_quarter",
	"order_day",
	"order_dayofweek",
	"order_dayname",
	"order_dayofmonth",
	"order_weekday",
	"day_counter",
}

// CalendarDay is one generated date_dim row.
type CalendarDay struct {
	Date       time.Time
	Year       int
	Month      int
	Quarter    int
	Day        int
	DayOfWeek  int // Monday is 0
	DayName    string
	DayOfMonth int
	WeekdayTag string
	Counter    int
}

// Values returns the row in order_dt + dateAttrColumns order.
func (c CalendarDay) Values() []any {
	return []any{
		c.Date,
		c.Year,
		c.Month,
		c.Quarter,
		c.Day,
		c.DayOfWeek,
		c.DayName,
		c.DayOfMonth,
		c.WeekdayTag,
		c.Counter,
	}
}

// Calendar returns one CalendarDay for every day in [from, to]. The
// counter is 1 on from and grows by one per calendar day.
func Calendar(from, to time.Time) ([]CalendarDay, error) {
	if from.IsZero() || to.IsZero() {
		return nil, ErrEmptyRange
	}
	from = truncateDay(from)
	to = truncateDay(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s is after %s", ErrEmptyRange,
			from.Format(DateLayout), to.Format(DateLayout))
	}

	days := make([]CalendarDay, 0, int(to.Sub(from).Hours()/24)+1)
	counter := 1
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dow := (int(d.Weekday()) + 6) % 7
		tag := Weekday
		if dow >= 5 {
			tag = Weekend
		}
		days = append(days, CalendarDay{
			Date:       d,
			Year:       d.Year(),
			Month:      int(d.Month()),
			Quarter:    (int(d.Month())-1)/3 + 1,
			Day:        d.Day(),
			DayOfWeek:  dow,
			DayName:    dayNames[dow],
			DayOfMonth: d.Day(),
			WeekdayTag: tag,
			Counter:    counter,
		})
		counter++
	}
	return days, nil
}

func generateDates(s *Snapshot) ([]Candidate, error) {
	from, to, err := s.DateRange()
	if err != nil {
		return nil, err
	}
	days, err := Calendar(from, to)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, len(days))
	for i, d := range days {
		out[i] = Candidate{Key: MakeKey(d.Date), Values: d.Values()}
	}
	return out, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
