package calendar

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var referenceDateRe = regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}`)

type stepUnit int

const maxStep = math.MaxInt32

const (
	stepMonth stepUnit = iota
	stepDay
)

// ReferenceDate extracts the first YYYY-M-D date from a units string.
func ReferenceDate(units string) (time.Time, error) {
	s := referenceDateRe.FindString(units)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: %q", ErrNoReferenceDate, units)
	}
	parts := strings.Split(s, "-")
	y, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	d, _ := strconv.Atoi(parts[2])
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if m < 1 || m > 12 || t.Month() != time.Month(m) || t.Day() != d {
		return time.Time{}, fmt.Errorf("%w: %q is not a valid date", ErrNoReferenceDate, s)
	}
	return t, nil
}

func parseStepUnit(units string) (stepUnit, error) {
	switch {
	case strings.Contains(units, "month"):
		return stepMonth, nil
	case strings.Contains(units, "day"):
		return stepDay, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedUnit, units)
}

// Repair reconstructs a time axis whose units could not be decoded, such as
// "months since 1950-1-1". Offsets are floored when the first one has a fractional part. Month
// offsets land on the last day of the month, day offsets on the exact day. When
// any timestamp is not representable the axis degrades to year/month periods
// counted from the reference date.
func Repair(units string, raw []float64) (*Axis, error) {
	ref, err := ReferenceDate(units)
	if err != nil {
		return nil, err
	}
	unit, err := parseStepUnit(units)
	if err != nil {
		return nil, err
	}

	steps := make([]int, len(raw))
	truncate := len(raw) > 0 && math.Mod(raw[0], 1) != 0
	overflow := false
	for i, x := range raw {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, ErrNonFiniteOffsets
		}
		if truncate {
			x = math.Floor(x)
		}
		// Far beyond any representable date; converting would overflow int.
		if math.Abs(x) > maxStep {
			overflow = true
			break
		}
		steps[i] = int(x)
	}

	if !overflow {
		if axis, err := stepTimestamps(ref, unit, steps); err == nil {
			return axis, nil
		}
	}
	return periodRange(ref, unit, len(raw)), nil
}

func stepTimestamps(ref time.Time, unit stepUnit, steps []int) (*Axis, error) {
	times := make([]time.Time, len(steps))
	for i, n := range steps {
		var t time.Time
		switch unit {
		case stepMonth:
			t = monthEnd(ref.Year(), ref.Month()+time.Month(n))
		case stepDay:
			t = time.Date(ref.Year(), ref.Month(), ref.Day()+n, 0, 0, 0, 0, time.UTC)
		}
		if !Representable(t) {
			return nil, fmt.Errorf("%w: %s", ErrOutOfRange, t.Format("2006-01-02"))
		}
		times[i] = t
	}
	return newTimestampAxis(times), nil
}

// periodRange generates n consecutive periods starting at the reference date's
// period, ignoring the raw offsets.
func periodRange(ref time.Time, unit stepUnit, n int) *Axis {
	a := &Axis{Tier: Periods, Years: make([]int, n), Months: make([]int, n)}
	for i := 0; i < n; i++ {
		var t time.Time
		switch unit {
		case stepMonth:
			t = time.Date(ref.Year(), ref.Month()+time.Month(i), 1, 0, 0, 0, 0, time.UTC)
		case stepDay:
			t = time.Date(ref.Year(), ref.Month(), ref.Day()+i, 0, 0, 0, 0, time.UTC)
		}
		a.Years[i] = t.Year()
		a.Months[i] = int(t.Month())
	}
	return a
}

// monthEnd returns midnight on the last day of month m of year y. m may be out of
// the 1..12 range; time.Date normalizes it.
func monthEnd(y int, m time.Month) time.Time {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC)
}
