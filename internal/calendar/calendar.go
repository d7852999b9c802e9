// Package calendar turns raw time coordinates into calendar time axes.
//
// Decode handles CF-compliant "<unit> since <date>" axes on the standard
// calendar. Repair handles the two non-compliant encodings found in the ISIMIP
// historical inputs: integer month or day counts from a reference date.
package calendar

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotStandard      = errors.New("time axis is not CF compliant")
	ErrNoReferenceDate  = errors.New("no reference date in time units")
	ErrUnsupportedUnit  = errors.New("unsupported time step unit")
	ErrOutOfRange       = errors.New("time outside representable range")
	ErrNonFiniteOffsets = errors.New("time offsets are not finite")
)

type Tier int

const (
	// Timestamps carries full calendar timestamps.
	Timestamps Tier = iota
	// Periods carries year and month only, used when timestamps fall outside the
	// nanosecond epoch range.
	Periods
)

func (t Tier) String() string {
	if t == Periods {
		return "periods"
	}
	return "timestamps"
}

// Axis is a decoded time coordinate. Times is set for the Timestamps tier; Years
// and Months are always set.
type Axis struct {
	Tier   Tier
	Times  []time.Time
	Years  []int
	Months []int
}

func (a *Axis) Len() int {
	return len(a.Years)
}

// DistinctYears returns the years present on the axis, ascending.
func (a *Axis) DistinctYears() []int {
	seen := make(map[int]bool)
	var years []int
	for _, y := range a.Years {
		if !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}
	slices.Sort(years)
	return years
}

func newTimestampAxis(times []time.Time) *Axis {
	a := &Axis{Tier: Timestamps, Times: times, Years: make([]int, len(times)), Months: make([]int, len(times))}
	for i, t := range times {
		a.Years[i] = t.Year()
		a.Months[i] = int(t.Month())
	}
	return a
}

// Timestamps are stored as nanoseconds since the epoch downstream, which bounds
// them to roughly 1677-09-21 .. 2262-04-11.
var (
	minTimestamp = time.Unix(0, math.MinInt64).UTC()
	maxTimestamp = time.Unix(0, math.MaxInt64).UTC()
)

func Representable(t time.Time) bool {
	return !t.Before(minTimestamp) && !t.After(maxTimestamp)
}

var standardUnits = map[string]time.Duration{
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
	"d":       24 * time.Hour,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"h":       time.Hour,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"min":     time.Minute,
	"second":  time.Second,
	"seconds": time.Second,
	"s":       time.Second,
}

var standardCalendars = map[string]bool{
	"":                    true,
	"standard":            true,
	"gregorian":           true,
	"proleptic_gregorian": true,
}

var sinceRe = regexp.MustCompile(`^\s*(\w+)\s+since\s+(\d{1,4})-(\d{1,2})-(\d{1,2})(?:[ T](\d{1,2}):(\d{1,2})(?::(\d{1,2}(?:\.\d+)?))?)?\s*(?:Z|UTC|[+-]0{1,2}:?0{0,2})?\s*$`)

// Decode decodes a CF-compliant time axis. Month and year units, non-standard
// calendars and unparseable units fail with ErrNotStandard.
func Decode(units, cal string, raw []float64) (*Axis, error) {
	if !standardCalendars[strings.ToLower(strings.TrimSpace(cal))] {
		return nil, fmt.Errorf("%w: calendar %q", ErrNotStandard, cal)
	}
	m := sinceRe.FindStringSubmatch(units)
	if m == nil {
		return nil, fmt.Errorf("%w: units %q", ErrNotStandard, units)
	}
	step, ok := standardUnits[strings.ToLower(m[1])]
	if !ok {
		return nil, fmt.Errorf("%w: step unit %q", ErrNotStandard, m[1])
	}
	ref, err := referenceTime(m[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotStandard, err)
	}

	lo := float64(minTimestamp.Unix())
	hi := float64(maxTimestamp.Unix())
	times := make([]time.Time, len(raw))
	for i, x := range raw {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: %w", ErrNotStandard, ErrNonFiniteOffsets)
		}
		secs := float64(ref.Unix()) + x*step.Seconds()
		if secs < lo || secs > hi {
			return nil, fmt.Errorf("%w: %w: offset %v %s", ErrNotStandard, ErrOutOfRange, x, m[1])
		}
		whole := math.Floor(secs)
		nanos := math.Round((secs - whole) * 1e9)
		times[i] = time.Unix(int64(whole), int64(nanos)).UTC()
	}
	return newTimestampAxis(times), nil
}

func referenceTime(parts []string) (time.Time, error) {
	n := make([]int, 5)
	for i := 0; i < 5; i++ {
		if parts[i] == "" {
			continue
		}
		v, err := strconv.Atoi(parts[i])
		if err != nil {
			return time.Time{}, fmt.Errorf("reference date: %w", err)
		}
		n[i] = v
	}
	var sec float64
	if parts[5] != "" {
		f, err := strconv.ParseFloat(parts[5], 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("reference date: %w", err)
		}
		sec = f
	}
	if n[1] < 1 || n[1] > 12 || n[2] < 1 || n[2] > 31 {
		return time.Time{}, fmt.Errorf("reference date %d-%d-%d is invalid", n[0], n[1], n[2])
	}
	whole := math.Floor(sec)
	return time.Date(n[0], time.Month(n[1]), n[2], n[3], n[4], int(whole), int(math.Round((sec-whole)*1e9)), time.UTC), nil
}
