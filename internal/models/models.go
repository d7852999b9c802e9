package models

import "time"

// Region is a latitude/longitude window in degrees, bounds inclusive.
type Region struct {
	LatMin float64
	LatMax float64
	LonMin float64
	LonMax float64
}

// SouthEastAustralia is the window the Mizer masks were built for.
var SouthEastAustralia = Region{LatMin: -50, LatMax: -30, LonMin: 120, LonMax: 160}

func (r Region) ContainsLat(v float64) bool {
	return v >= r.LatMin && v <= r.LatMax
}

func (r Region) ContainsLon(v float64) bool {
	return v >= r.LonMin && v <= r.LonMax
}

// LatIndices returns the indices of lat inside the window, in input order.
func (r Region) LatIndices(lat []float64) []int {
	var idx []int
	for i, v := range lat {
		if r.ContainsLat(v) {
			idx = append(idx, i)
		}
	}
	return idx
}

// LonIndices returns the indices of lon inside the window, in input order.
func (r Region) LonIndices(lon []float64) []int {
	var idx []int
	for i, v := range lon {
		if r.ContainsLon(v) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Mask is a 2D inclusion grid over (lat, lon), stored row-major.
type Mask struct {
	Name   string
	Lat    []float64
	Lon    []float64
	Values []float64
}

// Included reports whether cell (i, j) is part of the region. Only cells equal to
// 1 are included; NaN and any other value are excluded.
func (m *Mask) Included(i, j int) bool {
	return m.Values[i*len(m.Lon)+j] == 1
}

func (m *Mask) Cells() int {
	n := 0
	for _, v := range m.Values {
		if v == 1 {
			n++
		}
	}
	return n
}

// AnnualRow is the reduced value of one calendar year. Values holds one entry per
// level of any dimension that was not reduced (usually exactly one).
type AnnualRow struct {
	Year   int
	Values []float64
}

type AnnualSeries struct {
	Variable string
	Columns  []string
	Rows     []AnnualRow
}

type OutcomeKind string

const (
	OutcomeSuccess         OutcomeKind = "success"
	OutcomeLoadFailure     OutcomeKind = "load-failure"
	OutcomeCalendarFailure OutcomeKind = "calendar-decode-failure"
	OutcomeSelectFailure   OutcomeKind = "selection-failure"
	OutcomeReduceFailure   OutcomeKind = "reduction-failure"
	OutcomeWriteFailure    OutcomeKind = "write-failure"
)

// Outcome is the result of processing a single input file.
type Outcome struct {
	Root       string
	Path       string
	Token      string
	OutputPath string
	Kind       OutcomeKind
	Err        error
	Repaired   bool // time axis came from the non-compliant calendar repair
	Variable   string
	Years      int
	Duration   time.Duration
}

func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess
}

func (o Outcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
