// Package reduce computes masked annual means over a regional window.
package reduce

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/lox/isimipextract/internal/calendar"
	"github.com/lox/isimipextract/internal/csvout"
	"github.com/lox/isimipextract/internal/models"
	"github.com/lox/isimipextract/internal/ncfile"
)

var (
	ErrNoVariable        = errors.New("no data variable matches")
	ErrAmbiguousVariable = errors.New("more than one data variable matches")
	ErrMaskMismatch      = errors.New("mask grid does not align with data grid")
	ErrLayout            = errors.New("unsupported variable layout")
)

// coordTolerance absorbs float32 storage of grid coordinates.
const coordTolerance = 1e-4

type Reducer struct {
	region models.Region
	allow  []string
}

// New returns a reducer for region. allow lists the variable names a dataset may
// legitimately contain, used when the target token does not name a variable.
func New(region models.Region, allow []string) *Reducer {
	return &Reducer{region: region, allow: allow}
}

func normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "-", "_")
}

var levelSuffixRe = regexp.MustCompile(`_\d+$`)

// names returns the normalized forms a token may appear under in a dataset:
// itself and, for depth-level tokens such as thetao_15, the bare variable name.
func names(token string) []string {
	n := normalize(token)
	if base := levelSuffixRe.ReplaceAllString(n, ""); base != n && base != "" {
		return []string{n, base}
	}
	return []string{n}
}

func nameMatches(v, token string) bool {
	return slices.Contains(names(token), normalize(v))
}

// ResolveVariable picks the data variable to reduce. In order: the variable named
// like target (a level suffix such as _15 may be dropped), the only data
// variable, the single variable on the allow-list.
// Anything else is an error rather than a guess.
func (r *Reducer) ResolveVariable(ds *ncfile.Dataset, target string) (string, error) {
	vars := ds.DataVars()
	if len(vars) == 0 {
		return "", fmt.Errorf("%w: dataset declares no data variables", ErrNoVariable)
	}
	for _, v := range vars {
		if nameMatches(v, target) {
			return v, nil
		}
	}
	if len(vars) == 1 {
		return vars[0], nil
	}

	var matches []string
	for _, v := range vars {
		for _, a := range r.allow {
			if nameMatches(v, a) {
				matches = append(matches, v)
				break
			}
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("%w: %q not among %v", ErrNoVariable, target, vars)
	}
	return "", fmt.Errorf("%w: %q matches %v", ErrAmbiguousVariable, target, matches)
}

// Reduce averages variable over lat, lon and time for every calendar year on the
// axis, counting only cells the mask includes and skipping missing values. Any
// further dimension such as depth is kept, giving one value per level.
func (r *Reducer) Reduce(ds *ncfile.Dataset, axis *calendar.Axis, variable string, m *models.Mask) (*models.AnnualSeries, error) {
	v, ok := ds.Var(variable)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoVariable, variable)
	}
	if v.DimIndex("time") != 0 {
		return nil, fmt.Errorf("%w: %s dimensions %v, want time first", ErrLayout, variable, v.Dims)
	}
	if v.Shape[0] != axis.Len() {
		return nil, fmt.Errorf("%w: %s has %d time steps, axis has %d", ErrLayout, variable, v.Shape[0], axis.Len())
	}

	slabDims, slabShape := v.Dims[1:], v.Shape[1:]
	latPos, lonPos := indexOf(slabDims, "lat"), indexOf(slabDims, "lon")
	if latPos < 0 || lonPos < 0 {
		return nil, fmt.Errorf("%w: %s dimensions %v, want lat and lon", ErrLayout, variable, v.Dims)
	}

	lat, err := ds.Coord("lat")
	if err != nil {
		return nil, err
	}
	lon, err := ds.Coord("lon")
	if err != nil {
		return nil, err
	}
	li, lj := r.region.LatIndices(lat), r.region.LonIndices(lon)
	if err := aligned(lat, li, m.Lat); err != nil {
		return nil, fmt.Errorf("%w: lat %v", ErrMaskMismatch, err)
	}
	if err := aligned(lon, lj, m.Lon); err != nil {
		return nil, fmt.Errorf("%w: lon %v", ErrMaskMismatch, err)
	}

	strides := make([]int, len(slabShape))
	stride := 1
	for k := len(slabShape) - 1; k >= 0; k-- {
		strides[k] = stride
		stride *= slabShape[k]
	}

	var cells []int
	for a, i := range li {
		for b, j := range lj {
			if m.Included(a, b) {
				cells = append(cells, i*strides[latPos]+j*strides[lonPos])
			}
		}
	}

	var levelDims []int
	for k := range slabDims {
		if k != latPos && k != lonPos {
			levelDims = append(levelDims, k)
		}
	}
	levels := levelOffsets(levelDims, slabShape, strides)

	years := axis.DistinctYears()
	row := make(map[int]int, len(years))
	for i, y := range years {
		row[y] = i
	}

	// Partial means per slab, combined per year weighted by their counts.
	means := make([][][]float64, len(years))
	weights := make([][][]float64, len(years))
	for i := range years {
		means[i] = make([][]float64, len(levels))
		weights[i] = make([][]float64, len(levels))
	}

	buf := make([]float64, 0, len(cells))
	for t := 0; t < v.Shape[0]; t++ {
		slab, err := v.Slab(t)
		if err != nil {
			return nil, err
		}
		y := row[axis.Years[t]]
		for l, off := range levels {
			buf = buf[:0]
			for _, c := range cells {
				if x := slab[off+c]; !math.IsNaN(x) {
					buf = append(buf, x)
				}
			}
			if len(buf) == 0 {
				continue
			}
			means[y][l] = append(means[y][l], stat.Mean(buf, nil))
			weights[y][l] = append(weights[y][l], float64(len(buf)))
		}
	}

	series := &models.AnnualSeries{
		Variable: variable,
		Columns:  columnNames(ds, variable, slabDims, slabShape, levelDims),
		Rows:     make([]models.AnnualRow, len(years)),
	}
	for i, y := range years {
		vals := make([]float64, len(levels))
		for l := range levels {
			if len(means[i][l]) == 0 {
				vals[l] = math.NaN()
				continue
			}
			vals[l] = stat.Mean(means[i][l], weights[i][l])
		}
		series.Rows[i] = models.AnnualRow{Year: y, Values: vals}
	}
	return series, nil
}

func indexOf(dims []string, name string) int {
	for i, d := range dims {
		if d == name {
			return i
		}
	}
	return -1
}

func aligned(coord []float64, idx []int, mask []float64) error {
	if len(idx) != len(mask) {
		return fmt.Errorf("data has %d cells in region, mask has %d", len(idx), len(mask))
	}
	for a, i := range idx {
		if math.Abs(coord[i]-mask[a]) > coordTolerance {
			return fmt.Errorf("data %v != mask %v at %d", coord[i], mask[a], a)
		}
	}
	return nil
}

// levelOffsets returns the slab offset of every combination of the level
// dimensions, in row-major order. With no level dimensions it is a single zero.
func levelOffsets(levelDims, shape, strides []int) []int {
	offs := []int{0}
	for _, k := range levelDims {
		next := make([]int, 0, len(offs)*shape[k])
		for _, o := range offs {
			for n := 0; n < shape[k]; n++ {
				next = append(next, o+n*strides[k])
			}
		}
		offs = next
	}
	return offs
}

func columnNames(ds *ncfile.Dataset, variable string, dims []string, shape, levelDims []int) []string {
	if len(levelDims) == 0 {
		return []string{variable}
	}
	labels := []string{""}
	for _, k := range levelDims {
		coord, err := ds.Coord(dims[k])
		next := make([]string, 0, len(labels)*shape[k])
		for _, prefix := range labels {
			for n := 0; n < shape[k]; n++ {
				label := strconv.Itoa(n)
				if err == nil && n < len(coord) {
					label = csvout.FormatValue(coord[n])
				}
				if prefix != "" {
					label = prefix + "_" + label
				}
				next = append(next, label)
			}
		}
		labels = next
	}
	return labels
}
