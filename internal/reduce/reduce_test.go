package reduce

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/lox/isimipextract/internal/calendar"
	"github.com/lox/isimipextract/internal/models"
	"github.com/lox/isimipextract/internal/ncfile"
	"github.com/lox/isimipextract/internal/nctest"
)

var (
	testLat = []float64{-20, -30, -40, -50, -60} // region keeps -30, -40, -50
	testLon = []float64{110, 120, 140, 160}      // region keeps 120, 140, 160
)

func mustVar(t *testing.T, name string, dims []string, values any, attrs map[string]any) *ncfile.Variable {
	t.Helper()
	v, err := ncfile.NewVariable(name, dims, values, attrs)
	if err != nil {
		t.Fatalf("NewVariable(%s): %v", name, err)
	}
	return v
}

// dataset builds a (time, lat, lon) dataset where each value is f(t, i, j).
func dataset(t *testing.T, name string, nt int, f func(t, i, j int) float64, extra ...*ncfile.Variable) *ncfile.Dataset {
	t.Helper()
	vars := []*ncfile.Variable{
		mustVar(t, "time", []string{"time"}, nctest.Range(0, 1, nt), map[string]any{"units": "months since 1901-1-1"}),
		mustVar(t, "lat", []string{"lat"}, testLat, nil),
		mustVar(t, "lon", []string{"lon"}, testLon, nil),
		mustVar(t, name, []string{"time", "lat", "lon"}, nctest.Grid(nt, testLat, testLon, f), nil),
	}
	return ncfile.NewDataset(append(vars, extra...)...)
}

func fullMask(v float64) *models.Mask {
	lat := []float64{-30, -40, -50}
	lon := []float64{120, 140, 160}
	vals := make([]float64, len(lat)*len(lon))
	for i := range vals {
		vals[i] = v
	}
	return &models.Mask{Lat: lat, Lon: lon, Values: vals}
}

func monthlyAxis(t *testing.T, n int) *calendar.Axis {
	t.Helper()
	axis, err := calendar.Repair("months since 1901-1-1", nctest.Range(0, 1, n))
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	return axis
}

func TestReduce_AnnualMeans(t *testing.T) {
	// Value = year index * 100 + lat index, so each year's mean over the three
	// in-region latitudes (indices 1..3) is year*100 + 2.
	ds := dataset(t, "tos", 24, func(tt, i, j int) float64 { return float64(tt/12*100 + i) })
	r := New(models.SouthEastAustralia, nil)

	got, err := r.Reduce(ds, monthlyAxis(t, 24), "tos", fullMask(1))
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	want := &models.AnnualSeries{
		Variable: "tos",
		Columns:  []string{"tos"},
		Rows: []models.AnnualRow{
			{Year: 1901, Values: []float64{2}},
			{Year: 1902, Values: []float64{102}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Reduce mismatch (-want +got):\n%s", diff)
	}
}

func TestReduce_MaskExcludesCells(t *testing.T) {
	ds := dataset(t, "tos", 12, func(tt, i, j int) float64 { return float64(j) })
	m := fullMask(1)
	// Exclude the lon=160 column (data lon index 3).
	for i := 0; i < 3; i++ {
		m.Values[i*3+2] = 0
	}

	got, err := New(models.SouthEastAustralia, nil).Reduce(ds, monthlyAxis(t, 12), "tos", m)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if v := got.Rows[0].Values[0]; v != 1.5 {
		t.Errorf("mean = %v, want 1.5 (lon indices 1 and 2)", v)
	}
}

func TestReduce_MissingValuesSkipped(t *testing.T) {
	ds := dataset(t, "tos", 12, func(tt, i, j int) float64 {
		if tt%2 == 1 {
			return math.NaN()
		}
		return 4
	})
	got, err := New(models.SouthEastAustralia, nil).Reduce(ds, monthlyAxis(t, 12), "tos", fullMask(1))
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if v := got.Rows[0].Values[0]; v != 4 {
		t.Errorf("mean = %v, want 4", v)
	}
}

func TestReduce_AllMaskedIsNaN(t *testing.T) {
	ds := dataset(t, "tos", 36, func(tt, i, j int) float64 { return 1 })
	got, err := New(models.SouthEastAustralia, nil).Reduce(ds, monthlyAxis(t, 36), "tos", fullMask(0))
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if len(got.Rows) != 3 {
		t.Fatalf("rows = %d, want 3 (one per distinct year)", len(got.Rows))
	}
	for _, row := range got.Rows {
		if !math.IsNaN(row.Values[0]) {
			t.Errorf("year %d = %v, want NaN", row.Year, row.Values[0])
		}
	}
}

func TestReduce_YearsAscendingForUnsortedAxis(t *testing.T) {
	ds := dataset(t, "tos", 3, func(tt, i, j int) float64 { return float64(tt) })
	axis, err := calendar.Decode("days since 2000-01-01", "", []float64{800, 0, 400})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, err := New(models.SouthEastAustralia, nil).Reduce(ds, axis, "tos", fullMask(1))
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	want := []models.AnnualRow{
		{Year: 2000, Values: []float64{1}},
		{Year: 2001, Values: []float64{2}},
		{Year: 2002, Values: []float64{0}},
	}
	if diff := cmp.Diff(want, got.Rows); diff != "" {
		t.Errorf("Rows mismatch (-want +got):\n%s", diff)
	}
}

func TestReduce_DepthLevels(t *testing.T) {
	lev := []float64{5, 15}
	values := make([][][][]float64, 12)
	for tt := range values {
		values[tt] = make([][][]float64, len(lev))
		for k := range lev {
			values[tt][k] = nctest.Ones(testLat, testLon, lev[k])
		}
	}
	ds := ncfile.NewDataset(
		mustVar(t, "lev", []string{"lev"}, lev, nil),
		mustVar(t, "lat", []string{"lat"}, testLat, nil),
		mustVar(t, "lon", []string{"lon"}, testLon, nil),
		mustVar(t, "thetao", []string{"time", "lev", "lat", "lon"}, values, nil),
	)

	got, err := New(models.SouthEastAustralia, nil).Reduce(ds, monthlyAxis(t, 12), "thetao", fullMask(1))
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if diff := cmp.Diff([]string{"5.0", "15.0"}, got.Columns); diff != "" {
		t.Errorf("Columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{5, 15}, got.Rows[0].Values); diff != "" {
		t.Errorf("Values mismatch (-want +got):\n%s", diff)
	}
}

func TestReduce_MaskMismatch(t *testing.T) {
	ds := dataset(t, "tos", 12, func(tt, i, j int) float64 { return 1 })
	m := &models.Mask{Lat: []float64{-30, -40}, Lon: []float64{120, 140, 160}, Values: make([]float64, 6)}
	_, err := New(models.SouthEastAustralia, nil).Reduce(ds, monthlyAxis(t, 12), "tos", m)
	if !errors.Is(err, ErrMaskMismatch) {
		t.Errorf("err = %v, want ErrMaskMismatch", err)
	}
}

func TestReduce_AxisLengthMismatch(t *testing.T) {
	ds := dataset(t, "tos", 12, func(tt, i, j int) float64 { return 1 })
	_, err := New(models.SouthEastAustralia, nil).Reduce(ds, monthlyAxis(t, 6), "tos", fullMask(1))
	if !errors.Is(err, ErrLayout) {
		t.Errorf("err = %v, want ErrLayout", err)
	}
}

func TestResolveVariable(t *testing.T) {
	one := func(t *testing.T, name string) *ncfile.Variable {
		return mustVar(t, name, []string{"time", "lat", "lon"}, nctest.Grid(1, testLat, testLon, func(int, int, int) float64 { return 0 }), nil)
	}
	allow := []string{"phyc-vint", "tos", "tob", "thetao_15"}

	tests := []struct {
		name    string
		extra   []string
		target  string
		want    string
		wantErr error
	}{
		{name: "exact name", extra: []string{"tos", "so"}, target: "tos", want: "tos"},
		{name: "dash and underscore equivalent", extra: []string{"phyc_vint", "so"}, target: "phyc-vint", want: "phyc_vint"},
		{name: "single variable fallback", extra: nil, target: "thetao_15", want: "sst"},
		{name: "allow-list match", extra: []string{"tob", "area"}, target: "expc-bot", want: "tob"},
		{name: "level token names bare variable", extra: []string{"thetao", "so"}, target: "thetao_15", want: "thetao"},
		{name: "allow-list level token", extra: []string{"thetao", "area"}, target: "expc-bot", want: "thetao"},
		{name: "no match", extra: []string{"so", "area"}, target: "tos", wantErr: ErrNoVariable},
		{name: "ambiguous", extra: []string{"tos", "tob"}, target: "deptho", wantErr: ErrAmbiguousVariable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var vars []*ncfile.Variable
			if tt.extra == nil {
				vars = append(vars, one(t, "sst"))
			}
			for _, n := range tt.extra {
				vars = append(vars, one(t, n))
			}
			ds := ncfile.NewDataset(vars...)

			got, err := New(models.SouthEastAustralia, allow).ResolveVariable(ds, tt.target)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveVariable: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveVariable = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLevelOffsets(t *testing.T) {
	// slab dims (lev=2, lat=3, lon=4): strides 12, 4, 1
	got := levelOffsets([]int{0}, []int{2, 3, 4}, []int{12, 4, 1})
	if diff := cmp.Diff([]int{0, 12}, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("levelOffsets mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0}, levelOffsets(nil, []int{3, 4}, []int{4, 1})); diff != "" {
		t.Errorf("levelOffsets without levels mismatch (-want +got):\n%s", diff)
	}
}
