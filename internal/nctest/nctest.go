// Package nctest writes small NetCDF fixtures for tests.
package nctest

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
)

type Var struct {
	Name   string
	Dims   []string
	Values any
	Attrs  map[string]any
}

// Write creates a classic-format NetCDF file at path, creating parent
// directories as needed.
func Write(t testing.TB, path string, vars ...Var) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cw, err := cdf.OpenWriter(path)
	if err != nil {
		t.Fatalf("open writer %s: %v", path, err)
	}
	for _, v := range vars {
		attrs, err := orderedMap(v.Attrs)
		if err != nil {
			t.Fatalf("attributes for %s: %v", v.Name, err)
		}
		if err := cw.AddVar(v.Name, api.Variable{Values: v.Values, Dimensions: v.Dims, Attributes: attrs}); err != nil {
			t.Fatalf("add var %s: %v", v.Name, err)
		}
	}
	if err := cw.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}

func orderedMap(attrs map[string]any) (*util.OrderedMap, error) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		vals[k] = v
	}
	return util.NewOrderedMap(keys, vals)
}

// Grid returns nt x len(lat) x len(lon) values produced by f.
func Grid(nt int, lat, lon []float64, f func(t, i, j int) float64) [][][]float64 {
	out := make([][][]float64, nt)
	for t := range out {
		out[t] = make([][]float64, len(lat))
		for i := range lat {
			out[t][i] = make([]float64, len(lon))
			for j := range lon {
				out[t][i][j] = f(t, i, j)
			}
		}
	}
	return out
}

// Range returns n values starting at start spaced by step.
func Range(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// Ones returns a len(lat) x len(lon) grid filled with v.
func Ones(lat, lon []float64, v float64) [][]float64 {
	out := make([][]float64, len(lat))
	for i := range out {
		out[i] = make([]float64, len(lon))
		for j := range out[i] {
			out[i][j] = v
		}
	}
	return out
}
