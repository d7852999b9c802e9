// Package ncfile reads NetCDF datasets into flat float64 variables.
//
// Coordinate variables are small and read whole. Data variables are read one
// slab (one index of the leading dimension) at a time, so a global 0.25° monthly
// field never has to be held in memory at once.
package ncfile

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

var ErrNotNumeric = errors.New("variable is not numeric")

// source is the part of api.VarGetter needed to read values.
type source interface {
	Values() (interface{}, error)
	GetSlice(begin, end int64) (interface{}, error)
}

type Variable struct {
	Name  string
	Dims  []string
	Shape []int
	Attrs map[string]any

	src   source
	cache []float64
}

type Dataset struct {
	Path  string
	order []string
	vars  map[string]*Variable
	group api.Group
}

// Open opens a NetCDF (classic or NetCDF-4) file. The caller must Close it.
func Open(path string) (*Dataset, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	ds := &Dataset{Path: path, vars: make(map[string]*Variable), group: g}
	for _, name := range g.ListVariables() {
		vg, err := g.GetVarGetter(name)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		shape := make([]int, len(vg.Shape()))
		for i, n := range vg.Shape() {
			shape[i] = int(n)
		}
		ds.add(&Variable{
			Name:  name,
			Dims:  vg.Dimensions(),
			Shape: shape,
			Attrs: attrMap(vg.Attributes()),
			src:   vg,
		})
	}
	return ds, nil
}

// NewDataset builds an in-memory dataset, mainly for tests.
func NewDataset(vars ...*Variable) *Dataset {
	ds := &Dataset{Path: "memory", vars: make(map[string]*Variable)}
	for _, v := range vars {
		ds.add(v)
	}
	return ds
}

// NewVariable wraps a nested numeric slice ([]T, [][]T, ...) as a variable.
func NewVariable(name string, dims []string, values any, attrs map[string]any) (*Variable, error) {
	shape := shapeOf(reflect.ValueOf(values))
	if len(shape) != len(dims) {
		return nil, fmt.Errorf("variable %s: %d dimensions named for rank %d values", name, len(dims), len(shape))
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	return &Variable{Name: name, Dims: dims, Shape: shape, Attrs: attrs, src: memSource{values}}, nil
}

func (d *Dataset) add(v *Variable) {
	if _, ok := d.vars[v.Name]; !ok {
		d.order = append(d.order, v.Name)
	}
	d.vars[v.Name] = v
}

func (d *Dataset) Close() {
	if d.group != nil {
		d.group.Close()
		d.group = nil
	}
}

func (d *Dataset) Var(name string) (*Variable, bool) {
	v, ok := d.vars[name]
	return v, ok
}

// Names returns all variables in declaration order.
func (d *Dataset) Names() []string {
	return append([]string(nil), d.order...)
}

// DataVars returns the variables that are not coordinates: not named after a
// dimension and not referenced by another variable's bounds or coordinates
// attribute. Declaration order is preserved.
func (d *Dataset) DataVars() []string {
	skip := make(map[string]bool)
	for _, v := range d.vars {
		for _, dim := range v.Dims {
			skip[dim] = true
		}
		if b := v.StringAttr("bounds"); b != "" {
			skip[b] = true
		}
		for _, c := range strings.Fields(v.StringAttr("coordinates")) {
			skip[c] = true
		}
	}
	var out []string
	for _, name := range d.order {
		if !skip[name] {
			out = append(out, name)
		}
	}
	return out
}

// Rename renames a variable and every dimension called old.
func (d *Dataset) Rename(old, to string) error {
	if old == to {
		return nil
	}
	if v, ok := d.vars[old]; ok {
		if _, clash := d.vars[to]; clash {
			return fmt.Errorf("rename %s to %s: variable already exists", old, to)
		}
		delete(d.vars, old)
		v.Name = to
		d.vars[to] = v
		for i, n := range d.order {
			if n == old {
				d.order[i] = to
			}
		}
	}
	for _, v := range d.vars {
		for i, dim := range v.Dims {
			if dim == old {
				v.Dims[i] = to
			}
		}
	}
	return nil
}

// Coord returns the values of a one-dimensional variable.
func (d *Dataset) Coord(name string) ([]float64, error) {
	v, ok := d.vars[name]
	if !ok {
		return nil, fmt.Errorf("coordinate %s not found", name)
	}
	if len(v.Dims) != 1 {
		return nil, fmt.Errorf("coordinate %s has %d dimensions", name, len(v.Dims))
	}
	return v.Values()
}

// Len is the total number of elements.
func (v *Variable) Len() int {
	n := 1
	for _, s := range v.Shape {
		n *= s
	}
	return n
}

func (v *Variable) DimIndex(name string) int {
	for i, d := range v.Dims {
		if d == name {
			return i
		}
	}
	return -1
}

func (v *Variable) StringAttr(name string) string {
	switch s := v.Attrs[name].(type) {
	case string:
		return s
	case []string:
		return strings.Join(s, "")
	case []byte:
		return string(s)
	}
	return ""
}

func (v *Variable) FloatAttr(name string) (float64, bool) {
	a, ok := v.Attrs[name]
	if !ok {
		return 0, false
	}
	vals, err := flatten(a)
	if err != nil || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

// Values reads the whole variable with fill values replaced by NaN and
// scale_factor/add_offset applied.
func (v *Variable) Values() ([]float64, error) {
	if v.cache != nil {
		return v.cache, nil
	}
	raw, err := v.src.Values()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", v.Name, err)
	}
	vals, err := flatten(raw)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", v.Name, err)
	}
	v.unpack(vals)
	v.cache = vals
	return vals, nil
}

// Slab reads index i of the leading dimension, flattened row-major.
func (v *Variable) Slab(i int) ([]float64, error) {
	if len(v.Shape) == 0 {
		return nil, fmt.Errorf("read %s: scalar variable has no slabs", v.Name)
	}
	if i < 0 || i >= v.Shape[0] {
		return nil, fmt.Errorf("read %s: slab %d out of range [0,%d)", v.Name, i, v.Shape[0])
	}
	raw, err := v.src.GetSlice(int64(i), int64(i+1))
	if err != nil {
		return nil, fmt.Errorf("read %s slab %d: %w", v.Name, i, err)
	}
	vals, err := flatten(raw)
	if err != nil {
		return nil, fmt.Errorf("read %s slab %d: %w", v.Name, i, err)
	}
	v.unpack(vals)
	return vals, nil
}

func (v *Variable) unpack(vals []float64) {
	var fills []float64
	for _, key := range []string{"_FillValue", "missing_value"} {
		if f, ok := v.FloatAttr(key); ok {
			fills = append(fills, f)
		}
	}
	scale, hasScale := v.FloatAttr("scale_factor")
	offset, hasOffset := v.FloatAttr("add_offset")
	if len(fills) == 0 && !hasScale && !hasOffset {
		return
	}
	if !hasScale {
		scale = 1
	}
	for i, x := range vals {
		for _, f := range fills {
			if x == f {
				x = math.NaN()
				break
			}
		}
		vals[i] = x*scale + offset
	}
}

func attrMap(am api.AttributeMap) map[string]any {
	out := make(map[string]any)
	if am == nil {
		return out
	}
	for _, k := range am.Keys() {
		if val, ok := am.Get(k); ok {
			out[k] = val
		}
	}
	return out
}

type memSource struct {
	values any
}

func (m memSource) Values() (interface{}, error) {
	return m.values, nil
}

func (m memSource) GetSlice(begin, end int64) (interface{}, error) {
	rv := reflect.ValueOf(m.values)
	if rv.Kind() != reflect.Slice {
		return nil, errors.New("not a slice")
	}
	if begin < 0 || end > int64(rv.Len()) || begin > end {
		return nil, fmt.Errorf("slice [%d:%d] out of range", begin, end)
	}
	return rv.Slice(int(begin), int(end)).Interface(), nil
}

func shapeOf(rv reflect.Value) []int {
	var shape []int
	for rv.Kind() == reflect.Slice {
		shape = append(shape, rv.Len())
		if rv.Len() == 0 {
			break
		}
		rv = rv.Index(0)
	}
	return shape
}

// flatten converts a scalar or nested numeric slice to []float64 in row-major
// order. The common float layouts avoid reflection.
func flatten(raw any) ([]float64, error) {
	switch t := raw.(type) {
	case []float64:
		return append([]float64(nil), t...), nil
	case []float32:
		out := make([]float64, len(t))
		for i, x := range t {
			out[i] = float64(x)
		}
		return out, nil
	case [][]float32:
		var out []float64
		for _, row := range t {
			for _, x := range row {
				out = append(out, float64(x))
			}
		}
		return out, nil
	case [][]float64:
		var out []float64
		for _, row := range t {
			out = append(out, row...)
		}
		return out, nil
	case [][][]float32:
		var out []float64
		for _, plane := range t {
			for _, row := range plane {
				for _, x := range row {
					out = append(out, float64(x))
				}
			}
		}
		return out, nil
	case [][][]float64:
		var out []float64
		for _, plane := range t {
			for _, row := range plane {
				out = append(out, row...)
			}
		}
		return out, nil
	}

	var out []float64
	var walk func(reflect.Value) error
	walk = func(rv reflect.Value) error {
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			for i := 0; i < rv.Len(); i++ {
				if err := walk(rv.Index(i)); err != nil {
					return err
				}
			}
		case reflect.Float32, reflect.Float64:
			out = append(out, rv.Float())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out = append(out, float64(rv.Int()))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out = append(out, float64(rv.Uint()))
		default:
			return fmt.Errorf("%w: %s", ErrNotNumeric, rv.Type())
		}
		return nil
	}
	if err := walk(reflect.ValueOf(raw)); err != nil {
		return nil, err
	}
	return out, nil
}
