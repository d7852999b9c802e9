// Package mask loads regional inclusion grids and picks the one that matches an
// input file's resolution.
package mask

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lox/isimipextract/internal/models"
	"github.com/lox/isimipextract/internal/ncfile"
)

var ErrUnresolvedMask = errors.New("no mask matches file resolution")

// Resource names a mask file, the variable holding the grid and the filename
// token of the inputs it applies to.
type Resource struct {
	Path     string
	Variable string
	Token    string
}

// Load reads a mask grid, renames latitude/longitude to lat/lon and restricts it
// to the region.
func Load(res Resource, region models.Region) (*models.Mask, error) {
	ds, err := ncfile.Open(res.Path)
	if err != nil {
		return nil, fmt.Errorf("load mask: %w", err)
	}
	defer ds.Close()
	m, err := FromDataset(ds, res.Variable, region)
	if err != nil {
		return nil, fmt.Errorf("load mask %s: %w", res.Path, err)
	}
	return m, nil
}

// FromDataset extracts the named grid from an open dataset.
func FromDataset(ds *ncfile.Dataset, variable string, region models.Region) (*models.Mask, error) {
	if err := ds.Rename("latitude", "lat"); err != nil {
		return nil, err
	}
	if err := ds.Rename("longitude", "lon"); err != nil {
		return nil, err
	}

	v, ok := ds.Var(variable)
	if !ok {
		return nil, fmt.Errorf("variable %s not found", variable)
	}
	latPos, lonPos := v.DimIndex("lat"), v.DimIndex("lon")
	if len(v.Dims) != 2 || latPos < 0 || lonPos < 0 {
		return nil, fmt.Errorf("variable %s has dimensions %v, want (lat, lon)", variable, v.Dims)
	}
	lat, err := ds.Coord("lat")
	if err != nil {
		return nil, err
	}
	lon, err := ds.Coord("lon")
	if err != nil {
		return nil, err
	}
	vals, err := v.Values()
	if err != nil {
		return nil, err
	}

	li, lj := region.LatIndices(lat), region.LonIndices(lon)
	if len(li) == 0 || len(lj) == 0 {
		return nil, fmt.Errorf("variable %s has no cells inside the region", variable)
	}
	m := &models.Mask{
		Name:   variable,
		Lat:    make([]float64, len(li)),
		Lon:    make([]float64, len(lj)),
		Values: make([]float64, 0, len(li)*len(lj)),
	}
	for a, i := range li {
		m.Lat[a] = lat[i]
	}
	for b, j := range lj {
		m.Lon[b] = lon[j]
	}
	for _, i := range li {
		for _, j := range lj {
			var idx int
			if latPos == 0 {
				idx = i*len(lon) + j
			} else {
				idx = j*len(lat) + i
			}
			m.Values = append(m.Values, vals[idx])
		}
	}
	return m, nil
}

// Set holds the coarse and fine masks for a run.
type Set struct {
	Coarse      *models.Mask
	CoarseToken string
	Fine        *models.Mask
	FineToken   string
}

// LoadSet loads both masks. Either failing is fatal for the run.
func LoadSet(coarse, fine Resource, region models.Region) (*Set, error) {
	c, err := Load(coarse, region)
	if err != nil {
		return nil, err
	}
	f, err := Load(fine, region)
	if err != nil {
		return nil, err
	}
	return &Set{Coarse: c, CoarseToken: coarse.Token, Fine: f, FineToken: fine.Token}, nil
}

// Select returns the mask for an input file based on the resolution token in its
// name. The fine token wins when both appear. A name with neither token returns
// ErrUnresolvedMask.
func (s *Set) Select(path string) (*models.Mask, error) {
	name := filepath.Base(path)
	switch {
	case s.FineToken != "" && strings.Contains(name, s.FineToken):
		return s.Fine, nil
	case s.CoarseToken != "" && strings.Contains(name, s.CoarseToken):
		return s.Coarse, nil
	}
	return nil, fmt.Errorf("%w: %s (want %q or %q)", ErrUnresolvedMask, name, s.CoarseToken, s.FineToken)
}
