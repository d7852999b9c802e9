package mask

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lox/isimipextract/internal/models"
	"github.com/lox/isimipextract/internal/nctest"
)

func writeMask(t *testing.T, dir, name string, step float64) string {
	t.Helper()
	lat := nctest.Range(-25, -step, int(30/step)) // -25 .. -54 descending
	lon := nctest.Range(110, step, int(60/step))  // 110 .. 169
	grid := make([][]float64, len(lat))
	for i := range grid {
		grid[i] = make([]float64, len(lon))
		for j := range grid[i] {
			if lat[i] <= -35 && lon[j] >= 140 {
				grid[i][j] = 1
			}
		}
	}
	path := filepath.Join(dir, name)
	nctest.Write(t, path,
		nctest.Var{Name: "latitude", Dims: []string{"latitude"}, Values: lat},
		nctest.Var{Name: "longitude", Dims: []string{"longitude"}, Values: lon},
		nctest.Var{Name: "SE_Aust", Dims: []string{"latitude", "longitude"}, Values: grid},
	)
	return path
}

func TestLoad_RestrictsToRegion(t *testing.T) {
	path := writeMask(t, t.TempDir(), "mask_1deg.nc", 1)

	m, err := Load(Resource{Path: path, Variable: "SE_Aust"}, models.SouthEastAustralia)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Lat) != 21 || len(m.Lon) != 41 {
		t.Fatalf("grid = %dx%d, want 21x41", len(m.Lat), len(m.Lon))
	}
	if m.Lat[0] != -30 || m.Lat[len(m.Lat)-1] != -50 {
		t.Errorf("lat range = %v..%v, want -30..-50 (input order kept)", m.Lat[0], m.Lat[len(m.Lat)-1])
	}
	if m.Lon[0] != 120 || m.Lon[len(m.Lon)-1] != 160 {
		t.Errorf("lon range = %v..%v, want 120..160", m.Lon[0], m.Lon[len(m.Lon)-1])
	}
	// lat -35..-50 (16 rows) x lon 140..160 (21 cols)
	if got := m.Cells(); got != 16*21 {
		t.Errorf("Cells = %d, want %d", got, 16*21)
	}
	if !m.Included(len(m.Lat)-1, len(m.Lon)-1) {
		t.Error("south-east corner should be included")
	}
	if m.Included(0, 0) {
		t.Error("north-west corner should be excluded")
	}
}

func TestLoad_MissingVariable(t *testing.T) {
	path := writeMask(t, t.TempDir(), "mask.nc", 1)
	if _, err := Load(Resource{Path: path, Variable: "nope"}, models.SouthEastAustralia); err == nil {
		t.Error("Load succeeded for a missing variable")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(Resource{Path: filepath.Join(t.TempDir(), "absent.nc"), Variable: "SE_Aust"}, models.SouthEastAustralia); err == nil {
		t.Error("Load succeeded for a missing file")
	}
}

func TestLoadSet(t *testing.T) {
	dir := t.TempDir()
	coarse := Resource{Path: writeMask(t, dir, "c.nc", 1), Variable: "SE_Aust", Token: "60arcmin"}
	fine := Resource{Path: writeMask(t, dir, "f.nc", 0.25), Variable: "SE_Aust", Token: "15arcmin"}

	set, err := LoadSet(coarse, fine, models.SouthEastAustralia)
	if err != nil {
		t.Fatalf("LoadSet: %v", err)
	}
	if len(set.Fine.Lat) != 81 || len(set.Fine.Lon) != 161 {
		t.Errorf("fine grid = %dx%d, want 81x161", len(set.Fine.Lat), len(set.Fine.Lon))
	}
}

func TestSelect(t *testing.T) {
	coarse := &models.Mask{Name: "coarse"}
	fine := &models.Mask{Name: "fine"}
	set := &Set{Coarse: coarse, CoarseToken: "60arcmin", Fine: fine, FineToken: "15arcmin"}

	tests := []struct {
		path    string
		want    *models.Mask
		wantErr bool
	}{
		{"/in/gfdl-mom6-cobalt2_obsclim_tos_60arcmin_global_monthly_1961_2010.nc", coarse, false},
		{"/in/gfdl-mom6-cobalt2_obsclim_tos_15arcmin_global_monthly_1961_2010.nc", fine, false},
		{"/in/gfdl-mom6-cobalt2_obsclim_tos_30arcmin_global_monthly_1961_2010.nc", nil, true},
		{"/60arcmin/tos_global.nc", nil, true},
	}

	for _, tt := range tests {
		got, err := set.Select(tt.path)
		if tt.wantErr {
			if !errors.Is(err, ErrUnresolvedMask) {
				t.Errorf("Select(%q) err = %v, want ErrUnresolvedMask", tt.path, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Select(%q): %v", tt.path, err)
		}
		if diff := cmp.Diff(tt.want.Name, got.Name); diff != "" {
			t.Errorf("Select(%q) mismatch (-want +got):\n%s", tt.path, diff)
		}
	}
}

// Selection is a function of the filename alone: an unresolved file after a
// resolved one does not inherit the previous mask.
func TestSelect_NoStateCarriedOver(t *testing.T) {
	set := &Set{Coarse: &models.Mask{}, CoarseToken: "60arcmin", Fine: &models.Mask{}, FineToken: "15arcmin"}
	if _, err := set.Select("a_60arcmin.nc"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if m, err := set.Select("b_other.nc"); err == nil || m != nil {
		t.Errorf("Select after resolved file = (%v, %v), want unresolved", m, err)
	}
}
