package csvout

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/lox/isimipextract/internal/models"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{3, "3.0"},
		{0, "0.0"},
		{-1.25, "-1.25"},
		{0.1, "0.1"},
		{0.0001, "0.0001"},
		{0.00001, "1e-05"},
		{1.5e-7, "1.5e-07"},
		{1e15, "1000000000000000.0"},
		{1e16, "1e+16"},
		{18.123456789012345, "18.123456789012345"},
		{math.NaN(), "nan"},
		{math.Inf(1), "inf"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEncode(t *testing.T) {
	series := &models.AnnualSeries{
		Variable: "tos",
		Columns:  []string{"tos"},
		Rows: []models.AnnualRow{
			{Year: 1961, Values: []float64{15.5}},
			{Year: 1962, Values: []float64{math.NaN()}},
		},
	}
	got, err := Encode(series)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := "year,tos\n1961,15.5\n1962,nan\n"
	if string(got) != want {
		t.Errorf("Encode = %q, want %q", got, want)
	}
}

func TestEncode_Levels(t *testing.T) {
	series := &models.AnnualSeries{
		Variable: "thetao",
		Columns:  []string{"5.0", "15.0"},
		Rows:     []models.AnnualRow{{Year: 2000, Values: []float64{1, 2}}},
	}
	got, err := Encode(series)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if want := "year,5.0,15.0\n2000,1.0,2.0\n"; string(got) != want {
		t.Errorf("Encode = %q, want %q", got, want)
	}

	series.Rows[0].Values = []float64{1}
	if _, err := Encode(series); err == nil {
		t.Error("Encode accepted a short row")
	}
}

func TestWrite_CreatesDirsAndIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "out.csv")
	series := &models.AnnualSeries{
		Columns: []string{"tob"},
		Rows:    []models.AnnualRow{{Year: 1990, Values: []float64{4.2}}},
	}
	if err := Write(path, series); err != nil {
		t.Fatalf("Write: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := Write(path, series); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("rewrite changed output: %q vs %q", first, second)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want only the CSV (temp file left behind?)", len(entries))
	}
}
