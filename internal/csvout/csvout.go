// Package csvout writes annual series as year-indexed CSV files.
package csvout

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lox/isimipextract/internal/models"
)

// Missing is written for NaN values.
const Missing = "nan"

// FormatValue renders v as the shortest string that round-trips, switching to
// exponent form below 1e-4 and from 1e16, and always keeping a decimal point
// on plain numbers (3 -> "3.0").
func FormatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return Missing
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	e := strconv.FormatFloat(v, 'e', -1, 64)
	exp, _ := strconv.Atoi(e[strings.IndexByte(e, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return e
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

// Encode renders the series: a header of "year" plus the column names, then one
// row per year.
func Encode(series *models.AnnualSeries) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := append([]string{"year"}, series.Columns...)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, row := range series.Rows {
		if len(row.Values) != len(series.Columns) {
			return nil, fmt.Errorf("year %d has %d values for %d columns", row.Year, len(row.Values), len(series.Columns))
		}
		rec := make([]string, 0, len(row.Values)+1)
		rec = append(rec, strconv.Itoa(row.Year))
		for _, v := range row.Values {
			rec = append(rec, FormatValue(v))
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write encodes series to path through a temporary file in the same directory,
// creating parent directories.
func Write(path string, series *models.AnnualSeries) error {
	data, err := Encode(series)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
