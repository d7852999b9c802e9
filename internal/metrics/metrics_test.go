package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteTextfile(t *testing.T) {
	FilesTotal.WithLabelValues("/data/obsclim", "success").Inc()
	YearsWritten.Add(50)
	FileDuration.Observe(0.3)

	path := filepath.Join(t.TempDir(), "textfile", "isimipextract.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(data)

	for _, want := range []string{
		`isimipextract_files_total{outcome="success",root="/data/obsclim"}`,
		"isimipextract_years_written_total",
		"isimipextract_file_duration_seconds_bucket",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "go_goroutines") {
		t.Error("textfile contains runtime collectors")
	}
}
