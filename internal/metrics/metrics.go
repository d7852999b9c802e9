package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds only extraction metrics so the textfile carries no Go runtime
// collectors.
var Registry = prometheus.NewRegistry()

var (
	FilesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "isimipextract_files_total",
			Help: "Input files processed, by input root and outcome",
		},
		[]string{"root", "outcome"},
	)

	YearsWritten = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "isimipextract_years_written_total",
			Help: "Annual rows written to CSV outputs",
		},
	)

	FileDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "isimipextract_file_duration_seconds",
			Help:    "Time spent processing one input file",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	FilesFetched = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "isimipextract_files_fetched_total",
			Help: "Remote files considered by fetch, by status",
		},
		[]string{"status"},
	)
)

// WriteTextfile writes the registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics dir: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
