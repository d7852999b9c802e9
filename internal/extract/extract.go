// Package extract runs the per-file pipeline: load the dataset and its time
// axis, pick the mask, reduce to annual means and write the CSV.
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lox/isimipextract/internal/calendar"
	"github.com/lox/isimipextract/internal/config"
	"github.com/lox/isimipextract/internal/csvout"
	"github.com/lox/isimipextract/internal/discover"
	"github.com/lox/isimipextract/internal/log"
	"github.com/lox/isimipextract/internal/mask"
	"github.com/lox/isimipextract/internal/metrics"
	"github.com/lox/isimipextract/internal/models"
	"github.com/lox/isimipextract/internal/ncfile"
	"github.com/lox/isimipextract/internal/reduce"
	"github.com/lox/isimipextract/internal/store"
)

const timeVar = "time"

type Driver struct {
	cfg        config.Config
	masks      *mask.Set
	discoverer *discover.Discoverer
	reducer    *reduce.Reducer
	store      *store.Store // nil when no report database is configured
}

func New(cfg config.Config, masks *mask.Set) *Driver {
	return &Driver{
		cfg:        cfg,
		masks:      masks,
		discoverer: discover.New(cfg.Tokens, cfg.Duplicates),
		reducer:    reduce.New(cfg.Region, cfg.Tokens),
	}
}

// SetStore records every outcome of subsequent runs in st.
func (d *Driver) SetStore(st *store.Store) {
	d.store = st
}

// Summary counts the outcomes of a run.
type Summary struct {
	RunID       int64
	Total       int
	Counts      map[models.OutcomeKind]int
	YearsTotal  int
	Interrupted bool
	Duration    time.Duration
}

func (s Summary) Succeeded() int {
	return s.Counts[models.OutcomeSuccess]
}

func (s Summary) Failed() int {
	return s.Total - s.Succeeded()
}

// Run processes every candidate under every input root. Per-file failures are
// recorded and never stop the run; a cancelled context stops it between files.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	sum := Summary{Counts: make(map[models.OutcomeKind]int)}

	var run *store.Run
	if d.store != nil {
		var err error
		run, err = d.store.StartRun(d.cfg.InputRoots, d.cfg.Tokens, d.cfg.RegionLabel, d.cfg.OutputRoot)
		if err != nil {
			return sum, fmt.Errorf("start run: %w", err)
		}
		sum.RunID = run.ID
	}

	log.Infow("extract: starting", "roots", len(d.cfg.InputRoots), "tokens", d.cfg.Tokens, "output", d.cfg.OutputRoot)

roots:
	for _, root := range d.cfg.InputRoots {
		candidates, err := d.discoverer.Discover(root)
		if err != nil {
			log.Errorw("extract: discovery failed", "root", root, "error", err)
			continue
		}
		log.Infow("extract: discovered files", "root", root, "files", len(candidates))

		for _, c := range candidates {
			if ctx.Err() != nil {
				sum.Interrupted = true
				break roots
			}
			o := d.Process(c)
			sum.Total++
			sum.Counts[o.Kind]++
			sum.YearsTotal += o.Years
			d.report(run, o)
		}
	}
	sum.Duration = time.Since(start)

	if run != nil {
		run.FilesTotal = sum.Total
		run.FilesSucceeded = sum.Succeeded()
		run.FilesFailed = sum.Failed()
		run.Interrupted = sum.Interrupted
		if err := d.store.CompleteRun(run); err != nil {
			log.Warnw("extract: failed to complete run record", "run", run.ID, "error", err)
		}
	}

	log.Infow("extract: finished",
		"files", sum.Total,
		"succeeded", sum.Succeeded(),
		"failed", sum.Failed(),
		"years", sum.YearsTotal,
		"interrupted", sum.Interrupted,
		"duration", sum.Duration,
	)
	return sum, nil
}

func (d *Driver) report(run *store.Run, o models.Outcome) {
	metrics.FilesTotal.WithLabelValues(o.Root, string(o.Kind)).Inc()
	metrics.FileDuration.Observe(o.Duration.Seconds())
	if o.OK() {
		metrics.YearsWritten.Add(float64(o.Years))
		log.Infow("extract: wrote", "file", o.Path, "token", o.Token, "variable", o.Variable,
			"output", o.OutputPath, "years", o.Years, "repaired", o.Repaired, "duration", o.Duration)
	} else {
		log.Warnw("extract: file failed", "file", o.Path, "token", o.Token, "outcome", o.Kind, "error", o.Err)
	}

	if d.store != nil {
		if err := d.store.RecordOutcome(run, o); err != nil {
			log.Warnw("extract: failed to record outcome", "file", o.Path, "error", err)
		}
	}
}

// Process runs one candidate through the pipeline and classifies the result.
func (d *Driver) Process(c discover.Candidate) models.Outcome {
	start := time.Now()
	o := d.process(c)
	o.Root, o.Path, o.Token = c.Root, c.Path, c.Token
	o.Duration = time.Since(start)
	return o
}

func (d *Driver) process(c discover.Candidate) models.Outcome {
	fail := func(kind models.OutcomeKind, err error) models.Outcome {
		return models.Outcome{Kind: kind, Err: err}
	}

	ds, err := ncfile.Open(c.Path)
	if err != nil {
		return fail(models.OutcomeLoadFailure, err)
	}
	defer ds.Close()

	for old, to := range map[string]string{"latitude": "lat", "longitude": "lon"} {
		if err := ds.Rename(old, to); err != nil {
			return fail(models.OutcomeLoadFailure, err)
		}
	}

	axis, repaired, err := TimeAxis(ds)
	if err != nil {
		return fail(models.OutcomeCalendarFailure, err)
	}
	if repaired {
		log.Debugw("extract: repaired time axis", "file", c.Path, "tier", axis.Tier)
	}

	m, err := d.masks.Select(c.Path)
	if err != nil {
		return fail(models.OutcomeSelectFailure, err)
	}

	variable, err := d.reducer.ResolveVariable(ds, c.Token)
	if err != nil {
		return fail(models.OutcomeSelectFailure, err)
	}

	series, err := d.reducer.Reduce(ds, axis, variable, m)
	if err != nil {
		kind := models.OutcomeReduceFailure
		if errors.Is(err, reduce.ErrNoVariable) || errors.Is(err, reduce.ErrAmbiguousVariable) {
			kind = models.OutcomeSelectFailure
		}
		return fail(kind, err)
	}

	out, err := discover.OutputPath(c, d.cfg.OutputRoot, d.cfg.RegionLabel)
	if err != nil {
		return fail(models.OutcomeWriteFailure, err)
	}
	if err := csvout.Write(out, series); err != nil {
		return fail(models.OutcomeWriteFailure, err)
	}

	return models.Outcome{
		Kind:       models.OutcomeSuccess,
		OutputPath: out,
		Repaired:   repaired,
		Variable:   variable,
		Years:      len(series.Rows),
	}
}

// TimeAxis decodes the dataset's time coordinate. Standard CF decoding is tried
// first; when it fails the non-compliant repair is used and repaired is true.
func TimeAxis(ds *ncfile.Dataset) (axis *calendar.Axis, repaired bool, err error) {
	tv, ok := ds.Var(timeVar)
	if !ok {
		return nil, false, errors.New("time coordinate not found")
	}
	raw, err := tv.Values()
	if err != nil {
		return nil, false, fmt.Errorf("read time: %w", err)
	}
	units := tv.StringAttr("units")

	axis, decodeErr := calendar.Decode(units, tv.StringAttr("calendar"), raw)
	if decodeErr == nil {
		return axis, false, nil
	}
	axis, err = calendar.Repair(units, raw)
	if err != nil {
		return nil, false, fmt.Errorf("decode time %q: %w", units, errors.Join(decodeErr, err))
	}
	return axis, true, nil
}
