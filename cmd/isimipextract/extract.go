package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/lox/isimipextract/internal/config"
	"github.com/lox/isimipextract/internal/discover"
	"github.com/lox/isimipextract/internal/extract"
	"github.com/lox/isimipextract/internal/log"
	"github.com/lox/isimipextract/internal/mask"
	"github.com/lox/isimipextract/internal/metrics"
	"github.com/lox/isimipextract/internal/models"
	"github.com/lox/isimipextract/internal/store"
)

var errFilesFailed = errors.New("one or more files failed")

type ExtractCmd struct {
	InputRoots  []string `name:"input-root" help:"Directories searched for input files." default:"/work/bb0820/ISIMIP/ISIMIP3a/InputData/climate/ocean/obsclim/global/monthly/historical/GFDL-MOM6-COBALT2/,/work/bb0820/ISIMIP/ISIMIP3a/InputData/climate/ocean/ctrlclim/global/monthly/historical/GFDL-MOM6-COBALT2/" env:"ISIMIP_INPUT_ROOTS"`
	Tokens      []string `name:"token" help:"Variable tokens matched against file names." default:"phyc-vint,phypico-vint,tos,tob,expc-bot,deptho,thetao_15" env:"ISIMIP_TOKENS"`
	OutputRoot  string   `help:"Directory CSV outputs are written under." default:"Data_Extraction" env:"ISIMIP_OUTPUT_ROOT"`
	RegionLabel string   `help:"Replaces 'global' in output file names." default:"SouthEastAustralia" env:"ISIMIP_REGION_LABEL"`

	LatMin float64 `help:"Southern bound of the region." default:"-50" env:"ISIMIP_LAT_MIN"`
	LatMax float64 `help:"Northern bound of the region." default:"-30" env:"ISIMIP_LAT_MAX"`
	LonMin float64 `help:"Western bound of the region." default:"120" env:"ISIMIP_LON_MIN"`
	LonMax float64 `help:"Eastern bound of the region." default:"160" env:"ISIMIP_LON_MAX"`

	CoarseMask  string `help:"Mask file for coarse inputs." default:"SE_Australia_Mizer_mask_1deg.nc" env:"ISIMIP_COARSE_MASK"`
	FineMask    string `help:"Mask file for fine inputs." default:"SE_Australia_Mizer_mask_025deg.nc" env:"ISIMIP_FINE_MASK"`
	MaskVar     string `help:"Variable holding the mask grid." default:"SE_Aust" env:"ISIMIP_MASK_VAR"`
	CoarseToken string `help:"File name token selecting the coarse mask." default:"60arcmin" env:"ISIMIP_COARSE_TOKEN"`
	FineToken   string `help:"File name token selecting the fine mask." default:"15arcmin" env:"ISIMIP_FINE_TOKEN"`

	Duplicates  string `help:"How files matching several tokens are handled." enum:"keep,first" default:"keep" env:"ISIMIP_DUPLICATES"`
	ReportDB    string `name:"report-db" help:"SQLite file recording runs and per-file outcomes." env:"ISIMIP_REPORT_DB"`
	MetricsFile string `help:"Write Prometheus textfile metrics here after the run." env:"ISIMIP_METRICS_FILE"`
	Strict      bool   `help:"Exit non-zero if any file fails." env:"ISIMIP_STRICT"`
}

func (c *ExtractCmd) config() config.Config {
	return config.Config{
		InputRoots:  c.InputRoots,
		Tokens:      c.Tokens,
		Region:      models.Region{LatMin: c.LatMin, LatMax: c.LatMax, LonMin: c.LonMin, LonMax: c.LonMax},
		RegionLabel: c.RegionLabel,
		OutputRoot:  c.OutputRoot,
		CoarseMask:  mask.Resource{Path: c.CoarseMask, Variable: c.MaskVar, Token: c.CoarseToken},
		FineMask:    mask.Resource{Path: c.FineMask, Variable: c.MaskVar, Token: c.FineToken},
		Duplicates:  discover.DuplicatePolicy(c.Duplicates),
		ReportDB:    c.ReportDB,
		MetricsFile: c.MetricsFile,
		Strict:      c.Strict,
	}
}

func (c *ExtractCmd) Run(ctx context.Context) error {
	cfg := c.config()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	masks, err := mask.LoadSet(cfg.CoarseMask, cfg.FineMask, cfg.Region)
	if err != nil {
		return err
	}
	log.Infow("extract: masks loaded",
		"coarse", cfg.CoarseMask.Path, "coarse_cells", masks.Coarse.Cells(),
		"fine", cfg.FineMask.Path, "fine_cells", masks.Fine.Cells())

	driver := extract.New(cfg, masks)
	if cfg.ReportDB != "" {
		st, err := store.Open(cfg.ReportDB)
		if err != nil {
			return fmt.Errorf("open report db: %w", err)
		}
		defer st.Close()
		driver.SetStore(st)
	}

	sum, err := driver.Run(ctx)
	if err != nil {
		return err
	}

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Warnw("extract: metrics not written", "path", cfg.MetricsFile, "error", err)
		}
	}

	if cfg.Strict && sum.Failed() > 0 {
		return fmt.Errorf("%w: %d of %d", errFilesFailed, sum.Failed(), sum.Total)
	}
	if sum.Interrupted {
		return ctx.Err()
	}
	return nil
}
