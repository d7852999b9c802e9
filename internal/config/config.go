// Package config holds the settings for an extraction run.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lox/isimipextract/internal/discover"
	"github.com/lox/isimipextract/internal/mask"
	"github.com/lox/isimipextract/internal/models"
)

var DefaultInputRoots = []string{
	"/work/bb0820/ISIMIP/ISIMIP3a/InputData/climate/ocean/obsclim/global/monthly/historical/GFDL-MOM6-COBALT2/",
	"/work/bb0820/ISIMIP/ISIMIP3a/InputData/climate/ocean/ctrlclim/global/monthly/historical/GFDL-MOM6-COBALT2/",
}

var DefaultTokens = []string{
	"phyc-vint",
	"phypico-vint",
	"tos",
	"tob",
	"expc-bot",
	"deptho",
	"thetao_15",
}

const (
	DefaultRegionLabel = "SouthEastAustralia"
	DefaultOutputRoot  = "Data_Extraction"
	DefaultMaskVar     = "SE_Aust"
	CoarseToken        = "60arcmin"
	FineToken          = "15arcmin"
)

type Config struct {
	InputRoots  []string
	Tokens      []string
	Region      models.Region
	RegionLabel string
	OutputRoot  string
	CoarseMask  mask.Resource
	FineMask    mask.Resource
	Duplicates  discover.DuplicatePolicy

	// Optional outputs. Empty disables them.
	ReportDB    string
	MetricsFile string

	// Strict makes any per-file failure fail the run.
	Strict bool
}

// Default returns the configuration of the DKRZ South East Australia
// extraction.
func Default() Config {
	return Config{
		InputRoots:  append([]string(nil), DefaultInputRoots...),
		Tokens:      append([]string(nil), DefaultTokens...),
		Region:      models.SouthEastAustralia,
		RegionLabel: DefaultRegionLabel,
		OutputRoot:  DefaultOutputRoot,
		CoarseMask: mask.Resource{
			Path:     "SE_Australia_Mizer_mask_1deg.nc",
			Variable: DefaultMaskVar,
			Token:    CoarseToken,
		},
		FineMask: mask.Resource{
			Path:     "SE_Australia_Mizer_mask_025deg.nc",
			Variable: DefaultMaskVar,
			Token:    FineToken,
		},
		Duplicates: discover.KeepDuplicates,
	}
}

func (c Config) Validate() error {
	var errs []error
	if len(c.InputRoots) == 0 {
		errs = append(errs, errors.New("at least one input root is required"))
	}
	if len(c.Tokens) == 0 {
		errs = append(errs, errors.New("at least one variable token is required"))
	}
	for _, t := range c.Tokens {
		if strings.TrimSpace(t) == "" {
			errs = append(errs, errors.New("variable tokens must not be empty"))
			break
		}
	}
	if c.Region.LatMin >= c.Region.LatMax {
		errs = append(errs, fmt.Errorf("region latitude %v..%v is empty", c.Region.LatMin, c.Region.LatMax))
	}
	if c.Region.LonMin >= c.Region.LonMax {
		errs = append(errs, fmt.Errorf("region longitude %v..%v is empty", c.Region.LonMin, c.Region.LonMax))
	}
	if c.Region.LatMin < -90 || c.Region.LatMax > 90 {
		errs = append(errs, fmt.Errorf("region latitude %v..%v outside -90..90", c.Region.LatMin, c.Region.LatMax))
	}
	if c.RegionLabel == "" {
		errs = append(errs, errors.New("region label is required"))
	}
	if c.OutputRoot == "" {
		errs = append(errs, errors.New("output root is required"))
	}
	for _, r := range []mask.Resource{c.CoarseMask, c.FineMask} {
		if r.Path == "" || r.Variable == "" || r.Token == "" {
			errs = append(errs, fmt.Errorf("mask resource %+v needs a path, variable and token", r))
		}
	}
	if c.CoarseMask.Token != "" && c.CoarseMask.Token == c.FineMask.Token {
		errs = append(errs, fmt.Errorf("coarse and fine masks share token %q", c.CoarseMask.Token))
	}
	if _, err := discover.ParseDuplicatePolicy(string(c.Duplicates)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
