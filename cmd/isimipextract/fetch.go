package main

import (
	"context"
	"fmt"

	"github.com/lox/isimipextract/internal/fetch"
	"github.com/lox/isimipextract/internal/log"
	"github.com/lox/isimipextract/internal/metrics"
)

type FetchCmd struct {
	FTPHost     string   `name:"ftp-host" help:"FTP server as host:port." required:"" env:"ISIMIP_FTP_HOST"`
	User        string   `help:"FTP user (anonymous when empty)." env:"ISIMIP_FTP_USER"`
	Password    string   `help:"FTP password." env:"ISIMIP_FTP_PASSWORD"`
	RemoteDir   string   `help:"Remote directory to mirror." required:"" env:"ISIMIP_REMOTE_DIR"`
	Dest        string   `help:"Local input root to mirror into." required:"" type:"path" env:"ISIMIP_FETCH_DEST"`
	Tokens      []string `name:"token" help:"Only fetch files containing one of these tokens." default:"phyc-vint,phypico-vint,tos,tob,expc-bot,deptho,thetao_15" env:"ISIMIP_TOKENS"`
	MetricsFile string   `help:"Write Prometheus textfile metrics here after the fetch." env:"ISIMIP_METRICS_FILE"`
}

func (c *FetchCmd) Run(ctx context.Context) error {
	client := fetch.NewClient(c.FTPHost, c.User, c.Password)
	sum, err := client.Mirror(ctx, c.RemoteDir, c.Dest, c.Tokens)
	log.Infow("fetch: finished",
		"host", c.FTPHost, "dir", c.RemoteDir,
		"matched", sum.Listed, "downloaded", sum.Downloaded, "skipped", sum.Skipped, "failed", sum.Failed)

	if c.MetricsFile != "" {
		if werr := metrics.WriteTextfile(c.MetricsFile); werr != nil {
			log.Warnw("fetch: metrics not written", "path", c.MetricsFile, "error", werr)
		}
	}
	if err != nil {
		return fmt.Errorf("mirror %s: %w", c.RemoteDir, err)
	}
	return nil
}
