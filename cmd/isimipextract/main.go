package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/lox/isimipextract/internal/log"
)

type CLI struct {
	Debug bool `help:"Enable debug logging." env:"ISIMIP_DEBUG"`

	Extract ExtractCmd `cmd:"" default:"withargs" help:"Extract regional annual means from NetCDF inputs (default)."`
	Fetch   FetchCmd   `cmd:"" help:"Mirror matching NetCDF inputs from an FTP server."`
}

func main() {
	// A missing .env is normal; flags and the environment still apply.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("isimipextract"),
		kong.Description("Batch extraction of regional annual means from ISIMIP ocean NetCDF files."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	if err := log.Init(cli.Debug); err != nil {
		kctx.FatalIfErrorf(err)
	}
	defer log.Sync()

	if err := kctx.Run(); err != nil {
		log.Errorw("isimipextract: failed", "command", kctx.Command(), "error", err)
		log.Sync()
		os.Exit(1)
	}
}
