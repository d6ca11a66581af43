package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wisbric/confcore/internal/app"
	"github.com/wisbric/confcore/internal/config"
)

func main() {
	mode := flag.String("mode", "api", "run mode: api or rekey")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "rekey":
		err = app.Rekey(ctx, cfg)
	default:
		err = app.Run(ctx, cfg)
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
