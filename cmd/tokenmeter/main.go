// Command tokenmeter talks to Gemini from the terminal and keeps track of
// what every request costs.
//
// Usage:
//
//	tokenmeter ask [-system text] [-cost=false] [prompt...]
//	tokenmeter chat [-system text]
//	tokenmeter stats [-day YYYY-MM-DD]
//	tokenmeter reset
//
// Settings come from the environment and an optional .env file; run
// "tokenmeter help" for the list.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leofalp/tokenmeter/internal/config"
	"github.com/leofalp/tokenmeter/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, closer := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})

	code := run(ctx, cfg, logger, os.Args[1:], streams{in: os.Stdin, out: os.Stdout, err: os.Stderr})
	_ = closer.Close()
	os.Exit(code)
}
