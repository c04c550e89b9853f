package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/vatsal3003/speedy-resizer/internal/cli"
	"github.com/vatsal3003/speedy-resizer/internal/config"
)

func main() {
	cfg := config.NewConfig()

	// Graceful shutdown: consumers stop taking deliveries, in-flight jobs finish.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewWorkerCmd(cfg).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR", err)
		stop()
		os.Exit(1)
	}
}
