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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewRootCmd(config.NewConfig()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR", err)
		stop()
		os.Exit(1)
	}
}
