package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"one-plate/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(nil).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", cli.ErrorMessage(err))
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
