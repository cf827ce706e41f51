// Package main implements the packer-server binary: the HTTP API that runs
// container tasks for registered users, plus maintenance commands for the
// database schema and interrupted tasks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "packer-server: %v\n", err)
		stop()
		os.Exit(1)
	}
}
