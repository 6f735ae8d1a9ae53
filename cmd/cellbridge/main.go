package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ctagard/cellbridge/internal/commands"
	"github.com/ctagard/cellbridge/internal/logging"
)

const (
	errCommand = 1
	errSetup   = 2
)

func main() {
	log := logging.New("cellbridge")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, err := commands.NewRootCmd(log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errSetup)
	}

	err = root.ExecuteContext(ctx)
	log.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(errCommand)
	}
}
