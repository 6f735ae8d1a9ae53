package commands

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/ctagard/cellbridge/internal/bridge"
	"github.com/ctagard/cellbridge/internal/config"
	"github.com/ctagard/cellbridge/internal/history"
	"github.com/ctagard/cellbridge/internal/mcp"
)

type serveFlags struct {
	configPath  string
	pid         int
	historyPath string
	start       bool
}

func NewServeCommand(log logr.Logger) (*cobra.Command, error) {
	flags := &serveFlags{}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the debugger to an MCP client over stdio",
		Long: `Serves the debugger to an MCP client over stdio.

The executor records each cell it runs in the history file, one JSON object per
line: {"index":N,"code":"..."}. The debug session attaches lldb-dap to --pid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), log.WithName("serve"), flags)
		},
	}

	serveCmd.Flags().StringVar(&flags.configPath, "config", "", "Path to a JSON configuration file")
	serveCmd.Flags().IntVar(&flags.pid, "pid", os.Getppid(), "Process ID executing the cells; defaults to the parent process")
	serveCmd.Flags().StringVar(&flags.historyPath, "history", "", "Path to the execution history file")
	serveCmd.Flags().BoolVar(&flags.start, "start", false, "Start the debug session immediately instead of waiting for debug_start")
	if err := serveCmd.MarkFlagRequired("history"); err != nil {
		return nil, err
	}

	return serveCmd, nil
}

func runServe(ctx context.Context, log logr.Logger, flags *serveFlags) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	hist, err := history.Open(flags.historyPath, flags.pid, log.WithName("history"))
	if err != nil {
		return err
	}

	srv := mcp.NewServer(log.WithName("mcp"))
	session, err := bridge.NewSession(bridge.Options{
		Config:   cfg,
		Env:      hist,
		Frontend: srv,
		Log:      log,
	})
	if err != nil {
		return err
	}
	srv.RegisterLifecycle(session)

	watchCtx, stopWatch := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if werr := hist.Watch(watchCtx); werr != nil {
			log.Error(werr, "History watcher stopped; later cells are not visible to the debugger")
		}
	}()

	defer func() {
		stopWatch()
		wg.Wait()
		err = multierr.Append(err, session.Stop())
	}()

	if flags.start {
		if serr := session.Start(ctx); serr != nil {
			// Not fatal: the client can retry with debug_start
			log.Error(serr, "Could not start debugger")
		}
	}

	log.Info("cellbridge serving on stdio", "pid", flags.pid, "history", hist.Path(), "session", session.ID())
	if serr := srv.Serve(ctx); serr != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", serr)
	}
	return nil
}
