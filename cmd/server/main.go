package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/daddykev/stardust-distro-sub000/internal/config"
	"github.com/daddykev/stardust-distro-sub000/internal/logger"
)

// @title          Stardust Distro Delivery API
// @version        1.0
// @description    Delivers DDEX release packages to DSPs and aggregators.
// @BasePath       /
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
// @description    Enter your bearer token in the format **Bearer &lt;token&gt;**
func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "distro",
		Short:         "Release delivery engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and the delivery worker in one process",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), true, true)
			},
		},
		&cobra.Command{
			Use:   "api",
			Short: "Run only the HTTP API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), true, false)
			},
		},
		&cobra.Command{
			Use:   "worker",
			Short: "Run only the delivery worker",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), false, true)
			},
		},
	)
	return root
}

func run(parent context.Context, withAPI, withWorker bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	errCh := make(chan error, 2)
	running := 0
	if withWorker {
		running++
		go func() { errCh <- app.runWorker(ctx) }()
	}
	if withAPI {
		running++
		go func() { errCh <- app.runAPI(ctx) }()
	}

	// The first component to stop takes the others down with it.
	var firstErr error
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
		stop()
	}
	return firstErr
}
