package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/otcore/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and live feed",
		Long: `Serve submissions, snapshots, logs and the WebSocket feed.

Configuration comes from the config file, OTCORE_* environment variables
and the flags below, in increasing precedence. SIGINT or SIGTERM shuts
the server down gracefully.

Examples:
  otcore serve
  otcore serve --listen :9000 --store sqlite --dsn ./otcore.db
  OTCORE_REDIS_ADDRS=redis:6379 otcore serve --config /etc/otcore/otcore.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts, cmd)
		},
	}

	addStoreFlags(cmd)
	cmd.Flags().String("listen", "", "listen address (host:port)")
	cmd.Flags().String("notify", "", "notifier mode (push|poll)")

	return cmd
}

func runServe(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	rt, err := openRuntime(cmd, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	notes, err := rt.notifications()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start notifications", err)
	}
	defer notes.Close()

	pl, err := rt.pipeline(notes.publisher)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build pipeline", err)
	}

	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(pl, rt.store, notes.notifier, server.WithLogger(rt.logger))

	g, ctx := errgroup.WithContext(ctx)
	for _, run := range notes.runs {
		g.Go(func() error { return run(ctx) })
	}
	g.Go(func() error { return srv.ListenAndServe(ctx, rt.cfg.Listen) })

	rt.logger.Info("serving",
		zap.String("listen", rt.cfg.Listen),
		zap.String("store", rt.cfg.Store.Driver),
		zap.String("notify", rt.cfg.Notify.Mode),
		zap.Int("redis_addrs", len(rt.cfg.Redis.Addrs)),
		zap.Int("kafka_brokers", len(rt.cfg.Kafka.Brokers)))

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server stopped", err)
	}
	rt.logger.Info("shutdown complete")
	return nil
}
