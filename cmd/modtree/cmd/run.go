package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoCodeAlone/modtree"
	"github.com/GoCodeAlone/modtree/admin"
	"github.com/GoCodeAlone/modtree/internal/sim"
	"github.com/GoCodeAlone/modtree/manifest"
	"github.com/GoCodeAlone/modtree/metrics"
	"github.com/GoCodeAlone/modtree/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

// RunOptions holds the flags of the run command.
type RunOptions struct {
	EnvPrefix    string
	AdminAddr    string
	AllowControl bool
	LogLevel     string
	Once         bool
	Tracing      TracingOptions
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <manifest>",
		Short: "Start a module tree and keep it up until interrupted",
		Long: `Start every needed module of the manifest, dependencies first, and keep the
tree up until SIGINT or SIGTERM. Module parameters can be overridden with
<PREFIX>_<MODULE>_<PARAM> environment variables.`,
		Example: `  modtree run shop.yaml
  modtree run --admin-addr :8080 --allow-control shop.yaml
  MODTREE_REPORTS_NEEDED=true modtree run --once shop.toml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runTree(ctx, cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.EnvPrefix, "env-prefix", "MODTREE", "Prefix of environment overrides")
	cmd.Flags().StringVar(&opts.AdminAddr, "admin-addr", "", "Address of the admin HTTP server (disabled when empty)")
	cmd.Flags().BoolVar(&opts.AllowControl, "allow-control", false, "Allow starting and stopping the tree over the admin server")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "Stop the tree as soon as it is up")
	cmd.Flags().StringVar(&opts.Tracing.Endpoint, "otlp-endpoint", "", "OTLP gRPC endpoint spans are exported to (global provider when empty)")
	cmd.Flags().BoolVar(&opts.Tracing.Insecure, "otlp-insecure", false, "Export spans without TLS")

	return cmd
}

func runTree(ctx context.Context, cmd *cobra.Command, path string, opts *RunOptions) error {
	logger, err := newLogger(cmd.ErrOrStderr(), opts.LogLevel)
	if err != nil {
		return err
	}

	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	overridden, err := m.ApplyEnv(opts.EnvPrefix)
	if err != nil {
		return err
	}
	for _, name := range overridden {
		logger.Debug("Applied environment override", "variable", name)
	}

	descs, err := m.Descriptions(sim.Catalog(logger))
	if err != nil {
		return err
	}

	tp, shutdownTracing, err := newTracerProvider(ctx, opts.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("Tracer shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	treeOpts := []modtree.Option{
		modtree.WithLogger(logger),
		modtree.WithObserver(metrics.NewObserver(reg)),
		modtree.WithObserver(tracing.NewObserver(tp)),
	}
	if m.Name != "" {
		treeOpts = append(treeOpts, modtree.WithName(m.Name))
	}
	tree, err := modtree.New(descs, treeOpts...)
	if err != nil {
		return err
	}

	if opts.AdminAddr != "" {
		srv := &http.Server{
			Addr: opts.AdminAddr,
			Handler: admin.NewRouter(tree, logger, admin.Config{
				AllowControl: opts.AllowControl,
				Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go serveAdmin(srv, logger)
		defer shutdownAdmin(srv, logger)
	}

	if opts.Once {
		return cycleOnce(ctx, tree)
	}
	return tree.Run(ctx)
}

// cycleOnce brings the tree up and immediately back down.
func cycleOnce(ctx context.Context, tree *modtree.Tree) error {
	up, err := tree.Init(ctx)
	if err != nil {
		return err
	}
	select {
	case <-up.Done():
	case <-ctx.Done():
	}
	<-tree.Deinit(context.WithoutCancel(ctx)).Done()

	if errs := tree.Errors(); len(errs) > 0 {
		return fmt.Errorf("tree %s: %w", tree.Name(), errors.Join(errs...))
	}
	return up.Err()
}

func serveAdmin(srv *http.Server, logger *slog.Logger) {
	logger.Info("Admin server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Admin server failed", "error", err)
	}
}

func shutdownAdmin(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Admin server shutdown failed", "error", err)
	}
}
