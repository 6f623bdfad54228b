package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/marmos91/blobxfer/internal/cli/output"
	"github.com/marmos91/blobxfer/internal/logger"
	"github.com/marmos91/blobxfer/internal/telemetry"
	"github.com/marmos91/blobxfer/pkg/config"
	"github.com/marmos91/blobxfer/pkg/controller"
	fsexec "github.com/marmos91/blobxfer/pkg/executor/fs"
	"github.com/marmos91/blobxfer/pkg/executor/route"
	s3exec "github.com/marmos91/blobxfer/pkg/executor/s3"
	"github.com/marmos91/blobxfer/pkg/transfer"
	"github.com/marmos91/blobxfer/pkg/transfer/store"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/blobxfer/pkg/metrics/prometheus"
)

// app is the engine wired from configuration for one command invocation.
type app struct {
	cfg     *config.Config
	store   store.Store
	ctrl    *controller.Controller
	s3      *s3exec.Executor
	fs      afero.Fs
	metrics *config.MetricsResult
	printer *output.Printer

	stopTelemetry func(context.Context) error
}

func newApp(cmd *cobra.Command) (*app, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}

	stopTelemetry, err := initTelemetry(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}

	st, err := config.OpenStore(&cfg.Store)
	if err != nil {
		_ = stopTelemetry(context.Background())
		return nil, err
	}

	m := config.InitializeMetrics(cfg)
	fsys := afero.NewOsFs()
	s3x, err := s3exec.NewFromConfig(cmd.Context(), cfg.S3, fsys, m.S3)
	if err != nil {
		_ = st.Close()
		_ = stopTelemetry(context.Background())
		return nil, err
	}

	exec := route.New(
		route.Route{Name: "s3", Match: isRemote, Executor: s3x},
		route.Route{Name: "fs", Match: func(*transfer.BlobTransfer) bool { return true }, Executor: fsexec.New(fsys)},
	)

	a := &app{
		cfg:     cfg,
		store:   st,
		ctrl:    controller.New(st, exec, cfg.Controller.ToController(), controller.WithMetrics(m.Transfer)),
		s3:      s3x,
		fs:      fsys,
		metrics: m,
		printer: output.NewPrinter(cmd.OutOrStdout(), format),

		stopTelemetry: stopTelemetry,
	}

	if m.Server != nil {
		go func() {
			if err := m.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", logger.Err(err))
			}
		}()
	}
	return a, nil
}

// Close stops the controller, then the metrics server, the store and
// telemetry. Runs still active are left recoverable.
func (a *app) Close() error {
	var errs []error
	if err := a.ctrl.Close(a.cfg.Controller.ShutdownTimeout); err != nil {
		errs = append(errs, err)
	}
	if a.metrics.Server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Controller.ShutdownTimeout)
		defer cancel()
		if err := a.metrics.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if err := a.stopTelemetry(context.Background()); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// withApp runs fn with an app built for cmd and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(cmd.Context(), a)
}

func isRemote(blob *transfer.BlobTransfer) bool {
	return s3exec.IsURL(blob.Source) || s3exec.IsURL(blob.Destination)
}

// initTelemetry starts tracing and profiling as configured. The returned
// function stops both and flushes pending spans.
func initTelemetry(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	stopTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "blobxfer",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	stopProfiling, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "blobxfer",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
		Tags:           map[string]string{"store": string(cfg.Store.Type)},
	})
	if err != nil {
		_ = stopTracing(ctx)
		return nil, fmt.Errorf("failed to initialize profiling: %w", err)
	}

	if telemetry.IsEnabled() {
		logger.Debug("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Debug("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	return func(ctx context.Context) error {
		return errors.Join(stopProfiling(), stopTracing(ctx))
	}, nil
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}
