package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"keyremap/internal/backend"
	"keyremap/internal/config"
	"keyremap/internal/engine"
	"keyremap/internal/health"
	"keyremap/internal/logging"
	"keyremap/internal/metrics"
)

const drainTimeout = 2 * time.Second

func cmdRun(args []string) error {
	fs, configPath := newFlagSet("run")
	backendName := fs.String("backend", "", "Backend: auto, windows, listener or simulated (overrides config)")
	dryRun := fs.Bool("dry-run", false, "Load and start with the simulated backend; no real input is touched")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *backendName != "" {
		cfg.Backend = *backendName
	}
	if *dryRun {
		cfg.Backend = "simulated"
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer log.Close()
	logging.SetDefault(log)

	crash := logging.NewCrashHandler(logging.CrashHandlerConfig{
		CrashDir:  filepath.Join(config.DataDir(), "crashes"),
		Version:   version,
		Component: "keyremap",
		Stderr:    stderr,
	})
	defer crash.Recover()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, log, crash)
}

// serve runs the engine until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, log *logging.Logger, crash *logging.CrashHandler) error {
	st, err := openStoreFrom(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ms, err := st.List(ctx)
	if err != nil {
		return fmt.Errorf("load mappings: %w", err)
	}

	b, err := backend.New(cfg.Backend, log.Logger)
	if err != nil {
		return err
	}

	registry := metrics.NewRegistry("keyremap")
	opts := []engine.Option{
		engine.WithLogger(log.Logger),
		engine.WithTiming(engineTiming(cfg.Timing)),
		engine.WithMetrics(metrics.NewRemap(registry)),
	}
	if crash != nil {
		opts = append(opts, engine.WithPanicHandler(crash.HandlePanic))
	}
	eng := engine.New(b, opts...)

	if err := eng.Start(ms); err != nil {
		return err
	}
	log.Info("remapping active", "mappings", len(ms), "backend", b.Name(), "store", cfg.Store.Path, "version", version)

	checker := health.NewChecker()
	checker.Register(&health.Component{Name: "engine", Critical: true, Check: health.RunningCheck(eng.IsRunning)})
	checker.RegisterFunc("store", false, func(ctx context.Context) error {
		_, err := st.List(ctx)
		return err
	})
	checker.SetReady(true)

	var srv *http.Server
	if cfg.Metrics.Listen != "" {
		srv = startMetricsServer(cfg.Metrics.Listen, newMux(registry, checker), log)
	}

	<-ctx.Done()
	log.Info("shutting down")
	checker.SetReady(false)

	eng.Stop()
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := eng.Wait(drainCtx); err != nil {
		log.Warn("sequences still running at exit", "error", err)
	}

	if srv != nil {
		if err := srv.Shutdown(drainCtx); err != nil {
			log.Warn("metrics server shutdown", "error", err)
		}
	}
	return nil
}

func newMux(registry *metrics.Registry, checker *health.Checker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	checker.Mount(mux)
	return mux
}

func startMetricsServer(addr string, handler http.Handler, log *logging.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics endpoint failed", "error", err)
		}
	}()
	return srv
}

func newLogger(lc config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(lc.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(&logging.Config{
		Level:      level,
		Format:     format,
		Output:     lc.Output,
		FilePath:   lc.FilePath,
		MaxSize:    int64(lc.MaxSizeMB),
		MaxAge:     lc.MaxAgeDays,
		MaxBackups: lc.MaxBackups,
		Compress:   lc.Compress,
		Writer:     logWriter(lc.Output),
	})
}

func engineTiming(tc config.TimingConfig) engine.Timing {
	return engine.Timing{
		ModifierSettle: tc.ModifierSettle(),
		ActionSettle:   tc.ActionSettle(),
		TurboInterval:  tc.TurboInterval(),
		DefaultDelay:   tc.DefaultDelay(),
	}
}

// logWriter routes console output through the package writers so tests can
// capture it. File outputs are left to the logging package.
func logWriter(output string) io.Writer {
	switch output {
	case "stdout":
		return stdout
	case "stderr", "":
		return stderr
	default:
		return nil
	}
}
