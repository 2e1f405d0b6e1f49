// Command recm serves the recording catalog to game clients over websocket
// and records history of saves and playback runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RecM/recm/internal/catalog"
	"github.com/RecM/recm/internal/config"
	"github.com/RecM/recm/internal/engine"
	"github.com/RecM/recm/internal/logging"
	"github.com/RecM/recm/internal/monitor"
	intOtel "github.com/RecM/recm/internal/otel"
	"github.com/RecM/recm/internal/transport"
)

// module defs - Version and BuildDate can be set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	ServiceName string = "recm"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime time.Time = time.Now()

	// server is read by the logging context provider once it is up
	server atomic.Pointer[transport.Server]
)

var configDir string

var rootCmd = &cobra.Command{
	Use:          "recm",
	Short:        "RecM recording server",
	Version:      fmt.Sprintf("%s (built %s)", Version, BuildDate),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configDir, "config", "c", ".", "directory holding "+config.FileName)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(logging.Options{Level: "info", Console: os.Stderr, ServiceName: ServiceName})
	Logger = SlogManager.Logger()

	err := config.Load(configDir)
	var notFound viper.ConfigFileNotFoundError
	switch {
	case errors.As(err, &notFound):
		Logger.Warn("Config file not found, using defaults", "dir", configDir)
	case err != nil:
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	default:
		Logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}
}

func initLogging() {
	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		Logger.Error("Failed to create logs directory", "error", err, "path", logsDir)
	}
	logPath := logging.LogFilePath(logsDir, ServiceName, SessionStartTime)
	logFile := logging.NewRotatingFile(logPath)

	var err error
	OTelProvider, err = intOtel.New(intOtel.FromConfig(config.GetOTelConfig(), logFile))
	if err != nil {
		Logger.Error("Failed to initialize OTel provider", "error", err)
	}

	opts := logging.Options{
		Level:       config.GetString("logLevel"),
		Console:     os.Stdout,
		File:        logFile,
		ServiceName: ServiceName,
		Context: func() []slog.Attr {
			s := server.Load()
			if s == nil {
				return nil
			}
			return []slog.Attr{slog.Int("clients", s.Peers())}
		},
	}
	if OTelProvider != nil && OTelProvider.Enabled() {
		opts.Provider = OTelProvider.LoggerProvider()
	}

	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGraylogWriter(gl.Address, ServiceName)
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err, "address", gl.Address)
		} else {
			opts.GELF = w
		}
	}

	SlogManager.Setup(opts)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", logPath, "version", Version)
	if opts.Provider != nil {
		Logger.Info("Exporting logs over OTel", "instance", OTelProvider.Instance())
	}
}

func openCatalog() (*catalog.Catalog, error) {
	rc := config.GetRecordingsConfig()
	cat, err := catalog.New(afero.NewOsFs(), catalog.Config{
		Dir:             rc.Dir,
		VanillaManifest: rc.VanillaManifest,
	}, Logger.With("component", "catalog"))
	if err != nil {
		return nil, err
	}
	if rc.CompactOnStart {
		if _, err := cat.Compact(); err != nil {
			Logger.Error("Failed to compact recordings", "error", err)
		}
	}
	return cat, nil
}

func run(ctx context.Context) error {
	loadConfig()
	initLogging()
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := SlogManager.Flush(flushCtx); err != nil {
			fmt.Fprintf(os.Stderr, "flush logs: %v\n", err)
		}
		if OTelProvider != nil {
			_ = OTelProvider.Shutdown(flushCtx)
		}
	}()

	cat, err := openCatalog()
	if err != nil {
		return err
	}

	history, err := initHistory()
	if err != nil {
		return err
	}
	defer func() {
		if err := history.Close(); err != nil {
			Logger.Error("Failed to close history storage", "error", err)
		}
	}()

	tc := config.GetTransportConfig()
	store := engine.NewLocalStore(engine.LocalStoreDependencies{
		Catalog:   cat,
		History:   history,
		Logger:    Logger.With("component", "store"),
		AllowOpen: tc.AllowOpen,
	})

	srv, err := transport.NewServer(transport.ServerDependencies{
		Store:   store,
		Catalog: cat,
		History: history,
		Logger:  Logger.With("component", "transport"),
	}, tc)
	if err != nil {
		return err
	}
	addr, err := srv.Start()
	if err != nil {
		return err
	}
	server.Store(srv)
	Logger.Info("Listening", "addr", addr.String())

	if config.GetRecordingsConfig().Watch {
		startWatcher(ctx, cat.Dir(), srv)
	}

	monitorService := monitor.NewService(monitor.Dependencies{
		Store:      store,
		Peers:      srv,
		Logger:     Logger.With("component", "monitor"),
		Started:    SessionStartTime,
		StatusPath: filepath.Join(config.GetString("logsDir"), "status.json"),
	})
	monitorService.Start()

	<-ctx.Done()
	Logger.Info("Shutting down")
	monitorService.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		Logger.Error("Server shutdown failed", "error", err)
	}
	server.Store(nil)
	return nil
}

// startWatcher announces recordings written by other processes.
func startWatcher(ctx context.Context, dir string, srv *transport.Server) {
	w, err := catalog.NewWatcher(dir, Logger.With("component", "watcher"))
	if err != nil {
		Logger.Error("Failed to watch recordings directory", "error", err, "dir", dir)
		return
	}
	go w.Run(ctx)
	go func() {
		for reg := range w.Events() {
			srv.Broadcast(reg.Recording)
		}
	}()
}
