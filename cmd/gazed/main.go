// gazed - gaze pointer daemon
//
// gazed turns eye-tracker samples into pointer states and dwell
// invocations over a configured element layout:
//
//	gazed                          Run with the default configuration
//	gazed -config gazed.toml       Run with a configuration file
//	gazed -layout layout.yaml      Override the element layout
//	gazed -version                 Print the version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gazeinput/internal/config"
	"gazeinput/internal/logging"
	"gazeinput/internal/source/dbussrc"
	"gazeinput/internal/uitree"
)

// Version is set at build time.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "configuration file (default: platform config dir)")
	layoutPath := flag.String("layout", "", "element layout file, overrides the configuration")
	listen := flag.String("listen", "", "HTTP listen address, overrides the configuration")
	logLevel := flag.String("log-level", "", "log level, overrides the configuration")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gazed %s\n", Version)
		return
	}

	if err := run(*configPath, *layoutPath, *listen, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "gazed: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, layoutPath, listen, logLevel string) error {
	if configPath == "" {
		configPath = config.FindConfigFile()
	}
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if layoutPath != "" {
		cfg.Layout.Path = layoutPath
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()
	logging.SetDefault(logger)
	log := logger.Logger

	layout, err := loadLayout(cfg.Layout)
	if err != nil {
		return err
	}

	d, err := newDaemon(cfg, layout, log)
	if err != nil {
		return err
	}
	defer d.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopErr := make(chan error, 1)
	go func() { loopErr <- d.loop.Run(ctx) }()
	if err := d.start(ctx); err != nil {
		return err
	}

	loader.OnChange(func(old, new *config.Config) {
		d.reload(old, new)
	})
	if err := loader.Watch(); err != nil {
		log.Warn("config hot reload unavailable", "path", loader.Path(), "error", err)
	}
	defer loader.Close()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-loader.Errors():
				log.Warn("config reload rejected", "error", err)
			}
		}
	}()

	if cfg.DBus.Enabled {
		src, err := dbussrc.Connect(dbussrc.Config{
			Bus:       cfg.DBus.Bus,
			Interface: cfg.DBus.Interface,
			Path:      cfg.DBus.Path,
		}, d.hub, log)
		if err != nil {
			log.Error("desktop bus source unavailable", "error", err)
		} else {
			defer src.Close()
			go func() {
				if err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("desktop bus source stopped", "error", err)
				}
			}()
		}
	}

	var srv *http.Server
	if cfg.Server.Enabled {
		srv = &http.Server{
			Addr:        cfg.Server.Listen,
			Handler:     d.router(),
			ReadTimeout: 30 * time.Second,
			IdleTimeout: 120 * time.Second,
			// websocket handlers see ctx cancellation on shutdown
			BaseContext: func(_ net.Listener) context.Context { return ctx },
		}
		go func() {
			log.Info("server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("server failed", "error", err)
				stop()
			}
		}()
	}

	d.health.SetReady(true)
	log.Info("gazed started",
		"version", Version,
		"config", loader.Path(),
		"layout_nodes", layout.Nodes(),
		"journal", cfg.Journal.Enabled,
	)

	<-ctx.Done()
	stop()
	d.health.SetReady(false)
	log.Info("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown", "error", err)
		}
	}
	if err := <-loopErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newLogger(c config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Format)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = c.Output
	lc.FilePath = c.FilePath
	lc.MaxSize = int64(c.MaxSizeMB)
	lc.MaxBackups = c.MaxBackups
	lc.Throttle = time.Duration(c.ThrottleMs) * time.Millisecond
	return logging.New(lc)
}

// loadLayout reads the layout file, or builds a single gaze-enabled
// screen root when none is configured.
func loadLayout(c config.LayoutConfig) (*uitree.Layout, error) {
	if c.Path != "" {
		l, err := uitree.LoadLayoutFile(c.Path)
		if err != nil {
			return nil, fmt.Errorf("load layout: %w", err)
		}
		return l, nil
	}
	return uitree.BuildLayout(&uitree.NodeSpec{
		Name:   "screen",
		Bounds: []float64{0, 0, c.ScreenWidth, c.ScreenHeight},
		Gaze:   "enabled",
	})
}
