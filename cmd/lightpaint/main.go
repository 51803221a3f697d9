package main

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"libdb.so/lightpaint"
	"libdb.so/lightpaint/internal/input"
	"libdb.so/lightpaint/internal/metrics"
)

var (
	config      = "lightpaint.toml"
	verbose     = false
	metricsAddr = ""
	dryRun      = false
)

func init() {
	pflag.StringVarP(&config, "config", "c", config, "configuration file")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose output")
	pflag.StringVar(&metricsAddr, "metrics", metricsAddr, "serve Prometheus metrics on this address")
	pflag.BoolVar(&dryRun, "dry-run", dryRun, "run without strip or button hardware")
}

func main() {
	pflag.Parse()

	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := readConfig()
	if err != nil {
		return err
	}

	if dryRun {
		cfg.Strip.Transport = lightpaint.MemoryTransport
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

	strip, err := lightpaint.OpenStrip(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open strip: %w", err)
	}
	defer func() {
		if err := strip.Close(); err != nil {
			logger.Warn("failed to close strip", "error", err)
		}
	}()

	hw := lightpaint.Hardware{Strip: strip}

	if dryRun {
		hw.Buttons = releasedButtons{}
	} else {
		buttons, err := input.OpenButtons(cfg.Buttons.Pins())
		if err != nil {
			return fmt.Errorf("failed to open buttons: %w", err)
		}
		defer buttons.Close()
		hw.Buttons = buttons
	}

	// The encoder is looked for once. Plugging it in later needs a restart.
	if paths := cfg.Encoder.Paths(); input.EncoderPresent(paths) {
		enc, err := input.OpenEncoder(paths)
		if err != nil {
			logger.Warn("encoder present but unusable, using timer", "error", err)
		} else {
			logger.Info("using positional encoder", "name", enc.Name())
			hw.Encoder = enc
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p, err := lightpaint.NewPainter(cfg, hw, logger, lightpaint.WithMetrics(metrics.New(reg)))
	if err != nil {
		return fmt.Errorf("failed to create painter: %w", err)
	}

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		return p.Run(ctx)
	})

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           metrics.Handler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		errg.Go(func() error {
			logger.Info("serving metrics", "addr", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		errg.Go(func() error {
			<-ctx.Done()
			return srv.Close()
		})
	}

	if err := errg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("painter failed: %w", err)
	}

	return nil
}

func readConfig() (*lightpaint.Config, error) {
	f, err := os.Open(config)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !pflag.CommandLine.Changed("config") {
			slog.Info("no configuration file, using defaults", "path", config)
			return lightpaint.DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	return lightpaint.ParseConfig(f)
}

// releasedButtons is a button panel nobody touches.
type releasedButtons struct{}

func (releasedButtons) Poll() input.Button { return input.None }
