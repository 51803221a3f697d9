// Command strandtest runs a chase along the strip to check its wiring and
// color order.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"libdb.so/lightpaint"
	"libdb.so/lightpaint/internal/led"
)

var (
	config     = "lightpaint.toml"
	verbose    = false
	chase      = 10
	brightness = uint8(64)
	rate       = 50
)

func init() {
	pflag.StringVarP(&config, "config", "c", config, "configuration file")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose output")
	pflag.IntVar(&chase, "length", chase, "number of lit pixels")
	pflag.Uint8Var(&brightness, "brightness", brightness, "channel brightness")
	pflag.IntVar(&rate, "rate", rate, "frames per second")
}

func main() {
	pflag.Parse()

	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := lightpaint.DefaultConfig()
	if f, err := os.Open(config); err == nil {
		cfg, err = lightpaint.ParseConfig(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	strip, err := lightpaint.OpenStrip(cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to open strip: %w", err)
	}
	defer strip.Close()

	ticker := time.NewTicker(time.Second / time.Duration(max(rate, 1)))
	defer ticker.Stop()

	colors := []led.RGBColor{
		led.RGB(0xFF, 0, 0).Scale(brightness),
		led.RGB(0, 0xFF, 0).Scale(brightness),
		led.RGB(0, 0, 0xFF).Scale(brightness),
	}

	var head, tail, color int
	tail = -chase

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		strip.SetPixel(head, colors[color])
		strip.SetPixel(tail, led.Black)
		if err := strip.Show(); err != nil {
			return fmt.Errorf("failed to show: %w", err)
		}

		head++
		if head >= strip.Len() {
			head = 0
			color = (color + 1) % len(colors)
		}
		tail++
		if tail >= strip.Len() {
			tail = 0
		}
	}
}
