package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kaidolaptops/price-scraper/internal/browser"
	"github.com/kaidolaptops/price-scraper/internal/config"
	"github.com/kaidolaptops/price-scraper/internal/logger"
	"github.com/kaidolaptops/price-scraper/internal/pricing"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once flags are applied.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	logLevel    string
	logFormat   string
	headless    bool
	wait        string
	settleDelay time.Duration
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "price-scraper",
		Short:         "Fetch laptop prices from Georgian online shops",
		Long:          "price-scraper opens product pages of supported shops in a headless browser and reads the displayed price.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format (json, text)")
	flags.BoolVar(&a.headless, "headless", true, "run the browser headless")
	flags.StringVar(&a.wait, "wait", "", "wait strategy before reading the price (selector, fixed)")
	flags.DurationVar(&a.settleDelay, "settle-delay", 0, "how long to wait for the page to render")

	root.AddCommand(
		newFetchCmd(a),
		newExtractCmd(a),
		newServeCmd(a),
		newSitesCmd(),
	)

	return root
}

// setup loads the environment config and lets explicit flags override it.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = a.logFormat
	}
	if flags.Changed("headless") {
		cfg.Browser.Headless = a.headless
	}
	if flags.Changed("wait") {
		cfg.Fetch.WaitStrategy = a.wait
	}
	if flags.Changed("settle-delay") {
		cfg.Fetch.SettleDelay = a.settleDelay
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	// Logs go to stderr so fetch output on stdout stays machine readable.
	a.cfg = cfg
	a.logger = logger.NewWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(a.logger)

	return nil
}

// newFetcher starts the playwright driver. The returned stop func must be
// called once the fetcher is no longer used.
func (a *app) newFetcher() (*pricing.Fetcher, func(), error) {
	launcher, err := browser.NewLauncher(&browser.Options{
		Headless:       a.cfg.Browser.Headless,
		Timeout:        a.cfg.Browser.Timeout,
		UserAgent:      a.cfg.Browser.UserAgent,
		ViewportWidth:  a.cfg.Browser.ViewportWidth,
		ViewportHeight: a.cfg.Browser.ViewportHeight,
		ExecutablePath: a.cfg.Browser.ExecutablePath,
	}, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start browser driver: %w", err)
	}

	wait, err := pricing.ParseWaitStrategy(a.cfg.Fetch.WaitStrategy)
	if err != nil {
		launcher.Stop()
		return nil, nil, err
	}

	launch := pricing.LauncherFunc(func(ctx context.Context) (pricing.Session, error) {
		s, err := launcher.Launch(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	})

	fetcher := pricing.NewFetcher(launch, pricing.Options{
		Wait:        wait,
		SettleDelay: a.cfg.Fetch.SettleDelay,
	}, a.logger)

	stop := func() {
		if err := launcher.Stop(); err != nil {
			a.logger.Warn("failed to stop browser driver", "error", err)
		}
	}

	return fetcher, stop, nil
}
