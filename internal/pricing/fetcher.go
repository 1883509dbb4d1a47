// Package pricing drives a browser session per product page and turns what
// it finds into PriceResults. Every failure ends up as a zero price; the
// reason is kept on the result and in the logs.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kaidolaptops/price-scraper/internal/models"
	"github.com/kaidolaptops/price-scraper/internal/sites"
)

var ErrNavigation = errors.New("navigation failed")

// Session is a single rendered browser page. Implementations must make
// Close safe to call after any failure.
type Session interface {
	sites.Page
	Navigate(url string) error
	WaitFor(selector string, timeout time.Duration) error
	Close() error
}

type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context) (Session, error)

func (f LauncherFunc) Launch(ctx context.Context) (Session, error) {
	return f(ctx)
}

type WaitStrategy string

const (
	// WaitSelector waits for the site's price element, bounded by SettleDelay.
	WaitSelector WaitStrategy = "selector"
	// WaitFixed sleeps for SettleDelay and reads whatever has rendered.
	WaitFixed WaitStrategy = "fixed"
)

func ParseWaitStrategy(s string) (WaitStrategy, error) {
	switch WaitStrategy(s) {
	case WaitSelector, WaitFixed:
		return WaitStrategy(s), nil
	default:
		return "", fmt.Errorf("unknown wait strategy %q", s)
	}
}

type Options struct {
	Wait        WaitStrategy
	SettleDelay time.Duration
}

func DefaultOptions() Options {
	return Options{
		Wait:        WaitSelector,
		SettleDelay: 5 * time.Second,
	}
}

// Fetcher is safe for concurrent use. Callers share one browser slot, so
// at most one session is open at a time.
type Fetcher struct {
	launcher Launcher
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
	slot     chan struct{}
}

func NewFetcher(launcher Launcher, opts Options, logger *slog.Logger) *Fetcher {
	if opts.Wait == "" {
		opts.Wait = WaitSelector
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultOptions().SettleDelay
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Fetcher{
		launcher: launcher,
		opts:     opts,
		logger:   logger.With("component", "fetcher"),
		now:      time.Now,
		slot:     make(chan struct{}, 1),
	}
}

// FetchPrice returns the price shown on url, or 0 if it could not be read.
func (f *Fetcher) FetchPrice(ctx context.Context, url, company string) int {
	return f.Fetch(ctx, models.NewPriceRequest(url, company, false)).Price
}

// Fetch prices a single request in its own browser session.
func (f *Fetcher) Fetch(ctx context.Context, req models.PriceRequest) models.PriceResult {
	site, ok := sites.Parse(req.Company)
	if !ok {
		f.logger.Warn("unsupported site", "url", req.URL, "company", req.Company)
		return req.Failed(models.FailureUnsupportedSite, f.now())
	}

	if !site.MatchesURL(req.URL) {
		f.logger.Warn("url is not on the site's domain", "url", req.URL, "company", req.Company, "domain", site.Domain())
	}

	start := time.Now()
	price, err := f.fetch(ctx, site, req.URL)
	if err != nil {
		reason := Classify(err)
		f.logger.Error("failed to fetch price",
			"url", req.URL,
			"company", req.Company,
			"reason", reason,
			"error", err)
		return req.Failed(reason, f.now())
	}

	f.logger.Info("price fetched",
		"url", req.URL,
		"company", req.Company,
		"price", price,
		"duration", time.Since(start))

	return req.Priced(price, f.now())
}

// FetchAll prices requests one after another. The output has the same
// length and order as the input.
func (f *Fetcher) FetchAll(ctx context.Context, reqs []models.PriceRequest) []models.PriceResult {
	results := make([]models.PriceResult, 0, len(reqs))
	failed := 0

	for _, req := range reqs {
		res := f.Fetch(ctx, req)
		if !res.Found {
			failed++
		}
		results = append(results, res)
	}

	f.logger.Info("batch finished", "total", len(reqs), "failed", failed)
	return results
}

func (f *Fetcher) fetch(ctx context.Context, site sites.Site, url string) (price int, err error) {
	select {
	case f.slot <- struct{}{}:
	case <-ctx.Done():
		return 0, fmt.Errorf("%w: waiting for browser: %w", ErrNavigation, ctx.Err())
	}
	defer func() { <-f.slot }()

	sess, err := f.launcher.Launch(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNavigation, err)
	}

	defer func() {
		if r := recover(); r != nil {
			price, err = 0, fmt.Errorf("%w: panic: %v", ErrNavigation, r)
		}
		if cerr := sess.Close(); cerr != nil {
			f.logger.Warn("failed to close browser session", "url", url, "error", cerr)
		}
	}()

	if err := sess.Navigate(url); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNavigation, err)
	}

	if err := f.settle(ctx, sess, site); err != nil {
		return 0, err
	}

	return sites.Extract(site, sess)
}

func (f *Fetcher) settle(ctx context.Context, sess Session, site sites.Site) error {
	if f.opts.Wait == WaitFixed {
		timer := time.NewTimer(f.opts.SettleDelay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrNavigation, ctx.Err())
		case <-timer.C:
			return nil
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrNavigation, err)
	}
	if err := sess.WaitFor(site.Selector(), f.opts.SettleDelay); err != nil {
		return fmt.Errorf("%w: %w", sites.ErrNotFound, err)
	}
	return nil
}

// Classify maps an extraction or browser error to the reason reported on
// the result.
func Classify(err error) models.Failure {
	switch {
	case errors.Is(err, sites.ErrUnsupported):
		return models.FailureUnsupportedSite
	case errors.Is(err, sites.ErrParse):
		return models.FailureParse
	case errors.Is(err, sites.ErrNotFound), errors.Is(err, sites.ErrAmbiguous):
		return models.FailureNotFound
	default:
		return models.FailureNavigation
	}
}
