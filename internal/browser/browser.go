package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/kaidolaptops/price-scraper/internal/sites"
	"github.com/playwright-community/playwright-go"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

var ErrStopped = errors.New("launcher stopped")

// hides navigator.webdriver, which the shops use to tell bots apart
const stealthScript = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	ExecutablePath string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      DefaultUserAgent,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
	}
}

func (o *Options) launchArgs() []string {
	return []string{
		"--disable-gpu",
		"--disable-blink-features=AutomationControlled",
		"--disable-dev-shm-usage",
		"--no-sandbox",
		"--disable-setuid-sandbox",
		"--window-size=" + strconv.Itoa(o.ViewportWidth) + "," + strconv.Itoa(o.ViewportHeight),
		"--user-agent=" + o.UserAgent,
	}
}

// Launcher owns the playwright driver and starts one browser per Session.
type Launcher struct {
	pw      *playwright.Playwright
	opts    *Options
	logger  *slog.Logger
	mu      sync.Mutex
	stopped bool
}

func NewLauncher(opts *Options, logger *slog.Logger) (*Launcher, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	return &Launcher{
		pw:     pw,
		opts:   opts,
		logger: logger.With("component", "browser"),
	}, nil
}

// Launch starts a fresh headless browser with a single page. The caller owns
// the returned Session and must Close it.
func (l *Launcher) Launch(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return nil, ErrStopped
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.opts.Headless),
		Args:     l.opts.launchArgs(),
		Timeout:  playwright.Float(float64(l.opts.Timeout.Milliseconds())),
	}
	if l.opts.ExecutablePath != "" {
		launchOpts.ExecutablePath = playwright.String(l.opts.ExecutablePath)
	}

	browser, err := l.pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(l.opts.UserAgent),
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  l.opts.ViewportWidth,
			Height: l.opts.ViewportHeight,
		},
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
		l.logger.Warn("failed to install init script", "error", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(l.opts.Timeout.Milliseconds()))
	page.SetDefaultNavigationTimeout(float64(l.opts.Timeout.Milliseconds()))

	l.logger.Debug("browser session started", "headless", l.opts.Headless)

	return &Session{
		browser: browser,
		context: bctx,
		page:    page,
		timeout: l.opts.Timeout,
		logger:  l.logger,
	}, nil
}

// Stop shuts the playwright driver down. Sessions still open are not
// closed for the caller.
func (l *Launcher) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return nil
	}
	l.stopped = true

	if err := l.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

// Session is one browser process with one page, used for a single request.
type Session struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	timeout time.Duration
	logger  *slog.Logger
	closed  bool
}

func (s *Session) Navigate(url string) error {
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// WaitFor blocks until selector is attached to the DOM or timeout elapses.
func (s *Session) WaitFor(selector string, timeout time.Duration) error {
	_, err := s.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", selector, err)
	}
	return nil
}

// Text returns the rendered text of the single element matching selector.
func (s *Session) Text(selector string) (string, error) {
	loc := s.page.Locator(selector)

	count, err := loc.Count()
	if err != nil {
		return "", fmt.Errorf("failed to query %s: %w", selector, err)
	}
	switch {
	case count == 0:
		return "", fmt.Errorf("%w: %s", sites.ErrNotFound, selector)
	case count > 1:
		return "", fmt.Errorf("%w: %d matches for %s", sites.ErrAmbiguous, count, selector)
	}

	text, err := loc.InnerText()
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", selector, err)
	}
	return text, nil
}

// Close releases the page, context and browser process. It is safe to call
// more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error

	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %w", errors.Join(errs...))
	}

	s.logger.Debug("browser session closed")
	return nil
}
