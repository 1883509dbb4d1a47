package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kaidolaptops/price-scraper/internal/models"
	"github.com/kaidolaptops/price-scraper/internal/sites"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession serves page texts keyed by selector, the way a rendered page
// would after the settle wait.
type fakeSession struct {
	url         string
	texts       map[string]string
	navigateErr error
	waitErr     error
	panicOnRead bool
	waitedFor   string
	closed      int
}

func (s *fakeSession) Navigate(url string) error {
	s.url = url
	return s.navigateErr
}

func (s *fakeSession) WaitFor(selector string, timeout time.Duration) error {
	s.waitedFor = selector
	return s.waitErr
}

func (s *fakeSession) Text(selector string) (string, error) {
	if s.panicOnRead {
		panic("target closed")
	}
	text, ok := s.texts[selector]
	if !ok {
		return "", fmt.Errorf("%w: %s", sites.ErrNotFound, selector)
	}
	return text, nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type fakeLauncher struct {
	newSession func(n int) *fakeSession
	launchErr  error
	sessions   []*fakeSession
}

func (l *fakeLauncher) Launch(ctx context.Context) (Session, error) {
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	s := &fakeSession{}
	if l.newSession != nil {
		s = l.newSession(len(l.sessions))
	}
	l.sessions = append(l.sessions, s)
	return s, nil
}

func (l *fakeLauncher) assertAllClosed(t *testing.T) {
	t.Helper()
	for i, s := range l.sessions {
		assert.Equal(t, 1, s.closed, "session %d closed %d times", i, s.closed)
	}
}

func pricePage(site sites.Site, text string) func(int) *fakeSession {
	return func(int) *fakeSession {
		return &fakeSession{texts: map[string]string{site.Selector(): text}}
	}
}

func newTestFetcher(l Launcher) *Fetcher {
	return NewFetcher(l, Options{Wait: WaitSelector, SettleDelay: time.Millisecond}, slog.Default())
}

func TestFetchSuccess(t *testing.T) {
	l := &fakeLauncher{newSession: pricePage(sites.Alta, "2 599")}
	f := newTestFetcher(l)

	req := models.NewPriceRequest("https://alta.ge/notebooks/msi.html", "alta", true)
	res := f.Fetch(context.Background(), req)

	assert.Equal(t, 2599, res.Price)
	assert.True(t, res.Found)
	assert.Equal(t, models.FailureNone, res.Failure)
	assert.Equal(t, req, res.PriceRequest)
	assert.False(t, res.FetchedAt.IsZero())

	require.Len(t, l.sessions, 1)
	assert.Equal(t, req.URL, l.sessions[0].url)
	assert.Equal(t, sites.Alta.Selector(), l.sessions[0].waitedFor)
	l.assertAllClosed(t)
}

func TestFetchUnsupportedSiteDoesNotLaunch(t *testing.T) {
	l := &fakeLauncher{}
	f := newTestFetcher(l)

	res := f.Fetch(context.Background(), models.NewPriceRequest("https://example.com/x", "amazon", false))

	assert.Equal(t, 0, res.Price)
	assert.False(t, res.Found)
	assert.Equal(t, models.FailureUnsupportedSite, res.Failure)
	assert.Empty(t, l.sessions)
}

func TestFetchNavigationFailureReleasesSession(t *testing.T) {
	l := &fakeLauncher{newSession: func(int) *fakeSession {
		return &fakeSession{navigateErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	}}
	f := newTestFetcher(l)

	price := f.FetchPrice(context.Background(), "https://unreachable.alta.ge/", "alta")

	assert.Equal(t, 0, price)
	require.Len(t, l.sessions, 1)
	l.assertAllClosed(t)
}

func TestFetchLaunchFailure(t *testing.T) {
	l := &fakeLauncher{launchErr: errors.New("chromium missing")}
	f := newTestFetcher(l)

	res := f.Fetch(context.Background(), models.NewPriceRequest("https://ee.ge/x", "ee", true))

	assert.Equal(t, 0, res.Price)
	assert.Equal(t, models.FailureNavigation, res.Failure)
}

func TestFetchMissingElement(t *testing.T) {
	l := &fakeLauncher{newSession: func(int) *fakeSession {
		return &fakeSession{waitErr: errors.New("Timeout 5000ms exceeded")}
	}}
	f := newTestFetcher(l)

	res := f.Fetch(context.Background(), models.NewPriceRequest("https://veli.store/details/x", "veli", false))

	assert.Equal(t, 0, res.Price)
	assert.Equal(t, models.FailureNotFound, res.Failure)
	l.assertAllClosed(t)
}

func TestFetchUnparsableText(t *testing.T) {
	l := &fakeLauncher{newSession: pricePage(sites.Zoommer, "მალე")}
	f := newTestFetcher(l)

	res := f.Fetch(context.Background(), models.NewPriceRequest("https://zoommer.ge/x", "zoommer", false))

	assert.Equal(t, 0, res.Price)
	assert.Equal(t, models.FailureParse, res.Failure)
	l.assertAllClosed(t)
}

func TestFetchRecoversFromPanic(t *testing.T) {
	l := &fakeLauncher{newSession: func(int) *fakeSession {
		return &fakeSession{panicOnRead: true}
	}}
	f := newTestFetcher(l)

	var res models.PriceResult
	require.NotPanics(t, func() {
		res = f.Fetch(context.Background(), models.NewPriceRequest("https://ee.ge/x", "ee", false))
	})

	assert.Equal(t, 0, res.Price)
	assert.Equal(t, models.FailureNavigation, res.Failure)
	l.assertAllClosed(t)
}

func TestFetchFixedWait(t *testing.T) {
	l := &fakeLauncher{newSession: pricePage(sites.GamingLaptops, "1,234 GEL")}
	f := NewFetcher(l, Options{Wait: WaitFixed, SettleDelay: time.Millisecond}, slog.Default())

	res := f.Fetch(context.Background(), models.NewPriceRequest("https://gaming-laptops.ge/p/1", "gaming-laptops", true))

	assert.Equal(t, 1234, res.Price)
	require.Len(t, l.sessions, 1)
	assert.Empty(t, l.sessions[0].waitedFor, "fixed wait must not poll for the selector")
}

func TestFetchFixedWaitCancelled(t *testing.T) {
	l := &fakeLauncher{newSession: pricePage(sites.EE, "100.00")}
	f := NewFetcher(l, Options{Wait: WaitFixed, SettleDelay: time.Hour}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := f.Fetch(ctx, models.NewPriceRequest("https://ee.ge/x", "ee", false))

	assert.Equal(t, 0, res.Price)
	assert.Equal(t, models.FailureNavigation, res.Failure)
	l.assertAllClosed(t)
}

func TestFetchAllKeepsOrderAndIsolatesFailures(t *testing.T) {
	l := &fakeLauncher{newSession: func(n int) *fakeSession {
		texts := map[string]string{
			sites.Alta.Selector(): "1 500",
			sites.Veli.Selector(): "2100.50",
		}
		return &fakeSession{texts: texts}
	}}
	f := newTestFetcher(l)

	reqs := []models.PriceRequest{
		models.NewPriceRequest("https://alta.ge/a.html", "alta", true),
		models.NewPriceRequest("https://shop.example/b", "unknown-shop", false),
		models.NewPriceRequest("https://veli.store/details/c", "veli", true),
	}

	results := f.FetchAll(context.Background(), reqs)

	require.Len(t, results, len(reqs))
	for i := range reqs {
		assert.Equal(t, reqs[i], results[i].PriceRequest)
	}
	assert.Equal(t, 1500, results[0].Price)
	assert.Equal(t, 0, results[1].Price)
	assert.Equal(t, models.FailureUnsupportedSite, results[1].Failure)
	assert.Equal(t, 2100, results[2].Price)

	assert.Len(t, l.sessions, 2, "one session per supported request")
	l.assertAllClosed(t)
}

// trackingSession holds the page open briefly so overlapping sessions show up.
type trackingSession struct {
	open   *atomic.Int32
	closed atomic.Bool
}

func (s *trackingSession) Navigate(url string) error {
	time.Sleep(5 * time.Millisecond)
	return nil
}

func (s *trackingSession) WaitFor(selector string, timeout time.Duration) error { return nil }

func (s *trackingSession) Text(selector string) (string, error) { return "1 000", nil }

func (s *trackingSession) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.open.Add(-1)
	}
	return nil
}

type trackingLauncher struct {
	open    atomic.Int32
	maxOpen atomic.Int32
}

func (l *trackingLauncher) Launch(ctx context.Context) (Session, error) {
	n := l.open.Add(1)
	for {
		cur := l.maxOpen.Load()
		if n <= cur || l.maxOpen.CompareAndSwap(cur, n) {
			break
		}
	}
	return &trackingSession{open: &l.open}, nil
}

func TestFetchAllConcurrentCallersShareOneBrowser(t *testing.T) {
	l := &trackingLauncher{}
	f := newTestFetcher(l)

	reqs := []models.PriceRequest{
		models.NewPriceRequest("https://alta.ge/a.html", "alta", true),
		models.NewPriceRequest("https://alta.ge/b.html", "alta", true),
		models.NewPriceRequest("https://alta.ge/c.html", "alta", true),
	}

	var wg sync.WaitGroup
	results := make([][]models.PriceResult, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.FetchAll(context.Background(), reqs)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), l.maxOpen.Load(), "browser sessions overlapped")
	assert.Equal(t, int32(0), l.open.Load())
	for _, batch := range results {
		require.Len(t, batch, len(reqs))
		for _, res := range batch {
			assert.Equal(t, 1000, res.Price)
		}
	}
}

func TestFetchGivesUpWaitingForBusyBrowser(t *testing.T) {
	l := &fakeLauncher{newSession: pricePage(sites.Alta, "1 000")}
	f := newTestFetcher(l)

	f.slot <- struct{}{}
	defer func() { <-f.slot }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	res := f.Fetch(ctx, models.NewPriceRequest("https://alta.ge/a.html", "alta", true))

	assert.Equal(t, models.FailureNavigation, res.Failure)
	assert.Empty(t, l.sessions, "no browser while the slot is taken")
}

func TestFetchAllEmpty(t *testing.T) {
	f := newTestFetcher(&fakeLauncher{})

	results := f.FetchAll(context.Background(), nil)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestParseWaitStrategy(t *testing.T) {
	w, err := ParseWaitStrategy("fixed")
	require.NoError(t, err)
	assert.Equal(t, WaitFixed, w)

	w, err = ParseWaitStrategy("selector")
	require.NoError(t, err)
	assert.Equal(t, WaitSelector, w)

	_, err = ParseWaitStrategy("poll")
	assert.Error(t, err)
}

func TestNewFetcherDefaults(t *testing.T) {
	f := NewFetcher(&fakeLauncher{}, Options{}, nil)

	assert.Equal(t, WaitSelector, f.opts.Wait)
	assert.Equal(t, 5*time.Second, f.opts.SettleDelay)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err      error
		expected models.Failure
	}{
		{fmt.Errorf("alta: %w", sites.ErrParse), models.FailureParse},
		{fmt.Errorf("veli: %w", sites.ErrAmbiguous), models.FailureNotFound},
		{fmt.Errorf("ee: %w", sites.ErrNotFound), models.FailureNotFound},
		{fmt.Errorf("%w: boom", ErrNavigation), models.FailureNavigation},
		{sites.ErrUnsupported, models.FailureUnsupportedSite},
		{errors.New("anything else"), models.FailureNavigation},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}
