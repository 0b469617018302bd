package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atbb-scraper/config"
)

func chromePath(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests skipped in -short mode")
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no chrome binary found")
	return ""
}

func openTestSession(t *testing.T) *Session {
	t.Helper()
	cfg := config.Default()
	cfg.Headless = true
	cfg.ExecPath = chromePath(t)

	s, err := Open(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func tabServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Entry</title></head><body>
			<a id="open" href="/second" target="_blank">open</a>
		</body></html>`)
	})
	mux.HandleFunc("/second", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Second</title></head><body>second</body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSessionTabs(t *testing.T) {
	s := openTestSession(t)
	srv := tabServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, s.Navigate(ctx, srv.URL))
	title, err := s.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Entry", title)
	entry := s.CurrentTab()

	w := s.ExpectNewTab()
	require.NoError(t, chromedp.Run(s.Context(), chromedp.Click("#open", chromedp.ByQuery)))
	switched, err := w.Wait(ctx, 5*time.Second)
	require.NoError(t, err)
	require.True(t, switched)
	assert.NotEqual(t, entry, s.CurrentTab())

	require.Eventually(t, func() bool {
		title, err := s.Title(ctx)
		return err == nil && title == "Second"
	}, 5*time.Second, 100*time.Millisecond)

	tabs, err := s.Tabs(ctx)
	require.NoError(t, err)
	assert.Len(t, tabs, 2)

	n, err := s.CloseTabsByTitle(ctx, "Second", entry)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, entry, s.CurrentTab())

	title, err = s.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Entry", title)
}

func TestSessionClosed(t *testing.T) {
	s := openTestSession(t)
	s.Close()
	s.Close()

	_, err := s.Tabs(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.SwitchTo(context.Background(), "x"), ErrClosed)
}

// createTab opens a tab from the browser side. It has no opener, so it never
// satisfies chromedp.WaitNewTarget.
func createTab(t *testing.T, ctx context.Context, s *Session, url string) string {
	t.Helper()
	c := chromedp.FromContext(s.Context())
	id, err := target.CreateTarget(url).Do(cdp.WithExecutor(ctx, c.Browser))
	require.NoError(t, err)
	return string(id)
}

func TestTabWaiterFallsBackToNewestTab(t *testing.T) {
	s := openTestSession(t)
	srv := tabServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, s.Navigate(ctx, srv.URL))
	entry := s.CurrentTab()

	t.Run("no tab appears", func(t *testing.T) {
		switched, err := s.ExpectNewTab().Wait(ctx, 300*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, switched)
		assert.Equal(t, entry, s.CurrentTab())
	})

	t.Run("unseen tab without opener", func(t *testing.T) {
		w := s.ExpectNewTab()
		id := createTab(t, ctx, s, srv.URL+"/second")
		switched, err := w.Wait(ctx, 500*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, switched)
		assert.Equal(t, id, s.CurrentTab())
	})
}

func TestCloseTabWithMissingFallback(t *testing.T) {
	s := openTestSession(t)
	srv := tabServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, s.Navigate(ctx, srv.URL))
	entry := s.CurrentTab()

	second := createTab(t, ctx, s, srv.URL+"/second")
	require.NoError(t, s.SwitchTo(ctx, second))
	require.Equal(t, second, s.CurrentTab())

	require.NoError(t, s.CloseTab(ctx, second, "no-such-tab"))
	assert.Equal(t, entry, s.CurrentTab())

	title, err := s.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Entry", title)
}
