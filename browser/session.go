package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"atbb-scraper/config"
	"atbb-scraper/models"
)

// ErrClosed is returned by every Session method once Close has been called.
var ErrClosed = errors.New("browser: session is closed")

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Session is a single browser with one "current" tab. Every DOM operation
// runs against Context(), which follows SwitchTo.
type Session struct {
	logger *slog.Logger

	cancelAlloc context.CancelFunc

	// root is the first tab. Cancelling it shuts the browser down, so it is
	// only cancelled by Close, even after the tab itself was closed.
	root       context.Context
	rootID     target.ID
	cancelRoot context.CancelFunc

	mu     sync.Mutex
	cur    target.ID
	tabs   map[target.ID]*tab
	closed bool
}

// Open launches (or connects to) the browser described by cfg and attaches to
// its first tab. The browser is started eagerly so launch failures surface
// here rather than on the first navigation.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	allocCtx, cancelAlloc, err := NewAllocator(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rootCtx, cancelRoot := chromedp.NewContext(allocCtx, tabLogging(logger, "main")...)
	if err := chromedp.Run(rootCtx); err != nil {
		cancelRoot()
		cancelAlloc()
		return nil, fmt.Errorf("browser: start %s: %w", cfg.Browser, err)
	}

	id := chromedp.FromContext(rootCtx).Target.TargetID
	s := &Session{
		logger:      logger,
		cancelAlloc: cancelAlloc,
		root:        rootCtx,
		rootID:      id,
		cancelRoot:  cancelRoot,
		cur:         id,
		tabs:        map[target.ID]*tab{id: {ctx: rootCtx, cancel: func() {}}},
	}
	logger.Info("browser: started", "browser", cfg.Browser, "headless", cfg.Headless, "tab", id)
	return s, nil
}

func tabLogging(logger *slog.Logger, name string) []chromedp.ContextOption {
	return []chromedp.ContextOption{
		chromedp.WithLogf(func(format string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(format, args...), "tab", name)
		}),
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(format, args...), "tab", name)
		}),
	}
}

// Context returns the chromedp context of the current tab.
func (s *Session) Context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tabs[s.cur]; ok {
		return t.ctx
	}
	return s.root
}

// CurrentTab returns the id of the current tab.
func (s *Session) CurrentTab() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.cur)
}

// Tabs lists the page targets open in the browser.
func (s *Session) Tabs(ctx context.Context) ([]models.TabInfo, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	runCtx, cancel := bind(ctx, s.root)
	defer cancel()

	infos, err := chromedp.Targets(runCtx)
	if err != nil {
		return nil, fmt.Errorf("browser: list targets: %w", err)
	}

	tabs := make([]models.TabInfo, 0, len(infos))
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		tabs = append(tabs, models.TabInfo{ID: string(info.TargetID), Title: info.Title, URL: info.URL})
	}
	return tabs, nil
}

// SwitchTo makes the tab with the given id current, attaching to it first if
// the session has not seen it yet.
func (s *Session) SwitchTo(ctx context.Context, id string) error {
	if _, err := s.attach(ctx, target.ID(id)); err != nil {
		return err
	}

	s.mu.Lock()
	s.cur = target.ID(id)
	s.mu.Unlock()
	s.logger.Debug("browser: switched tab", "tab", id)
	return nil
}

func (s *Session) attach(ctx context.Context, id target.ID) (*tab, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if t, ok := s.tabs[id]; ok {
		s.mu.Unlock()
		return t, nil
	}
	s.mu.Unlock()

	opts := append(tabLogging(s.logger, string(id)), chromedp.WithTargetID(id))
	tabCtx, cancel := chromedp.NewContext(s.root, opts...)

	runCtx, stop := bind(ctx, tabCtx)
	err := chromedp.Run(runCtx)
	stop()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("browser: attach tab %s: %w", id, err)
	}

	t := &tab{ctx: tabCtx, cancel: cancel}
	s.mu.Lock()
	s.tabs[id] = t
	s.mu.Unlock()
	return t, nil
}

// TabWaiter is armed before an action that opens a tab and collects the
// resulting target afterwards.
type TabWaiter struct {
	s      *Session
	ch     <-chan target.ID
	cancel context.CancelFunc
}

// ExpectNewTab starts listening for a new page target. Call Wait after the
// action that is expected to open it.
func (s *Session) ExpectNewTab() *TabWaiter {
	ctx, cancel := context.WithCancel(s.Context())
	ch := chromedp.WaitNewTarget(ctx, func(info *target.Info) bool {
		return info.Type == "page"
	})
	return &TabWaiter{s: s, ch: ch, cancel: cancel}
}

// Wait switches to the new tab when one appears within timeout. When none
// does it falls back to the newest tab the session has not seen, and
// reports false if there is none either.
func (w *TabWaiter) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	defer w.cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case id := <-w.ch:
		return true, w.s.SwitchTo(ctx, string(id))
	case <-timer.C:
		return w.s.SwitchToNewest(ctx)
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// SwitchToNewest switches to the newest tab the session has not attached to
// yet and reports whether there was one.
func (s *Session) SwitchToNewest(ctx context.Context) (bool, error) {
	tabs, err := s.Tabs(ctx)
	if err != nil {
		return false, err
	}

	// Targets are listed newest first.
	s.mu.Lock()
	var pick string
	for _, t := range tabs {
		if _, seen := s.tabs[target.ID(t.ID)]; !seen {
			pick = t.ID
			break
		}
	}
	s.mu.Unlock()

	if pick == "" {
		return false, nil
	}
	return true, s.SwitchTo(ctx, pick)
}

// CloseTab closes the tab with the given id. When it was the current tab,
// the session switches to fallback if it is still open, else to the first
// remaining tab.
func (s *Session) CloseTab(ctx context.Context, id, fallback string) error {
	wasCurrent, err := s.closeTab(ctx, target.ID(id))
	if err != nil || !wasCurrent {
		return err
	}
	return s.switchAfterClose(ctx, fallback)
}

// CloseTabsByTitle closes every tab whose title contains substr and returns
// how many were closed. If the current tab was among them the session
// switches as CloseTab does.
func (s *Session) CloseTabsByTitle(ctx context.Context, substr, fallback string) (int, error) {
	tabs, err := s.Tabs(ctx)
	if err != nil {
		return 0, err
	}

	closed := 0
	lostCurrent := false
	for _, t := range tabs {
		if !strings.Contains(t.Title, substr) {
			continue
		}
		wasCurrent, err := s.closeTab(ctx, target.ID(t.ID))
		if err != nil {
			return closed, err
		}
		lostCurrent = lostCurrent || wasCurrent
		closed++
	}

	if lostCurrent {
		return closed, s.switchAfterClose(ctx, fallback)
	}
	return closed, nil
}

func (s *Session) closeTab(ctx context.Context, id target.ID) (bool, error) {
	t, err := s.attach(ctx, id)
	if err != nil {
		return false, err
	}

	runCtx, stop := bind(ctx, t.ctx)
	err = chromedp.Run(runCtx, page.Close())
	stop()
	if err != nil {
		return false, fmt.Errorf("browser: close tab %s: %w", id, err)
	}

	s.mu.Lock()
	delete(s.tabs, id)
	wasCurrent := s.cur == id
	s.mu.Unlock()
	t.cancel()

	s.logger.Info("browser: closed tab", "tab", id)
	return wasCurrent, nil
}

func (s *Session) switchAfterClose(ctx context.Context, fallback string) error {
	// Give the browser a moment to drop the closed target.
	time.Sleep(200 * time.Millisecond)

	tabs, err := s.Tabs(ctx)
	if err != nil {
		return err
	}
	if len(tabs) == 0 {
		return errors.New("browser: no tabs left open")
	}
	for _, t := range tabs {
		if t.ID == fallback {
			return s.SwitchTo(ctx, fallback)
		}
	}
	return s.SwitchTo(ctx, tabs[0].ID)
}

// Title returns the title of the current tab.
func (s *Session) Title(ctx context.Context) (string, error) {
	runCtx, cancel := bind(ctx, s.Context())
	defer cancel()

	var title string
	if err := chromedp.Run(runCtx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("browser: read title: %w", err)
	}
	return title, nil
}

// Navigate loads url in the current tab.
func (s *Session) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := bind(ctx, s.Context())
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	return nil
}

// Close detaches from every tab and shuts the browser down. It is safe to
// call on a nil Session.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	tabs := s.tabs
	s.tabs = nil
	s.mu.Unlock()

	for _, t := range tabs {
		t.cancel()
	}
	s.cancelRoot()
	s.cancelAlloc()
	s.logger.Info("browser: closed")
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// bind derives a context from the chromedp tab context that is also
// cancelled when ctx is.
func bind(ctx, tabCtx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(tabCtx)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}
