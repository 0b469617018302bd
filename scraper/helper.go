package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// pollInterval is how often explicit waits re-check their condition.
const pollInterval = 250 * time.Millisecond

// Tab is the browser tab the helper drives. browser.Session satisfies it and
// follows tab switches, so a Helper survives SwitchTo.
type Tab interface {
	Context() context.Context
}

// Element is a handle on a DOM node inside the current tab.
type Element struct {
	ObjectID runtime.RemoteObjectID
	Locator  Locator
}

// Helper wraps the chromedp tab with explicit waits and the click/type
// fallbacks the page scripts rely on. Lookups are relative to the current
// frame: the top document, or the iframe entered with SwitchToFrame.
type Helper struct {
	tab     Tab
	timeout time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	frame *Locator
}

// NewHelper returns a Helper whose waits default to timeout.
func NewHelper(tab Tab, timeout time.Duration, logger *slog.Logger) *Helper {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Helper{tab: tab, timeout: timeout, logger: logger}
}

// scope returns a chromedp context for the current tab bounded by timeout
// and by ctx.
func (h *Helper) scope(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = h.timeout
	}
	runCtx, cancel := context.WithTimeout(h.tab.Context(), timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// Find waits until loc is present in the DOM.
func (h *Helper) Find(ctx context.Context, loc Locator, timeout time.Duration) (*Element, error) {
	return h.waitFor(ctx, loc, condPresent, timeout)
}

// FindVisible waits until loc is present and visible.
func (h *Helper) FindVisible(ctx context.Context, loc Locator, timeout time.Duration) (*Element, error) {
	return h.waitFor(ctx, loc, condVisible, timeout)
}

// FindClickable waits until loc is visible and enabled.
func (h *Helper) FindClickable(ctx context.Context, loc Locator, timeout time.Duration) (*Element, error) {
	return h.waitFor(ctx, loc, condClickable, timeout)
}

// Exists reports whether loc appears within timeout. Only a timeout maps to
// false; other failures are returned.
func (h *Helper) Exists(ctx context.Context, loc Locator, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	_, err := h.Find(ctx, loc, timeout)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrTimeout):
		return false, nil
	default:
		return false, err
	}
}

// WaitGone waits until loc is absent or hidden, e.g. a loading overlay.
func (h *Helper) WaitGone(ctx context.Context, loc Locator, timeout time.Duration) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = h.timeout
	}
	runCtx, cancel := h.scope(ctx, timeout)
	defer cancel()

	var last error
	for {
		var gone bool
		err := h.evalOnRoot(runCtx, loc.finder(condGone, 0), &gone)
		if err == nil && gone {
			return nil
		}
		if err != nil && runCtx.Err() == nil {
			if !isTransient(err) {
				return err
			}
			last = err
		}

		select {
		case <-runCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &WaitError{Locator: loc, Condition: string(condGone), Timeout: timeout, Last: last}
		case <-time.After(pollInterval):
		}
	}
}

// FindAll returns every current match of loc without waiting.
func (h *Helper) FindAll(ctx context.Context, loc Locator) ([]*Element, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	runCtx, cancel := h.scope(ctx, h.timeout)
	defer cancel()

	var n int
	if err := h.evalOnRoot(runCtx, loc.finder(condCount, 0), &n); err != nil {
		return nil, fmt.Errorf("count %s: %w", loc, err)
	}

	out := make([]*Element, 0, n)
	for i := 0; i < n; i++ {
		el, err := h.resolve(runCtx, loc, condPresent, i)
		if err != nil {
			return nil, fmt.Errorf("fetch %s[%d]: %w", loc, i, err)
		}
		if el == nil {
			// The DOM shrank between the count and this fetch.
			break
		}
		out = append(out, el)
	}
	return out, nil
}

func (h *Helper) waitFor(ctx context.Context, loc Locator, cond condition, timeout time.Duration) (*Element, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = h.timeout
	}
	runCtx, cancel := h.scope(ctx, timeout)
	defer cancel()

	var last error
	for {
		el, err := h.resolve(runCtx, loc, cond, 0)
		if err == nil && el != nil {
			return el, nil
		}
		if err != nil && runCtx.Err() == nil {
			if !isTransient(err) {
				return nil, err
			}
			last = err
		}

		select {
		case <-runCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &WaitError{Locator: loc, Condition: string(cond), Timeout: timeout, Last: last}
		case <-time.After(pollInterval):
		}
	}
}

// resolve runs one lookup. A nil element with a nil error means "not yet".
// The returned element lives in elementGroup; everything else the lookup
// touched is released before returning.
func (h *Helper) resolve(ctx context.Context, loc Locator, cond condition, nth int) (*Element, error) {
	group := nextLookupGroup()
	defer releaseGroup(ctx, group)

	root, err := h.root(ctx, group)
	if err != nil {
		return nil, err
	}
	res, err := callIn(ctx, root, loc.finder(cond, nth), elementGroup)
	if err != nil {
		return nil, err
	}
	if res.ObjectID == "" {
		return nil, nil
	}
	return &Element{ObjectID: res.ObjectID, Locator: loc}, nil
}

// root returns the document lookups run against, held in group.
func (h *Helper) root(ctx context.Context, group string) (runtime.RemoteObjectID, error) {
	doc, err := topDocument(ctx, group)
	if err != nil {
		return "", err
	}

	h.mu.Lock()
	frame := h.frame
	h.mu.Unlock()
	if frame == nil {
		return doc, nil
	}

	res, err := callIn(ctx, doc, frame.finder(condPresent, 0), group)
	if err != nil {
		return "", err
	}
	if res.ObjectID == "" {
		return "", fmt.Errorf("iframe %s: %w", frame, ErrFrameUnavailable)
	}
	inner, err := callIn(ctx, res.ObjectID, `function() {
		let d = null;
		try { d = this.contentDocument; } catch (e) {}
		return d && d.readyState !== 'loading' ? d : null;
	}`, group)
	if err != nil {
		return "", err
	}
	if inner.ObjectID == "" {
		return "", fmt.Errorf("iframe %s: %w", frame, ErrFrameUnavailable)
	}
	return inner.ObjectID, nil
}

// frameReady reports whether the current frame's document can be reached.
func (h *Helper) frameReady(ctx context.Context) error {
	group := nextLookupGroup()
	defer releaseGroup(ctx, group)
	_, err := h.root(ctx, group)
	return err
}

func (h *Helper) evalOnRoot(ctx context.Context, fn string, out any) error {
	group := nextLookupGroup()
	defer releaseGroup(ctx, group)

	root, err := h.root(ctx, group)
	if err != nil {
		return err
	}
	res, err := callOn(ctx, root, fn, true)
	if err != nil {
		return err
	}
	return decode(res, out)
}

func isTransient(err error) bool {
	return IsStale(err) || errors.Is(err, ErrFrameUnavailable)
}

func topDocument(ctx context.Context, group string) (runtime.RemoteObjectID, error) {
	var id runtime.RemoteObjectID
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		res, exc, err := runtime.Evaluate("document").WithObjectGroup(group).Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		id = res.ObjectID
		return nil
	}))
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.New("document is not available")
	}
	return id, nil
}

// elementGroup holds the element handles returned to callers. Handles made
// while searching go into a per-lookup group instead.
const elementGroup = "atbb-elements"

var lookupSeq atomic.Uint64

func nextLookupGroup() string {
	return fmt.Sprintf("atbb-lookup-%d", lookupSeq.Add(1))
}

// releaseGroup frees every remote object in group. It runs even when ctx
// has already timed out.
func releaseGroup(ctx context.Context, group string) {
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	_ = chromedp.Run(relCtx, runtime.ReleaseObjectGroup(group))
}

// callIn calls fn with `this` bound to obj and keeps the result object in
// group.
func callIn(ctx context.Context, obj runtime.RemoteObjectID, fn, group string) (*runtime.RemoteObject, error) {
	var res *runtime.RemoteObject
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		r, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(obj).
			WithObjectGroup(group).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		res = r
		return nil
	}))
	return res, err
}

// callOn calls fn with `this` bound to obj.
func callOn(ctx context.Context, obj runtime.RemoteObjectID, fn string, byValue bool) (*runtime.RemoteObject, error) {
	var res *runtime.RemoteObject
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		r, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(obj).
			WithReturnByValue(byValue).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		res = r
		return nil
	}))
	return res, err
}

func decode(res *runtime.RemoteObject, out any) error {
	if res == nil || len(res.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal([]byte(res.Value), out); err != nil {
		return fmt.Errorf("decode %s result: %w", res.Type, err)
	}
	return nil
}
