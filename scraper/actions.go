package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// ClickOptions tunes Click.
type ClickOptions struct {
	Timeout time.Duration
	// NoJSFallback makes a failed native click an error instead of retrying
	// it as el.click() in the page.
	NoJSFallback bool
}

// Click waits for loc to be clickable, scrolls it to the viewport centre and
// clicks it with the mouse. If the native click fails it is retried as a
// JavaScript click unless disabled.
func (h *Helper) Click(ctx context.Context, loc Locator, opts ClickOptions) (*Element, error) {
	el, err := h.FindClickable(ctx, loc, opts.Timeout)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := h.scope(ctx, h.timeout)
	defer cancel()

	err = h.scrollTo(runCtx, el)
	if err == nil {
		err = nativeClick(runCtx, el)
	}
	if err == nil {
		return el, nil
	}
	if opts.NoJSFallback {
		return nil, fmt.Errorf("click %s: %w", loc, err)
	}

	h.logger.Debug("native click failed, using js click", "locator", loc.String(), "error", err)
	if err := jsClick(runCtx, el); err != nil {
		return nil, fmt.Errorf("js click %s: %w", loc, err)
	}
	return el, nil
}

// JSClick clicks loc with el.click() as soon as it is present, for elements
// that are covered or never become "visible" to the layout checks.
func (h *Helper) JSClick(ctx context.Context, loc Locator, timeout time.Duration) (*Element, error) {
	el, err := h.Find(ctx, loc, timeout)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := h.scope(ctx, h.timeout)
	defer cancel()

	if err := jsClick(runCtx, el); err != nil {
		return nil, fmt.Errorf("js click %s: %w", loc, err)
	}
	return el, nil
}

func jsClick(ctx context.Context, el *Element) error {
	_, err := callOn(ctx, el.ObjectID, `function() { this.click(); }`, true)
	return err
}

// nativeClick dispatches a mouse click at the centre of el after checking
// that nothing else covers that point.
func nativeClick(ctx context.Context, el *Element) error {
	var hit bool
	res, err := callOn(ctx, el.ObjectID, `function() {
		const r = this.getBoundingClientRect();
		const x = r.left + r.width / 2, y = r.top + r.height / 2;
		const top = this.ownerDocument.elementFromPoint(x, y);
		return top === this || this.contains(top);
	}`, true)
	if err != nil {
		return err
	}
	if err := decode(res, &hit); err != nil {
		return err
	}
	if !hit {
		return ErrClickIntercepted
	}

	var quads []dom.Quad
	err = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		q, err := dom.GetContentQuads().WithObjectID(el.ObjectID).Do(ctx)
		quads = q
		return err
	}))
	if err != nil {
		return err
	}
	x, y, ok := quadCentre(quads)
	if !ok {
		return errors.New("element has no clickable box")
	}
	return chromedp.Run(ctx, chromedp.MouseClickXY(x, y))
}

func quadCentre(quads []dom.Quad) (float64, float64, bool) {
	for _, q := range quads {
		if len(q) != 8 {
			continue
		}
		var x, y float64
		for i := 0; i < 8; i += 2 {
			x += q[i]
			y += q[i+1]
		}
		return x / 4, y / 4, true
	}
	return 0, 0, false
}

// InputOptions tunes Input.
type InputOptions struct {
	Timeout time.Duration
	// KeepExisting skips clearing the field first.
	KeepExisting bool
	PressEnter   bool
	// Slow types one character at a time with SlowDelay between them.
	Slow      bool
	SlowDelay time.Duration
	// JSFallback sets the value from script and fires input/change, for
	// framework-controlled fields that ignore synthetic keystrokes.
	JSFallback bool
}

// Input focuses loc, clears it and types text.
func (h *Helper) Input(ctx context.Context, loc Locator, text string, opts InputOptions) (*Element, error) {
	el, err := h.FindClickable(ctx, loc, opts.Timeout)
	if err != nil {
		return nil, err
	}

	delay := opts.SlowDelay
	if delay <= 0 {
		delay = 80 * time.Millisecond
	}
	budget := h.timeout
	if opts.Slow {
		budget += time.Duration(utf8.RuneCountInString(text)) * delay
	}
	runCtx, cancel := h.scope(ctx, budget)
	defer cancel()

	if err := h.scrollTo(runCtx, el); err != nil {
		return nil, fmt.Errorf("scroll %s: %w", loc, err)
	}
	if _, err := callOn(runCtx, el.ObjectID, `function() { this.focus(); }`, true); err != nil {
		return nil, fmt.Errorf("focus %s: %w", loc, err)
	}
	if err := nativeClick(runCtx, el); err != nil {
		if err := jsClick(runCtx, el); err != nil {
			return nil, fmt.Errorf("click %s: %w", loc, err)
		}
	}

	if opts.KeepExisting {
		// Append like a typist would, whatever the click did to the caret.
		_, _ = callOn(runCtx, el.ObjectID, `function() {
			try { const n = this.value.length; this.setSelectionRange(n, n); } catch (e) {}
		}`, true)
	} else if err := clearField(runCtx, el); err != nil {
		return nil, fmt.Errorf("clear %s: %w", loc, err)
	}

	switch {
	case opts.JSFallback:
		_, err = callOn(runCtx, el.ObjectID, fmt.Sprintf(`function() {
			this.value = %s;
			this.dispatchEvent(new Event('input', { bubbles: true }));
			this.dispatchEvent(new Event('change', { bubbles: true }));
		}`, jsString(text)), true)
	case opts.Slow:
		for _, r := range text {
			if err = chromedp.Run(runCtx, typeText(string(r)), chromedp.Sleep(delay)); err != nil {
				break
			}
		}
	default:
		err = chromedp.Run(runCtx, typeText(text))
	}
	if err != nil {
		return nil, fmt.Errorf("type into %s: %w", loc, err)
	}

	if opts.PressEnter {
		if err := chromedp.Run(runCtx, chromedp.KeyEvent(kb.Enter)); err != nil {
			return nil, fmt.Errorf("enter on %s: %w", loc, err)
		}
	}
	return el, nil
}

// typeText sends key events for ASCII text. Anything else (the portal's
// keywords are Japanese) goes through Input.insertText, which is what an IME
// commit looks like to the page.
func typeText(text string) chromedp.Action {
	for _, r := range text {
		if r >= utf8.RuneSelf {
			return input.InsertText(text)
		}
	}
	return chromedp.KeyEvent(text)
}

// clearField empties a focused field, falling back to select-all and
// backspace for widgets that reject a direct value reset.
func clearField(ctx context.Context, el *Element) error {
	_, err := callOn(ctx, el.ObjectID, `function() {
		if (!('value' in this)) throw new Error('element is not editable');
		this.value = '';
		this.dispatchEvent(new Event('input', { bubbles: true }));
		this.dispatchEvent(new Event('change', { bubbles: true }));
	}`, true)
	if err == nil {
		return nil
	}

	mod := input.ModifierCtrl
	if goruntime.GOOS == "darwin" {
		mod = input.ModifierMeta
	}
	return chromedp.Run(ctx,
		chromedp.KeyEvent("a", chromedp.KeyModifiers(mod)),
		chromedp.KeyEvent(kb.Backspace),
	)
}

// GetText returns the trimmed rendered text of loc once visible.
func (h *Helper) GetText(ctx context.Context, loc Locator, timeout time.Duration) (string, error) {
	el, err := h.FindVisible(ctx, loc, timeout)
	if err != nil {
		return "", err
	}
	return h.stringOf(ctx, el, `function() { return (this.innerText || this.textContent || '').trim(); }`)
}

// GetValue returns the trimmed value of loc once present.
func (h *Helper) GetValue(ctx context.Context, loc Locator, timeout time.Duration) (string, error) {
	el, err := h.Find(ctx, loc, timeout)
	if err != nil {
		return "", err
	}
	return h.stringOf(ctx, el, `function() {
		const v = ('value' in this) ? this.value : this.getAttribute('value');
		return (v == null ? '' : String(v)).trim();
	}`)
}

// GetAttribute returns the named attribute of loc; ok is false when the
// attribute is absent.
func (h *Helper) GetAttribute(ctx context.Context, loc Locator, name string, timeout time.Duration) (value string, ok bool, err error) {
	el, err := h.Find(ctx, loc, timeout)
	if err != nil {
		return "", false, err
	}
	return h.Attribute(ctx, el, name)
}

// Attribute reads an attribute from an element already found.
func (h *Helper) Attribute(ctx context.Context, el *Element, name string) (string, bool, error) {
	runCtx, cancel := h.scope(ctx, h.timeout)
	defer cancel()

	res, err := callOn(runCtx, el.ObjectID, fmt.Sprintf(`function() { return this.getAttribute(%s); }`, jsString(name)), true)
	if err != nil {
		return "", false, err
	}
	var v *string
	if err := decode(res, &v); err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (h *Helper) stringOf(ctx context.Context, el *Element, fn string) (string, error) {
	runCtx, cancel := h.scope(ctx, h.timeout)
	defer cancel()

	res, err := callOn(runCtx, el.ObjectID, fn, true)
	if err != nil {
		return "", err
	}
	var s string
	if err := decode(res, &s); err != nil {
		return "", err
	}
	return s, nil
}

// SelectByValue picks the <option> of loc whose value is value.
func (h *Helper) SelectByValue(ctx context.Context, loc Locator, value string, timeout time.Duration) error {
	return h.selectOption(ctx, loc, "value", value, timeout)
}

// SelectByText picks the <option> of loc whose visible text is text.
func (h *Helper) SelectByText(ctx context.Context, loc Locator, text string, timeout time.Duration) error {
	return h.selectOption(ctx, loc, "text", text, timeout)
}

func (h *Helper) selectOption(ctx context.Context, loc Locator, mode, want string, timeout time.Duration) error {
	el, err := h.Find(ctx, loc, timeout)
	if err != nil {
		return err
	}
	runCtx, cancel := h.scope(ctx, h.timeout)
	defer cancel()

	res, err := callOn(runCtx, el.ObjectID, fmt.Sprintf(`function() {
		const mode = %s, want = %s;
		if (this.tagName !== 'SELECT') throw new Error('element is not a select');
		const opt = Array.from(this.options).find(o =>
			mode === 'value' ? o.value === want : o.text.trim() === want);
		if (!opt) return false;
		this.value = opt.value;
		opt.selected = true;
		this.dispatchEvent(new Event('input', { bubbles: true }));
		this.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	}`, jsString(mode), jsString(want)), true)
	if err != nil {
		return fmt.Errorf("select %s: %w", loc, err)
	}
	var found bool
	if err := decode(res, &found); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("select %s: option with %s %q: %w", loc, mode, want, ErrNoSuchElement)
	}
	return nil
}

// UploadFile sets a local file on an <input type=file>.
func (h *Helper) UploadFile(ctx context.Context, loc Locator, path string, timeout time.Duration) (*Element, error) {
	abs, err := expandPath(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("upload %s: %w", abs, err)
	}

	el, err := h.Find(ctx, loc, timeout)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := h.scope(ctx, h.timeout)
	defer cancel()

	err = chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return dom.SetFileInputFiles([]string{abs}).WithObjectID(el.ObjectID).Do(ctx)
	}))
	if err != nil {
		return nil, fmt.Errorf("upload to %s: %w", loc, err)
	}
	return el, nil
}

// SwitchToFrame makes later lookups run inside the iframe matched by
// frameLoc, which is searched for from the top document.
func (h *Helper) SwitchToFrame(ctx context.Context, frameLoc Locator, timeout time.Duration) error {
	h.SwitchToDefault()
	if _, err := h.Find(ctx, frameLoc, timeout); err != nil {
		return fmt.Errorf("find iframe: %w", err)
	}

	h.mu.Lock()
	h.frame = &frameLoc
	h.mu.Unlock()

	// Wait for the frame document itself.
	if timeout <= 0 {
		timeout = h.timeout
	}
	runCtx, cancel := h.scope(ctx, timeout)
	defer cancel()
	for {
		err := h.frameReady(runCtx)
		if err == nil {
			return nil
		}
		if runCtx.Err() != nil || !isTransient(err) {
			h.SwitchToDefault()
			return fmt.Errorf("enter iframe %s: %w", frameLoc, err)
		}
		select {
		case <-runCtx.Done():
		case <-time.After(pollInterval):
		}
	}
}

// SwitchToDefault returns lookups to the top document.
func (h *Helper) SwitchToDefault() {
	h.mu.Lock()
	h.frame = nil
	h.mu.Unlock()
}

// InFrame reports the iframe lookups currently run in, if any.
func (h *Helper) InFrame() (Locator, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.frame == nil {
		return Locator{}, false
	}
	return *h.frame, true
}

// ScrollIntoView centres el in the viewport.
func (h *Helper) ScrollIntoView(ctx context.Context, el *Element) error {
	runCtx, cancel := h.scope(ctx, h.timeout)
	defer cancel()
	return h.scrollTo(runCtx, el)
}

func (h *Helper) scrollTo(ctx context.Context, el *Element) error {
	_, err := callOn(ctx, el.ObjectID, `function() { this.scrollIntoView({ block: 'center' }); }`, true)
	return err
}

// Screenshot saves the visible viewport as PNG and returns the path written.
// A missing or different extension is replaced by .png, and parent
// directories are created.
func (h *Helper) Screenshot(ctx context.Context, path string) (string, error) {
	p, err := pngPath(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}

	runCtx, cancel := h.scope(ctx, h.timeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return "", fmt.Errorf("capture screenshot: %w", err)
	}
	if err := os.WriteFile(p, buf, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return p, nil
}

func pngPath(path string) (string, error) {
	p, err := expandPath(path)
	if err != nil {
		return "", err
	}
	if ext := filepath.Ext(p); !strings.EqualFold(ext, ".png") {
		p = strings.TrimSuffix(p, ext) + ".png"
	}
	return p, nil
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}

// RetryOnStale runs fn and re-runs it up to retries more times while it
// fails with a stale-element error.
func RetryOnStale(retries int, fn func() error) error {
	var err error
	for i := 0; i <= retries; i++ {
		if err = fn(); err == nil || !IsStale(err) {
			return err
		}
	}
	return err
}
