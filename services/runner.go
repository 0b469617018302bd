package services

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"atbb-scraper/browser"
	"atbb-scraper/config"
	"atbb-scraper/models"
	"atbb-scraper/scraper"
	"atbb-scraper/utils"
)

// RunStore persists finished runs. storage.Store implements it.
type RunStore interface {
	SaveRun(ctx context.Context, run models.RunResult) error
}

// Runner wires the browser session, the page scripts and teardown.
type Runner struct {
	Config config.Config
	Store  RunStore // optional
	Logger *slog.Logger

	// Stdin is read for the keep-open prompt. Nil disables the prompt.
	Stdin io.Reader
	Now   func() time.Time

	// open and flow default to browser.Open and RunMainFlow.
	open func(ctx context.Context, cfg config.Config, log *slog.Logger) (*browser.Session, error)
	flow func(ctx context.Context, s *browser.Session, cfg config.Config, log *slog.Logger) (models.GalleryResult, error)
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Run executes one full capture and records it. The manifest and history
// row are written before the keep-open pause. The returned RunResult is
// filled in even when err is non-nil.
func (r *Runner) Run(ctx context.Context) (models.RunResult, error) {
	cfg := r.Config
	log := r.logger()

	run := models.RunResult{
		ID:        uuid.NewString(),
		PortalURL: cfg.PortalURL,
		Browser:   cfg.Browser,
		StartedAt: r.now(),
	}
	log = log.With("run", run.ID)

	flow := r.flow
	if flow == nil {
		flow = RunMainFlow
	}

	recorded := false
	err := r.withSession(ctx, log, func(ctx context.Context, s *browser.Session) error {
		gallery, err := flow(ctx, s, cfg, log)
		run.Gallery = gallery
		run.Finish(err, r.now())
		r.record(ctx, log, run)
		recorded = true
		return err
	})
	if !recorded {
		// The browser never started.
		run.Finish(err, r.now())
		r.record(ctx, log, run)
	}
	return run, err
}

// LoginOnly opens the portal and logs in, then waits on the keep-open prompt
// so the session can be used by hand.
func (r *Runner) LoginOnly(ctx context.Context) error {
	log := r.logger()
	return r.withSession(ctx, log, func(ctx context.Context, s *browser.Session) error {
		h := scraper.NewHelper(s, r.Config.DefaultTimeout, log)
		return scraper.NewLoginPage(s, h, r.Config, log).LoginAuto(ctx)
	})
}

// withSession opens the browser on ctx and runs fn under GlobalTimeout. The
// browser is only bound to ctx, so it survives the flow deadline through
// the keep-open pause and closes on cancellation or when the pause ends.
func (r *Runner) withSession(ctx context.Context, log *slog.Logger, fn func(context.Context, *browser.Session) error) error {
	open := r.open
	if open == nil {
		open = browser.Open
	}
	session, err := open(ctx, r.Config, log)
	if err != nil {
		return err
	}
	defer session.Close()

	runCtx, cancel := context.WithTimeout(ctx, r.Config.GlobalTimeout)
	err = fn(runCtx, session)
	cancel()
	if err != nil {
		log.Error("flow failed", "error", err)
	}

	if r.Config.KeepOpen && r.Stdin != nil {
		WaitForEnter(ctx, r.Stdin, log)
	}
	return err
}

func (r *Runner) record(ctx context.Context, log *slog.Logger, run models.RunResult) {
	if _, err := utils.WriteManifest(r.Config.ManifestPath(), run); err != nil {
		log.Error("write manifest", "error", err)
	} else {
		log.Info("manifest written", "path", r.Config.ManifestPath())
	}

	if r.Store == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := r.Store.SaveRun(saveCtx, run); err != nil {
		log.Error("store run", "error", err)
	}
}

// WaitForEnter blocks until a line is read from in or ctx ends.
func WaitForEnter(ctx context.Context, in io.Reader, log *slog.Logger) {
	log.Info("process finished, press Enter to close the browser")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = bufio.NewReader(in).ReadString('\n')
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Describe is the one-line status used in summaries.
func Describe(run models.RunResult) string {
	if run.Err != nil {
		return "ERROR: " + run.Err.Error()
	}
	return fmt.Sprintf("%s, %d/%d images", run.Status, run.Gallery.Captured(), run.Gallery.Expected)
}
