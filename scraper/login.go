package scraper

import (
	"context"
	"log/slog"

	"atbb-scraper/browser"
	"atbb-scraper/config"
)

// LoginPage drives the portal's login form.
type LoginPage struct {
	session *browser.Session
	h       *Helper
	cfg     config.Config
	logger  *slog.Logger
}

func NewLoginPage(session *browser.Session, h *Helper, cfg config.Config, logger *slog.Logger) *LoginPage {
	return &LoginPage{session: session, h: h, cfg: cfg, logger: logger}
}

// Open loads the portal's login page.
func (p *LoginPage) Open(ctx context.Context) error {
	return step("open portal", p.session.Navigate(ctx, p.cfg.PortalURL))
}

// LoginAuto opens the portal and submits the configured credentials,
// replacing anything already in the fields. Whether the login succeeded is
// only logged: the next page script fails on its own if it did not.
func (p *LoginPage) LoginAuto(ctx context.Context) error {
	if err := p.Open(ctx); err != nil {
		return err
	}

	if _, err := p.h.Input(ctx, LoginUserInput, p.cfg.LoginID, InputOptions{Timeout: p.cfg.PageTimeout}); err != nil {
		return step("enter login id", err)
	}
	if _, err := p.h.Input(ctx, LoginPassInput, p.cfg.LoginPassword, InputOptions{}); err != nil {
		return step("enter password", err)
	}
	if _, err := p.h.Click(ctx, LoginSubmit, ClickOptions{}); err != nil {
		return step("submit login", err)
	}
	p.logger.Info("login submitted", "url", p.cfg.PortalURL, "user", p.cfg.LoginID)

	if err := p.h.WaitGone(ctx, LoadingOverlay, p.cfg.PageTimeout); err != nil {
		p.logger.Warn("loading overlay still visible after login", "error", err)
	}
	ok, err := p.h.Exists(ctx, LoggedInMarker, p.cfg.PageTimeout)
	switch {
	case err != nil:
		p.logger.Warn("could not check login result", "error", err)
	case !ok:
		p.logger.Warn("global menu not found after login; continuing anyway")
	default:
		p.logger.Info("logged in")
	}
	return nil
}
