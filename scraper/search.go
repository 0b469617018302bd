package scraper

import (
	"context"
	"log/slog"
	"time"

	"atbb-scraper/browser"
	"atbb-scraper/config"
	"atbb-scraper/utils"
)

// SearchPage walks from the post-login menu to a property's detail page.
type SearchPage struct {
	session *browser.Session
	h       *Helper
	cfg     config.Config
	logger  *slog.Logger
}

func NewSearchPage(session *browser.Session, h *Helper, cfg config.Config, logger *slog.Logger) *SearchPage {
	return &SearchPage{session: session, h: h, cfg: cfg, logger: logger}
}

// OpenListedSearch goes from the global menu to the listed-property search
// conditions, forcing out any other session on the way.
func (p *SearchPage) OpenListedSearch(ctx context.Context) error {
	origin := p.session.CurrentTab()
	p.logger.Info("search: starting", "tab", origin)

	if _, err := p.h.Click(ctx, PropertySearchMenu, ClickOptions{Timeout: p.cfg.PageTimeout}); err != nil {
		return step("open property search menu", err)
	}
	if _, err := p.h.Click(ctx, ListedSearchTile, ClickOptions{Timeout: p.cfg.ShortTimeout}); err != nil {
		return step("open listed property search", err)
	}

	waiter := p.session.ExpectNewTab()
	if _, err := p.h.Click(ctx, EntranceLogout, ClickOptions{Timeout: p.cfg.PageTimeout}); err != nil {
		return step("log out concurrent session", err)
	}
	switched, err := waiter.Wait(ctx, p.cfg.NewTabTimeout)
	if err != nil {
		return step("switch to search tab", err)
	}
	p.logger.Info("search: entrance logout done", "new_tab", switched, "tab", p.session.CurrentTab())

	if p.cfg.CloseEntryTab {
		n, err := p.session.CloseTabsByTitle(ctx, MemberSiteTitle, p.session.CurrentTab())
		if err != nil {
			return step("close member site tab", err)
		}
		p.logger.Info("search: closed member site tabs", "count", n)
	}

	if _, err := p.h.Click(ctx, RentalResidentialLabel, ClickOptions{Timeout: p.cfg.ShortTimeout}); err != nil {
		return step("choose rental residential", err)
	}
	p.logCategories(ctx)
	return nil
}

// logCategories lists the category radios at debug level, which is how the
// selector for a different category is usually found.
func (p *SearchPage) logCategories(ctx context.Context) {
	if !p.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	radios, err := p.h.FindAll(ctx, CategoryRadios)
	if err != nil {
		p.logger.Debug("search: list categories", "error", err)
		return
	}
	for i, r := range radios {
		v, _, _ := p.h.Attribute(ctx, r, "value")
		p.logger.Debug("search: category radio", "n", i+1, "value", v)
	}
}

// SearchKeyword runs a free-word search and opens the first result.
func (p *SearchPage) SearchKeyword(ctx context.Context, keyword string) error {
	p.logger.Info("search: keyword", "keyword", keyword)

	if _, err := p.h.Input(ctx, FreeWordInput, keyword, InputOptions{}); err != nil {
		return step("enter keyword", err)
	}
	if _, err := p.h.Click(ctx, SearchButton, ClickOptions{}); err != nil {
		return step("run search", err)
	}
	if _, err := p.h.Click(ctx, FirstDetailButton, ClickOptions{Timeout: p.cfg.PageTimeout}); err != nil {
		return step("open first result", err)
	}
	return nil
}

// Keyword reads the search keyword from the configured file.
func (p *SearchPage) Keyword() (string, error) {
	kw, err := utils.ReadKeyword(p.cfg.KeywordFile)
	return kw, step("read keyword", err)
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
