package services

import (
	"context"
	"log/slog"

	"atbb-scraper/browser"
	"atbb-scraper/config"
	"atbb-scraper/models"
	"atbb-scraper/scraper"
)

// RunMainFlow logs in and captures the gallery of the first search result,
// all inside one browser session.
func RunMainFlow(ctx context.Context, session *browser.Session, cfg config.Config, logger *slog.Logger) (models.GalleryResult, error) {
	h := scraper.NewHelper(session, cfg.DefaultTimeout, logger)

	login := scraper.NewLoginPage(session, h, cfg, logger)
	if err := login.LoginAuto(ctx); err != nil {
		return models.GalleryResult{}, err
	}

	search := scraper.NewSearchPage(session, h, cfg, logger)
	if err := search.OpenListedSearch(ctx); err != nil {
		return models.GalleryResult{}, err
	}

	keyword, err := search.Keyword()
	if err != nil {
		return models.GalleryResult{}, err
	}
	if err := search.SearchKeyword(ctx, keyword); err != nil {
		return models.GalleryResult{Keyword: keyword}, err
	}

	res, err := search.CaptureGallery(ctx)
	res.Keyword = keyword
	return res, err
}
