package scraper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"atbb-scraper/models"
	"atbb-scraper/utils"
)

// CaptureGallery opens the detail page's photo viewer and screenshots every
// image in it, one file per thumbnail. A thumbnail that cannot be captured
// is recorded in its Shot and the loop moves on.
func (p *SearchPage) CaptureGallery(ctx context.Context) (models.GalleryResult, error) {
	res := models.GalleryResult{TabID: p.session.CurrentTab()}

	text, err := p.h.GetText(ctx, GalleryCountText, p.cfg.PageTimeout)
	if err != nil {
		return res, step("read gallery count", err)
	}
	count, err := utils.ParseImageCount(text)
	if err != nil {
		return res, step("read gallery count", err)
	}
	res.Expected = count
	p.logger.Info("gallery: images listed", "count", count)

	if _, err := p.h.Click(ctx, ShowAllPhotos, ClickOptions{}); err != nil {
		return res, step("open photo viewer", err)
	}
	if err := p.h.SwitchToFrame(ctx, GalleryFrame, p.cfg.DefaultTimeout); err != nil {
		return res, step("enter photo viewer", err)
	}
	defer p.h.SwitchToDefault()

	dir := p.cfg.ImageDir()
	for i := 0; i < count; i++ {
		shot := p.captureOne(ctx, i, filepath.Join(dir, fmt.Sprintf("%d.png", i)))
		if ctx.Err() != nil {
			return res, step("capture gallery", ctx.Err())
		}
		res.Shots = append(res.Shots, shot)
	}

	p.logger.Info("gallery: done", "captured", res.Captured(), "expected", res.Expected)
	return res, nil
}

func (p *SearchPage) captureOne(ctx context.Context, i int, path string) models.Shot {
	shot := models.Shot{Index: i}

	err := RetryOnStale(1, func() error {
		_, err := p.h.Click(ctx, GalleryThumb(i+1), ClickOptions{})
		return err
	})
	if err == nil {
		err = pause(ctx, p.cfg.StepDelay)
	}
	if err == nil {
		path, err = p.h.Screenshot(ctx, path)
	}
	if err != nil {
		shot.Err = err.Error()
		p.logger.Warn("gallery: image failed", "index", i, "error", err)
		return shot
	}

	shot.Path = path
	shot.CapturedAt = time.Now()
	if fi, err := os.Stat(path); err == nil {
		shot.Bytes = fi.Size()
	}
	p.logger.Info("gallery: image saved", "index", i, "path", path, "bytes", shot.Bytes)
	return shot
}
