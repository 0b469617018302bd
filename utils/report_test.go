package utils

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atbb-scraper/models"
)

func sampleRun() models.RunResult {
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	run := models.RunResult{
		ID:        "run-1",
		PortalURL: "https://example.test",
		StartedAt: t0,
		Gallery: models.GalleryResult{
			Keyword:  "港区",
			Expected: 4,
			Shots: []models.Shot{
				{Index: 0, Path: "output/image/0.png", Bytes: 100, CapturedAt: t0.Add(10 * time.Second)},
				{Index: 1, Path: "output/image/1.png", Bytes: 300, CapturedAt: t0.Add(12 * time.Second)},
				{Index: 2, Err: "waiting 10s for thumbnail"},
				{Index: 3, Path: "output/image/3.png", Bytes: 200, CapturedAt: t0.Add(16 * time.Second)},
			},
		},
	}
	run.Finish(nil, t0.Add(20*time.Second))
	return run
}

func TestBuildSummaryStats(t *testing.T) {
	stats := BuildSummaryStats(sampleRun())

	assert.Equal(t, 4, stats.Expected)
	assert.Equal(t, 3, stats.Captured)
	assert.Equal(t, int64(600), stats.TotalBytes)
	assert.Equal(t, 1, stats.LargestShot.Index)
	assert.Equal(t, 20*time.Second, stats.Duration)
	assert.Equal(t, 3*time.Second, stats.PerShot)
	require.Len(t, stats.Failed, 1)
	assert.Equal(t, 2, stats.Failed[0].Index)
}

func TestBuildSummaryStatsEmpty(t *testing.T) {
	stats := BuildSummaryStats(models.RunResult{})
	assert.Zero(t, stats.Captured)
	assert.Zero(t, stats.PerShot)
	assert.Empty(t, stats.Failed)
}

func TestManifestRoundTrip(t *testing.T) {
	run := sampleRun()
	run.Err = errors.New("ignored in json")
	path := filepath.Join(t.TempDir(), "nested", "manifest.json")

	n, err := WriteManifest(path, run)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, models.StatusPartial, got.Status)
	assert.Equal(t, "港区", got.Gallery.Keyword)
	assert.Len(t, got.Gallery.Shots, 4)
	assert.Nil(t, got.Err)
}

func TestNewLogger(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))

	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
