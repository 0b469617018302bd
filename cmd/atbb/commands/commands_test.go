package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atbb-scraper/config"
	"atbb-scraper/models"
	"atbb-scraper/storage"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHistoryListsSavedRuns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	t.Setenv("DB_DRIVER", config.DriverSQLite)
	t.Setenv("DB_PATH", dbPath)

	cfg := config.Default()
	cfg.DBPath = dbPath
	store, err := storage.Open(cfg)
	require.NoError(t, err)

	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	run := models.RunResult{
		ID:        "run-1",
		PortalURL: "https://example.test",
		Browser:   config.BrowserChrome,
		StartedAt: started,
		Gallery: models.GalleryResult{
			Keyword:  "渋谷区",
			Expected: 2,
			Shots: []models.Shot{
				{Index: 0, Path: "/out/image/0.png", Bytes: 10, CapturedAt: started},
				{Index: 1, Err: "timeout"},
			},
		},
	}
	run.Finish(nil, started.Add(time.Minute))
	require.NoError(t, store.SaveRun(context.Background(), run))
	require.NoError(t, store.Close())

	out, err := execute(t, "history", "--env-file", "", "--shots")
	require.NoError(t, err)
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "╭")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "渋谷区")
	assert.Contains(t, out, "1/2")
	assert.Contains(t, out, "/out/image/0.png")
	assert.Contains(t, out, "error: timeout")
}

func TestHistoryDisabled(t *testing.T) {
	t.Setenv("DB_DRIVER", config.DriverNone)
	_, err := execute(t, "history", "--env-file", "")
	assert.ErrorContains(t, err, "disabled")
}

func TestFlagsOverrideConfig(t *testing.T) {
	t.Setenv("DB_DRIVER", config.DriverNone)
	t.Setenv("ATBB_BROWSER", "edge")
	t.Setenv("ATBB_KEEP_OPEN", "true")

	_, err := execute(t, "history", "--env-file", "", "--browser", "chrome", "--keep-open=false", "--out", "/tmp/x")
	require.Error(t, err)

	assert.Equal(t, config.BrowserChrome, cfg.Browser)
	assert.False(t, cfg.KeepOpen)
	assert.Equal(t, "/tmp/x", cfg.OutputDir)
}

func TestRunRejectsIncompleteConfig(t *testing.T) {
	t.Setenv("DB_DRIVER", config.DriverNone)
	t.Setenv("ATBB_URL", "")
	_, err := execute(t, "run", "--env-file", "")
	assert.ErrorContains(t, err, "portal url")
}
