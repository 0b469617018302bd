package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atbb-scraper/config"
	"atbb-scraper/models"
)

func chromePath(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests skipped in -short mode")
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no chrome binary found")
	return ""
}

// fakePortal serves a miniature copy of the portal's login, menu, search,
// result and detail pages.
type fakePortal struct {
	mu       sync.Mutex
	user     string
	keywords []string
}

func (f *fakePortal) handler() http.Handler {
	page := func(w http.ResponseWriter, title, body string) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!doctype html><html><head><meta charset="utf-8"><title>%s</title></head><body>%s</body></html>`, title, body)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		page(w, "ログイン", `
			<input id="loginFormText" value="stale">
			<input id="passFormText" type="password">
			<button id="loginSubmit" onclick="location.href='/menu?user='+encodeURIComponent(document.getElementById('loginFormText').value)">ログイン</button>`)
	})
	mux.HandleFunc("/menu", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.user = r.URL.Query().Get("user")
		f.mu.Unlock()
		page(w, "加盟店専用サイト", `
			<div class="loading">loading</div>
			<a href="#" onclick="document.getElementById('tiles').style.display='block'; return false;">物件・会社検索</a>
			<div id="tiles" style="display:none">
			  <div data-action="/atbb/nyushuSearch?from=global_menu_bukkenKensaku" onclick="location.href='/entrance'">流通物件検索</div>
			</div>
			<script>setTimeout(() => document.querySelector('.loading').remove(), 300);</script>`)
	})
	mux.HandleFunc("/entrance", func(w http.ResponseWriter, r *http.Request) {
		page(w, "加盟店専用サイト", `
			<p>他の端末でログイン中です</p>
			<button onclick="window.open('/search', '_blank')">ログアウトして続行</button>`)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		page(w, "流通物件検索", `
			<table><tr><td>
			  <label><input type="radio" name="atbbShumokuDaibunrui" value="01">賃貸居住用</label>
			  <label><input type="radio" name="atbbShumokuDaibunrui" value="02">賃貸事業用</label>
			</td></tr></table>
			<input id="freeWordSearchSubject">
			<input type="button" value="検索" onclick="location.href='/results?kw='+encodeURIComponent(document.getElementById('freeWordSearchSubject').value)">`)
	})
	mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.keywords = append(f.keywords, r.URL.Query().Get("kw"))
		f.mu.Unlock()
		page(w, "検索結果", `<button id="shosai_0" onclick="location.href='/detail'">詳細</button>`)
	})
	mux.HandleFunc("/detail", func(w http.ResponseWriter, r *http.Request) {
		page(w, "物件詳細", `
			<p class="box_title">物件写真 <span>全３枚</span></p>
			<a class="allphoto" href="#" onclick="show(); return false;">すべての写真を見る</a>
			<div id="viewer"></div>
			<script>
			function show() {
			  const f = document.createElement('iframe');
			  f.className = 'designCboxIframe';
			  f.src = '/photos';
			  f.style.width = '600px';
			  f.style.height = '400px';
			  document.getElementById('viewer').appendChild(f);
			}
			</script>`)
	})
	mux.HandleFunc("/photos", func(w http.ResponseWriter, r *http.Request) {
		page(w, "写真", `
			<div class="image-list"><ul>
			  <li onclick="document.getElementById('big').textContent='1'">1</li>
			  <li onclick="document.getElementById('big').textContent='2'">2</li>
			  <li onclick="document.getElementById('big').textContent='3'">3</li>
			</ul></div>
			<div id="big"></div>`)
	})
	return mux
}

func TestRunAgainstFakePortal(t *testing.T) {
	portal := &fakePortal{}
	srv := httptest.NewServer(portal.handler())
	defer srv.Close()

	dir := t.TempDir()
	keywordFile := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(keywordFile, []byte("古いキーワード\n渋谷区 1LDK\n\n"), 0o644))

	cfg := config.Default()
	cfg.PortalURL = srv.URL
	cfg.LoginID = "agent01"
	cfg.LoginPassword = "secret"
	cfg.ExecPath = chromePath(t)
	cfg.Headless = true
	cfg.KeepOpen = false
	cfg.CloseEntryTab = true
	cfg.KeywordFile = keywordFile
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.StepDelay = 50 * time.Millisecond
	cfg.GlobalTimeout = 2 * time.Minute

	store := &fakeStore{}
	r := &Runner{Config: cfg, Store: store, Logger: quietLogger()}

	run, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusSucceeded, run.Status)
	assert.Equal(t, "渋谷区 1LDK", run.Gallery.Keyword)
	assert.Equal(t, 3, run.Gallery.Expected)
	require.Len(t, run.Gallery.Shots, 3)
	for i, shot := range run.Gallery.Shots {
		assert.True(t, shot.OK(), shot.Err)
		assert.Equal(t, filepath.Join(cfg.ImageDir(), fmt.Sprintf("%d.png", i)), shot.Path)
		assert.FileExists(t, shot.Path)
		assert.Positive(t, shot.Bytes)
	}

	portal.mu.Lock()
	assert.Equal(t, "agent01", portal.user)
	assert.Equal(t, []string{"渋谷区 1LDK"}, portal.keywords)
	portal.mu.Unlock()

	require.Len(t, store.runs, 1)
	assert.Equal(t, run.ID, store.runs[0].ID)
	assert.FileExists(t, cfg.ManifestPath())
}

func TestRunMissingKeywordFile(t *testing.T) {
	portal := &fakePortal{}
	srv := httptest.NewServer(portal.handler())
	defer srv.Close()

	cfg := config.Default()
	cfg.PortalURL = srv.URL
	cfg.LoginID = "agent01"
	cfg.LoginPassword = "secret"
	cfg.ExecPath = chromePath(t)
	cfg.Headless = true
	cfg.KeepOpen = false
	cfg.KeywordFile = filepath.Join(t.TempDir(), "missing.txt")
	cfg.OutputDir = t.TempDir()

	r := &Runner{Config: cfg, Logger: quietLogger()}
	run, err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, models.StatusFailed, run.Status)
	assert.Empty(t, run.Gallery.Shots)
}
