// Package browser builds the Chrome/Edge session the gallery capture runs in
// and keeps track of its tabs.
package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/chromedp/chromedp"

	"atbb-scraper/config"
)

// edgeCandidates lists where Microsoft Edge is usually installed.
var edgeCandidates = map[string][]string{
	"linux": {"microsoft-edge", "microsoft-edge-stable", "microsoft-edge-beta"},
	"darwin": {
		"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
	},
	"windows": {
		`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
		`C:\Program Files\Microsoft\Edge\Application\msedge.exe`,
		"msedge.exe",
	},
}

// AllocatorOptions returns the exec allocator options for cfg.
func AllocatorOptions(cfg config.Config) ([]chromedp.ExecAllocatorOption, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
		chromedp.Flag("disable-notifications", true),
	)
	// Chrome refuses to start sandboxed as root, which is the norm in containers.
	if runtime.GOOS == "linux" && os.Geteuid() == 0 {
		opts = append(opts, chromedp.NoSandbox)
	}

	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	execPath := cfg.ExecPath
	if execPath == "" && cfg.Browser == config.BrowserEdge {
		p, err := FindEdge()
		if err != nil {
			return nil, err
		}
		execPath = p
	}
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}

	return opts, nil
}

// NewAllocator creates the allocator context for cfg: a remote allocator when
// RemoteURL is set, otherwise a local Chrome or Edge process.
func NewAllocator(parent context.Context, cfg config.Config) (context.Context, context.CancelFunc, error) {
	if cfg.RemoteURL != "" {
		ctx, cancel := chromedp.NewRemoteAllocator(parent, cfg.RemoteURL)
		return ctx, cancel, nil
	}

	opts, err := AllocatorOptions(cfg)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := chromedp.NewExecAllocator(parent, opts...)
	return ctx, cancel, nil
}

// FindEdge locates a Microsoft Edge binary for the current platform.
func FindEdge() (string, error) {
	for _, c := range edgeCandidates[runtime.GOOS] {
		if p, err := exec.LookPath(c); err == nil {
			return p, nil
		}
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("browser: microsoft edge not found on %s (set ATBB_EXEC_PATH)", runtime.GOOS)
}
