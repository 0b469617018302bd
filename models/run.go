package models

import "time"

// Run statuses persisted in the run history.
const (
	StatusSucceeded = "succeeded"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// Shot is one captured gallery screenshot.
type Shot struct {
	Index      int       `json:"index"`
	Path       string    `json:"path"`
	Bytes      int64     `json:"bytes"`
	CapturedAt time.Time `json:"captured_at"`
	Err        string    `json:"error,omitempty"`
}

// OK reports whether the screenshot was written.
func (s Shot) OK() bool {
	return s.Err == ""
}

// GalleryResult is what the search-and-capture script produced.
type GalleryResult struct {
	Keyword  string `json:"keyword"`
	Expected int    `json:"expected"`
	Shots    []Shot `json:"shots"`
	TabID    string `json:"tab_id,omitempty"`
}

// Captured counts the screenshots that were written.
func (g GalleryResult) Captured() int {
	n := 0
	for _, s := range g.Shots {
		if s.OK() {
			n++
		}
	}
	return n
}

// RunResult describes one end-to-end run.
type RunResult struct {
	ID         string        `json:"id"`
	PortalURL  string        `json:"portal_url"`
	Browser    string        `json:"browser"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Status     string        `json:"status"`
	Gallery    GalleryResult `json:"gallery"`
	Err        error         `json:"-"`
	ErrText    string        `json:"error,omitempty"`
}

// Duration is the wall time of the run.
func (r RunResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Finish stamps the end time and derives Status from err and the shots.
func (r *RunResult) Finish(err error, now time.Time) {
	r.FinishedAt = now
	r.Err = err
	switch {
	case err != nil:
		r.Status = StatusFailed
		r.ErrText = err.Error()
	case r.Gallery.Captured() < r.Gallery.Expected:
		r.Status = StatusPartial
	default:
		r.Status = StatusSucceeded
	}
}

// TabInfo describes one open browser tab.
type TabInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}
