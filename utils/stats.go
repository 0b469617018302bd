package utils

import (
	"time"

	"atbb-scraper/models"
)

type FailedShot struct {
	Index int
	Err   string
}

type SummaryStats struct {
	Expected    int
	Captured    int
	Failed      []FailedShot
	TotalBytes  int64
	LargestShot models.Shot
	Duration    time.Duration
	PerShot     time.Duration
}

func BuildSummaryStats(run models.RunResult) SummaryStats {
	stats := SummaryStats{
		Expected: run.Gallery.Expected,
		Duration: run.Duration(),
	}

	var first, last time.Time
	for _, shot := range run.Gallery.Shots {
		if !shot.OK() {
			stats.Failed = append(stats.Failed, FailedShot{Index: shot.Index, Err: shot.Err})
			continue
		}
		stats.Captured++
		stats.TotalBytes += shot.Bytes
		if shot.Bytes > stats.LargestShot.Bytes {
			stats.LargestShot = shot
		}
		if first.IsZero() || shot.CapturedAt.Before(first) {
			first = shot.CapturedAt
		}
		if shot.CapturedAt.After(last) {
			last = shot.CapturedAt
		}
	}

	if stats.Captured > 1 {
		stats.PerShot = last.Sub(first) / time.Duration(stats.Captured-1)
	}
	return stats
}
