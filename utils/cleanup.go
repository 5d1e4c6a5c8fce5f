package utils

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// StartStagingSweeper launches a background goroutine that periodically deletes
// staged upload files older than ttl. Staged files normally move into storage
// within a request, so anything left behind was orphaned by a failure.
// It stops when ctx is done.
func StartStagingSweeper(ctx context.Context, dir string, ttl, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := SweepStaging(dir, ttl); n > 0 {
					Logger.Info("staging sweep", zap.String("dir", dir), zap.Int("removed", n))
				}
			}
		}
	}()
}

// SweepStaging removes regular files in dir last modified more than ttl ago
// and returns how many were removed.
func SweepStaging(dir string, ttl time.Duration) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			Logger.Warn("staging sweep read failed", zap.String("dir", dir), zap.Error(err))
		}
		return 0
	}
	cutoff := time.Now().Add(-ttl)
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			Logger.Warn("staging sweep remove failed", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	return removed
}
