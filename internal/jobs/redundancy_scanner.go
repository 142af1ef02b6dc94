// Package jobs runs periodic background maintenance.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"keywordhub/internal/models"
	"keywordhub/internal/redundancy"
)

// AreaScanner finds near-duplicate keywords area by area.
type AreaScanner interface {
	Areas(ctx context.Context) ([]*string, error)
	Scan(ctx context.Context, area *string) ([]redundancy.Candidate, error)
}

// RedundancyScanner periodically scans every area for redundant keywords so
// that reviewers find fresh pairs without triggering a scan themselves.
type RedundancyScanner struct {
	detector AreaScanner
	interval time.Duration
}

// NewRedundancyScanner creates a scanner.
func NewRedundancyScanner(detector AreaScanner, interval time.Duration) *RedundancyScanner {
	return &RedundancyScanner{detector: detector, interval: interval}
}

// Start scans immediately and then on every tick until ctx is cancelled.
func (s *RedundancyScanner) Start(ctx context.Context) {
	slog.Info("redundancy scanner started", "interval", s.interval)

	s.ScanAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("redundancy scanner stopped")
			return
		case <-ticker.C:
			s.ScanAll(ctx)
		}
	}
}

// ScanAll scans each area once and returns the number of open pairs found.
// A failing area is logged and skipped.
func (s *RedundancyScanner) ScanAll(ctx context.Context) int {
	areas, err := s.detector.Areas(ctx)
	if err != nil {
		slog.Error("redundancy scanner: list areas", "error", err)
		return 0
	}

	found := 0
	for _, area := range areas {
		select {
		case <-ctx.Done():
			return found
		default:
		}

		candidates, err := s.detector.Scan(ctx, area)
		if err != nil {
			slog.Error("redundancy scanner: scan failed", "area", models.AreaKey(area), "error", err)
			continue
		}
		found += len(candidates)
	}
	if found > 0 {
		slog.Info("redundancy scanner: open pairs", "count", found, "areas", len(areas))
	}
	return found
}
