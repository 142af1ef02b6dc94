// Package redundancy finds near-duplicate keywords and merges them.
package redundancy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"keywordhub/internal/internalerr"
	"keywordhub/internal/models"
	"keywordhub/internal/similarity"
	"keywordhub/internal/store"
)

// Confidence bands of a detected pair.
const (
	ConfidenceHigh   = "high"
	ConfidenceReview = "review"
)

// Default similarity thresholds.
const (
	DefaultHighThreshold   = 0.90
	DefaultReviewThreshold = 0.80
)

// Invalidator drops cached keyword sets for an area.
type Invalidator interface {
	Invalidate(area *string)
}

// RuleInvalidator drops cached keyword trigger rules.
type RuleInvalidator interface {
	InvalidateRules()
}

// Options tunes a Detector. Zero values take the defaults.
type Options struct {
	Metric          similarity.Metric
	HighThreshold   float64
	ReviewThreshold float64
}

// Detector scans keyword sets for near duplicates.
type Detector struct {
	store  store.Store
	cache  Invalidator
	rules  RuleInvalidator
	metric similarity.Metric
	high   float64
	review float64
	now    func() time.Time
}

// New creates a Detector. cache may be nil.
func New(st store.Store, cache Invalidator, opts Options) *Detector {
	d := &Detector{
		store:  st,
		cache:  cache,
		metric: opts.Metric,
		high:   opts.HighThreshold,
		review: opts.ReviewThreshold,
		now:    time.Now,
	}
	if d.metric.NGram <= 0 {
		d.metric = similarity.DefaultMetric()
	}
	if d.high <= 0 {
		d.high = DefaultHighThreshold
	}
	if d.review <= 0 || d.review > d.high {
		d.review = DefaultReviewThreshold
	}
	return d
}

// SetRuleCache registers the trigger rule cache to drop after a merge moves
// trigger rules between keywords.
func (d *Detector) SetRuleCache(rules RuleInvalidator) {
	d.rules = rules
}

// Candidate is one detected pair with an optional merge suggestion.
type Candidate struct {
	Pair       models.RedundancyPair `json:"pair"`
	KeywordA   models.Keyword        `json:"keyword_a"`
	KeywordB   models.Keyword        `json:"keyword_b"`
	Confidence string                `json:"confidence"`

	// Keep and Drop are only set for high-confidence pairs.
	Keep *uuid.UUID `json:"keep,omitempty"`
	Drop *uuid.UUID `json:"drop,omitempty"`
}

// Scan compares every pair of active keywords scoped to area and records
// the pairs at or above the review threshold. Pairs a reviewer already kept
// are recorded again but left out of the result. Records with identical
// text are distinct authorities for the same term and are not compared.
func (d *Detector) Scan(ctx context.Context, area *string) ([]Candidate, error) {
	kws, err := d.store.FindActiveByArea(ctx, area)
	if err != nil {
		return nil, fmt.Errorf("scan area %q: %w", models.AreaKey(area), err)
	}

	var out []Candidate
	for i := 0; i < len(kws); i++ {
		for j := i + 1; j < len(kws); j++ {
			a, b := kws[i], kws[j]
			if a.Text == b.Text {
				continue
			}
			sim := d.metric.Similarity(a.Text, b.Text)
			if sim < d.review {
				continue
			}

			pair := models.NewRedundancyPair(a.ID, b.ID, sim)
			if err := d.store.UpsertRedundancyPair(ctx, &pair); err != nil {
				return nil, fmt.Errorf("record pair %q/%q: %w", a.Text, b.Text, err)
			}
			if pair.Status != models.PairDetected {
				continue
			}
			if pair.KeywordIDA != a.ID {
				a, b = b, a
			}

			c := Candidate{Pair: pair, KeywordA: a, KeywordB: b, Confidence: ConfidenceReview}
			if sim >= d.high {
				c.Confidence = ConfidenceHigh
				keep, drop := suggest(a, b)
				c.Keep, c.Drop = &keep.ID, &drop.ID
			}
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Pair.Similarity > out[j].Pair.Similarity
	})
	return out, nil
}

// suggest prefers the higher priority, then the shorter text.
func suggest(a, b models.Keyword) (keep, drop models.Keyword) {
	if a.Priority != b.Priority {
		if a.Priority > b.Priority {
			return a, b
		}
		return b, a
	}
	if utf8.RuneCountInString(b.Text) < utf8.RuneCountInString(a.Text) {
		return b, a
	}
	return a, b
}

// Merge folds dropID into keepID: descriptions are concatenated, hit
// counts summed, statistics, logs and trigger rules re-pointed, dropID is
// deactivated and the pair is marked merged. All of it commits or none.
func (d *Detector) Merge(ctx context.Context, keepID, dropID uuid.UUID) (*models.Keyword, error) {
	if keepID == dropID {
		return nil, fmt.Errorf("cannot merge keyword %s into itself: %w", keepID, internalerr.ErrValidation)
	}

	var kept, dropped *models.Keyword
	err := d.store.InTx(ctx, func(tx store.Store) error {
		keep, err := tx.GetKeyword(ctx, keepID)
		if err != nil {
			return err
		}
		drop, err := tx.GetKeyword(ctx, dropID)
		if err != nil {
			return err
		}
		if !keep.Active || !drop.Active {
			return fmt.Errorf("merge needs two active keywords: %w", internalerr.ErrConflict)
		}

		if err := tx.RepointKeywordReferences(ctx, drop.ID, keep.ID); err != nil {
			return err
		}
		if drop.HitCount > 0 {
			if _, err := tx.IncrementHitCount(ctx, keep.ID, drop.HitCount); err != nil {
				return err
			}
		}
		if err := tx.DeactivateKeyword(ctx, drop.ID); err != nil {
			return err
		}
		keep.Description = joinDescriptions(keep.Description, drop.Description)
		if err := tx.UpdateKeyword(ctx, keep); err != nil {
			return err
		}

		pair := models.NewRedundancyPair(keep.ID, drop.ID, d.metric.Similarity(keep.Text, drop.Text))
		if err := tx.UpsertRedundancyPair(ctx, &pair); err != nil {
			return err
		}
		if err := tx.SetRedundancyPairStatus(ctx, keep.ID, drop.ID, models.PairMerged, d.now()); err != nil {
			return err
		}

		kept, dropped = keep, drop
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("merge %s into %s: %w", dropID, keepID, err)
	}

	if d.cache != nil {
		d.cache.Invalidate(kept.Area)
		d.cache.Invalidate(dropped.Area)
	}
	if d.rules != nil {
		d.rules.InvalidateRules()
	}
	return kept, nil
}

func joinDescriptions(keep, drop string) string {
	keep, drop = strings.TrimSpace(keep), strings.TrimSpace(drop)
	switch {
	case drop == "" || drop == keep:
		return keep
	case keep == "":
		return drop
	default:
		return keep + "; " + drop
	}
}

// Keep marks the pair as intentionally distinct. Keywords are not touched.
func (d *Detector) Keep(ctx context.Context, idA, idB uuid.UUID) error {
	if err := d.store.SetRedundancyPairStatus(ctx, idA, idB, models.PairKeptBoth, d.now()); err != nil {
		return fmt.Errorf("keep pair %s/%s: %w", idA, idB, err)
	}
	return nil
}

// Areas lists every area holding active keywords, plus the unscoped set
// (nil) first.
func (d *Detector) Areas(ctx context.Context) ([]*string, error) {
	names, err := d.store.ListAreas(ctx)
	if err != nil {
		return nil, err
	}
	areas := []*string{nil}
	for _, name := range names {
		areas = append(areas, models.AreaPtr(name))
	}
	return areas, nil
}
