// Package resolver reconciles keywords contributed by the curated (server)
// and locally learned (client) authorities.
package resolver

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"keywordhub/internal/cache"
	"keywordhub/internal/models"
	"keywordhub/internal/store"
)

// Resolver answers which keyword records apply to a term in an area.
type Resolver struct {
	store  store.KeywordStore
	active *cache.Cache[[]models.Keyword]
}

// New creates a Resolver. active caches the per-area active keyword sets.
func New(kw store.KeywordStore, active *cache.Cache[[]models.Keyword]) *Resolver {
	return &Resolver{store: kw, active: active}
}

// Resolve returns the active records for text in area ordered by ascending
// weight. At most one server and one client record are returned.
func (r *Resolver) Resolve(ctx context.Context, text string, area *string) ([]models.Keyword, error) {
	found, err := r.store.FindByText(ctx, text, area)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", text, err)
	}

	var server, client *models.Keyword
	for i := range found {
		kw := &found[i]
		if !kw.Active || kw.Text != text {
			continue
		}
		if kw.IsServer() {
			server = pick(server, kw)
		} else {
			client = pick(client, kw)
		}
	}

	out := make([]models.Keyword, 0, 2)
	if server != nil {
		out = append(out, *server)
	}
	if client != nil {
		out = append(out, *client)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return models.WeightForSource(out[i].Source) < models.WeightForSource(out[j].Source)
	})
	return out, nil
}

// pick keeps the preferred record of one authority: client over learned,
// then the oldest.
func pick(cur, cand *models.Keyword) *models.Keyword {
	if cur == nil {
		return cand
	}
	if cur.Source != cand.Source {
		if cand.Source == models.SourceClient {
			return cand
		}
		return cur
	}
	if cand.CreatedAt.Before(cur.CreatedAt) {
		return cand
	}
	return cur
}

// ActiveKeywords returns one record per keyword text visible in area:
// keywords scoped to area plus unscoped ones. For each text the lowest
// weight wins and an area-scoped record beats an unscoped one. The result is
// ordered by descending priority and must not be modified.
func (r *Resolver) ActiveKeywords(ctx context.Context, area *string) ([]models.Keyword, error) {
	return r.active.GetOrLoad(ctx, cacheKey(area), func(ctx context.Context) ([]models.Keyword, error) {
		return r.loadActive(ctx, area)
	})
}

func (r *Resolver) loadActive(ctx context.Context, area *string) ([]models.Keyword, error) {
	scoped, err := r.store.FindActiveByArea(ctx, area)
	if err != nil {
		return nil, err
	}
	candidates := slices.Clone(scoped)
	if area != nil {
		global, err := r.store.FindActiveByArea(ctx, nil)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, global...)
	}

	best := make(map[string]models.Keyword, len(candidates))
	for _, kw := range candidates {
		if !kw.Active {
			continue
		}
		cur, ok := best[kw.Text]
		if !ok || better(kw, cur) {
			best[kw.Text] = kw
		}
	}

	out := make([]models.Keyword, 0, len(best))
	for _, kw := range best {
		out = append(out, kw)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Text < out[j].Text
	})
	return out, nil
}

func better(a, b models.Keyword) bool {
	wa, wb := models.WeightForSource(a.Source), models.WeightForSource(b.Source)
	if wa != wb {
		return wa < wb
	}
	if (a.Area != nil) != (b.Area != nil) {
		return a.Area != nil
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// Invalidate drops cached sets affected by a change in area. A change to an
// unscoped keyword affects every area.
func (r *Resolver) Invalidate(area *string) {
	if area == nil {
		r.active.Purge()
		return
	}
	r.active.Invalidate(cacheKey(area))
}

func cacheKey(area *string) string {
	if area == nil {
		return "*"
	}
	return "area:" + *area
}
