package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"keywordhub/internal/internalerr"
	"keywordhub/internal/models"
	"keywordhub/internal/store"
)

func newKeyword(text, area, source string) *models.Keyword {
	return &models.Keyword{
		Text:     text,
		Area:     models.AreaPtr(area),
		Source:   source,
		Weight:   models.WeightForSource(source),
		Active:   true,
		Priority: models.PriorityNormal,
	}
}

func TestCreateKeyword_DuplicateActive(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateKeyword(ctx, newKeyword("停电", "A", models.SourceClient)); err != nil {
		t.Fatalf("CreateKeyword() error = %v", err)
	}
	err := s.CreateKeyword(ctx, newKeyword("停电", "A", models.SourceClient))
	if !errors.Is(err, internalerr.ErrConflict) {
		t.Errorf("CreateKeyword() duplicate error = %v, want ErrConflict", err)
	}

	// Same text from a different authority is a separate record.
	if err := s.CreateKeyword(ctx, newKeyword("停电", "A", models.SourceServer)); err != nil {
		t.Errorf("CreateKeyword() server variant error = %v", err)
	}
}

func TestInTx_RollbackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx store.Store) error {
		if err := tx.CreateKeyword(ctx, newKeyword("故障", "", models.SourceServer)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want boom", err)
	}

	kws, _ := s.ListKeywords(ctx, store.KeywordFilter{IncludeInactive: true})
	if len(kws) != 0 {
		t.Errorf("ListKeywords() after rollback = %d records, want 0", len(kws))
	}
}

func TestInTx_RollbackKeepsConcurrentWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	kw := newKeyword("停电", "A", models.SourceClient)
	if err := s.CreateKeyword(ctx, kw); err != nil {
		t.Fatalf("CreateKeyword() error = %v", err)
	}
	day := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx store.Store) error {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrementHitCount(ctx, kw.ID, 1); err != nil {
				t.Errorf("IncrementHitCount() error = %v", err)
			}
			if err := s.UpsertDailyStat(ctx, models.StatDelta{KeywordID: kw.ID, Area: "A", Date: day, Hits: 1}); err != nil {
				t.Errorf("UpsertDailyStat() error = %v", err)
			}
		}()
		if _, err := tx.IncrementHitCount(ctx, kw.ID, 10); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want boom", err)
	}
	wg.Wait()

	got, _ := s.GetKeyword(ctx, kw.ID)
	if got.HitCount != 1 {
		t.Errorf("HitCount = %d, want 1", got.HitCount)
	}
	rows, _ := s.DailyStatsBetween(ctx, &kw.ID, day, day)
	if len(rows) != 1 || rows[0].HitCount != 1 {
		t.Errorf("daily rows = %+v, want one row with 1 hit", rows)
	}
}

func TestUpdateSubmissionReview_PendingOnly(t *testing.T) {
	s := New()
	ctx := context.Background()
	sub := &models.Submission{KeywordText: "停电", Area: models.AreaPtr("A"), TriggerCount: 3}
	if created, err := s.CreateSubmission(ctx, sub); err != nil || !created {
		t.Fatalf("CreateSubmission() = %v, %v", created, err)
	}

	sub.Status = models.StatusApproved
	if ok, err := s.UpdateSubmissionReview(ctx, sub); err != nil || !ok {
		t.Fatalf("UpdateSubmissionReview() = %v, %v; want stored", ok, err)
	}
	sub.Status = models.StatusRejected
	if ok, err := s.UpdateSubmissionReview(ctx, sub); err != nil || ok {
		t.Errorf("UpdateSubmissionReview() on approved = %v, %v; want not stored", ok, err)
	}
	got, _ := s.GetSubmission(ctx, sub.ID)
	if got.Status != models.StatusApproved {
		t.Errorf("Status = %q, want approved", got.Status)
	}
}

func TestInTx_Nested(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.InTx(ctx, func(tx store.Store) error {
		return tx.InTx(ctx, func(inner store.Store) error {
			return inner.CreateKeyword(ctx, newKeyword("故障", "", models.SourceServer))
		})
	})
	if err != nil {
		t.Fatalf("InTx() nested error = %v", err)
	}
	kws, _ := s.ListKeywords(ctx, store.KeywordFilter{})
	if len(kws) != 1 {
		t.Errorf("ListKeywords() = %d records, want 1", len(kws))
	}
}

func TestCreateSubmission_OnePending(t *testing.T) {
	s := New()
	ctx := context.Background()
	area := models.AreaPtr("A")

	created, err := s.CreateSubmission(ctx, &models.Submission{KeywordText: "停电", Area: area, TriggerCount: 3})
	if err != nil || !created {
		t.Fatalf("CreateSubmission() = %v, %v; want true, nil", created, err)
	}
	created, err = s.CreateSubmission(ctx, &models.Submission{KeywordText: "停电", Area: area, TriggerCount: 4})
	if err != nil || created {
		t.Errorf("CreateSubmission() second = %v, %v; want false, nil", created, err)
	}
}

func TestIncrementHitCount_Concurrent(t *testing.T) {
	s := New()
	ctx := context.Background()
	kw := newKeyword("停电", "A", models.SourceClient)
	if err := s.CreateKeyword(ctx, kw); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrementHitCount(ctx, kw.ID, 1); err != nil {
				t.Errorf("IncrementHitCount() error = %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.GetKeyword(ctx, kw.ID)
	if got.HitCount != 50 {
		t.Errorf("HitCount = %d, want 50", got.HitCount)
	}
}

func TestUpsertDailyStat_UniqueUsers(t *testing.T) {
	s := New()
	ctx := context.Background()
	kw := newKeyword("停电", "A", models.SourceClient)
	_ = s.CreateKeyword(ctx, kw)

	now := s.now()
	for _, user := range []string{"u1", "u2", "u1"} {
		err := s.UpsertDailyStat(ctx, models.StatDelta{
			KeywordID: kw.ID, Area: "A", Date: now, Hits: 1, Triggers: 1,
			UserID: user, ResponseTimeMs: 30, Success: user == "u1",
		})
		if err != nil {
			t.Fatalf("UpsertDailyStat() error = %v", err)
		}
	}

	rows, _ := s.DailyStatsBetween(ctx, &kw.ID, now, now)
	if len(rows) != 1 {
		t.Fatalf("DailyStatsBetween() rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.HitCount != 3 || row.UniqueUsers != 2 {
		t.Errorf("row = hits %d users %d, want hits 3 users 2", row.HitCount, row.UniqueUsers)
	}
	if row.AvgResponseTimeMs != 30 {
		t.Errorf("AvgResponseTimeMs = %v, want 30", row.AvgResponseTimeMs)
	}
	if want := 2.0 / 3.0; row.SuccessRate != want {
		t.Errorf("SuccessRate = %v, want %v", row.SuccessRate, want)
	}
	if row.KeywordText != "停电" {
		t.Errorf("KeywordText = %q, want 停电", row.KeywordText)
	}
}
