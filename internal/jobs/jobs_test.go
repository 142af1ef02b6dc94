package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"keywordhub/internal/models"
	"keywordhub/internal/redundancy"
	"keywordhub/internal/store/memstore"
	"keywordhub/internal/testutil"
)

func TestRedundancyScanner_ScanAll(t *testing.T) {
	st := memstore.New()
	testutil.CreateKeyword(t, st, "invoice problem", "A", models.SourceServer)
	testutil.CreateKeyword(t, st, "invoice problems", "A", models.SourceServer)
	testutil.CreateKeyword(t, st, "transformer", "B", models.SourceServer)
	testutil.CreateKeyword(t, st, "transfomer", "B", models.SourceServer)
	testutil.CreateKeyword(t, st, "meter reading", "", models.SourceServer)

	s := NewRedundancyScanner(redundancy.New(st, nil, redundancy.Options{}), time.Hour)
	if got := s.ScanAll(context.Background()); got != 2 {
		t.Fatalf("ScanAll() = %d, want 2", got)
	}

	pairs, err := st.ListRedundancyPairs(context.Background(), models.PairDetected)
	if err != nil {
		t.Fatalf("ListRedundancyPairs() error = %v", err)
	}
	if len(pairs) != 2 {
		t.Errorf("recorded pairs = %d, want 2", len(pairs))
	}
}

type flakyScanner struct {
	scanned []string
}

func (f *flakyScanner) Areas(ctx context.Context) ([]*string, error) {
	return []*string{nil, models.AreaPtr("broken"), models.AreaPtr("ok")}, nil
}

func (f *flakyScanner) Scan(ctx context.Context, area *string) ([]redundancy.Candidate, error) {
	f.scanned = append(f.scanned, models.AreaKey(area))
	if models.AreaKey(area) == "broken" {
		return nil, errors.New("boom")
	}
	return make([]redundancy.Candidate, 1), nil
}

func TestRedundancyScanner_SkipsFailingArea(t *testing.T) {
	f := &flakyScanner{}
	s := NewRedundancyScanner(f, time.Hour)

	if got := s.ScanAll(context.Background()); got != 2 {
		t.Errorf("ScanAll() = %d, want 2", got)
	}
	if len(f.scanned) != 3 {
		t.Errorf("scanned %v, want all three areas", f.scanned)
	}
}

func TestRedundancyScanner_StopsOnCancel(t *testing.T) {
	f := &flakyScanner{}
	s := NewRedundancyScanner(f, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}

func TestCleanup_Run(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -200)
	kwID := uuid.New()

	st.SeedDailyStat(models.DailyKeywordStat{KeywordID: kwID, Area: "A", Date: old, HitCount: 3})
	st.SeedDailyStat(models.DailyKeywordStat{KeywordID: kwID, Area: "A", Date: now, HitCount: 1})
	for _, at := range []time.Time{old, now} {
		if err := st.InsertTriggerLog(ctx, &models.KeywordTriggerLog{KeywordID: kwID, TriggeredAt: at}); err != nil {
			t.Fatalf("InsertTriggerLog() error = %v", err)
		}
		if err := st.InsertExecutionLog(ctx, &models.RuleExecutionLog{RuleID: uuid.New(), ExecutionTime: at}); err != nil {
			t.Fatalf("InsertExecutionLog() error = %v", err)
		}
	}

	c := NewCleanup(st, time.Hour, 180)
	c.now = func() time.Time { return now }

	res, err := c.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.TriggerLogs != 1 || res.ExecutionLogs != 1 || res.DailyStats != 1 {
		t.Errorf("Run() = %+v, want one of each removed", res)
	}
	if got := len(st.TriggerLogs()); got != 1 {
		t.Errorf("remaining trigger logs = %d, want 1", got)
	}
	if got := len(st.ExecutionLogs()); got != 1 {
		t.Errorf("remaining execution logs = %d, want 1", got)
	}

	stats, err := st.DailyStatsBetween(ctx, &kwID, old.AddDate(0, 0, -1), now)
	if err != nil {
		t.Fatalf("DailyStatsBetween() error = %v", err)
	}
	if len(stats) != 1 || !stats[0].Date.Equal(models.Day(now)) {
		t.Errorf("remaining stats = %+v, want only today's row", stats)
	}
}
