package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/datacompile/internal/xlsx"
)

// ============================================================================
// TaskRegistry Tests
// ============================================================================

func TestTaskRegistry_Completes(t *testing.T) {
	r := NewTaskRegistry()
	id := r.Start(context.Background(), "RISK_SCAN", "scan Sales", func(_ context.Context, report func(int)) (any, error) {
		report(150)
		return "ok", nil
	})

	task, err := r.Wait(context.Background(), id)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if task.Status != TaskCompleted {
		t.Errorf("Status = %q, want %q", task.Status, TaskCompleted)
	}
	if task.Progress != 100 || task.Result != "ok" || task.CompletedAt == nil {
		t.Errorf("task = %+v", task)
	}
	if r.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0", r.ActiveCount())
	}
}

func TestTaskRegistry_ErrorsAndPanics(t *testing.T) {
	tests := []struct {
		name    string
		fn      TaskFunc
		wantErr string
	}{
		{"error", func(context.Context, func(int)) (any, error) { return nil, errors.New("boom") }, "boom"},
		{"panic", func(context.Context, func(int)) (any, error) { panic("bad") }, "task panicked: bad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewTaskRegistry()
			task, err := r.Wait(context.Background(), r.Start(context.Background(), "T", "", tt.fn))
			if err != nil {
				t.Fatalf("Wait: %v", err)
			}
			if task.Status != TaskError || task.Error != tt.wantErr {
				t.Errorf("task = %+v, want error %q", task, tt.wantErr)
			}
		})
	}
}

func TestTaskRegistry_DetachedFromCaller(t *testing.T) {
	r := NewTaskRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id := r.Start(ctx, "T", "", func(ctx context.Context, _ func(int)) (any, error) {
		return nil, ctx.Err()
	})
	task, err := r.Wait(context.Background(), id)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if task.Status != TaskCompleted {
		t.Errorf("Status = %q, want completed despite canceled caller", task.Status)
	}
}

func TestTaskRegistry_UnknownAndPrune(t *testing.T) {
	r := NewTaskRegistry()
	if _, err := r.Get("nope"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Get(unknown) = %v, want ErrTaskNotFound", err)
	}

	id := r.Start(context.Background(), "T", "", func(context.Context, func(int)) (any, error) { return nil, nil })
	if _, err := r.Wait(context.Background(), id); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := len(r.Recent(10)); got != 1 {
		t.Errorf("Recent = %d tasks, want 1", got)
	}
	if n := r.Prune(time.Hour); n != 0 {
		t.Errorf("Prune(1h) removed %d, want 0", n)
	}

	r.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if n := r.Prune(time.Hour); n != 1 {
		t.Errorf("Prune after 2h removed %d, want 1", n)
	}
	if err := r.Drain(context.Background()); err != nil {
		t.Errorf("Drain: %v", err)
	}
}

// ============================================================================
// TableCache Tests
// ============================================================================

func TestTableCache_FreshnessRules(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewTableCache(time.Minute)
	c.now = func() time.Time { return now }

	mtime := now.Add(-time.Hour)
	table := xlsx.NewSheet("t", xlsx.TextColumn("A", []string{"x"}))
	c.Put("Sales", table, mtime)

	if got, ok := c.Get("Sales", mtime); !ok || got != table {
		t.Errorf("Get = %v, %v; want cached table", got, ok)
	}
	if _, ok := c.Get("Sales", mtime.Add(time.Second)); ok {
		t.Errorf("Get after snapshot change should miss")
	}
	if _, ok := c.Columns("Sales", mtime); ok {
		t.Errorf("Columns before SetColumns should miss")
	}
	c.SetColumns("Sales", &ColumnInfo{})
	if _, ok := c.Columns("Sales", mtime); !ok {
		t.Errorf("Columns after SetColumns should hit")
	}
	if st := c.Stats(); st.Items != 1 || st.Bytes == 0 {
		t.Errorf("Stats = %+v", st)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("Sales", mtime); ok {
		t.Errorf("Get after TTL should miss")
	}
	if n := c.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if st := c.Stats(); st.Items != 0 {
		t.Errorf("Stats after sweep = %+v", st)
	}
}

func TestTableCache_Invalidate(t *testing.T) {
	c := NewTableCache(0)
	mtime := time.Now()
	c.Put("A", xlsx.NewSheet("a"), mtime)
	c.Put("B", xlsx.NewSheet("b"), mtime)

	c.Invalidate("A")
	if _, ok := c.Get("A", mtime); ok {
		t.Errorf("A should be gone")
	}
	if _, ok := c.Get("B", mtime); !ok {
		t.Errorf("B should remain")
	}
	c.Clear()
	if st := c.Stats(); st.Items != 0 {
		t.Errorf("Stats after Clear = %+v", st)
	}
}

// ============================================================================
// Audit Tests
// ============================================================================

type failingAudit struct{ calls int }

func (f *failingAudit) Record(context.Context, string, string, string) error {
	f.calls++
	return errors.New("mirror down")
}

func (f *failingAudit) List(context.Context, string) ([]AuditEntry, error) { return nil, nil }

func TestFileAuditLog_TrimsAndListsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	if err := store.CreateProject("Sales", ""); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	log := NewFileAuditLog(store, 2)
	mirror := &failingAudit{}
	multi := NewMultiAuditLog(log, nil, mirror)

	ctx := ContextWithClient(context.Background(), "10.0.0.1", "curl/8")
	for _, action := range []string{"UPLOAD", "DELETE_UPLOAD", "RESET"} {
		if err := multi.Record(ctx, "Sales", action, ""); err != nil {
			t.Fatalf("Record(%s): %v", action, err)
		}
	}
	if mirror.calls != 3 {
		t.Errorf("mirror calls = %d, want 3", mirror.calls)
	}

	entries, err := multi.List(context.Background(), "Sales")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(entries))
	}
	if entries[0].Action != "RESET" || entries[1].Action != "DELETE_UPLOAD" {
		t.Errorf("entries = %+v, want newest first", entries)
	}
	if entries[0].IPAddress != "10.0.0.1" || entries[0].UserAgent != "curl/8" {
		t.Errorf("client not recorded: %+v", entries[0])
	}
}
