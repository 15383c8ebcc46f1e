package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-litterbox/internal/litterbox"
)

type memoryRepo struct {
	mu      sync.Mutex
	fail    error
	records []litterbox.Snapshot
}

func (m *memoryRepo) Record(_ context.Context, _ string, snap litterbox.Snapshot, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.records = append(m.records, snap)
	return nil
}

func (m *memoryRepo) History(context.Context, string, int) ([]Entry, error) { return nil, nil }

func (m *memoryRepo) UsageEvents(context.Context, string, int) ([]litterbox.UsageEvent, error) {
	return nil, nil
}

func (m *memoryRepo) Prune(context.Context, time.Duration) (int64, error) { return 0, nil }

type warnCounter struct {
	mu    sync.Mutex
	count int
}

func (w *warnCounter) Warn(string, ...any) {
	w.mu.Lock()
	w.count++
	w.mu.Unlock()
}

func TestRecorder_SkipsUnchanged(t *testing.T) {
	repo := &memoryRepo{}
	rec := NewRecorder(repo, testIoTID, nil)

	a := litterbox.Snapshot{WorkStatus: 0, LastUsage: 1}
	b := litterbox.Snapshot{WorkStatus: 1, LastUsage: 1}

	rec.Observe(a)
	rec.Observe(a)
	rec.Observe(b)
	rec.Observe(b)
	rec.Observe(a)

	if len(repo.records) != 3 {
		t.Fatalf("recorded %d snapshots, want 3", len(repo.records))
	}
}

func TestRecorder_RetriesAfterFailure(t *testing.T) {
	repo := &memoryRepo{fail: errors.New("disk full")}
	logger := &warnCounter{}
	rec := NewRecorder(repo, testIoTID, logger)

	snap := litterbox.Snapshot{WorkStatus: 3}
	rec.Observe(snap)
	if logger.count != 1 {
		t.Errorf("warnings = %d, want 1", logger.count)
	}

	repo.fail = nil
	rec.Observe(snap)
	if len(repo.records) != 1 {
		t.Errorf("recorded %d snapshots after recovery, want 1", len(repo.records))
	}
}
