package history

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-litterbox/internal/litterbox"
)

// recordTimeout bounds a single insert triggered by a snapshot update.
const recordTimeout = 5 * time.Second

// Logger is the logging interface used by Recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

// Recorder writes snapshots to a Repository when they differ from the last
// one it stored. Observe has the signature of a controller update listener.
type Recorder struct {
	repo   Repository
	iotID  string
	source string
	logger Logger

	mu      sync.Mutex
	last    litterbox.Snapshot
	hasLast bool
}

// NewRecorder creates a Recorder for one device. logger may be nil.
func NewRecorder(repo Repository, iotID string, logger Logger) *Recorder {
	return &Recorder{repo: repo, iotID: iotID, source: SourcePoll, logger: logger}
}

// Observe stores snap unless it equals the previously stored snapshot.
// A failed insert is logged and retried on the next differing update.
func (r *Recorder) Observe(snap litterbox.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hasLast && r.last == snap {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := r.repo.Record(ctx, r.iotID, snap, r.source); err != nil {
		if r.logger != nil {
			r.logger.Warn("recording snapshot history failed", "iot_id", r.iotID, "error", err)
		}
		return
	}
	r.last = snap
	r.hasLast = true
}
