package history

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-litterbox/internal/litterbox"
)

// Source values recorded with each entry.
const (
	SourcePoll    = "poll"
	SourceCommand = "command"
)

// ErrDeviceIDRequired is returned when a call omits the device iotId.
var ErrDeviceIDRequired = errors.New("device id is required")

// Entry is one stored snapshot.
type Entry struct {
	ID        int64              `json:"id"`
	IoTID     string             `json:"iot_id"`
	Snapshot  litterbox.Snapshot `json:"snapshot"`
	Source    string             `json:"source"`
	CreatedAt time.Time          `json:"created_at"`
}

// Repository stores and retrieves snapshot history.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// Record stores a snapshot for the device.
	Record(ctx context.Context, iotID string, snap litterbox.Snapshot, source string) error

	// History returns up to limit entries for the device, newest first.
	History(ctx context.Context, iotID string, limit int) ([]Entry, error)

	// UsageEvents returns distinct visits, most recent first.
	UsageEvents(ctx context.Context, iotID string, limit int) ([]litterbox.UsageEvent, error)

	// Prune deletes entries older than olderThan and reports how many went.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
