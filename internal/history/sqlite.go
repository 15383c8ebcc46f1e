package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-litterbox/internal/litterbox"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// timestampLayout is fixed-width so created_at sorts lexically.
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLiteRepository implements Repository on the snapshot_history table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ litterbox.UsageSource = (*SQLiteRepository)(nil)

// NewSQLiteRepository creates a repository over an already migrated database.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteRepository: Repository instance ready for use
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Record inserts a snapshot row for a device. An empty source is stored as
// SourcePoll.
func (r *SQLiteRepository) Record(ctx context.Context, iotID string, snap litterbox.Snapshot, source string) error {
	if iotID == "" {
		return ErrDeviceIDRequired
	}
	if source == "" {
		source = SourcePoll
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO snapshot_history (iot_id, snapshot, work_status, last_usage, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		iotID,
		string(body),
		snap.WorkStatus,
		snap.LastUsage,
		source,
		r.now().UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot history: %w", err)
	}
	return nil
}

// History returns recent entries for a device, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - iotID: Device identifier
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []Entry: Entries ordered newest first (may be empty)
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteRepository) History(ctx context.Context, iotID string, limit int) ([]Entry, error) {
	if iotID == "" {
		return nil, ErrDeviceIDRequired
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, iot_id, snapshot, source, created_at
		 FROM snapshot_history
		 WHERE iot_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		iotID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		var body, createdAt string
		if err := rows.Scan(&entry.ID, &entry.IoTID, &body, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot history: %w", err)
		}
		if err := json.Unmarshal([]byte(body), &entry.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshalling snapshot: %w", err)
		}
		ts, err := parseTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = ts
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshot history: %w", err)
	}
	return entries, nil
}

// UsageEvents returns one event per distinct last-usage timestamp, most
// recent first. Each event carries the work status of the first row that
// reported that visit.
func (r *SQLiteRepository) UsageEvents(ctx context.Context, iotID string, limit int) ([]litterbox.UsageEvent, error) {
	if iotID == "" {
		return nil, ErrDeviceIDRequired
	}
	limit = clampLimit(limit)

	// SQLite takes bare columns from the row that MIN(id) selects.
	rows, err := r.db.QueryContext(ctx,
		`SELECT last_usage, work_status, MIN(id)
		 FROM snapshot_history
		 WHERE iot_id = ? AND last_usage > 0
		 GROUP BY last_usage
		 ORDER BY last_usage DESC
		 LIMIT ?`,
		iotID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying usage events: %w", err)
	}
	defer rows.Close()

	events := make([]litterbox.UsageEvent, 0, limit)
	for rows.Next() {
		var ms, firstID int64
		var status int
		if err := rows.Scan(&ms, &status, &firstID); err != nil {
			return nil, fmt.Errorf("scanning usage events: %w", err)
		}
		events = append(events, litterbox.UsageEvent{
			Time:       time.UnixMilli(ms).UTC(),
			WorkStatus: status,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage events: %w", err)
	}
	return events, nil
}

// Prune deletes entries older than the given duration.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := r.now().UTC().Add(-olderThan).Format(timestampLayout)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM snapshot_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting snapshot history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}
	ts, err := time.Parse(timestampLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return ts, nil
}
