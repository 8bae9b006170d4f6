package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/blocksync/internal/domain/model"
	"github.com/ericfisherdev/blocksync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.HandleStore = (*HandleRepo)(nil)

const handleColumns = `id, key, handle, platform, block_status, platform_status, last_changed`

// HandleRepo is the SQLite implementation of the HandleStore port interface.
type HandleRepo struct {
	db  *DB
	now func() time.Time
}

// NewHandleRepo creates a new HandleRepo backed by the given DB.
func NewHandleRepo(db *DB) *HandleRepo {
	return &HandleRepo{db: db, now: time.Now}
}

// Add inserts a record for the pair. Idempotent: if the pair is already
// present the stored intent is left as-is and (false, nil) is returned.
func (r *HandleRepo) Add(ctx context.Context, handle string, platform model.Platform, blockStatus model.BlockStatus, platformStatus model.PlatformStatus) (bool, error) {
	key := model.HandleKey(platform, handle)

	const query = `
		INSERT INTO handles (key, handle, platform, block_status, platform_status, last_changed)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING`

	res, err := r.db.Writer.ExecContext(ctx, query,
		key, handle, string(platform), string(blockStatus), string(platformStatus), formatTime(r.now()),
	)
	if err != nil {
		return false, fmt.Errorf("add handle %q: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add handle %q rows affected: %w", key, err)
	}
	if n == 0 {
		slog.Debug("handle already exists", "key", key)
		return false, nil
	}
	return true, nil
}

// UpdateStatus upserts the record and always refreshes last_changed.
func (r *HandleRepo) UpdateStatus(ctx context.Context, handle string, platform model.Platform, blockStatus model.BlockStatus, platformStatus model.PlatformStatus) error {
	key := model.HandleKey(platform, handle)

	const query = `
		INSERT INTO handles (key, handle, platform, block_status, platform_status, last_changed)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			block_status    = excluded.block_status,
			platform_status = excluded.platform_status,
			last_changed    = excluded.last_changed`

	_, err := r.db.Writer.ExecContext(ctx, query,
		key, handle, string(platform), string(blockStatus), string(platformStatus), formatTime(r.now()),
	)
	if err != nil {
		return fmt.Errorf("update handle %q: %w", key, err)
	}
	return nil
}

// UpdatePlatformStatus refreshes platform_status and last_changed of an
// existing record, leaving block_status alone.
func (r *HandleRepo) UpdatePlatformStatus(ctx context.Context, handle string, platform model.Platform, platformStatus model.PlatformStatus) error {
	key := model.HandleKey(platform, handle)

	const query = `UPDATE handles SET platform_status = ?, last_changed = ? WHERE key = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, string(platformStatus), formatTime(r.now()), key); err != nil {
		return fmt.Errorf("update platform status %q: %w", key, err)
	}
	return nil
}

// TransitionStatus is a compare-and-set on block_status.
func (r *HandleRepo) TransitionStatus(ctx context.Context, handle string, platform model.Platform, from, to model.BlockStatus, platformStatus model.PlatformStatus) (bool, error) {
	key := model.HandleKey(platform, handle)

	const query = `
		UPDATE handles SET
			block_status    = ?,
			platform_status = COALESCE(NULLIF(?, ''), platform_status),
			last_changed    = ?
		WHERE key = ? AND block_status = ?`

	res, err := r.db.Writer.ExecContext(ctx, query,
		string(to), string(platformStatus), formatTime(r.now()), key, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("transition handle %q %s->%s: %w", key, from, to, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition handle %q rows affected: %w", key, err)
	}
	if n == 0 {
		slog.Debug("handle transition skipped", "key", key, "from", from, "to", to)
		return false, nil
	}
	return true, nil
}

// Get returns the record for the pair, or (nil, nil) if it does not exist.
// A stored status that no longer parses is returned as an error.
func (r *HandleRepo) Get(ctx context.Context, handle string, platform model.Platform) (*model.HandleRecord, error) {
	key := model.HandleKey(platform, handle)

	query := `SELECT ` + handleColumns + ` FROM handles WHERE key = ?`
	rec, err := scanHandle(r.db.Reader.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get handle %q: %w", key, err)
	}
	return &rec, nil
}

// GetByStatus returns records in any of the given statuses, in insertion order.
func (r *HandleRepo) GetByStatus(ctx context.Context, statuses ...model.BlockStatus) ([]model.HandleRecord, error) {
	if len(statuses) == 0 {
		return []model.HandleRecord{}, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		placeholders[i] = "?"
		args[i] = string(s)
	}

	query := `SELECT ` + handleColumns + ` FROM handles WHERE block_status IN (` +
		strings.Join(placeholders, ", ") + `) ORDER BY id`
	return r.queryHandles(ctx, "get handles by status", query, args...)
}

// GetByPlatform returns all records for the platform, in insertion order.
func (r *HandleRepo) GetByPlatform(ctx context.Context, platform model.Platform) ([]model.HandleRecord, error) {
	query := `SELECT ` + handleColumns + ` FROM handles WHERE platform = ? ORDER BY id`
	return r.queryHandles(ctx, "get handles by platform", query, string(platform))
}

// GetByPlatformAndStatus returns records for the platform with the given status.
func (r *HandleRepo) GetByPlatformAndStatus(ctx context.Context, platform model.Platform, status model.BlockStatus) ([]model.HandleRecord, error) {
	query := `SELECT ` + handleColumns + ` FROM handles WHERE platform = ? AND block_status = ? ORDER BY id`
	return r.queryHandles(ctx, "get handles by platform and status", query, string(platform), string(status))
}

// CountByStatus returns the record count per block status for the platform.
// Statuses with no records are present with a zero count.
func (r *HandleRepo) CountByStatus(ctx context.Context, platform model.Platform) (map[model.BlockStatus]int, error) {
	const query = `SELECT block_status, COUNT(*) FROM handles WHERE platform = ? GROUP BY block_status`
	rows, err := r.db.Reader.QueryContext(ctx, query, string(platform))
	if err != nil {
		return nil, fmt.Errorf("count handles for %q: %w", platform, err)
	}
	defer rows.Close()

	counts := make(map[model.BlockStatus]int, len(model.AllBlockStatuses()))
	for _, s := range model.AllBlockStatuses() {
		counts[s] = 0
	}

	for rows.Next() {
		var raw string
		var n int
		if err := rows.Scan(&raw, &n); err != nil {
			return nil, fmt.Errorf("scan handle count: %w", err)
		}
		status, err := model.ParseBlockStatus(raw)
		if err != nil {
			slog.Warn("skipping unknown block status in count", "platform", platform, "error", err)
			continue
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate handle counts: %w", err)
	}

	return counts, nil
}

// queryHandles runs a multi-row query. Rows with unparseable values are
// logged and skipped so a single corrupt record cannot hide the rest.
func (r *HandleRepo) queryHandles(ctx context.Context, op, query string, args ...any) ([]model.HandleRecord, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	records := []model.HandleRecord{}
	for rows.Next() {
		rec, err := scanHandle(rows)
		if err != nil {
			var scanErr *corruptRowError
			if errors.As(err, &scanErr) {
				slog.Warn("skipping corrupt handle record", "key", scanErr.key, "error", scanErr.err)
				continue
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}

	return records, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// corruptRowError wraps a value parse or decrypt failure for a row that
// scanned fine. List queries skip such rows.
type corruptRowError struct {
	key string
	err error
}

func (e *corruptRowError) Error() string {
	return fmt.Sprintf("corrupt record %q: %v", e.key, e.err)
}

func (e *corruptRowError) Unwrap() error {
	return e.err
}

func scanHandle(s rowScanner) (model.HandleRecord, error) {
	var rec model.HandleRecord
	var platform, blockStatus, platformStatus, lastChanged string

	if err := s.Scan(&rec.ID, &rec.Key, &rec.Handle, &platform, &blockStatus, &platformStatus, &lastChanged); err != nil {
		return model.HandleRecord{}, err
	}

	var err error
	rec.Platform, err = model.ParsePlatform(platform)
	if err != nil {
		return model.HandleRecord{}, &corruptRowError{key: rec.Key, err: err}
	}
	rec.BlockStatus, err = model.ParseBlockStatus(blockStatus)
	if err != nil {
		return model.HandleRecord{}, &corruptRowError{key: rec.Key, err: err}
	}
	rec.PlatformStatus, err = model.ParsePlatformStatus(platformStatus)
	if err != nil {
		return model.HandleRecord{}, &corruptRowError{key: rec.Key, err: err}
	}
	rec.LastChanged, err = parseTime(lastChanged)
	if err != nil {
		return model.HandleRecord{}, &corruptRowError{key: rec.Key, err: err}
	}

	return rec, nil
}

// formatTime renders t for storage in a TEXT column.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime attempts to parse a time string in common SQLite and RFC3339 formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
