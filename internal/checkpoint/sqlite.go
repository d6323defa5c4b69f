package checkpoint

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"shardwork/internal/errors"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db      *sql.DB
	mu      sync.RWMutex
	closed  bool
	writeMu sync.Mutex
}

// NewSQLiteStore opens (or creates) the ledger database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(60000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open ledger database")
	}

	// workers write through writeMu anyway; a small pool keeps readers unblocked
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(10 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create ledger tables")
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS items (
		source TEXT NOT NULL PRIMARY KEY,
		destination TEXT NOT NULL,
		metadata TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		last_error TEXT,
		run_id TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);
	CREATE INDEX IF NOT EXISTS idx_items_run_id ON items(run_id);
	`

	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("ledger store is closed")
	}
	return nil
}

// GetItem retrieves the latest record for source, nil if none exists
func (s *SQLiteStore) GetItem(ctx context.Context, source string) (*ItemRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var result *ItemRecord
	err := s.retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `
		SELECT source, destination, metadata, status, attempts, last_error, run_id, updated_at
		FROM items WHERE source = ?
		`, source)

		record, err := scanItem(row)
		if err == sql.ErrNoRows {
			result = nil
			return nil
		}
		result = record
		return err
	})
	return result, err
}

// SaveItem inserts or updates the record for record.Source
func (s *SQLiteStore) SaveItem(ctx context.Context, record *ItemRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	// Serialize writes to avoid SQLITE_BUSY from concurrent workers
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}

	return s.retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
		INSERT INTO items
		(source, destination, metadata, status, attempts, last_error, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			destination = excluded.destination,
			metadata = excluded.metadata,
			status = excluded.status,
			attempts = excluded.attempts,
			last_error = excluded.last_error,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at
		`,
			record.Source,
			record.Destination,
			record.Metadata,
			string(record.Status),
			record.Attempts,
			record.LastError,
			record.RunID,
			record.UpdatedAt,
		)
		if err != nil {
			return errors.Wrapf(err, "saving ledger record for %s", record.Source)
		}
		return nil
	})
}

// ListFailedItems returns all failed items, oldest first
func (s *SQLiteStore) ListFailedItems(ctx context.Context) ([]*ItemRecord, error) {
	return s.listItemsByStatus(ctx, StatusFailed)
}

func (s *SQLiteStore) listItemsByStatus(ctx context.Context, status ItemStatus) ([]*ItemRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT source, destination, metadata, status, attempts, last_error, run_id, updated_at
	FROM items WHERE status = ?
	ORDER BY updated_at ASC, source ASC
	`, string(status))
	if err != nil {
		return nil, errors.Wrap(err, "querying ledger")
	}
	defer rows.Close()

	var records []*ItemRecord
	for rows.Next() {
		record, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// CountByStatus returns the number of items recorded per status
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[ItemStatus]int, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM items GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "counting ledger items")
	}
	defer rows.Close()

	counts := make(map[ItemStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[ItemStatus(status)] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*ItemRecord, error) {
	var record ItemRecord
	var status string
	var lastError sql.NullString

	err := row.Scan(
		&record.Source,
		&record.Destination,
		&record.Metadata,
		&status,
		&record.Attempts,
		&lastError,
		&record.RunID,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = ItemStatus(status)
	if lastError.Valid {
		record.LastError = lastError.String
	}
	return &record, nil
}

// retryOnBusy retries the operation while SQLite reports lock contention
func (s *SQLiteStore) retryOnBusy(ctx context.Context, operation func() error) error {
	const maxRetries = 10
	baseDelay := 50 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err = operation(); err == nil || !isSQLiteBusyError(err) {
			return err
		}

		delay := baseDelay*time.Duration(1<<uint(attempt)) + time.Duration(attempt*10)*time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// isSQLiteBusyError checks if the error is a SQLite busy error
func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	errorStr := err.Error()
	return strings.Contains(errorStr, "database is locked") ||
		strings.Contains(errorStr, "SQLITE_BUSY")
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
