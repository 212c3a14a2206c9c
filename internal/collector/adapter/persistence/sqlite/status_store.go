package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kvstore-collector/internal/collector/domain/model"
	"kvstore-collector/internal/collector/domain/repository"
	apperrors "kvstore-collector/internal/shared/errors"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS run_status (
	checkpoint_key   TEXT PRIMARY KEY,
	run_id           TEXT NOT NULL DEFAULT '',
	report_name      TEXT NOT NULL,
	report_id        TEXT NOT NULL,
	status           TEXT NOT NULL,
	kvstore          TEXT NOT NULL DEFAULT '',
	updated          TEXT NOT NULL,
	records_index    TEXT NOT NULL,
	records_kvstore  TEXT NOT NULL,
	records_updated  TEXT NOT NULL,
	records_failed   TEXT NOT NULL,
	records_filtered TEXT NOT NULL,
	message          TEXT NOT NULL
);`

const upsertSQL = `
INSERT INTO run_status (
	checkpoint_key, run_id, report_name, report_id, status, kvstore, updated,
	records_index, records_kvstore, records_updated, records_failed, records_filtered, message
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(checkpoint_key) DO UPDATE SET
	run_id = excluded.run_id,
	report_name = excluded.report_name,
	report_id = excluded.report_id,
	status = excluded.status,
	kvstore = excluded.kvstore,
	updated = excluded.updated,
	records_index = excluded.records_index,
	records_kvstore = excluded.records_kvstore,
	records_updated = excluded.records_updated,
	records_failed = excluded.records_failed,
	records_filtered = excluded.records_filtered,
	message = excluded.message`

const selectSQL = `
SELECT run_id, report_name, report_id, status, kvstore, updated,
	records_index, records_kvstore, records_updated, records_failed, records_filtered, message
FROM run_status WHERE checkpoint_key = ?`

// StatusStore keeps run checkpoints in a local SQLite file.
type StatusStore struct {
	db *sql.DB
}

var (
	_ repository.RunTracker   = (*StatusStore)(nil)
	_ repository.StatusReader = (*StatusStore)(nil)
)

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*StatusStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &StatusStore{db: db}, nil
}

// Close closes the database.
func (s *StatusStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordStatus upserts the snapshot of the report.
func (s *StatusStore) RecordStatus(ctx context.Context, id model.ReportIdentity, snap model.StatusSnapshot) error {
	_, err := s.db.ExecContext(ctx, upsertSQL,
		id.CheckpointKey(), snap.RunID, snap.ReportName, snap.ReportID, string(snap.Status), snap.Collection, snap.Updated,
		snap.RecordsIndexed, snap.RecordsStored, snap.RecordsUpdated, snap.RecordsFailed, snap.RecordsFiltered, snap.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to store status snapshot: %w", err)
	}
	return nil
}

// GetStatus returns the snapshot stored under checkpointKey.
func (s *StatusStore) GetStatus(ctx context.Context, checkpointKey string) (*model.StatusSnapshot, error) {
	var (
		snap   model.StatusSnapshot
		status string
	)
	err := s.db.QueryRowContext(ctx, selectSQL, checkpointKey).Scan(
		&snap.RunID, &snap.ReportName, &snap.ReportID, &status, &snap.Collection, &snap.Updated,
		&snap.RecordsIndexed, &snap.RecordsStored, &snap.RecordsUpdated, &snap.RecordsFailed, &snap.RecordsFiltered, &snap.Message,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status snapshot: %w", err)
	}
	snap.Status = model.RunStatus(status)
	return &snap, nil
}
