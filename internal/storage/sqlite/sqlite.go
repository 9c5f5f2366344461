package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"inspection/internal/models"
	"inspection/internal/storage"
	"inspection/migrations"
)

const recordColumns = `id, corridor, room, record_date, record_type, committed_at, submitter_id, submitter_name, photo_file_id`

// SQLiteDB stores records in a local SQLite file
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (or creates) the database file at path
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; one connection avoids SQLITE_BUSY between our own goroutines
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Initialize applies the schema migrations
func (s *SQLiteDB) Initialize(ctx context.Context) error {
	return migrations.Up(s.db, migrations.DialectSQLite)
}

// Upsert inserts the record or replaces an older one with the same key and type
func (s *SQLiteDB) Upsert(ctx context.Context, rec models.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (corridor, room, record_date, record_type) DO UPDATE SET
			id = excluded.id,
			committed_at = excluded.committed_at,
			submitter_id = excluded.submitter_id,
			submitter_name = excluded.submitter_name,
			photo_file_id = excluded.photo_file_id
		WHERE excluded.committed_at >= records.committed_at`,
		rec.ID, rec.Corridor, rec.Room, rec.Date, string(rec.Type),
		rec.CommittedAt.UnixMicro(), rec.SubmittedBy.ID, rec.SubmittedBy.Name, rec.PhotoFileID)
	if err != nil {
		return storage.Unavailable("upsert", fmt.Errorf("failed to upsert record: %w", err))
	}
	return nil
}

// Lookup returns the records of a corridor/room/date
func (s *SQLiteDB) Lookup(ctx context.Context, key models.Key) (models.Slots, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records
		WHERE corridor = ? AND room = ? AND record_date = ?`,
		key.Corridor, key.Room, key.Date)
	if err != nil {
		return models.Slots{}, storage.Unavailable("lookup", fmt.Errorf("failed to query records: %w", err))
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return models.Slots{}, storage.Unavailable("lookup", err)
	}

	var slots models.Slots
	for i := range records {
		slots.Set(&records[i])
	}
	return slots, nil
}

// ListByDate returns every record of a date
func (s *SQLiteDB) ListByDate(ctx context.Context, date string) ([]models.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records
		WHERE record_date = ?
		ORDER BY corridor, room, record_type`, date)
	if err != nil {
		return nil, storage.Unavailable("list by date", fmt.Errorf("failed to query records: %w", err))
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, storage.Unavailable("list by date", err)
	}
	return records, nil
}

func scanRecords(rows *sql.Rows) ([]models.Record, error) {
	var records []models.Record
	for rows.Next() {
		var (
			rec         models.Record
			recordType  string
			committedAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.Corridor, &rec.Room, &rec.Date, &recordType,
			&committedAt, &rec.SubmittedBy.ID, &rec.SubmittedBy.Name, &rec.PhotoFileID); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Type = models.RecordType(recordType)
		rec.CommittedAt = time.UnixMicro(committedAt).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
