package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"inspection/internal/models"
	"inspection/internal/storage"
	"inspection/migrations"
)

const recordColumns = `id, corridor, room, record_date, record_type, committed_at, submitter_id, submitter_name, photo_file_id`

// PostgresDB stores records in PostgreSQL
type PostgresDB struct {
	db *sql.DB
}

// NewPostgresDB connects to the database behind dsn
func NewPostgresDB(dsn string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{db: db}, nil
}

// Initialize applies the schema migrations
func (p *PostgresDB) Initialize(ctx context.Context) error {
	return migrations.Up(p.db, migrations.DialectPostgres)
}

// Upsert inserts the record or replaces an older one with the same key and type
func (p *PostgresDB) Upsert(ctx context.Context, rec models.Record) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (corridor, room, record_date, record_type) DO UPDATE SET
			id = EXCLUDED.id,
			committed_at = EXCLUDED.committed_at,
			submitter_id = EXCLUDED.submitter_id,
			submitter_name = EXCLUDED.submitter_name,
			photo_file_id = EXCLUDED.photo_file_id
		WHERE EXCLUDED.committed_at >= records.committed_at`,
		rec.ID, rec.Corridor, rec.Room, rec.Date, string(rec.Type),
		rec.CommittedAt, rec.SubmittedBy.ID, rec.SubmittedBy.Name, rec.PhotoFileID)
	if err != nil {
		return storage.Unavailable("upsert", fmt.Errorf("failed to upsert record: %w", err))
	}
	return nil
}

// Lookup returns the records of a corridor/room/date
func (p *PostgresDB) Lookup(ctx context.Context, key models.Key) (models.Slots, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records
		WHERE corridor = $1 AND room = $2 AND record_date = $3`,
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
func (p *PostgresDB) ListByDate(ctx context.Context, date string) ([]models.Record, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records
		WHERE record_date = $1
		ORDER BY corridor COLLATE "C", room COLLATE "C", record_type`, date)
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
			rec        models.Record
			recordDate time.Time
			recordType string
		)
		if err := rows.Scan(&rec.ID, &rec.Corridor, &rec.Room, &recordDate, &recordType,
			&rec.CommittedAt, &rec.SubmittedBy.ID, &rec.SubmittedBy.Name, &rec.PhotoFileID); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Date = recordDate.Format(models.DateLayout)
		rec.Type = models.RecordType(recordType)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// Close closes the database connection
func (p *PostgresDB) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
