package ch

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"inspection/internal/models"
	"inspection/internal/storage"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const recordColumns = `id, corridor, room, record_date, record_type, committed_at, submitter_id, submitter_name, photo_file_id`

type ClickHouseDB struct {
	conn clickhouse.Conn
}

// Options builds the driver options shared by the store and the migration runner
func Options(host string, port int, database, user, password string, useTLS bool) *clickhouse.Options {
	options := &clickhouse.Options{
		Addr:     []string{fmt.Sprintf("%s:%d", host, port)},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
		DialTimeout: 10 * time.Second,
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}
	return options
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(Options(host, port, database, user, password, useTLS))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Initialize is a no-op - tables are managed via migrations
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	// Tables are managed via migrations (see cmd/migrate)
	// This method is kept for interface compatibility
	return nil
}

// Upsert appends a record version; ReplacingMergeTree keeps the latest committed_at per slot
func (db *ClickHouseDB) Upsert(ctx context.Context, rec models.Record) error {
	batch, err := db.conn.PrepareBatch(ctx, `INSERT INTO records (`+recordColumns+`)`)
	if err != nil {
		return storage.Unavailable("upsert", fmt.Errorf("failed to prepare batch: %w", err))
	}

	if err := batch.Append(
		rec.ID,
		rec.Corridor,
		rec.Room,
		rec.Date,
		string(rec.Type),
		rec.CommittedAt.UTC(),
		rec.SubmittedBy.ID,
		rec.SubmittedBy.Name,
		rec.PhotoFileID,
	); err != nil {
		batch.Abort()
		return fmt.Errorf("failed to append record: %w", err)
	}

	if err := batch.Send(); err != nil {
		return storage.Unavailable("upsert", fmt.Errorf("failed to insert record: %w", err))
	}
	return nil
}

// Lookup returns the records of a corridor/room/date
func (db *ClickHouseDB) Lookup(ctx context.Context, key models.Key) (models.Slots, error) {
	rows, err := db.conn.Query(ctx, `SELECT `+recordColumns+` FROM records FINAL
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
func (db *ClickHouseDB) ListByDate(ctx context.Context, date string) ([]models.Record, error) {
	rows, err := db.conn.Query(ctx, `SELECT `+recordColumns+` FROM records FINAL
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

func scanRecords(rows driver.Rows) ([]models.Record, error) {
	var records []models.Record
	for rows.Next() {
		var (
			rec        models.Record
			recordType string
		)
		if err := rows.Scan(&rec.ID, &rec.Corridor, &rec.Room, &rec.Date, &recordType,
			&rec.CommittedAt, &rec.SubmittedBy.ID, &rec.SubmittedBy.Name, &rec.PhotoFileID); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Type = models.RecordType(recordType)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
