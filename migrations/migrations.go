// Package migrations embeds the goose SQL migrations of every SQL backend.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Dialects with a migrations directory of the same name
const (
	DialectSQLite     = "sqlite3"
	DialectPostgres   = "postgres"
	DialectClickHouse = "clickhouse"
)

//go:embed sqlite3/*.sql postgres/*.sql clickhouse/*.sql
var FS embed.FS

// goose keeps its dialect, filesystem and logger in package globals
var (
	gooseMu     sync.Mutex
	gooseLogger goose.Logger = goose.NopLogger()
)

// zapLogger adapts zap to goose.Logger
type zapLogger struct {
	*zap.SugaredLogger
}

func (l zapLogger) Printf(format string, v ...interface{}) {
	l.Infof(strings.TrimSpace(format), v...)
}

// SetLogger sends goose's progress lines to logger. They are discarded by default.
func SetLogger(logger *zap.Logger) {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	gooseLogger = zapLogger{logger.Sugar()}
}

// Up applies all pending migrations of dialect to db
func Up(db *sql.DB, dialect string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(FS)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(db, dialect); err != nil {
		return fmt.Errorf("failed to run %s migrations: %w", dialect, err)
	}
	return nil
}
