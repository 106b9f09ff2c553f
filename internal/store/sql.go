package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/rs/zerolog"
)

// Options configures a SQLGateway
type Options struct {
	// Driver is a database/sql driver name: sqlserver, sqlite3 or pgx.
	Driver string
	DSN    string
	// Table holds the file events, FileEvent unless configured otherwise.
	Table string
	// TemplatePath is the insert statement file, read on first insert.
	TemplatePath string
	Logger       zerolog.Logger
}

// SQLGateway implements Gateway over database/sql
type SQLGateway struct {
	db           *sql.DB
	driver       string
	table        string
	templatePath string
	insertSQL    string
	logger       zerolog.Logger
}

// Open creates a gateway. The connection is established lazily, so an
// unreachable store surfaces on the first call rather than here.
func Open(opts Options) (*SQLGateway, error) {
	db, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, storeError("open", err)
	}
	return New(db, opts), nil
}

// New wraps an existing database handle
func New(db *sql.DB, opts Options) *SQLGateway {
	table := opts.Table
	if table == "" {
		table = "FileEvent"
	}
	return &SQLGateway{
		db:           db,
		driver:       opts.Driver,
		table:        table,
		templatePath: opts.TemplatePath,
		logger:       opts.Logger.With().Str("component", "EventStoreGateway").Str("driver", opts.Driver).Logger(),
	}
}

// Migrate creates the event table if it doesn't exist. Only SQLite is
// supported; other stores are provisioned externally.
func (g *SQLGateway) Migrate(ctx context.Context) error {
	if g.driver != "sqlite3" {
		return storeError("migrate", fmt.Errorf("schema creation is not supported for driver %q", g.driver))
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		FileEventId INTEGER PRIMARY KEY AUTOINCREMENT,
		MarketDate DATE NOT NULL,
		DataFileTypeId INTEGER NOT NULL,
		FileName TEXT NOT NULL,
		FileLocation TEXT NOT NULL,
		Step TEXT,
		StepRetryCount INTEGER,
		Status TEXT,
		ServerName TEXT,
		RecordCreationDate DATETIME,
		RecordModificationDate DATETIME,
		RecordModificationUser TEXT,
		RecordSource TEXT,
		RecordComment TEXT,
		IsManual BOOLEAN
	);

	CREATE INDEX IF NOT EXISTS idx_%[2]s_identity ON %[1]s(FileName, FileLocation, MarketDate, DataFileTypeId);
	`, g.table, strings.ReplaceAll(g.table, ".", "_"))

	if _, err := g.db.ExecContext(ctx, schema); err != nil {
		return storeError("migrate", err)
	}
	return nil
}

// Exists counts events matching the four identity fields
func (g *SQLGateway) Exists(ctx context.Context, key IdentityKey) (bool, error) {
	query := rebind(g.driver, fmt.Sprintf(
		"SELECT COUNT(1) FROM %s WHERE FileName = ? AND FileLocation = ? AND MarketDate = ? AND DataFileTypeId = ?",
		g.table))

	var count int
	err := g.db.QueryRowContext(ctx, query, key.FileName, key.FileLocation, key.MarketDate, key.DataFileTypeID).Scan(&count)
	if err != nil {
		return false, storeError("exists", err)
	}
	return count > 0, nil
}

// Insert executes the insert template in a transaction committed on success
func (g *SQLGateway) Insert(ctx context.Context, event *FileEvent) error {
	query, err := g.insertStatement()
	if err != nil {
		return err
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("insert", fmt.Errorf("begin transaction: %w", err))
	}

	if _, err := tx.ExecContext(ctx, query, event.insertArgs()...); err != nil {
		_ = tx.Rollback()
		return storeError("insert", err)
	}

	if err := tx.Commit(); err != nil {
		return storeError("insert", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Publish inserts the event unless one with the same identity exists
func (g *SQLGateway) Publish(ctx context.Context, event *FileEvent) (Outcome, error) {
	exists, err := g.Exists(ctx, event.Key())
	if err != nil {
		return "", err
	}
	if exists {
		return OutcomeSkipped, nil
	}

	if err := g.Insert(ctx, event); err != nil {
		return "", err
	}
	return OutcomeInserted, nil
}

// insertStatement loads the template once and checks its placeholder count.
func (g *SQLGateway) insertStatement() (string, error) {
	if g.insertSQL != "" {
		return g.insertSQL, nil
	}

	data, err := os.ReadFile(g.templatePath)
	if err != nil {
		return "", storeError("load template", err)
	}

	template := strings.TrimSpace(string(data))
	if n := countPlaceholders(template); n != insertParamCount {
		return "", storeError("load template", fmt.Errorf("%s has %d placeholders, want %d", g.templatePath, n, insertParamCount))
	}

	g.insertSQL = rebind(g.driver, template)
	g.logger.Debug().Str("template", g.templatePath).Str("sql", g.insertSQL).Msg("Loaded insert template")
	return g.insertSQL, nil
}

// ListEvents returns events for a market date, optionally limited to one type
func (g *SQLGateway) ListEvents(ctx context.Context, filter EventFilter) ([]FileEvent, error) {
	query := fmt.Sprintf(`
		SELECT MarketDate, DataFileTypeId, FileName, FileLocation, Step, StepRetryCount, Status,
			ServerName, RecordCreationDate, RecordModificationDate, RecordModificationUser,
			RecordSource, RecordComment, IsManual
		FROM %s WHERE MarketDate = ?`, g.table)
	args := []any{filter.MarketDate}

	if filter.DataFileTypeID != 0 {
		query += " AND DataFileTypeId = ?"
		args = append(args, filter.DataFileTypeID)
	}
	query += " ORDER BY FileName, FileLocation"

	rows, err := g.db.QueryContext(ctx, rebind(g.driver, query), args...)
	if err != nil {
		return nil, storeError("list events", err)
	}
	defer rows.Close()

	var events []FileEvent
	for rows.Next() {
		var e FileEvent
		var marketDate, created, modified sql.NullString
		var step, status, serverName, user, source, comment sql.NullString
		var retryCount sql.NullInt64
		var isManual sql.NullBool

		err := rows.Scan(
			&marketDate, &e.DataFileTypeID, &e.FileName, &e.FileLocation, &step, &retryCount, &status,
			&serverName, &created, &modified, &user,
			&source, &comment, &isManual,
		)
		if err != nil {
			return nil, storeError("list events", fmt.Errorf("failed to scan event row: %w", err))
		}

		e.MarketDate = parseTime(marketDate.String)
		e.RecordCreationDate = parseTime(created.String)
		e.RecordModificationDate = parseTime(modified.String)
		e.Step = step.String
		e.StepRetryCount = int(retryCount.Int64)
		e.Status = status.String
		e.ServerName = serverName.String
		e.RecordModificationUser = user.String
		e.RecordSource = source.String
		e.RecordComment = comment.String
		e.IsManual = isManual.Bool

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("list events", err)
	}
	return events, nil
}

// Ping verifies the store is reachable
func (g *SQLGateway) Ping(ctx context.Context) error {
	if err := g.db.PingContext(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

// Close closes the database connection
func (g *SQLGateway) Close() error {
	if err := g.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return storeError("close", err)
	}
	return nil
}

// parseTime parses a driver datetime string into time.Time
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
		time.DateOnly,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}

	return time.Time{}
}
