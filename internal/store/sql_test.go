package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInsertTemplate = `INSERT INTO FileEvent (
	MarketDate, DataFileTypeId, FileName, FileLocation, Step, StepRetryCount, Status,
	ServerName, RecordCreationDate, RecordModificationDate, RecordModificationUser,
	RecordSource, RecordComment, IsManual
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func writeTemplate(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "insert_fileevent.sql")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestGateway(t *testing.T) *SQLGateway {
	t.Helper()
	dir := t.TempDir()
	g, err := Open(Options{
		Driver:       "sqlite3",
		DSN:          filepath.Join(dir, "events.db") + "?_busy_timeout=5000",
		TemplatePath: writeTemplate(t, dir, testInsertTemplate),
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, g.Migrate(context.Background()))
	t.Cleanup(func() { g.Close() })
	return g
}

func sampleEvent(name string) *FileEvent {
	now := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	return &FileEvent{
		MarketDate:             time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DataFileTypeID:         1,
		FileName:               name,
		FileLocation:           "/archive/trades/" + name,
		Step:                   "Monitor",
		Status:                 "Completed",
		ServerName:             "host01",
		RecordCreationDate:     now,
		RecordModificationDate: now,
		RecordModificationUser: "CRP FileEvent populator",
		RecordSource:           "CRP FileEvent populator",
		IsManual:               true,
	}
}

func countRows(t *testing.T, g *SQLGateway) int {
	t.Helper()
	var n int
	require.NoError(t, g.db.QueryRow("SELECT COUNT(*) FROM FileEvent").Scan(&n))
	return n
}

func TestPublish_InsertsThenSkips(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	event := sampleEvent("TRADE_IRS_20240101.csv")

	outcome, err := g.Publish(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, outcome)

	outcome, err = g.Publish(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	assert.Equal(t, 1, countRows(t, g))
}

func TestPublish_SkipNeverRunsInsert(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	event := sampleEvent("TRADE_IRS_20240101.csv")
	require.NoError(t, g.Insert(ctx, event))

	// Any insert attempt from here on fails loading the template.
	g.insertSQL = ""
	g.templatePath = filepath.Join(t.TempDir(), "missing.sql")

	outcome, err := g.Publish(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Equal(t, 1, countRows(t, g))

	_, err = g.Publish(ctx, sampleEvent("TRADE_OIS_20240101.csv"))
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "load template", storeErr.Op)
}

func TestExists_ScopedToAllFourFields(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	event := sampleEvent("TRADE_IRS_20240101.csv")
	require.NoError(t, g.Insert(ctx, event))

	exists, err := g.Exists(ctx, event.Key())
	require.NoError(t, err)
	assert.True(t, exists)

	variants := map[string]func(k *IdentityKey){
		"file name":   func(k *IdentityKey) { k.FileName = "other.csv" },
		"location":    func(k *IdentityKey) { k.FileLocation = "/elsewhere/TRADE_IRS_20240101.csv" },
		"market date": func(k *IdentityKey) { k.MarketDate = k.MarketDate.AddDate(0, 0, 1) },
		"type":        func(k *IdentityKey) { k.DataFileTypeID = 2 },
	}
	for name, mutate := range variants {
		t.Run(name, func(t *testing.T) {
			key := event.Key()
			mutate(&key)
			exists, err := g.Exists(ctx, key)
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestListEvents(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	irs := sampleEvent("TRADE_IRS_20240101.csv")
	ois := sampleEvent("TRADE_OIS_20240101.csv")
	ois.DataFileTypeID = 2
	later := sampleEvent("TRADE_IRS_20240102.csv")
	later.MarketDate = later.MarketDate.AddDate(0, 0, 1)
	for _, e := range []*FileEvent{irs, ois, later} {
		require.NoError(t, g.Insert(ctx, e))
	}

	events, err := g.ListEvents(ctx, EventFilter{MarketDate: irs.MarketDate})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "TRADE_IRS_20240101.csv", events[0].FileName)
	assert.Equal(t, "TRADE_OIS_20240101.csv", events[1].FileName)

	got := events[0]
	assert.True(t, got.MarketDate.Equal(irs.MarketDate))
	assert.True(t, got.RecordCreationDate.Equal(irs.RecordCreationDate))
	assert.Equal(t, irs.FileLocation, got.FileLocation)
	assert.Equal(t, "Monitor", got.Step)
	assert.Equal(t, "Completed", got.Status)
	assert.Equal(t, "host01", got.ServerName)
	assert.True(t, got.IsManual)

	events, err = g.ListEvents(ctx, EventFilter{MarketDate: irs.MarketDate, DataFileTypeID: 2})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 2, events[0].DataFileTypeID)
}

func TestInsert_MissingTemplate(t *testing.T) {
	g := newTestGateway(t)
	g.templatePath = filepath.Join(t.TempDir(), "missing.sql")

	err := g.Insert(context.Background(), sampleEvent("a.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestInsert_MalformedTemplate(t *testing.T) {
	g := newTestGateway(t)
	g.templatePath = writeTemplate(t, t.TempDir(), "INSERT INTO FileEvent (FileName) VALUES (?)")

	_, err := g.Publish(context.Background(), sampleEvent("a.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreFailure)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "load template", storeErr.Op)
	assert.Equal(t, 0, countRows(t, g))
}

func TestInsert_TemplateIsCachedAfterFirstLoad(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	require.NoError(t, g.Insert(ctx, sampleEvent("a.csv")))

	require.NoError(t, os.Remove(g.templatePath))
	require.NoError(t, g.Insert(ctx, sampleEvent("b.csv")))
	assert.Equal(t, 2, countRows(t, g))
}

func TestInsert_FailureRollsBack(t *testing.T) {
	g := newTestGateway(t)
	g.templatePath = writeTemplate(t, t.TempDir(),
		"INSERT INTO NoSuchTable VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")

	err := g.Insert(context.Background(), sampleEvent("a.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.Equal(t, 0, countRows(t, g))
}

func TestExists_MissingTable(t *testing.T) {
	dir := t.TempDir()
	g, err := Open(Options{Driver: "sqlite3", DSN: filepath.Join(dir, "empty.db"), Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer g.Close()

	_, err = g.Exists(context.Background(), sampleEvent("a.csv").Key())
	assert.ErrorIs(t, err, ErrStoreFailure)
}

func TestMigrate_UnsupportedDriver(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	g := New(db, Options{Driver: "pgx", Logger: zerolog.Nop()})
	defer g.Close()

	assert.ErrorIs(t, g.Migrate(context.Background()), ErrStoreFailure)
}

func TestPing(t *testing.T) {
	g := newTestGateway(t)
	assert.NoError(t, g.Ping(context.Background()))
}

func TestInsertArgsOrder(t *testing.T) {
	e := sampleEvent("TRADE_IRS_20240101.csv")
	args := e.insertArgs()

	require.Len(t, args, insertParamCount)
	assert.Equal(t, e.MarketDate, args[0])
	assert.Equal(t, 1, args[1])
	assert.Equal(t, "TRADE_IRS_20240101.csv", args[2])
	assert.Equal(t, "/archive/trades/TRADE_IRS_20240101.csv", args[3])
	assert.Equal(t, "Monitor", args[4])
	assert.Equal(t, "CRP FileEvent populator", args[11])
	assert.Equal(t, "", args[12])
	assert.Equal(t, true, args[13])
}
