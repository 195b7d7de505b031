package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/traffic-monitor/internal/traffic"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return &DB{sqlDB}, mock
}

func TestInsertBatch_SingleStatement(t *testing.T) {
	db, mock := newMockDB(t)

	records := []traffic.Record{
		{BatchID: "b1", Timestamp: t0, Location: "A", VehicleCount: 120, AvgSpeed: 15, CongestionLevel: traffic.CongestionHigh, SensorID: "Sens-A-101"},
		{BatchID: "b1", Timestamp: t0, Location: "B", VehicleCount: 30, AvgSpeed: 60, CongestionLevel: traffic.CongestionLow, SensorID: "Sens-B-202"},
	}

	query := "INSERT INTO traffic_records (batch_id, timestamp, location, vehicle_count, avg_speed, congestion_level, sensor_id) " +
		"VALUES ($1, $2, $3, $4, $5, $6, $7), ($8, $9, $10, $11, $12, $13, $14)"
	mock.ExpectExec(regexp.QuoteMeta(query)).
		WithArgs(
			"b1", t0, "A", 120, 15, "High", "Sens-A-101",
			"b1", t0, "B", 30, 60, "Low", "Sens-B-202",
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, db.InsertBatch(context.Background(), records))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatch_Empty(t *testing.T) {
	db, mock := newMockDB(t)

	require.NoError(t, db.InsertBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatch_Error(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO traffic_records").WillReturnError(errors.New("connection reset"))

	err := db.InsertBatch(context.Background(), []traffic.Record{
		{BatchID: "b1", Timestamp: t0, Location: "A", VehicleCount: 10, AvgSpeed: 60, CongestionLevel: traffic.CongestionLow},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert batch")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRecent(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"batch_id", "timestamp", "location", "vehicle_count", "avg_speed", "congestion_level", "sensor_id"}).
		AddRow("b2", t0.Add(3*time.Second), "A", 60, 30, "Moderate", "Sens-A-303").
		AddRow("b1", t0, "A", 120, 15, "High", "Sens-A-101")
	mock.ExpectQuery(`SELECT (.+) FROM traffic_records\s+ORDER BY timestamp DESC, id DESC\s+LIMIT \$1`).
		WithArgs(500).
		WillReturnRows(rows)

	records, err := db.QueryRecent(context.Background(), 500)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, traffic.Record{
		BatchID:         "b2",
		Timestamp:       t0.Add(3 * time.Second),
		Location:        "A",
		VehicleCount:    60,
		AvgSpeed:        30,
		CongestionLevel: traffic.CongestionModerate,
		SensorID:        "Sens-A-303",
	}, records[0])
	assert.Equal(t, traffic.CongestionHigh, records[1].CongestionLevel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRecent_Empty(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT (.+) FROM traffic_records").
		WithArgs(500).
		WillReturnRows(sqlmock.NewRows([]string{"batch_id", "timestamp", "location", "vehicle_count", "avg_speed", "congestion_level", "sensor_id"}))

	records, err := db.QueryRecent(context.Background(), 500)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestQueryRecent_Error(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT (.+) FROM traffic_records").WillReturnError(errors.New("timeout"))

	_, err := db.QueryRecent(context.Background(), 10)
	assert.Error(t, err)
}

func TestRunMigrations_InOrder(t *testing.T) {
	db, mock := newMockDB(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "002_index.sql"), []byte("CREATE INDEX idx ON traffic_records (timestamp);"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_table.sql"), []byte("CREATE TABLE traffic_records (id BIGSERIAL);"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not sql"), 0o644))

	// migrations run between lock and unlock on the same session
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_lock($1)")).
		WithArgs(migrationLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE traffic_records")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX idx")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).
		WithArgs(migrationLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.RunMigrations(context.Background(), dir))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_FailureReleasesLock(t *testing.T) {
	db, mock := newMockDB(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_table.sql"), []byte("CREATE TABLE traffic_records (id BIGSERIAL);"), 0o644))

	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_lock($1)")).
		WithArgs(migrationLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE traffic_records")).
		WillReturnError(errors.New(`duplicate key value violates unique constraint "pg_type_typname_nsp_index"`))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).
		WithArgs(migrationLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.RunMigrations(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_table.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_LockFailure(t *testing.T) {
	db, mock := newMockDB(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_table.sql"), []byte("CREATE TABLE traffic_records (id BIGSERIAL);"), 0o644))

	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_lock($1)")).
		WithArgs(migrationLockKey).
		WillReturnError(errors.New("connection reset"))

	err := db.RunMigrations(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_MissingDir(t *testing.T) {
	db, _ := newMockDB(t)
	assert.Error(t, db.RunMigrations(context.Background(), filepath.Join(t.TempDir(), "nope")))
}
