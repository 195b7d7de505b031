package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/smukkama/traffic-monitor/internal/traffic"
)

const recordColumns = "batch_id, timestamp, location, vehicle_count, avg_speed, congestion_level, sensor_id"

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// One loop per process uses this pool
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	return &DB{db}, nil
}

// migrationLockKey is the advisory lock held for the duration of RunMigrations
const migrationLockKey int64 = 7261700101

// RunMigrations executes all SQL migration files in order
func (db *DB) RunMigrations(ctx context.Context, migrationsDir string) error {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	// Session-level advisory locks belong to one connection
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey); err != nil {
			slog.Warn("failed to release migration lock", "err", err)
		}
	}()

	for _, filename := range sqlFiles {
		slog.Info("running migration", "file", filename)

		content, err := os.ReadFile(filepath.Join(migrationsDir, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	return nil
}

// InsertBatch writes a tick's records with a single multi-row INSERT, so the
// batch is applied all-or-nothing.
func (db *DB) InsertBatch(ctx context.Context, records []traffic.Record) error {
	if len(records) == 0 {
		return nil
	}

	const perRow = 7
	var sb strings.Builder
	sb.WriteString("INSERT INTO traffic_records (" + recordColumns + ") VALUES ")

	args := make([]interface{}, 0, len(records)*perRow)
	for i, r := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * perRow
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7)
		args = append(args,
			r.BatchID,
			r.Timestamp,
			r.Location,
			r.VehicleCount,
			r.AvgSpeed,
			string(r.CongestionLevel),
			r.SensorID,
		)
	}

	if _, err := db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

// QueryRecent returns the most recent records, newest first
func (db *DB) QueryRecent(ctx context.Context, limit int) ([]traffic.Record, error) {
	if limit <= 0 {
		return []traffic.Record{}, nil
	}

	query := `
		SELECT ` + recordColumns + `
		FROM traffic_records
		ORDER BY timestamp DESC, id DESC
		LIMIT $1
	`

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent records: %w", err)
	}
	defer rows.Close()

	records := make([]traffic.Record, 0, limit)
	for rows.Next() {
		var r traffic.Record
		var level string
		if err := rows.Scan(
			&r.BatchID,
			&r.Timestamp,
			&r.Location,
			&r.VehicleCount,
			&r.AvgSpeed,
			&level,
			&r.SensorID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.CongestionLevel = traffic.CongestionLevel(level)
		records = append(records, r)
	}

	return records, rows.Err()
}
