package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"

	"github.com/efebarandurmaz/flowlens/internal/observability"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore keeps execution history in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("history sqlite path is not set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect history database: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Record stores one execution.
func (s *SQLiteStore) Record(ctx context.Context, e Execution) error {
	success := 0
	if e.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO block_executions (flow_id, block_id, kind, started_at, duration_us, success)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.FlowID, e.BlockID, string(e.Kind), e.StartedAt.UnixMicro(), e.Duration.Microseconds(), success)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

// BlockStats aggregates executions of flowID started at or after since,
// ordered by block id.
func (s *SQLiteStore) BlockStats(ctx context.Context, flowID string, since time.Time) ([]BlockStat, error) {
	ctx, span := observability.StartHistorySpan(ctx, "sqlite", "block_stats")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT block_id, COUNT(*), SUM(1 - success), AVG(duration_us), MAX(duration_us)
		 FROM block_executions
		 WHERE flow_id = ? AND started_at >= ?
		 GROUP BY block_id
		 ORDER BY block_id`,
		flowID, since.UnixMicro())
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("query block stats: %w", err)
	}
	defer rows.Close()

	var out []BlockStat
	for rows.Next() {
		var (
			st       BlockStat
			mean     float64
			maxMicro int64
		)
		if err := rows.Scan(&st.BlockID, &st.Runs, &st.Failures, &mean, &maxMicro); err != nil {
			return nil, fmt.Errorf("scan block stats: %w", err)
		}
		st.MeanLatency = time.Duration(mean) * time.Microsecond
		st.MaxLatency = time.Duration(maxMicro) * time.Microsecond
		out = append(out, st)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
