package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/planrun/planrun/internal/graph"
	_ "modernc.org/sqlite"
)

// RunRecord is one row of run history.
type RunRecord struct {
	ID         string
	PlanPath   string
	StartedAt  time.Time
	FinishedAt *time.Time // Nil while the run is in flight
	Success    bool
	Cancelled  bool
	Total      int
}

// TaskRecord is the persisted terminal state of one task in a run.
type TaskRecord struct {
	TaskID      string
	Kind        graph.Kind
	ResourceKey string
	Optional    bool
	Status      graph.Status
	Reason      string
}

// Store persists run history: the run row, its tasks, and every status
// transition of the current run.
type Store interface {
	CreateRun(ctx context.Context, runID, planPath string, tasks []*graph.Task) error
	RecordTransition(ctx context.Context, runID, taskID string, from, to graph.Status, reason string) error
	FinishRun(ctx context.Context, runID string, success, cancelled bool) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	RunTasks(ctx context.Context, runID string) ([]TaskRecord, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed store at dbPath, creating parent
// directories as needed. WAL mode, a busy timeout, and foreign keys are
// enabled.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return openStore(ctx, connStr)
}

// NewMemoryStore creates an in-memory store for testing. A shared cache
// lets multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	return openStore(ctx, "file::memory:?mode=memory&cache=shared")
}

func openStore(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc.org/sqlite ignores _foreign_keys in the connection string
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// One connection for primary queries, one for subqueries
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
