package evidence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	// Pure-Go SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/moolen/sleuth/internal/embedding"
	"github.com/moolen/sleuth/internal/logging"
	"github.com/moolen/sleuth/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS steps (
	seq INTEGER PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	incident_id TEXT NOT NULL,
	step_index INTEGER NOT NULL,
	observed_fact TEXT NOT NULL,
	method TEXT NOT NULL,
	analysis TEXT NOT NULL,
	root_cause TEXT NOT NULL,
	embedding BLOB
);
CREATE INDEX IF NOT EXISTS idx_steps_root_cause ON steps(root_cause, step_index);
CREATE TABLE IF NOT EXISTS catalog_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const stepColumns = "id, incident_id, step_index, observed_fact, method, analysis, root_cause"

// SQLiteStore serves the catalog from a SQLite database. Vectors are stored
// as packed little-endian float32 blobs of exactly dimension*4 bytes.
type SQLiteStore struct {
	db       *sql.DB
	embedder embedding.Embedder
	count    atomic.Int64
	logger   *logging.Logger
}

// OpenSQLiteStore opens (and creates if needed) the catalog database at
// path. When embedder is non-nil, the stored dimension must match it.
func OpenSQLiteStore(ctx context.Context, path string, embedder embedding.Embedder) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	// Single writer; readers share the connection pool.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		embedder: embedder,
		logger:   logging.GetLogger("evidence.sqlite"),
	}

	if err := s.checkDimension(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.refreshCount(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Debug("Opened catalog %s with %d steps", path, s.Len())
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// checkDimension compares the dimension recorded at import with the
// configured embedder.
func (s *SQLiteStore) checkDimension(ctx context.Context) error {
	if s.embedder == nil {
		return nil
	}
	raw, err := s.meta(ctx, "dimension")
	if err != nil || raw == "" {
		return err
	}
	stored, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("corrupt catalog dimension %q: %w", raw, err)
	}
	if stored != s.embedder.Dimensions() {
		return &models.DimensionMismatchError{Expected: s.embedder.Dimensions(), Got: stored}
	}
	return nil
}

func (s *SQLiteStore) meta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM catalog_meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read catalog metadata %q: %w", key, err)
	}
	return value, nil
}

// CatalogVersion returns the version of the last imported catalog.
func (s *SQLiteStore) CatalogVersion(ctx context.Context) (string, error) {
	return s.meta(ctx, "version")
}

func (s *SQLiteStore) refreshCount(ctx context.Context) error {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM steps").Scan(&n); err != nil {
		return fmt.Errorf("failed to count steps: %w", err)
	}
	s.count.Store(n)
	return nil
}

// Import replaces the stored catalog with steps, embedding each one when an
// embedder is configured. The replacement is a single transaction.
func (s *SQLiteStore) Import(ctx context.Context, catalogVersion string, steps []models.DiagnosticStep) error {
	var vectors [][]float32
	if s.embedder != nil && len(steps) > 0 {
		texts := make([]string, len(steps))
		for i, step := range steps {
			texts[i] = SearchText(step)
		}
		var err error
		vectors, err = embedding.EmbedAll(ctx, s.embedder, texts, embedConcurrency)
		if err != nil {
			return fmt.Errorf("failed to embed catalog: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM steps"); err != nil {
		return fmt.Errorf("failed to clear steps: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM catalog_meta"); err != nil {
		return fmt.Errorf("failed to clear catalog metadata: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO steps (seq, "+stepColumns+", embedding) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, step := range steps {
		var blob []byte
		if vectors != nil {
			blob = embedding.EncodeVector(vectors[i])
		}
		if _, err := stmt.ExecContext(ctx, i, step.ID, step.IncidentID, step.StepIndex,
			step.ObservedFact, step.Method, step.Analysis, step.RootCause, blob); err != nil {
			return fmt.Errorf("failed to insert step %q: %w", step.ID, err)
		}
	}

	meta := map[string]string{"version": catalogVersion}
	if s.embedder != nil {
		meta["embedder"] = s.embedder.Name()
		meta["dimension"] = strconv.Itoa(s.embedder.Dimensions())
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, "INSERT INTO catalog_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("failed to write catalog metadata: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	s.count.Store(int64(len(steps)))
	s.logger.InfoWithFields("Imported catalog",
		logging.Field("version", catalogVersion),
		logging.Field("steps", len(steps)),
		logging.Field("embedded", vectors != nil),
	)
	return nil
}

func (s *SQLiteStore) GetStep(ctx context.Context, id string) (models.DiagnosticStep, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+stepColumns+" FROM steps WHERE id = ?", id)
	step, err := scanStep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DiagnosticStep{}, models.NewStepNotFound(id)
	}
	if err != nil {
		return models.DiagnosticStep{}, fmt.Errorf("failed to get step %q: %w", id, err)
	}
	return step, nil
}

func (s *SQLiteStore) StepsByRootCause(ctx context.Context, rootCause string) ([]models.DiagnosticStep, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+stepColumns+" FROM steps WHERE root_cause = ? ORDER BY step_index, id", rootCause)
	if err != nil {
		return nil, fmt.Errorf("failed to query root cause %q: %w", rootCause, err)
	}
	defer rows.Close()

	var out []models.DiagnosticStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		out = append(out, step)
	}
	return out, rows.Err()
}

// Search loads the catalog in insertion order and ranks it. Every call
// reads fresh rows; nothing is cached between calls.
func (s *SQLiteStore) Search(ctx context.Context, query string, topK int, exclude map[string]bool) ([]models.ScoredStep, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+stepColumns+", embedding FROM steps ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	defer rows.Close()

	var entries []entry
	for rows.Next() {
		var step models.DiagnosticStep
		var blob []byte
		if err := rows.Scan(&step.ID, &step.IncidentID, &step.StepIndex, &step.ObservedFact,
			&step.Method, &step.Analysis, &step.RootCause, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		var vec []float32
		if s.embedder != nil {
			if blob == nil {
				return nil, fmt.Errorf("step %q has no embedding; re-import the catalog with an embedder", step.ID)
			}
			vec, err = embedding.DecodeVector(blob, s.embedder.Dimensions())
			if err != nil {
				return nil, fmt.Errorf("step %q: %w", step.ID, err)
			}
		}
		entries = append(entries, newEntry(step, vec))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	return rank(ctx, s.embedder, query, entries, topK, exclude)
}

func (s *SQLiteStore) Len() int {
	return int(s.count.Load())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStep(r rowScanner) (models.DiagnosticStep, error) {
	var step models.DiagnosticStep
	err := r.Scan(&step.ID, &step.IncidentID, &step.StepIndex, &step.ObservedFact,
		&step.Method, &step.Analysis, &step.RootCause)
	return step, err
}
