package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	from_date  TEXT NOT NULL,
	until_date TEXT NOT NULL,
	fetched_at DATETIME NOT NULL,
	total      INTEGER NOT NULL,
	selected   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	title    TEXT NOT NULL,
	abstract TEXT NOT NULL,
	url      TEXT NOT NULL,
	authors  TEXT NOT NULL,
	created  TEXT NOT NULL,
	selected INTEGER NOT NULL,
	PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS idx_records_url ON records(url);
`

// SQLiteSink archives runs in a SQLite database, one row per record.
type SQLiteSink struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates the archive at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: creating directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: initializing schema: %w", err)
	}
	return &SQLiteSink{db: db, now: time.Now}, nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// Save writes the run and its records in one transaction. A batch without a
// RunID gets a fresh UUID.
func (s *SQLiteSink) Save(ctx context.Context, batch Batch) error {
	if len(batch.Membership) != len(batch.Corpus) {
		return fmt.Errorf("sqlite: %d labels for %d records", len(batch.Membership), len(batch.Corpus))
	}
	runID := batch.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, from_date, until_date, fetched_at, total, selected) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, batch.From.Format(time.DateOnly), batch.Until.Format(time.DateOnly), s.now().UTC(), len(batch.Corpus), batch.Selected())
	if err != nil {
		return fmt.Errorf("sqlite: inserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (run_id, position, category, title, abstract, url, authors, created, selected)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range batch.Corpus {
		_, err := stmt.ExecContext(ctx, runID, i, r.Category, r.Title, r.Abstract, r.URL,
			strings.Join(r.Authors, "; "), r.Created, batch.Membership[i])
		if err != nil {
			return fmt.Errorf("sqlite: inserting record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// RunSummary is a row of the runs table.
type RunSummary struct {
	ID       string
	From     string
	Until    string
	Total    int
	Selected int
}

// Runs lists archived runs, most recent first.
func (s *SQLiteSink) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, from_date, until_date, total, selected FROM runs ORDER BY fetched_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.From, &r.Until, &r.Total, &r.Selected); err != nil {
			return nil, fmt.Errorf("sqlite: scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SelectedURLs returns the URLs labelled relevant in a run, in corpus order.
func (s *SQLiteSink) SelectedURLs(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url FROM records WHERE run_id = ? AND selected = 1 ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying records: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("sqlite: scanning record: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}
