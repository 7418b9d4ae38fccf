package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/ipo-research-cli/internal/resilience"
	"github.com/sells-group/ipo-research-cli/pkg/dart"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS corp_codes (
	corp_code  TEXT PRIMARY KEY,
	corp_name  TEXT NOT NULL,
	stock_code TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	company     TEXT NOT NULL,
	status      TEXT NOT NULL,
	report      TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_corp_codes_name ON corp_codes(corp_name);
CREATE INDEX IF NOT EXISTS idx_runs_company ON runs(company);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ReplaceCorpCodes swaps the whole master list in one transaction and stamps
// the refresh time. Partial refreshes never happen; the master either
// replaces wholesale or stays as it was.
func (s *SQLiteStore) ReplaceCorpCodes(ctx context.Context, entries []dart.CorpEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin corp code replace")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM corp_codes`); err != nil {
		return eris.Wrap(err, "sqlite: clear corp codes")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO corp_codes (corp_code, corp_name, stock_code) VALUES (?, ?, ?)
		 ON CONFLICT(corp_code) DO UPDATE SET corp_name = excluded.corp_name, stock_code = excluded.stock_code`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare corp code insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.CorpCode, e.CorpName, e.StockCode); err != nil {
			return eris.Wrapf(err, "sqlite: insert corp code %s", e.CorpCode)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('corp_codes_refreshed_at', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return eris.Wrap(err, "sqlite: stamp refresh time")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit corp code replace")
}

func (s *SQLiteStore) FindCorpExact(ctx context.Context, name string) (*dart.CorpEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT corp_code, corp_name, stock_code FROM corp_codes WHERE corp_name = ?
		 ORDER BY stock_code <> '' DESC LIMIT 1`, name)

	var e dart.CorpEntry
	if err := row.Scan(&e.CorpCode, &e.CorpName, &e.StockCode); err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, resilience.ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: find corp %q", name)
	}
	return &e, nil
}

// FindCorpPartial matches by substring in both directions, listed companies
// first, shorter (closer) names before longer ones.
func (s *SQLiteStore) FindCorpPartial(ctx context.Context, name string) ([]dart.CorpEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT corp_code, corp_name, stock_code FROM corp_codes
		 WHERE corp_name LIKE '%' || ? || '%' OR instr(?, corp_name) > 0
		 ORDER BY stock_code <> '' DESC, length(corp_name) ASC
		 LIMIT 20`, name, name)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: search corp %q", name)
	}
	defer rows.Close() //nolint:errcheck

	var out []dart.CorpEntry
	for rows.Next() {
		var e dart.CorpEntry
		if err := rows.Scan(&e.CorpCode, &e.CorpName, &e.StockCode); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan corp row")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate corp rows")
}

// CorpCodesRefreshedAt returns the zero time when the cache has never been
// filled.
func (s *SQLiteStore) CorpCodesRefreshedAt(ctx context.Context) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = 'corp_codes_refreshed_at'`).Scan(&value)
	if eris.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, eris.Wrap(err, "sqlite: read refresh time")
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, eris.Wrap(err, "sqlite: parse refresh time")
	}
	return t, nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, company, status, report, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Company, run.Status, string(run.Report),
		run.StartedAt.UTC(), run.FinishedAt.UTC())
	return eris.Wrapf(err, "sqlite: save run %s", run.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company, status, COALESCE(report, ''), started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var report string
		if err := rows.Scan(&r.ID, &r.Company, &r.Status, &report, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run row")
		}
		if report != "" {
			r.Report = []byte(report)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate run rows")
}
