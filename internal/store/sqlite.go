package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sells-group/countrysync/internal/model"
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
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// One writer at a time keeps upsert batches from tripping SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS countries (
	id          TEXT PRIMARY KEY,
	alpha2_code TEXT NOT NULL UNIQUE,
	name        TEXT,
	name_key    TEXT,
	alpha3_code TEXT,
	capital     TEXT,
	region      TEXT,
	subregion   TEXT,
	population  INTEGER,
	area_km2    REAL,
	latitude    REAL,
	longitude   REAL,
	timezones   TEXT,
	currencies  TEXT,
	languages   TEXT,
	flag_url    TEXT,
	source      TEXT NOT NULL DEFAULT 'external',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	synced_at   DATETIME
);

CREATE TABLE IF NOT EXISTS sync_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	source       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	processed    INTEGER NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_countries_name_key ON countries(name_key);
CREATE INDEX IF NOT EXISTS idx_sync_log_started_at ON sync_log(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) GetByCode(ctx context.Context, code string) (*model.Country, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+countryColumns+` FROM countries WHERE alpha2_code = ?`,
		model.NormalizeCode(code),
	)
	c, err := scanCountry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get country %s", code)
	}
	return c, nil
}

func (s *SQLiteStore) GetByName(ctx context.Context, name string) (*model.Country, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+countryColumns+` FROM countries WHERE name_key = ? ORDER BY alpha2_code LIMIT 1`,
		model.NameKey(name),
	)
	c, err := scanCountry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get country by name %q", name)
	}
	return c, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]model.Country, error) {
	limit, offset = clampPage(limit, offset)
	if limit == 0 {
		return []model.Country{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+countryColumns+` FROM countries
		 ORDER BY name_key IS NULL, name_key, alpha2_code
		 LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list countries")
	}
	return collectSQLCountries(rows, "sqlite: list countries")
}

func (s *SQLiteStore) ListWithCoordinates(ctx context.Context) ([]model.Country, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+countryColumns+` FROM countries
		 WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		 ORDER BY alpha2_code`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list located countries")
	}
	return collectSQLCountries(rows, "sqlite: list located countries")
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM countries`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count countries")
	}
	return n, nil
}

func (s *SQLiteStore) CreateManual(ctx context.Context, c model.Country) (*model.Country, error) {
	rec := newManual(c, time.Now().UTC())
	args, err := manualRow(rec)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO countries (`+strings.Join(insertColumns, ", ")+`) VALUES (`+placeholders(len(insertColumns))+`)`,
		args...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, eris.Wrapf(ErrDuplicateCode, "sqlite: insert country %s", rec.Alpha2Code)
		}
		return nil, eris.Wrapf(err, "sqlite: insert country %s", rec.Alpha2Code)
	}
	return rec, nil
}

// sqliteUpsert merges one external record. The WHERE clause leaves manual
// rows untouched when the code collides.
var sqliteUpsert = func() string {
	sets := make([]string, 0, len(mergeColumns)+len(stampColumns))
	for _, c := range mergeColumns {
		sets = append(sets, c+" = COALESCE(excluded."+c+", countries."+c+")")
	}
	for _, c := range stampColumns {
		sets = append(sets, c+" = excluded."+c)
	}
	return `INSERT INTO countries (` + strings.Join(insertColumns, ", ") + `)
		VALUES (` + placeholders(len(insertColumns)) + `)
		ON CONFLICT(alpha2_code) DO UPDATE SET ` + strings.Join(sets, ", ") + `
		WHERE countries.source = '` + string(model.ProvenanceExternal) + `'`
}()

func (s *SQLiteStore) UpsertExternal(ctx context.Context, records []model.ExternalCountry, syncedAt time.Time) (int64, error) {
	records = model.DedupeByCode(records)
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	now := syncedAt.UTC()
	var affected int64
	for _, r := range records {
		args, err := externalRow(r, uuid.New().String(), now)
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert country %s", r.Alpha2Code)
		}
		if n, err := res.RowsAffected(); err == nil {
			affected += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert: commit tx")
	}
	return affected, nil
}

func (s *SQLiteStore) StartSync(ctx context.Context, source string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_log (source, status, started_at) VALUES (?, ?, ?)`,
		source, string(model.SyncStatusRunning), time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: start sync for %s", source)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: sync id")
	}
	return id, nil
}

func (s *SQLiteStore) CompleteSync(ctx context.Context, id int64, processed int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_log SET status = ?, completed_at = ?, processed = ? WHERE id = ?`,
		string(model.SyncStatusComplete), time.Now().UTC(), processed, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete sync %d", id)
	}
	return checkRowsAffected(res, "sync", id)
}

func (s *SQLiteStore) FailSync(ctx context.Context, id int64, syncErr error) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_log SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(model.SyncStatusFailed), time.Now().UTC(), errorText(syncErr), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail sync %d", id)
	}
	return checkRowsAffected(res, "sync", id)
}

func (s *SQLiteStore) ListSyncs(ctx context.Context, limit int) ([]model.SyncEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, status, started_at, completed_at, processed, error
		 FROM sync_log ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list syncs")
	}
	defer rows.Close() //nolint:errcheck

	var entries []model.SyncEntry
	for rows.Next() {
		e, err := scanSyncEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sync row")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list syncs")
}

func collectSQLCountries(rows *sql.Rows, op string) ([]model.Country, error) {
	defer rows.Close() //nolint:errcheck

	out := []model.Country{}
	for rows.Next() {
		c, err := scanCountry(rows)
		if err != nil {
			return nil, eris.Wrap(err, op+": scan")
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, op)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %d", entity, id)
	}
	return nil
}
