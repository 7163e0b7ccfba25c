package store

import (
	"context"
	"embed"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/countrysync/internal/db"
	"github.com/sells-group/countrysync/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `mapstructure:"max_conns"`
	MinConns int32 `mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	cfg := db.PoolConfig{URL: connString, MaxConns: 10, MinConns: 2}
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			cfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			cfg.MinConns = poolCfg.MinConns
		}
	}
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Close leaves the pool open.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return eris.Wrap(db.Migrate(ctx, s.pool, migrationFS, "migrations"), "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetByCode(ctx context.Context, code string) (*model.Country, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+countryColumns+` FROM countries WHERE alpha2_code = $1`,
		model.NormalizeCode(code),
	)
	c, err := scanCountry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get country %s", code)
	}
	return c, nil
}

func (s *PostgresStore) GetByName(ctx context.Context, name string) (*model.Country, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+countryColumns+` FROM countries WHERE name_key = $1 ORDER BY alpha2_code LIMIT 1`,
		model.NameKey(name),
	)
	c, err := scanCountry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get country by name %q", name)
	}
	return c, nil
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]model.Country, error) {
	limit, offset = clampPage(limit, offset)
	if limit == 0 {
		return []model.Country{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+countryColumns+` FROM countries
		 ORDER BY name_key IS NULL, name_key, alpha2_code
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list countries")
	}
	return collectCountries(rows, "postgres: list countries")
}

func (s *PostgresStore) ListWithCoordinates(ctx context.Context) ([]model.Country, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+countryColumns+` FROM countries
		 WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		 ORDER BY alpha2_code`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list located countries")
	}
	return collectCountries(rows, "postgres: list located countries")
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM countries`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count countries")
	}
	return n, nil
}

func (s *PostgresStore) CreateManual(ctx context.Context, c model.Country) (*model.Country, error) {
	rec := newManual(c, time.Now().UTC())
	args, err := manualRow(rec)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO countries (`+strings.Join(insertColumns, ", ")+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		args...,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, eris.Wrapf(ErrDuplicateCode, "postgres: insert country %s", rec.Alpha2Code)
		}
		return nil, eris.Wrapf(err, "postgres: insert country %s", rec.Alpha2Code)
	}
	return rec, nil
}

// UpsertExternal stages the batch with COPY and merges it in one statement,
// so overlapping runs serialize on the unique index rather than racing a
// read-then-write.
func (s *PostgresStore) UpsertExternal(ctx context.Context, records []model.ExternalCountry, syncedAt time.Time) (int64, error) {
	records = model.DedupeByCode(records)
	if len(records) == 0 {
		return 0, nil
	}

	now := syncedAt.UTC()
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		row, err := externalRow(r, uuid.New().String(), now)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	n, err := db.BulkUpsert(ctx, s.pool, externalUpsertConfig(), rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert external countries")
	}
	return n, nil
}

func externalUpsertConfig() db.UpsertConfig {
	return db.UpsertConfig{
		Table:        "countries",
		Columns:      insertColumns,
		ConflictKeys: []string{"alpha2_code"},
		UpdateCols:   append(append([]string{}, mergeColumns...), stampColumns...),
		Coalesce:     true,
		Assign:       stampColumns,
		Where:        "t.source = '" + string(model.ProvenanceExternal) + "'",
	}
}

func (s *PostgresStore) StartSync(ctx context.Context, source string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sync_log (source, status, started_at) VALUES ($1, $2, now()) RETURNING id`,
		source, string(model.SyncStatusRunning),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: start sync for %s", source)
	}
	return id, nil
}

func (s *PostgresStore) CompleteSync(ctx context.Context, id int64, processed int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_log SET status = $1, completed_at = now(), processed = $2 WHERE id = $3`,
		string(model.SyncStatusComplete), processed, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete sync %d", id)
	}
	return checkTag(tag, "sync", id)
}

func (s *PostgresStore) FailSync(ctx context.Context, id int64, syncErr error) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_log SET status = $1, completed_at = now(), error = $2 WHERE id = $3`,
		string(model.SyncStatusFailed), errorText(syncErr), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail sync %d", id)
	}
	return checkTag(tag, "sync", id)
}

func (s *PostgresStore) ListSyncs(ctx context.Context, limit int) ([]model.SyncEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, status, started_at, completed_at, processed, error
		 FROM sync_log ORDER BY started_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list syncs")
	}
	defer rows.Close()

	var entries []model.SyncEntry
	for rows.Next() {
		e, err := scanSyncEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan sync row")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list syncs")
}

func checkTag(tag pgconn.CommandTag, entity string, id int64) error {
	if tag.RowsAffected() == 0 {
		return eris.Errorf("%s not found: %d", entity, id)
	}
	return nil
}

func collectCountries(rows pgx.Rows, op string) ([]model.Country, error) {
	defer rows.Close()

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
