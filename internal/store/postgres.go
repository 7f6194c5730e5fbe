package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enrich/internal/db"
	"github.com/sells-group/catalog-enrich/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects a pool and verifies it with a ping.
func NewPostgres(ctx context.Context, connString string, maxConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	if maxConns <= 0 {
		maxConns = 10
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS items (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	sku               TEXT NOT NULL DEFAULT '',
	image_url         TEXT NOT NULL DEFAULT '',
	description       TEXT,
	enrichment_status TEXT NOT NULL DEFAULT 'pending',
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS item_enrichment (
	item_id           TEXT PRIMARY KEY REFERENCES items(id),
	description       TEXT NOT NULL,
	specifications    JSONB NOT NULL,
	features          JSONB NOT NULL,
	benefits          JSONB NOT NULL,
	tags              JSONB NOT NULL,
	sources           JSONB NOT NULL,
	enrichment_status TEXT NOT NULL,
	enrichment_source TEXT NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS vision_cache (
	item_id    TEXT PRIMARY KEY,
	result     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS enrichment_reports (
	run_id             TEXT PRIMARY KEY,
	item_id            TEXT NOT NULL,
	overall_confidence TEXT NOT NULL,
	all_gates_passed   BOOLEAN NOT NULL,
	report             JSONB NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_status ON items(enrichment_status);
CREATE INDEX IF NOT EXISTS idx_reports_item ON enrichment_reports(item_id, created_at);
`

var itemUpsert = db.UpsertSpec{
	Table:        "items",
	Columns:      []string{"id", "name", "sku", "image_url", "description", "enrichment_status", "updated_at"},
	ConflictKeys: []string{"id"},
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetItem(ctx context.Context, id string) (*model.Item, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, sku, image_url, description, enrichment_status, updated_at FROM items WHERE id = $1`, id)
	it, err := scanPgItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get item %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get item %s", id)
	}
	return it, nil
}

// UpsertItems bulk-loads items through a COPY-staged merge.
func (s *PostgresStore) UpsertItems(ctx context.Context, items []model.Item) (int, error) {
	now := time.Now().UTC()
	rows := make([][]any, len(items))
	for i, it := range items {
		var desc *string
		if it.Description != "" {
			desc = &it.Description
		}
		rows[i] = []any{it.ID, it.Name, it.SKU, it.ImageURL, desc, string(statusOrPending(it.EnrichmentStatus)), now}
	}
	n, err := db.BulkUpsert(ctx, s.pool, itemUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert items")
	}
	return int(n), nil
}

func (s *PostgresStore) ListPendingItems(ctx context.Context, minDescriptionChars, limit int) ([]model.Item, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, sku, image_url, description, enrichment_status, updated_at FROM items
		 WHERE enrichment_status = 'pending' OR char_length(COALESCE(description, '')) < $1
		 ORDER BY updated_at, id LIMIT $2`,
		minDescriptionChars, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending items")
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		it, err := scanPgItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan pending item")
		}
		items = append(items, *it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: iterate pending items")
}

func (s *PostgresStore) SetEnrichmentStatus(ctx context.Context, id string, status model.EnrichmentStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE items SET enrichment_status = $1, updated_at = now() WHERE id = $2`, string(status), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: set enrichment status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "item %s", id)
	}
	return nil
}

func (s *PostgresStore) WriteEnrichment(ctx context.Context, p model.CatalogPayload) error {
	cols, err := encodeEnrichment(p)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin write enrichment")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE items SET description = $1, enrichment_status = $2, updated_at = now() WHERE id = $3`,
		p.Description, string(p.EnrichmentStatus), p.ItemID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update item %s", p.ItemID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "item %s", p.ItemID)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO item_enrichment (item_id, description, specifications, features, benefits, tags, sources,
			enrichment_status, enrichment_source, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		 ON CONFLICT (item_id) DO UPDATE SET
			description = EXCLUDED.description, specifications = EXCLUDED.specifications,
			features = EXCLUDED.features, benefits = EXCLUDED.benefits, tags = EXCLUDED.tags,
			sources = EXCLUDED.sources, enrichment_status = EXCLUDED.enrichment_status,
			enrichment_source = EXCLUDED.enrichment_source, updated_at = EXCLUDED.updated_at`,
		p.ItemID, p.Description, cols.specs, cols.features, cols.benefits, cols.tags, cols.sources,
		string(p.EnrichmentStatus), string(p.EnrichmentSource))
	if err != nil {
		return eris.Wrapf(err, "postgres: write enrichment %s", p.ItemID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit write enrichment")
}

func (s *PostgresStore) ReadEnrichment(ctx context.Context, itemID string) (*model.CatalogRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT item_id, description, specifications, features, benefits, tags, sources,
			enrichment_status, enrichment_source, updated_at
		 FROM item_enrichment WHERE item_id = $1`, itemID)

	var rec model.CatalogRecord
	var cols enrichmentColumns
	err := row.Scan(&rec.ItemID, &rec.Description, &cols.specs, &cols.features, &cols.benefits, &cols.tags,
		&cols.sources, &rec.EnrichmentStatus, &rec.EnrichmentSource, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: read enrichment %s", itemID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: read enrichment %s", itemID)
	}
	if err := decodeEnrichment(&rec, cols); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) GetCachedVision(ctx context.Context, itemID string) (*model.VisionResult, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT result FROM vision_cache WHERE item_id = $1`, itemID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached vision")
	}
	var v model.VisionResult
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached vision")
	}
	return &v, nil
}

func (s *PostgresStore) SetCachedVision(ctx context.Context, itemID string, v model.VisionResult) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal vision")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO vision_cache (item_id, result, created_at) VALUES ($1, $2, now())
		 ON CONFLICT (item_id) DO UPDATE SET result = EXCLUDED.result, created_at = EXCLUDED.created_at`,
		itemID, raw)
	return eris.Wrap(err, "postgres: set cached vision")
}

func (s *PostgresStore) SaveReport(ctx context.Context, r *model.EnrichmentReport) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO enrichment_reports (run_id, item_id, overall_confidence, all_gates_passed, report, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.RunID, r.ItemID, string(r.OverallConfidence), r.AllGatesPassed, raw, r.Timestamp.UTC())
	return eris.Wrapf(err, "postgres: save report %s", r.RunID)
}

func (s *PostgresStore) GetReport(ctx context.Context, runID string) (*model.EnrichmentReport, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT report FROM enrichment_reports WHERE run_id = $1`, runID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get report %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get report %s", runID)
	}
	var r model.EnrichmentReport
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal report")
	}
	return &r, nil
}

func (s *PostgresStore) ListReports(ctx context.Context, f ReportFilter) ([]model.ReportSummary, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, item_id, overall_confidence, all_gates_passed, created_at FROM enrichment_reports
		 WHERE ($1 = '' OR item_id = $1)
		 ORDER BY created_at DESC, run_id LIMIT $2`,
		f.ItemID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var out []model.ReportSummary
	for rows.Next() {
		var rs model.ReportSummary
		if err := rows.Scan(&rs.RunID, &rs.ItemID, &rs.OverallConfidence, &rs.AllGatesPassed, &rs.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		out = append(out, rs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate reports")
}

func scanPgItem(row pgx.Row) (*model.Item, error) {
	var it model.Item
	var desc *string
	if err := row.Scan(&it.ID, &it.Name, &it.SKU, &it.ImageURL, &desc, &it.EnrichmentStatus, &it.UpdatedAt); err != nil {
		return nil, err
	}
	if desc != nil {
		it.Description = *desc
	}
	return &it, nil
}
