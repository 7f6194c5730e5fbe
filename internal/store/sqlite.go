package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn in WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer avoids SQLITE_BUSY between the pipeline and the server.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS items (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	sku               TEXT NOT NULL DEFAULT '',
	image_url         TEXT NOT NULL DEFAULT '',
	description       TEXT,
	enrichment_status TEXT NOT NULL DEFAULT 'pending',
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS item_enrichment (
	item_id           TEXT PRIMARY KEY REFERENCES items(id),
	description       TEXT NOT NULL,
	specifications    TEXT NOT NULL,
	features          TEXT NOT NULL,
	benefits          TEXT NOT NULL,
	tags              TEXT NOT NULL,
	sources           TEXT NOT NULL,
	enrichment_status TEXT NOT NULL,
	enrichment_source TEXT NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS vision_cache (
	item_id    TEXT PRIMARY KEY,
	result     TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS enrichment_reports (
	run_id             TEXT PRIMARY KEY,
	item_id            TEXT NOT NULL,
	overall_confidence TEXT NOT NULL,
	all_gates_passed   INTEGER NOT NULL,
	report             TEXT NOT NULL,
	created_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_status ON items(enrichment_status);
CREATE INDEX IF NOT EXISTS idx_reports_item ON enrichment_reports(item_id, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*model.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, sku, image_url, description, enrichment_status, updated_at FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get item %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get item %s", id)
	}
	return it, nil
}

func (s *SQLiteStore) UpsertItems(ctx context.Context, items []model.Item) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert items")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, it := range items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO items (id, name, sku, image_url, description, enrichment_status, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, sku = excluded.sku, image_url = excluded.image_url,
				description = excluded.description, enrichment_status = excluded.enrichment_status,
				updated_at = excluded.updated_at`,
			it.ID, it.Name, it.SKU, it.ImageURL, nullString(it.Description),
			string(statusOrPending(it.EnrichmentStatus)), now)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert item %s", it.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert items")
	}
	return len(items), nil
}

func (s *SQLiteStore) ListPendingItems(ctx context.Context, minDescriptionChars, limit int) ([]model.Item, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, sku, image_url, description, enrichment_status, updated_at FROM items
		 WHERE enrichment_status = 'pending' OR length(COALESCE(description, '')) < ?
		 ORDER BY updated_at, id LIMIT ?`,
		minDescriptionChars, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending items")
	}
	defer rows.Close() //nolint:errcheck

	var items []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pending item")
		}
		items = append(items, *it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: iterate pending items")
}

func (s *SQLiteStore) SetEnrichmentStatus(ctx context.Context, id string, status model.EnrichmentStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET enrichment_status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set enrichment status %s", id)
	}
	return checkRowsAffected(res, "item", id)
}

func (s *SQLiteStore) WriteEnrichment(ctx context.Context, p model.CatalogPayload) error {
	cols, err := encodeEnrichment(p)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin write enrichment")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE items SET description = ?, enrichment_status = ?, updated_at = ? WHERE id = ?`,
		p.Description, string(p.EnrichmentStatus), now, p.ItemID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update item %s", p.ItemID)
	}
	if err := checkRowsAffected(res, "item", p.ItemID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO item_enrichment (item_id, description, specifications, features, benefits, tags, sources,
			enrichment_status, enrichment_source, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(item_id) DO UPDATE SET
			description = excluded.description, specifications = excluded.specifications,
			features = excluded.features, benefits = excluded.benefits, tags = excluded.tags,
			sources = excluded.sources, enrichment_status = excluded.enrichment_status,
			enrichment_source = excluded.enrichment_source, updated_at = excluded.updated_at`,
		p.ItemID, p.Description, string(cols.specs), string(cols.features), string(cols.benefits),
		string(cols.tags), string(cols.sources), string(p.EnrichmentStatus), string(p.EnrichmentSource), now)
	if err != nil {
		return eris.Wrapf(err, "sqlite: write enrichment %s", p.ItemID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit write enrichment")
}

func (s *SQLiteStore) ReadEnrichment(ctx context.Context, itemID string) (*model.CatalogRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT item_id, description, specifications, features, benefits, tags, sources,
			enrichment_status, enrichment_source, updated_at
		 FROM item_enrichment WHERE item_id = ?`, itemID)

	var rec model.CatalogRecord
	var specs, features, benefits, tags, sources string
	err := row.Scan(&rec.ItemID, &rec.Description, &specs, &features, &benefits, &tags, &sources,
		&rec.EnrichmentStatus, &rec.EnrichmentSource, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: read enrichment %s", itemID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: read enrichment %s", itemID)
	}
	cols := enrichmentColumns{[]byte(specs), []byte(features), []byte(benefits), []byte(tags), []byte(sources)}
	if err := decodeEnrichment(&rec, cols); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) GetCachedVision(ctx context.Context, itemID string) (*model.VisionResult, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM vision_cache WHERE item_id = ?`, itemID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached vision")
	}
	var v model.VisionResult
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached vision")
	}
	return &v, nil
}

func (s *SQLiteStore) SetCachedVision(ctx context.Context, itemID string, v model.VisionResult) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal vision")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO vision_cache (item_id, result, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(item_id) DO UPDATE SET result = excluded.result, created_at = excluded.created_at`,
		itemID, string(raw), time.Now().UTC())
	return eris.Wrap(err, "sqlite: set cached vision")
}

func (s *SQLiteStore) SaveReport(ctx context.Context, r *model.EnrichmentReport) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichment_reports (run_id, item_id, overall_confidence, all_gates_passed, report, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunID, r.ItemID, string(r.OverallConfidence), r.AllGatesPassed, string(raw), r.Timestamp.UTC())
	return eris.Wrapf(err, "sqlite: save report %s", r.RunID)
}

func (s *SQLiteStore) GetReport(ctx context.Context, runID string) (*model.EnrichmentReport, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM enrichment_reports WHERE run_id = ?`, runID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get report %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get report %s", runID)
	}
	var r model.EnrichmentReport
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal report")
	}
	return &r, nil
}

func (s *SQLiteStore) ListReports(ctx context.Context, f ReportFilter) ([]model.ReportSummary, error) {
	query := `SELECT run_id, item_id, overall_confidence, all_gates_passed, created_at FROM enrichment_reports`
	var args []any
	if f.ItemID != "" {
		query += ` WHERE item_id = ?`
		args = append(args, f.ItemID)
	}
	query += ` ORDER BY created_at DESC, run_id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ReportSummary
	for rows.Next() {
		var rs model.ReportSummary
		if err := rows.Scan(&rs.RunID, &rs.ItemID, &rs.OverallConfidence, &rs.AllGatesPassed, &rs.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report")
		}
		out = append(out, rs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate reports")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanItem(row scannable) (*model.Item, error) {
	var it model.Item
	var desc sql.NullString
	if err := row.Scan(&it.ID, &it.Name, &it.SKU, &it.ImageURL, &desc, &it.EnrichmentStatus, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.Description = desc.String
	return &it, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
