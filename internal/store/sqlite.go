package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadscore/internal/apperr"
	"github.com/sells-group/leadscore/internal/model"
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
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contacts (
	tenant_id         TEXT NOT NULL,
	id                TEXT NOT NULL,
	name              TEXT NOT NULL DEFAULT '',
	email             TEXT NOT NULL DEFAULT '',
	company           TEXT NOT NULL DEFAULT '',
	title             TEXT NOT NULL DEFAULT '',
	phone             TEXT NOT NULL DEFAULT '',
	linkedin_url      TEXT NOT NULL DEFAULT '',
	website_url       TEXT NOT NULL DEFAULT '',
	industry          TEXT NOT NULL DEFAULT '',
	company_size      TEXT NOT NULL DEFAULT '',
	enrichment_status TEXT NOT NULL DEFAULT '',
	enrichment_error  TEXT NOT NULL DEFAULT '',
	facts             TEXT,
	scores            TEXT,
	last_enriched_at  DATETIME,
	last_engaged_at   DATETIME,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_contacts_enrichment_status ON contacts(enrichment_status);

CREATE TABLE IF NOT EXISTS scoring_configs (
	tenant_id  TEXT PRIMARY KEY,
	config     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS icps (
	tenant_id  TEXT NOT NULL,
	id         TEXT NOT NULL,
	name       TEXT NOT NULL,
	criteria   TEXT NOT NULL,
	weights    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS score_history (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	contact_id  TEXT NOT NULL,
	framework   TEXT NOT NULL,
	score       INTEGER NOT NULL,
	tier        TEXT NOT NULL,
	recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_score_history_tenant_fw ON score_history(tenant_id, framework, recorded_at);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetContact returns one contact.
func (s *SQLiteStore) GetContact(ctx context.Context, tenantID, id string) (*model.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	)
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("contact", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get contact %s", id)
	}
	return c, nil
}

// ListContacts returns the tenant's contacts ordered by id.
func (s *SQLiteStore) ListContacts(ctx context.Context, f ContactFilter) ([]model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id = ?`
	args := []any{f.TenantID}
	if len(f.IDs) > 0 {
		query += ` AND id IN (?` + strings.Repeat(`, ?`, len(f.IDs)-1) + `)`
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, listLimit(f), max(f.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contacts")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate contacts")
}

// UpsertContact inserts a contact or updates its raw attributes.
func (s *SQLiteStore) UpsertContact(ctx context.Context, c *model.Contact) (*model.Contact, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (tenant_id, id, name, email, company, title, phone, linkedin_url, website_url,
			industry, company_size, last_engaged_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			name = excluded.name, email = excluded.email, company = excluded.company,
			title = excluded.title, phone = excluded.phone, linkedin_url = excluded.linkedin_url,
			website_url = excluded.website_url, industry = excluded.industry,
			company_size = excluded.company_size, last_engaged_at = excluded.last_engaged_at,
			updated_at = excluded.updated_at`,
		c.TenantID, c.ID, c.Name, c.Email, c.Company, c.Title, c.Phone, c.LinkedInURL, c.WebsiteURL,
		c.Industry, c.CompanySize, nullTime(c.LastEngagedAt), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert contact %s", c.ID)
	}
	return s.GetContact(ctx, c.TenantID, c.ID)
}

// UpdateEnrichmentStatus records a status transition for a contact.
func (s *SQLiteStore) UpdateEnrichmentStatus(ctx context.Context, tenantID, id string, status model.JobStatus, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET enrichment_status = ?, enrichment_error = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		string(status), reason, time.Now().UTC(), tenantID, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update enrichment status %s", id)
	}
	return checkRowsAffected(res, "contact", id)
}

// SaveEnrichment stores a completed enrichment on the contact.
func (s *SQLiteStore) SaveEnrichment(ctx context.Context, tenantID, id string, rec model.EnrichmentRecord) error {
	facts, err := encodeFacts(rec.Facts)
	if err != nil {
		return err
	}
	scores, err := encodeScores(rec.Scores)
	if err != nil {
		return err
	}

	at := rec.EnrichedAt.UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET enrichment_status = ?, enrichment_error = '', facts = ?, scores = ?,
			last_enriched_at = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		string(model.JobStatusCompleted), nullText(facts), nullText(scores), at, at, tenantID, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save enrichment %s", id)
	}
	return checkRowsAffected(res, "contact", id)
}

// FailInFlight marks every pending or processing contact failed.
func (s *SQLiteStore) FailInFlight(ctx context.Context, reason string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET enrichment_status = ?, enrichment_error = ?, updated_at = ?
		WHERE enrichment_status IN (?, ?)`,
		string(model.JobStatusFailed), reason, time.Now().UTC(),
		string(model.JobStatusPending), string(model.JobStatusProcessing),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: fail in-flight contacts")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

// GetScoringConfig returns the tenant's stored scoring document, or nil.
func (s *SQLiteStore) GetScoringConfig(ctx context.Context, tenantID string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT config FROM scoring_configs WHERE tenant_id = ?`, tenantID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get scoring config %s", tenantID)
	}
	return []byte(data), nil
}

// PutScoringConfig replaces the tenant's scoring document.
func (s *SQLiteStore) PutScoringConfig(ctx context.Context, tenantID string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scoring_configs (tenant_id, config, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (tenant_id) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at`,
		tenantID, string(data), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: put scoring config %s", tenantID)
}

// GetICP returns one ICP.
func (s *SQLiteStore) GetICP(ctx context.Context, tenantID, id string) (*model.ICP, error) {
	var (
		icp               model.ICP
		criteria, weights string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT tenant_id, id, name, criteria, weights, created_at, updated_at FROM icps WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	).Scan(&icp.TenantID, &icp.ID, &icp.Name, &criteria, &weights, &icp.CreatedAt, &icp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("icp", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get icp %s", id)
	}
	if err := decodeICP(&icp, []byte(criteria), []byte(weights)); err != nil {
		return nil, err
	}
	return &icp, nil
}

// PutICP inserts or replaces an ICP.
func (s *SQLiteStore) PutICP(ctx context.Context, icp *model.ICP) (*model.ICP, error) {
	criteria, err := json.Marshal(icp.Criteria)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal icp criteria")
	}
	weights, err := json.Marshal(icp.Weights)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal icp weights")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO icps (tenant_id, id, name, criteria, weights, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, id) DO UPDATE SET name = excluded.name, criteria = excluded.criteria,
			weights = excluded.weights, updated_at = excluded.updated_at`,
		icp.TenantID, icp.ID, icp.Name, string(criteria), string(weights), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: put icp %s", icp.ID)
	}
	return s.GetICP(ctx, icp.TenantID, icp.ID)
}

// AppendScores inserts score history rows in one transaction.
func (s *SQLiteStore) AppendScores(ctx context.Context, points []ScorePoint) (int64, error) {
	if len(points) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin append scores")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO score_history (id, tenant_id, contact_id, framework, score, tier, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare append scores")
	}
	defer stmt.Close() //nolint:errcheck

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), p.TenantID, p.ContactID,
			string(p.Framework), p.Score, string(p.Tier), p.RecordedAt.UTC()); err != nil {
			return 0, eris.Wrap(err, "sqlite: insert score")
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit append scores")
	}
	return int64(len(points)), nil
}

// RecentScores returns the newest scores for a framework, newest first.
func (s *SQLiteStore) RecentScores(ctx context.Context, tenantID string, fw model.Framework, limit int) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT score FROM score_history WHERE tenant_id = ? AND framework = ? ORDER BY recorded_at DESC, rowid DESC LIMIT ?`,
		tenantID, string(fw), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent scores")
	}
	defer rows.Close() //nolint:errcheck

	var out []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate scores")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return apperr.NotFound(entity, id)
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullText(data []byte) any {
	if data == nil {
		return nil
	}
	return string(data)
}
