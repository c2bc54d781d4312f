package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscore/internal/apperr"
	"github.com/sells-group/leadscore/internal/db"
	"github.com/sells-group/leadscore/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
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
	facts             JSONB,
	scores            JSONB,
	last_enriched_at  TIMESTAMPTZ,
	last_engaged_at   TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_contacts_enrichment_status ON contacts(enrichment_status);

CREATE TABLE IF NOT EXISTS scoring_configs (
	tenant_id  TEXT PRIMARY KEY,
	config     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS icps (
	tenant_id  TEXT NOT NULL,
	id         TEXT NOT NULL,
	name       TEXT NOT NULL,
	criteria   JSONB NOT NULL,
	weights    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS score_history (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id   TEXT NOT NULL,
	contact_id  TEXT NOT NULL,
	framework   TEXT NOT NULL,
	score       INTEGER NOT NULL,
	tier        TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_score_history_tenant_fw ON score_history(tenant_id, framework, recorded_at DESC);
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const contactColumns = `tenant_id, id, name, email, company, title, phone, linkedin_url, website_url,
	industry, company_size, enrichment_status, enrichment_error, facts, scores,
	last_enriched_at, last_engaged_at, created_at, updated_at`

// GetContact returns one contact.
func (s *PostgresStore) GetContact(ctx context.Context, tenantID, id string) (*model.Contact, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	c, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("contact", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get contact %s", id)
	}
	return c, nil
}

// ListContacts returns the tenant's contacts ordered by id.
func (s *PostgresStore) ListContacts(ctx context.Context, f ContactFilter) ([]model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id = $1`
	args := []any{f.TenantID}
	if len(f.IDs) > 0 {
		query += ` AND id = ANY($2)`
		args = append(args, f.IDs)
	}
	query += ` ORDER BY id LIMIT ` + strconv.Itoa(listLimit(f)) + ` OFFSET ` + strconv.Itoa(max(f.Offset, 0))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contacts")
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate contacts")
}

// UpsertContact inserts a contact or updates its raw attributes. Enrichment
// fields are never overwritten here.
func (s *PostgresStore) UpsertContact(ctx context.Context, c *model.Contact) (*model.Contact, error) {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contacts (tenant_id, id, name, email, company, title, phone, linkedin_url, website_url,
			industry, company_size, last_engaged_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			name = EXCLUDED.name, email = EXCLUDED.email, company = EXCLUDED.company,
			title = EXCLUDED.title, phone = EXCLUDED.phone, linkedin_url = EXCLUDED.linkedin_url,
			website_url = EXCLUDED.website_url, industry = EXCLUDED.industry,
			company_size = EXCLUDED.company_size, last_engaged_at = EXCLUDED.last_engaged_at,
			updated_at = EXCLUDED.updated_at`,
		c.TenantID, c.ID, c.Name, c.Email, c.Company, c.Title, c.Phone, c.LinkedInURL, c.WebsiteURL,
		c.Industry, c.CompanySize, c.LastEngagedAt, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert contact %s", c.ID)
	}
	return s.GetContact(ctx, c.TenantID, c.ID)
}

// UpdateEnrichmentStatus records a status transition for a contact.
func (s *PostgresStore) UpdateEnrichmentStatus(ctx context.Context, tenantID, id string, status model.JobStatus, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contacts SET enrichment_status = $1, enrichment_error = $2, updated_at = $3 WHERE tenant_id = $4 AND id = $5`,
		string(status), reason, time.Now().UTC(), tenantID, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update enrichment status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("contact", id)
	}
	return nil
}

// SaveEnrichment stores a completed enrichment on the contact.
func (s *PostgresStore) SaveEnrichment(ctx context.Context, tenantID, id string, rec model.EnrichmentRecord) error {
	facts, err := encodeFacts(rec.Facts)
	if err != nil {
		return err
	}
	scores, err := encodeScores(rec.Scores)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE contacts SET enrichment_status = $1, enrichment_error = '', facts = $2, scores = $3,
			last_enriched_at = $4, updated_at = $4 WHERE tenant_id = $5 AND id = $6`,
		string(model.JobStatusCompleted), facts, scores, rec.EnrichedAt.UTC(), tenantID, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save enrichment %s", id)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("contact", id)
	}
	return nil
}

// FailInFlight marks every pending or processing contact failed.
func (s *PostgresStore) FailInFlight(ctx context.Context, reason string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contacts SET enrichment_status = $1, enrichment_error = $2, updated_at = $3
		WHERE enrichment_status IN ($4, $5)`,
		string(model.JobStatusFailed), reason, time.Now().UTC(),
		string(model.JobStatusPending), string(model.JobStatusProcessing),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: fail in-flight contacts")
	}
	return tag.RowsAffected(), nil
}

// GetScoringConfig returns the tenant's stored scoring document, or nil.
func (s *PostgresStore) GetScoringConfig(ctx context.Context, tenantID string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT config FROM scoring_configs WHERE tenant_id = $1`, tenantID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get scoring config %s", tenantID)
	}
	return data, nil
}

// PutScoringConfig replaces the tenant's scoring document.
func (s *PostgresStore) PutScoringConfig(ctx context.Context, tenantID string, data []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scoring_configs (tenant_id, config, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO UPDATE SET config = EXCLUDED.config, updated_at = EXCLUDED.updated_at`,
		tenantID, data, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: put scoring config %s", tenantID)
}

// GetICP returns one ICP.
func (s *PostgresStore) GetICP(ctx context.Context, tenantID, id string) (*model.ICP, error) {
	var (
		icp               model.ICP
		criteria, weights []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT tenant_id, id, name, criteria, weights, created_at, updated_at FROM icps WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	).Scan(&icp.TenantID, &icp.ID, &icp.Name, &criteria, &weights, &icp.CreatedAt, &icp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("icp", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get icp %s", id)
	}
	if err := decodeICP(&icp, criteria, weights); err != nil {
		return nil, err
	}
	return &icp, nil
}

// PutICP inserts or replaces an ICP.
func (s *PostgresStore) PutICP(ctx context.Context, icp *model.ICP) (*model.ICP, error) {
	criteria, err := json.Marshal(icp.Criteria)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal icp criteria")
	}
	weights, err := json.Marshal(icp.Weights)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal icp weights")
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO icps (tenant_id, id, name, criteria, weights, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (tenant_id, id) DO UPDATE SET name = EXCLUDED.name, criteria = EXCLUDED.criteria,
			weights = EXCLUDED.weights, updated_at = EXCLUDED.updated_at`,
		icp.TenantID, icp.ID, icp.Name, criteria, weights, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: put icp %s", icp.ID)
	}
	return s.GetICP(ctx, icp.TenantID, icp.ID)
}

var scoreHistoryColumns = []string{"id", "tenant_id", "contact_id", "framework", "score", "tier", "recorded_at"}

// AppendScores bulk-inserts score history rows with COPY.
func (s *PostgresStore) AppendScores(ctx context.Context, points []ScorePoint) (int64, error) {
	rows := make([][]any, 0, len(points))
	for _, p := range points {
		rows = append(rows, []any{uuid.NewString(), p.TenantID, p.ContactID, string(p.Framework), p.Score, string(p.Tier), p.RecordedAt})
	}
	n, err := db.CopyFrom(ctx, s.pool, "score_history", scoreHistoryColumns, rows)
	return n, eris.Wrap(err, "postgres: append scores")
}

// RecentScores returns the newest scores for a framework, newest first.
func (s *PostgresStore) RecentScores(ctx context.Context, tenantID string, fw model.Framework, limit int) ([]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT score FROM score_history WHERE tenant_id = $1 AND framework = $2 ORDER BY recorded_at DESC LIMIT $3`,
		tenantID, string(fw), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent scores")
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "postgres: scan score")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate scores")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanContact(row scannable) (*model.Contact, error) {
	var (
		c             model.Contact
		status        string
		facts, scores []byte
	)
	err := row.Scan(
		&c.TenantID, &c.ID, &c.Name, &c.Email, &c.Company, &c.Title, &c.Phone, &c.LinkedInURL, &c.WebsiteURL,
		&c.Industry, &c.CompanySize, &status, &c.EnrichmentError, &facts, &scores,
		&c.LastEnrichedAt, &c.LastEngagedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.EnrichmentStatus = model.JobStatus(status)
	if c.Facts, err = decodeFacts(facts); err != nil {
		return nil, err
	}
	if c.Scores, err = decodeScores(scores); err != nil {
		return nil, err
	}
	return &c, nil
}
