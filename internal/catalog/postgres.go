package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"opportunity-recommender/internal/models"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Postgres stores records in one table per collection, with embeddings in a
// pgvector column. Store order is the serial seq column.
type Postgres struct {
	db    *sql.DB
	table string
}

func NewPostgres(db *sql.DB, table string) (*Postgres, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: postgres", ErrMissingClient)
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Postgres{db: db, table: table}, nil
}

func (p *Postgres) Backend() string { return "postgres" }

// EnsureSchema creates the collection table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL,
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT '',
			interest_tags TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			link TEXT NOT NULL DEFAULT '',
			age_min INTEGER,
			age_max INTEGER,
			region TEXT NOT NULL DEFAULT '',
			embedding vector
		)`, p.table),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema for %s: %w", p.table, err)
		}
	}
	return nil
}

// buildFindQuery renders the filtered select. Age bounds compare against
// NULL as unknown, which excludes records missing either bound.
func (p *Postgres) buildFindQuery(f Filter) (string, []interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT seq, id, title, description, type, interest_tags, image_url, link, age_min, age_max, region, embedding FROM %s WHERE age_min <= $1 AND age_max >= $1", p.table)
	args := []interface{}{f.Age}

	if len(f.Regions) > 0 {
		args = append(args, pq.Array(lowerAll(f.Regions)))
		fmt.Fprintf(&b, " AND lower(region) = ANY($%d)", len(args))
	}
	if f.RequireEmbedding {
		b.WriteString(" AND embedding IS NOT NULL")
	}
	b.WriteString(" ORDER BY seq")
	return b.String(), args
}

func (p *Postgres) Find(ctx context.Context, f Filter) ([]models.Opportunity, error) {
	query, args := p.buildFindQuery(f)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", p.table, err)
	}
	defer rows.Close()

	out := make([]models.Opportunity, 0)
	for rows.Next() {
		var (
			rec            models.Opportunity
			seq            int64
			ageMin, ageMax sql.NullInt64
			embedding      *pgvector.Vector
		)
		if err := rows.Scan(&seq, &rec.ID, &rec.Title, &rec.Description, &rec.Type, &rec.InterestTags,
			&rec.ImageURL, &rec.Link, &ageMin, &ageMax, &rec.Region, &embedding); err != nil {
			return nil, fmt.Errorf("scan %s: %w", p.table, err)
		}
		rec.StoreID = strconv.FormatInt(seq, 10)
		if ageMin.Valid {
			rec.AgeMin = models.IntPtr(int(ageMin.Int64))
		}
		if ageMax.Valid {
			rec.AgeMax = models.IntPtr(int(ageMax.Int64))
		}
		if embedding != nil {
			rec.Embedding = embedding.Slice()
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", p.table, err)
	}
	return out, nil
}

// Upsert writes all records in one transaction, keyed by id.
func (p *Postgres) Upsert(ctx context.Context, records []models.Opportunity) error {
	if err := requireIDs(records); err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt := fmt.Sprintf(`INSERT INTO %s (id, title, description, type, interest_tags, image_url, link, age_min, age_max, region, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			type = EXCLUDED.type,
			interest_tags = EXCLUDED.interest_tags,
			image_url = EXCLUDED.image_url,
			link = EXCLUDED.link,
			age_min = EXCLUDED.age_min,
			age_max = EXCLUDED.age_max,
			region = EXCLUDED.region,
			embedding = EXCLUDED.embedding`, p.table)

	for _, rec := range records {
		var embedding interface{}
		if rec.HasEmbedding() {
			embedding = pgvector.NewVector(rec.Embedding)
		}
		if _, err := tx.ExecContext(ctx, stmt,
			rec.ID, rec.Title, rec.Description, rec.Type, rec.InterestTags, rec.ImageURL, rec.Link,
			nullableInt(rec.AgeMin), nullableInt(rec.AgeMax), rec.Region, embedding,
		); err != nil {
			return fmt.Errorf("upsert %s into %s: %w", rec.ID, p.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return int64(*v)
}
