package corpus

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// ErrMetaNotFound indicates a corpus_meta key does not exist yet.
var ErrMetaNotFound = errors.New("corpus meta key not found")

// UpsertPassageParams are the parameters for Querier.UpsertPassage.
type UpsertPassageParams struct {
	ID        string
	Content   string
	SourceID  string
	Embedding pgvector.Vector
}

// SearchPassagesRow is one row of a similarity search.
type SearchPassagesRow struct {
	ID         string
	Content    string
	SourceID   string
	CreatedAt  pgtype.Timestamptz
	Similarity float32
}

// Querier defines the database operations the Store needs.
// Interfaces are defined by the consumer, not the provider; tests substitute
// a fake, production uses PgxQuerier.
type Querier interface {
	// UpsertPassage inserts or updates a passage
	UpsertPassage(ctx context.Context, arg UpsertPassageParams) error

	// SearchPassages returns passages by ascending cosine distance to the
	// query embedding, ties broken by passage id (stable order)
	SearchPassages(ctx context.Context, embedding pgvector.Vector, limit int32) ([]SearchPassagesRow, error)

	// CountPassages counts all passages
	CountPassages(ctx context.Context) (int64, error)

	// DeletePassage deletes a passage by ID
	DeletePassage(ctx context.Context, id string) error

	// GetMeta reads a corpus_meta value; ErrMetaNotFound when absent
	GetMeta(ctx context.Context, key string) (string, error)

	// SetMeta writes a corpus_meta value, claiming the key only once
	SetMeta(ctx context.Context, key, value string) error
}

// DB is the subset of pgxpool.Pool the querier uses.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgxQuerier implements Querier against PostgreSQL + pgvector.
type PgxQuerier struct {
	db DB
}

// NewQuerier creates a PgxQuerier. db is typically a *pgxpool.Pool with
// pgvector types registered (see app.Setup).
func NewQuerier(db DB) *PgxQuerier {
	return &PgxQuerier{db: db}
}

const upsertPassageSQL = `
INSERT INTO passages (id, content, source_id, embedding)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET content = EXCLUDED.content,
    source_id = EXCLUDED.source_id,
    embedding = EXCLUDED.embedding`

func (q *PgxQuerier) UpsertPassage(ctx context.Context, arg UpsertPassageParams) error {
	_, err := q.db.Exec(ctx, upsertPassageSQL, arg.ID, arg.Content, arg.SourceID, arg.Embedding)
	if err != nil {
		return fmt.Errorf("upserting passage %q: %w", arg.ID, err)
	}
	return nil
}

// searchPassagesSQL orders by cosine distance; the secondary order on id makes
// results deterministic when distances tie.
const searchPassagesSQL = `
SELECT id, content, source_id, created_at, 1 - (embedding <=> $1) AS similarity
FROM passages
ORDER BY embedding <=> $1, id
LIMIT $2`

func (q *PgxQuerier) SearchPassages(ctx context.Context, embedding pgvector.Vector, limit int32) ([]SearchPassagesRow, error) {
	rows, err := q.db.Query(ctx, searchPassagesSQL, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("searching passages: %w", err)
	}
	defer rows.Close()

	var results []SearchPassagesRow
	for rows.Next() {
		var row SearchPassagesRow
		if err := rows.Scan(&row.ID, &row.Content, &row.SourceID, &row.CreatedAt, &row.Similarity); err != nil {
			return nil, fmt.Errorf("scanning passage row: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading passage rows: %w", err)
	}
	return results, nil
}

func (q *PgxQuerier) CountPassages(ctx context.Context) (int64, error) {
	var count int64
	if err := q.db.QueryRow(ctx, `SELECT count(*) FROM passages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting passages: %w", err)
	}
	return count, nil
}

func (q *PgxQuerier) DeletePassage(ctx context.Context, id string) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM passages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting passage %q: %w", id, err)
	}
	return nil
}

func (q *PgxQuerier) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := q.db.QueryRow(ctx, `SELECT value FROM corpus_meta WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrMetaNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading corpus meta %q: %w", key, err)
	}
	return value, nil
}

func (q *PgxQuerier) SetMeta(ctx context.Context, key, value string) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO corpus_meta (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
		key, value)
	if err != nil {
		return fmt.Errorf("writing corpus meta %q: %w", key, err)
	}
	return nil
}

// Compile-time check.
var _ Querier = (*PgxQuerier)(nil)
