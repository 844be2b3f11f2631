// Package posts reads blog rows from the relational store. The blog
// application owns the table; this service never writes to it.
package posts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/kailas-cloud/blograg/internal/domain"
)

// DefaultMinContentLen is the minimum trimmed content length for a post to be
// eligible for indexing.
const DefaultMinContentLen = 50

const listQuery = `SELECT id, title, content FROM blogapp_schema.blog
WHERE content IS NOT NULL AND content <> '' LIMIT $1`

const getQuery = `SELECT id, title, content FROM blogapp_schema.blog WHERE id = $1`

// Repo reads blog posts via sqlx.
type Repo struct {
	db            *sqlx.DB
	minContentLen int
}

// New creates a post repository. minContentLen <= 0 falls back to the default.
func New(db *sqlx.DB, minContentLen int) *Repo {
	if minContentLen <= 0 {
		minContentLen = DefaultMinContentLen
	}
	return &Repo{db: db, minContentLen: minContentLen}
}

type postRow struct {
	ID      int64          `db:"id"`
	Title   sql.NullString `db:"title"`
	Content sql.NullString `db:"content"`
}

func (r postRow) toDomain() domain.Post {
	return domain.Post{ID: r.ID, Title: r.Title.String, Content: r.Content.String}
}

// ListIndexable fetches up to limit posts with non-empty content, dropping
// rows whose trimmed content is at or below the minimum length.
func (r *Repo) ListIndexable(ctx context.Context, limit int) ([]domain.Post, error) {
	var rows []postRow
	if err := r.db.SelectContext(ctx, &rows, listQuery, limit); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	posts := make([]domain.Post, 0, len(rows))
	for _, row := range rows {
		if len(strings.TrimSpace(row.Content.String)) <= r.minContentLen {
			continue
		}
		posts = append(posts, row.toDomain())
	}
	return posts, nil
}

// GetByID fetches a single post regardless of content length.
func (r *Repo) GetByID(ctx context.Context, id int64) (domain.Post, error) {
	var row postRow
	if err := r.db.GetContext(ctx, &row, getQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Post{}, fmt.Errorf("post %d: %w", id, domain.ErrPostNotFound)
		}
		return domain.Post{}, fmt.Errorf("get post %d: %w", id, err)
	}
	return row.toDomain(), nil
}

// Eligible reports whether a post's content passes the indexing length filter.
func (r *Repo) Eligible(p domain.Post) bool {
	return len(strings.TrimSpace(p.Content)) > r.minContentLen
}

// Ping probes database connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *Repo) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close postgres: %w", err)
	}
	return nil
}
