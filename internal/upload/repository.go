package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is a stored upload, as listed back to its owner.
type Record struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Category     string    `json:"category"`
	Strategy     string    `json:"strategy"`
	URL          string    `json:"url"`
	OriginalName string    `json:"originalname"`
	MimeType     string    `json:"mimetype"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Recorder persists and lists upload records.
type Recorder interface {
	Create(ctx context.Context, rec *Record) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Record, error)
}

// Repository handles upload record persistence.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new upload Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts rec and fills in its generated ID and timestamp.
func (r *Repository) Create(ctx context.Context, rec *Record) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO uploads (user_id, category, strategy, url, original_name, mime_type, size_bytes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id::text, created_at`,
		rec.UserID, rec.Category, rec.Strategy, rec.URL, rec.OriginalName, rec.MimeType, rec.Size,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

// ListByUser returns the user's most recent uploads, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id::text, user_id, category, strategy, url, original_name, mime_type, size_bytes, created_at
		 FROM uploads
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.ID, &rec.UserID, &rec.Category, &rec.Strategy, &rec.URL,
			&rec.OriginalName, &rec.MimeType, &rec.Size, &rec.CreatedAt)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan uploads: %w", err)
	}
	return records, nil
}
