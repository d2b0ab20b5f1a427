package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"recipescan/internal/domain"
)

// ErrNotFound reports a lookup for a record that does not exist.
var ErrNotFound = errors.New("storage: record not found")

// PostgresStore handles interactions with the PostgreSQL database. Records
// are append-only: inserted once, read many times, never updated.
type PostgresStore struct {
	db *pgxpool.Pool
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS recipes (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	ingredients JSONB NOT NULL DEFAULT '[]',
	steps JSONB NOT NULL DEFAULT '[]',
	equipment JSONB NOT NULL DEFAULT '[]',
	original_filename TEXT NOT NULL,
	raw_ocr_text TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_recipes_created_at ON recipes (created_at DESC);`

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// InsertRecipe persists a new record and fills in its assigned identity and
// creation timestamp. The insert is a single atomic statement.
func (s *PostgresStore) InsertRecipe(ctx context.Context, rec *domain.RecipeRecord) error {
	ingredients, err := json.Marshal(rec.Ingredients)
	if err != nil {
		return fmt.Errorf("marshal ingredients: %w", err)
	}
	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	equipment, err := json.Marshal(rec.Equipment)
	if err != nil {
		return fmt.Errorf("marshal equipment: %w", err)
	}

	err = s.db.QueryRow(ctx,
		`INSERT INTO recipes (title, ingredients, steps, equipment, original_filename, raw_ocr_text)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		rec.Title, ingredients, steps, equipment, rec.OriginalFilename, rec.RawOCRText,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert recipe: %w", err)
	}
	return nil
}

// GetRecipe retrieves a single record by identity.
func (s *PostgresStore) GetRecipe(ctx context.Context, id int64) (*domain.RecipeRecord, error) {
	var rec domain.RecipeRecord
	var ingredients, steps, equipment []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, title, ingredients, steps, equipment, original_filename, raw_ocr_text, created_at
		 FROM recipes WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.Title, &ingredients, &steps, &equipment,
		&rec.OriginalFilename, &rec.RawOCRText, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipe %d: %w", id, err)
	}

	if err := json.Unmarshal(ingredients, &rec.Ingredients); err != nil {
		return nil, fmt.Errorf("unmarshal ingredients: %w", err)
	}
	if err := json.Unmarshal(steps, &rec.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if err := json.Unmarshal(equipment, &rec.Equipment); err != nil {
		return nil, fmt.Errorf("unmarshal equipment: %w", err)
	}
	return &rec, nil
}

// ListRecipes returns summaries of all records, newest first.
func (s *PostgresStore) ListRecipes(ctx context.Context) ([]domain.RecipeSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, title, created_at FROM recipes ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// SearchRecipes returns summaries of records whose title, ingredients or
// steps contain the query as a substring, newest first.
func (s *PostgresStore) SearchRecipes(ctx context.Context, query string) ([]domain.RecipeSummary, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.Query(ctx,
		`SELECT id, title, created_at FROM recipes
		 WHERE title ILIKE $1 OR ingredients::text ILIKE $1 OR steps::text ILIKE $1
		 ORDER BY created_at DESC`,
		pattern)
	if err != nil {
		return nil, fmt.Errorf("search recipes: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

func scanSummaries(rows pgx.Rows) ([]domain.RecipeSummary, error) {
	summaries := make([]domain.RecipeSummary, 0)
	for rows.Next() {
		var s domain.RecipeSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
