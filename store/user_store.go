package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/thebuddyman/v0-notion-usability-testing/models"
)

// UserStore persists researcher accounts in PostgreSQL.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// CreateResearcher inserts a new researcher account.
func (s *UserStore) CreateResearcher(ctx context.Context, email string, hashedPassword []byte) (*models.Researcher, error) {
	researcher := &models.Researcher{}
	query := `
		INSERT INTO researchers (email, hashed_password)
		VALUES ($1, $2)
		RETURNING id, email, created_at, updated_at;
	`
	err := s.db.QueryRowContext(ctx, query, email, hashedPassword).Scan(
		&researcher.ID,
		&researcher.Email,
		&researcher.CreatedAt,
		&researcher.UpdatedAt,
	)
	if err != nil {
		if err.Error() == `pq: duplicate key value violates unique constraint "idx_researchers_email"` ||
			err.Error() == `pq: duplicate key value violates unique constraint "researchers_email_key"` {
			return nil, fmt.Errorf("researcher with email '%s' already exists", email)
		}
		return nil, fmt.Errorf("failed to create researcher: %w", err)
	}

	log.Printf("Researcher created in DB: ID=%d, Email=%s", researcher.ID, researcher.Email)
	return researcher, nil
}

func (s *UserStore) GetResearcherByEmail(ctx context.Context, email string) (*models.Researcher, error) {
	researcher := &models.Researcher{}
	query := `
		SELECT id, email, hashed_password, created_at, updated_at
		FROM researchers
		WHERE email = $1;
	`
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&researcher.ID,
		&researcher.Email,
		&researcher.HashedPassword,
		&researcher.CreatedAt,
		&researcher.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("researcher with email '%s' not found", email)
		}
		return nil, fmt.Errorf("failed to get researcher by email: %w", err)
	}

	return researcher, nil
}
