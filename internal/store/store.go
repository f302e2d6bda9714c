package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketlink/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code for unique constraint failures
const uniqueViolation = pq.ErrorCode("23505")

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetVariantByID retrieves a service variant by ID
func (s *Store) GetVariantByID(ctx context.Context, id string) (*models.ServiceVariant, error) {
	var variant models.ServiceVariant
	err := s.db.GetContext(ctx, &variant, "SELECT * FROM service_variants WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrVariantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

// ReserveUnit decrements one unit of stock inside a single transaction.
// The FOR UPDATE read blocks concurrent writers on the same row until
// commit, which is the authoritative guard against lost updates. Returns
// false without mutation when stock is zero.
func (s *Store) ReserveUnit(ctx context.Context, variantID string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var stock int
	err = tx.GetContext(ctx, &stock,
		"SELECT stock FROM service_variants WHERE id = $1 FOR UPDATE", variantID)
	if err == sql.ErrNoRows {
		return false, models.ErrVariantNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock variant row: %w", err)
	}

	if stock <= 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE service_variants SET stock = stock - 1, updated_at = NOW() WHERE id = $1",
		variantID)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ReleaseUnit returns one unit of stock to a variant. Used to compensate
// a reservation that is abandoned or refunded.
func (s *Store) ReleaseUnit(ctx context.Context, variantID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE service_variants SET stock = stock + 1, updated_at = NOW() WHERE id = $1",
		variantID)
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return models.ErrVariantNotFound
	}
	return nil
}
