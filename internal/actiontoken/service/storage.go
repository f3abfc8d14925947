package service

import (
	"context"
	"database/sql"
	"fmt"

	"credential-control-plane/internal/actiontoken/repository"
)

// PgStorage runs token operations against Postgres. Issue's
// invalidate-then-create pair commits or rolls back as a unit.
type PgStorage struct {
	db *sql.DB
}

func NewPgStorage(db *sql.DB) *PgStorage {
	return &PgStorage{db: db}
}

func (p *PgStorage) Repo() repository.Repository {
	return repository.NewPostgresRepository(p.db)
}

func (p *PgStorage) InTx(ctx context.Context, fn func(repository.Repository) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(repository.NewPostgresRepository(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back after %w: %v", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}
