package core

import (
	"context"
	"errors"
	"fmt"
)

// Database is the local database of one login. It exposes the paired
// operations over the metadata and content tables and is built entirely on
// Repository.Update: every write touches both tables inside one unit.
type Database struct {
	repo Repository
}

// Open initializes the repository and returns the database wrapping it.
func Open(ctx context.Context, repo Repository) (*Database, error) {
	if repo == nil {
		return nil, fmt.Errorf("%w: no repository configured", ErrStorageUnavailable)
	}
	if err := repo.Initialize(ctx); err != nil {
		if errors.Is(err, ErrStorageUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return &Database{repo: repo}, nil
}

// Repository returns the underlying engine.
func (d *Database) Repository() Repository {
	return d.repo
}

// PutPair writes the metadata record and the ciphertext under the same id as a
// single atomic unit.
func (d *Database) PutPair(ctx context.Context, id string, rec Record, content []byte) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrTransactionFailed)
	}
	rec.ID = id
	err := d.repo.Update(ctx, func(tx Transaction) error {
		if err := tx.PutMetadata(id, rec); err != nil {
			return fmt.Errorf("put %s: %w", TableMetadata, err)
		}
		if err := tx.PutContent(id, content); err != nil {
			return fmt.Errorf("put %s: %w", TableContent, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransactionFailed, id, err)
	}
	return nil
}

// DeletePair removes id from both tables atomically. Deleting an id that does
// not exist is a no-op.
func (d *Database) DeletePair(ctx context.Context, id string) error {
	err := d.repo.Update(ctx, func(tx Transaction) error {
		if err := tx.DeleteMetadata(id); err != nil {
			return fmt.Errorf("delete %s: %w", TableMetadata, err)
		}
		if err := tx.DeleteContent(id); err != nil {
			return fmt.Errorf("delete %s: %w", TableContent, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransactionFailed, id, err)
	}
	return nil
}

// GetAllMetadata returns every metadata record. Callers must not rely on the order.
func (d *Database) GetAllMetadata(ctx context.Context) ([]Record, error) {
	recs, err := d.repo.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", TableMetadata, err)
	}
	return recs, nil
}

// GetContent reads a single content record. An absent id is reported through the
// boolean, not as an error.
func (d *Database) GetContent(ctx context.Context, id string) ([]byte, bool, error) {
	content, ok, err := d.repo.Content(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", TableContent, err)
	}
	return content, ok, nil
}

// Close closes the underlying engine.
func (d *Database) Close() error {
	return d.repo.Close()
}
