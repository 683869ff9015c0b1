package core

import "context"

// Table names of the local database.
const (
	TableMetadata = "note-metadata"
	TableContent  = "note-content"
)

// Repository defines the contract a storage engine must satisfy to back the
// local database. Adhering to this interface keeps the core independent of the
// underlying engine (bbolt, SQLite, plain files, memory).
type Repository interface {
	// Initialize opens the engine and creates both tables if they are missing.
	// It must be idempotent and runs schema upgrades or crash recovery.
	Initialize(ctx context.Context) error

	// Update runs fn against both tables as a single atomic unit. Either every
	// change made through tx is committed or none is.
	Update(ctx context.Context, fn func(tx Transaction) error) error

	// Metadata returns every record of the metadata table.
	Metadata(ctx context.Context) ([]Record, error)

	// Content returns the ciphertext stored under id. The boolean is false when
	// the id is absent.
	Content(ctx context.Context, id string) ([]byte, bool, error)

	// Close releases the engine.
	Close() error
}

// Transaction defines the writes available inside Repository.Update.
// Deleting a missing key is a no-op.
type Transaction interface {
	PutMetadata(id string, rec Record) error
	PutContent(id string, content []byte) error
	DeleteMetadata(id string) error
	DeleteContent(id string) error
}
