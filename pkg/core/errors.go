package core

import "errors"

// Storage errors.
var (
	// ErrStorageUnavailable is returned when the local database cannot be opened
	// (quota, permissions, lock held by another owner).
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrTransactionFailed is returned when a paired write or delete did not commit.
	// Nothing from the failed unit is visible afterwards.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrPersistenceFailed is returned by Save when the note was encrypted but the
	// paired write did not commit.
	ErrPersistenceFailed = errors.New("persistence failed")

	// ErrNotFound is returned when an expected record is absent. For content it
	// signals that the metadata and content tables diverged.
	ErrNotFound = errors.New("record not found")

	// ErrReadOnly is returned by write operations on a read-only store.
	ErrReadOnly = errors.New("store is in read-only mode")
)

// Capability errors.
var (
	ErrEncryptionFailed    = errors.New("encryption failed")
	ErrDecryptionFailed    = errors.New("decryption failed")
	ErrResourceUnavailable = errors.New("protected resource unavailable")
	ErrShareFailed         = errors.New("share failed")
)

// Input errors.
var (
	// ErrBadFileName is returned when an imported file name lacks the .dpr suffix.
	ErrBadFileName = errors.New("bad filename format")

	// ErrInvalidNote is returned when a note lacks the fields an operation needs.
	ErrInvalidNote = errors.New("invalid note")
)
