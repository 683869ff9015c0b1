// Package sealnote is the Composition Root for the SealNote application.
//
// It connects the note store (pkg/core) with the storage engines
// (pkg/adapters) and the session capability that owns every encryption key.
//
// Notes live in a per-login local database made of two tables: note metadata
// and note ciphertext. The store never writes plaintext; every note is
// encrypted by the session before its paired write and decrypted after its
// content is read back.
//
// Features:
//
//   - **Paired Writes**: metadata and ciphertext are committed as one unit on every engine.
//   - **Pluggable Engines**: bbolt (default), SQLite, a journaled directory, or memory.
//   - **Delegated Access**: a signed handshake yields the session; the database is named after the resolved login.
//   - **Sharing**: a note's protected resource can be extended to other logins.
//   - **Exchange**: notes travel as `<resource-id>.dpr` files.
//
// Usage:
//
//	svc, err := sealnote.Login(ctx, root, authority, "alice@example.com", signer.Sign,
//		sealnote.WithApprovalTimeout(time.Minute),
//		sealnote.WithLogger(logger),
//	)
//
//	// Save a note
//	err = svc.Save(ctx, sealnote.NewNote("remember the milk", nil))
package sealnote
