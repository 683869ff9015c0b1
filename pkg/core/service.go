package core

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Service is the note store. It maps note operations onto the paired
// operations of the local database plus calls to the session capability,
// encrypting before every write and decrypting after every read so that
// plaintext only ever lives in memory.
//
// The database and the session are owned exclusively by the service.
type Service struct {
	db       *Database
	session  Session
	logger   *slog.Logger
	now      func() time.Time
	ids      *idGenerator
	readOnly bool
	events   *broker

	eventBufferSize int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used by the service.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used for id assignment and creation times.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReadOnly rejects every operation that would write to the database.
func WithReadOnly(enabled bool) ServiceOption {
	return func(s *Service) {
		s.readOnly = enabled
	}
}

// WithEventBuffer sets the per-watcher event buffer. Zero means default (100).
func WithEventBuffer(size int) ServiceOption {
	return func(s *Service) {
		s.eventBufferSize = size
	}
}

// NewService creates a note store over db, encrypting with session.
func NewService(db *Database, session Session, opts ...ServiceOption) *Service {
	s := &Service{
		db:      db,
		session: session,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ids = newIDGenerator(s.now)
	s.events = newBroker(s.eventBufferSize, s.logger)
	return s
}

// Login returns the account the store belongs to.
func (s *Service) Login() string {
	return s.session.Login()
}

// Save encrypts the note's plaintext and persists metadata and ciphertext as
// one atomic pair. A note without an id gets one. A new note gets a protected
// resource shared with its owner only; a note that already has one reuses it.
//
// On success the plaintext is dropped from the note and the ciphertext kept,
// leaving it unloaded. If encryption fails nothing is persisted and the fields
// this call assigned are reverted. If the write fails after encryption the
// error wraps ErrPersistenceFailed and the note keeps its plaintext so the
// caller can retry.
func (s *Service) Save(ctx context.Context, n *Note) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if n == nil || n.Content == nil {
		return fmt.Errorf("%w: no content to save", ErrInvalidNote)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	prev := *n
	revert := func() {
		n.ID = prev.ID
		n.ProtectedResourceID = prev.ProtectedResourceID
		n.CreatedAt = prev.CreatedAt
	}

	if n.ID == "" {
		n.ID = s.ids.next()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}

	resource, created, err := s.resourceFor(ctx, n)
	if err != nil {
		revert()
		s.logger.Warn("note encryption failed", "id", n.ID, "error", err)
		return fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}

	ciphertext, err := resource.Encrypt(ctx, []byte(*n.Content))
	if err != nil {
		revert()
		s.logger.Warn("note encryption failed", "id", n.ID, "error", err)
		return fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}
	n.ProtectedResourceID = resource.ID()

	if err := s.db.PutPair(ctx, n.ID, n.Record(), ciphertext); err != nil {
		s.logger.Error("note persistence failed", "id", n.ID, "error", err)
		return fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}

	n.Content = nil
	n.EncryptedContent = ciphertext
	n.persisted = true
	n.dirty = false
	n.collapsed = false

	eventType := EventModify
	if created {
		eventType = EventCreate
	}
	s.publish(eventType, n.ID)
	s.logger.Debug("note saved", "id", n.ID, "resource", n.ProtectedResourceID)
	return nil
}

func (s *Service) resourceFor(ctx context.Context, n *Note) (Resource, bool, error) {
	resources := s.session.Resources()
	if n.ProtectedResourceID != "" {
		res, err := resources.Get(ctx, n.ProtectedResourceID)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s: %w", ErrResourceUnavailable, n.ProtectedResourceID, err)
		}
		return res, false, nil
	}

	res, err := resources.Create(ctx, ResourceKindNote, ResourceDescriptor{
		Description: "note " + n.ID,
	}, []string{s.session.Login()})
	if err != nil {
		return nil, false, fmt.Errorf("create resource: %w", err)
	}
	return res, true, nil
}

// SaveEncrypted persists a note whose ciphertext was produced earlier, for
// instance one that round-tripped through an exported file. It skips
// encryption but has the same atomicity as Save.
func (s *Service) SaveEncrypted(ctx context.Context, n *Note) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if n == nil || len(n.EncryptedContent) == 0 {
		return fmt.Errorf("%w: no ciphertext to save", ErrInvalidNote)
	}
	if n.ProtectedResourceID == "" {
		return fmt.Errorf("%w: no protected resource id", ErrInvalidNote)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	assigned := n.ID == ""
	if assigned {
		n.ID = s.ids.next()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}

	if err := s.db.PutPair(ctx, n.ID, n.Record(), n.EncryptedContent); err != nil {
		s.logger.Error("note persistence failed", "id", n.ID, "error", err)
		return fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}

	n.Content = nil
	n.persisted = true
	n.dirty = false
	n.collapsed = false

	eventType := EventModify
	if assigned {
		eventType = EventCreate
	}
	s.publish(eventType, n.ID)
	s.logger.Debug("encrypted note saved", "id", n.ID, "resource", n.ProtectedResourceID)
	return nil
}

// GetNotes returns every note in the unloaded state, ordered by id.
func (s *Service) GetNotes(ctx context.Context) ([]*Note, error) {
	recs, err := s.db.GetAllMetadata(ctx)
	if err != nil {
		return nil, err
	}

	notes := make([]*Note, 0, len(recs))
	for _, rec := range recs {
		notes = append(notes, rec.Note())
	}
	sort.Slice(notes, func(i, j int) bool {
		return notes[i].ID < notes[j].ID
	})
	return notes, nil
}

// GetContent fetches the ciphertext of the note and decrypts it with the
// note's protected resource, filling both Content and EncryptedContent.
//
// A missing content record means the tables diverged and fails with
// ErrNotFound. On any failure the note is left as it was.
func (s *Service) GetContent(ctx context.Context, n *Note) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("%w: note has no id", ErrInvalidNote)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ciphertext, ok, err := s.db.GetContent(ctx, n.ID)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Warn("content missing for note", "id", n.ID)
		return fmt.Errorf("%w: content of note %s", ErrNotFound, n.ID)
	}

	if n.ProtectedResourceID == "" {
		return fmt.Errorf("%w: note %s has no protected resource", ErrResourceUnavailable, n.ID)
	}
	res, err := s.session.Resources().Get(ctx, n.ProtectedResourceID)
	if err != nil {
		s.logger.Warn("protected resource unavailable", "id", n.ID, "resource", n.ProtectedResourceID, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrResourceUnavailable, n.ProtectedResourceID, err)
	}

	plaintext, err := res.Decrypt(ctx, ciphertext)
	if err != nil {
		s.logger.Warn("note decryption failed", "id", n.ID, "error", err)
		return fmt.Errorf("%w: note %s: %w", ErrDecryptionFailed, n.ID, err)
	}

	text := string(plaintext)
	n.EncryptedContent = ciphertext
	n.Content = &text
	n.persisted = true
	n.dirty = false
	n.collapsed = false
	return nil
}

// Delete removes the note from both tables. Deleting an id that does not exist
// succeeds.
func (s *Service) Delete(ctx context.Context, id string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if id == "" {
		return fmt.Errorf("%w: note has no id", ErrInvalidNote)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.db.DeletePair(ctx, id); err != nil {
		s.logger.Error("note delete failed", "id", id, "error", err)
		return err
	}
	s.publish(EventDelete, id)
	s.logger.Debug("note deleted", "id", id)
	return nil
}

// ExtendSharing adds logins to the sharing group of the note's protected
// resource so they can decrypt it from their own session. Local storage is
// not touched.
func (s *Service) ExtendSharing(ctx context.Context, n *Note, logins []string) error {
	if n == nil || n.ProtectedResourceID == "" {
		return fmt.Errorf("%w: note has no protected resource", ErrShareFailed)
	}

	recipients := make([]string, 0, len(logins))
	for _, l := range logins {
		if l = strings.TrimSpace(l); l != "" {
			recipients = append(recipients, l)
		}
	}
	if len(recipients) == 0 {
		return fmt.Errorf("%w: no recipients", ErrShareFailed)
	}

	if err := s.session.Resources().ExtendSharingGroup(ctx, n.ProtectedResourceID, recipients); err != nil {
		s.logger.Warn("share failed", "id", n.ID, "resource", n.ProtectedResourceID, "error", err)
		return fmt.Errorf("%w: %w", ErrShareFailed, err)
	}
	s.logger.Debug("note shared", "id", n.ID, "recipients", recipients)
	return nil
}

// Export writes the stored ciphertext of the note to w and returns the file
// name it should be saved under.
func (s *Service) Export(ctx context.Context, n *Note, w io.Writer) (string, error) {
	if n == nil || n.ID == "" || n.ProtectedResourceID == "" {
		return "", fmt.Errorf("%w: note is not persisted", ErrInvalidNote)
	}

	ciphertext, ok, err := s.db.GetContent(ctx, n.ID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: content of note %s", ErrNotFound, n.ID)
	}

	if _, err := w.Write(ciphertext); err != nil {
		return "", fmt.Errorf("write export of %s: %w", n.ID, err)
	}
	n.EncryptedContent = ciphertext
	return ExportFileName(n), nil
}

// Import admits an exported note file through SaveEncrypted.
func (s *Service) Import(ctx context.Context, filename string, r io.Reader) (*Note, error) {
	n, err := ParseExport(filename, r)
	if err != nil {
		return nil, err
	}
	if err := s.SaveEncrypted(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// ImportFile opens name on fsys and imports it.
func (s *Service) ImportFile(ctx context.Context, fsys fs.FS, name string) (*Note, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return s.Import(ctx, name, f)
}

// Watch observes committed changes whose note id matches pattern (doublestar
// syntax, "*" or "" for all). The channel closes when ctx is done or the store
// is closed.
func (s *Service) Watch(ctx context.Context, pattern string) (<-chan Event, error) {
	return s.events.subscribe(ctx, pattern)
}

func (s *Service) publish(t EventType, id string) {
	s.events.publish(Event{Type: t, ID: id, Timestamp: s.now().Unix()})
}

// Close stops all watchers and closes the database.
func (s *Service) Close() error {
	s.events.close()
	return s.db.Close()
}
