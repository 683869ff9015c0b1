package core

import "time"

// Metadata represents the free-form descriptive fields that ride alongside a note.
type Metadata map[string]any

// State describes which representations of a note are currently held in memory.
type State int

const (
	// StateDraft is a note that has not been saved yet. Content is present.
	StateDraft State = iota
	// StateUnloaded is a note known only by its metadata record.
	// Content and EncryptedContent are absent.
	StateUnloaded
	// StateLoaded is a note whose content was fetched and decrypted.
	// Content and EncryptedContent are both present.
	StateLoaded
	// StateCollapsed is a loaded note whose plaintext was dropped by the view.
	// EncryptedContent is retained, persisted state is untouched.
	StateCollapsed
)

func (s State) String() string {
	switch s {
	case StateDraft:
		return "draft"
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateCollapsed:
		return "collapsed"
	default:
		return "unknown"
	}
}

// Note is the central entity of the domain.
//
// Field presence per state:
//
//	Draft:     Content set, ID and ProtectedResourceID may be empty.
//	Unloaded:  Content nil, EncryptedContent nil (or only ciphertext kept after Save).
//	Loaded:    Content and EncryptedContent set.
//	Collapsed: Content nil, EncryptedContent set.
//
// Content is never written to storage. EncryptedContent is the only persisted
// representation of the text.
type Note struct {
	ID                  string    `json:"id"`
	ProtectedResourceID string    `json:"protectedResourceId,omitempty"`
	Metadata            Metadata  `json:"metadata,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`

	Content          *string `json:"-"`
	EncryptedContent []byte  `json:"-"`

	persisted bool
	collapsed bool
	dirty     bool
}

// NewNote creates a draft note holding the given plaintext.
func NewNote(content string, metadata Metadata) *Note {
	return &Note{
		Content:  &content,
		Metadata: metadata,
	}
}

// State reports the lifecycle state of the note.
func (n *Note) State() State {
	switch {
	case n.Content != nil && n.persisted && !n.dirty && len(n.EncryptedContent) > 0:
		return StateLoaded
	case n.Content != nil:
		return StateDraft
	case n.collapsed:
		return StateCollapsed
	default:
		return StateUnloaded
	}
}

// Text returns the plaintext and whether it is currently held.
func (n *Note) Text() (string, bool) {
	if n.Content == nil {
		return "", false
	}
	return *n.Content, true
}

// SetText replaces the plaintext of the note. The note must be saved again for
// the change to be persisted.
func (n *Note) SetText(content string) {
	n.Content = &content
	n.collapsed = false
	n.dirty = true
}

// Collapse drops the plaintext from memory. It does not touch storage.
func (n *Note) Collapse() {
	if n.Content == nil {
		return
	}
	n.Content = nil
	n.collapsed = len(n.EncryptedContent) > 0
}

// Record returns the metadata table representation of the note.
func (n *Note) Record() Record {
	return Record{
		ID:                  n.ID,
		ProtectedResourceID: n.ProtectedResourceID,
		Metadata:            n.Metadata,
		CreatedAt:           n.CreatedAt,
	}
}

// Record is a note with its content stripped. It is the value stored in the
// metadata table and never carries plaintext or ciphertext.
type Record struct {
	ID                  string    `json:"id" yaml:"id"`
	ProtectedResourceID string    `json:"protectedResourceId" yaml:"protectedResourceId"`
	Metadata            Metadata  `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt           time.Time `json:"createdAt" yaml:"createdAt"`
}

// Note turns the record back into an unloaded note.
func (r Record) Note() *Note {
	return &Note{
		ID:                  r.ID,
		ProtectedResourceID: r.ProtectedResourceID,
		Metadata:            r.Metadata,
		CreatedAt:           r.CreatedAt,
		persisted:           true,
	}
}
