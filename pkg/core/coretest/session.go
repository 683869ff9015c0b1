// Package coretest provides test doubles and a conformance suite shared by the
// storage engines and the note store tests.
package coretest

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/aretw0/sealnote/pkg/core"
)

// ErrFake is returned by every injected capability failure.
var ErrFake = errors.New("fake capability failure")

// Session is an in-process core.Session. Encryption is real (secretbox) so
// ciphertext never contains the plaintext, and every call can be made to fail.
type Session struct {
	login string

	mu        sync.Mutex
	resources map[string]*resource
	seq       int

	FailCreate  bool
	FailGet     bool
	FailEncrypt bool
	FailDecrypt bool
	FailShare   bool

	Creates int
}

// NewSession returns a session resolved to login.
func NewSession(login string) *Session {
	return &Session{login: login, resources: make(map[string]*resource)}
}

func (s *Session) Login() string { return s.login }

func (s *Session) Resources() core.ResourceAPI { return (*resourceAPI)(s) }

// Members returns the sharing group of the resource, or nil if it is unknown.
func (s *Session) Members(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.resources[id]; ok {
		return slices.Clone(r.members)
	}
	return nil
}

// Fail toggles every injected failure at once.
func (s *Session) Fail(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailCreate, s.FailGet, s.FailEncrypt, s.FailDecrypt, s.FailShare = enabled, enabled, enabled, enabled, enabled
}

type resourceAPI Session

func (a *resourceAPI) Create(ctx context.Context, kind string, d core.ResourceDescriptor, recipients []string) (core.Resource, error) {
	s := (*Session)(a)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreate {
		return nil, fmt.Errorf("create: %w", ErrFake)
	}

	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, err
	}
	s.seq++
	r := &resource{
		session: s,
		id:      fmt.Sprintf("res-%04d", s.seq),
		key:     key,
		members: slices.Clone(recipients),
	}
	s.resources[r.id] = r
	s.Creates++
	return r, nil
}

func (a *resourceAPI) Get(ctx context.Context, id string) (core.Resource, error) {
	s := (*Session)(a)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailGet {
		return nil, fmt.Errorf("get: %w", ErrFake)
	}
	r, ok := s.resources[id]
	if !ok {
		return nil, fmt.Errorf("resource %s: not found", id)
	}
	return r, nil
}

func (a *resourceAPI) ExtendSharingGroup(ctx context.Context, id string, logins []string) error {
	s := (*Session)(a)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailShare {
		return fmt.Errorf("share: %w", ErrFake)
	}
	r, ok := s.resources[id]
	if !ok {
		return fmt.Errorf("resource %s: not found", id)
	}
	for _, l := range logins {
		if !slices.Contains(r.members, l) {
			r.members = append(r.members, l)
		}
	}
	return nil
}

type resource struct {
	session *Session
	id      string
	key     [32]byte
	members []string
}

func (r *resource) ID() string { return r.id }

func (r *resource) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	r.session.mu.Lock()
	fail := r.session.FailEncrypt
	r.session.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("encrypt: %w", ErrFake)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &r.key), nil
}

func (r *resource) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	r.session.mu.Lock()
	fail := r.session.FailDecrypt
	r.session.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("decrypt: %w", ErrFake)
	}

	if len(ciphertext) < 24 {
		return nil, errors.New("ciphertext too short")
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext[:24])
	out, ok := secretbox.Open(nil, ciphertext[24:], &nonce, &r.key)
	if !ok {
		return nil, errors.New("message authentication failed")
	}
	return out, nil
}

var _ core.Session = (*Session)(nil)
