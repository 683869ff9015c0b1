// Package identity is a local stand-in for the external identity and
// encryption service. It performs the delegated access handshake, keeps a
// keyring of protected resources in a bbolt file and encrypts with NaCl
// secretbox. Every resource has its own key and sharing group.
package identity

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/aretw0/sealnote/pkg/core"
)

// ApprovalRequest is what the user is shown when asked to grant access.
type ApprovalRequest struct {
	ID        string
	Login     string
	Requester string
	// Fingerprint is a short hex digest of the request public key.
	Fingerprint string
}

// Approver asks the user to approve a delegated access request out of band.
type Approver func(ctx context.Context, req ApprovalRequest) (bool, error)

// AutoApprove approves every request.
func AutoApprove(context.Context, ApprovalRequest) (bool, error) { return true, nil }

// Config holds the configuration for the identity service.
type Config struct {
	// Path of the keyring file.
	Path string

	// Passphrase wraps the keyring master key. Empty is allowed.
	Passphrase []byte

	// Trusted maps requester ids to the public keys their assertions must verify with.
	Trusted map[string]ed25519.PublicKey

	// Approver resolves access requests. Nil means every request waits until
	// its context is done.
	Approver Approver

	Logger *slog.Logger
}

// Service implements core.Authority.
type Service struct {
	config Config
	logger *slog.Logger
	db     *bolt.DB
	master *[keySize]byte

	mu       sync.RWMutex
	trusted  map[string]ed25519.PublicKey
	pending  map[string]*accessRequest
	sessions int
}

// Open opens or creates the keyring at config.Path.
func Open(config Config) (*Service, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0o700); err != nil {
		return nil, fmt.Errorf("create keyring directory: %w", err)
	}
	db, err := bolt.Open(config.Path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open keyring %s: %w", config.Path, err)
	}

	s := &Service{
		config:  config,
		logger:  logger,
		db:      db,
		trusted: make(map[string]ed25519.PublicKey),
		pending: make(map[string]*accessRequest),
	}
	for req, pub := range config.Trusted {
		s.trusted[req] = pub
	}

	err = db.Update(func(tx *bolt.Tx) error {
		master, err := unlock(tx, config.Passphrase)
		if err != nil {
			return err
		}
		s.master = master
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Trust registers an application identity.
func (s *Service) Trust(requester string, pub ed25519.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trusted[requester] = pub
}

// NormalizeLogin maps a requested login onto the account id it resolves to.
func NormalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

// RequestDelegatedAccess implements core.Authority. An ephemeral key pair is
// generated for the request and its public half is handed to sign.
func (s *Service) RequestDelegatedAccess(ctx context.Context, login string, sign core.Signer) (core.AccessRequest, error) {
	account := NormalizeLogin(login)
	if account == "" {
		return nil, ErrInvalidLogin
	}
	if sign == nil {
		return nil, fmt.Errorf("%w: no signer", ErrUntrustedRequester)
	}

	req, err := newAccessRequest(s, account)
	if err != nil {
		return nil, err
	}

	assertion, err := sign(ctx, core.SignRequest{Login: login, PublicKey: req.publicKey})
	if err != nil {
		return nil, fmt.Errorf("sign access request: %w", err)
	}
	if err := s.verify(login, req.publicKey, assertion); err != nil {
		s.logger.Warn("access request rejected", "login", account, "requester", assertion.Requester, "error", err)
		return nil, err
	}
	req.requester = assertion.Requester

	s.mu.Lock()
	s.pending[req.id] = req
	s.mu.Unlock()

	s.logger.Debug("access request created", "id", req.id, "login", account, "requester", req.requester)
	return req, nil
}

func (s *Service) finish(req *accessRequest, granted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, req.id)
	if granted {
		s.sessions++
	}
}

func (s *Service) keyring() *bolt.DB {
	return s.db
}

// Close closes the keyring.
func (s *Service) Close() error {
	return s.db.Close()
}

var _ core.Authority = (*Service)(nil)
