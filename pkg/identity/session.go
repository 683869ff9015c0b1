package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/aretw0/sealnote/pkg/core"
)

// session implements core.Session for one resolved login.
type session struct {
	svc   *Service
	login string
}

func (s *session) Login() string { return s.login }

func (s *session) Resources() core.ResourceAPI { return &resourceAPI{session: s} }

type resourceAPI struct {
	session *session
}

func normalizeAll(logins []string) []string {
	out := make([]string, 0, len(logins))
	for _, l := range logins {
		if l = NormalizeLogin(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Create makes a new resource with a fresh key. The caller always ends up in
// the sharing group.
func (a *resourceAPI) Create(ctx context.Context, kind string, d core.ResourceDescriptor, recipients []string) (core.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	svc := a.session.svc

	key, err := newKey()
	if err != nil {
		return nil, err
	}
	sealed, err := seal(svc.master, key[:])
	if err != nil {
		return nil, err
	}

	rec := &resourceRecord{
		ID:          uuid.NewString(),
		Kind:        kind,
		Description: d.Description,
		Owner:       a.session.login,
		Members:     []string{a.session.login},
		Key:         sealed,
		CreatedAt:   time.Now().UTC(),
	}
	rec.addMembers(normalizeAll(recipients))

	err = svc.keyring().Update(func(tx *bolt.Tx) error {
		return putResource(tx, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("store resource: %w", err)
	}

	svc.logger.Debug("resource created", "resource", rec.ID, "kind", kind, "owner", rec.Owner)
	return &resource{id: rec.ID, key: key}, nil
}

// Get loads a resource the session login is a member of.
func (a *resourceAPI) Get(ctx context.Context, id string) (core.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	svc := a.session.svc

	var rec *resourceRecord
	err := svc.keyring().View(func(tx *bolt.Tx) error {
		var err error
		rec, err = getResource(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !rec.isMember(a.session.login) {
		return nil, fmt.Errorf("%w: %s is not in the group of %s", ErrNotMember, a.session.login, id)
	}

	raw, err := open(svc.master, rec.Key)
	if err != nil {
		return nil, fmt.Errorf("unwrap key of %s: %w", id, err)
	}
	var key [keySize]byte
	copy(key[:], raw)
	return &resource{id: rec.ID, key: &key}, nil
}

// ExtendSharingGroup adds logins to the group. Only members may extend it and
// logins already present are skipped.
func (a *resourceAPI) ExtendSharingGroup(ctx context.Context, id string, logins []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	svc := a.session.svc
	add := normalizeAll(logins)

	return svc.keyring().Update(func(tx *bolt.Tx) error {
		rec, err := getResource(tx, id)
		if err != nil {
			return err
		}
		if !rec.isMember(a.session.login) {
			return fmt.Errorf("%w: %s is not in the group of %s", ErrNotMember, a.session.login, id)
		}
		if !rec.addMembers(add) {
			return nil
		}
		svc.logger.Debug("sharing group extended", "resource", id, "members", len(rec.Members))
		return putResource(tx, rec)
	})
}

// resource implements core.Resource with secretbox.
type resource struct {
	id  string
	key *[keySize]byte
}

func (r *resource) ID() string { return r.id }

func (r *resource) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return seal(r.key, plaintext)
}

func (r *resource) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return open(r.key, ciphertext)
}

var _ core.Session = (*session)(nil)
var _ core.Resource = (*resource)(nil)
