package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	bolt "go.etcd.io/bbolt"
)

const latestKeyringVersion = 0x01

// Buckets for storing data in the keyring.
var (
	resourcesBucket = []byte("resources")
	metaBucket      = []byte("meta")

	// Used for storing the encrypted master key that wraps resource keys.
	masterKeyKey = []byte("masterKey")

	// Used for PBKDF2, to generate key used to decrypt master key.
	saltKey = []byte("salt")

	// Version of the keyring.
	versionKey = []byte("version")
)

// resourceRecord is the keyring entry of one protected resource. Key is sealed
// with the master key.
type resourceRecord struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Description string    `json:"description,omitempty"`
	Owner       string    `json:"owner"`
	Members     []string  `json:"members"`
	Key         []byte    `json:"key"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (r *resourceRecord) isMember(login string) bool {
	return slices.Contains(r.Members, login)
}

// addMembers merges logins into the sharing group and reports whether it changed.
func (r *resourceRecord) addMembers(logins []string) bool {
	changed := false
	for _, l := range logins {
		if !r.isMember(l) {
			r.Members = append(r.Members, l)
			changed = true
		}
	}
	return changed
}

// unlock creates the keyring layout on first use and returns the master key.
func unlock(tx *bolt.Tx, pass []byte) (*[keySize]byte, error) {
	if _, err := tx.CreateBucketIfNotExists(resourcesBucket); err != nil {
		return nil, err
	}
	meta, err := tx.CreateBucketIfNotExists(metaBucket)
	if err != nil {
		return nil, err
	}

	if v := meta.Get(versionKey); len(v) == 1 && v[0] > latestKeyringVersion {
		return nil, fmt.Errorf("unrecognized keyring version %d", v[0])
	}

	wrapped := meta.Get(masterKeyKey)
	if wrapped == nil {
		// New keyring.
		master, err := newKey()
		if err != nil {
			return nil, err
		}
		salt, err := randomSalt()
		if err != nil {
			return nil, err
		}
		enc, err := seal(deriveKey(pass, salt), master[:])
		if err != nil {
			return nil, err
		}
		if err := meta.Put(saltKey, salt); err != nil {
			return nil, err
		}
		if err := meta.Put(masterKeyKey, enc); err != nil {
			return nil, err
		}
		if err := meta.Put(versionKey, []byte{latestKeyringVersion}); err != nil {
			return nil, err
		}
		return master, nil
	}

	raw, err := open(deriveKey(pass, meta.Get(saltKey)), wrapped)
	if err != nil {
		if errors.Is(err, errShortBox) {
			return nil, fmt.Errorf("encrypted master key: %w", err)
		}
		return nil, ErrBadPassphrase
	}
	var master [keySize]byte
	copy(master[:], raw)
	return &master, nil
}

func randomSalt() ([]byte, error) {
	key, err := newKey()
	if err != nil {
		return nil, err
	}
	return key[:saltLength], nil
}

func getResource(tx *bolt.Tx, id string) (*resourceRecord, error) {
	v := tx.Bucket(resourcesBucket).Get([]byte(id))
	if v == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, id)
	}
	var rec resourceRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, fmt.Errorf("decode resource %s: %w", id, err)
	}
	return &rec, nil
}

func putResource(tx *bolt.Tx, rec *resourceRecord) error {
	v, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return tx.Bucket(resourcesBucket).Put([]byte(rec.ID), v)
}
