package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// nonceSize is the size of the nonce (in bytes) used by secretbox.
	nonceSize = 24

	// keySize is the size of the symmetric key for use with secretbox.
	keySize = 32

	// saltLength is the desired length of salt used by PBKDF2.
	saltLength = 32

	// numIters is the number of iterations to be done by PBKDF2.
	numIters = 1 << 15
)

var errShortBox = errors.New("sealed box too short")

// deriveKey turns a passphrase into the key that wraps resource keys.
func deriveKey(pass, salt []byte) *[keySize]byte {
	out := pbkdf2.Key(pass, salt, numIters, keySize, sha256.New)
	var key [keySize]byte
	copy(key[:], out)
	return &key
}

func newKey() (*[keySize]byte, error) {
	var key [keySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, err
	}
	return &key, nil
}

// seal encrypts data with secretbox under key. A random nonce is generated and
// prepended to the output.
func seal(key *[keySize]byte, data []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	out := make([]byte, nonceSize, nonceSize+len(data)+secretbox.Overhead)
	copy(out, nonce[:])
	return secretbox.Seal(out, data, &nonce, key), nil
}

// open reverses seal.
func open(key *[keySize]byte, box []byte) ([]byte, error) {
	if len(box) < nonceSize+secretbox.Overhead {
		return nil, errShortBox
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	out, ok := secretbox.Open(nil, box[nonceSize:], &nonce, key)
	if !ok {
		return nil, errors.New("message authentication failed")
	}
	return out, nil
}
