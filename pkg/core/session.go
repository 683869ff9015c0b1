package core

import "context"

// ResourceKindNote is the kind used when creating the protected resource of a note.
const ResourceKindNote = "note"

// SignRequest is the material a trusted signer attests to during delegated access.
type SignRequest struct {
	Login     string
	PublicKey []byte
}

// Assertion is the signer's answer: who is asking and the detached signature.
type Assertion struct {
	Requester string
	Signature []byte
}

// Signer signs a delegated access request on behalf of the application.
type Signer func(ctx context.Context, req SignRequest) (Assertion, error)

// Authority is the entry point of the external identity/encryption service.
type Authority interface {
	// RequestDelegatedAccess starts the handshake for login. The signer is
	// called with the request key material before the request is returned.
	RequestDelegatedAccess(ctx context.Context, login string, signer Signer) (AccessRequest, error)
}

// AccessRequest is a pending delegated access handshake.
type AccessRequest interface {
	// OpenResolver triggers the out-of-band approval flow.
	OpenResolver(ctx context.Context) error

	// WaitSession blocks until the user completes approval.
	WaitSession(ctx context.Context) (Session, error)
}

// Session is the authenticated capability the store encrypts and decrypts with.
type Session interface {
	// Login is the resolved account identifier. It may differ from the
	// login that was requested.
	Login() string

	Resources() ResourceAPI
}

// ResourceDescriptor describes a protected resource at creation time.
type ResourceDescriptor struct {
	Description string
}

// ResourceAPI manages protected resources.
type ResourceAPI interface {
	Create(ctx context.Context, kind string, descriptor ResourceDescriptor, recipients []string) (Resource, error)
	Get(ctx context.Context, id string) (Resource, error)
	ExtendSharingGroup(ctx context.Context, id string, logins []string) error
}

// Resource owns the key and access list for one note's content.
type Resource interface {
	ID() string
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}
