package identity

import "errors"

var (
	// ErrAccessDenied is returned by WaitSession when the user rejects the request.
	ErrAccessDenied = errors.New("delegated access denied")

	// ErrUntrustedRequester is returned when the assertion does not come from a
	// trusted application or its signature does not verify.
	ErrUntrustedRequester = errors.New("untrusted requester")

	// ErrUnknownResource is returned when a resource id is not in the keyring.
	ErrUnknownResource = errors.New("unknown resource")

	// ErrNotMember is returned when the session login is not in the sharing group.
	ErrNotMember = errors.New("not a member of the sharing group")

	// ErrInvalidLogin is returned for an empty login.
	ErrInvalidLogin = errors.New("invalid login")

	// ErrBadPassphrase is returned when the keyring cannot be unlocked.
	ErrBadPassphrase = errors.New("invalid keyring passphrase")
)
