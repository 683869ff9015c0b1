package core

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ExportExtension is the extension of exported note files.
const ExportExtension = ".dpr"

// ExportFileName returns the file name a note is exported under. The stem is
// the protected resource id, which is what an importer needs to decrypt it.
func ExportFileName(n *Note) string {
	return n.ProtectedResourceID + ExportExtension
}

// ParseExport reads an exported note. The bytes are taken verbatim as the
// ciphertext and the resource id is derived from the file name stem.
func ParseExport(filename string, r io.Reader) (*Note, error) {
	name := filepath.Base(filename)
	if !strings.HasSuffix(name, ExportExtension) {
		return nil, fmt.Errorf("%w: %q does not end with %s", ErrBadFileName, name, ExportExtension)
	}
	stem := strings.TrimSuffix(name, ExportExtension)
	if stem == "" {
		return nil, fmt.Errorf("%w: %q has an empty name", ErrBadFileName, name)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidNote, name)
	}

	return &Note{
		ProtectedResourceID: stem,
		EncryptedContent:    data,
	}, nil
}
