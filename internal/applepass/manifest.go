package applepass

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
)

// Manifest maps each bundled file name to its content digest. Entries use
// SHA-1, the digest the consuming wallet verifies manifest entries with;
// the detached signature carries its own SHA-256 message digest, so the
// two algorithms intentionally differ.
type Manifest map[string]string

// BuildManifest digests every file that will be physically placed in the
// archive. The manifest and signature themselves are never listed.
func BuildManifest(files map[string][]byte) Manifest {
	m := make(Manifest, len(files))
	for name, content := range files {
		sum := sha1.Sum(content)
		m[name] = hex.EncodeToString(sum[:])
	}
	return m
}

// Bytes serializes the manifest. Map keys marshal in sorted order, which
// keeps the byte stream stable for signing and for tests.
func (m Manifest) Bytes() ([]byte, error) {
	return json.Marshal(m)
}
