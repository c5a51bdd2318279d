// Package checksum computes and verifies per-file integrity digests.
//
// Digests are stored as lowercase hex. SHA-256 is the only algorithm the
// bundle format currently carries; the zero value of Checksum means "no
// digest recorded" and can only be filled in, never verified.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/medude/rauc/pkg/rauc/rerrors"
)

// Type identifies the digest algorithm of a Checksum.
type Type int

const (
	None Type = iota
	SHA256
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case SHA256:
		return "sha256"
	default:
		return "unknown"
	}
}

// Checksum is a recorded digest for one file.
type Checksum struct {
	Type   Type
	Digest string
}

// Update computes the digest of the file at path and overwrites c in place.
// The algorithm is fixed to SHA-256.
func Update(c *Checksum, path string) error {
	digest, err := hashFile(path)
	if err != nil {
		return err
	}

	c.Type = SHA256
	c.Digest = digest
	return nil
}

// Verify recomputes the digest of the file at path and compares it against
// the one recorded in c. A Checksum without a digest cannot be verified and
// yields ErrNoChecksum.
func Verify(c *Checksum, path string) error {
	if c == nil || c.Type == None || c.Digest == "" {
		return fmt.Errorf("%s: %w", path, rerrors.ErrNoChecksum)
	}

	digest, err := hashFile(path)
	if err != nil {
		return err
	}

	if !strings.EqualFold(digest, c.Digest) {
		return fmt.Errorf("%s: %w: have %s, want %s", path, rerrors.ErrChecksumMismatch, digest, c.Digest)
	}
	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
