// Package cas stores resource blobs by content. Every blob is keyed by its
// SHA-256 digest; a BLAKE3 ref next to it lets either digest retrieve it.
//
// Layout under the store root:
//
//	sha256/<ab>/<sha256>    blob bytes
//	blake3/<ab>/<blake3>    the blob's SHA-256 as text
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/zeebo/blake3"
)

// osRename is swapped in tests.
var osRename = os.Rename

var (
	// ErrBlobNotFound is returned when no blob has the given digest.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrInvalidHash is returned for digests that are not 64 lowercase hex
	// characters.
	ErrInvalidHash = errors.New("invalid hash format")
)

var hexDigest = regexp.MustCompile(`^[a-f0-9]{64}$`)

// IsValidHash reports whether s looks like a 256-bit hex digest.
func IsValidHash(s string) bool {
	return hexDigest.MatchString(s)
}

const (
	familySHA256 = "sha256"
	familyBLAKE3 = "blake3"
)

// HashResult holds both digests of a stored blob.
type HashResult struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
}

// Store is a content-addressed blob store on the local filesystem. Writes
// are atomic renames, so concurrent Puts of the same content are safe.
type Store struct {
	root string
}

// NewStore opens the store at root, creating it if needed.
func NewStore(root string) (*Store, error) {
	for _, fam := range []string{familySHA256, familyBLAKE3} {
		if err := os.MkdirAll(filepath.Join(root, fam), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", fam, err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

func (s *Store) path(family, digest string) string {
	return filepath.Join(s.root, family, digest[:2], digest)
}

// Put streams what p writes into the store and returns both digests. A
// blob already present is left untouched.
func (s *Store) Put(p Producer) (*HashResult, error) {
	tmp, err := os.CreateTemp(filepath.Join(s.root, familySHA256), ".blob-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	sh, b3 := sha256.New(), blake3.New()
	werr := p(io.MultiWriter(tmp, sh, b3))
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmp.Name())
		if werr != nil {
			return nil, fmt.Errorf("failed to write blob: %w", werr)
		}
		return nil, fmt.Errorf("failed to close temp file: %w", cerr)
	}

	res := &HashResult{SHA256: hexSum(sh), BLAKE3: hexSum(b3)}
	if err := commit(tmp.Name(), s.path(familySHA256, res.SHA256)); err != nil {
		return nil, fmt.Errorf("failed to store blob: %w", err)
	}
	if err := s.writeRef(res.BLAKE3, res.SHA256); err != nil {
		return nil, fmt.Errorf("failed to store blake3 ref: %w", err)
	}
	return res, nil
}

// commit moves tmp to dst unless dst already exists.
func commit(tmp, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return os.Remove(tmp)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := osRename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Open returns the blob with the given SHA-256 digest. The caller closes it.
func (s *Store) Open(sha string) (*os.File, error) {
	if !IsValidHash(sha) {
		return nil, ErrInvalidHash
	}
	f, err := os.Open(s.path(familySHA256, sha))
	if os.IsNotExist(err) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

// Exists reports whether a blob with the given SHA-256 digest is stored.
func (s *Store) Exists(sha string) bool {
	if !IsValidHash(sha) {
		return false
	}
	_, err := os.Stat(s.path(familySHA256, sha))
	return err == nil
}

// Resolve maps a digest of either family to the SHA-256 key of a stored
// blob. SHA-256 is tried first.
func (s *Store) Resolve(digest string) (string, error) {
	if !IsValidHash(digest) {
		return "", ErrInvalidHash
	}
	if s.Exists(digest) {
		return digest, nil
	}
	return s.LookupBlake3(digest)
}

func hexSum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
