package cas

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (s *Store) writeRef(b3, sha string) error {
	dst := s.path(familyBLAKE3, b3)
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Join(s.root, familyBLAKE3), ".ref-*")
	if err != nil {
		return err
	}
	_, werr := tmp.WriteString(sha + "\n")
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(tmp.Name())
		return werr
	}
	return commit(tmp.Name(), dst)
}

// LookupBlake3 returns the SHA-256 digest of the blob whose BLAKE3 digest
// is b3.
func (s *Store) LookupBlake3(b3 string) (string, error) {
	if !IsValidHash(b3) {
		return "", ErrInvalidHash
	}
	data, err := os.ReadFile(s.path(familyBLAKE3, b3))
	if os.IsNotExist(err) {
		return "", ErrBlobNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read blake3 ref: %w", err)
	}
	sha := strings.TrimSpace(string(data))
	if !IsValidHash(sha) {
		return "", fmt.Errorf("corrupt blake3 ref %s", b3)
	}
	return sha, nil
}
