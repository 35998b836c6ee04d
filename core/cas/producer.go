package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Producer writes the canonical bytes of a blob to w. The same producer
// can feed a digest or the store without buffering the blob.
type Producer func(w io.Writer) error

// FileProducer streams the file at path unchanged.
func FileProducer(path string) Producer {
	return func(w io.Writer) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	}
}

// BytesProducer streams an in-memory blob.
func BytesProducer(data []byte) Producer {
	return func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}
}

// Digest returns the hex SHA-256 of everything p writes.
func Digest(p Producer) (string, error) {
	h := sha256.New()
	if err := p(h); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Blake3Hash returns the hex BLAKE3-256 of data.
func Blake3Hash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
