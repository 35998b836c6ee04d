package cas

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func readBlob(t *testing.T, s *Store, sha string) []byte {
	t.Helper()
	f, err := s.Open(sha)
	if err != nil {
		t.Fatalf("Open(%s): %v", sha, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestPutBytes(t *testing.T) {
	store := newStore(t)
	data := []byte("figure bytes")

	res, err := store.Put(BytesProducer(data))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if res.SHA256 != Hash(data) || res.BLAKE3 != Blake3Hash(data) {
		t.Errorf("digests = %+v", res)
	}
	if got := readBlob(t, store, res.SHA256); !bytes.Equal(got, data) {
		t.Errorf("blob = %q", got)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "sha256", res.SHA256[:2], res.SHA256)); err != nil {
		t.Errorf("blob not at its sharded path: %v", err)
	}
}

func TestPutDuplicate(t *testing.T) {
	store := newStore(t)
	first, err := store.Put(BytesProducer([]byte("same")))
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.Put(BytesProducer([]byte("same")))
	if err != nil {
		t.Fatal(err)
	}
	if *first != *second {
		t.Errorf("duplicate content gave %+v and %+v", first, second)
	}

	entries, err := os.ReadDir(filepath.Join(store.Root(), "sha256", first.SHA256[:2]))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("%d blobs after duplicate put", len(entries))
	}
}

func TestPutFileProducer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "S1.csv")
	content := []byte("a,b\n1,2\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	store, _ := NewStore(filepath.Join(dir, "store"))
	res, err := store.Put(FileProducer(path))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if res.SHA256 != Hash(content) {
		t.Errorf("SHA256 = %s", res.SHA256)
	}
	if got := readBlob(t, store, res.SHA256); !bytes.Equal(got, content) {
		t.Errorf("blob = %q", got)
	}
}

func TestOpenErrors(t *testing.T) {
	store := newStore(t)
	missing := Hash([]byte("never stored"))

	if _, err := store.Open("not-a-hash"); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("Open(bad) = %v", err)
	}
	if _, err := store.Open(missing); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("Open(missing) = %v", err)
	}
	if store.Exists(missing) || store.Exists("zz") {
		t.Error("Exists should be false")
	}
}

func TestDigestMatchesPut(t *testing.T) {
	data := []byte("streamed")
	d, err := Digest(BytesProducer(data))
	if err != nil {
		t.Fatal(err)
	}
	if d != Hash(data) {
		t.Errorf("Digest = %s, want %s", d, Hash(data))
	}
	if _, err := Digest(FileProducer(filepath.Join(t.TempDir(), "missing"))); err == nil {
		t.Error("expected error digesting a missing file")
	}
}

func TestResolve(t *testing.T) {
	store := newStore(t)
	res, err := store.Put(BytesProducer([]byte("ref")))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		digest string
		want   string
		err    error
	}{
		{"sha256", res.SHA256, res.SHA256, nil},
		{"blake3", res.BLAKE3, res.SHA256, nil},
		{"unknown", Blake3Hash([]byte("nope")), "", ErrBlobNotFound},
		{"invalid", "ABC", "", ErrInvalidHash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Resolve(tt.digest)
			if !errors.Is(err, tt.err) || got != tt.want {
				t.Errorf("Resolve = %q, %v; want %q, %v", got, err, tt.want, tt.err)
			}
		})
	}
}

func TestLookupBlake3Corrupt(t *testing.T) {
	store := newStore(t)
	b3 := Blake3Hash([]byte("x"))
	path := filepath.Join(store.Root(), "blake3", b3[:2], b3)
	os.MkdirAll(filepath.Dir(path), 0755)
	os.WriteFile(path, []byte("garbage"), 0644)

	if _, err := store.LookupBlake3(b3); err == nil {
		t.Error("expected error for corrupt ref")
	}
}

func TestPutRenameError(t *testing.T) {
	store := newStore(t)
	orig := osRename
	osRename = func(string, string) error { return errors.New("rename failed") }
	defer func() { osRename = orig }()

	if _, err := store.Put(BytesProducer([]byte("x"))); err == nil {
		t.Error("expected rename error")
	}
	assertNoTemps(t, filepath.Join(store.Root(), "sha256"))
}

func TestPutProducerError(t *testing.T) {
	store := newStore(t)
	boom := errors.New("producer failed")
	if _, err := store.Put(func(io.Writer) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	assertNoTemps(t, filepath.Join(store.Root(), "sha256"))
}

func assertNoTemps(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if !e.IsDir() {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}
