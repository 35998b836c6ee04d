// Package archive unpacks the compressed bundles that ship alongside
// JATS articles and produces deterministic tar.gz and gzip streams for
// content hashing.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/ulikunitz/xz"
)

// Entry is one member of an archive as seen by Walk.
type Entry struct {
	Name string
	Size int64
	Dir  bool
}

// WalkFunc receives each directory and regular-file entry. content is nil
// for directories and only valid until WalkFunc returns. Returning
// fs.SkipAll stops the walk without error.
type WalkFunc func(e Entry, content io.Reader) error

// Walk visits the entries of a zip, tar, tar.gz or tar.xz archive in
// stored order. Links and device entries are not reported.
func Walk(path string, fn WalkFunc) error {
	var err error
	switch DetectFormat(path) {
	case FormatZip:
		err = walkZip(path, fn)
	case FormatTar, FormatTarGz, FormatTarXz:
		err = walkTar(path, fn)
	default:
		return fmt.Errorf("not a multi-entry archive: %s", path)
	}
	if err == fs.SkipAll {
		return nil
	}
	return err
}

// decompress wraps r with the stream decoder for format. The returned
// closer releases decoder state; it is a no-op for uncompressed formats.
func decompress(r io.Reader, format Format) (io.Reader, func() error, error) {
	nop := func() error { return nil }
	switch format {
	case FormatTarGz, FormatGzip:
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return gzr, gzr.Close, nil
	case FormatTarXz, FormatXz:
		xzr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("xz: %w", err)
		}
		return xzr, nop, nil
	default:
		return r, nop, nil
	}
}

func walkTar(path string, fn WalkFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	r, closeDecoder, err := decompress(f, DetectFormat(path))
	if err != nil {
		return err
	}
	defer closeDecoder()

	tr := tar.NewReader(r)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		switch h.Typeflag {
		case tar.TypeDir:
			err = fn(Entry{Name: h.Name, Dir: true}, nil)
		case tar.TypeReg:
			err = fn(Entry{Name: h.Name, Size: h.Size}, tr)
		default:
			continue
		}
		if err != nil {
			return err
		}
	}
}

func walkZip(path string, fn WalkFunc) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, zf := range zr.File {
		mode := zf.Mode()
		switch {
		case mode.IsDir():
			err = fn(Entry{Name: zf.Name, Dir: true}, nil)
		case mode.IsRegular():
			var rc io.ReadCloser
			if rc, err = zf.Open(); err != nil {
				return err
			}
			err = fn(Entry{Name: zf.Name, Size: int64(zf.UncompressedSize64)}, rc)
			rc.Close()
		default:
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// List returns the regular-file entry names of an archive.
func List(path string) ([]string, error) {
	var names []string
	err := Walk(path, func(e Entry, _ io.Reader) error {
		if !e.Dir {
			names = append(names, e.Name)
		}
		return nil
	})
	return names, err
}
