package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// epoch is stamped on every header so identical trees produce identical bytes.
var epoch = time.Unix(0, 0).UTC()

// WriteTarGz streams a deterministic tar.gz of srcDir to w. Entries are
// sorted, named relative to baseDir ("" for none), and carry no owner or
// timestamp information, so the digest depends only on content and names.
func WriteTarGz(w io.Writer, srcDir, baseDir string) error {
	gw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return err
	}
	gw.ModTime = epoch
	tw := tar.NewWriter(gw)

	if err := writeTree(tw, srcDir, baseDir); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}

func writeTree(tw *tar.Writer, srcDir, baseDir string) error {
	var paths []string
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != srcDir {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(paths)

	for _, path := range paths {
		info, err := os.Lstat(path)
		if err != nil {
			return err
		}
		if !info.IsDir() && !info.Mode().IsRegular() {
			continue
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if baseDir != "" {
			name = baseDir + "/" + name
		}

		header := &tar.Header{
			Name:    name,
			ModTime: epoch,
			Mode:    0644,
			Format:  tar.FormatPAX,
		}
		if info.IsDir() {
			header.Typeflag = tar.TypeDir
			header.Name += "/"
			header.Mode = 0755
		} else {
			header.Typeflag = tar.TypeReg
			header.Size = info.Size()
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			continue
		}
		if err := copyFile(tw, path); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// WriteGzip streams a deterministic gzip of one file to w: no embedded
// name and a fixed modification time.
func WriteGzip(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return GzipStream(w, f)
}

// GzipStream compresses r to w with the same fixed header as WriteGzip.
func GzipStream(w io.Writer, r io.Reader) error {
	gw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return err
	}
	gw.ModTime = epoch
	if _, err := io.Copy(gw, r); err != nil {
		return err
	}
	return gw.Close()
}

// CreateTarGz writes a deterministic tar.gz of srcDir to dstPath, creating
// parent directories.
func CreateTarGz(srcDir, dstPath, baseDir string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	out, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	if err := WriteTarGz(out, srcDir, baseDir); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
