package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/FocuswithJustin/jatspkg/core/errors"
	"github.com/FocuswithJustin/jatspkg/internal/validation"
)

// Unpacker extracts archives into directories. The zero value applies the
// limits from the validation package.
type Unpacker struct {
	// MaxBytes caps the total bytes written per archive. Zero means
	// validation.MaxUnpackedSize.
	MaxBytes int64
	// MaxEntries caps the number of entries per archive. Zero means
	// validation.MaxEntries.
	MaxEntries int
}

// Unpack extracts src into dst, which is created if needed. Entry names
// are sanitized so nothing is written outside dst; links and device
// entries are skipped. Single-stream .gz and .xz files unpack to one file
// named by the archive stem.
func (u Unpacker) Unpack(ctx context.Context, src, dst string) error {
	format := DetectFormat(src)
	if format == FormatNone {
		return errors.NewUnsupported("archive", filepath.Base(src))
	}
	if err := u.checkMagic(src, format); err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return errors.NewIO("create directory", dst, err)
	}

	w := &limitedWriter{u: u, ctx: ctx, root: dst}
	var err error
	switch format {
	case FormatZip, FormatTar, FormatTarGz, FormatTarXz:
		err = w.members(src)
	case FormatGzip, FormatXz:
		err = w.unstream(src, format)
	}
	if err != nil {
		return errors.NewIO("unpack", src, err)
	}
	return nil
}

func (u Unpacker) checkMagic(src string, byName Format) error {
	if byName == FormatTar {
		return nil
	}
	f, err := os.Open(src)
	if err != nil {
		return errors.NewIO("open", src, err)
	}
	defer f.Close()
	sniffed, err := Sniff(f)
	if err != nil {
		return errors.NewIO("read", src, err)
	}
	if !compatible(byName, sniffed) {
		return errors.NewIO("unpack", src, fmt.Errorf("content is %q, extension says %q", sniffed, byName))
	}
	return nil
}

// limitedWriter materializes entries under root while enforcing limits.
type limitedWriter struct {
	u       Unpacker
	ctx     context.Context
	root    string
	written int64
	entries int
}

func (w *limitedWriter) maxBytes() int64 {
	if w.u.MaxBytes > 0 {
		return w.u.MaxBytes
	}
	return validation.MaxUnpackedSize
}

func (w *limitedWriter) maxEntries() int {
	if w.u.MaxEntries > 0 {
		return w.u.MaxEntries
	}
	return validation.MaxEntries
}

// next validates an entry name and returns its destination path.
func (w *limitedWriter) next(name string) (string, error) {
	if err := w.ctx.Err(); err != nil {
		return "", err
	}
	w.entries++
	if w.entries > w.maxEntries() {
		return "", fmt.Errorf("archive has more than %d entries", w.maxEntries())
	}
	rel, err := validation.SanitizePath(name)
	if err != nil {
		return "", fmt.Errorf("entry %q: %w", name, err)
	}
	return filepath.Join(w.root, rel), nil
}

func (w *limitedWriter) mkdir(name string) error {
	target, err := w.next(name)
	if err != nil {
		return err
	}
	return os.MkdirAll(target, 0755)
}

func (w *limitedWriter) file(name string, r io.Reader) error {
	target, err := w.next(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	remaining := w.maxBytes() - w.written
	n, copyErr := io.Copy(out, io.LimitReader(r, remaining+1))
	closeErr := out.Close()
	w.written += n
	if copyErr != nil {
		return copyErr
	}
	if w.written > w.maxBytes() {
		return fmt.Errorf("unpacked size exceeds %d bytes", w.maxBytes())
	}
	return closeErr
}

// members materializes every directory and file of a multi-entry archive.
func (w *limitedWriter) members(src string) error {
	return Walk(src, func(e Entry, content io.Reader) error {
		if e.Dir {
			return w.mkdir(e.Name)
		}
		return w.file(e.Name, content)
	})
}

func (w *limitedWriter) unstream(src string, format Format) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	r, closeDecoder, err := decompress(f, format)
	if err != nil {
		return err
	}
	defer closeDecoder()
	stem, _ := SplitExt(filepath.Base(src))
	return w.file(stem, r)
}
