package archive

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
)

// Format is a recognized compression or archive format.
type Format string

const (
	FormatNone  Format = ""
	FormatZip   Format = "zip"
	FormatTar   Format = "tar"
	FormatTarGz Format = "tar.gz"
	FormatTarXz Format = "tar.xz"
	FormatGzip  Format = "gz"
	FormatXz    Format = "xz"
)

// Extensions lists every recognized compression extension, compound
// extensions first so suffix matching picks the longest.
var Extensions = []string{".tar.gz", ".tar.xz", ".tgz", ".txz", ".zip", ".tar", ".gz", ".xz"}

var extFormats = map[string]Format{
	".tar.gz": FormatTarGz,
	".tgz":    FormatTarGz,
	".tar.xz": FormatTarXz,
	".txz":    FormatTarXz,
	".zip":    FormatZip,
	".tar":    FormatTar,
	".gz":     FormatGzip,
	".xz":     FormatXz,
}

// SplitExt returns name without its compression extension, and that
// extension. ext is empty when name is not a recognized archive.
func SplitExt(name string) (stem, ext string) {
	lower := strings.ToLower(name)
	for _, e := range Extensions {
		if strings.HasSuffix(lower, e) && len(name) > len(e) {
			return name[:len(name)-len(e)], name[len(name)-len(e):]
		}
	}
	return name, ""
}

// DetectFormat determines the format from a file name.
func DetectFormat(name string) Format {
	_, ext := SplitExt(filepath.Base(name))
	return extFormats[strings.ToLower(ext)]
}

// IsArchive reports whether name has a recognized compression extension.
func IsArchive(name string) bool {
	return DetectFormat(name) != FormatNone
}

// magic signatures, checked in order.
var magicBytes = []struct {
	format Format
	magic  []byte
	offset int
}{
	{FormatGzip, []byte{0x1f, 0x8b}, 0},
	{FormatXz, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}, 0},
	{FormatZip, []byte{0x50, 0x4b, 0x03, 0x04}, 0},
	{FormatZip, []byte{0x50, 0x4b, 0x05, 0x06}, 0}, // empty zip
	{FormatTar, []byte("ustar"), 257},
}

// Sniff reads up to 512 bytes of r and reports the container format the
// content starts with. Compressed tarballs sniff as their compression.
func Sniff(r io.Reader) (Format, error) {
	buf := make([]byte, 512)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FormatNone, err
	}
	buf = buf[:n]
	for _, sig := range magicBytes {
		if sig.offset+len(sig.magic) <= len(buf) && bytes.Equal(buf[sig.offset:sig.offset+len(sig.magic)], sig.magic) {
			return sig.format, nil
		}
	}
	return FormatNone, nil
}

// compatible reports whether a sniffed format agrees with the name-derived one.
func compatible(byName, sniffed Format) bool {
	switch byName {
	case FormatTarGz:
		return sniffed == FormatGzip
	case FormatTarXz:
		return sniffed == FormatXz
	default:
		return byName == sniffed
	}
}
