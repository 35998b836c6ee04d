package resource

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/FocuswithJustin/jatspkg/core/errors"
	"github.com/FocuswithJustin/jatspkg/internal/archive"
)

// File is a physical file of the bundle.
type File struct {
	// Path is slash-separated and relative to the bundle root. Files
	// unpacked from an archive keep the path they would have as a sibling
	// directory named by the archive stem.
	Path string
	// Source is where the bytes live on disk: under the bundle root, or
	// under the scratch directory for unpacked files.
	Source   string
	Size     int64
	MimeType string
	Kind     Kind
	// Dir is the archive stem when the file was promoted out of a
	// single-member archive; references may name the archive instead.
	Dir string
	// Bundle marks an unpacked directory kept whole as a code bundle.
	Bundle bool
}

// Name returns the last path element.
func (f File) Name() string { return path.Base(f.Path) }

// Unpacker turns a compressed file into a directory.
type Unpacker interface {
	Unpack(ctx context.Context, src, dst string) error
}

// Normalize lists the bundle under root, recursively unpacking every
// archive into scratch. root is never written, so concurrent and repeated
// runs over one bundle see the same files. An unpacked directory holding
// exactly one recognized file is promoted to that file; any other unpacked
// directory becomes a code bundle. Archives themselves leave the file set.
// entryName is excluded (the article XML).
func Normalize(ctx context.Context, root, scratch string, u Unpacker, entryName string) ([]File, error) {
	if scratch == "" {
		return nil, errors.NewValidation("scratch", "no scratch directory for unpacking")
	}
	files, err := normalizeDir(ctx, root, "", scratch, u)
	if err != nil {
		return nil, err
	}
	out := files[:0]
	for _, f := range files {
		if f.Path != entryName {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// normalizeDir lists dir, whose files appear under the logical prefix.
func normalizeDir(ctx context.Context, dir, prefix, scratch string, u Unpacker) ([]File, error) {
	var plain, archives []File

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && ignorable(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ignorable(d.Name()) {
			return nil
		}
		r, _ := filepath.Rel(dir, p)
		rel := path.Join(prefix, filepath.ToSlash(r))
		if archive.IsArchive(d.Name()) {
			archives = append(archives, File{Path: rel, Source: p})
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		plain = append(plain, newFile(rel, p, info.Size()))
		return nil
	})
	if err != nil {
		return nil, errors.NewIO("list directory", dir, err)
	}

	var out []File
	for _, a := range archives {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stem, _ := archive.SplitExt(a.Name())
		target := unpackTarget(a, stem, scratch)
		dst := filepath.Join(scratch, filepath.FromSlash(target))
		if err := u.Unpack(ctx, a.Source, dst); err != nil {
			return nil, err
		}

		members, err := normalizeDir(ctx, dst, target, scratch, u)
		if err != nil {
			return nil, err
		}
		out = append(out, collapse(target, dst, stem, members))
	}

	return append(out, plain...), nil
}

// unpackTarget is the logical directory of an unpacked archive: a sibling
// named by its stem, suffixed while that name is taken beside the archive
// or by an earlier unpack.
func unpackTarget(a File, stem, scratch string) string {
	target := path.Join(path.Dir(a.Path), stem)
	for exists(filepath.Join(filepath.Dir(a.Source), path.Base(target))) ||
		exists(filepath.Join(scratch, filepath.FromSlash(target))) {
		target += "_unpacked"
	}
	return target
}

// collapse promotes a lone recognized member or records a code bundle.
func collapse(target, source, stem string, members []File) File {
	if len(members) == 1 && !members[0].Bundle {
		if _, ok := MimeType(members[0].Path); ok {
			lone := members[0]
			lone.Dir = stem
			return lone
		}
	}
	var size int64
	for _, m := range members {
		size += m.Size
	}
	return File{Path: target, Source: source, Size: size, MimeType: DirectoryFormat, Kind: KindCode, Bundle: true}
}

func newFile(rel, source string, size int64) File {
	mt, _ := MimeType(rel)
	return File{Path: rel, Source: source, Size: size, MimeType: mt, Kind: KindOf(rel)}
}

// ignorable skips platform metadata packed into archives.
func ignorable(name string) bool {
	return name == "__MACOSX" || name == ".DS_Store" || name == "Thumbs.db" || strings.HasPrefix(name, "._")
}

func exists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}
