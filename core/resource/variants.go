package resource

import (
	"path"
	"strings"

	"github.com/FocuswithJustin/jatspkg/internal/archive"
)

// variantSet is the set of names a reference to something could use.
type variantSet map[string]struct{}

func (v variantSet) add(names ...string) {
	for _, n := range names {
		if n != "" {
			v[n] = struct{}{}
		}
	}
}

func (v variantSet) intersects(other variantSet) bool {
	small, large := v, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for n := range small {
		if _, ok := large[n]; ok {
			return true
		}
	}
	return false
}

// stem strips one extension (a compound compression extension counts as one).
func stem(name string) string {
	if s, ext := archive.SplitExt(name); ext != "" {
		return s
	}
	return strings.TrimSuffix(name, path.Ext(name))
}

// normalizeWS collapses whitespace runs and underscores into single
// underscores so "Figure 1" and "Figure_1" compare equal.
func normalizeWS(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	return strings.Join(fields, "_")
}

// nameVariants returns basename, stem and whitespace-normalized stem.
func nameVariants(p string) variantSet {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	s := stem(base)
	v := variantSet{}
	v.add(base, s, normalizeWS(s))
	return v
}

// hrefVariants is the variant set of a declared href.
func hrefVariants(href string) variantSet {
	return nameVariants(href)
}

// fileVariants is the variant set of a physical file. Files promoted out of
// an archive also answer to the archive's name; code bundles answer to
// their directory name with every compression extension.
func fileVariants(f File) variantSet {
	v := nameVariants(f.Path)
	if f.Dir != "" {
		v.add(f.Dir, normalizeWS(f.Dir))
		for _, ext := range archive.Extensions {
			v.add(f.Dir + ext)
		}
	}
	if f.Bundle {
		base := path.Base(f.Path)
		for _, ext := range archive.Extensions {
			v.add(base + ext)
		}
	}
	return v
}

// isRemote reports whether href points outside the bundle.
func isRemote(href string) bool {
	lower := strings.ToLower(href)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "ftp://")
}
