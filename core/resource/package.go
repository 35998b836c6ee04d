// Package resource reconciles the files shipped with an article against
// the resource descriptors found in its XML, producing the package
// description: every figure, table, dataset, code sample and media item
// with its caption, provenance and encodings.
package resource

import (
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/FocuswithJustin/jatspkg/core/encoding"
	"github.com/FocuswithJustin/jatspkg/core/jats"
)

// Encoding is one concrete representation of a resource.
type Encoding struct {
	ContentPath    string `json:"contentPath,omitempty"`
	ContentURL     string `json:"contentUrl,omitempty"`
	EncodingFormat string `json:"encodingFormat,omitempty"`
	ContentSize    int64  `json:"contentSize,omitempty"`
	// Content carries inline HTML for tables.
	Content       string `json:"content,omitempty"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	NumberOfPages int    `json:"numberOfPages,omitempty"`
	// Bundle marks a directory-backed encoding.
	Bundle bool `json:"-"`
	// Source is the on-disk location of a local encoding.
	Source string `json:"-"`
}

// Local returns the file backing a local encoding. Encodings without a
// recorded source resolve against root.
func (e Encoding) Local(root string) string {
	if e.Source != "" {
		return e.Source
	}
	return filepath.Join(root, filepath.FromSlash(e.ContentPath))
}

// Identifier is a typed identifier such as a DOI from an object-id element.
type Identifier struct {
	PropertyID string `json:"propertyID,omitempty"`
	Value      string `json:"value"`
}

// Resource is a merged, file-backed unit of the package.
type Resource struct {
	Name          string       `json:"name"`
	AlternateName string       `json:"alternateName,omitempty"`
	Description   string       `json:"description,omitempty"`
	Caption       string       `json:"caption,omitempty"`
	Comment       []string     `json:"comment,omitempty"`
	Identifier    []Identifier `json:"identifier,omitempty"`
	DOI           string       `json:"doi,omitempty"`
	ThumbnailPath []string     `json:"thumbnailPath,omitempty"`
	Encoding      []Encoding   `json:"encoding,omitempty"`

	// Thumbnails are the encodings behind ThumbnailPath, in the same order.
	Thumbnails []Encoding `json:"-"`
	// SourceID is the XML id of the descriptor, used to resolve cross-references.
	SourceID string `json:"-"`
	Kind     Kind   `json:"-"`
}

// PrimaryPath returns the first local content path.
func (r *Resource) PrimaryPath() (Encoding, bool) {
	for _, e := range r.Encoding {
		if e.ContentPath != "" {
			return e, true
		}
	}
	return Encoding{}, false
}

// RemoteURL returns the first remote content URL.
func (r *Resource) RemoteURL() string {
	for _, e := range r.Encoding {
		if e.ContentURL != "" {
			return e.ContentURL
		}
	}
	return ""
}

// Resources holds the six kind partitions.
type Resources struct {
	Dataset []*Resource `json:"dataset,omitempty"`
	Figure  []*Resource `json:"figure,omitempty"`
	Audio   []*Resource `json:"audio,omitempty"`
	Video   []*Resource `json:"video,omitempty"`
	Code    []*Resource `json:"code,omitempty"`
	Article []*Resource `json:"article,omitempty"`

	byID   map[string]*Resource
	byName map[string]*Resource
}

func newResources() *Resources {
	return &Resources{byID: map[string]*Resource{}, byName: map[string]*Resource{}}
}

func (rs *Resources) partition(k Kind) *[]*Resource {
	switch k {
	case KindFigure:
		return &rs.Figure
	case KindAudio:
		return &rs.Audio
	case KindVideo:
		return &rs.Video
	case KindCode:
		return &rs.Code
	case KindArticle:
		return &rs.Article
	default:
		return &rs.Dataset
	}
}

// Partition returns the resources of one kind.
func (rs *Resources) Partition(k Kind) []*Resource {
	return *rs.partition(k)
}

// All returns every resource, partition by partition.
func (rs *Resources) All() []*Resource {
	var out []*Resource
	for _, k := range Kinds {
		out = append(out, rs.Partition(k)...)
	}
	return out
}

// Lookup finds the resource built from the descriptor with the given XML id.
func (rs *Resources) Lookup(id string) (*Resource, bool) {
	r, ok := rs.byID[id]
	return r, ok
}

// ByPath finds the resource whose encoding or thumbnail references a
// content path, such as the target of an inline graphic href, and returns
// the encoding that matched. An encoding with the href's exact base name
// wins over one that only shares its stem; at each level primary
// encodings are searched before thumbnails.
func (rs *Resources) ByPath(href string) (*Resource, Encoding, bool) {
	base := path.Base(strings.ReplaceAll(href, "\\", "/"))
	want := hrefVariants(href)
	matchers := []func(string) bool{
		func(p string) bool { return path.Base(p) == base },
		func(p string) bool { return nameVariants(p).intersects(want) },
	}
	all := rs.All()
	for _, match := range matchers {
		for _, thumbs := range []bool{false, true} {
			for _, r := range all {
				encs := r.Encoding
				if thumbs {
					encs = r.Thumbnails
				}
				for _, e := range encs {
					if e.ContentPath != "" && match(e.ContentPath) {
						return r, e, true
					}
				}
			}
		}
	}
	return nil, Encoding{}, false
}

// add appends r to its partition, making its name unique.
func (rs *Resources) add(r *Resource) {
	base := r.Name
	if base == "" {
		base = string(r.Kind) + "-" + strconv.Itoa(len(rs.Partition(r.Kind))+1)
	}
	name := base
	for n := 2; rs.byName[name] != nil; n++ {
		name = base + "-" + strconv.Itoa(n)
	}
	r.Name = name
	rs.byName[name] = r
	if r.SourceID != "" {
		if _, dup := rs.byID[r.SourceID]; !dup {
			rs.byID[r.SourceID] = r
		}
	}
	p := rs.partition(r.Kind)
	*p = append(*p, r)
}

// Package is the package description written as package.json.
type Package struct {
	Name string `json:"name"`
	*jats.Record
	*Resources
}

// NewPackage combines a metadata record with matched resources. The
// package is named by the slugified DOI, else the article id.
func NewPackage(rec *jats.Record, res *Resources) *Package {
	name := rec.ID
	if rec.DOI != "" {
		name = encoding.Slugify(rec.DOI)
	}
	if res == nil {
		res = newResources()
	}
	return &Package{Name: name, Record: rec, Resources: res}
}

// Encode writes the package as indented JSON.
func (p *Package) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(p)
}

// Measure is what a Prober learns about one encoding.
type Measure struct {
	Width, Height, Pages int
}

// Prober measures encodings on disk (image dimensions, page counts).
// Probe returns a zero Measure for formats it does not understand.
type Prober interface {
	Probe(absPath, format string) (Measure, error)
}

// Probe fills dimensions and page counts for local encodings. Encodings
// without a recorded source are looked up under root.
// Probe failures never fail the package: the fields stay empty.
func (rs *Resources) Probe(root string, p Prober) {
	if p == nil {
		return
	}
	for _, r := range rs.All() {
		for i := range r.Encoding {
			e := &r.Encoding[i]
			if e.ContentPath == "" || e.Bundle {
				continue
			}
			m, err := p.Probe(e.Local(root), e.EncodingFormat)
			if err != nil {
				continue
			}
			e.Width, e.Height, e.NumberOfPages = m.Width, m.Height, m.Pages
		}
	}
}
