package resource

import (
	"strings"

	"github.com/FocuswithJustin/jatspkg/core/jats"
)

// TableFormat is the encoding format of inline tables.
const TableFormat = "text/html"

// candidate is a descriptor with the files it consumed.
type candidate struct {
	desc  *jats.Descriptor
	files []File
}

// Match assigns files to descriptors and merges them into package
// resources. Descriptors are visited in document order and the first one
// whose href variants intersect a file's variants consumes that file.
// A descriptor that matched nothing and has no inline table or remote href
// is dropped; files that matched nothing become bare resources.
// Ambiguity is resolved by rule order, never reported.
func Match(files []File, descs []jats.Descriptor) *Resources {
	consumed := make([]bool, len(files))
	variants := make([]variantSet, len(files))
	for i, f := range files {
		variants[i] = fileVariants(f)
	}

	cands := make([]candidate, 0, len(descs))
	for i := range descs {
		d := &descs[i]
		want := variantSet{}
		for _, href := range d.Hrefs() {
			if !isRemote(href) {
				for v := range hrefVariants(href) {
					want[v] = struct{}{}
				}
			}
		}
		c := candidate{desc: d}
		if len(want) > 0 {
			for j, f := range files {
				if !consumed[j] && variants[j].intersects(want) {
					consumed[j] = true
					c.files = append(c.files, f)
				}
			}
		}
		cands = append(cands, c)
	}

	rs := newResources()
	for _, c := range cands {
		if r := merge(c); r != nil {
			rs.add(r)
		}
	}
	for j, f := range files {
		if !consumed[j] {
			rs.add(bare(f))
		}
	}
	return rs
}

// InferKind applies the kind decision order to one descriptor and the
// files matched to it.
func InferKind(d *jats.Descriptor, files []File) Kind {
	fileKinds := func() Kind {
		kinds := make([]Kind, len(files))
		for i, f := range files {
			kinds[i] = f.Kind
		}
		return majority(kinds)
	}
	orDataset := func(k Kind) Kind {
		if k == "" {
			return KindDataset
		}
		return k
	}

	switch {
	case d.Kind == jats.KindTable:
		return KindDataset
	case len(d.Code) > 0:
		return KindCode
	case d.Inline:
		for _, p := range d.SI {
			if k := fromMajor(p.MimeType); k != "" {
				return k
			}
		}
		return orDataset(fileKinds())
	case len(d.Media) > 0:
		var kinds []Kind
		for _, p := range d.Media {
			if k := fromMajor(p.MimeType); k != "" {
				kinds = append(kinds, k)
			}
		}
		if k := majority(kinds); k != "" {
			return k
		}
		return orDataset(fileKinds())
	case len(d.Graphic) > 0:
		return KindFigure
	default:
		return orDataset(fileKinds())
	}
}

func merge(c candidate) *Resource {
	d := c.desc
	remote := remotePayloads(d)
	if len(c.files) == 0 && len(d.Table) == 0 && len(remote) == 0 {
		return nil
	}

	r := &Resource{
		SourceID:      d.ID,
		Name:          d.ID,
		AlternateName: d.Label,
		Comment:       d.Footnotes,
		Kind:          InferKind(d, c.files),
	}
	if r.Name == "" && len(c.files) > 0 {
		r.Name = stem(c.files[0].Name())
	}
	if d.Caption != nil {
		if d.Caption.Title != "" {
			r.Description = d.Caption.Title
			r.Caption = d.Caption.Content
		} else {
			r.Description = d.Caption.Content
		}
	}
	for _, oid := range d.ObjectIDs {
		r.Identifier = append(r.Identifier, Identifier{PropertyID: oid.Type, Value: oid.Value})
		if strings.EqualFold(oid.Type, "doi") && r.DOI == "" {
			r.DOI = oid.Value
		}
	}

	for _, t := range d.Table {
		r.Encoding = append(r.Encoding, Encoding{
			EncodingFormat: TableFormat,
			ContentSize:    int64(len(t.HTML)),
			Content:        t.HTML,
		})
	}
	for _, f := range c.files {
		if r.Kind != KindFigure && f.Kind == KindFigure {
			r.addThumbnail(fileEncoding(f))
			continue
		}
		r.Encoding = append(r.Encoding, fileEncoding(f))
	}
	r.Encoding = append(r.Encoding, remote...)

	if r.Kind == KindFigure {
		demoteGIF(r)
	}
	return r
}

// demoteGIF turns a GIF preview into a thumbnail when a figure has exactly
// one GIF and one JPEG encoding.
func demoteGIF(r *Resource) {
	if len(r.Encoding) != 2 {
		return
	}
	gif, jpeg := -1, -1
	for i, e := range r.Encoding {
		switch e.EncodingFormat {
		case "image/gif":
			gif = i
		case "image/jpeg":
			jpeg = i
		}
	}
	if gif < 0 || jpeg < 0 || r.Encoding[gif].ContentPath == "" {
		return
	}
	r.addThumbnail(r.Encoding[gif])
	r.Encoding = []Encoding{r.Encoding[jpeg]}
}

func (r *Resource) addThumbnail(e Encoding) {
	r.ThumbnailPath = append(r.ThumbnailPath, e.ContentPath)
	r.Thumbnails = append(r.Thumbnails, e)
}

func remotePayloads(d *jats.Descriptor) []Encoding {
	var out []Encoding
	for _, group := range [][]jats.Payload{d.Graphic, d.Media, d.Code, d.SI} {
		for _, p := range group {
			if isRemote(p.Href) {
				out = append(out, Encoding{ContentURL: p.Href, EncodingFormat: p.MimeType})
			}
		}
	}
	return out
}

func fileEncoding(f File) Encoding {
	return Encoding{
		ContentPath:    f.Path,
		EncodingFormat: f.MimeType,
		ContentSize:    f.Size,
		Bundle:         f.Bundle,
		Source:         f.Source,
	}
}

// bare wraps a file no descriptor claimed.
func bare(f File) *Resource {
	return &Resource{
		Name:     stem(f.Name()),
		Kind:     f.Kind,
		Encoding: []Encoding{fileEncoding(f)},
	}
}
