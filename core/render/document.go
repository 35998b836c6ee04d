package render

import (
	"context"
	"strings"

	"github.com/FocuswithJustin/jatspkg/core/ast"
	"github.com/FocuswithJustin/jatspkg/core/encoding"
	"github.com/FocuswithJustin/jatspkg/core/jats"
)

const ontologyPrefixes = "deo: http://purl.org/spar/deo/ doco: http://purl.org/spar/doco/"

// Article is the converted content of one article.
type Article struct {
	Abstract []ast.Node
	Body     []ast.Node
}

// Document renders a complete HTML page: a header from the package
// record, the abstract, the body and the bibliography whose anchors the
// citation links point at.
func (r *Renderer) Document(ctx context.Context, art Article) (string, error) {
	r.Index(art.Abstract...)
	r.Index(art.Body...)

	rec := r.pkg.Record
	if rec == nil {
		rec = &jats.Record{}
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html")
	if rec.Language != "" {
		b.WriteString(` lang="` + encoding.EscapeAttr(rec.Language) + `"`)
	}
	b.WriteString(">\n<head>\n<meta charset=\"utf-8\">\n<title>")
	b.WriteString(encoding.EscapeHTML(rec.Title))
	b.WriteString("</title>\n</head>\n<body>\n")
	b.WriteString(`<article prefix="` + ontologyPrefixes + `">` + "\n")

	writeHeader(&b, rec)

	if len(art.Abstract) > 0 {
		b.WriteString(`<section class="abstract" typeof="doco:Abstract">`)
		if !startsWithHeading(art.Abstract) {
			b.WriteString("<h2>Abstract</h2>")
		}
		if err := r.nodes(ctx, &b, art.Abstract, 2); err != nil {
			return "", err
		}
		b.WriteString("</section>\n")
	}

	if err := r.nodes(ctx, &b, art.Body, 2); err != nil {
		return "", err
	}
	b.WriteString("\n")

	if len(rec.References) > 0 {
		b.WriteString(`<section class="references" typeof="doco:Bibliography"><h2>References</h2><ol>`)
		for i, ref := range rec.References {
			b.WriteString(`<li id="` + RefAnchor(i) + `">`)
			writeReference(&b, ref)
			b.WriteString("</li>")
		}
		b.WriteString("</ol></section>\n")
	}

	b.WriteString("</article>\n</body>\n</html>\n")
	return b.String(), nil
}

func startsWithHeading(nodes []ast.Node) bool {
	if len(nodes) == 0 {
		return false
	}
	_, ok := nodes[0].(*ast.Heading)
	return ok
}

func writeHeader(b *strings.Builder, rec *jats.Record) {
	b.WriteString("<header>")
	if rec.Title != "" {
		b.WriteString("<h1>" + encoding.EscapeHTML(rec.Title) + "</h1>")
	}
	var names []string
	if rec.Author != nil {
		names = append(names, rec.Author.DisplayName())
	}
	for _, c := range rec.Contributor {
		names = append(names, c.DisplayName())
	}
	if len(names) > 0 {
		b.WriteString(`<p class="authors">` + encoding.EscapeHTML(strings.Join(names, ", ")) + "</p>")
	}
	if rec.Journal.Name != "" {
		b.WriteString(`<p class="journal">` + encoding.EscapeHTML(rec.Journal.Name))
		if rec.DatePublished != "" {
			b.WriteString(", " + encoding.EscapeHTML(rec.DatePublished))
		}
		b.WriteString("</p>")
	}
	if rec.DOI != "" {
		u := "https://doi.org/" + rec.DOI
		b.WriteString(`<p class="doi"><a href="` + encoding.EscapeAttr(u) + `">` + encoding.EscapeHTML(rec.DOI) + "</a></p>")
	}
	b.WriteString("</header>\n")
}

// writeReference formats one bibliography entry. Unstructured references
// are written as their text.
func writeReference(b *strings.Builder, ref jats.Reference) {
	if ref.Title == "" && ref.Source == "" && ref.Text != "" {
		b.WriteString(encoding.EscapeHTML(ref.Text))
		return
	}

	var parts []string
	if len(ref.Authors) > 0 {
		names := make([]string, 0, len(ref.Authors))
		for _, a := range ref.Authors {
			names = append(names, a.DisplayName())
		}
		s := strings.Join(names, ", ")
		if ref.UnnamedContributors {
			s += " et al."
		}
		parts = append(parts, s)
	}
	if ref.Year != "" {
		parts = append(parts, "("+ref.Year+")")
	}
	if ref.Title != "" {
		parts = append(parts, ref.Title)
	}
	if ref.Source != "" {
		src := ref.Source
		if ref.Volume != "" {
			src += " " + ref.Volume
			if ref.Issue != "" {
				src += "(" + ref.Issue + ")"
			}
		}
		if ref.PageStart != "" {
			src += ":" + ref.PageStart
			if ref.PageEnd != "" {
				src += "-" + ref.PageEnd
			}
		}
		parts = append(parts, src)
	}
	b.WriteString(encoding.EscapeHTML(strings.Join(parts, " ")))

	switch {
	case ref.DOI != "":
		u := "https://doi.org/" + ref.DOI
		b.WriteString(` <a class="doi" href="` + encoding.EscapeAttr(u) + `">` + encoding.EscapeHTML(u) + "</a>")
	case ref.URL != "":
		b.WriteString(` <a href="` + encoding.EscapeAttr(ref.URL) + `">` + encoding.EscapeHTML(ref.URL) + "</a>")
	case ref.PMID != "":
		b.WriteString(` <span class="pmid">PMID ` + encoding.EscapeHTML(ref.PMID) + "</span>")
	}
}
