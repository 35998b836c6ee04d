// Package render writes an article tree as semantic HTML. Cross-references
// become links: citations point at the bibliography or the cited work,
// figures, tables and supplements point at a content-addressed
// <base>/r/<sha256> URL computed from the bytes of the matched file.
//
// Rendering is strictly sequential. Resolving a link may read and hash a
// file, and every sibling waits for the previous one so output order always
// matches document order.
package render

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/jatspkg/core/ast"
	"github.com/FocuswithJustin/jatspkg/core/cache"
	"github.com/FocuswithJustin/jatspkg/core/cas"
	"github.com/FocuswithJustin/jatspkg/core/encoding"
	"github.com/FocuswithJustin/jatspkg/core/errors"
	"github.com/FocuswithJustin/jatspkg/core/resource"
	"github.com/FocuswithJustin/jatspkg/internal/logging"
)

// deoTypes maps lowercase section titles to Discourse Element Ontology terms.
var deoTypes = map[string]string{
	"introduction":     "deo:Introduction",
	"methods":          "deo:Methods",
	"results":          "deo:Results",
	"discussion":       "deo:Discussion",
	"conclusion":       "deo:Conclusion",
	"materials":        "deo:Materials",
	"acknowledgements": "deo:Acknowledgements",
}

// inlineTags maps JATS inline formatting elements to HTML elements.
var inlineTags = map[string]string{
	"italic":    "em",
	"bold":      "strong",
	"sup":       "sup",
	"sub":       "sub",
	"underline": "u",
	"monospace": "code",
	"sc":        "small",
	"strike":    "s",
	"preformat": "pre",
}

// Options configures a Renderer.
type Options struct {
	// Root is the directory the package's content paths are relative to.
	Root string
	// BaseURL prefixes content-hash links.
	BaseURL string
	// Store, when set, receives every hashed blob so /r/<digest> can be served.
	Store *cas.Store
	// Cache memoizes digests for this conversion. A fresh cache is used
	// when nil.
	Cache *cache.DigestCache
}

// Renderer renders article trees against one package.
type Renderer struct {
	pkg     *resource.Package
	root    string
	base    string
	store   *cas.Store
	digests *cache.DigestCache

	refs      map[string]int
	anchors   map[*ast.Section]string
	sectionID map[string]string
}

// New returns a renderer for pkg.
func New(pkg *resource.Package, opts Options) *Renderer {
	if opts.Cache == nil {
		opts.Cache = cache.NewDigestCache(0)
	}
	r := &Renderer{
		pkg:       pkg,
		root:      opts.Root,
		base:      opts.BaseURL,
		store:     opts.Store,
		digests:   opts.Cache,
		refs:      map[string]int{},
		anchors:   map[*ast.Section]string{},
		sectionID: map[string]string{},
	}
	if pkg.Record != nil {
		for i, ref := range pkg.References {
			if ref.ID != "" {
				if _, dup := r.refs[ref.ID]; !dup {
					r.refs[ref.ID] = i
				}
			}
		}
	}
	return r
}

// Index assigns section anchors in document order. Render calls it for
// its own input; callers rendering several trees that reference each
// other index them all first so forward references resolve.
func (r *Renderer) Index(nodes ...ast.Node) {
	for _, n := range nodes {
		ast.Walk(n, func(c ast.Node) bool {
			s, ok := c.(*ast.Section)
			if !ok {
				return true
			}
			if _, seen := r.anchors[s]; seen {
				return true
			}
			anchor := "sec_" + strconv.Itoa(len(r.anchors)+1)
			r.anchors[s] = anchor
			if s.ID != "" {
				if _, dup := r.sectionID[s.ID]; !dup {
					r.sectionID[s.ID] = anchor
				}
			}
			return true
		})
	}
}

// Render returns the HTML for node. headingLevel is the HTML heading level
// of top-level section titles.
func (r *Renderer) Render(ctx context.Context, node ast.Node, headingLevel int) (string, error) {
	r.Index(node)
	var b strings.Builder
	if err := r.node(ctx, &b, node, headingLevel); err != nil {
		return "", err
	}
	return b.String(), nil
}

// RenderAll renders nodes in order.
func (r *Renderer) RenderAll(ctx context.Context, nodes []ast.Node, headingLevel int) (string, error) {
	r.Index(nodes...)
	var b strings.Builder
	if err := r.nodes(ctx, &b, nodes, headingLevel); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (r *Renderer) nodes(ctx context.Context, b *strings.Builder, nodes []ast.Node, level int) error {
	for _, n := range nodes {
		if err := r.node(ctx, b, n, level); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) node(ctx context.Context, b *strings.Builder, n ast.Node, level int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch v := n.(type) {
	case nil:
		return nil
	case *ast.Text:
		b.WriteString(encoding.EscapeHTML(v.Value))
		return nil
	case *ast.Section:
		return r.section(ctx, b, v, level)
	case *ast.Paragraph:
		return r.paragraph(ctx, b, v, level)
	case *ast.Heading:
		return r.heading(ctx, b, v, level)
	case *ast.List:
		tag := "ul"
		if v.Ordered() {
			tag = "ol"
		}
		return r.wrap(ctx, b, "<"+tag+">", "</"+tag+">", v.Children, level)
	case *ast.ListItem:
		return r.wrap(ctx, b, "<li>", "</li>", v.Children, level)
	case *ast.Table:
		return r.table(ctx, b, v, level)
	case *ast.Figure:
		return r.figure(ctx, b, v, level)
	case *ast.Formula:
		return r.formula(ctx, b, v, level)
	case *ast.InlineGraphic:
		return r.inlineGraphic(ctx, b, v)
	case *ast.Supplementary:
		return r.supplementary(ctx, b, v, level)
	case *ast.CrossRef:
		return r.crossRef(ctx, b, v, level)
	case *ast.Math:
		b.WriteString(`<math xmlns="http://www.w3.org/1998/Math/MathML"`)
		if v.Display != "" {
			fmt.Fprintf(b, ` display="%s"`, encoding.EscapeAttr(v.Display))
		}
		b.WriteString(">")
		for _, c := range v.Children {
			writeMarkup(b, c)
		}
		b.WriteString("</math>")
		return nil
	case *ast.Unknown:
		return r.unknown(ctx, b, v, level)
	}
	return fmt.Errorf("render: unexpected node %T", n)
}

func (r *Renderer) wrap(ctx context.Context, b *strings.Builder, open, end string, children []ast.Node, level int) error {
	b.WriteString(open)
	if err := r.nodes(ctx, b, children, level); err != nil {
		return err
	}
	b.WriteString(end)
	return nil
}

func (r *Renderer) section(ctx context.Context, b *strings.Builder, s *ast.Section, level int) error {
	anchor, ok := r.anchors[s]
	if !ok {
		r.Index(s)
		anchor = r.anchors[s]
	}
	fmt.Fprintf(b, `<section id="%s"`, anchor)
	if t := sectionType(s); t != "" {
		fmt.Fprintf(b, ` typeof="%s"`, t)
	}
	b.WriteString(">")
	if err := r.nodes(ctx, b, s.Children, level); err != nil {
		return err
	}
	b.WriteString("</section>")
	return nil
}

// sectionType matches the first title of a section against the DEO terms.
func sectionType(s *ast.Section) string {
	for _, c := range s.Children {
		if h, ok := c.(*ast.Heading); ok {
			return deoTypes[strings.ToLower(strings.TrimSpace(ast.PlainText(h)))]
		}
	}
	return ""
}

// paragraph closes and reopens the p element around tables and figures,
// which cannot nest inside it.
func (r *Renderer) paragraph(ctx context.Context, b *strings.Builder, p *ast.Paragraph, level int) error {
	var run []ast.Node
	flush := func() error {
		if !hasContent(run) {
			run = run[:0]
			return nil
		}
		err := r.wrap(ctx, b, "<p>", "</p>", run, level)
		run = run[:0]
		return err
	}
	for _, c := range p.Children {
		switch c.(type) {
		case *ast.Table, *ast.Figure:
			if err := flush(); err != nil {
				return err
			}
			if err := r.node(ctx, b, c, level); err != nil {
				return err
			}
		default:
			run = append(run, c)
		}
	}
	if len(p.Children) == 0 {
		b.WriteString("<p></p>")
		return nil
	}
	return flush()
}

func hasContent(nodes []ast.Node) bool {
	for _, n := range nodes {
		if t, ok := n.(*ast.Text); !ok || strings.TrimSpace(t.Value) != "" {
			return true
		}
	}
	return false
}

func (r *Renderer) heading(ctx context.Context, b *strings.Builder, h *ast.Heading, level int) error {
	n := level
	if h.Level > 0 {
		n = level + h.Level - 1
	}
	n = min(max(n, 1), 6)
	tag := "h" + strconv.Itoa(n)
	return r.wrap(ctx, b, "<"+tag+">", "</"+tag+">", h.Children, level)
}

// caption renders caption content; titles inside captions are not headings.
func (r *Renderer) caption(ctx context.Context, b *strings.Builder, label string, nodes []ast.Node, level int) error {
	if label == "" && len(nodes) == 0 {
		return nil
	}
	b.WriteString("<figcaption>")
	if label != "" {
		fmt.Fprintf(b, `<span class="label">%s</span> `, encoding.EscapeHTML(label))
	}
	for _, c := range nodes {
		if h, ok := c.(*ast.Heading); ok {
			if err := r.wrap(ctx, b, `<span class="caption-title">`, "</span> ", h.Children, level); err != nil {
				return err
			}
			continue
		}
		if err := r.node(ctx, b, c, level); err != nil {
			return err
		}
	}
	b.WriteString("</figcaption>")
	return nil
}

func (r *Renderer) table(ctx context.Context, b *strings.Builder, t *ast.Table, level int) error {
	b.WriteString(`<figure class="table-wrap"`)
	writeID(b, t.ID)
	b.WriteString(">")
	if err := r.caption(ctx, b, t.Label, t.Caption, level); err != nil {
		return err
	}
	html := t.HTML
	if strings.HasPrefix(html, "<table") {
		html = `<table typeof="doco:Table"` + html[len("<table"):]
	}
	b.WriteString(html)
	b.WriteString("</figure>")
	return nil
}

func (r *Renderer) figure(ctx context.Context, b *strings.Builder, f *ast.Figure, level int) error {
	b.WriteString(`<figure typeof="doco:Figure"`)
	writeID(b, f.ID)
	b.WriteString(">")
	if res, ok := r.pkg.Lookup(f.ID); ok {
		if e, ok := imageEncoding(res, "image/png", "image/jpeg"); ok {
			src := e.ContentURL
			if src == "" {
				link, err := r.hashLink(ctx, res, e)
				if err != nil {
					return err
				}
				src = link
			}
			fmt.Fprintf(b, `<img src="%s" alt="%s">`, encoding.EscapeAttr(src), encoding.EscapeAttr(f.Label))
		}
	} else if f.ID != "" {
		r.unresolved(ctx, errors.NewUnresolved("figure", f.ID))
	}
	if err := r.caption(ctx, b, f.Label, f.Caption, level); err != nil {
		return err
	}
	b.WriteString("</figure>")
	return nil
}

func (r *Renderer) formula(ctx context.Context, b *strings.Builder, f *ast.Formula, level int) error {
	b.WriteString(`<div class="disp-formula"`)
	writeID(b, f.ID)
	b.WriteString(">")
	if f.GraphicHref != "" {
		src, err := r.embedHref(f.GraphicHref)
		switch {
		case err == nil:
			fmt.Fprintf(b, `<img class="formula" src="%s" alt="%s">`, encoding.EscapeAttr(src), encoding.EscapeAttr(f.Label))
		case errors.Is(err, errors.ErrUnresolved):
			r.unresolved(ctx, err)
		default:
			return err
		}
	}
	if err := r.nodes(ctx, b, f.Children, level); err != nil {
		return err
	}
	if f.Label != "" {
		fmt.Fprintf(b, `<span class="label">%s</span>`, encoding.EscapeHTML(f.Label))
	}
	b.WriteString("</div>")
	return nil
}

func (r *Renderer) inlineGraphic(ctx context.Context, b *strings.Builder, g *ast.InlineGraphic) error {
	src, err := r.embedHref(g.Href)
	switch {
	case err == nil:
		b.WriteString(`<img class="inline-graphic"`)
		writeID(b, g.ID)
		fmt.Fprintf(b, ` src="%s" alt="">`, encoding.EscapeAttr(src))
		return nil
	case errors.Is(err, errors.ErrUnresolved):
		r.unresolved(ctx, err)
		return nil
	}
	return err
}

func (r *Renderer) supplementary(ctx context.Context, b *strings.Builder, s *ast.Supplementary, level int) error {
	b.WriteString(`<div class="supplementary-material"`)
	writeID(b, s.ID)
	b.WriteString(">")

	label := s.Label
	if label == "" {
		label = s.Href
	}
	var link string
	if res, ok := r.pkg.Lookup(s.ID); ok {
		l, err := r.resourceLink(ctx, res)
		switch {
		case err == nil:
			link = l
		case errors.Is(err, errors.ErrUnresolved):
			r.unresolved(ctx, err)
		default:
			return err
		}
	} else if s.ID != "" {
		r.unresolved(ctx, errors.NewUnresolved("supplementary", s.ID))
	}
	if label != "" {
		if link != "" {
			fmt.Fprintf(b, `<a class="label" href="%s">%s</a>`, encoding.EscapeAttr(link), encoding.EscapeHTML(label))
		} else {
			fmt.Fprintf(b, `<span class="label">%s</span>`, encoding.EscapeHTML(label))
		}
	}
	if len(s.Caption) > 0 {
		if err := r.wrap(ctx, b, `<div class="caption">`, "</div>", s.Caption, level); err != nil {
			return err
		}
	}
	b.WriteString("</div>")
	return nil
}

func (r *Renderer) crossRef(ctx context.Context, b *strings.Builder, x *ast.CrossRef, level int) error {
	href, err := r.resolve(ctx, x)
	if err != nil {
		if !errors.Is(err, errors.ErrUnresolved) {
			return err
		}
		r.unresolved(ctx, err)
		return r.nodes(ctx, b, x.Children, level)
	}
	fmt.Fprintf(b, `<a href="%s">`, encoding.EscapeAttr(href))
	if err := r.nodes(ctx, b, x.Children, level); err != nil {
		return err
	}
	b.WriteString("</a>")
	return nil
}

// resolve computes the link target of a cross-reference.
func (r *Renderer) resolve(ctx context.Context, x *ast.CrossRef) (string, error) {
	switch x.Kind {
	case ast.RefBibliographic:
		i, ok := r.refs[x.Target]
		if !ok {
			return "", errors.NewUnresolved(string(x.Kind), x.Target)
		}
		if u := r.pkg.References[i].URL; u != "" {
			return u, nil
		}
		return "#" + RefAnchor(i), nil
	case ast.RefSection:
		if a, ok := r.sectionID[x.Target]; ok {
			return "#" + a, nil
		}
	case ast.RefFigure, ast.RefTable, ast.RefSupplementary:
		if res, ok := r.pkg.Lookup(x.Target); ok {
			return r.resourceLink(ctx, res)
		}
	case ast.RefInlineFormula:
		if res, ok := r.pkg.Lookup(x.Target); ok {
			return r.resourceLink(ctx, res)
		}
		if res, _, ok := r.pkg.ByPath(x.Target); ok {
			return r.resourceLink(ctx, res)
		}
	}
	return "", errors.NewUnresolved(string(x.Kind), x.Target)
}

// RefAnchor is the bibliography anchor of the i-th reference (0-based).
func RefAnchor(i int) string {
	return "ref_" + strconv.Itoa(i+1)
}

func (r *Renderer) unknown(ctx context.Context, b *strings.Builder, u *ast.Unknown, level int) error {
	switch {
	case u.Tag == "break":
		b.WriteString("<br>")
		return nil
	case u.Tag == "ext-link" || u.Tag == "uri":
		if u.Href != "" {
			return r.wrap(ctx, b, fmt.Sprintf(`<a href="%s">`, encoding.EscapeAttr(u.Href)), "</a>", u.Children, level)
		}
	case u.Tag == "xref" && u.Attr("rid") != "":
		return r.wrap(ctx, b, fmt.Sprintf(`<a class="xref" href="#%s">`, encoding.EscapeAttr(u.Attr("rid"))), "</a>", u.Children, level)
	}
	if tag, ok := inlineTags[u.Tag]; ok {
		return r.wrap(ctx, b, "<"+tag+">", "</"+tag+">", u.Children, level)
	}

	fmt.Fprintf(b, `<span class="jats-%s"`, encoding.EscapeAttr(u.Tag))
	writeID(b, u.ID)
	b.WriteString(">")
	if err := r.nodes(ctx, b, u.Children, level); err != nil {
		return err
	}
	b.WriteString("</span>")
	return nil
}

func (r *Renderer) unresolved(ctx context.Context, err error) {
	logging.DebugContext(ctx, "unresolved reference", "error", err.Error())
}

func writeID(b *strings.Builder, id string) {
	if id != "" {
		fmt.Fprintf(b, ` id="%s"`, encoding.EscapeAttr(id))
	}
}

// writeMarkup writes MathML elements back out as markup.
func writeMarkup(b *strings.Builder, n ast.Node) {
	switch v := n.(type) {
	case *ast.Text:
		b.WriteString(encoding.EscapeHTML(v.Value))
	case *ast.Unknown:
		b.WriteString("<" + v.Tag)
		for _, a := range v.Attrs {
			fmt.Fprintf(b, ` %s="%s"`, a.Name, encoding.EscapeAttr(a.Value))
		}
		b.WriteString(">")
		for _, c := range v.Children {
			writeMarkup(b, c)
		}
		b.WriteString("</" + v.Tag + ">")
	}
}
