package jats

import (
	"strings"
	"unicode"

	"github.com/FocuswithJustin/jatspkg/core/encoding"
	"github.com/FocuswithJustin/jatspkg/core/xml"
)

// payloadSlot identifies which payload array a child element fills.
type payloadSlot int

const (
	slotNone payloadSlot = iota
	slotGraphic
	slotMedia
	slotCode
	slotTable
	slotSI
)

func slotOf(name string) payloadSlot {
	switch name {
	case "graphic":
		return slotGraphic
	case "media":
		return slotMedia
	case "code":
		return slotCode
	case "table":
		return slotTable
	}
	return slotNone
}

// captionEmbeds lists elements whose presence makes caption text unusable
// as a plain description.
var captionEmbeds = []string{"graphic", "inline-graphic", "media", "disp-formula", "inline-formula", "math", "tex-math"}

// descriptors collects resource descriptors in document order.
func descriptors(article *xml.Node) []Descriptor {
	var out []Descriptor
	for _, n := range article.Descendants("fig", "table-wrap", "supplementary-material", "inline-supplementary-material") {
		out = append(out, descriptor(n))
	}
	return out
}

func descriptor(n *xml.Node) Descriptor {
	d := Descriptor{ID: n.Attr("id"), Label: n.ChildText("label")}
	switch n.Name() {
	case "fig":
		d.Kind = KindFigure
	case "table-wrap":
		d.Kind = KindTable
	default:
		d.Kind = KindSupplementary
	}
	d.Num = labelNumber(d.Label)
	d.Caption = caption(n.Child("caption"))
	d.Footnotes = footnotes(n)

	for _, oid := range n.ChildrenNamed("object-id") {
		if v := encoding.NormalizeSpace(oid.Text()); v != "" {
			d.ObjectIDs = append(d.ObjectIDs, ObjectID{Type: oid.Attr("pub-id-type"), Value: v})
		}
	}

	first := slotNone
	if d.Kind == KindSupplementary && (n.Name() == "inline-supplementary-material" || n.Attr("href") != "") {
		d.Inline = true
		if href := n.Attr("href"); href != "" {
			d.SI = append(d.SI, payload(n))
		}
		first = slotSI
	}
	for _, c := range n.Children() {
		if c.Name() == "alternatives" {
			d.Alternatives = true
			for _, alt := range c.Children() {
				addPayload(&d, n, alt, slotOf(alt.Name()))
			}
			continue
		}
		slot := slotOf(c.Name())
		if slot == slotNone {
			continue
		}
		if first == slotNone {
			first = slot
		}
		if slot == first && !d.Alternatives {
			addPayload(&d, n, c, slot)
		}
	}
	return d
}

func addPayload(d *Descriptor, owner, c *xml.Node, slot payloadSlot) {
	switch slot {
	case slotGraphic:
		d.Graphic = append(d.Graphic, payload(c))
	case slotMedia:
		d.Media = append(d.Media, payload(c))
	case slotCode:
		d.Code = append(d.Code, payload(c))
	case slotTable:
		if html, ok := owner.RawTable(); ok && len(d.Table) == 0 {
			d.Table = append(d.Table, TablePayload{ID: c.Attr("id"), HTML: html})
		}
	}
}

func payload(n *xml.Node) Payload {
	return Payload{ID: n.Attr("id"), MimeType: mimeOf(n), Href: n.Attr("href")}
}

// mimeOf joins the JATS mimetype and mime-subtype attributes.
func mimeOf(n *xml.Node) string {
	major, minor := n.Attr("mimetype"), n.Attr("mime-subtype")
	if major != "" && minor != "" && !strings.Contains(major, "/") {
		return major + "/" + minor
	}
	return major
}

func caption(c *xml.Node) *Caption {
	if c == nil {
		return nil
	}
	out := &Caption{Title: c.ChildText("title")}
	if !c.HasDescendant(captionEmbeds...) {
		var paras []string
		for _, p := range c.ChildrenNamed("p") {
			if text := encoding.NormalizeSpace(p.Text()); text != "" {
				paras = append(paras, text)
			}
		}
		out.Content = strings.Join(paras, " ")
	}
	if out.Title == "" && out.Content == "" {
		return nil
	}
	return out
}

func footnotes(n *xml.Node) []string {
	var out []string
	for _, fn := range n.Descendants("fn") {
		if fn.Ancestor("caption") != nil {
			continue
		}
		var parts []string
		for _, p := range fn.ChildrenNamed("p") {
			parts = append(parts, p.Text())
		}
		text := encoding.NormalizeSpace(strings.Join(parts, " "))
		if text == "" {
			text = encoding.NormalizeSpace(fn.Text())
		}
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}

// labelNumber returns the trailing numeric token of a label such as
// "Figure 3" or "Table S2".
func labelNumber(label string) string {
	fields := strings.Fields(label)
	if len(fields) == 0 {
		return ""
	}
	last := strings.TrimRight(fields[len(fields)-1], ".:")
	for _, r := range last {
		if unicode.IsDigit(r) {
			return last
		}
	}
	return ""
}
