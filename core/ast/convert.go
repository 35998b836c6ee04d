package ast

import (
	"strings"

	"github.com/FocuswithJustin/jatspkg/core/encoding"
	"github.com/FocuswithJustin/jatspkg/core/xml"
)

// refKinds maps attribute values to cross-reference kinds. It is consulted
// for elements carrying a rid attribute before any tag dispatch.
var refKinds = map[string]RefKind{
	"bibr":                   RefBibliographic,
	"sec":                    RefSection,
	"fig":                    RefFigure,
	"table":                  RefTable,
	"supplementary-material": RefSupplementary,
	"image":                  RefInlineFormula,
}

// blockContainers hold block content only, so whitespace text between their
// children is layout and is dropped.
var blockContainers = map[string]bool{
	"body":                   true,
	"back":                   true,
	"abstract":               true,
	"trans-abstract":         true,
	"sec":                    true,
	"list":                   true,
	"list-item":              true,
	"fig":                    true,
	"fig-group":              true,
	"table-wrap":             true,
	"caption":                true,
	"boxed-text":             true,
	"ack":                    true,
	"app":                    true,
	"app-group":              true,
	"fn-group":               true,
	"fn":                     true,
	"def-list":               true,
	"glossary":               true,
	"disp-quote":             true,
	"supplementary-material": true,
}

// Convert turns an element into a node tree. A nil or non-element input
// yields nil; text input yields a Text node.
func Convert(n *xml.Node) Node {
	c := converter{}
	return c.convert(n)
}

// ConvertChildren converts the children of n, as for a body or abstract.
func ConvertChildren(n *xml.Node) []Node {
	c := converter{}
	return c.children(n)
}

type converter struct {
	depth int
}

func (c *converter) convert(n *xml.Node) Node {
	switch {
	case n == nil:
		return nil
	case n.IsText():
		return text(n.Data())
	case !n.IsElement():
		return nil
	}

	if rid := n.Attr("rid"); rid != "" {
		if kind, ok := retag(n); ok {
			return &CrossRef{Kind: kind, Target: rid, Children: c.children(n)}
		}
	}

	switch n.Name() {
	case "sec":
		c.depth++
		s := &Section{ID: n.Attr("id"), Children: c.children(n)}
		c.depth--
		return s
	case "p":
		return &Paragraph{Children: c.children(n)}
	case "title":
		return &Heading{Level: c.depth, Children: c.children(n)}
	case "list":
		return &List{Type: n.Attr("list-type"), Children: c.children(n)}
	case "list-item":
		return &ListItem{Children: c.children(n)}
	case "table-wrap":
		html, _ := n.RawTable()
		return &Table{
			ID:      n.Attr("id"),
			Label:   n.ChildText("label"),
			HTML:    html,
			Caption: c.caption(n),
		}
	case "fig":
		return &Figure{ID: n.Attr("id"), Label: n.ChildText("label"), Caption: c.caption(n)}
	case "disp-formula":
		return c.formula(n)
	case "supplementary-material":
		return &Supplementary{
			ID:      n.Attr("id"),
			Label:   n.ChildText("label"),
			Href:    n.Attr("href"),
			Caption: c.caption(n),
		}
	case "inline-graphic":
		return &InlineGraphic{ID: n.Attr("id"), Href: n.Attr("href")}
	case "math":
		return &Math{Display: n.Attr("display"), Children: c.mathChildren(n)}
	}
	return c.unknown(n)
}

// retag scans attribute values, in document order, for a cross-reference
// type. The rid attribute itself is never a type.
func retag(n *xml.Node) (RefKind, bool) {
	for _, a := range n.Attrs() {
		if a.Name == "rid" {
			continue
		}
		if kind, ok := refKinds[a.Value]; ok {
			return kind, true
		}
	}
	return "", false
}

func (c *converter) children(n *xml.Node) []Node {
	block := blockContainers[n.Name()]
	var out []Node
	for _, child := range n.ChildNodes() {
		if child.IsText() && block && strings.TrimSpace(child.Data()) == "" {
			continue
		}
		if cn := c.convert(child); cn != nil {
			out = append(out, cn)
		}
	}
	return out
}

// caption converts the caption child of a figure, table or supplement.
func (c *converter) caption(n *xml.Node) []Node {
	capt := n.Child("caption")
	if capt == nil {
		return nil
	}
	return c.children(capt)
}

func (c *converter) formula(n *xml.Node) *Formula {
	f := &Formula{ID: n.Attr("id"), Label: n.ChildText("label")}
	if g := n.Descendants("graphic"); len(g) > 0 {
		f.GraphicID = g[0].Attr("id")
		f.GraphicHref = g[0].Attr("href")
	}
	for _, child := range n.ChildNodes() {
		switch {
		case child.IsText() && strings.TrimSpace(child.Data()) == "":
			continue
		case child.Name() == "label" || child.Name() == "graphic":
			continue
		}
		if cn := c.convert(child); cn != nil {
			f.Children = append(f.Children, cn)
		}
	}
	return f
}

// mathChildren keeps MathML structure as Unknown elements so it can be
// written back out as markup.
func (c *converter) mathChildren(n *xml.Node) []Node {
	var out []Node
	for _, child := range n.ChildNodes() {
		if child.IsText() {
			if strings.TrimSpace(child.Data()) == "" {
				continue
			}
			if t := text(child.Data()); t != nil {
				out = append(out, t)
			}
			continue
		}
		out = append(out, &Unknown{
			Tag:      child.Name(),
			ID:       child.Attr("id"),
			Attrs:    attrs(child),
			Children: c.mathChildren(child),
		})
	}
	return out
}

func (c *converter) unknown(n *xml.Node) *Unknown {
	return &Unknown{
		Tag:      n.Name(),
		ID:       n.Attr("id"),
		Href:     n.Attr("href"),
		Attrs:    attrs(n),
		Children: c.children(n),
	}
}

func attrs(n *xml.Node) []Attr {
	xs := n.Attrs()
	if len(xs) == 0 {
		return nil
	}
	out := make([]Attr, len(xs))
	for i, a := range xs {
		out[i] = Attr{Name: a.Name, Value: a.Value}
	}
	return out
}

func text(s string) Node {
	s = encoding.StripNewlines(s)
	if s == "" {
		return nil
	}
	return &Text{Value: s}
}
