// Package ast converts a JATS article body into a small closed tree of
// typed nodes that the renderer walks. Conversion never fails: markup the
// converter does not recognize becomes an Unknown node that keeps its tag,
// attributes and children.
package ast

// Node is one node of the article tree. The set of implementations is
// closed; switch on the concrete type.
type Node interface {
	node()
}

// RefKind is the target type of a cross-reference.
type RefKind string

// Cross-reference kinds.
const (
	RefBibliographic RefKind = "bibliographic"
	RefSection       RefKind = "section"
	RefFigure        RefKind = "figure"
	RefTable         RefKind = "table"
	RefSupplementary RefKind = "supplementary"
	RefInlineFormula RefKind = "inline-formula"
)

// Attr is an element attribute carried by Unknown nodes.
type Attr struct {
	Name  string
	Value string
}

// Text is character data with CR and LF removed.
type Text struct {
	Value string
}

// Section is a sec element. Its title, if any, is the first Heading child.
type Section struct {
	ID       string
	Children []Node
}

// Paragraph is a p element.
type Paragraph struct {
	Children []Node
}

// Heading is a title. Level is the section nesting depth of the title,
// 1 for a top-level section and 0 for titles outside any section.
type Heading struct {
	Level    int
	Children []Node
}

// List is a list element; Children are ListItem nodes.
type List struct {
	Type     string
	Children []Node
}

// Ordered reports whether the list renders as <ol>.
func (l *List) Ordered() bool {
	switch l.Type {
	case "order", "alpha-lower", "alpha-upper", "roman-lower", "roman-upper":
		return true
	}
	return false
}

// ListItem is a list-item element.
type ListItem struct {
	Children []Node
}

// Table is a table-wrap. HTML is the verbatim <table> markup.
type Table struct {
	ID      string
	Label   string
	HTML    string
	Caption []Node
}

// Figure is a fig element. Its image is found through the package by ID.
type Figure struct {
	ID      string
	Label   string
	Caption []Node
}

// Formula is a disp-formula. GraphicID and GraphicHref come from a nested
// graphic when the formula is typeset as an image.
type Formula struct {
	ID          string
	Label       string
	GraphicID   string
	GraphicHref string
	Children    []Node
}

// InlineGraphic is an inline-graphic element.
type InlineGraphic struct {
	ID   string
	Href string
}

// Supplementary is a supplementary-material element.
type Supplementary struct {
	ID      string
	Label   string
	Href    string
	Caption []Node
}

// CrossRef is an element whose attribute values mark it as a reference
// to a citation, section, figure, table, supplement or formula.
type CrossRef struct {
	Kind     RefKind
	Target   string
	Children []Node
}

// Math is a MathML math element. Children are the MathML elements as
// Unknown nodes and their text.
type Math struct {
	Display  string
	Children []Node
}

// Unknown is any element without dedicated handling.
type Unknown struct {
	Tag      string
	ID       string
	Href     string
	Attrs    []Attr
	Children []Node
}

// Attr returns the value of the named attribute.
func (u *Unknown) Attr(name string) string {
	for _, a := range u.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

func (*Text) node()          {}
func (*Section) node()       {}
func (*Paragraph) node()     {}
func (*Heading) node()       {}
func (*List) node()          {}
func (*ListItem) node()      {}
func (*Table) node()         {}
func (*Figure) node()        {}
func (*Formula) node()       {}
func (*InlineGraphic) node() {}
func (*Supplementary) node() {}
func (*CrossRef) node()      {}
func (*Math) node()          {}
func (*Unknown) node()       {}

// Walk calls fn for n and every descendant in document order. Returning
// false from fn skips the node's children.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range Children(n) {
		Walk(c, fn)
	}
}

// Children returns the child nodes of n. Captions count as children of
// figures, tables and supplements.
func Children(n Node) []Node {
	switch v := n.(type) {
	case *Section:
		return v.Children
	case *Paragraph:
		return v.Children
	case *Heading:
		return v.Children
	case *List:
		return v.Children
	case *ListItem:
		return v.Children
	case *Table:
		return v.Caption
	case *Figure:
		return v.Caption
	case *Formula:
		return v.Children
	case *Supplementary:
		return v.Caption
	case *CrossRef:
		return v.Children
	case *Math:
		return v.Children
	case *Unknown:
		return v.Children
	}
	return nil
}

// PlainText concatenates the text of n and its descendants.
func PlainText(n Node) string {
	var out []byte
	Walk(n, func(c Node) bool {
		if t, ok := c.(*Text); ok {
			out = append(out, t.Value...)
		}
		return true
	})
	return string(out)
}
