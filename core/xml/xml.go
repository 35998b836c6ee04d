// Package xml provides a pure Go XML document model for JATS articles.
//
// Parsing is delegated to xmlquery, which uses Go's encoding/xml internally
// and therefore never fetches external entities or DTDs. On top of the DOM,
// the package keeps the original source bytes and an index of verbatim
// <table> spans so callers can reuse table markup exactly as authored.
package xml

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Document represents a parsed XML document.
type Document struct {
	root   *xmlquery.Node
	source []byte
	tables map[*xmlquery.Node]string
}

// Node represents an XML node (element, text, comment).
type Node struct {
	node *xmlquery.Node
	doc  *Document
}

// Attr is a single attribute in document order.
type Attr struct {
	Prefix string
	Name   string
	Value  string
}

// Parse parses XML data and returns a Document.
func Parse(data []byte) (*Document, error) {
	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	doc := &Document{root: root, source: data}
	doc.tables = indexTables(root, data)
	return doc, nil
}

// Source returns the original bytes the document was parsed from.
func (d *Document) Source() []byte {
	return d.source
}

// Root returns the root element of the document.
func (d *Document) Root() *Node {
	if d.root == nil {
		return nil
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return d.wrap(child)
		}
	}
	return nil
}

// XPath executes an XPath query and returns matching nodes.
func (d *Document) XPath(expr string) ([]*Node, error) {
	return d.query(d.root, expr)
}

// XPathFirst executes an XPath query and returns the first matching node.
// It returns nil without error when nothing matches.
func (d *Document) XPathFirst(expr string) (*Node, error) {
	return d.queryOne(d.root, expr)
}

func (d *Document) query(top *xmlquery.Node, expr string) ([]*Node, error) {
	if _, err := xpath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	nodes, err := xmlquery.QueryAll(top, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}
	result := make([]*Node, len(nodes))
	for i, n := range nodes {
		result[i] = d.wrap(n)
	}
	return result, nil
}

func (d *Document) queryOne(top *xmlquery.Node, expr string) (*Node, error) {
	if _, err := xpath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	n, err := xmlquery.Query(top, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}
	if n == nil {
		return nil, nil
	}
	return d.wrap(n), nil
}

func (d *Document) wrap(n *xmlquery.Node) *Node {
	if n == nil {
		return nil
	}
	return &Node{node: n, doc: d}
}

// Name returns the element's local name, or "" for non-element nodes.
func (n *Node) Name() string {
	if n == nil || n.node.Type != xmlquery.ElementNode {
		return ""
	}
	return n.node.Data
}

// Prefix returns the element's namespace prefix (e.g., "mml").
func (n *Node) Prefix() string {
	if n == nil {
		return ""
	}
	return n.node.Prefix
}

// IsElement reports whether n is an element.
func (n *Node) IsElement() bool {
	return n != nil && n.node.Type == xmlquery.ElementNode
}

// IsText reports whether n is a text or CDATA node.
func (n *Node) IsText() bool {
	return n != nil && (n.node.Type == xmlquery.TextNode || n.node.Type == xmlquery.CharDataNode)
}

// Data returns the raw character data of a text node.
func (n *Node) Data() string {
	if n == nil || !n.IsText() {
		return ""
	}
	return n.node.Data
}

// Text returns all text content of the node and its descendants.
func (n *Node) Text() string {
	if n == nil {
		return ""
	}
	return n.node.InnerText()
}

// Same reports whether n and other wrap the same underlying node.
func (n *Node) Same(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	return n.node == other.node
}

// Parent returns the parent element, or nil at the root.
func (n *Node) Parent() *Node {
	if n == nil || n.node.Parent == nil || n.node.Parent.Type != xmlquery.ElementNode {
		return nil
	}
	return n.doc.wrap(n.node.Parent)
}

// Children returns the child element nodes.
func (n *Node) Children() []*Node {
	if n == nil {
		return nil
	}
	var children []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			children = append(children, n.doc.wrap(child))
		}
	}
	return children
}

// ChildNodes returns element and text children in document order.
// Comments and processing instructions are skipped.
func (n *Node) ChildNodes() []*Node {
	if n == nil {
		return nil
	}
	var children []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case xmlquery.ElementNode, xmlquery.TextNode, xmlquery.CharDataNode:
			children = append(children, n.doc.wrap(child))
		}
	}
	return children
}

// Child returns the first child element with the given local name.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == name {
			return n.doc.wrap(child)
		}
	}
	return nil
}

// ChildrenNamed returns the child elements with the given local name.
func (n *Node) ChildrenNamed(name string) []*Node {
	var out []*Node
	for _, c := range n.Children() {
		if c.Name() == name {
			out = append(out, c)
		}
	}
	return out
}

// ChildText returns the whitespace-normalized text of the first child
// element with the given name.
func (n *Node) ChildText(name string) string {
	c := n.Child(name)
	if c == nil {
		return ""
	}
	return strings.Join(strings.Fields(c.Text()), " ")
}

// Descendants returns every descendant element whose local name is one of
// names, in document order. The node itself is not included.
func (n *Node) Descendants(names ...string) []*Node {
	if n == nil {
		return nil
	}
	want := make(map[string]bool, len(names))
	for _, name := range names {
		want[name] = true
	}
	var out []*Node
	var walk func(*xmlquery.Node)
	walk = func(p *xmlquery.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != xmlquery.ElementNode {
				continue
			}
			if want[c.Data] {
				out = append(out, n.doc.wrap(c))
			}
			walk(c)
		}
	}
	walk(n.node)
	return out
}

// HasDescendant reports whether any descendant element has one of names.
func (n *Node) HasDescendant(names ...string) bool {
	return len(n.Descendants(names...)) > 0
}

// Ancestor returns the nearest ancestor element with the given name.
func (n *Node) Ancestor(name string) *Node {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// Attrs returns the element's attributes in document order, excluding
// namespace declarations.
func (n *Node) Attrs() []Attr {
	if n == nil {
		return nil
	}
	var attrs []Attr
	for _, a := range n.node.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		attrs = append(attrs, Attr{Prefix: a.Name.Space, Name: a.Name.Local, Value: a.Value})
	}
	return attrs
}

// Attr returns the value of the attribute with the given local name,
// ignoring any namespace prefix, so Attr("href") finds xlink:href.
func (n *Node) Attr(name string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.node.Attr {
		if a.Name.Local == name && a.Name.Space != "xmlns" {
			return a.Value
		}
	}
	return ""
}

// XPath executes an XPath query relative to n.
func (n *Node) XPath(expr string) ([]*Node, error) {
	return n.doc.query(n.node, expr)
}

// XPathFirst executes an XPath query relative to n and returns the first match.
func (n *Node) XPathFirst(expr string) (*Node, error) {
	return n.doc.queryOne(n.node, expr)
}

// OutputXML serializes the node, including itself.
func (n *Node) OutputXML() string {
	if n == nil {
		return ""
	}
	return n.node.OutputXML(true)
}

// RawTable returns the verbatim <table>…</table> markup found under a
// table-wrap element, sliced from the original source. When the raw span
// is unavailable it falls back to serializing the first <table> descendant.
func (n *Node) RawTable() (string, bool) {
	if n == nil {
		return "", false
	}
	if raw, ok := n.doc.tables[n.node]; ok {
		return raw, true
	}
	tables := n.Descendants("table")
	if len(tables) == 0 {
		return "", false
	}
	return tables[0].OutputXML(), true
}
