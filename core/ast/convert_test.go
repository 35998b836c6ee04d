package ast

import (
	"strings"
	"testing"

	"github.com/FocuswithJustin/jatspkg/core/xml"
)

const body = `<article xmlns:xlink="http://www.w3.org/1999/xlink" xmlns:mml="http://www.w3.org/1998/Math/MathML"><body>
  <sec id="s1">
    <title>Introduction</title>
    <p>Cells <italic>grow</italic> <bold>fast</bold> as shown
in <xref ref-type="bibr" rid="b3">[3]</xref> and <xref ref-type="fig" rid="f1">Figure 1</xref>.</p>
    <sec id="s1-1"><title>Background</title><p>See <xref ref-type="sec" rid="s2">Results</xref>.</p></sec>
    <list list-type="order"><list-item><p>one</p></list-item><list-item><p>two</p></list-item></list>
  </sec>
  <sec id="s2">
    <title>Results</title>
    <fig id="f1"><label>Figure 1.</label><caption><title>Growth.</title><p>Cells over time.</p></caption><graphic xlink:href="f1.tif"/></fig>
    <table-wrap id="t1"><label>Table 1.</label><caption><p>Counts</p></caption><table><tr><td>&lt;5</td></tr></table></table-wrap>
    <disp-formula id="eq1"><label>(1)</label><graphic id="eq1g" xlink:href="eq1.gif"/></disp-formula>
    <disp-formula id="eq2"><mml:math display="block"><mml:mi>x</mml:mi> <mml:mo>=</mml:mo> <mml:mn>1</mml:mn></mml:math></disp-formula>
    <p>Inline <inline-graphic id="ig1" xlink:href="ig1.png"/> and <custom-tag id="c1" foo="bar">odd</custom-tag>.</p>
    <supplementary-material id="sd1" xlink:href="data.csv"><label>Supplementary file 1.</label><caption><p>Raw data.</p></caption></supplementary-material>
  </sec>
</body></article>`

func parseBody(t *testing.T, src string) *xml.Node {
	t.Helper()
	doc, err := xml.Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b, err := doc.XPathFirst("//body")
	if err != nil || b == nil {
		t.Fatalf("no body: %v", err)
	}
	return b
}

func TestConvertStructure(t *testing.T) {
	nodes := ConvertChildren(parseBody(t, body))
	if len(nodes) != 2 {
		t.Fatalf("got %d top-level nodes, want 2 sections", len(nodes))
	}
	s1, ok := nodes[0].(*Section)
	if !ok || s1.ID != "s1" {
		t.Fatalf("first node = %#v, want section s1", nodes[0])
	}
	h, ok := s1.Children[0].(*Heading)
	if !ok || h.Level != 1 || PlainText(h) != "Introduction" {
		t.Errorf("s1 heading = %#v", s1.Children[0])
	}
	var nested *Section
	for _, c := range s1.Children {
		if s, ok := c.(*Section); ok {
			nested = s
		}
	}
	if nested == nil {
		t.Fatal("nested section missing")
	}
	if h2 := nested.Children[0].(*Heading); h2.Level != 2 {
		t.Errorf("nested heading level = %d, want 2", h2.Level)
	}

	var list *List
	Walk(s1, func(n Node) bool {
		if l, ok := n.(*List); ok {
			list = l
		}
		return true
	})
	if list == nil || !list.Ordered() || len(list.Children) != 2 {
		t.Fatalf("list = %#v", list)
	}
	if _, ok := list.Children[0].(*ListItem); !ok {
		t.Errorf("list child = %T, want *ListItem", list.Children[0])
	}
}

func TestConvertCrossRefs(t *testing.T) {
	nodes := ConvertChildren(parseBody(t, body))
	var refs []*CrossRef
	for _, n := range nodes {
		Walk(n, func(c Node) bool {
			if r, ok := c.(*CrossRef); ok {
				refs = append(refs, r)
			}
			return true
		})
	}
	want := []struct {
		kind   RefKind
		target string
		text   string
	}{
		{RefBibliographic, "b3", "[3]"},
		{RefFigure, "f1", "Figure 1"},
		{RefSection, "s2", "Results"},
	}
	if len(refs) != len(want) {
		t.Fatalf("got %d cross-refs, want %d", len(refs), len(want))
	}
	for i, w := range want {
		if refs[i].Kind != w.kind || refs[i].Target != w.target || PlainText(refs[i]) != w.text {
			t.Errorf("ref %d = {%s %s %q}, want %+v", i, refs[i].Kind, refs[i].Target, PlainText(refs[i]), w)
		}
	}
}

func TestRetagBeforeTagDispatch(t *testing.T) {
	// An element whose own tag has a handler is still retagged when an
	// attribute value names a cross-reference type.
	n := parseBody(t, `<article><body><p rid="t1" content-type="table">see table</p></body></article>`)
	nodes := ConvertChildren(n)
	r, ok := nodes[0].(*CrossRef)
	if !ok || r.Kind != RefTable || r.Target != "t1" {
		t.Fatalf("node = %#v, want table cross-ref", nodes[0])
	}

	// Without rid the same values are ignored.
	n = parseBody(t, `<article><body><p content-type="table">plain</p></body></article>`)
	if _, ok := ConvertChildren(n)[0].(*Paragraph); !ok {
		t.Error("element without rid must not be retagged")
	}

	// Values outside the table fall through to tag dispatch.
	n = parseBody(t, `<article><body><p><xref ref-type="fn" rid="fn1">*</xref></p></body></article>`)
	p := ConvertChildren(n)[0].(*Paragraph)
	u, ok := p.Children[0].(*Unknown)
	if !ok || u.Tag != "xref" || u.Attr("rid") != "fn1" {
		t.Errorf("footnote xref = %#v, want unknown xref", p.Children[0])
	}
}

func TestConvertResources(t *testing.T) {
	nodes := ConvertChildren(parseBody(t, body))
	s2 := nodes[1].(*Section)

	var fig *Figure
	var tbl *Table
	var formulas []*Formula
	var ig *InlineGraphic
	var supp *Supplementary
	var unk *Unknown
	for _, n := range s2.Children {
		Walk(n, func(c Node) bool {
			switch v := c.(type) {
			case *Figure:
				fig = v
			case *Table:
				tbl = v
			case *Formula:
				formulas = append(formulas, v)
			case *InlineGraphic:
				ig = v
			case *Supplementary:
				supp = v
			case *Unknown:
				if v.Tag == "custom-tag" {
					unk = v
				}
			}
			return true
		})
	}

	if fig == nil || fig.ID != "f1" || fig.Label != "Figure 1." {
		t.Fatalf("figure = %#v", fig)
	}
	if got := PlainText(&Paragraph{Children: fig.Caption}); got != "Growth.Cells over time." {
		t.Errorf("figure caption text = %q", got)
	}
	if tbl == nil || tbl.HTML != "<table><tr><td>&lt;5</td></tr></table>" {
		t.Errorf("table html = %#v", tbl)
	}
	if len(formulas) != 2 {
		t.Fatalf("got %d formulas", len(formulas))
	}
	if f := formulas[0]; f.GraphicID != "eq1g" || f.GraphicHref != "eq1.gif" || f.Label != "(1)" || len(f.Children) != 0 {
		t.Errorf("image formula = %#v", f)
	}
	m, ok := formulas[1].Children[0].(*Math)
	if !ok || m.Display != "block" || len(m.Children) != 3 {
		t.Fatalf("math = %#v", formulas[1].Children)
	}
	if mi := m.Children[0].(*Unknown); mi.Tag != "mi" || PlainText(mi) != "x" {
		t.Errorf("mi = %#v", mi)
	}
	if ig == nil || ig.ID != "ig1" || ig.Href != "ig1.png" {
		t.Errorf("inline graphic = %#v", ig)
	}
	if supp == nil || supp.Href != "data.csv" || PlainText(&Paragraph{Children: supp.Caption}) != "Raw data." {
		t.Errorf("supplementary = %#v", supp)
	}
	if unk == nil || unk.ID != "c1" || unk.Attr("foo") != "bar" || PlainText(unk) != "odd" {
		t.Errorf("unknown = %#v", unk)
	}
}

func TestConvertText(t *testing.T) {
	nodes := ConvertChildren(parseBody(t, body))
	s1 := nodes[0].(*Section)
	var p *Paragraph
	for _, c := range s1.Children {
		if pp, ok := c.(*Paragraph); ok {
			p = pp
			break
		}
	}
	got := PlainText(p)
	if strings.ContainsAny(got, "\r\n") {
		t.Errorf("text keeps newlines: %q", got)
	}
	// Whitespace between inline elements is content, not layout.
	if !strings.Contains(got, "grow fast") {
		t.Errorf("inline spacing lost: %q", got)
	}
	for _, c := range s1.Children {
		if txt, ok := c.(*Text); ok {
			t.Errorf("section kept layout whitespace %q", txt.Value)
		}
	}
}

func TestConvertNeverFails(t *testing.T) {
	if Convert(nil) != nil {
		t.Error("Convert(nil) should be nil")
	}
	n := parseBody(t, `<article><body><weird><deeper a="1"/>text</weird></body></article>`)
	u, ok := ConvertChildren(n)[0].(*Unknown)
	if !ok || u.Tag != "weird" || len(u.Children) != 2 {
		t.Fatalf("got %#v", u)
	}
}
