package xml

import (
	"bytes"
	"encoding/xml"
	"io"

	"github.com/antchfx/xmlquery"
)

// span is a half-open byte range of the source.
type span struct {
	start, end int64
	depth      int
}

// indexTables maps every table-wrap element to the verbatim markup of its
// first <table> descendant.
//
// Table cells in JATS often carry entity-encoded content that does not
// survive a DOM round trip byte-for-byte, so the span is cut from the source
// text rather than re-serialized. The raw scan and the DOM both visit
// table-wrap elements in document order, which is how the two are paired.
func indexTables(root *xmlquery.Node, data []byte) map[*xmlquery.Node]string {
	spans := scanTableSpans(data)
	if len(spans) == 0 {
		return nil
	}

	var wraps []*xmlquery.Node
	var walk func(*xmlquery.Node)
	walk = func(p *xmlquery.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != xmlquery.ElementNode {
				continue
			}
			if c.Data == "table-wrap" {
				wraps = append(wraps, c)
			}
			walk(c)
		}
	}
	walk(root)

	if len(wraps) != len(spans) {
		return nil
	}

	index := make(map[*xmlquery.Node]string, len(wraps))
	for i, w := range wraps {
		s := spans[i]
		if s.start < 0 || s.end <= s.start || s.end > int64(len(data)) {
			continue
		}
		index[w] = string(data[s.start:s.end])
	}
	return index
}

// scanTableSpans tokenizes data and returns, for each table-wrap start tag
// in order, the byte span of the first <table> element nested inside it.
// A nil result means the source could not be scanned.
func scanTableSpans(data []byte) []span {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	d.Entity = xml.HTMLEntity

	var spans []span
	var open []int

	for {
		offset := d.InputOffset()
		tok, err := d.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "table-wrap":
				spans = append(spans, span{start: -1, end: -1})
				open = append(open, len(spans)-1)
			case "table":
				if len(open) == 0 {
					continue
				}
				s := &spans[open[len(open)-1]]
				if s.start < 0 {
					s.start = offset
					s.depth = 1
				} else if s.end < 0 {
					s.depth++
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "table":
				if len(open) == 0 {
					continue
				}
				s := &spans[open[len(open)-1]]
				if s.start >= 0 && s.end < 0 {
					s.depth--
					if s.depth == 0 {
						s.end = d.InputOffset()
					}
				}
			case "table-wrap":
				if len(open) > 0 {
					open = open[:len(open)-1]
				}
			}
		}
	}
	return spans
}
