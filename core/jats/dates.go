package jats

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/jatspkg/core/errors"
	"github.com/FocuswithJustin/jatspkg/core/xml"
)

// isoDate is the participle grammar for iso-8601-date attribute values.
// Examples: "2019", "2019-04", "2019-04-17"
//
//nolint:govet // participle grammar tags are not standard struct tags
type isoDate struct {
	Year  string     `@Int`
	Month *isoMonth `( "-" @@ )?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type isoMonth struct {
	Month string  `@Int`
	Day   *string `( "-" @Int )?`
}

var dateLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `-`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var dateParser = participle.MustBuild[isoDate](
	participle.Lexer(dateLexer),
	participle.Elide("Whitespace"),
)

// ParseISODate parses a "YYYY[-MM[-DD]]" value and returns it zero-padded.
// A trailing time component ("T12:00:00Z") is ignored.
func ParseISODate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		s = s[:i]
	}
	g, err := dateParser.ParseString("", s)
	if err != nil {
		return "", errors.NewParse("date", "", err.Error())
	}
	year, month, day := g.Year, "", ""
	if g.Month != nil {
		month = g.Month.Month
		if g.Month.Day != nil {
			day = *g.Month.Day
		}
	}
	return composeDate(year, month, day)
}

// composeDate validates and joins date parts. month and day may be empty.
func composeDate(year, month, day string) (string, error) {
	if len(year) != 4 {
		return "", errors.NewParse("date", "", fmt.Sprintf("year %q must have four digits", year))
	}
	if _, err := strconv.Atoi(year); err != nil {
		return "", errors.NewParse("date", "", fmt.Sprintf("year %q is not numeric", year))
	}
	if month == "" {
		return year, nil
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return "", errors.NewParse("date", "", fmt.Sprintf("month %q out of range", month))
	}
	out := fmt.Sprintf("%s-%02d", year, m)
	if day == "" {
		return out, nil
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return "", errors.NewParse("date", "", fmt.Sprintf("day %q out of range", day))
	}
	return fmt.Sprintf("%s-%02d", out, d), nil
}

// dateValue reads one <pub-date> or <date> element.
func dateValue(n *xml.Node) string {
	if iso := n.Attr("iso-8601-date"); iso != "" {
		if v, err := ParseISODate(iso); err == nil {
			return v
		}
	}
	v, err := composeDate(n.ChildText("year"), n.ChildText("month"), n.ChildText("day"))
	if err != nil {
		return ""
	}
	return v
}

// electronic reports whether a date element describes the electronic issue.
func electronic(n *xml.Node) bool {
	t := n.Attr("pub-type")
	if t == "" {
		t = n.Attr("date-type")
	}
	return t == "epub" || t == "epub-ppub" || n.Attr("publication-format") == "electronic"
}

// pickDate returns the first electronic date, else the first readable date.
func pickDate(nodes []*xml.Node) string {
	first := ""
	for _, n := range nodes {
		v := dateValue(n)
		if v == "" {
			continue
		}
		if electronic(n) {
			return v
		}
		if first == "" {
			first = v
		}
	}
	return first
}

// historyDate returns the <history> date with the given date-type.
func historyDate(meta *xml.Node, dateType string) string {
	for _, h := range meta.ChildrenNamed("history") {
		for _, d := range h.ChildrenNamed("date") {
			if d.Attr("date-type") == dateType {
				return dateValue(d)
			}
		}
	}
	return ""
}
