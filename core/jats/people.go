package jats

import (
	"strings"

	"github.com/FocuswithJustin/jatspkg/core/encoding"
	"github.com/FocuswithJustin/jatspkg/core/xml"
)

// affiliationIndex maps aff ids to organizations. Documents with a single
// unlabelled affiliation are common, so the lone entry is kept aside.
type affiliationIndex struct {
	byID  map[string]Organization
	order []Organization
}

func indexAffiliations(article *xml.Node) *affiliationIndex {
	idx := &affiliationIndex{byID: map[string]Organization{}}
	for _, aff := range article.Descendants("aff") {
		org := Organization{ID: aff.Attr("id"), Name: affiliationName(aff)}
		if org.Name == "" {
			continue
		}
		if org.ID != "" {
			if _, seen := idx.byID[org.ID]; seen {
				continue
			}
			idx.byID[org.ID] = org
		}
		idx.order = append(idx.order, org)
	}
	return idx
}

// affiliationName flattens an aff element, dropping its label.
func affiliationName(aff *xml.Node) string {
	var parts []string
	for _, c := range aff.ChildNodes() {
		switch {
		case c.IsText():
			parts = append(parts, c.Data())
		case c.Name() == "label" || c.Name() == "sup":
		default:
			parts = append(parts, c.Text())
		}
	}
	name := encoding.NormalizeSpace(strings.Join(parts, " "))
	name = strings.TrimLeft(name, ",; ")
	return strings.ReplaceAll(name, " ,", ",")
}

// correspIndex maps corresp ids under author-notes to email addresses.
func correspIndex(article *xml.Node) map[string]string {
	out := map[string]string{}
	for _, c := range article.Descendants("corresp") {
		id := c.Attr("id")
		if id == "" {
			continue
		}
		if emails := c.Descendants("email"); len(emails) > 0 {
			out[id] = encoding.NormalizeSpace(emails[0].Text())
		}
	}
	return out
}

// contributors resolves contrib elements into author, contributors and
// editors. Affiliations are linked only through xref[@ref-type=aff].
func contributors(meta, article *xml.Node, rec *Record) {
	affs := indexAffiliations(article)
	corresp := correspIndex(article)

	var authors []Person
	anyXref := false
	for _, group := range meta.ChildrenNamed("contrib-group") {
		for _, c := range group.ChildrenNamed("contrib") {
			p, linked := person(c, affs, corresp)
			if linked {
				anyXref = true
			}
			switch contribType(c, group) {
			case "editor":
				rec.Editor = append(rec.Editor, p)
			case "author":
				authors = append(authors, p)
			default:
				rec.Contributor = append(rec.Contributor, p)
			}
		}
	}

	if !anyXref && len(affs.order) == 1 {
		for i := range authors {
			if len(authors[i].Affiliation) == 0 {
				authors[i].Affiliation = []Organization{affs.order[0]}
			}
		}
	}

	if len(authors) > 0 {
		first := authors[0]
		rec.Author = &first
		rec.Contributor = append(authors[1:len(authors):len(authors)], rec.Contributor...)
	}
}

// contribType falls back to the group's content-type when the contrib has none.
func contribType(c, group *xml.Node) string {
	if t := c.Attr("contrib-type"); t != "" {
		return t
	}
	if t := group.Attr("content-type"); t != "" {
		return t
	}
	return "author"
}

// person reads a contrib. The second result reports whether any affiliation
// cross-reference was present.
func person(c *xml.Node, affs *affiliationIndex, corresp map[string]string) (Person, bool) {
	var p Person
	if name := c.Child("name"); name != nil {
		p.GivenName = name.ChildText("given-names")
		p.FamilyName = name.ChildText("surname")
	} else if sn := c.Child("string-name"); sn != nil {
		p.Name = encoding.NormalizeSpace(sn.Text())
	}
	if collab := c.Child("collab"); collab != nil {
		p.Name = encoding.NormalizeSpace(collab.Text())
	}
	p.Email = c.ChildText("email")

	linked := false
	for _, x := range c.ChildrenNamed("xref") {
		rid := x.Attr("rid")
		switch x.Attr("ref-type") {
		case "aff":
			linked = true
			for _, id := range strings.Fields(rid) {
				if org, ok := affs.byID[id]; ok {
					p.Affiliation = append(p.Affiliation, org)
				}
			}
		case "corresp":
			if p.Email == "" {
				p.Email = corresp[rid]
			}
		}
	}
	for _, aff := range c.ChildrenNamed("aff") {
		if name := affiliationName(aff); name != "" {
			p.Affiliation = append(p.Affiliation, Organization{ID: aff.Attr("id"), Name: name})
		}
	}
	return p, linked
}

// refPerson reads a name or string-name inside a citation.
func refPerson(n *xml.Node) Person {
	if n.Name() == "name" {
		return Person{GivenName: n.ChildText("given-names"), FamilyName: n.ChildText("surname")}
	}
	if n.Child("surname") != nil {
		return Person{GivenName: n.ChildText("given-names"), FamilyName: n.ChildText("surname")}
	}
	return Person{Name: encoding.NormalizeSpace(n.Text())}
}
