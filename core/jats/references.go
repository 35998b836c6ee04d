package jats

import (
	"strings"

	"github.com/FocuswithJustin/jatspkg/core/encoding"
	"github.com/FocuswithJustin/jatspkg/core/xml"
)

var citationElements = []string{"element-citation", "mixed-citation", "nlm-citation", "citation"}

// references reads ref elements under <back>, falling back to the whole
// article when there is no back matter reference list.
func references(article *xml.Node) []Reference {
	var refs []*xml.Node
	if back := article.Child("back"); back != nil {
		refs = back.Descendants("ref")
	}
	if len(refs) == 0 {
		refs = article.Descendants("ref")
	}

	out := make([]Reference, 0, len(refs))
	for _, r := range refs {
		out = append(out, reference(r))
	}
	return out
}

func reference(r *xml.Node) Reference {
	ref := Reference{ID: r.Attr("id"), Label: r.ChildText("label")}

	var cit *xml.Node
	for _, name := range citationElements {
		if cit = r.Child(name); cit != nil {
			break
		}
	}
	if cit == nil {
		ref.Text = encoding.NormalizeSpace(r.Text())
		return ref
	}

	ref.Type = cit.Attr("publication-type")
	if ref.Type == "" {
		ref.Type = cit.Attr("citation-type")
	}
	ref.Title = encoding.NormalizeSpace(firstText(cit, "article-title", "chapter-title", "data-title"))
	ref.Source = cit.ChildText("source")
	if ref.Type == "journal" {
		ref.Journal = ref.Source
	}
	ref.Publisher = cit.ChildText("publisher-name")
	ref.Year = cit.ChildText("year")
	ref.Volume = cit.ChildText("volume")
	ref.Issue = cit.ChildText("issue")
	ref.PageStart = cit.ChildText("fpage")
	ref.PageEnd = cit.ChildText("lpage")

	for _, pg := range cit.ChildrenNamed("person-group") {
		if t := pg.Attr("person-group-type"); t != "" && t != "author" {
			continue
		}
		for _, n := range pg.Children() {
			switch n.Name() {
			case "name", "string-name":
				ref.Authors = append(ref.Authors, refPerson(n))
			case "collab":
				ref.Authors = append(ref.Authors, Person{Name: encoding.NormalizeSpace(n.Text())})
			case "etal":
				ref.UnnamedContributors = true
			}
		}
	}
	for _, n := range cit.ChildrenNamed("name") {
		ref.Authors = append(ref.Authors, refPerson(n))
	}
	if cit.Child("etal") != nil {
		ref.UnnamedContributors = true
	}

	for _, id := range cit.ChildrenNamed("pub-id") {
		switch id.Attr("pub-id-type") {
		case "doi":
			ref.DOI = encoding.NormalizeSpace(id.Text())
		case "pmid":
			ref.PMID = encoding.NormalizeSpace(id.Text())
		}
	}
	for _, link := range cit.Descendants("ext-link", "uri", "comment") {
		text := link.Attr("href")
		if text == "" {
			text = encoding.NormalizeSpace(link.Text())
		}
		if doi := doiFromURL(text); doi != "" {
			if ref.DOI == "" {
				ref.DOI = doi
			}
			continue
		}
		if ref.URL == "" && link.Name() != "comment" && strings.HasPrefix(text, "http") {
			ref.URL = text
		}
	}

	if ref.Title == "" && ref.Source == "" {
		ref.Text = encoding.NormalizeSpace(cit.Text())
	}
	return ref
}

// doiFromURL extracts the DOI from a doi.org resolver link.
func doiFromURL(s string) string {
	for _, host := range []string{"dx.doi.org/", "doi.org/"} {
		if i := strings.Index(s, host); i >= 0 {
			doi := strings.TrimSpace(s[i+len(host):])
			if j := strings.IndexAny(doi, " \t"); j >= 0 {
				doi = doi[:j]
			}
			return strings.TrimRight(doi, ".,;")
		}
	}
	return ""
}

func firstText(n *xml.Node, names ...string) string {
	for _, name := range names {
		if c := n.Child(name); c != nil {
			return c.Text()
		}
	}
	return ""
}
