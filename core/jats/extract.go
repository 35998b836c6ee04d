// Package jats extracts a flat bibliographic record and resource
// descriptors from JATS article XML.
//
// Extraction never fails on missing optional fields. Only a document
// without an <article> root is rejected.
package jats

import (
	"github.com/FocuswithJustin/jatspkg/core/encoding"
	"github.com/FocuswithJustin/jatspkg/core/errors"
	"github.com/FocuswithJustin/jatspkg/core/xml"
)

// Extract builds the metadata record for doc. articleID is the
// archive-assigned identifier; it becomes the PMCID when the document
// declares none.
func Extract(doc *xml.Document, articleID string) (*Record, error) {
	if doc == nil {
		return nil, errors.NewMalformed("no document", nil)
	}
	article := doc.Root()
	if article == nil || article.Name() != "article" {
		return nil, errors.NewMalformed("no <article> root", nil)
	}

	rec := &Record{
		ID:          articleID,
		ArticleType: article.Attr("article-type"),
		Language:    article.Attr("lang"),
	}

	front := article.Child("front")
	if front == nil {
		front = article
	}
	if jm := front.Child("journal-meta"); jm != nil {
		rec.Journal = journal(jm)
	}

	meta := front.Child("article-meta")
	if meta == nil {
		meta = front
	}
	articleMeta(meta, rec)
	contributors(meta, article, rec)
	rec.Funding = funding(meta, article)

	if rec.PMCID == "" {
		rec.PMCID = articleID
	}

	rec.References = references(article)
	rec.Descriptors = descriptors(article)
	return rec, nil
}

func journal(jm *xml.Node) Journal {
	var j Journal
	for _, id := range jm.ChildrenNamed("journal-id") {
		if id.Attr("journal-id-type") == "nlm-ta" {
			j.ID = encoding.NormalizeSpace(id.Text())
			break
		}
	}
	if tg := jm.Child("journal-title-group"); tg != nil {
		j.Name = tg.ChildText("journal-title")
	}
	if j.Name == "" {
		j.Name = jm.ChildText("journal-title")
	}
	if j.ID == "" {
		j.ID = encoding.Slugify(j.Name)
	}

	for _, issn := range jm.ChildrenNamed("issn") {
		v := encoding.NormalizeSpace(issn.Text())
		if issn.Attr("pub-type") == "epub" || issn.Attr("publication-format") == "electronic" {
			j.ISSN = v
			break
		}
		if j.ISSN == "" {
			j.ISSN = v
		}
	}

	if p := jm.Child("publisher"); p != nil {
		j.Publisher = p.ChildText("publisher-name")
	}
	return j
}

func articleMeta(meta *xml.Node, rec *Record) {
	for _, id := range meta.ChildrenNamed("article-id") {
		v := encoding.NormalizeSpace(id.Text())
		switch id.Attr("pub-id-type") {
		case "doi":
			rec.DOI = v
		case "pmid":
			rec.PMID = v
		case "pmc", "pmcid":
			rec.PMCID = v
		case "publisher-id":
			rec.PublisherID = v
		}
	}

	if tg := meta.Child("title-group"); tg != nil {
		rec.Title = tg.ChildText("article-title")
		if alt := tg.Child("alt-title"); alt != nil {
			rec.AlternateTitle = encoding.NormalizeSpace(alt.Text())
		}
	}

	rec.DatePublished = pickDate(meta.ChildrenNamed("pub-date"))
	rec.DateReceived = historyDate(meta, "received")
	rec.DateAccepted = historyDate(meta, "accepted")

	rec.Volume = meta.ChildText("volume")
	rec.Issue = meta.ChildText("issue")
	rec.PageStart = meta.ChildText("fpage")
	rec.PageEnd = meta.ChildText("lpage")
	rec.ELocation = meta.ChildText("elocation-id")

	if perm := meta.Child("permissions"); perm != nil {
		permissions(perm, rec)
	}

	for _, kg := range meta.ChildrenNamed("kwd-group") {
		for _, k := range kg.ChildrenNamed("kwd") {
			if v := encoding.NormalizeSpace(k.Text()); v != "" {
				rec.Keywords = append(rec.Keywords, v)
			}
		}
	}

	for _, abs := range meta.ChildrenNamed("abstract") {
		if abs.Attr("abstract-type") != "" {
			continue
		}
		rec.Abstract = encoding.NormalizeSpace(abs.Text())
		break
	}
}

func permissions(perm *xml.Node, rec *Record) {
	if lic := perm.Child("license"); lic != nil {
		rec.License = lic.Attr("href")
		if refs := lic.Descendants("license_ref"); rec.License == "" && len(refs) > 0 {
			rec.License = encoding.NormalizeSpace(refs[0].Text())
		}
		if rec.License == "" {
			rec.License = encoding.NormalizeSpace(lic.Text())
		}
	}
	c := &Copyright{
		Statement: perm.ChildText("copyright-statement"),
		Year:      perm.ChildText("copyright-year"),
		Holder:    perm.ChildText("copyright-holder"),
	}
	if *c != (Copyright{}) {
		rec.Copyright = c
	}
}
