package jats

import (
	"github.com/FocuswithJustin/jatspkg/core/encoding"
	"github.com/FocuswithJustin/jatspkg/core/xml"
)

// funding reads grants from funding-group elements.
//
// Precedence per group: a group with no structured funding-source or
// award-id keeps its funding statements verbatim; otherwise sources carrying
// an id are joined to award-ids whose rid names them; an award group with
// exactly one anonymous source and one anonymous award is a single grant.
func funding(meta, article *xml.Node) []Grant {
	var grants []Grant
	groups := meta.ChildrenNamed("funding-group")
	for _, g := range groups {
		sources := g.Descendants("funding-source")
		awards := g.Descendants("award-id")
		if len(sources) == 0 && len(awards) == 0 {
			for _, st := range g.Descendants("funding-statement") {
				if text := encoding.NormalizeSpace(st.Text()); text != "" {
					grants = append(grants, Grant{Description: text})
				}
			}
			continue
		}
		grants = append(grants, keyedGrants(sources, awards)...)
		for _, ag := range g.Descendants("award-group") {
			grants = append(grants, anonymousGrants(ag)...)
		}
		if len(g.Descendants("award-group")) == 0 {
			grants = append(grants, anonymousGrants(g)...)
		}
	}

	if len(groups) == 0 {
		for _, fn := range article.Descendants("fn") {
			if fn.Attr("fn-type") != "financial-disclosure" {
				continue
			}
			if text := encoding.NormalizeSpace(fn.Text()); text != "" {
				grants = append(grants, Grant{Description: text})
			}
		}
	}
	return grants
}

// keyedGrants joins funding-source[@id] to award-id[@rid].
func keyedGrants(sources, awards []*xml.Node) []Grant {
	var grants []Grant
	for _, s := range sources {
		id := s.Attr("id")
		if id == "" {
			continue
		}
		funder := encoding.NormalizeSpace(s.Text())
		matched := false
		for _, a := range awards {
			if a.Attr("rid") == id {
				grants = append(grants, Grant{Funder: funder, AwardID: encoding.NormalizeSpace(a.Text())})
				matched = true
			}
		}
		if !matched {
			grants = append(grants, Grant{Funder: funder})
		}
	}
	return grants
}

// anonymousGrants handles sources without id and awards without rid that
// sit directly inside one award group.
func anonymousGrants(ag *xml.Node) []Grant {
	var sources, awards []string
	for _, s := range ag.ChildrenNamed("funding-source") {
		if s.Attr("id") == "" {
			if text := encoding.NormalizeSpace(s.Text()); text != "" {
				sources = append(sources, text)
			}
		}
	}
	for _, a := range ag.ChildrenNamed("award-id") {
		if a.Attr("rid") == "" {
			if text := encoding.NormalizeSpace(a.Text()); text != "" {
				awards = append(awards, text)
			}
		}
	}
	if len(sources) == 1 && len(awards) == 1 {
		return []Grant{{Funder: sources[0], AwardID: awards[0]}}
	}
	var grants []Grant
	for _, s := range sources {
		grants = append(grants, Grant{Funder: s})
	}
	for _, a := range awards {
		grants = append(grants, Grant{AwardID: a})
	}
	return grants
}
