package jats

// Record is the flat bibliographic record extracted from one JATS article.
type Record struct {
	// ID is the archive-assigned article identifier.
	ID string `json:"id"`

	Title          string `json:"title,omitempty"`
	AlternateTitle string `json:"alternateName,omitempty"`
	ArticleType    string `json:"articleType,omitempty"`
	Language       string `json:"inLanguage,omitempty"`

	Journal Journal `json:"journal"`

	DatePublished string `json:"datePublished,omitempty"`
	DateReceived  string `json:"dateReceived,omitempty"`
	DateAccepted  string `json:"dateAccepted,omitempty"`

	Volume    string     `json:"volume,omitempty"`
	Issue     string     `json:"issue,omitempty"`
	PageStart string     `json:"pageStart,omitempty"`
	PageEnd   string     `json:"pageEnd,omitempty"`
	ELocation string     `json:"elocationId,omitempty"`
	License   string     `json:"license,omitempty"`
	Copyright *Copyright `json:"copyright,omitempty"`

	DOI         string `json:"doi,omitempty"`
	PMID        string `json:"pmid,omitempty"`
	PMCID       string `json:"pmcid,omitempty"`
	PublisherID string `json:"publisherId,omitempty"`

	Keywords []string `json:"keywords,omitempty"`
	Funding  []Grant  `json:"funding,omitempty"`

	Author      *Person  `json:"author,omitempty"`
	Contributor []Person `json:"contributor,omitempty"`
	Editor      []Person `json:"editor,omitempty"`

	Abstract   string      `json:"abstract,omitempty"`
	References []Reference `json:"citation,omitempty"`

	// Descriptors lists figure, table and supplementary-material descriptors
	// in document order.
	Descriptors []Descriptor `json:"-"`
}

// Journal identifies the publishing journal.
type Journal struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	ISSN      string `json:"issn,omitempty"`
	Publisher string `json:"publisher,omitempty"`
}

// Copyright holds the permissions statement of the article.
type Copyright struct {
	Statement string `json:"statement,omitempty"`
	Year      string `json:"year,omitempty"`
	Holder    string `json:"holder,omitempty"`
}

// Person is an author, contributor, editor or cited author.
type Person struct {
	GivenName   string         `json:"givenName,omitempty"`
	FamilyName  string         `json:"familyName,omitempty"`
	Name        string         `json:"name,omitempty"`
	Email       string         `json:"email,omitempty"`
	Affiliation []Organization `json:"affiliation,omitempty"`
}

// DisplayName returns "Given Family", falling back to Name.
func (p Person) DisplayName() string {
	switch {
	case p.GivenName != "" && p.FamilyName != "":
		return p.GivenName + " " + p.FamilyName
	case p.FamilyName != "":
		return p.FamilyName
	default:
		return p.Name
	}
}

// Organization is a resolved affiliation.
type Organization struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Grant is one funding entry. Description carries verbatim funding
// statements that had no structured source or award.
type Grant struct {
	Funder      string `json:"funder,omitempty"`
	AwardID     string `json:"awardId,omitempty"`
	Description string `json:"description,omitempty"`
}

// Reference is one entry of the article's reference list.
type Reference struct {
	ID                  string   `json:"id,omitempty"`
	Label               string   `json:"label,omitempty"`
	Type                string   `json:"type,omitempty"`
	Title               string   `json:"title,omitempty"`
	Journal             string   `json:"journal,omitempty"`
	Source              string   `json:"source,omitempty"`
	Publisher           string   `json:"publisher,omitempty"`
	Authors             []Person `json:"author,omitempty"`
	UnnamedContributors bool     `json:"unnamedContributors,omitempty"`
	Year                string   `json:"year,omitempty"`
	Volume              string   `json:"volume,omitempty"`
	Issue               string   `json:"issue,omitempty"`
	PageStart           string   `json:"pageStart,omitempty"`
	PageEnd             string   `json:"pageEnd,omitempty"`
	DOI                 string   `json:"doi,omitempty"`
	PMID                string   `json:"pmid,omitempty"`
	URL                 string   `json:"url,omitempty"`
	Text                string   `json:"text,omitempty"`
}

// DescriptorKind is the JATS element a descriptor was taken from.
type DescriptorKind string

// Descriptor kinds.
const (
	KindFigure        DescriptorKind = "figure"
	KindTable         DescriptorKind = "table"
	KindSupplementary DescriptorKind = "supplementary-material"
)

// Descriptor is a figure, table or supplementary material element with its
// captured metadata, before any file has been matched to it.
type Descriptor struct {
	Kind      DescriptorKind `json:"kind"`
	ID        string         `json:"id,omitempty"`
	Label     string         `json:"label,omitempty"`
	Num       string         `json:"num,omitempty"`
	Caption   *Caption       `json:"caption,omitempty"`
	Footnotes []string       `json:"footnotes,omitempty"`
	ObjectIDs []ObjectID     `json:"objectIds,omitempty"`

	Graphic []Payload      `json:"graphic,omitempty"`
	Media   []Payload      `json:"media,omitempty"`
	Code    []Payload      `json:"code,omitempty"`
	Table   []TablePayload `json:"table,omitempty"`
	SI      []Payload      `json:"si,omitempty"`

	// Inline marks inline-supplementary-material and supplementary material
	// that carries its own href: the element itself is the resource.
	Inline bool `json:"inline,omitempty"`

	// Alternatives is set when payloads came from an <alternatives> wrapper.
	Alternatives bool `json:"alternatives,omitempty"`
}

// Caption is a descriptor caption. Content is only populated when the
// caption subtree has no embedded media or formulas.
type Caption struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
}

// ObjectID is a typed identifier attached to a resource (e.g., a DOI).
type ObjectID struct {
	Type  string `json:"type,omitempty"`
	Value string `json:"value"`
}

// Payload is one file-backed encoding offered by a descriptor.
type Payload struct {
	ID       string `json:"id,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
	Href     string `json:"href,omitempty"`
}

// TablePayload is an inline HTML table.
type TablePayload struct {
	ID   string `json:"id,omitempty"`
	HTML string `json:"html"`
}

// Hrefs returns every declared href across all payload kinds, in payload order.
func (d *Descriptor) Hrefs() []string {
	var out []string
	for _, group := range [][]Payload{d.Graphic, d.Media, d.Code, d.SI} {
		for _, p := range group {
			if p.Href != "" {
				out = append(out, p.Href)
			}
		}
	}
	return out
}

// PayloadKinds returns how many distinct payload kinds are populated.
func (d *Descriptor) PayloadKinds() int {
	n := 0
	for _, populated := range []bool{len(d.Graphic) > 0, len(d.Media) > 0, len(d.Code) > 0, len(d.Table) > 0, len(d.SI) > 0} {
		if populated {
			n++
		}
	}
	return n
}
