// Package convert runs the whole conversion of one article: parse the XML,
// extract metadata, normalize and match the file bundle, build the article
// tree and render it. A conversion either produces both the package
// description and the HTML, or fails with neither.
package convert

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/jatspkg/core/ast"
	"github.com/FocuswithJustin/jatspkg/core/cache"
	"github.com/FocuswithJustin/jatspkg/core/cas"
	"github.com/FocuswithJustin/jatspkg/core/errors"
	"github.com/FocuswithJustin/jatspkg/core/jats"
	"github.com/FocuswithJustin/jatspkg/core/render"
	"github.com/FocuswithJustin/jatspkg/core/resource"
	"github.com/FocuswithJustin/jatspkg/core/xml"
	"github.com/FocuswithJustin/jatspkg/internal/logging"
	"github.com/FocuswithJustin/jatspkg/internal/validation"
)

// Stage names reported to observers and logs.
const (
	StageParse     = "parse"
	StageExtract   = "extract"
	StageNormalize = "normalize"
	StageMatch     = "match"
	StageProbe     = "probe"
	StageRender    = "render"
	StageDone      = "done"
)

// Observer is told when a conversion enters a stage.
type Observer func(ctx context.Context, stage string)

// Options configures a Converter.
type Options struct {
	// BaseURL prefixes content-hash links in the HTML.
	BaseURL string
	// Unpacker unpacks nested archives in the bundle. Required.
	Unpacker resource.Unpacker
	// Prober measures encodings. Optional.
	Prober resource.Prober
	// Store receives hashed blobs. Optional.
	Store *cas.Store
	// DigestCacheSize bounds the per-conversion digest cache (0 = unbounded).
	DigestCacheSize int
	// Observer, when set, is called at every stage.
	Observer Observer
}

// Input names one article to convert.
type Input struct {
	// ArticleID is the archive-assigned identifier of the article.
	ArticleID string
	// BundleDir holds the extracted files. It is only read: nested
	// archives unpack into a scratch directory removed after the
	// conversion.
	BundleDir string
	// XMLPath is the JATS XML file. When empty, the single .xml file at the
	// top of BundleDir is used.
	XMLPath string
}

// Result is a finished conversion.
type Result struct {
	ID      string
	Package *resource.Package
	HTML    string
}

// Converter converts articles. It holds no per-conversion state and is
// safe for concurrent use.
type Converter struct {
	opts Options
}

// New returns a Converter.
func New(opts Options) *Converter {
	return &Converter{opts: opts}
}

// Convert runs the pipeline for one article.
func (c *Converter) Convert(ctx context.Context, in Input) (*Result, error) {
	id := uuid.NewString()
	ctx = logging.WithConversionID(ctx, id)
	ctx = logging.WithArticleID(ctx, in.ArticleID)

	res, stage, err := c.run(ctx, id, in)
	if err != nil {
		logging.ConversionError(ctx, stage, err)
		return nil, err
	}
	c.enter(ctx, StageDone, "package", res.Package.Name)
	return res, nil
}

func (c *Converter) run(ctx context.Context, id string, in Input) (*Result, string, error) {
	if err := validation.ValidateArticleID(in.ArticleID); err != nil {
		return nil, StageParse, errors.NewValidation("article_id", err.Error())
	}
	if c.opts.Unpacker == nil {
		return nil, StageParse, errors.NewValidation("unpacker", "no unpacker configured")
	}
	xmlPath := in.XMLPath
	if xmlPath == "" {
		p, err := FindArticleXML(in.BundleDir)
		if err != nil {
			return nil, StageParse, err
		}
		xmlPath = p
	}

	c.enter(ctx, StageParse, "xml", xmlPath)
	doc, err := ParseFile(xmlPath)
	if err != nil {
		return nil, StageParse, err
	}

	c.enter(ctx, StageExtract)
	rec, err := jats.Extract(doc, in.ArticleID)
	if err != nil {
		return nil, StageExtract, err
	}

	c.enter(ctx, StageNormalize, "bundle", in.BundleDir)
	var files []resource.File
	if in.BundleDir != "" {
		scratch, err := os.MkdirTemp("", "jatspkg-unpack-*")
		if err != nil {
			return nil, StageNormalize, errors.NewIO("create scratch directory", os.TempDir(), err)
		}
		defer os.RemoveAll(scratch)
		files, err = resource.Normalize(ctx, in.BundleDir, scratch, c.opts.Unpacker, entryName(in.BundleDir, xmlPath))
		if err != nil {
			return nil, StageNormalize, err
		}
	}

	c.enter(ctx, StageMatch, "files", len(files), "descriptors", len(rec.Descriptors))
	pkg := resource.NewPackage(rec, resource.Match(files, rec.Descriptors))

	if c.opts.Prober != nil {
		c.enter(ctx, StageProbe)
		pkg.Probe(in.BundleDir, c.opts.Prober)
	}

	c.enter(ctx, StageRender)
	r := render.New(pkg, render.Options{
		Root:    in.BundleDir,
		BaseURL: c.opts.BaseURL,
		Store:   c.opts.Store,
		Cache:   cache.NewDigestCache(c.opts.DigestCacheSize),
	})
	html, err := r.Document(ctx, articleTree(doc))
	if err != nil {
		return nil, StageRender, err
	}
	return &Result{ID: id, Package: pkg, HTML: html}, "", nil
}

func (c *Converter) enter(ctx context.Context, stage string, args ...any) {
	logging.ConversionStage(ctx, stage, args...)
	if c.opts.Observer != nil {
		c.opts.Observer(ctx, stage)
	}
}

// articleTree converts the abstract and body of the article.
func articleTree(doc *xml.Document) render.Article {
	var art render.Article
	if abs, _ := doc.XPathFirst("/article/front/article-meta/abstract[not(@abstract-type)]"); abs != nil {
		art.Abstract = ast.ConvertChildren(abs)
	} else if abs, _ := doc.XPathFirst("/article/front/article-meta/abstract"); abs != nil {
		art.Abstract = ast.ConvertChildren(abs)
	}
	if body, _ := doc.XPathFirst("/article/body"); body != nil {
		art.Body = ast.ConvertChildren(body)
	}
	return art
}

// ParseFile reads and parses a JATS XML file.
func ParseFile(path string) (*xml.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIO("read", path, err)
	}
	doc, err := xml.Parse(data)
	if err != nil {
		return nil, errors.NewMalformed("not well-formed XML", err)
	}
	return doc, nil
}

// ExtractFile parses path and returns its metadata record.
func ExtractFile(path, articleID string) (*jats.Record, error) {
	doc, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return jats.Extract(doc, articleID)
}

// FindArticleXML returns the only .xml file directly under dir.
func FindArticleXML(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.NewIO("list", dir, err)
	}
	var found []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			found = append(found, e.Name())
		}
	}
	sort.Strings(found)
	switch len(found) {
	case 0:
		return "", errors.NewNotFound("article xml", dir)
	case 1:
		return filepath.Join(dir, found[0]), nil
	}
	return "", errors.NewValidation("bundle", "more than one .xml file in "+dir+": "+strings.Join(found, ", "))
}

// entryName is the bundle-relative slash path of the XML file, or "" when
// it lives outside the bundle.
func entryName(bundle, xmlPath string) string {
	rel, err := filepath.Rel(bundle, xmlPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return filepath.ToSlash(rel)
}
