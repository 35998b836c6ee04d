package convert

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/FocuswithJustin/jatspkg/core/cas"
	apperrors "github.com/FocuswithJustin/jatspkg/core/errors"
	"github.com/FocuswithJustin/jatspkg/core/resource"
	"github.com/FocuswithJustin/jatspkg/internal/archive"
)

const article = `<?xml version="1.0" encoding="UTF-8"?>
<article xmlns:xlink="http://www.w3.org/1999/xlink" article-type="research-article">
  <front>
    <journal-meta>
      <journal-id journal-id-type="nlm-ta">eLife</journal-id>
      <journal-title-group><journal-title>eLife</journal-title></journal-title-group>
    </journal-meta>
    <article-meta>
      <article-id pub-id-type="doi">10.7554/eLife.00001</article-id>
      <title-group><article-title>Cell growth</article-title></title-group>
      <contrib-group>
        <contrib contrib-type="author"><name><surname>Doe</surname><given-names>Jane</given-names></name></contrib>
      </contrib-group>
      <abstract><p>We grew cells.</p></abstract>
    </article-meta>
  </front>
  <body>
    <sec id="s1">
      <title>Introduction</title>
      <p>Prior work <xref ref-type="bibr" rid="bib1">[1]</xref> and <xref ref-type="fig" rid="fig1">Figure 1</xref>.</p>
      <fig id="fig1"><label>Figure 1.</label><caption><title>Growth.</title></caption><graphic xlink:href="elife-00001-fig1"/></fig>
      <p>Data in <xref ref-type="supplementary-material" rid="supp1">Source data 1</xref>.</p>
      <supplementary-material id="supp1" xlink:href="elife-00001-supp1.csv"><label>Source data 1.</label></supplementary-material>
    </sec>
  </body>
  <back>
    <ref-list>
      <ref id="bib1"><element-citation publication-type="journal"><article-title>Old result</article-title><source>Nature</source><year>1999</year></element-citation></ref>
    </ref-list>
  </back>
</article>`

var figBytes = []byte("\xff\xd8\xff\xe0figure")

func writeBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "elife-00001.xml"), []byte(article), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "elife-00001-fig1.jpg"), figBytes, 0644); err != nil {
		t.Fatal(err)
	}

	// The supplement ships zipped; the lone member is promoted.
	zf, err := os.Create(filepath.Join(dir, "elife-00001-supp1.zip"))
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(zf)
	w, _ := zw.Create("elife-00001-supp1.csv")
	w.Write([]byte("a,b\n1,2\n"))
	zw.Close()
	zf.Close()
	return dir
}

func newConverter(opts Options) *Converter {
	opts.BaseURL = "https://repo.example.org"
	opts.Unpacker = archive.Unpacker{}
	return New(opts)
}

func TestConvert(t *testing.T) {
	dir := writeBundle(t)
	var mu sync.Mutex
	var stages []string
	c := newConverter(Options{Observer: func(ctx context.Context, stage string) {
		mu.Lock()
		stages = append(stages, stage)
		mu.Unlock()
	}})

	res, err := c.Convert(context.Background(), Input{ArticleID: "00001", BundleDir: dir})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.ID == "" {
		t.Error("conversion id missing")
	}
	pkg := res.Package
	if pkg.Name != "10-7554-elife-00001" {
		t.Errorf("package name = %q", pkg.Name)
	}
	if len(pkg.Figure) != 1 || pkg.Figure[0].Name != "fig1" {
		t.Fatalf("figures = %+v", pkg.Figure)
	}
	if len(pkg.Dataset) != 1 || pkg.Dataset[0].Name != "supp1" {
		t.Fatalf("datasets = %+v", pkg.Dataset)
	}
	for _, r := range pkg.All() {
		if strings.HasSuffix(r.Encoding[0].ContentPath, ".xml") {
			t.Errorf("article xml became a resource: %+v", r)
		}
	}

	figLink := "https://repo.example.org/r/" + cas.Hash(figBytes)
	for _, want := range []string{
		`<a href="#ref_1">[1]</a>`,
		`<a href="` + figLink + `">Figure 1</a>`,
		`<img src="` + figLink + `"`,
		`<section id="sec_1" typeof="deo:Introduction">`,
		`<li id="ref_1">`,
		"We grew cells.",
	} {
		if !strings.Contains(res.HTML, want) {
			t.Errorf("html missing %s", want)
		}
	}

	wantStages := []string{StageParse, StageExtract, StageNormalize, StageMatch, StageRender, StageDone}
	if strings.Join(stages, ",") != strings.Join(wantStages, ",") {
		t.Errorf("stages = %v, want %v", stages, wantStages)
	}
}

func TestConvertMalformed(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.xml"), []byte("<notarticle/>"), 0644)
	_, err := newConverter(Options{}).Convert(context.Background(), Input{ArticleID: "a", BundleDir: dir})
	if !apperrors.Is(err, apperrors.ErrMalformedDocument) {
		t.Fatalf("err = %v, want malformed document", err)
	}

	os.WriteFile(filepath.Join(dir, "a.xml"), []byte("<article><body></article>"), 0644)
	_, err = newConverter(Options{}).Convert(context.Background(), Input{ArticleID: "a", BundleDir: dir})
	if !apperrors.Is(err, apperrors.ErrMalformedDocument) {
		t.Fatalf("err = %v, want malformed document for broken XML", err)
	}
}

func TestConvertRejectsBadArticleID(t *testing.T) {
	_, err := newConverter(Options{}).Convert(context.Background(), Input{ArticleID: "../x", BundleDir: t.TempDir()})
	var ve *apperrors.ValidationError
	if !apperrors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestConvertStoresBlobs(t *testing.T) {
	store, err := cas.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := newConverter(Options{Store: store})
	if _, err := c.Convert(context.Background(), Input{ArticleID: "00001", BundleDir: writeBundle(t)}); err != nil {
		t.Fatal(err)
	}
	if !store.Exists(cas.Hash(figBytes)) {
		t.Error("figure blob not in store")
	}
}

type fakeProber struct{}

func (fakeProber) Probe(path, format string) (resource.Measure, error) {
	if format == "image/jpeg" {
		return resource.Measure{Width: 640, Height: 480}, nil
	}
	return resource.Measure{}, nil
}

func TestConvertProbes(t *testing.T) {
	c := newConverter(Options{Prober: fakeProber{}})
	res, err := c.Convert(context.Background(), Input{ArticleID: "00001", BundleDir: writeBundle(t)})
	if err != nil {
		t.Fatal(err)
	}
	e := res.Package.Figure[0].Encoding[0]
	if e.Width != 640 || e.Height != 480 {
		t.Errorf("encoding = %+v", e)
	}
}

func TestWriteOutputs(t *testing.T) {
	res, err := newConverter(Options{}).Convert(context.Background(), Input{ArticleID: "00001", BundleDir: writeBundle(t)})
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "out")
	if err := WriteOutputs(res, out); err != nil {
		t.Fatalf("WriteOutputs: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out, PackageFile))
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("package.json: %v", err)
	}
	if decoded["name"] != "10-7554-elife-00001" || decoded["figure"] == nil {
		t.Errorf("package.json = %s", data)
	}
	html, _ := os.ReadFile(filepath.Join(out, HTMLFile))
	if string(html) != res.HTML {
		t.Error("index.html differs from result")
	}
	entries, _ := os.ReadDir(out)
	if len(entries) != 2 {
		t.Errorf("staging directory left behind: %v", entries)
	}
}

func TestWriteOutputsRollsBack(t *testing.T) {
	res, err := newConverter(Options{}).Convert(context.Background(), Input{ArticleID: "00001", BundleDir: writeBundle(t)})
	if err != nil {
		t.Fatal(err)
	}
	out := t.TempDir()
	os.WriteFile(filepath.Join(out, PackageFile), []byte("old package"), 0644)
	os.WriteFile(filepath.Join(out, HTMLFile), []byte("old html"), 0644)

	orig := rename
	rename = func(src, dst string) error {
		if filepath.Base(src) == HTMLFile && strings.HasPrefix(filepath.Base(filepath.Dir(src)), ".stage-") {
			return errors.New("disk full")
		}
		return os.Rename(src, dst)
	}
	defer func() { rename = orig }()

	if err := WriteOutputs(res, out); err == nil {
		t.Fatal("expected rename failure")
	}
	for name, want := range map[string]string{PackageFile: "old package", HTMLFile: "old html"} {
		if got, _ := os.ReadFile(filepath.Join(out, name)); string(got) != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if entries, _ := os.ReadDir(out); len(entries) != 2 {
		t.Errorf("entries after rollback = %v", entries)
	}

	fresh := filepath.Join(t.TempDir(), "fresh")
	if err := WriteOutputs(res, fresh); err == nil {
		t.Fatal("expected rename failure")
	}
	if entries, _ := os.ReadDir(fresh); len(entries) != 0 {
		t.Errorf("partial outputs left: %v", entries)
	}
}

func TestConvertLeavesBundleUntouched(t *testing.T) {
	dir := writeBundle(t)
	before, _ := os.ReadDir(dir)
	c := newConverter(Options{})

	var packages []string
	for i := 0; i < 2; i++ {
		res, err := c.Convert(context.Background(), Input{ArticleID: "00001", BundleDir: dir})
		if err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
		data, err := json.Marshal(res.Package)
		if err != nil {
			t.Fatal(err)
		}
		packages = append(packages, string(data))
	}
	if packages[0] != packages[1] {
		t.Errorf("second conversion differs:\n%s\n%s", packages[0], packages[1])
	}
	after, _ := os.ReadDir(dir)
	if len(after) != len(before) {
		t.Errorf("bundle entries %d -> %d", len(before), len(after))
	}
}

func TestFindArticleXML(t *testing.T) {
	dir := t.TempDir()
	if _, err := FindArticleXML(dir); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("empty dir err = %v", err)
	}
	os.WriteFile(filepath.Join(dir, "a.XML"), []byte("<article/>"), 0644)
	if p, err := FindArticleXML(dir); err != nil || filepath.Base(p) != "a.XML" {
		t.Errorf("FindArticleXML = %q, %v", p, err)
	}
	os.WriteFile(filepath.Join(dir, "b.xml"), []byte("<article/>"), 0644)
	if _, err := FindArticleXML(dir); err == nil {
		t.Error("two xml files should be ambiguous")
	}
}

func TestExtractFile(t *testing.T) {
	dir := writeBundle(t)
	rec, err := ExtractFile(filepath.Join(dir, "elife-00001.xml"), "00001")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Title != "Cell growth" || rec.DOI != "10.7554/eLife.00001" {
		t.Errorf("record = %+v", rec)
	}
}

func TestBatch(t *testing.T) {
	c := newConverter(Options{})
	outRoot := t.TempDir()
	bad := t.TempDir()
	os.WriteFile(filepath.Join(bad, "x.xml"), []byte("<book/>"), 0644)

	jobs := []Job{
		{Input: Input{ArticleID: "00001", BundleDir: writeBundle(t)}, OutDir: filepath.Join(outRoot, "a")},
		{Input: Input{ArticleID: "bad", BundleDir: bad}, OutDir: filepath.Join(outRoot, "b")},
		{Input: Input{ArticleID: "00001", BundleDir: writeBundle(t)}, OutDir: filepath.Join(outRoot, "c")},
	}
	outcomes := c.Batch(context.Background(), jobs, 2)
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes", len(outcomes))
	}
	for i, o := range outcomes {
		if o.Index != i {
			t.Errorf("outcome %d has index %d", i, o.Index)
		}
	}
	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Errorf("good jobs failed: %v, %v", outcomes[0].Err, outcomes[2].Err)
	}
	if outcomes[1].Err == nil {
		t.Error("bad job succeeded")
	}
	if _, err := os.Stat(filepath.Join(outRoot, "b", PackageFile)); !os.IsNotExist(err) {
		t.Error("failed conversion wrote outputs")
	}
	if outcomes[0].Result.HTML != outcomes[2].Result.HTML {
		t.Error("identical inputs rendered differently")
	}
}
