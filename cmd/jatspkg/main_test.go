package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/FocuswithJustin/jatspkg/internal/catalog"
)

const article = `<?xml version="1.0" encoding="UTF-8"?>
<article xmlns:xlink="http://www.w3.org/1999/xlink" article-type="research-article">
  <front>
    <article-meta>
      <article-id pub-id-type="doi">10.7554/eLife.00001</article-id>
      <title-group><article-title>Cell growth</article-title></title-group>
    </article-meta>
  </front>
  <body>
    <sec id="s1">
      <title>Introduction</title>
      <p>See <xref ref-type="fig" rid="fig1">Figure 1</xref>.</p>
      <fig id="fig1"><label>Figure 1.</label><graphic xlink:href="elife-00001-fig1"/></fig>
    </sec>
  </body>
</article>`

// isolate points config, store and catalog at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("JATSPKG_STORE_DIR", filepath.Join(root, "blobs"))
	t.Setenv("JATSPKG_CATALOG", filepath.Join(root, "catalog.db"))
	t.Setenv("JATSPKG_LOG_LEVEL", "error")
	t.Setenv("JATSPKG_BASE_URL", "https://repo.example.org")
	return root
}

func writeBundle(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "elife-00001.xml"), []byte(article), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "elife-00001-fig1.jpg"), []byte("\xff\xd8\xff\xe0figure"), 0644); err != nil {
		t.Fatal(err)
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestConvertCmd(t *testing.T) {
	root := isolate(t)
	bundle := filepath.Join(root, "00001")
	writeBundle(t, bundle)
	out := filepath.Join(root, "out")

	stdout, err := runCLI(t, "convert", bundle, "--out", out)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !strings.Contains(stdout, "00001: 10-7554-elife-00001") {
		t.Errorf("stdout = %q", stdout)
	}

	data, err := os.ReadFile(filepath.Join(out, "package.json"))
	if err != nil {
		t.Fatal(err)
	}
	var pkg map[string]any
	if err := json.Unmarshal(data, &pkg); err != nil {
		t.Fatal(err)
	}
	if pkg["name"] != "10-7554-elife-00001" {
		t.Errorf("name = %v", pkg["name"])
	}
	html, err := os.ReadFile(filepath.Join(out, "index.html"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(html), "https://repo.example.org/") {
		t.Error("html has no content-hash links")
	}
	if entries, _ := os.ReadDir(filepath.Join(root, "blobs")); len(entries) == 0 {
		t.Error("no blobs stored")
	}

	stdout, err = runCLI(t, "catalog", "show", "00001")
	if err != nil {
		t.Fatalf("catalog show: %v", err)
	}
	var e catalog.Entry
	if err := json.Unmarshal([]byte(stdout), &e); err != nil {
		t.Fatal(err)
	}
	if e.Status != catalog.StatusOK || e.DOI != "10.7554/eLife.00001" || e.OutDir != out {
		t.Errorf("entry = %+v", e)
	}
}

func TestConvertCmdArticleID(t *testing.T) {
	root := isolate(t)
	bundle := filepath.Join(root, "bundle")
	writeBundle(t, bundle)

	if _, err := runCLI(t, "convert", bundle, "-a", "e00001", "-o", filepath.Join(root, "out"), "--no-store", "--no-probe"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "blobs")); err == nil {
		if entries, _ := os.ReadDir(filepath.Join(root, "blobs")); len(entries) != 0 {
			t.Error("--no-store wrote blobs")
		}
	}
	if _, err := runCLI(t, "catalog", "show", "e00001"); err != nil {
		t.Errorf("catalog show: %v", err)
	}
}

func TestConvertCmdFailureRecorded(t *testing.T) {
	root := isolate(t)
	bundle := filepath.Join(root, "broken")
	if err := os.MkdirAll(bundle, 0755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(bundle, "broken.xml"), []byte("<article><front>"), 0644)

	if _, err := runCLI(t, "convert", bundle, "-o", filepath.Join(root, "out")); err == nil {
		t.Fatal("expected error for malformed XML")
	}
	stdout, err := runCLI(t, "catalog", "list", "--status", "failed", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var entries []catalog.Entry
	if err := json.Unmarshal([]byte(stdout), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ArticleID != "broken" || entries[0].Error == "" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestExtractCmd(t *testing.T) {
	root := isolate(t)
	writeBundle(t, root)

	stdout, err := runCLI(t, "extract", filepath.Join(root, "elife-00001.xml"))
	if err != nil {
		t.Fatal(err)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(stdout), &rec); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	if rec["doi"] != "10.7554/eLife.00001" || rec["title"] != "Cell growth" {
		t.Errorf("record = %v", rec)
	}
}

func TestBatchCmd(t *testing.T) {
	root := isolate(t)
	in := filepath.Join(root, "in")
	writeBundle(t, filepath.Join(in, "a"))
	writeBundle(t, filepath.Join(in, "b"))
	out := filepath.Join(root, "out")

	stdout, err := runCLI(t, "batch", in, "-o", out, "-j", "2")
	if err != nil {
		t.Fatalf("batch: %v\n%s", err, stdout)
	}
	for _, id := range []string{"a", "b"} {
		if !strings.Contains(stdout, "ok   "+id) {
			t.Errorf("stdout missing %s: %q", id, stdout)
		}
		if _, err := os.Stat(filepath.Join(out, id, "index.html")); err != nil {
			t.Errorf("%s: %v", id, err)
		}
	}

	stdout, err = runCLI(t, "catalog", "list")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "ARTICLE") {
		t.Errorf("catalog list = %q", stdout)
	}
}

func TestBatchCmdPartialFailure(t *testing.T) {
	root := isolate(t)
	in := filepath.Join(root, "in")
	writeBundle(t, filepath.Join(in, "good"))
	os.MkdirAll(filepath.Join(in, "empty"), 0755)

	stdout, err := runCLI(t, "batch", in, "-o", filepath.Join(root, "out"))
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(stdout, "FAIL empty") || !strings.Contains(stdout, "ok   good") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestBatchCmdNoBundles(t *testing.T) {
	root := isolate(t)
	if _, err := runCLI(t, "batch", root, "-o", filepath.Join(root, "out")); err == nil {
		t.Fatal("expected error")
	}
}

func TestCatalogShowMissing(t *testing.T) {
	isolate(t)
	if _, err := runCLI(t, "catalog", "show", "nope"); err == nil {
		t.Fatal("expected not found")
	}
}

func TestCatalogNotConfigured(t *testing.T) {
	isolate(t)
	t.Setenv("JATSPKG_CATALOG", "")
	if _, err := runCLI(t, "catalog", "list"); err == nil {
		t.Fatal("expected error without catalog")
	}
}

func TestVersionCmd(t *testing.T) {
	isolate(t)
	stdout, err := runCLI(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, version) || !strings.Contains(stdout, catalog.DriverType()) {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestBadLogLevel(t *testing.T) {
	isolate(t)
	if _, err := runCLI(t, "--log-level", "loud", "version"); err == nil {
		t.Fatal("expected error for bad log level")
	}
}

func TestOrigin(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://repo.example.org/blobs", "https://repo.example.org"},
		{"http://localhost:8080", "http://localhost:8080"},
		{"/r/", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := origin(tt.in); got != tt.want {
			t.Errorf("origin(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
