// Command jatspkg converts JATS articles and their file bundles into a
// package.json description and a semantic HTML rendering.
package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/alecthomas/kong"
	json "github.com/goccy/go-json"

	"github.com/FocuswithJustin/jatspkg/core/cas"
	"github.com/FocuswithJustin/jatspkg/core/convert"
	"github.com/FocuswithJustin/jatspkg/internal/api"
	"github.com/FocuswithJustin/jatspkg/internal/archive"
	"github.com/FocuswithJustin/jatspkg/internal/catalog"
	"github.com/FocuswithJustin/jatspkg/internal/config"
	"github.com/FocuswithJustin/jatspkg/internal/logging"
	"github.com/FocuswithJustin/jatspkg/internal/probe"
)

const version = "0.4.0"

// CLI defines the command-line interface.
type CLI struct {
	Config    string `help:"Config file (default: XDG config dir, jatspkg/config.yml)" type:"path"`
	EnvFile   string `name:"env-file" help:"Dotenv file with JATSPKG_* settings" default:".env" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" help:"Log format (json, text)"`

	Convert ConvertCmd   `cmd:"" help:"Convert one article bundle"`
	Extract ExtractCmd   `cmd:"" help:"Print the metadata record of an article XML file"`
	Batch   BatchCmd     `cmd:"" help:"Convert every bundle under a directory"`
	Serve   ServeCmd     `cmd:"" help:"Start the REST API server"`
	Catalog CatalogGroup `cmd:"" help:"Query the conversion catalog"`
	Version VersionCmd   `cmd:"" help:"Print version information"`
}

// env is what every command runs with.
type env struct {
	ctx context.Context
	cfg *config.Config
	out io.Writer
}

// ConverterFlags are shared by the converting commands.
type ConverterFlags struct {
	BaseURL string `name:"base-url" help:"Prefix of content-hash links (overrides config)"`
	NoStore bool   `name:"no-store" help:"Hash resources without storing blobs"`
	NoProbe bool   `name:"no-probe" help:"Skip measuring image dimensions and page counts"`
}

func (f ConverterFlags) options(e *env) (convert.Options, error) {
	opts := convert.Options{
		BaseURL:         e.cfg.BaseURL,
		Unpacker:        unpacker(e.cfg),
		DigestCacheSize: e.cfg.DigestCacheSize,
	}
	if f.BaseURL != "" {
		opts.BaseURL = f.BaseURL
	}
	if !f.NoProbe {
		opts.Prober = probe.New()
	}
	if !f.NoStore && e.cfg.StoreDir != "" {
		store, err := cas.NewStore(e.cfg.StoreDir)
		if err != nil {
			return opts, err
		}
		opts.Store = store
	}
	return opts, nil
}

func unpacker(cfg *config.Config) archive.Unpacker {
	return archive.Unpacker{MaxBytes: cfg.MaxUnpackBytes, MaxEntries: cfg.MaxUnpackFiles}
}

// openCatalog returns nil when no catalog is configured.
func openCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Catalog), 0755); err != nil {
		return nil, err
	}
	return catalog.Open(cfg.Catalog)
}

// record stores e, logging rather than failing when the catalog is down.
func record(ctx context.Context, cat *catalog.Catalog, e catalog.Entry) {
	if cat == nil {
		return
	}
	if err := cat.Record(ctx, e); err != nil {
		logging.WarnContext(ctx, "catalog record failed", "article_id", e.ArticleID, "error", err)
	}
}

// ConvertCmd converts one bundle.
type ConvertCmd struct {
	Bundle    string `arg:"" help:"Directory of extracted article files" type:"existingdir"`
	ArticleID string `name:"article-id" short:"a" help:"Archive-assigned article id (default: bundle directory name)"`
	XML       string `name:"xml" help:"Article XML (default: the only .xml in the bundle)" type:"existingfile"`
	Out       string `short:"o" required:"" help:"Output directory for package.json and index.html" type:"path"`
	ConverterFlags `embed:""`
}

func (c *ConvertCmd) Run(e *env) error {
	id := c.ArticleID
	if id == "" {
		id = filepath.Base(c.Bundle)
	}
	opts, err := c.options(e)
	if err != nil {
		return err
	}
	cat, err := openCatalog(e.cfg)
	if err != nil {
		return err
	}
	if cat != nil {
		defer cat.Close()
	}

	res, err := convert.New(opts).Convert(e.ctx, convert.Input{ArticleID: id, BundleDir: c.Bundle, XMLPath: c.XML})
	if err == nil {
		err = convert.WriteOutputs(res, c.Out)
	}
	if err != nil {
		record(e.ctx, cat, catalog.Failed(id, err))
		return err
	}
	record(e.ctx, cat, catalog.Succeeded(id, c.Out, res))
	fmt.Fprintf(e.out, "%s: %s, %d resources -> %s\n", id, res.Package.Name, len(res.Package.All()), c.Out)
	return nil
}

// ExtractCmd prints the metadata record.
type ExtractCmd struct {
	XML       string `arg:"" help:"Article XML file" type:"existingfile"`
	ArticleID string `name:"article-id" short:"a" help:"Archive-assigned article id (default: file stem)"`
}

func (c *ExtractCmd) Run(e *env) error {
	id := c.ArticleID
	if id == "" {
		base := filepath.Base(c.XML)
		id = strings.TrimSuffix(base, filepath.Ext(base))
	}
	rec, err := convert.ExtractFile(c.XML, id)
	if err != nil {
		return err
	}
	return printJSON(e.out, rec)
}

// BatchCmd converts every subdirectory of Root.
type BatchCmd struct {
	Root    string `arg:"" help:"Directory holding one bundle directory per article" type:"existingdir"`
	Out     string `short:"o" required:"" help:"Output root; each article gets <out>/<article-id>" type:"path"`
	Workers int    `short:"j" help:"Concurrent conversions (default: config, else GOMAXPROCS)"`
	ConverterFlags `embed:""`
}

func (c *BatchCmd) Run(e *env) error {
	entries, err := os.ReadDir(c.Root)
	if err != nil {
		return err
	}
	var jobs []convert.Job
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		jobs = append(jobs, convert.Job{
			Input:  convert.Input{ArticleID: ent.Name(), BundleDir: filepath.Join(c.Root, ent.Name())},
			OutDir: filepath.Join(c.Out, ent.Name()),
		})
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no bundle directories under %s", c.Root)
	}

	opts, err := c.options(e)
	if err != nil {
		return err
	}
	cat, err := openCatalog(e.cfg)
	if err != nil {
		return err
	}
	if cat != nil {
		defer cat.Close()
	}

	workers := c.Workers
	if workers == 0 {
		workers = e.cfg.Workers
	}
	failed := 0
	for _, o := range convert.New(opts).Batch(e.ctx, jobs, workers) {
		id := o.Job.Input.ArticleID
		if o.Err != nil {
			failed++
			record(e.ctx, cat, catalog.Failed(id, o.Err))
			fmt.Fprintf(e.out, "FAIL %s: %v\n", id, o.Err)
			continue
		}
		record(e.ctx, cat, catalog.Succeeded(id, o.Job.OutDir, o.Result))
		fmt.Fprintf(e.out, "ok   %s: %s\n", id, o.Result.Package.Name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d conversions failed", failed, len(jobs))
	}
	return nil
}

// ServeCmd starts the API server.
type ServeCmd struct {
	Addr    string `help:"Listen address (overrides config)"`
	WorkDir string `name:"work-dir" help:"Job directory (overrides config)" type:"path"`
	ConverterFlags `embed:""`
}

func (c *ServeCmd) Run(e *env) error {
	sc := e.cfg.Server
	if c.Addr != "" {
		sc.Addr = c.Addr
	}
	if c.WorkDir != "" {
		sc.WorkDir = c.WorkDir
	}
	opts, err := c.options(e)
	if err != nil {
		return err
	}
	cat, err := openCatalog(e.cfg)
	if err != nil {
		return err
	}
	if cat != nil {
		defer cat.Close()
	}

	srv, err := api.New(api.Config{
		Addr:           sc.Addr,
		WorkDir:        sc.WorkDir,
		APIKey:         sc.APIKey,
		RateLimit:      sc.RateLimit,
		RateBurst:      sc.RateBurst,
		MaxUploadBytes: sc.MaxUploadBytes,
		AllowedOrigins: sc.AllowedOrigins,
		BlobHost:       origin(opts.BaseURL),
	}, opts, cat)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(e.ctx)
}

// origin returns scheme://host of u, or "" when u is not absolute.
func origin(u string) string {
	p, err := url.Parse(u)
	if err != nil || p.Scheme == "" || p.Host == "" {
		return ""
	}
	return p.Scheme + "://" + p.Host
}

// CatalogGroup queries the conversion catalog.
type CatalogGroup struct {
	List CatalogListCmd `cmd:"" help:"List catalogued conversions"`
	Show CatalogShowCmd `cmd:"" help:"Show one article's latest conversion"`
}

// CatalogListCmd lists entries.
type CatalogListCmd struct {
	Status string `help:"Only entries with this status (ok, failed)"`
	Limit  int    `short:"n" help:"Maximum entries (0 = all)" default:"50"`
	JSON   bool   `name:"json" help:"Print JSON instead of a table"`
}

func (c *CatalogListCmd) Run(e *env) error {
	cat, err := requireCatalog(e.cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	entries, err := cat.List(e.ctx, c.Status, c.Limit)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(e.out, entries)
	}
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ARTICLE\tSTATUS\tPACKAGE\tRESOURCES\tCONVERTED")
	for _, en := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", en.ArticleID, en.Status, en.Package, en.Resources,
			en.ConvertedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

// CatalogShowCmd prints one entry.
type CatalogShowCmd struct {
	ArticleID string `arg:"" name:"article-id" help:"Article id"`
}

func (c *CatalogShowCmd) Run(e *env) error {
	cat, err := requireCatalog(e.cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	en, err := cat.Get(e.ctx, c.ArticleID)
	if err != nil {
		return err
	}
	return printJSON(e.out, en)
}

func requireCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog == "" {
		return nil, fmt.Errorf("no catalog configured (set catalog in %s or JATSPKG_CATALOG)", config.Path())
	}
	return openCatalog(cfg)
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(e *env) error {
	fmt.Fprintf(e.out, "jatspkg version %s (sqlite %s)\n", version, catalog.DriverType())
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// run parses args and executes the selected command.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("jatspkg"),
		kong.Description("Convert JATS articles into package descriptions and semantic HTML"),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(cli.Config, cli.EnvFile)
	if err != nil {
		return err
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.LogFormat = cli.LogFormat
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		return err
	}
	logging.Init(stderr, level, format)

	return kctx.Run(&env{ctx: ctx, cfg: cfg, out: stdout})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "jatspkg: %v\n", err)
		stop()
		os.Exit(1)
	}
}
