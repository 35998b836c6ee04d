package render

import (
	"context"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/FocuswithJustin/jatspkg/core/cache"
	"github.com/FocuswithJustin/jatspkg/core/cas"
	"github.com/FocuswithJustin/jatspkg/core/errors"
	"github.com/FocuswithJustin/jatspkg/core/resource"
	"github.com/FocuswithJustin/jatspkg/internal/archive"
	"github.com/FocuswithJustin/jatspkg/internal/logging"
)

// resourceLink returns the link for a package resource: its remote URL if
// it declares one, else the content-hash link of its primary encoding.
func (r *Renderer) resourceLink(ctx context.Context, res *resource.Resource) (string, error) {
	if u := res.RemoteURL(); u != "" {
		return u, nil
	}
	if e, ok := res.PrimaryPath(); ok {
		return r.hashLink(ctx, res, e)
	}
	for _, e := range res.Encoding {
		if e.Content != "" {
			return r.inlineLink(ctx, res, e)
		}
	}
	return "", errors.NewUnresolved(string(res.Kind), res.Name)
}

// hashLink digests one local encoding. Datasets and directory bundles are
// hashed over their compressed form, which is how they are distributed.
func (r *Renderer) hashLink(ctx context.Context, res *resource.Resource, e resource.Encoding) (string, error) {
	abs := e.Local(r.root)
	key := cache.DigestKey{Path: abs, Mode: cache.DigestRaw}
	produce := cas.FileProducer(abs)
	switch {
	case e.Bundle:
		key.Mode = cache.DigestCompressed
		produce = func(w io.Writer) error { return archive.WriteTarGz(w, abs, filepath.Base(abs)) }
	case res.Kind == resource.KindDataset:
		key.Mode = cache.DigestCompressed
		produce = func(w io.Writer) error { return archive.WriteGzip(w, abs) }
	}

	digest, err := r.digest(ctx, key, produce)
	if err != nil {
		return "", errors.NewIO("digest", e.ContentPath, err)
	}
	return r.blobURL(digest), nil
}

// inlineLink digests an inline table encoding, compressed like any other
// dataset.
func (r *Renderer) inlineLink(ctx context.Context, res *resource.Resource, e resource.Encoding) (string, error) {
	key := cache.DigestKey{Path: "inline:" + res.Name, Mode: cache.DigestCompressed}
	digest, err := r.digest(ctx, key, func(w io.Writer) error {
		return archive.GzipStream(w, strings.NewReader(e.Content))
	})
	if err != nil {
		return "", errors.NewIO("digest", res.Name, err)
	}
	return r.blobURL(digest), nil
}

func (r *Renderer) digest(ctx context.Context, key cache.DigestKey, p cas.Producer) (string, error) {
	return r.digests.Do(key, func() (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		var digest string
		if r.store != nil {
			res, err := r.store.Put(p)
			if err != nil {
				return "", err
			}
			digest = res.SHA256
		} else {
			d, err := cas.Digest(p)
			if err != nil {
				return "", err
			}
			digest = d
		}
		logging.DebugContext(ctx, "resource digested", "path", key.Path, "mode", key.Mode, "digest", digest)
		return digest, nil
	})
}

func (r *Renderer) blobURL(digest string) string {
	return strings.TrimSuffix(r.base, "/") + "/r/" + digest
}

// dataURL reads a local encoding and returns it as a base64 data URL.
func (r *Renderer) dataURL(e resource.Encoding) (string, error) {
	data, err := os.ReadFile(e.Local(r.root))
	if err != nil {
		return "", errors.NewIO("read", e.ContentPath, err)
	}
	format := e.EncodingFormat
	if format == "" {
		format = "application/octet-stream"
	}
	return "data:" + format + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// imageEncoding returns the first encoding of res in one of formats.
func imageEncoding(res *resource.Resource, formats ...string) (resource.Encoding, bool) {
	for _, e := range res.Encoding {
		for _, f := range formats {
			if e.EncodingFormat == f {
				return e, true
			}
		}
	}
	return resource.Encoding{}, false
}

// embedHref resolves an inline image href to a data URL of the encoding it
// names. Remote hrefs are returned unchanged and must be escaped by the
// caller.
func (r *Renderer) embedHref(href string) (string, error) {
	if href == "" {
		return "", errors.NewUnresolved("inline-graphic", href)
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href, nil
	}
	_, e, ok := r.pkg.ByPath(href)
	if !ok {
		return "", errors.NewUnresolved("inline-graphic", href)
	}
	return r.dataURL(e)
}
