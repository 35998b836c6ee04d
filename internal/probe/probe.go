// Package probe measures resource encodings on disk: pixel dimensions for
// images and page counts for PDF documents.
package probe

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/FocuswithJustin/jatspkg/core/resource"
)

// Prober implements resource.Prober.
type Prober struct{}

// New returns a Prober.
func New() Prober { return Prober{} }

// Probe reads just enough of the file to measure it. Formats without a
// registered decoder return a zero Measure and no error.
func (Prober) Probe(path, format string) (resource.Measure, error) {
	switch {
	case format == "application/pdf":
		n, err := PageCount(path)
		if err != nil {
			return resource.Measure{}, err
		}
		return resource.Measure{Pages: n}, nil
	case strings.HasPrefix(format, "image/") && format != "image/svg+xml" && format != "image/x-eps":
		w, h, err := Dimensions(path)
		if err != nil {
			return resource.Measure{}, err
		}
		return resource.Measure{Width: w, Height: h}, nil
	}
	return resource.Measure{}, nil
}

// Dimensions decodes an image header. JPEG, PNG, GIF, TIFF, BMP and WebP
// are supported.
func Dimensions(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image header %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// PageCount returns the number of pages in a PDF.
func PageCount(path string) (int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()
	return r.NumPage(), nil
}

var _ resource.Prober = Prober{}
