// Package document adapts the underlying PDF and EPUB libraries to the
// narrow surface the conversion engine needs: page counts, page text,
// embedded raster objects and page rendering. Library quirks stay here.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrClosed is returned when a page operation hits a document whose handle
// has already been released. The scheduler treats it as fatal.
var ErrClosed = errors.New("document is closed")

// Logger is global since we will need it everywhere
var Logger *slog.Logger = slog.Default()

// Kind identifies the source document container format.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindEPUB Kind = "epub"
)

var pdfHeader = []byte("%PDF")
var zipHeader = []byte("PK\x03\x04")

// DetectKind determines whether a file is a PDF or an EPUB. The extension
// is checked first; unknown extensions fall back to header sniffing.
func DetectKind(path string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return KindPDF, nil
	case ".epub":
		return KindEPUB, nil
	}

	header := make([]byte, 10)
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("unable to read file header: %w", err)
	}
	defer file.Close()
	n, err := file.Read(header)
	if err != nil {
		return "", fmt.Errorf("unable to read file header: %w", err)
	}
	header = header[:n]

	if bytes.HasPrefix(header, pdfHeader) {
		return KindPDF, nil
	}
	if bytes.HasPrefix(header, zipHeader) {
		// A bare zip could be many things; EPUB is the only zip container
		// we accept, and OpenEPUB rejects archives without an OPF package.
		return KindEPUB, nil
	}
	return "", fmt.Errorf("unable to determine file type for %s", filepath.Base(path))
}

// EmbeddedImage is one raster object extracted from a document page.
type EmbeddedImage struct {
	Data   []byte
	Format string // "jpg", "png", "gif", "webp", "tiff", ...
}

// IsDCT reports whether the raster is JPEG-family (DCT) encoded and can be
// copied out of the source verbatim.
func (e EmbeddedImage) IsDCT() bool {
	return e.Format == "jpg" || e.Format == "jpeg"
}
