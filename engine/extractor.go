package engine

import (
	"bytes"
	"fmt"
	"image"

	"github.com/cbzify/cbzify/engine/document"

	// Register stdlib decoders for embedded-image re-encoding.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// PageDescriptor names one unit of extraction work: a 0-based page index
// and the strategy chosen for the document it belongs to.
type PageDescriptor struct {
	Index    int
	Strategy Strategy
}

// ExtractedPage is the encoded result for one page. It is produced by
// exactly one worker and immutable afterwards; Index is the ordering key.
type ExtractedPage struct {
	Index  int
	Data   []byte
	Format Format
}

// pdfExtractor is the slice of the document surface the per-page hot path
// needs.
type pdfExtractor interface {
	PageImages(index int) ([]document.EmbeddedImage, error)
	RenderPage(index int, dpi int) (image.Image, error)
}

// extractPDFPage produces one encoded image for a PDF page, dispatching on
// the strategy tag. Failures are reported per page and never abort
// siblings; the caller wraps them into PageExtractionError.
func extractPDFPage(doc pdfExtractor, desc PageDescriptor, opts Options) (ExtractedPage, error) {
	switch desc.Strategy {
	case StrategyDCTExtract:
		return extractEmbedded(doc, desc, opts)
	case StrategyRenderPreserveText, StrategyRenderFallback:
		return renderPage(doc, desc.Index, opts)
	}
	return ExtractedPage{}, fmt.Errorf("strategy %q not valid for PDF pages", desc.Strategy)
}

// extractEmbedded pulls the page's embedded raster. A page holding exactly
// one DCT raster is copied verbatim when the requested output is JPEG at
// no reduced quality; anything else is re-encoded, and a page needing more
// than one raster is demoted to rendering. The demotion is per page, never
// a reclassification of the document.
func extractEmbedded(doc pdfExtractor, desc PageDescriptor, opts Options) (ExtractedPage, error) {
	images, err := doc.PageImages(desc.Index)
	if err != nil {
		return ExtractedPage{}, err
	}
	if len(images) != 1 {
		Logger.Debug("Page is not a single raster, rendering instead", "page", desc.Index, "rasters", len(images))
		return renderPage(doc, desc.Index, opts)
	}

	src := images[0]
	if src.IsDCT() && opts.Format == FormatJPEG && opts.Quality >= DefaultQuality {
		return ExtractedPage{Index: desc.Index, Data: src.Data, Format: FormatJPEG}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(src.Data))
	if err != nil {
		return ExtractedPage{}, fmt.Errorf("decode embedded %s image: %w", src.Format, err)
	}
	data, err := EncodeImage(img, opts.Format, opts.Quality)
	if err != nil {
		return ExtractedPage{}, err
	}
	return ExtractedPage{Index: desc.Index, Data: data, Format: opts.Format}, nil
}

// renderPage rasterizes the page at the requested DPI (the adapter maps
// DPI to a scale factor against the page's native point size) and encodes
// the full bitmap, vector and text content included.
func renderPage(doc pdfExtractor, index int, opts Options) (ExtractedPage, error) {
	img, err := doc.RenderPage(index, opts.DPI)
	if err != nil {
		return ExtractedPage{}, err
	}
	data, err := EncodeImage(img, opts.Format, opts.Quality)
	if err != nil {
		return ExtractedPage{}, err
	}
	return ExtractedPage{Index: index, Data: data, Format: opts.Format}, nil
}

// epubSource is the slice of the EPUB surface page extraction needs.
type epubSource interface {
	PageImage(index int) ([]byte, string, error)
}

// extractEPUBPage reads the image at a spine position. Bytes pass through
// verbatim when the source format already matches the requested one;
// otherwise the image is re-encoded with dimensions preserved exactly.
func extractEPUBPage(book epubSource, index int, opts Options) (ExtractedPage, error) {
	data, srcFormat, err := book.PageImage(index)
	if err != nil {
		return ExtractedPage{}, err
	}

	if sameFormat(srcFormat, opts.Format) {
		return ExtractedPage{Index: index, Data: data, Format: opts.Format}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// Formats we cannot decode (rare vendor types) pass through with
		// their source extension rather than dropping the page.
		Logger.Warn("Unable to decode EPUB image, passing through unchanged", "page", index, "format", srcFormat, "error", err)
		return ExtractedPage{Index: index, Data: data, Format: Format(srcFormat)}, nil
	}
	encoded, err := EncodeImage(img, opts.Format, opts.Quality)
	if err != nil {
		return ExtractedPage{}, err
	}
	return ExtractedPage{Index: index, Data: encoded, Format: opts.Format}, nil
}

func sameFormat(src string, requested Format) bool {
	if src == "jpeg" {
		src = "jpg"
	}
	return src == string(requested)
}
