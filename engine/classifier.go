package engine

import (
	"strings"

	"github.com/cbzify/cbzify/engine/document"
)

// Strategy selects how pages of a document are turned into images. The
// decision is document-level for PDFs: one classification applies to every
// page. EPUB pages are always extracted directly.
type Strategy string

const (
	// StrategyDCTExtract copies embedded JPEG bytes out of the PDF,
	// byte-identical to the source. Fastest and lossless, only safe when
	// pages are nothing but DCT rasters.
	StrategyDCTExtract Strategy = "dct_extract"
	// StrategyRenderPreserveText rasterizes every page because a text or
	// vector overlay was detected that direct extraction would lose.
	StrategyRenderPreserveText Strategy = "render_preserve_text"
	// StrategyRenderFallback rasterizes conservatively when pages are
	// neither provably overlay-free nor provably clean DCT composites.
	StrategyRenderFallback Strategy = "render_fallback"
	// StrategyEpubDirect reads the image embedded at the spine position.
	StrategyEpubDirect Strategy = "epub_direct"
)

// ClassificationResult is computed once per PDF from a bounded page sample
// and applied uniformly; it is never recomputed mid-job.
type ClassificationResult struct {
	Strategy     Strategy `json:"strategy"`
	SampledPages int      `json:"sampledPages"`
	DCTRatio     float64  `json:"dctImageRatio"`
	TextOverlay  bool     `json:"textOverlayDetected"`
}

// DefaultSampleSize is how many pages Classify inspects from the start of
// a document when the caller does not say otherwise.
const DefaultSampleSize = 3

// Text runs shorter than this are ignored by the overlay probe; page
// numbers and printer marks should not force every page through the
// renderer.
const minOverlayTextLen = 10

// pdfAnalyzer is the slice of the document surface the classifier needs.
type pdfAnalyzer interface {
	PageCount() int
	PageText(index int) (string, error)
	PageImages(index int) ([]document.EmbeddedImage, error)
}

// Classify inspects up to sampleSize pages from the start of a PDF and
// decides the extraction strategy for the whole document, in this
// precedence:
//
//  1. any sampled page with a text/vector overlay -> render, preserving text
//  2. every sampled page exactly one-or-more DCT rasters -> direct extraction
//  3. anything else -> conservative rendering
//
// Overlay detection dominates, so sampling stops early once one is found.
func Classify(doc pdfAnalyzer, sampleSize int) (ClassificationResult, error) {
	pageCount := doc.PageCount()
	if pageCount == 0 {
		return ClassificationResult{}, &DocumentAnalysisError{Err: errNoPages}
	}

	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	if sampleSize > pageCount {
		sampleSize = pageCount
	}

	var (
		sampled     int
		totalImages int
		dctImages   int
		allCleanDCT = true
	)

	for index := 0; index < sampleSize; index++ {
		sampled++

		text, err := doc.PageText(index)
		if err != nil {
			Logger.Debug("Text probe failed during analysis, treating page as unclassifiable", "page", index, "error", err)
			allCleanDCT = false
		} else if len(strings.TrimSpace(text)) >= minOverlayTextLen {
			// Rule 1 cannot be overridden by later pages; stop sampling.
			return ClassificationResult{
				Strategy:     StrategyRenderPreserveText,
				SampledPages: sampled,
				DCTRatio:     ratio(dctImages, totalImages),
				TextOverlay:  true,
			}, nil
		}

		images, err := doc.PageImages(index)
		if err != nil {
			Logger.Debug("Image census failed during analysis, treating page as unclassifiable", "page", index, "error", err)
			allCleanDCT = false
			continue
		}
		if len(images) == 0 {
			allCleanDCT = false
			continue
		}
		for _, img := range images {
			totalImages++
			if img.IsDCT() {
				dctImages++
			} else {
				allCleanDCT = false
			}
		}
	}

	result := ClassificationResult{
		SampledPages: sampled,
		DCTRatio:     ratio(dctImages, totalImages),
	}
	if allCleanDCT && totalImages > 0 {
		result.Strategy = StrategyDCTExtract
	} else {
		result.Strategy = StrategyRenderFallback
	}
	return result, nil
}

func ratio(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}
