package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/cbzify/cbzify/engine/document"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger = slog.Default()

const (
	DefaultWorkers = 4
	DefaultDPI     = 300
	DefaultQuality = 95
)

// Options control one conversion run. Zero values are replaced with the
// defaults by normalize, so a literal Options{} behaves like
// DefaultOptions().
type Options struct {
	// Workers is the extraction pool size, clamped to [1, MaxWorkers].
	Workers int
	// DPI is the rasterization density for rendered pages.
	DPI int
	// Format is the output image format for re-encoded pages.
	Format Format
	// Quality is the lossy encoder quality in [1, 100]. Ignored for PNG.
	Quality int
	// SampleSize is how many pages the classifier inspects.
	SampleSize int
	// SkipChecks bypasses classification entirely and forces conservative
	// rendering for every page.
	SkipChecks bool
	// SkipExisting makes bulk runs leave targets alone when the CBZ is
	// already present.
	SkipExisting bool
	// MaxPageFailures fails the run once more than this many pages error.
	// Zero means any number of page failures is tolerated as long as at
	// least one page succeeds.
	MaxPageFailures int
	// FailOnAnyPageError fails the run on the first page error instead of
	// packaging partial output.
	FailOnAnyPageError bool
}

// tolerates reports whether a run that lost failedCount pages may still
// package the pages that succeeded.
func (o Options) tolerates(failedCount int) bool {
	if failedCount == 0 {
		return true
	}
	if o.FailOnAnyPageError {
		return false
	}
	if o.MaxPageFailures > 0 && failedCount > o.MaxPageFailures {
		return false
	}
	return true
}

// DefaultOptions returns the settings a plain invocation runs with.
func DefaultOptions() Options {
	return Options{
		Workers:    DefaultWorkers,
		DPI:        DefaultDPI,
		Format:     FormatJPEG,
		Quality:    DefaultQuality,
		SampleSize: DefaultSampleSize,
	}
}

func (o Options) normalize() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Workers > MaxWorkers {
		o.Workers = MaxWorkers
	}
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	if o.Format == "" {
		o.Format = FormatJPEG
	}
	if o.Quality <= 0 {
		o.Quality = DefaultQuality
	}
	if o.SampleSize <= 0 {
		o.SampleSize = DefaultSampleSize
	}
	return o
}

// Result summarizes a finished conversion.
type Result struct {
	Source         string               `json:"source"`
	Dest           string               `json:"dest"`
	Kind           document.Kind        `json:"kind"`
	Classification ClassificationResult `json:"classification"`
	TotalPages     int                  `json:"totalPages"`
	WrittenPages   int                  `json:"writtenPages"`
	FailedPages    []PageError          `json:"failedPages,omitempty"`
	ArchiveBytes   int64                `json:"archiveBytes"`
}

// DefaultDest derives the CBZ path for a source document: same directory,
// same base name, .cbz extension.
func DefaultDest(source string) string {
	ext := filepath.Ext(source)
	return strings.TrimSuffix(source, ext) + ".cbz"
}

// Convert runs the whole pipeline for one document: detect the container,
// classify (PDFs only), extract pages across the worker pool and package
// the CBZ. The tracker, when non-nil, is updated live and is safe to poll
// from other goroutines; pass nil when nobody is watching.
//
// Individual page failures do not abort the run. The run fails when the
// document cannot be opened or analyzed, when every page fails, when the
// failure count exceeds Options.MaxPageFailures, or when packaging fails.
// On failure no archive is left at dest.
func Convert(ctx context.Context, source, dest string, opts Options, tracker *ProgressTracker) (*Result, error) {
	opts = opts.normalize()
	if tracker == nil {
		tracker = NewProgressTracker()
	}
	if dest == "" {
		dest = DefaultDest(source)
	}

	res, err := convert(ctx, source, dest, opts, tracker)
	if err != nil {
		snapshot := tracker.Snapshot()
		tracker.Update(StageFailed, snapshot.Current, snapshot.Total)
		return res, err
	}
	tracker.Update(StageDone, res.TotalPages, res.TotalPages)
	return res, nil
}

func convert(ctx context.Context, source, dest string, opts Options, tracker *ProgressTracker) (*Result, error) {
	kind, err := document.DetectKind(source)
	if err != nil {
		return nil, &DocumentAnalysisError{Path: source, Err: err}
	}

	result := &Result{Source: source, Dest: dest, Kind: kind}
	tracker.Update(StageAnalyzing, 0, 0)

	var pages []ExtractedPage
	var failed []PageError

	switch kind {
	case document.KindPDF:
		pages, failed, err = convertPDF(ctx, source, opts, tracker, result)
	case document.KindEPUB:
		pages, failed, err = convertEPUB(ctx, source, opts, tracker, result)
	default:
		return nil, &DocumentAnalysisError{Path: source, Err: fmt.Errorf("unsupported document kind %q", kind)}
	}
	if err != nil {
		return result, err
	}

	result.FailedPages = failed
	if len(pages) == 0 {
		return result, &ConversionError{FailedPages: failed}
	}
	if !opts.tolerates(len(failed)) {
		return result, &ConversionError{FailedPages: failed}
	}

	tracker.Update(StagePackaging, result.TotalPages, result.TotalPages)
	size, err := writeArchive(pages, result.TotalPages, dest)
	if err != nil {
		return result, err
	}
	result.WrittenPages = len(pages)
	result.ArchiveBytes = size

	Logger.Info("Conversion finished",
		"source", source,
		"dest", dest,
		"strategy", result.Classification.Strategy,
		"pages", result.WrittenPages,
		"failed", len(failed),
		"bytes", size)
	return result, nil
}

// classifyDocument picks the extraction strategy for a PDF. SkipChecks
// bypasses analysis entirely and forces conservative rendering.
func classifyDocument(doc pdfAnalyzer, opts Options) (ClassificationResult, error) {
	if opts.SkipChecks {
		return ClassificationResult{Strategy: StrategyRenderFallback}, nil
	}
	return Classify(doc, opts.SampleSize)
}

func convertPDF(ctx context.Context, source string, opts Options, tracker *ProgressTracker, result *Result) ([]ExtractedPage, []PageError, error) {
	doc, err := document.OpenPDF(source)
	if err != nil {
		return nil, nil, &DocumentAnalysisError{Path: source, Err: err}
	}
	defer doc.Close()

	pageCount := doc.PageCount()
	if pageCount == 0 {
		return nil, nil, &DocumentAnalysisError{Path: source, Err: errNoPages}
	}
	result.TotalPages = pageCount

	result.Classification, err = classifyDocument(doc, opts)
	if err != nil {
		return nil, nil, err
	}
	Logger.Debug("Document classified",
		"source", source,
		"strategy", result.Classification.Strategy,
		"sampledPages", result.Classification.SampledPages,
		"dctRatio", result.Classification.DCTRatio)

	strategy := result.Classification.Strategy
	tracker.Update(StageExtracting, 0, pageCount)

	extract := func(ctx context.Context, index int) (ExtractedPage, error) {
		if err := ctx.Err(); err != nil {
			return ExtractedPage{}, err
		}
		page, err := extractPDFPage(doc, PageDescriptor{Index: index, Strategy: strategy}, opts)
		if err != nil && !isFatal(err) {
			return ExtractedPage{}, &PageExtractionError{Index: index, Err: err}
		}
		return page, err
	}
	return runPages(ctx, pageCount, opts.Workers, extract, tracker)
}

func convertEPUB(ctx context.Context, source string, opts Options, tracker *ProgressTracker, result *Result) ([]ExtractedPage, []PageError, error) {
	book, err := document.OpenEPUB(source)
	if err != nil {
		return nil, nil, &DocumentAnalysisError{Path: source, Err: err}
	}
	defer book.Close()

	pageCount := book.PageCount()
	if pageCount == 0 {
		return nil, nil, &DocumentAnalysisError{Path: source, Err: errNoPages}
	}
	result.TotalPages = pageCount
	result.Classification = ClassificationResult{Strategy: StrategyEpubDirect}

	tracker.Update(StageExtracting, 0, pageCount)

	extract := func(ctx context.Context, index int) (ExtractedPage, error) {
		if err := ctx.Err(); err != nil {
			return ExtractedPage{}, err
		}
		page, err := extractEPUBPage(book, index, opts)
		if err != nil && !isFatal(err) {
			return ExtractedPage{}, &PageExtractionError{Index: index, Err: err}
		}
		return page, err
	}
	return runPages(ctx, pageCount, opts.Workers, extract, tracker)
}
