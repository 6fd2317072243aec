package engine

import (
	"errors"
	"fmt"
	"strings"
)

var errNoPages = errors.New("document has no pages")

// DocumentAnalysisError means the source could not be opened or parsed at
// all. It is fatal and aborts before any worker starts.
type DocumentAnalysisError struct {
	Path string
	Err  error
}

func (e *DocumentAnalysisError) Error() string {
	return fmt.Sprintf("unable to analyze %s: %v", e.Path, e.Err)
}

func (e *DocumentAnalysisError) Unwrap() error { return e.Err }

// PageExtractionError records a single failed page. It is caught at the
// worker boundary and never unwinds past the scheduler.
type PageExtractionError struct {
	Index int
	Err   error
}

func (e *PageExtractionError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Index, e.Err)
}

func (e *PageExtractionError) Unwrap() error { return e.Err }

// ConversionError aggregates everything that went wrong during a run: the
// pages that failed, and the fatal cause if one cancelled the job.
type ConversionError struct {
	FailedPages []PageError
	Fatal       error
}

func (e *ConversionError) Error() string {
	var b strings.Builder
	if e.Fatal != nil {
		fmt.Fprintf(&b, "conversion aborted: %v", e.Fatal)
		if len(e.FailedPages) > 0 {
			fmt.Fprintf(&b, "; %d page(s) had already failed", len(e.FailedPages))
		}
		return b.String()
	}
	fmt.Fprintf(&b, "conversion failed on %d page(s):", len(e.FailedPages))
	for i, pe := range e.FailedPages {
		if i == 5 {
			fmt.Fprintf(&b, " and %d more", len(e.FailedPages)-i)
			break
		}
		fmt.Fprintf(&b, " [%d] %s;", pe.Index, pe.Message)
	}
	return strings.TrimSuffix(b.String(), ";")
}

func (e *ConversionError) Unwrap() error { return e.Fatal }

// PackagingError means the archive could not be finalized. Any partial
// output file has already been removed when this surfaces.
type PackagingError struct {
	Dest string
	Err  error
}

func (e *PackagingError) Error() string {
	return fmt.Sprintf("unable to create CBZ %s: %v", e.Dest, e.Err)
}

func (e *PackagingError) Unwrap() error { return e.Err }
