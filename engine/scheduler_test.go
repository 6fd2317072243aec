package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/cbzify/cbzify/engine/document"
)

func TestRunPagesOrdering(t *testing.T) {
	for _, workers := range []int{1, 4, 16} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			const pageCount = 57
			extract := func(ctx context.Context, index int) (ExtractedPage, error) {
				return ExtractedPage{Index: index, Data: []byte{byte(index)}, Format: FormatJPEG}, nil
			}

			tracker := NewProgressTracker()
			tracker.Update(StageExtracting, 0, pageCount)
			pages, failed, err := runPages(context.Background(), pageCount, workers, extract, tracker)
			if err != nil {
				t.Fatalf("runPages: %v", err)
			}
			if len(failed) != 0 {
				t.Errorf("unexpected failures: %v", failed)
			}
			if len(pages) != pageCount {
				t.Fatalf("got %d pages, want %d", len(pages), pageCount)
			}
			for i, page := range pages {
				if page.Index != i {
					t.Fatalf("page at position %d has index %d", i, page.Index)
				}
			}
			if got := tracker.Snapshot().Current; got != pageCount {
				t.Errorf("tracker current = %d, want %d", got, pageCount)
			}
		})
	}
}

func TestRunPagesPerPageFailure(t *testing.T) {
	extract := func(ctx context.Context, index int) (ExtractedPage, error) {
		if index == 3 || index == 7 {
			return ExtractedPage{}, &PageExtractionError{Index: index, Err: errors.New("bad raster")}
		}
		return ExtractedPage{Index: index, Data: []byte("ok"), Format: FormatJPEG}, nil
	}

	tracker := NewProgressTracker()
	pages, failed, err := runPages(context.Background(), 10, 4, extract, tracker)
	if err != nil {
		t.Fatalf("page failures should not fail the run: %v", err)
	}
	if len(pages) != 8 {
		t.Errorf("got %d pages, want 8", len(pages))
	}
	if len(failed) != 2 {
		t.Fatalf("got %d failures, want 2", len(failed))
	}
	if failed[0].Index != 3 || failed[1].Index != 7 {
		t.Errorf("failures out of order: %v", failed)
	}
	// Successful pages skip over the failed indices without renumbering.
	for _, page := range pages {
		if page.Index == 3 || page.Index == 7 {
			t.Errorf("failed page %d present in results", page.Index)
		}
	}
}

func TestRunPagesFatalStopsClaiming(t *testing.T) {
	var calls int32
	extract := func(ctx context.Context, index int) (ExtractedPage, error) {
		atomic.AddInt32(&calls, 1)
		if index == 0 {
			return ExtractedPage{}, document.ErrClosed
		}
		return ExtractedPage{Index: index, Data: []byte("ok"), Format: FormatJPEG}, nil
	}

	_, _, err := runPages(context.Background(), 1000, 1, extract, NewProgressTracker())
	if err == nil {
		t.Fatal("expected fatal error")
	}
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected ConversionError, got %T", err)
	}
	if !errors.Is(convErr.Fatal, document.ErrClosed) {
		t.Errorf("fatal cause = %v, want %v", convErr.Fatal, document.ErrClosed)
	}
	// With one worker hitting the fatal error on its first page, the pool
	// must stop claiming work long before the end of the document.
	if n := atomic.LoadInt32(&calls); n > 2 {
		t.Errorf("workers kept claiming pages after fatal error: %d calls", n)
	}
}

func TestRunPagesCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	extract := func(ctx context.Context, index int) (ExtractedPage, error) {
		if err := ctx.Err(); err != nil {
			return ExtractedPage{}, err
		}
		return ExtractedPage{Index: index, Data: []byte("ok"), Format: FormatJPEG}, nil
	}

	_, _, err := runPages(ctx, 50, 4, extract, NewProgressTracker())
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected ConversionError, got %T", err)
	}
}
