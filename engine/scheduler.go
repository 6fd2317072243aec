package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/cbzify/cbzify/engine/document"
)

// MaxWorkers bounds the pool size independent of configuration, to protect
// host memory: every in-flight page holds a full decoded bitmap.
const MaxWorkers = 16

// extractFunc produces the encoded image for one page. It is a single
// bounded call, so a per-page timeout can be layered by the caller through
// the context without changing the worker contract.
type extractFunc func(ctx context.Context, index int) (ExtractedPage, error)

// runPages fans pageCount pages out across a fixed pool of workers. Each
// worker pulls the next unclaimed index, extracts, writes its result into
// its own slot and bumps the tracker. A page failure is recorded and the
// siblings carry on; a fatal condition (invalidated document handle,
// cancelled context) stops workers from claiming further pages, though
// in-flight pages still finish.
//
// The returned slice is dense and ordered by index, failed pages omitted;
// downstream consumers never observe out-of-order pages. The error list is
// ordered by index as well.
func runPages(ctx context.Context, pageCount, workers int, extract extractFunc, tracker *ProgressTracker) ([]ExtractedPage, []PageError, error) {
	if workers < 1 {
		workers = 1
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	if workers > pageCount {
		workers = pageCount
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// One slot per page: written by exactly one worker, read only after
	// the pool drains, so no locking beyond the final merge is needed.
	results := make([]*ExtractedPage, pageCount)
	pageErrs := make([]*PageError, pageCount)

	var fatalOnce sync.Once
	var fatal error

	indices := make(chan int)
	go func() {
		defer close(indices)
		for i := 0; i < pageCount; i++ {
			select {
			case indices <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range indices {
				page, err := extract(ctx, index)
				if err != nil {
					if isFatal(err) {
						fatalOnce.Do(func() {
							fatal = err
							cancel()
						})
						return
					}
					pageErrs[index] = &PageError{Index: index, Message: err.Error()}
					tracker.RecordError(index, err.Error())
					tracker.Increment()
					continue
				}
				results[index] = &page
				tracker.Increment()
			}
		}()
	}
	wg.Wait()

	var failed []PageError
	pages := make([]ExtractedPage, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		switch {
		case results[i] != nil:
			pages = append(pages, *results[i])
		case pageErrs[i] != nil:
			failed = append(failed, *pageErrs[i])
		}
	}

	if fatal != nil {
		return pages, failed, &ConversionError{FailedPages: failed, Fatal: fatal}
	}
	if err := ctx.Err(); err != nil {
		return pages, failed, &ConversionError{FailedPages: failed, Fatal: err}
	}
	return pages, failed, nil
}

// isFatal reports whether an extraction error invalidates the whole run
// rather than one page.
func isFatal(err error) bool {
	return errors.Is(err, document.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
