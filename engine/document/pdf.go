package document

import (
	"fmt"
	"image"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	ledongthuc "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDF is an opened PDF source document. One handle is shared by all workers
// of a conversion run; the underlying go-fitz document is not safe for
// concurrent use, so every handle access is serialised behind mu. Decoding
// and encoding of the returned data happens outside the lock.
type PDF struct {
	path string

	mu     sync.Mutex
	fz     *fitz.Document
	ctx    *model.Context
	reader *ledongthuc.Reader
	file   io.Closer
	closed bool
}

// OpenPDF opens a PDF for conversion. The go-fitz handle does the
// rendering, the pdfcpu context serves the embedded-image census, and the
// ledongthuc reader is the primary text probe (it fails on some files; a
// nil reader just means text probes go through go-fitz instead).
func OpenPDF(path string) (*PDF, error) {
	fz, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}

	ctx, err := api.ReadContextFile(path)
	if err != nil {
		fz.Close()
		return nil, fmt.Errorf("unable to parse PDF structure: %w", err)
	}

	doc := &PDF{path: path, fz: fz, ctx: ctx}

	file, reader, err := ledongthuc.Open(path)
	if err != nil {
		Logger.Debug("Text-extraction reader rejected PDF, falling back to renderer text", "path", path, "error", err)
	} else {
		doc.file = file
		doc.reader = reader
	}

	return doc, nil
}

// Path returns the path the document was opened from.
func (p *PDF) Path() string {
	return p.path
}

// PageCount returns the number of pages in the document.
func (p *PDF) PageCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0
	}
	return p.fz.NumPage()
}

// PageText returns the plain text content of a 0-based page. The dedicated
// text-extraction library is tried first; pages it cannot handle fall back
// to the renderer's text extraction.
func (p *PDF) PageText(index int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}

	if text, ok := p.plainText(index); ok {
		return text, nil
	}

	text, err := p.fz.Text(index)
	if err != nil {
		return "", fmt.Errorf("unable to extract text from page %d: %w", index, err)
	}
	return text, nil
}

// plainText probes the dedicated text-extraction reader for a 0-based
// page. The library panics on some malformed files, so a recovered panic
// counts the same as a miss and the renderer's text extraction takes over.
func (p *PDF) plainText(index int) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Debug("Text-extraction reader panicked, falling back to renderer text", "page", index, "panic", r)
			ok = false
		}
	}()

	if p.reader == nil || index >= p.reader.NumPage() {
		return "", false
	}
	page := p.reader.Page(index + 1) // 1-based
	if page.V.IsNull() {
		return "", false
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		Logger.Debug("Plain-text probe failed, falling back to renderer text", "page", index, "error", err)
		return "", false
	}
	return text, true
}

// PageImages returns the raster objects embedded on a 0-based page, in
// object-number order.
func (p *PDF) PageImages(index int) ([]EmbeddedImage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	extracted, err := pdfcpu.ExtractPageImages(p.ctx, index+1, false)
	if err != nil {
		return nil, fmt.Errorf("unable to extract images from page %d: %w", index, err)
	}

	objNrs := make([]int, 0, len(extracted))
	for objNr := range extracted {
		objNrs = append(objNrs, objNr)
	}
	sort.Ints(objNrs)

	images := make([]EmbeddedImage, 0, len(extracted))
	for _, objNr := range objNrs {
		img := extracted[objNr]
		data, err := io.ReadAll(img)
		if err != nil {
			return nil, fmt.Errorf("unable to read image object %d on page %d: %w", objNr, index, err)
		}
		images = append(images, EmbeddedImage{
			Data:   data,
			Format: strings.ToLower(img.FileType),
		})
	}
	return images, nil
}

// RenderPage rasterizes a 0-based page at the given DPI into a full RGBA
// bitmap, vector and text content included.
func (p *PDF) RenderPage(index int, dpi int) (image.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	img, err := p.fz.ImageDPI(index, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", index, err)
	}
	return img, nil
}

// Close releases the underlying handles. Safe to call once per document.
func (p *PDF) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	err := p.fz.Close()
	if p.file != nil {
		if cerr := p.file.Close(); err == nil {
			err = cerr
		}
	}
	p.ctx = nil
	p.reader = nil
	return err
}
