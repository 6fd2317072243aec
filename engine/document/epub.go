package document

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// EPUB is an opened EPUB source document. Pages are the embedded raster
// images, enumerated once at open time in reading order: images in the
// order they are first referenced from spine content documents, then any
// unreferenced manifest images in manifest order.
type EPUB struct {
	zr    *zip.ReadCloser
	pages []epubPage
}

type epubPage struct {
	file   *zip.File
	format string
}

type container struct {
	RootFiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type pkg struct {
	Manifest struct {
		Items []manifestItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type manifestItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

var imageRefPattern = regexp.MustCompile(`(?:src|xlink:href)\s*=\s*["']([^"']+)["']`)

// OpenEPUB opens an EPUB and resolves its page list from the OPF manifest
// and spine.
func OpenEPUB(epubPath string) (*EPUB, error) {
	zr, err := zip.OpenReader(epubPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open EPUB file: %w", err)
	}

	book := &EPUB{zr: zr}
	if err := book.resolvePages(); err != nil {
		zr.Close()
		return nil, err
	}
	if len(book.pages) == 0 {
		zr.Close()
		return nil, fmt.Errorf("no images found in EPUB")
	}
	return book, nil
}

// PageCount returns the number of page images.
func (e *EPUB) PageCount() int {
	return len(e.pages)
}

// PageImage returns the raw image bytes and the source format ("jpg",
// "png", ...) at a 0-based spine position. Bytes are read straight out of
// the archive, never resampled.
func (e *EPUB) PageImage(index int) ([]byte, string, error) {
	if index < 0 || index >= len(e.pages) {
		return nil, "", fmt.Errorf("page %d out of range (0-%d)", index, len(e.pages)-1)
	}
	page := e.pages[index]
	rc, err := page.file.Open()
	if err != nil {
		return nil, "", fmt.Errorf("unable to open EPUB image %s: %w", page.file.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", fmt.Errorf("unable to read EPUB image %s: %w", page.file.Name, err)
	}
	return data, page.format, nil
}

// Close releases the zip handle.
func (e *EPUB) Close() error {
	return e.zr.Close()
}

func (e *EPUB) resolvePages() error {
	opfPath, err := e.rootFilePath()
	if err != nil {
		return err
	}

	opfData, err := e.readEntry(opfPath)
	if err != nil {
		return fmt.Errorf("unable to read package document: %w", err)
	}
	var p pkg
	if err := xml.Unmarshal(opfData, &p); err != nil {
		return fmt.Errorf("unable to parse package document: %w", err)
	}

	opfDir := path.Dir(opfPath)
	itemsByID := make(map[string]manifestItem, len(p.Manifest.Items))
	imagesByPath := make(map[string]manifestItem)
	var imageOrder []string
	for _, item := range p.Manifest.Items {
		itemsByID[item.ID] = item
		if strings.HasPrefix(item.MediaType, "image/") {
			full := resolveHref(opfDir, item.Href)
			imagesByPath[full] = item
			imageOrder = append(imageOrder, full)
		}
	}

	// Spine pass: content documents reference images in reading order.
	seen := make(map[string]bool)
	var ordered []string
	for _, ref := range p.Spine.ItemRefs {
		item, ok := itemsByID[ref.IDRef]
		if !ok {
			continue
		}
		docPath := resolveHref(opfDir, item.Href)
		if _, ok := imagesByPath[docPath]; ok {
			// Some comic EPUBs put images directly on the spine.
			if !seen[docPath] {
				seen[docPath] = true
				ordered = append(ordered, docPath)
			}
			continue
		}
		content, err := e.readEntry(docPath)
		if err != nil {
			continue
		}
		docDir := path.Dir(docPath)
		for _, match := range imageRefPattern.FindAllSubmatch(content, -1) {
			target := resolveHref(docDir, string(match[1]))
			if _, ok := imagesByPath[target]; ok && !seen[target] {
				seen[target] = true
				ordered = append(ordered, target)
			}
		}
	}

	// Anything the spine never referenced keeps its manifest order.
	for _, full := range imageOrder {
		if !seen[full] {
			seen[full] = true
			ordered = append(ordered, full)
		}
	}

	entries := make(map[string]*zip.File, len(e.zr.File))
	for _, f := range e.zr.File {
		entries[f.Name] = f
	}
	for _, full := range ordered {
		f, ok := entries[full]
		if !ok {
			Logger.Warn("Manifest image missing from EPUB archive", "path", full)
			continue
		}
		e.pages = append(e.pages, epubPage{
			file:   f,
			format: formatForImage(imagesByPath[full], full),
		})
	}
	return nil
}

func (e *EPUB) rootFilePath() (string, error) {
	data, err := e.readEntry("META-INF/container.xml")
	if err != nil {
		return "", fmt.Errorf("unable to read EPUB container: %w", err)
	}
	var c container
	if err := xml.Unmarshal(data, &c); err != nil {
		return "", fmt.Errorf("unable to parse EPUB container: %w", err)
	}
	if len(c.RootFiles) == 0 || c.RootFiles[0].FullPath == "" {
		return "", fmt.Errorf("EPUB container declares no root file")
	}
	return c.RootFiles[0].FullPath, nil
}

func (e *EPUB) readEntry(name string) ([]byte, error) {
	for _, f := range e.zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("entry %s not found", name)
}

// resolveHref joins a (possibly URL-escaped) href against its base
// directory and normalises the result to a zip entry path.
func resolveHref(baseDir, href string) string {
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	if i := strings.IndexAny(href, "#?"); i >= 0 {
		href = href[:i]
	}
	joined := path.Join(baseDir, href)
	return strings.TrimPrefix(joined, "./")
}

func formatForImage(item manifestItem, fullPath string) string {
	switch item.MediaType {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(fullPath)), ".")
	if ext == "jpeg" {
		ext = "jpg"
	}
	if ext == "" {
		ext = "jpg"
	}
	return ext
}
