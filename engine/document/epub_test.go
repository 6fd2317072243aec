package document

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

type epubEntry struct {
	name string
	data string
}

func buildEPUB(t *testing.T, entries []epubEntry) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, entry := range entries {
		w, err := zw.Create(entry.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(entry.data)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "test.epub")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const containerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

func TestOpenEPUBSpineOrder(t *testing.T) {
	// Spine lists page2 before page1; image order must follow the spine,
	// not the manifest.
	opf := `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <manifest>
    <item id="img1" href="images/a.jpg" media-type="image/jpeg"/>
    <item id="img2" href="images/b.png" media-type="image/png"/>
    <item id="page1" href="page1.xhtml" media-type="application/xhtml+xml"/>
    <item id="page2" href="page2.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="page2"/>
    <itemref idref="page1"/>
  </spine>
</package>`

	path := buildEPUB(t, []epubEntry{
		{"mimetype", "application/epub+zip"},
		{"META-INF/container.xml", containerXML},
		{"OEBPS/content.opf", opf},
		{"OEBPS/page1.xhtml", `<html><body><img src="images/a.jpg"/></body></html>`},
		{"OEBPS/page2.xhtml", `<html><body><img src="images/b.png"/></body></html>`},
		{"OEBPS/images/a.jpg", "jpeg-bytes"},
		{"OEBPS/images/b.png", "png-bytes"},
	})

	book, err := OpenEPUB(path)
	if err != nil {
		t.Fatalf("OpenEPUB: %v", err)
	}
	defer book.Close()

	if book.PageCount() != 2 {
		t.Fatalf("PageCount = %d, want 2", book.PageCount())
	}

	data, format, err := book.PageImage(0)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "png-bytes" || format != "png" {
		t.Errorf("page 0 = (%q, %q), want b.png first per spine order", data, format)
	}

	data, format, err = book.PageImage(1)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "jpeg-bytes" || format != "jpg" {
		t.Errorf("page 1 = (%q, %q), want a.jpg", data, format)
	}
}

func TestOpenEPUBImagesOnSpine(t *testing.T) {
	// Some comic EPUBs place images directly on the spine.
	opf := `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <manifest>
    <item id="img1" href="a.jpg" media-type="image/jpeg"/>
    <item id="img2" href="b.jpg" media-type="image/jpeg"/>
  </manifest>
  <spine>
    <itemref idref="img1"/>
    <itemref idref="img2"/>
  </spine>
</package>`

	path := buildEPUB(t, []epubEntry{
		{"META-INF/container.xml", containerXML},
		{"OEBPS/content.opf", opf},
		{"OEBPS/a.jpg", "first"},
		{"OEBPS/b.jpg", "second"},
	})

	book, err := OpenEPUB(path)
	if err != nil {
		t.Fatalf("OpenEPUB: %v", err)
	}
	defer book.Close()

	if book.PageCount() != 2 {
		t.Fatalf("PageCount = %d, want 2", book.PageCount())
	}
	data, _, err := book.PageImage(0)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first" {
		t.Errorf("page 0 = %q, want %q", data, "first")
	}
}

func TestOpenEPUBUnreferencedImagesAppended(t *testing.T) {
	opf := `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <manifest>
    <item id="img1" href="a.jpg" media-type="image/jpeg"/>
    <item id="cover" href="cover.jpg" media-type="image/jpeg"/>
    <item id="page1" href="page1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="page1"/>
  </spine>
</package>`

	path := buildEPUB(t, []epubEntry{
		{"META-INF/container.xml", containerXML},
		{"OEBPS/content.opf", opf},
		{"OEBPS/page1.xhtml", `<html><body><img src="a.jpg"/></body></html>`},
		{"OEBPS/a.jpg", "referenced"},
		{"OEBPS/cover.jpg", "unreferenced"},
	})

	book, err := OpenEPUB(path)
	if err != nil {
		t.Fatalf("OpenEPUB: %v", err)
	}
	defer book.Close()

	if book.PageCount() != 2 {
		t.Fatalf("PageCount = %d, want 2", book.PageCount())
	}
	// Spine-referenced image first, then the orphan in manifest order.
	data, _, _ := book.PageImage(0)
	if string(data) != "referenced" {
		t.Errorf("page 0 = %q, want referenced image first", data)
	}
	data, _, _ = book.PageImage(1)
	if string(data) != "unreferenced" {
		t.Errorf("page 1 = %q, want unreferenced image appended", data)
	}
}

func TestOpenEPUBEscapedHrefs(t *testing.T) {
	opf := `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <manifest>
    <item id="img1" href="images/page%201.jpg" media-type="image/jpeg"/>
  </manifest>
  <spine/>
</package>`

	path := buildEPUB(t, []epubEntry{
		{"META-INF/container.xml", containerXML},
		{"OEBPS/content.opf", opf},
		{"OEBPS/images/page 1.jpg", "escaped"},
	})

	book, err := OpenEPUB(path)
	if err != nil {
		t.Fatalf("OpenEPUB: %v", err)
	}
	defer book.Close()

	data, _, err := book.PageImage(0)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "escaped" {
		t.Errorf("page 0 = %q, want escaped-href image", data)
	}
}

func TestOpenEPUBNoImages(t *testing.T) {
	opf := `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <manifest>
    <item id="page1" href="page1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine><itemref idref="page1"/></spine>
</package>`

	path := buildEPUB(t, []epubEntry{
		{"META-INF/container.xml", containerXML},
		{"OEBPS/content.opf", opf},
		{"OEBPS/page1.xhtml", `<html><body>words only</body></html>`},
	})

	if _, err := OpenEPUB(path); err == nil {
		t.Error("expected error for EPUB with no images")
	}
}

func TestOpenEPUBMissingContainer(t *testing.T) {
	path := buildEPUB(t, []epubEntry{
		{"mimetype", "application/epub+zip"},
	})
	if _, err := OpenEPUB(path); err == nil {
		t.Error("expected error for EPUB without container.xml")
	}
}

func TestPageImageOutOfRange(t *testing.T) {
	opf := `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <manifest>
    <item id="img1" href="a.jpg" media-type="image/jpeg"/>
  </manifest>
  <spine/>
</package>`

	path := buildEPUB(t, []epubEntry{
		{"META-INF/container.xml", containerXML},
		{"OEBPS/content.opf", opf},
		{"OEBPS/a.jpg", "data"},
	})

	book, err := OpenEPUB(path)
	if err != nil {
		t.Fatal(err)
	}
	defer book.Close()

	for _, index := range []int{-1, 1, 100} {
		if _, _, err := book.PageImage(index); err == nil {
			t.Errorf("PageImage(%d): expected out of range error", index)
		}
	}
}
