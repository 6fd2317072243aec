package engine

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestEntryNamePadding(t *testing.T) {
	cases := []struct {
		index, total int
		format       Format
		want         string
	}{
		{0, 9, FormatJPEG, "page_1.jpg"},
		{0, 25, FormatJPEG, "page_01.jpg"},
		{24, 25, FormatJPEG, "page_25.jpg"},
		{0, 999, FormatPNG, "page_001.png"},
		{999, 1000, FormatWebP, "page_1000.webp"},
	}
	for _, tc := range cases {
		if got := entryName(tc.index, tc.total, tc.format); got != tc.want {
			t.Errorf("entryName(%d, %d, %v) = %q, want %q", tc.index, tc.total, tc.format, got, tc.want)
		}
	}
}

func TestWriteArchive(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.cbz")

	pages := []ExtractedPage{
		{Index: 0, Data: []byte("first"), Format: FormatJPEG},
		{Index: 1, Data: []byte("second"), Format: FormatJPEG},
		{Index: 3, Data: []byte("fourth"), Format: FormatJPEG},
	}

	size, err := writeArchive(pages, 12, dest)
	if err != nil {
		t.Fatalf("writeArchive: %v", err)
	}
	if size <= 0 {
		t.Error("archive size should be positive")
	}
	if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind after success")
	}

	zr, err := zip.OpenReader(dest)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer zr.Close()

	// Page 2 failed upstream: its name is absent and later pages keep
	// their source ordinals.
	wantNames := []string{"page_01.jpg", "page_02.jpg", "page_04.jpg"}
	wantData := []string{"first", "second", "fourth"}
	if len(zr.File) != len(wantNames) {
		t.Fatalf("archive holds %d entries, want %d", len(zr.File), len(wantNames))
	}
	for i, f := range zr.File {
		if f.Name != wantNames[i] {
			t.Errorf("entry %d named %q, want %q", i, f.Name, wantNames[i])
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("opening entry %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("reading entry %s: %v", f.Name, err)
		}
		if string(data) != wantData[i] {
			t.Errorf("entry %s holds %q, want %q", f.Name, data, wantData[i])
		}
	}
}

func TestWriteArchiveNoPages(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "empty.cbz")
	if _, err := writeArchive(nil, 0, dest); err == nil {
		t.Fatal("expected error for empty page list")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("no archive should exist after failure")
	}
}

func TestWriteArchiveUnwritableDest(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "missing", "deep", "out.cbz")
	pages := []ExtractedPage{{Index: 0, Data: []byte("x"), Format: FormatJPEG}}

	_, err := writeArchive(pages, 1, dest)
	if err == nil {
		t.Fatal("expected error for unwritable destination")
	}
	var pkgErr *PackagingError
	if !errors.As(err, &pkgErr) {
		t.Errorf("expected PackagingError, got %T", err)
	}
}
