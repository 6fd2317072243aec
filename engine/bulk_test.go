package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestConvertFolder(t *testing.T) {
	dir := t.TempDir()
	buildTestEPUB(t, dir, "beta.epub", jpegPages(t, 2))
	buildTestEPUB(t, dir, "Alpha.epub", jpegPages(t, 2))
	// Non-documents and subdirectories are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}

	summary, err := ConvertFolder(context.Background(), dir, "", DefaultOptions())
	if err != nil {
		t.Fatalf("ConvertFolder: %v", err)
	}
	if len(summary.Converted) != 2 {
		t.Fatalf("converted %d documents, want 2", len(summary.Converted))
	}
	// Case-insensitive name order.
	if filepath.Base(summary.Converted[0]) != "Alpha.epub" {
		t.Errorf("first converted = %s, want Alpha.epub", summary.Converted[0])
	}
	for _, name := range []string{"Alpha.cbz", "beta.cbz"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing archive %s: %v", name, err)
		}
	}
}

func TestConvertFolderSkipExisting(t *testing.T) {
	dir := t.TempDir()
	buildTestEPUB(t, dir, "comic.epub", jpegPages(t, 2))
	if err := os.WriteFile(filepath.Join(dir, "comic.cbz"), []byte("already here"), 0644); err != nil {
		t.Fatal(err)
	}

	opts := DefaultOptions()
	opts.SkipExisting = true
	summary, err := ConvertFolder(context.Background(), dir, "", opts)
	if err != nil {
		t.Fatalf("ConvertFolder: %v", err)
	}
	if len(summary.Skipped) != 1 || len(summary.Converted) != 0 {
		t.Errorf("summary = %+v, want one skip", summary)
	}

	data, err := os.ReadFile(filepath.Join(dir, "comic.cbz"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "already here" {
		t.Error("existing archive was overwritten despite SkipExisting")
	}
}

func TestConvertFolderReportsFailures(t *testing.T) {
	dir := t.TempDir()
	buildTestEPUB(t, dir, "good.epub", jpegPages(t, 2))
	if err := os.WriteFile(filepath.Join(dir, "broken.pdf"), []byte("not a pdf"), 0644); err != nil {
		t.Fatal(err)
	}

	summary, err := ConvertFolder(context.Background(), dir, "", DefaultOptions())
	if err != nil {
		t.Fatalf("one bad document should not fail the pass: %v", err)
	}
	if len(summary.Failed) != 1 {
		t.Errorf("failed = %v, want broken.pdf only", summary.Failed)
	}
	if len(summary.Converted) != 1 {
		t.Errorf("converted = %v, want good.epub", summary.Converted)
	}
}

func TestConvertFolderOutputDir(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "library", "comics")
	buildTestEPUB(t, dir, "comic.epub", jpegPages(t, 2))

	summary, err := ConvertFolder(context.Background(), dir, outDir, DefaultOptions())
	if err != nil {
		t.Fatalf("ConvertFolder: %v", err)
	}
	if len(summary.Converted) != 1 {
		t.Fatalf("converted %d documents, want 1", len(summary.Converted))
	}
	if _, err := os.Stat(filepath.Join(outDir, "comic.cbz")); err != nil {
		t.Errorf("archive missing from output directory: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "comic.cbz")); !os.IsNotExist(err) {
		t.Error("archive was written next to the source despite an output directory")
	}
}

func TestConvertFolderSkipExistingInOutputDir(t *testing.T) {
	dir := t.TempDir()
	outDir := t.TempDir()
	buildTestEPUB(t, dir, "comic.epub", jpegPages(t, 2))
	if err := os.WriteFile(filepath.Join(outDir, "comic.cbz"), []byte("already here"), 0644); err != nil {
		t.Fatal(err)
	}

	opts := DefaultOptions()
	opts.SkipExisting = true
	summary, err := ConvertFolder(context.Background(), dir, outDir, opts)
	if err != nil {
		t.Fatalf("ConvertFolder: %v", err)
	}
	if len(summary.Skipped) != 1 {
		t.Errorf("summary = %+v, want one skip", summary)
	}
}
