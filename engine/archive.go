package engine

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// cbzCompressionLevel matches deflate level 6, a reasonable middle ground
// for page images that are mostly already compressed.
const cbzCompressionLevel = 6

// entryName returns the archive entry name for a 0-based page index,
// zero-padded to the decimal width of the total page count so that
// lexicographic order equals numeric order in any conforming reader.
func entryName(index, total int, format Format) string {
	width := len(strconv.Itoa(total))
	return fmt.Sprintf("page_%0*d.%s", width, index+1, format.Ext())
}

// writeArchive assembles the ordered pages into a CBZ at dest and returns
// the archive size in bytes. Entries keep their source ordinals: a failed
// page leaves a numbering gap, subsequent pages are never shifted down.
// Any partial file is removed before a PackagingError surfaces; a corrupt
// archive is never left behind.
func writeArchive(pages []ExtractedPage, totalPages int, dest string) (int64, error) {
	if len(pages) == 0 {
		return 0, &PackagingError{Dest: dest, Err: fmt.Errorf("no pages to package")}
	}

	tmp := dest + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return 0, &PackagingError{Dest: dest, Err: err}
	}
	cleanup := func() {
		file.Close()
		os.Remove(tmp)
	}

	zw := zip.NewWriter(file)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, cbzCompressionLevel)
	})

	for _, page := range pages {
		w, err := zw.Create(entryName(page.Index, totalPages, page.Format))
		if err != nil {
			cleanup()
			return 0, &PackagingError{Dest: dest, Err: err}
		}
		if _, err := w.Write(page.Data); err != nil {
			cleanup()
			return 0, &PackagingError{Dest: dest, Err: err}
		}
	}

	if err := zw.Close(); err != nil {
		cleanup()
		return 0, &PackagingError{Dest: dest, Err: err}
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return 0, &PackagingError{Dest: dest, Err: err}
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return 0, &PackagingError{Dest: dest, Err: err}
	}

	info, err := os.Stat(dest)
	if err != nil {
		return 0, &PackagingError{Dest: dest, Err: err}
	}
	return info.Size(), nil
}
