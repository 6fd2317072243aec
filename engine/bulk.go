package engine

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// BulkSummary reports the outcome of one pass over a folder.
type BulkSummary struct {
	Converted []string `json:"converted"`
	Skipped   []string `json:"skipped"`
	Failed    []string `json:"failed"`
}

// ConvertFolder converts every PDF and EPUB directly inside dir, in
// case-insensitive name order so runs are reproducible across
// filesystems. Subdirectories are not descended into. One failing
// document is logged and the pass carries on; the summary names it.
//
// Archives land in outDir, created if needed. An empty outDir keeps
// each archive next to its source. With Options.SkipExisting a document
// whose CBZ is already present is left alone, otherwise the archive is
// rebuilt.
func ConvertFolder(ctx context.Context, dir, outDir string, opts Options) (BulkSummary, error) {
	var summary BulkSummary

	entries, err := os.ReadDir(dir)
	if err != nil {
		return summary, err
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return summary, err
		}
	}

	var sources []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".pdf", ".epub":
			sources = append(sources, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Slice(sources, func(i, j int) bool {
		return strings.ToLower(sources[i]) < strings.ToLower(sources[j])
	})

	Logger.Info("Starting bulk conversion", "dir", dir, "documents", len(sources))
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		dest := DefaultDest(source)
		if outDir != "" {
			dest = DefaultDest(filepath.Join(outDir, filepath.Base(source)))
		}
		if opts.SkipExisting {
			if _, err := os.Stat(dest); err == nil {
				Logger.Debug("Archive already exists, skipping", "source", source, "dest", dest)
				summary.Skipped = append(summary.Skipped, source)
				continue
			}
		}

		if _, err := Convert(ctx, source, dest, opts, nil); err != nil {
			Logger.Error("Conversion failed", "source", source, "error", err)
			summary.Failed = append(summary.Failed, source)
			continue
		}
		summary.Converted = append(summary.Converted, source)
	}

	Logger.Info("Bulk conversion finished",
		"dir", dir,
		"converted", len(summary.Converted),
		"skipped", len(summary.Skipped),
		"failed", len(summary.Failed))
	return summary, nil
}
