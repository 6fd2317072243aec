package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/cbzify/cbzify/config"
	"github.com/cbzify/cbzify/database"
	"github.com/cbzify/cbzify/engine"
	"github.com/cbzify/cbzify/engine/document"
	"github.com/cbzify/cbzify/web"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	config.Logger = logger
	database.Logger = logger
	document.Logger = logger
	engine.Logger = logger
	web.Logger = logger
}

func main() {
	workers := flag.Int("workers", engine.DefaultWorkers, "extraction worker count (1-16)")
	dpi := flag.Int("dpi", engine.DefaultDPI, "rasterization density for rendered pages")
	formatName := flag.String("format", "jpg", "output image format: jpg, png or webp")
	quality := flag.Int("quality", engine.DefaultQuality, "lossy encoder quality (1-100)")
	skipChecks := flag.Bool("skip-checks", false, "skip document analysis and render every page")
	strict := flag.Bool("strict", false, "fail the conversion on the first page error")
	fast := flag.Bool("fast", false, "deprecated alias for -skip-checks")
	skipExisting := flag.Bool("skip-existing", false, "in folder mode, skip documents whose CBZ already exists")
	watch := flag.Bool("watch", false, "keep watching a folder and convert new documents as they appear")
	interval := flag.Int("interval", 10, "watch re-scan interval in minutes")
	output := flag.String("o", "", "output CBZ path (single document mode only)")
	quiet := flag.Bool("quiet", false, "suppress the progress bar")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <document.pdf|document.epub|folder> [output]\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	_, logger := config.SetupServer()
	injectGlobals(logger)

	if flag.NArg() < 1 || flag.NArg() > 2 {
		flag.Usage()
		os.Exit(2)
	}
	source := flag.Arg(0)
	// Second positional argument names the output CBZ for a single
	// document, or the output directory in folder mode.
	target := flag.Arg(1)

	cliConfig := config.ConvertConfig{Workers: *workers, DPI: *dpi, Format: *formatName, Quality: *quality}
	if err := cliConfig.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	format, err := engine.ParseFormat(*formatName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	opts := engine.Options{
		Workers:            *workers,
		DPI:                *dpi,
		Format:             format,
		Quality:            *quality,
		SkipChecks:         *skipChecks || *fast,
		SkipExisting:       *skipExisting,
		FailOnAnyPageError: *strict,
	}
	if *fast {
		fmt.Fprintln(os.Stderr, "-fast is deprecated, use -skip-checks")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info, err := os.Stat(source)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	switch {
	case info.IsDir() && *watch:
		cronJob, err := engine.WatchFolder(ctx, source, target, *interval, opts)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		<-ctx.Done()
		cronJob.Stop()

	case info.IsDir():
		summary, err := engine.ConvertFolder(ctx, source, target, opts)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("Converted %d, skipped %d, failed %d\n",
			len(summary.Converted), len(summary.Skipped), len(summary.Failed))
		for _, failed := range summary.Failed {
			fmt.Printf("  failed: %s\n", failed)
		}
		if len(summary.Failed) > 0 {
			os.Exit(1)
		}

	default:
		dest := target
		if dest == "" {
			dest = *output
		}
		if err := convertOne(ctx, source, dest, opts, *quiet); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}

// convertOne converts a single document, drawing a progress bar from the
// tracker while the engine works.
func convertOne(ctx context.Context, source, dest string, opts engine.Options, quiet bool) error {
	if dest == "" {
		dest = engine.DefaultDest(source)
	}

	tracker := engine.NewProgressTracker()
	done := make(chan struct{})
	if !quiet {
		go drawProgress(tracker, done)
	}

	result, err := engine.Convert(ctx, source, dest, opts, tracker)
	close(done)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d pages -> %s (%s, %d bytes)\n",
		source, result.WrittenPages, dest, result.Classification.Strategy, result.ArchiveBytes)
	for _, pageErr := range result.FailedPages {
		fmt.Printf("  page %d failed: %s\n", pageErr.Index+1, pageErr.Message)
	}
	return nil
}

func drawProgress(tracker *engine.ProgressTracker, done <-chan struct{}) {
	var bar *progressbar.ProgressBar
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			if bar != nil {
				bar.Finish()
			}
			return
		case <-ticker.C:
			snapshot := tracker.Snapshot()
			if snapshot.Stage != engine.StageExtracting || snapshot.Total == 0 {
				continue
			}
			if bar == nil {
				bar = progressbar.NewOptions(snapshot.Total,
					progressbar.OptionSetDescription("Extracting pages"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish())
			}
			bar.Set(snapshot.Current)
		}
	}
}
