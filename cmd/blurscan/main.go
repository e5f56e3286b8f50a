package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/anime-shed/blur-inspector-go/internal/config"
	"github.com/anime-shed/blur-inspector-go/internal/container"
	"github.com/anime-shed/blur-inspector-go/internal/observer"
	"github.com/anime-shed/blur-inspector-go/internal/pipeline"
	"github.com/anime-shed/blur-inspector-go/internal/storage"
	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

func main() {
	dirPtr := flag.String("dir", "", "Directory to scan (default: SOURCE_ROOT or the current directory)")
	thresholdPtr := flag.Float64("threshold", -1, "Blur threshold; images scoring below it are blurred (default: BLUR_THRESHOLD or 200)")
	chunkPtr := flag.Int("chunk", 0, "Images scored per chunk (default: 30 for display, 100 for purge)")
	modePtr := flag.String("mode", string(models.ScanModeDisplay), "Scan mode: display or purge")
	workersPtr := flag.Int("workers", 0, "Scoring workers (0: one per logical CPU)")
	exifPtr := flag.Bool("exif", false, "Order by EXIF capture time (needs exiftool)")
	deletePtr := flag.Bool("delete", false, "Delete blurred images after the scan")
	yesPtr := flag.Bool("yes", false, "Do not ask before deleting")
	reportPtr := flag.String("report", "", "Write the scan report as YAML to this file")
	dbPtr := flag.String("db", "", "Keep scan history in this sqlite file")
	quietPtr := flag.Bool("quiet", false, "Only print the summary")

	flag.Parse()

	opts := cliOptions{
		dir:       *dirPtr,
		threshold: *thresholdPtr,
		chunk:     *chunkPtr,
		mode:      *modePtr,
		workers:   *workersPtr,
		exif:      *exifPtr,
		delete:    *deletePtr,
		yes:       *yesPtr,
		report:    *reportPtr,
		db:        *dbPtr,
		quiet:     *quietPtr,
	}
	if err := run(opts); err != nil {
		log.Fatalf("[-] %v", err)
	}
}

type cliOptions struct {
	dir       string
	threshold float64
	chunk     int
	mode      string
	workers   int
	exif      bool
	delete    bool
	yes       bool
	report    string
	db        string
	quiet     bool
}

func run(opts cliOptions) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.SourceType = string(storage.SourceLocal)
	if opts.dir != "" {
		cfg.SourceRoot = opts.dir
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	if opts.exif {
		cfg.UseExif = true
	}
	if opts.db != "" {
		cfg.DatabasePath = opts.db
	}
	// keep the terminal for the table, logs only on trouble
	if os.Getenv("LOG_LEVEL") == "" {
		cfg.LogLevel = "warn"
		cfg.LogFormat = "text"
	}

	gin.SetMode(gin.ReleaseMode)
	c, err := container.NewContainer(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !opts.quiet {
		c.Publisher().Subscribe(observer.NewProgressObserver("cli_progress", newProgressPrinter(os.Stderr)))
	}

	req := models.ScanRequest{Mode: models.ScanMode(opts.mode)}
	if opts.threshold >= 0 {
		req.Threshold = &opts.threshold
	}
	if opts.chunk != 0 {
		req.ChunkSize = &opts.chunk
	}

	svc := c.ScanService()
	fmt.Fprintf(os.Stderr, "[*] Scanning %s\n", svc.Source())
	report, err := svc.Scan(ctx, req)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if !opts.quiet && len(report.Results) > 0 {
		if err := writeTable(os.Stdout, report.Results); err != nil {
			return err
		}
	}
	fmt.Println(summaryLine(report))

	if opts.report != "" {
		if err := writeReport(opts.report, report); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "[+] Report written to %s\n", opts.report)
	}

	if !opts.delete || len(report.BlurredIDs) == 0 {
		return nil
	}

	stdin := bufio.NewReader(os.Stdin)
	if !opts.yes && !confirm(stdin, os.Stderr, fmt.Sprintf("Delete %d blurred images?", len(report.BlurredIDs))) {
		fmt.Fprintln(os.Stderr, "[*] Nothing deleted")
		return nil
	}

	// with -yes nobody is there to answer, so challenges stay pending
	var resolver pipeline.ChallengeResolver
	if !opts.yes {
		resolver = promptResolver(stdin, os.Stderr)
	}
	deletion, err := svc.DeleteBlurred(ctx, report.RunID, resolver)
	if deletion != nil {
		printDeletion(os.Stdout, deletion)
	}
	if err != nil {
		return fmt.Errorf("deletion failed: %w", err)
	}
	return nil
}
