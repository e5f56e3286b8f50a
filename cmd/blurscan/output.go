package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	apperrors "github.com/anime-shed/blur-inspector-go/internal/errors"
	"github.com/anime-shed/blur-inspector-go/internal/observer"
	"github.com/anime-shed/blur-inspector-go/internal/pipeline"
	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

func writeTable(w io.Writer, results []models.ImageResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSCORE\tBLURRED\tNOTE")
	for _, r := range results {
		note := ""
		switch {
		case r.Failed():
			note = r.ErrorType + ": " + r.Error
		case r.Degenerate:
			note = "empty image"
		}
		blurred := "no"
		if r.IsBlurred {
			blurred = "yes"
		}
		score := fmt.Sprintf("%.2f", r.Score)
		if r.Failed() {
			score, blurred = "-", "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, score, blurred, note)
	}
	return tw.Flush()
}

func summaryLine(r *models.ScanReport) string {
	line := fmt.Sprintf("[+] %d images, %d blurred, %d failed (threshold %.2f, %.1fs)",
		r.Total, r.Blurred, r.Failed, r.Threshold, r.ProcessingTimeSec)
	if r.Message != "" {
		line += ": " + r.Message
	}
	return line
}

func writeReport(path string, report *models.ScanReport) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func printDeletion(w io.Writer, d *models.DeletionReport) {
	for _, o := range d.Outcomes {
		switch o.Status {
		case models.DeletionDeleted:
		case models.DeletionChallenged:
			fmt.Fprintf(w, "[!] %s needs re-authorization (%s)\n", o.ID, o.Token)
		default:
			fmt.Fprintf(w, "[-] %s %s %s\n", o.ID, o.Status, o.Error)
		}
	}
	fmt.Fprintf(w, "[+] %s\n", d.Message)
}

// confirm asks a yes/no question; anything but y or yes is a no
func confirm(in *bufio.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer, err := in.ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// promptResolver asks on the terminal whether a challenged deletion may
// proceed once the user has re-authorized
func promptResolver(in *bufio.Reader, out io.Writer) pipeline.ChallengeResolver {
	return pipeline.ResolverFunc(func(ctx context.Context, pc *apperrors.PermissionChallenge) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "[!] Deleting %s needs re-authorization (%s).\n", pc.Handle, pc.Token)
		return confirm(in, out, "Retry after granting access?"), nil
	})
}

// progressPrinter draws a one-line progress indicator
type progressPrinter struct {
	out io.Writer
}

func newProgressPrinter(out io.Writer) observer.ProgressListener {
	return &progressPrinter{out: out}
}

func (p *progressPrinter) OnProgress(fraction float64) {
	fmt.Fprintf(p.out, "\r[*] %3.0f%%", fraction*100)
}

func (p *progressPrinter) OnComplete(results []models.ImageResult) {
	fmt.Fprintln(p.out)
}

func (p *progressPrinter) OnError(kind string, err error) {
	if kind == string(apperrors.ErrorTypePermissionChallenge) {
		return
	}
	fmt.Fprintf(p.out, "\r[-] %s: %v\n", kind, err)
}
