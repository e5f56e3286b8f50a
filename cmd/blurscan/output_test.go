package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	apperrors "github.com/anime-shed/blur-inspector-go/internal/errors"
	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	results := []models.ImageResult{
		{ID: "sharp.jpg", Score: 350},
		{ID: "blur.jpg", Score: 50.456, IsBlurred: true},
		{ID: "broken.jpg", Error: "bad header", ErrorType: "decode"},
		{ID: "empty.png", IsBlurred: true, Degenerate: true},
	}
	if err := writeTable(&buf, results); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("Expected header and 4 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	checks := []struct {
		line int
		want []string
	}{
		{0, []string{"FILE", "SCORE", "BLURRED"}},
		{1, []string{"sharp.jpg", "350.00", "no"}},
		{2, []string{"blur.jpg", "50.46", "yes"}},
		{3, []string{"broken.jpg", "decode: bad header"}},
		{4, []string{"empty.png", "0.00", "yes", "empty image"}},
	}
	for _, c := range checks {
		for _, w := range c.want {
			if !strings.Contains(lines[c.line], w) {
				t.Errorf("line %d %q missing %q", c.line, lines[c.line], w)
			}
		}
	}
}

func TestSummaryLine(t *testing.T) {
	r := &models.ScanReport{Total: 3, Threshold: 200, Message: models.NoBlurredImagesMessage}
	got := summaryLine(r)
	if !strings.Contains(got, "3 images, 0 blurred") || !strings.HasSuffix(got, models.NoBlurredImagesMessage) {
		t.Errorf("Unexpected summary %q", got)
	}
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")
	report := &models.ScanReport{
		RunID:      "run-1",
		Total:      2,
		Blurred:    1,
		BlurredIDs: []models.ImageHandle{"b.jpg"},
		Results:    []models.ImageResult{{ID: "a.jpg", Score: 300}, {ID: "b.jpg", Score: 10, IsBlurred: true}},
	}
	if err := writeReport(path, report); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded models.ScanReport
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("report is not valid YAML: %v", err)
	}
	if decoded.RunID != "run-1" || len(decoded.Results) != 2 || decoded.BlurredIDs[0] != "b.jpg" {
		t.Errorf("Unexpected decoded report: %+v", decoded)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yes", true},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got := confirm(bufio.NewReader(strings.NewReader(tt.input)), &out, "Delete?")
		if got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Delete? [y/N]") {
			t.Errorf("prompt not written: %q", out.String())
		}
	}
}

func TestPromptResolver(t *testing.T) {
	var out bytes.Buffer
	resolver := promptResolver(bufio.NewReader(strings.NewReader("y\nn\n")), &out)
	pc := apperrors.NewPermissionChallenge("a.jpg", "file:/photos/a.jpg", errors.New("permission denied"))

	granted, err := resolver.Resolve(context.Background(), pc)
	if err != nil || !granted {
		t.Errorf("Expected first challenge granted, got %v %v", granted, err)
	}
	granted, err = resolver.Resolve(context.Background(), pc)
	if err != nil || granted {
		t.Errorf("Expected second challenge denied, got %v %v", granted, err)
	}
	if !strings.Contains(out.String(), "file:/photos/a.jpg") {
		t.Errorf("Expected the token in the prompt, got %q", out.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := resolver.Resolve(ctx, pc); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context error, got %v", err)
	}
}

func TestPrintDeletion(t *testing.T) {
	var buf bytes.Buffer
	printDeletion(&buf, &models.DeletionReport{
		Outcomes: []models.DeletionOutcome{
			{ID: "a.jpg", Status: models.DeletionDeleted},
			{ID: "b.jpg", Status: models.DeletionChallenged, Token: "file:b.jpg"},
			{ID: "c.jpg", Status: models.DeletionFailed, Error: "gone"},
		},
		Message: "deleted 1 of 3 images (1 failed, 1 awaiting authorization, 0 denied)",
	})
	out := buf.String()
	if strings.Contains(out, "a.jpg") {
		t.Error("Deleted items should not be listed")
	}
	for _, want := range []string{"b.jpg needs re-authorization (file:b.jpg)", "c.jpg failed gone", "deleted 1 of 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
