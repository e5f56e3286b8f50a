package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

func sampleReport(id string, started time.Time) *models.ScanReport {
	results := []models.ImageResult{
		{ID: "sharp.jpg", FileName: "sharp.jpg", Threshold: 200, Score: 350},
		{ID: "blur.jpg", FileName: "blur.jpg", IsBlurred: true, Threshold: 200, Score: 50},
		{ID: "broken.jpg", FileName: "broken.jpg", Threshold: 200, Error: "decode: bad header", ErrorType: "decode"},
		{ID: "empty.png", FileName: "empty.png", IsBlurred: true, Threshold: 200, Degenerate: true},
	}
	return &models.ScanReport{
		RunID:             id,
		Source:            "local:/photos",
		Mode:              models.ScanModeDisplay,
		Threshold:         200,
		ChunkSize:         30,
		StartedAt:         started,
		FinishedAt:        started.Add(1500 * time.Millisecond),
		ProcessingTimeSec: 1.5,
		Total:             4,
		Blurred:           2,
		Failed:            1,
		Degenerate:        1,
		Stats:             models.ScoreStats{Mean: 133.33, StdDev: 152.5, Median: 50, Min: 0, Max: 350},
		BlurredIDs:        models.BlurredHandles(results),
		Results:           results,
	}
}

// repositories runs the same contract against every implementation
func repositories(t *testing.T) map[string]ScanRepository {
	t.Helper()
	sqliteRepo, err := NewSQLiteScanRepository(filepath.Join(t.TempDir(), "scans.db"))
	if err != nil {
		t.Fatalf("NewSQLiteScanRepository: %v", err)
	}
	t.Cleanup(func() { sqliteRepo.Close() })

	return map[string]ScanRepository{
		"memory": NewMemoryScanRepository(),
		"sqlite": sqliteRepo,
	}
}

func TestScanRepository_SaveAndGet(t *testing.T) {
	started := time.Date(2024, 6, 1, 10, 0, 0, 123456789, time.UTC)

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := sampleReport("run-1", started)
			if err := repo.SaveRun(ctx, want); err != nil {
				t.Fatalf("SaveRun: %v", err)
			}

			got, err := repo.GetRun(ctx, "run-1")
			if err != nil {
				t.Fatalf("GetRun: %v", err)
			}
			if !got.StartedAt.Equal(want.StartedAt) || !got.FinishedAt.Equal(want.FinishedAt) {
				t.Errorf("timestamps changed: %v %v", got.StartedAt, got.FinishedAt)
			}
			if got.Source != want.Source || got.Mode != want.Mode || got.Threshold != 200 || got.ChunkSize != 30 {
				t.Errorf("run fields changed: %+v", got)
			}
			if got.Stats != want.Stats {
				t.Errorf("stats = %+v, want %+v", got.Stats, want.Stats)
			}
			if len(got.Results) != len(want.Results) {
				t.Fatalf("Expected %d results, got %d", len(want.Results), len(got.Results))
			}
			for i := range want.Results {
				if got.Results[i] != want.Results[i] {
					t.Errorf("result %d = %+v, want %+v", i, got.Results[i], want.Results[i])
				}
			}
			if len(got.BlurredIDs) != 2 || got.BlurredIDs[0] != "blur.jpg" || got.BlurredIDs[1] != "empty.png" {
				t.Errorf("Unexpected blurred ids: %v", got.BlurredIDs)
			}
		})
	}
}

func TestScanRepository_SaveReplaces(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			report := sampleReport("run-1", time.Now())
			if err := repo.SaveRun(ctx, report); err != nil {
				t.Fatal(err)
			}

			report.Results = report.Results[:1]
			report.Total = 1
			if err := repo.SaveRun(ctx, report); err != nil {
				t.Fatalf("second SaveRun: %v", err)
			}

			got, err := repo.GetRun(ctx, "run-1")
			if err != nil {
				t.Fatal(err)
			}
			if len(got.Results) != 1 || got.Total != 1 {
				t.Errorf("Expected replaced run with 1 result, got %d", len(got.Results))
			}
		})
	}
}

func TestScanRepository_NotFoundAndInvalid(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := repo.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("GetRun: expected ErrRunNotFound, got %v", err)
			}
			if err := repo.MarkDeleted(ctx, "missing", []models.ImageHandle{"a"}); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("MarkDeleted: expected ErrRunNotFound, got %v", err)
			}
			if err := repo.SaveRun(ctx, &models.ScanReport{}); !errors.Is(err, ErrInvalidRun) {
				t.Errorf("SaveRun: expected ErrInvalidRun, got %v", err)
			}
		})
	}
}

func TestScanRepository_ListRuns(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, id := range []string{"first", "third", "second"} {
				started := base.Add(time.Duration([]int{0, 2, 1}[i]) * time.Hour)
				if err := repo.SaveRun(ctx, sampleReport(id, started)); err != nil {
					t.Fatal(err)
				}
			}

			runs, err := repo.ListRuns(ctx, 0)
			if err != nil {
				t.Fatalf("ListRuns: %v", err)
			}
			want := []string{"third", "second", "first"}
			if len(runs) != len(want) {
				t.Fatalf("Expected %d runs, got %d", len(want), len(runs))
			}
			for i := range want {
				if runs[i].RunID != want[i] {
					t.Errorf("position %d: expected %s, got %s", i, want[i], runs[i].RunID)
				}
				if len(runs[i].Results) != 0 {
					t.Errorf("Expected summaries without results")
				}
				ids := runs[i].BlurredIDs
				if len(ids) != 2 || ids[0] != "blur.jpg" || ids[1] != "empty.png" {
					t.Errorf("%s: expected summary blurred ids [blur.jpg empty.png], got %v", runs[i].RunID, ids)
				}
			}

			limited, err := repo.ListRuns(ctx, 2)
			if err != nil {
				t.Fatal(err)
			}
			if len(limited) != 2 || limited[0].RunID != "third" {
				t.Errorf("Unexpected limited list: %d runs", len(limited))
			}
		})
	}
}

func TestScanRepository_MarkDeleted(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := repo.SaveRun(ctx, sampleReport("run-1", time.Now())); err != nil {
				t.Fatal(err)
			}

			if err := repo.MarkDeleted(ctx, "run-1", []models.ImageHandle{"blur.jpg"}); err != nil {
				t.Fatalf("MarkDeleted: %v", err)
			}

			got, err := repo.GetRun(ctx, "run-1")
			if err != nil {
				t.Fatal(err)
			}
			if !got.Results[1].Deleted {
				t.Error("Expected blur.jpg to be marked deleted")
			}
			if got.Results[3].Deleted {
				t.Error("Expected empty.png to stay")
			}
			if len(got.BlurredIDs) != 1 || got.BlurredIDs[0] != "empty.png" {
				t.Errorf("Expected only empty.png left to delete, got %v", got.BlurredIDs)
			}
		})
	}
}

func TestScanRepository_ListRunsAfterDelete(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := repo.SaveRun(ctx, sampleReport("run-1", time.Now())); err != nil {
				t.Fatal(err)
			}
			if err := repo.MarkDeleted(ctx, "run-1", []models.ImageHandle{"blur.jpg"}); err != nil {
				t.Fatal(err)
			}

			runs, err := repo.ListRuns(ctx, 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(runs) != 1 {
				t.Fatalf("Expected 1 run, got %d", len(runs))
			}
			if ids := runs[0].BlurredIDs; len(ids) != 1 || ids[0] != "empty.png" {
				t.Errorf("Expected only empty.png pending, got %v", ids)
			}
		})
	}
}
