package service

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/anime-shed/blur-inspector-go/internal/analyzer"
	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

// ComputeStats summarises the scores of every image that was scored.
// Degenerate images count with their score of 0; failed ones are skipped.
func ComputeStats(results []models.ImageResult) models.ScoreStats {
	scores := make([]float64, 0, len(results))
	for _, r := range results {
		if !r.Failed() {
			scores = append(scores, r.Score)
		}
	}
	if len(scores) == 0 {
		return models.ScoreStats{}
	}

	mean, std := stat.PopMeanStdDev(scores, nil)
	sort.Float64s(scores)

	return models.ScoreStats{
		Mean:   analyzer.RoundScore(mean),
		StdDev: analyzer.RoundScore(std),
		Median: stat.Quantile(0.5, stat.Empirical, scores, nil),
		Min:    floats.Min(scores),
		Max:    floats.Max(scores),
	}
}
