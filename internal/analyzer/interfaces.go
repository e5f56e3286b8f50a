package analyzer

import "image"

// SharpnessScorer computes the variance-of-Laplacian sharpness of a decoded buffer.
// Implementations hold no per-call state and are safe for concurrent use.
type SharpnessScorer interface {
	// Measure returns the score together with the intermediate values
	Measure(img image.Image) SharpnessMetrics

	// Score returns the rounded sharpness score only
	Score(img image.Image) float64

	// Backend names the implementation
	Backend() Backend
}

// MetricsCalculator handles the individual numeric stages of scoring
type MetricsCalculator interface {
	ToGray(img image.Image, order ChannelOrder) *image.Gray
	LaplacianMoments(gray *image.Gray, border BorderMode) LaplacianMoments
	ReleaseGray(gray *image.Gray)
}
