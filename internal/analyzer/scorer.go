package analyzer

import "image"

// laplacianScorer implements SharpnessScorer on the native metrics calculator
type laplacianScorer struct {
	calc    MetricsCalculator
	options ScoringOptions
}

// NewSharpnessScorer creates the native variance-of-Laplacian scorer
func NewSharpnessScorer(options ScoringOptions) SharpnessScorer {
	return &laplacianScorer{
		calc:    NewMetricsCalculator(),
		options: options,
	}
}

// Measure converts to grayscale, filters, and reduces to a rounded variance
func (s *laplacianScorer) Measure(img image.Image) SharpnessMetrics {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return SharpnessMetrics{Degenerate: true}
	}

	gray := s.calc.ToGray(img, s.options.ChannelOrder)
	moments := s.calc.LaplacianMoments(gray, s.options.Border)
	s.calc.ReleaseGray(gray)

	mean, variance, score := varianceFromMoments(moments)
	return SharpnessMetrics{
		Score:       score,
		RawVariance: variance,
		Mean:        mean,
		Width:       width,
		Height:      height,
	}
}

// Score returns the rounded sharpness score only
func (s *laplacianScorer) Score(img image.Image) float64 {
	return s.Measure(img).Score
}

// Backend names the implementation
func (s *laplacianScorer) Backend() Backend {
	return BackendNative
}
