//go:build gocv

package analyzer

import (
	"image"
	"image/draw"

	"gocv.io/x/gocv"
)

func init() {
	registerBackend(BackendOpenCV, NewOpenCVScorer)
}

// openCVScorer computes the same metric through OpenCV. It is used to
// cross-check the native implementation and needs a cgo OpenCV install.
type openCVScorer struct {
	options ScoringOptions
}

// NewOpenCVScorer creates a gocv-backed scorer
func NewOpenCVScorer(options ScoringOptions) SharpnessScorer {
	return &openCVScorer{options: options}
}

func (s *openCVScorer) Measure(img image.Image) SharpnessMetrics {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return SharpnessMetrics{Degenerate: true}
	}

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != width*4 || !bounds.Min.Eq(image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}

	src, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return SharpnessMetrics{Width: width, Height: height, Degenerate: true}
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	code := gocv.ColorBGRAToGray
	if s.options.ChannelOrder == ChannelOrderRGB {
		code = gocv.ColorRGBAToGray
	}
	gocv.CvtColor(src, &gray, code)

	border := gocv.BorderReplicate
	if s.options.Border == BorderReflect101 {
		border = gocv.BorderReflect101
	}
	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(gray, &lap, gocv.MatTypeCV16S, 1, 1, 0, border)

	mean := gocv.NewMat()
	defer mean.Close()
	stdDev := gocv.NewMat()
	defer stdDev.Close()
	gocv.MeanStdDev(lap, &mean, &stdDev)

	sd := stdDev.GetDoubleAt(0, 0)
	variance := sd * sd
	return SharpnessMetrics{
		Score:       RoundScore(variance),
		RawVariance: variance,
		Mean:        mean.GetDoubleAt(0, 0),
		Width:       width,
		Height:      height,
	}
}

func (s *openCVScorer) Score(img image.Image) float64 {
	return s.Measure(img).Score
}

func (s *openCVScorer) Backend() Backend {
	return BackendOpenCV
}
