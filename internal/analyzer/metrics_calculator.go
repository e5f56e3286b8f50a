package analyzer

import (
	"image"
	"image/color"
	"math"
	"math/big"
	"sync"
)

// Fixed-point luma weights (Q14), identical to OpenCV's BGR/RGB to gray tables
const (
	grayShift = 14
	weightB   = 1868 // 0.114
	weightG   = 9617 // 0.587
	weightR   = 4899 // 0.299
)

// metricsCalculator implements MetricsCalculator with pooled grayscale buffers
type metricsCalculator struct {
	grayPool sync.Pool
}

// NewMetricsCalculator creates a new metrics calculator
func NewMetricsCalculator() MetricsCalculator {
	return &metricsCalculator{
		grayPool: sync.Pool{
			New: func() interface{} {
				return &image.Gray{}
			},
		},
	}
}

// ToGray converts a buffer to single-channel intensity. The result is
// zero-origin and must be handed back through ReleaseGray.
func (mc *metricsCalculator) ToGray(img image.Image, order ChannelOrder) *image.Gray {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	gray := mc.acquireGray(width, height)

	w0, w2 := uint32(weightB), uint32(weightR)
	if order == ChannelOrderRGB {
		w0, w2 = weightR, weightB
	}

	switch src := img.(type) {
	case *image.Gray:
		// weights sum to 1<<grayShift, so gray input is unchanged
		for y := 0; y < height; y++ {
			off := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(gray.Pix[y*gray.Stride:y*gray.Stride+width], src.Pix[off:off+width])
		}
	case *image.RGBA:
		for y := 0; y < height; y++ {
			row := src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			dst := gray.Pix[y*gray.Stride:]
			for x := 0; x < width; x++ {
				p := row[x*4 : x*4+3 : x*4+3]
				dst[x] = luma(uint32(p[0]), uint32(p[1]), uint32(p[2]), w0, w2)
			}
		}
	case *image.NRGBA:
		for y := 0; y < height; y++ {
			row := src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			dst := gray.Pix[y*gray.Stride:]
			for x := 0; x < width; x++ {
				p := row[x*4 : x*4+4 : x*4+4]
				a := uint32(p[3])
				dst[x] = luma(premultiply(p[0], a), premultiply(p[1], a), premultiply(p[2], a), w0, w2)
			}
		}
	case *image.YCbCr:
		for y := 0; y < height; y++ {
			py := bounds.Min.Y + y
			dst := gray.Pix[y*gray.Stride:]
			for x := 0; x < width; x++ {
				px := bounds.Min.X + x
				r, g, b := color.YCbCrToRGB(src.Y[src.YOffset(px, py)], src.Cb[src.COffset(px, py)], src.Cr[src.COffset(px, py)])
				dst[x] = luma(uint32(r), uint32(g), uint32(b), w0, w2)
			}
		}
	default:
		for y := 0; y < height; y++ {
			dst := gray.Pix[y*gray.Stride:]
			for x := 0; x < width; x++ {
				r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				dst[x] = luma(r>>8, g>>8, b>>8, w0, w2)
			}
		}
	}

	return gray
}

// ReleaseGray returns a grayscale scratch buffer to the pool
func (mc *metricsCalculator) ReleaseGray(gray *image.Gray) {
	if gray == nil {
		return
	}
	mc.grayPool.Put(gray)
}

func (mc *metricsCalculator) acquireGray(width, height int) *image.Gray {
	gray := mc.grayPool.Get().(*image.Gray)
	n := width * height
	if cap(gray.Pix) < n {
		gray.Pix = make([]uint8, n)
	}
	gray.Pix = gray.Pix[:n]
	gray.Stride = width
	gray.Rect = image.Rect(0, 0, width, height)
	return gray
}

// premultiply matches color.NRGBA.RGBA reduced back to 8 bits
func premultiply(c uint8, a uint32) uint32 {
	return (uint32(c) * 0x101 * a / 0xff) >> 8
}

// luma applies the Q14 weights with round-to-nearest
func luma(c0, c1, c2, w0, w2 uint32) uint8 {
	return uint8((c0*w0 + c1*weightG + c2*w2 + 1<<(grayShift-1)) >> grayShift)
}

// LaplacianMoments convolves with the 3x3 aperture [0 1 0; 1 -4 1; 0 1 0]
// and accumulates exact integer moments of the response. Responses of 8-bit
// input lie in [-1020, 1020], the range of a signed 16-bit destination.
func (mc *metricsCalculator) LaplacianMoments(gray *image.Gray, border BorderMode) LaplacianMoments {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return LaplacianMoments{}
	}

	index := replicateIndex
	if border == BorderReflect101 {
		index = reflect101Index
	}

	rowAt := func(y int) []uint8 {
		off := gray.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		return gray.Pix[off : off+width]
	}

	var sum, sumSq int64
	for y := 0; y < height; y++ {
		up := rowAt(index(y-1, height))
		row := rowAt(y)
		down := rowAt(index(y+1, height))
		for x := 0; x < width; x++ {
			left := row[index(x-1, width)]
			right := row[index(x+1, width)]
			v := int64(up[x]) + int64(down[x]) + int64(left) + int64(right) - 4*int64(row[x])
			sum += v
			sumSq += v * v
		}
	}

	return LaplacianMoments{
		Count: int64(width) * int64(height),
		Sum:   sum,
		SumSq: sumSq,
	}
}

func replicateIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func reflect101Index(i, n int) int {
	if n == 1 {
		return 0
	}
	if i < 0 {
		return -i
	}
	if i >= n {
		return 2*n - 2 - i
	}
	return i
}

// varianceFromMoments returns the population variance of the response and its
// score, rounded half-up at the hundredths digit on the exact rational value.
func varianceFromMoments(m LaplacianMoments) (mean, variance, score float64) {
	if m.Count == 0 {
		return 0, 0, 0
	}

	n := big.NewInt(m.Count)
	sum := big.NewInt(m.Sum)

	// variance = (n*sumSq - sum^2) / n^2
	num := new(big.Int).Mul(n, big.NewInt(m.SumSq))
	num.Sub(num, new(big.Int).Mul(sum, sum))
	den := new(big.Int).Mul(n, n)

	variance, _ = new(big.Rat).SetFrac(num, den).Float64()

	// score*100 = floor((200*num + den) / (2*den))
	scaled := new(big.Int).Mul(num, big.NewInt(200))
	scaled.Add(scaled, den)
	scaled.Quo(scaled, new(big.Int).Mul(den, big.NewInt(2)))
	score = float64(scaled.Int64()) / 100

	mean = float64(m.Sum) / float64(m.Count)
	return mean, variance, score
}

// RoundScore rounds a raw variance half-up to two decimals. Negative and NaN
// inputs score 0.
func RoundScore(raw float64) float64 {
	if math.IsNaN(raw) || raw <= 0 {
		return 0
	}
	if math.IsInf(raw, 1) {
		return raw
	}
	scaled := float64(raw * 100)
	return math.Floor(scaled+0.5) / 100
}

// Classify reports whether a score counts as blurred. The comparison is
// strict: a score equal to the threshold is sharp.
func Classify(score, threshold float64) bool {
	return score < threshold
}
