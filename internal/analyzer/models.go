package analyzer

import "fmt"

// SharpnessMetrics holds the outcome of scoring one buffer
type SharpnessMetrics struct {
	// Score is the variance rounded half-up to two decimals
	Score       float64 `json:"score"`
	RawVariance float64 `json:"raw_variance"`
	Mean        float64 `json:"mean"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	// Degenerate is set for zero-width or zero-height buffers, which score 0
	Degenerate bool `json:"degenerate,omitempty"`
}

// LaplacianMoments are the exact first and second moments of a Laplacian response
type LaplacianMoments struct {
	Count int64
	Sum   int64
	SumSq int64
}

// BorderMode is the boundary policy of the Laplacian convolution
type BorderMode string

const (
	// BorderReplicate extends edge pixels outward: aaa|abcd|ddd
	BorderReplicate BorderMode = "replicate"
	// BorderReflect101 mirrors around the edge pixel: cb|abcd|cb
	BorderReflect101 BorderMode = "reflect101"
)

// ParseBorderMode converts a configuration value into a BorderMode
func ParseBorderMode(s string) (BorderMode, error) {
	switch BorderMode(s) {
	case "", BorderReplicate:
		return BorderReplicate, nil
	case BorderReflect101:
		return BorderReflect101, nil
	default:
		return "", fmt.Errorf("unknown border mode: %s", s)
	}
}

// ChannelOrder says how the first three channels of a pixel are interpreted
// when converting to grayscale.
type ChannelOrder string

const (
	// ChannelOrderBGR weights channel 0 as blue. Applied to RGBA buffers this
	// matches an OpenCV BGR-to-gray conversion of the same bytes.
	ChannelOrderBGR ChannelOrder = "bgr"
	// ChannelOrderRGB is conventional Rec.601 luma on RGBA buffers
	ChannelOrderRGB ChannelOrder = "rgb"
)

// ParseChannelOrder converts a configuration value into a ChannelOrder
func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch ChannelOrder(s) {
	case "", ChannelOrderBGR:
		return ChannelOrderBGR, nil
	case ChannelOrderRGB:
		return ChannelOrderRGB, nil
	default:
		return "", fmt.Errorf("unknown channel order: %s", s)
	}
}
