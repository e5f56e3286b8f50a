package analyzer

// DefaultBlurThreshold is the score below which an image counts as blurred
const DefaultBlurThreshold = 200.0

// ScoringOptions provides configuration for the sharpness scorer
type ScoringOptions struct {
	// BlurThreshold is applied to every image of a run
	BlurThreshold float64

	// Numeric policy
	Border       BorderMode
	ChannelOrder ChannelOrder

	// Performance options
	MaxWorkers int
}

// DefaultOptions returns the default scoring options
func DefaultOptions() ScoringOptions {
	return ScoringOptions{
		BlurThreshold: DefaultBlurThreshold,
		Border:        BorderReplicate,
		ChannelOrder:  ChannelOrderBGR,
		MaxWorkers:    0, // Use default CPU count
	}
}

// LumaOptions returns options using conventional RGB luma weights
func LumaOptions() ScoringOptions {
	opts := DefaultOptions()
	opts.ChannelOrder = ChannelOrderRGB
	return opts
}

// WithThreshold returns options with a different blur threshold
func (opts ScoringOptions) WithThreshold(threshold float64) ScoringOptions {
	opts.BlurThreshold = threshold
	return opts
}

// WithBorder returns options with a different convolution border policy
func (opts ScoringOptions) WithBorder(border BorderMode) ScoringOptions {
	opts.Border = border
	return opts
}

// WithChannelOrder returns options with a different grayscale channel order
func (opts ScoringOptions) WithChannelOrder(order ChannelOrder) ScoringOptions {
	opts.ChannelOrder = order
	return opts
}

// WithMaxWorkers sets the worker pool size (<= 0 means CPU count)
func (opts ScoringOptions) WithMaxWorkers(n int) ScoringOptions {
	opts.MaxWorkers = n
	return opts
}
