package obu

import "go.uber.org/zap"

type options struct {
	logger   *zap.Logger
	annexB   bool
	frameOBU bool
}

// Option configures a Decoder or an Encoder.
type Option func(*options)

// WithLogger sets the logger used for per OBU debug output. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAnnexB selects length delimited framing: temporal units made of frame units made of
// obu_length prefixed OBUs.
func WithAnnexB(enabled bool) Option {
	return func(o *options) {
		o.annexB = enabled
	}
}

// WithFrameOBU makes the encoder pack the frame header and its tile group into one OBU_FRAME.
func WithFrameOBU(enabled bool) Option {
	return func(o *options) {
		o.frameOBU = enabled
	}
}

func newOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
