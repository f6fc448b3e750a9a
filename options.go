package epub

import "go.uber.org/zap"

// Option configures Open and NewReader.
type Option func(*options)

type options struct {
	log          *zap.Logger
	maxEntrySize int64
	rejectDRM    bool
}

func defaultOptions() options {
	return options{
		log:          zap.NewNop(),
		maxEntrySize: defaultMaxEntrySize,
	}
}

// WithLogger sets the logger that receives parse diagnostics. Warnings are
// logged at warn level and also returned by Book.Warnings.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMaxEntrySize overrides the decompressed size limit of a single ZIP
// entry (256 MiB by default).
func WithMaxEntrySize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEntrySize = n
		}
	}
}

// WithRejectDRM makes Open and NewReader fail with ErrDRMProtected for
// publications protected by a DRM scheme. Without it such books open and
// only their encrypted resources are unreadable.
func WithRejectDRM() Option {
	return func(o *options) {
		o.rejectDRM = true
	}
}
