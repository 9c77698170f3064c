package audiocore

import "context"

// FrameSource is a pull-based provider of AudioFrames.
type FrameSource interface {
	// Name identifies the source in logs and status output.
	Name() string

	// Open acquires the input stream. It fails with an error matching
	// ErrPermissionDenied, ErrDeviceUnavailable or ErrUnsupportedPlatform.
	Open(ctx context.Context) error

	// ReadFrame returns the current spectrum snapshot without blocking.
	// Finite sources return ErrSourceExhausted once their input is consumed.
	ReadFrame() (AudioFrame, error)

	// Close releases the stream. It is idempotent.
	Close() error
}

// SourceFactory creates a fresh FrameSource for each monitoring session.
type SourceFactory func(c Constraints) (FrameSource, error)
