package audiocore

import (
	"github.com/tphakala/withu/internal/errors"
)

// ComponentAudioCore identifies errors raised by capture code.
const ComponentAudioCore = "audiocore"

// Sentinel errors. EnhancedError matches by category, so any error built
// with the same category satisfies errors.Is against these.
var (
	// ErrPermissionDenied is returned when microphone access is refused.
	ErrPermissionDenied = errors.New(errors.NewStd("microphone permission denied")).
		Component(ComponentAudioCore).
		Category(errors.CategoryPermission).
		Build()

	// ErrDeviceUnavailable is returned when no input device exists or it failed.
	ErrDeviceUnavailable = errors.New(errors.NewStd("audio input device unavailable")).
		Component(ComponentAudioCore).
		Category(errors.CategoryDevice).
		Build()

	// ErrUnsupportedPlatform is returned when no capture backend exists for this runtime.
	ErrUnsupportedPlatform = errors.New(errors.NewStd("audio capture unsupported platform")).
		Component(ComponentAudioCore).
		Category(errors.CategoryPlatform).
		Build()

	// ErrSourceExhausted is returned by finite sources at end of input.
	ErrSourceExhausted = errors.NewStd("audio source exhausted")

	// ErrNotOpen is returned by ReadFrame before Open or after Close.
	ErrNotOpen = errors.NewStd("audio source not open")

	// ErrAlreadyOpen is returned when Open is called on an open source.
	ErrAlreadyOpen = errors.NewStd("audio source already open")
)

// NewPermissionError wraps a backend error as a permission failure.
func NewPermissionError(err error, source string) error {
	return errors.New(err).
		Component(ComponentAudioCore).
		Category(errors.CategoryPermission).
		Context("source", source).
		Build()
}

// NewDeviceError wraps a backend error as a device failure.
func NewDeviceError(err error, source, operation string) error {
	return errors.New(err).
		Component(ComponentAudioCore).
		Category(errors.CategoryDevice).
		Context("source", source).
		Context("operation", operation).
		Build()
}

// NewUnsupportedPlatformError reports a runtime without a capture backend.
func NewUnsupportedPlatformError(goos string) error {
	return errors.Newf("audio capture unsupported platform: %s", goos).
		Component(ComponentAudioCore).
		Category(errors.CategoryPlatform).
		Context("goos", goos).
		Build()
}

func newValidationError(field string, value any, msg string) error {
	return errors.Newf("invalid capture constraints: %s", msg).
		Component(ComponentAudioCore).
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", value).
		Build()
}
