package classifier

import (
	"github.com/tphakala/withu/internal/errors"
)

// ErrorKind classifies failures reported to the Sink.
type ErrorKind int

const (
	// ErrorKindAnalysisFault covers unexpected failures inside a tick.
	ErrorKindAnalysisFault ErrorKind = iota
	// ErrorKindPermissionDenied means microphone access was refused. The
	// user can recover by granting access and starting again.
	ErrorKindPermissionDenied
	// ErrorKindDeviceUnavailable means there is no working input device.
	ErrorKindDeviceUnavailable
	// ErrorKindUnsupportedPlatform means this runtime has no capture
	// backend. Monitoring should be disabled rather than retried.
	ErrorKindUnsupportedPlatform
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindPermissionDenied:
		return "permission_denied"
	case ErrorKindDeviceUnavailable:
		return "device_unavailable"
	case ErrorKindUnsupportedPlatform:
		return "unsupported_platform"
	default:
		return "analysis_fault"
	}
}

// KindOf maps an error onto an ErrorKind using its category.
func KindOf(err error) ErrorKind {
	switch errors.CategoryOf(err) {
	case errors.CategoryPermission:
		return ErrorKindPermissionDenied
	case errors.CategoryDevice, errors.CategoryAudioCapture:
		return ErrorKindDeviceUnavailable
	case errors.CategoryPlatform:
		return ErrorKindUnsupportedPlatform
	default:
		return ErrorKindAnalysisFault
	}
}

// Sink receives classifier output. Callbacks run synchronously on the
// goroutine calling Tick and must not call Start or Stop on the Arbiter
// that invoked them.
type Sink interface {
	OnDetection(event DetectionEvent)
	OnSoundLevel(level float64)
	OnError(kind ErrorKind, err error)
}

// SinkFuncs adapts plain functions to Sink. Nil fields are ignored.
type SinkFuncs struct {
	Detection  func(DetectionEvent)
	SoundLevel func(float64)
	Error      func(ErrorKind, error)
}

func (s SinkFuncs) OnDetection(event DetectionEvent) {
	if s.Detection != nil {
		s.Detection(event)
	}
}

func (s SinkFuncs) OnSoundLevel(level float64) {
	if s.SoundLevel != nil {
		s.SoundLevel(level)
	}
}

func (s SinkFuncs) OnError(kind ErrorKind, err error) {
	if s.Error != nil {
		s.Error(kind, err)
	}
}

// MultiSink fans callbacks out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) OnDetection(event DetectionEvent) {
	for _, s := range m {
		s.OnDetection(event)
	}
}

func (m MultiSink) OnSoundLevel(level float64) {
	for _, s := range m {
		s.OnSoundLevel(level)
	}
}

func (m MultiSink) OnError(kind ErrorKind, err error) {
	for _, s := range m {
		s.OnError(kind, err)
	}
}
