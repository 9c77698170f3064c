package classifier

import "time"

// Recorder receives pipeline measurements. The metrics package provides a
// Prometheus implementation.
type Recorder interface {
	RecordFrame(duration time.Duration)
	RecordCandidate(category SoundCategory, confidence float64)
	RecordDetection(category SoundCategory)
	RecordSoundLevel(level float64)
	RecordError(kind ErrorKind)
	RecordState(state State)
}

type noopRecorder struct{}

func (noopRecorder) RecordFrame(time.Duration) {}
func (noopRecorder) RecordCandidate(SoundCategory, float64) {}
func (noopRecorder) RecordDetection(SoundCategory) {}
func (noopRecorder) RecordSoundLevel(float64) {}
func (noopRecorder) RecordError(ErrorKind) {}
func (noopRecorder) RecordState(State) {}
