// Package audiocore defines the audio capture contract used by the classifier.
//
// A FrameSource owns one input stream (a microphone, a recording, or a
// generator) and turns it into frequency-domain AudioFrames on demand. The
// transform itself lives in the spectrum subpackage; concrete backends live
// under sources/.
//
// # Lifecycle
//
//   - Open acquires the stream. It is the only call that may block.
//   - ReadFrame returns the latest spectrum snapshot and never waits for audio.
//   - Close releases the stream and is safe to call any number of times.
//
// A source holds its input exclusively; a second Open on an already open
// source fails with ErrAlreadyOpen.
package audiocore
