// Package classifier implements the emergency sound recognition pipeline.
//
// Each analysis tick flows one way through the package:
//
//	AudioFrame -> ExtractFeatures -> Matchers -> Select -> Arbiter -> Sink
//
// Feature extraction and the matchers are pure functions. The Arbiter owns
// all mutable state (the capture source, the cooldown clock and the last
// sound level) and is the only type with a lifecycle. It does not schedule
// itself; the host calls Tick at its analysis rate (see package monitor).
package classifier
