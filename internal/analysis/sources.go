package analysis

import (
	"fmt"

	"github.com/tphakala/withu/internal/audiocore"
	"github.com/tphakala/withu/internal/audiocore/sources/file"
	"github.com/tphakala/withu/internal/audiocore/sources/malgo"
	"github.com/tphakala/withu/internal/audiocore/sources/synth"
	"github.com/tphakala/withu/internal/conf"
	"github.com/tphakala/withu/internal/errors"
)

// SourceFactory returns the capture factory selected by capture.backend.
func SourceFactory(settings *conf.Settings, opts ...synth.Option) (audiocore.SourceFactory, error) {
	var factory audiocore.SourceFactory

	switch settings.Capture.Backend {
	case conf.BackendMalgo:
		factory = malgo.Factory(malgo.Config{
			DeviceName:    settings.Capture.Device,
			BufferSeconds: settings.Capture.BufferSeconds,
		})
	case conf.BackendFile:
		factory = file.Factory(settings.Capture.File)
	case conf.BackendSynth:
		p, ok := synth.Patterns[settings.Capture.Pattern]
		if !ok {
			return nil, errors.Newf("unknown synth pattern %q", settings.Capture.Pattern).
				Component("analysis").
				Category(errors.CategoryConfiguration).
				Build()
		}
		factory = synth.Factory(p, opts...)
	default:
		return nil, errors.New(fmt.Errorf("unsupported capture backend %q", settings.Capture.Backend)).
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return withConstraints(factory, settings.Constraints()), nil
}

// withConstraints overrides the analysis rate and capture processing flags
// the classifier leaves at their defaults.
func withConstraints(factory audiocore.SourceFactory, want audiocore.Constraints) audiocore.SourceFactory {
	return func(c audiocore.Constraints) (audiocore.FrameSource, error) {
		c.AnalysisRate = want.AnalysisRate
		c.EchoCancellation = want.EchoCancellation
		c.NoiseSuppression = want.NoiseSuppression
		return factory(c)
	}
}
