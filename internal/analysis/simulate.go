package analysis

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/tphakala/withu/internal/audiocore/sources/synth"
	"github.com/tphakala/withu/internal/conf"
	"github.com/tphakala/withu/internal/errors"
	"github.com/tphakala/withu/internal/logger"
)

// SimulateOptions selects the synthetic pattern and how it is played.
type SimulateOptions struct {
	Pattern  string
	Duration time.Duration
	// Live paces frames in real time with console alerts. Otherwise the
	// pattern is analysed as fast as possible.
	Live bool
	Seed uint64
}

// PatternNames lists the built-in synthetic patterns.
func PatternNames() []string {
	names := make([]string, 0, len(synth.Patterns))
	for name := range synth.Patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Simulate runs the pipeline over a synthetic pattern.
func Simulate(ctx context.Context, settings *conf.Settings, opts SimulateOptions, out io.Writer) error {
	p, ok := synth.Patterns[opts.Pattern]
	if !ok {
		return errors.Newf("unknown pattern %q, expected one of %s", opts.Pattern, strings.Join(PatternNames(), ", ")).
			Component("analysis").
			Category(errors.CategoryValidation).
			Build()
	}

	synthOpts := []synth.Option{synth.WithDuration(opts.Duration)}
	if opts.Seed != 0 {
		synthOpts = append(synthOpts, synth.WithSeed(opts.Seed))
	}
	factory := withConstraints(synth.Factory(p, synthOpts...), settings.Constraints())
	source := "synth:" + opts.Pattern

	GetLogger().Info("starting simulation",
		logger.String("pattern", opts.Pattern),
		logger.Duration("duration", opts.Duration),
		logger.Bool("live", opts.Live))

	if !opts.Live {
		if opts.Duration <= 0 {
			return errors.Newf("offline simulation needs a positive duration").
				Component("analysis").
				Category(errors.CategoryValidation).
				Build()
		}
		fmt.Fprintf(out, "Simulating %s for %v\n", opts.Pattern, opts.Duration)
		report, err := RunOffline(ctx, settings, factory, source)
		if err != nil {
			return err
		}
		PrintReport(out, report)
		return nil
	}

	pipeline, err := NewConsolePipeline(settings, factory, out)
	if err != nil {
		return err
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			GetLogger().Warn("failed to close pipeline", logger.Error(err))
		}
	}()
	return RealtimeMonitoring(ctx, pipeline, out)
}
