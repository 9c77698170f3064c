package analysis

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/withu/internal/api"
	"github.com/tphakala/withu/internal/errors"
	"github.com/tphakala/withu/internal/logger"
)

// ServeOptions configure Serve.
type ServeOptions struct {
	// ConfigPath receives classifier changes made through the API. Empty
	// keeps changes in memory.
	ConfigPath string
	// AutoStart begins monitoring as soon as the server is up.
	AutoStart bool
}

// Serve runs the HTTP control surface over p until ctx is cancelled.
func Serve(ctx context.Context, p *Pipeline, opts ServeOptions, out io.Writer) error {
	if !p.Settings.WebServer.Enabled {
		return errors.Newf("webserver is disabled in configuration").
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}

	e := api.NewEcho()
	deps := api.Dependencies{
		Monitor:        p.Runner,
		Classifier:     p.Arbiter,
		Alerts:         p.Alerts,
		Levels:         p.Bus,
		OnConfigChange: p.SaveClassifierConfig(opts.ConfigPath),
	}
	if p.Metrics != nil {
		deps.Metrics = p.Metrics.Handler()
	}
	if _, err := api.New(e, deps); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.NewServer(e, p.Settings.WebServer.Listen).Run(gctx)
	})

	if opts.AutoStart {
		g.Go(func() error {
			// A failed start is visible through /status; the server keeps
			// running so monitoring can be retried.
			if err := p.Runner.Start(gctx); err != nil {
				p.log.Warn("automatic monitoring start failed", logger.Error(err))
			}
			return nil
		})
	}

	p.log.Info("control surface ready",
		logger.String("listen", p.Settings.WebServer.Listen),
		logger.Bool("metrics", p.Metrics != nil))
	_, _ = io.WriteString(out, "Serving on http://"+p.Settings.WebServer.Listen+"/api/v1/status\n")

	return g.Wait()
}
