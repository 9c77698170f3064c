package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/withu/internal/errors"
	"github.com/tphakala/withu/internal/logger"
)

// DefaultShutdownTimeout bounds graceful shutdown of open connections.
const DefaultShutdownTimeout = 5 * time.Second

// Server runs the control surface on a listen address.
type Server struct {
	echo            *echo.Echo
	addr            string
	shutdownTimeout time.Duration
	log             logger.Logger
}

// NewServer wraps e for serving on addr.
func NewServer(e *echo.Echo, addr string) *Server {
	return &Server{
		echo:            e,
		addr:            addr,
		shutdownTimeout: DefaultShutdownTimeout,
		log:             GetLogger(),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting http server", logger.String("address", s.addr))
		errCh <- s.echo.Start(s.addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.New(err).
				Component("api").
				Category(errors.CategoryHTTP).
				Context("address", s.addr).
				Build()
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.log.Info("shutting down http server")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryHTTP).
			Build()
	}
	<-errCh
	return nil
}
