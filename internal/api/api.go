// Package api exposes the local HTTP control surface: monitoring status
// and control, classifier settings, alerts and a live sound level stream.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/withu/internal/alert"
	"github.com/tphakala/withu/internal/classifier"
	"github.com/tphakala/withu/internal/errors"
	"github.com/tphakala/withu/internal/logger"
)

// Monitor starts and stops the analysis loop.
type Monitor interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
}

// Classifier exposes arbiter state and runtime configuration.
type Classifier interface {
	State() classifier.State
	SoundLevel() float64
	LastEvent() (classifier.DetectionEvent, bool)
	Config() classifier.Config
	UpdateConfig(cfg classifier.Config) error
	SourceName() string
}

// Alerts exposes the alert dispatcher.
type Alerts interface {
	Active() (alert.Alert, bool)
	Dismiss() (alert.Alert, bool)
	History() []classifier.DetectionEvent
	LastError() (alert.MonitorError, bool)
	PlayAssistance() error
	StopAssistance()
	Speaking() bool
}

// Levels is a sound level broadcaster.
type Levels interface {
	SubscribeLevels(buffer int) (<-chan float64, func())
}

// Dependencies wires the controller to the running pipeline. Metrics and
// OnConfigChange are optional.
type Dependencies struct {
	Monitor    Monitor
	Classifier Classifier
	Alerts     Alerts
	Levels     Levels
	Metrics    http.Handler

	// OnConfigChange persists a classifier configuration accepted by
	// PUT /config.
	OnConfigChange func(classifier.Config) error
}

// Controller holds the API handlers.
type Controller struct {
	Echo  *echo.Echo
	Group *echo.Group

	deps Dependencies
	log  logger.Logger

	streamInterval    time.Duration
	heartbeatInterval time.Duration
	maxStreamDuration time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithStreamInterval sets the minimum gap between sound level events.
func WithStreamInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.streamInterval = d
		}
	}
}

// WithHeartbeat sets the SSE keep-alive interval.
func WithHeartbeat(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.heartbeatInterval = d
		}
	}
}

// GetLogger returns the api module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// New registers the API routes on e.
func New(e *echo.Echo, deps Dependencies, opts ...Option) (*Controller, error) {
	if deps.Monitor == nil || deps.Classifier == nil || deps.Alerts == nil || deps.Levels == nil {
		return nil, errors.Newf("api controller requires monitor, classifier, alerts and levels").
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}

	c := &Controller{
		Echo:              e,
		deps:              deps,
		log:               GetLogger(),
		streamInterval:    soundLevelStreamInterval,
		heartbeatInterval: soundLevelHeartbeatInterval,
		maxStreamDuration: soundLevelMaxDuration,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Group = e.Group("/api/v1")
	c.initRoutes()
	return c, nil
}

func (c *Controller) initRoutes() {
	c.Group.GET("/status", c.GetStatus)

	c.Group.POST("/monitor/start", c.StartMonitoring)
	c.Group.POST("/monitor/stop", c.StopMonitoring)

	c.Group.GET("/config", c.GetConfig)
	c.Group.PUT("/config", c.UpdateConfig)

	c.Group.GET("/alerts", c.GetAlertHistory)
	c.Group.GET("/alerts/active", c.GetActiveAlert)
	c.Group.POST("/alerts/dismiss", c.DismissAlert)

	c.Group.POST("/assistance/play", c.PlayAssistance)
	c.Group.POST("/assistance/stop", c.StopAssistance)

	c.initSoundLevelRoutes()

	if c.deps.Metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.deps.Metrics))
	}
}

// NewEcho returns an echo instance with the middleware stack used by the
// control surface.
func NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	return e
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// HandleError logs err and writes a JSON error response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
	if err != nil {
		resp.Error = err.Error()
	}

	c.log.Warn("api error",
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("message", message),
		logger.Int("code", code),
		logger.Error(err))

	return ctx.JSON(code, resp)
}

func generateCorrelationID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b)
}
