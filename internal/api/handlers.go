package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/withu/internal/alert"
	"github.com/tphakala/withu/internal/classifier"
	"github.com/tphakala/withu/internal/errors"
	"github.com/tphakala/withu/internal/logger"
)

// StatusResponse is the monitoring status snapshot.
type StatusResponse struct {
	State      string                     `json:"state"`
	Monitoring bool                       `json:"monitoring"`
	Source     string                     `json:"source"`
	SoundLevel float64                    `json:"soundLevel"`
	LastEvent  *classifier.DetectionEvent `json:"lastEvent,omitempty"`
	Alert      *alert.Alert               `json:"alert,omitempty"`
	LastError  *alert.MonitorError        `json:"lastError,omitempty"`
	Speaking   bool                       `json:"speaking"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// ControlResult represents the result of a control operation
type ControlResult struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// ConfigResponse is the runtime-tunable classifier configuration.
type ConfigResponse struct {
	Threshold  float64  `json:"threshold"`
	CooldownMs int64    `json:"cooldownMs"`
	Enabled    []string `json:"enabled"`
	Scheme     string   `json:"scheme"`
	FFTSize    int      `json:"fftSize"`
	SampleRate int      `json:"sampleRate"`
}

// ConfigUpdateRequest changes any subset of the tunable fields.
type ConfigUpdateRequest struct {
	Threshold  *float64  `json:"threshold,omitempty"`
	CooldownMs *int64    `json:"cooldownMs,omitempty"`
	Enabled    *[]string `json:"enabled,omitempty"`
}

// GetStatus handles GET /api/v1/status
func (c *Controller) GetStatus(ctx echo.Context) error {
	resp := StatusResponse{
		State:      c.deps.Classifier.State().String(),
		Monitoring: c.deps.Monitor.Running(),
		Source:     c.deps.Classifier.SourceName(),
		SoundLevel: c.deps.Classifier.SoundLevel(),
		Speaking:   c.deps.Alerts.Speaking(),
		Timestamp:  time.Now(),
	}
	if ev, ok := c.deps.Classifier.LastEvent(); ok {
		resp.LastEvent = &ev
	}
	if a, ok := c.deps.Alerts.Active(); ok {
		resp.Alert = &a
	}
	if me, ok := c.deps.Alerts.LastError(); ok {
		resp.LastError = &me
	}
	return ctx.JSON(http.StatusOK, resp)
}

// StartMonitoring handles POST /api/v1/monitor/start
func (c *Controller) StartMonitoring(ctx echo.Context) error {
	if c.deps.Monitor.Running() {
		return ctx.JSON(http.StatusOK, ControlResult{
			Success:   true,
			Message:   "Monitoring already active",
			Action:    "start",
			Timestamp: time.Now(),
		})
	}

	if err := c.deps.Monitor.Start(ctx.Request().Context()); err != nil {
		kind := classifier.KindOf(err)
		return c.HandleError(ctx, err, "Failed to start monitoring: "+kind.String(), statusForKind(kind))
	}

	c.log.Info("monitoring started via api", logger.String("source", c.deps.Classifier.SourceName()))
	return ctx.JSON(http.StatusOK, ControlResult{
		Success:   true,
		Message:   "Monitoring started",
		Action:    "start",
		Timestamp: time.Now(),
	})
}

// StopMonitoring handles POST /api/v1/monitor/stop
func (c *Controller) StopMonitoring(ctx echo.Context) error {
	if err := c.deps.Monitor.Stop(); err != nil {
		return c.HandleError(ctx, err, "Failed to stop monitoring", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, ControlResult{
		Success:   true,
		Message:   "Monitoring stopped",
		Action:    "stop",
		Timestamp: time.Now(),
	})
}

func statusForKind(kind classifier.ErrorKind) int {
	switch kind {
	case classifier.ErrorKindPermissionDenied:
		return http.StatusForbidden
	case classifier.ErrorKindDeviceUnavailable:
		return http.StatusServiceUnavailable
	case classifier.ErrorKindUnsupportedPlatform:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func configResponse(cfg classifier.Config) ConfigResponse {
	enabled := make([]string, 0, len(cfg.Enabled))
	for _, cat := range cfg.Enabled {
		enabled = append(enabled, string(cat))
	}
	return ConfigResponse{
		Threshold:  cfg.DetectionThreshold,
		CooldownMs: cfg.Cooldown.Milliseconds(),
		Enabled:    enabled,
		Scheme:     string(cfg.Scheme),
		FFTSize:    cfg.FFTSize,
		SampleRate: cfg.SampleRate,
	}
}

// GetConfig handles GET /api/v1/config
func (c *Controller) GetConfig(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, configResponse(c.deps.Classifier.Config()))
}

// UpdateConfig handles PUT /api/v1/config
func (c *Controller) UpdateConfig(ctx echo.Context) error {
	var req ConfigUpdateRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	cfg := c.deps.Classifier.Config()
	if req.Threshold != nil {
		cfg.DetectionThreshold = *req.Threshold
	}
	if req.CooldownMs != nil {
		cfg.Cooldown = time.Duration(*req.CooldownMs) * time.Millisecond
	}
	if req.Enabled != nil {
		cfg.Enabled = make([]classifier.SoundCategory, 0, len(*req.Enabled))
		for _, name := range *req.Enabled {
			cat, ok := classifier.ParseCategory(name)
			if !ok || cat == classifier.CategoryEmergency {
				return c.HandleError(ctx, nil, "Unknown category: "+name, http.StatusBadRequest)
			}
			cfg.Enabled = append(cfg.Enabled, cat)
		}
	}

	if err := c.deps.Classifier.UpdateConfig(cfg); err != nil {
		if errors.IsCategory(err, errors.CategoryValidation) {
			return c.HandleError(ctx, err, "Invalid classifier configuration", http.StatusBadRequest)
		}
		return c.HandleError(ctx, err, "Failed to update configuration", http.StatusInternalServerError)
	}

	if c.deps.OnConfigChange != nil {
		if err := c.deps.OnConfigChange(cfg); err != nil {
			return c.HandleError(ctx, err, "Configuration applied but could not be saved", http.StatusInternalServerError)
		}
	}

	return ctx.JSON(http.StatusOK, configResponse(c.deps.Classifier.Config()))
}

// GetAlertHistory handles GET /api/v1/alerts
func (c *Controller) GetAlertHistory(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.deps.Alerts.History())
}

// GetActiveAlert handles GET /api/v1/alerts/active
func (c *Controller) GetActiveAlert(ctx echo.Context) error {
	a, ok := c.deps.Alerts.Active()
	if !ok {
		return ctx.NoContent(http.StatusNoContent)
	}
	return ctx.JSON(http.StatusOK, a)
}

// DismissAlert handles POST /api/v1/alerts/dismiss
func (c *Controller) DismissAlert(ctx echo.Context) error {
	a, ok := c.deps.Alerts.Dismiss()
	if !ok {
		return c.HandleError(ctx, nil, "No active alert", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, a)
}

// PlayAssistance handles POST /api/v1/assistance/play
func (c *Controller) PlayAssistance(ctx echo.Context) error {
	if err := c.deps.Alerts.PlayAssistance(); err != nil {
		return c.HandleError(ctx, err, "Failed to play assistance message", http.StatusConflict)
	}
	return ctx.JSON(http.StatusOK, ControlResult{
		Success:   true,
		Message:   "Assistance message playing",
		Action:    "play",
		Timestamp: time.Now(),
	})
}

// StopAssistance handles POST /api/v1/assistance/stop
func (c *Controller) StopAssistance(ctx echo.Context) error {
	c.deps.Alerts.StopAssistance()
	return ctx.JSON(http.StatusOK, ControlResult{
		Success:   true,
		Message:   "Assistance message stopped",
		Action:    "stop",
		Timestamp: time.Now(),
	})
}
