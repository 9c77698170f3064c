package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/withu/internal/alert"
	"github.com/tphakala/withu/internal/classifier"
	"github.com/tphakala/withu/internal/errors"
)

type fakeMonitor struct {
	mu       sync.Mutex
	running  bool
	startErr error
	starts   int
	stops    int
}

func (f *fakeMonitor) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeMonitor) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
	return nil
}

func (f *fakeMonitor) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

type fakeClassifier struct {
	mu    sync.Mutex
	cfg   classifier.Config
	level float64
	last  *classifier.DetectionEvent
}

func (f *fakeClassifier) State() classifier.State { return classifier.StateActive }
func (f *fakeClassifier) SoundLevel() float64 { return f.level }
func (f *fakeClassifier) SourceName() string { return "synth:siren" }

func (f *fakeClassifier) LastEvent() (classifier.DetectionEvent, bool) {
	if f.last == nil {
		return classifier.DetectionEvent{}, false
	}
	return *f.last, true
}

func (f *fakeClassifier) Config() classifier.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *fakeClassifier) UpdateConfig(cfg classifier.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	return nil
}

type fakeAlerts struct {
	active   *alert.Alert
	history  []classifier.DetectionEvent
	playErr  error
	speaking bool
}

func (f *fakeAlerts) Active() (alert.Alert, bool) {
	if f.active == nil {
		return alert.Alert{}, false
	}
	return *f.active, true
}

func (f *fakeAlerts) Dismiss() (alert.Alert, bool) {
	if f.active == nil {
		return alert.Alert{}, false
	}
	a := *f.active
	a.Dismissed = true
	f.active = nil
	return a, true
}

func (f *fakeAlerts) History() []classifier.DetectionEvent { return f.history }

func (f *fakeAlerts) LastError() (alert.MonitorError, bool) { return alert.MonitorError{}, false }

func (f *fakeAlerts) PlayAssistance() error {
	if f.playErr != nil {
		return f.playErr
	}
	f.speaking = true
	return nil
}

func (f *fakeAlerts) StopAssistance() { f.speaking = false }
func (f *fakeAlerts) Speaking() bool { return f.speaking }

type fakeLevels struct {
	values []float64
}

func (f *fakeLevels) SubscribeLevels(int) (<-chan float64, func()) {
	ch := make(chan float64, len(f.values))
	for _, v := range f.values {
		ch <- v
	}
	close(ch)
	return ch, func() {}
}

type fixture struct {
	e          *echo.Echo
	monitor    *fakeMonitor
	classifier *fakeClassifier
	alerts     *fakeAlerts
	saved      []classifier.Config
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		e:          NewEcho(),
		monitor:    &fakeMonitor{},
		classifier: &fakeClassifier{cfg: classifier.DefaultConfig(), level: 42},
		alerts:     &fakeAlerts{},
	}
	_, err := New(f.e, Dependencies{
		Monitor:    f.monitor,
		Classifier: f.classifier,
		Alerts:     f.alerts,
		Levels:     &fakeLevels{values: []float64{12.34, 50, 60}},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("withu_sound_level 42\n"))
		}),
		OnConfigChange: func(cfg classifier.Config) error {
			f.saved = append(f.saved, cfg)
			return nil
		},
	}, opts...)
	require.NoError(t, err)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(NewEcho(), Dependencies{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t)
	f.classifier.last = &classifier.DetectionEvent{ID: "e1", Type: classifier.CategorySiren, Confidence: 0.8}
	f.alerts.active = &alert.Alert{ID: "a1", Type: classifier.CategorySiren}

	rec := f.do(http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "active", resp.State)
	assert.Equal(t, "synth:siren", resp.Source)
	assert.InDelta(t, 42, resp.SoundLevel, 1e-9)
	require.NotNil(t, resp.LastEvent)
	assert.Equal(t, "e1", resp.LastEvent.ID)
	require.NotNil(t, resp.Alert)
	assert.Equal(t, "a1", resp.Alert.ID)
	assert.Nil(t, resp.LastError)
}

func TestMonitorStartStop(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/monitor/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.monitor.Running())

	rec = f.do(http.MethodPost, "/api/v1/monitor/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "already active")
	assert.Equal(t, 1, f.monitor.starts)

	rec = f.do(http.MethodPost, "/api/v1/monitor/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.monitor.Running())
}

func TestMonitorStartFailureStatus(t *testing.T) {
	tests := []struct {
		name     string
		category errors.ErrorCategory
		want     int
	}{
		{"permission", errors.CategoryPermission, http.StatusForbidden},
		{"device", errors.CategoryDevice, http.StatusServiceUnavailable},
		{"platform", errors.CategoryPlatform, http.StatusNotImplemented},
		{"other", errors.CategorySystem, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.monitor.startErr = errors.Newf("capture failed").
				Component("test").
				Category(tt.category).
				Build()

			rec := f.do(http.MethodPost, "/api/v1/monitor/start", "")
			assert.Equal(t, tt.want, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Code)
			assert.NotEmpty(t, resp.CorrelationID)
		})
	}
}

func TestUpdateConfig(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPut, "/api/v1/config", `{"threshold":0.75,"cooldownMs":2000,"enabled":["siren","fire_alarm"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ConfigResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 0.75, resp.Threshold, 1e-9)
	assert.Equal(t, int64(2000), resp.CooldownMs)
	assert.Equal(t, []string{"siren", "fire_alarm"}, resp.Enabled)
	assert.Equal(t, 4096, resp.FFTSize)

	require.Len(t, f.saved, 1)
	assert.Equal(t, 2*time.Second, f.saved[0].Cooldown)

	rec = f.do(http.MethodGet, "/api/v1/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"threshold":0.75`)
}

func TestUpdateConfigPartial(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPut, "/api/v1/config", `{"cooldownMs":0}`)
	require.Equal(t, http.StatusOK, rec.Code)

	cfg := f.classifier.Config()
	assert.Equal(t, time.Duration(0), cfg.Cooldown)
	assert.InDelta(t, classifier.DefaultDetectionThreshold, cfg.DetectionThreshold, 1e-9)
}

func TestUpdateConfigRejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"threshold out of range", `{"threshold":1.5}`},
		{"unknown category", `{"enabled":["doorbell"]}`},
		{"emergency category", `{"enabled":["emergency"]}`},
		{"malformed body", `{"threshold":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(http.MethodPut, "/api/v1/config", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, f.saved)
			assert.InDelta(t, classifier.DefaultDetectionThreshold, f.classifier.Config().DetectionThreshold, 1e-9)
		})
	}
}

func TestAlertRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/alerts/active", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/alerts/dismiss", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.alerts.active = &alert.Alert{ID: "a1", Type: classifier.CategoryFireAlarm}
	f.alerts.history = []classifier.DetectionEvent{{ID: "e2"}, {ID: "e1"}}

	rec = f.do(http.MethodGet, "/api/v1/alerts/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"a1"`)

	rec = f.do(http.MethodGet, "/api/v1/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []classifier.DetectionEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 2)
	assert.Equal(t, "e2", history[0].ID)

	rec = f.do(http.MethodPost, "/api/v1/alerts/dismiss", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var dismissed alert.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dismissed))
	assert.True(t, dismissed.Dismissed)
}

func TestAssistanceRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/assistance/play", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.alerts.Speaking())

	rec = f.do(http.MethodPost, "/api/v1/assistance/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.alerts.Speaking())

	f.alerts.playErr = errors.Newf("no speaker").Component("test").Category(errors.CategoryAlert).Build()
	rec = f.do(http.MethodPost, "/api/v1/assistance/play", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "withu_sound_level 42")
}

func TestSoundLevelStream(t *testing.T) {
	f := newFixture(t, WithStreamInterval(time.Hour))

	rec := f.do(http.MethodGet, "/api/v1/streams/sound-level", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream; charset=utf-8", rec.Header().Get(echo.HeaderContentType))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "retry: 3000\n\n"))
	assert.Equal(t, 1, strings.Count(body, "event: sound-level"), "updates are throttled")
	assert.Contains(t, body, `"level":12.3`)
}
