// Package conf loads, validates and persists withu settings.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/withu/internal/classifier"
	"github.com/tphakala/withu/internal/errors"
	"github.com/tphakala/withu/internal/logger"
)

// Settings contains all configuration options for withu.
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`

	Main struct {
		Name string `yaml:"name" mapstructure:"name"` // name shown in status output
	} `yaml:"main" mapstructure:"main"`

	Logging logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`

	Capture    CaptureSettings    `yaml:"capture" mapstructure:"capture"`
	Classifier ClassifierSettings `yaml:"classifier" mapstructure:"classifier"`
	Alert      AlertSettings      `yaml:"alert" mapstructure:"alert"`
	EventBus   EventBusSettings   `yaml:"eventbus" mapstructure:"eventbus"`
	WebServer  WebServerSettings  `yaml:"webserver" mapstructure:"webserver"`
	Telemetry  TelemetrySettings  `yaml:"telemetry" mapstructure:"telemetry"`

	// ConfigFile is the file the settings were read from, if any.
	ConfigFile string `yaml:"-" mapstructure:"-"`
}

// CaptureSettings select and tune the audio source.
type CaptureSettings struct {
	Backend          string  `yaml:"backend" mapstructure:"backend"`                   // malgo, file or synth
	Device           string  `yaml:"device" mapstructure:"device"`                     // capture device name, ID or "default"
	File             string  `yaml:"file" mapstructure:"file"`                         // WAV path for the file backend
	Pattern          string  `yaml:"pattern" mapstructure:"pattern"`                   // synth pattern name
	SampleRate       int     `yaml:"samplerate" mapstructure:"samplerate"`             // Hz
	FFTSize          int     `yaml:"fftsize" mapstructure:"fftsize"`                   // 4096 advanced, 2048 simplified
	Smoothing        float64 `yaml:"smoothing" mapstructure:"smoothing"`               // analyser smoothing time constant
	AnalysisRate     int     `yaml:"analysisrate" mapstructure:"analysisrate"`         // frames per second
	BufferSeconds    float64 `yaml:"bufferseconds" mapstructure:"bufferseconds"`       // capture ring buffer length
	EchoCancellation bool    `yaml:"echocancellation" mapstructure:"echocancellation"` // keep off for raw spectra
	NoiseSuppression bool    `yaml:"noisesuppression" mapstructure:"noisesuppression"` // keep off for raw spectra
}

// ClassifierSettings tune detection.
type ClassifierSettings struct {
	Scheme     string   `yaml:"scheme" mapstructure:"scheme"`         // advanced or simplified
	Threshold  float64  `yaml:"threshold" mapstructure:"threshold"`   // confidence must exceed this
	CooldownMs int      `yaml:"cooldownms" mapstructure:"cooldownms"` // minimum gap between detections
	Enabled    []string `yaml:"enabled" mapstructure:"enabled"`       // empty enables every category

	Calibration classifier.Calibration `yaml:"calibration" mapstructure:"calibration"`
}

// AlertSettings control the alert peripherals.
type AlertSettings struct {
	AutoAlert       bool   `yaml:"autoalert" mapstructure:"autoalert"`
	Vibration       bool   `yaml:"vibration" mapstructure:"vibration"`
	Flash           bool   `yaml:"flash" mapstructure:"flash"`
	Sound           bool   `yaml:"sound" mapstructure:"sound"`
	Message         string `yaml:"message" mapstructure:"message"`
	DurationSeconds int    `yaml:"durationseconds" mapstructure:"durationseconds"`
	HistorySize     int    `yaml:"historysize" mapstructure:"historysize"`
}

// EventBusSettings size the detection queue.
type EventBusSettings struct {
	BufferSize int `yaml:"buffersize" mapstructure:"buffersize"`
}

// WebServerSettings configure the local control API.
type WebServerSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"`
}

// TelemetrySettings configure metrics and error reporting.
type TelemetrySettings struct {
	Prometheus struct {
		Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	} `yaml:"prometheus" mapstructure:"prometheus"`
	Sentry struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		DSN     string `yaml:"dsn" mapstructure:"dsn"`
	} `yaml:"sentry" mapstructure:"sentry"`
}

const (
	configName = "config"
	envPrefix  = "WITHU"
)

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file, environment variables and defaults.
// An empty path searches the default config paths; a missing config file is
// not an error.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaultConfig(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readConfig(v, path); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	settings.ConfigFile = v.ConfigFileUsed()

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

func readConfig(v *viper.Viper, path string) error {
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("config_path", path).
				Build()
		}
		return nil
	}

	v.SetConfigName(configName)
	paths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// GetSettings returns the most recently loaded settings, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Defaults returns the settings produced by the built-in defaults alone.
func Defaults() *Settings {
	v := viper.New()
	setDefaultConfig(v)
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		// Defaults are static; a decode failure is a programming error.
		panic(fmt.Sprintf("conf: invalid defaults: %v", err))
	}
	return settings
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
// The current directory comes first.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	if runtime.GOOS == "windows" {
		return []string{".", filepath.Join(homeDir, "AppData", "Roaming", "withu")}, nil
	}
	return []string{".", filepath.Join(homeDir, ".config", "withu"), "/etc/withu"}, nil
}

// SaveYAMLConfig writes settings to configPath atomically. It overwrites
// the existing file without preserving comments.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("operation", "create-config-dir").
			Build()
	}

	// Write to a temporary file in the same directory so the rename is atomic.
	tempFile, err := os.CreateTemp(dir, "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("operation", "replace-config-file").
			Build()
	}
	return nil
}
