package conf

import (
	"github.com/spf13/viper"

	"github.com/tphakala/withu/internal/alert"
	"github.com/tphakala/withu/internal/audiocore"
	"github.com/tphakala/withu/internal/classifier"
	"github.com/tphakala/withu/internal/logger"
)

// setDefaultConfig registers the default value of every setting.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("main.name", "withu")

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	v.SetDefault("capture.backend", BackendMalgo)
	v.SetDefault("capture.device", "default")
	v.SetDefault("capture.file", "")
	v.SetDefault("capture.pattern", "siren")
	v.SetDefault("capture.samplerate", audiocore.DefaultSampleRate)
	v.SetDefault("capture.fftsize", audiocore.FFTSizeAdvanced)
	v.SetDefault("capture.smoothing", audiocore.DefaultSmoothingTimeConstant)
	v.SetDefault("capture.analysisrate", audiocore.DefaultAnalysisRate)
	v.SetDefault("capture.bufferseconds", 1.0)
	v.SetDefault("capture.echocancellation", false)
	v.SetDefault("capture.noisesuppression", false)

	v.SetDefault("classifier.scheme", string(classifier.SchemeAdvanced))
	v.SetDefault("classifier.threshold", classifier.DefaultDetectionThreshold)
	v.SetDefault("classifier.cooldownms", classifier.DefaultCooldown.Milliseconds())
	v.SetDefault("classifier.enabled", []string{})

	cal := classifier.DefaultCalibration()
	v.SetDefault("classifier.calibration.sirenlowweight", cal.SirenLowWeight)
	v.SetDefault("classifier.calibration.sirenmidweight", cal.SirenMidWeight)
	v.SetDefault("classifier.calibration.sirenpatternnorm", cal.SirenPatternNorm)
	v.SetDefault("classifier.calibration.sirenpatternshare", cal.SirenPatternShare)
	v.SetDefault("classifier.calibration.sirensweepshare", cal.SirenSweepShare)
	v.SetDefault("classifier.calibration.peakminamplitude", cal.PeakMinAmplitude)
	v.SetDefault("classifier.calibration.peakminspacing", cal.PeakMinSpacing)
	v.SetDefault("classifier.calibration.peaksaturation", cal.PeakSaturation)
	v.SetDefault("classifier.calibration.firemidmin", cal.FireMidMin)
	v.SetDefault("classifier.calibration.firehighmin", cal.FireHighMin)
	v.SetDefault("classifier.calibration.firenorm", cal.FireNorm)
	v.SetDefault("classifier.calibration.smokeveryhighmin", cal.SmokeVeryHighMin)
	v.SetDefault("classifier.calibration.smokenorm", cal.SmokeNorm)
	v.SetDefault("classifier.calibration.simplegatetotal", cal.SimpleGateTotal)
	v.SetDefault("classifier.calibration.simplefiremidmin", cal.SimpleFireMidMin)
	v.SetDefault("classifier.calibration.simplefirehighmin", cal.SimpleFireHighMin)
	v.SetDefault("classifier.calibration.simplefirenorm", cal.SimpleFireNorm)
	v.SetDefault("classifier.calibration.simplefirecap", cal.SimpleFireCap)
	v.SetDefault("classifier.calibration.simplesmokehighmin", cal.SimpleSmokeHighMin)
	v.SetDefault("classifier.calibration.simplesmokemidmin", cal.SimpleSmokeMidMin)
	v.SetDefault("classifier.calibration.simplesmokenorm", cal.SimpleSmokeNorm)
	v.SetDefault("classifier.calibration.simplesmokecap", cal.SimpleSmokeCap)
	v.SetDefault("classifier.calibration.simplesirenlowmin", cal.SimpleSirenLowMin)
	v.SetDefault("classifier.calibration.simplesirenmidmin", cal.SimpleSirenMidMin)
	v.SetDefault("classifier.calibration.simplesirennorm", cal.SimpleSirenNorm)
	v.SetDefault("classifier.calibration.simplesirencap", cal.SimpleSirenCap)

	alertDefaults := alert.DefaultConfig()
	v.SetDefault("alert.autoalert", alertDefaults.AutoAlert)
	v.SetDefault("alert.vibration", alertDefaults.Vibration)
	v.SetDefault("alert.flash", alertDefaults.Flash)
	v.SetDefault("alert.sound", alertDefaults.Sound)
	v.SetDefault("alert.message", alertDefaults.Message)
	v.SetDefault("alert.durationseconds", int(alertDefaults.Duration.Seconds()))
	v.SetDefault("alert.historysize", alertDefaults.HistorySize)

	v.SetDefault("eventbus.buffersize", 256)

	v.SetDefault("webserver.enabled", true)
	v.SetDefault("webserver.listen", "127.0.0.1:8088")

	v.SetDefault("telemetry.prometheus.enabled", true)
	v.SetDefault("telemetry.sentry.enabled", false)
	v.SetDefault("telemetry.sentry.dsn", "")
}
