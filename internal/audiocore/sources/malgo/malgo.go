// Package malgo captures microphone audio through miniaudio and exposes it
// as an audiocore.FrameSource.
//
// The device callback copies S16 PCM into a ring buffer; ReadFrame drains
// whatever has arrived since the last call into the spectrum analyser, so
// reads never wait on the device.
package malgo

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/withu/internal/audiocore"
	"github.com/tphakala/withu/internal/audiocore/spectrum"
	"github.com/tphakala/withu/internal/errors"
	"github.com/tphakala/withu/internal/logger"
)

// Config selects and tunes the capture device.
type Config struct {
	// DeviceName is a device name, decoded ID or name fragment. Empty
	// selects the system default.
	DeviceName string
	// PeriodFrames is the device callback size. Zero lets the backend pick.
	PeriodFrames uint32
	// BufferSeconds sizes the ring buffer between callback and reader.
	BufferSeconds float64
}

const defaultBufferSeconds = 1.0

// GetLogger returns the capture module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("audio.malgo")
}

// Source is a malgo-backed FrameSource.
type Source struct {
	cfg Config
	c   audiocore.Constraints
	log logger.Logger

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	name   string
	capt   *capture

	stopped atomic.Bool
}

// capture holds the state shared between the device callback and ReadFrame.
type capture struct {
	ringMu     sync.Mutex
	ring       *ringbuffer.RingBuffer
	ringSize   int
	frameBytes int
	dropped    atomic.Uint64

	// Reader side, guarded by Source.mu.
	sampleRate int
	fftSize    int
	channels   int
	analyser   *spectrum.Analyser
	raw        []byte
	samples    []float64
	bins       []uint8
}

func newCapture(c audiocore.Constraints, bufferSeconds float64) (*capture, error) {
	analyser, err := spectrum.NewAnalyser(c.FFTSize, c.SmoothingTimeConstant)
	if err != nil {
		return nil, err
	}
	if bufferSeconds <= 0 {
		bufferSeconds = defaultBufferSeconds
	}

	frameBytes := 2 * c.Channels
	frames := max(int(bufferSeconds*float64(c.SampleRate)), c.FFTSize)
	return &capture{
		ring:       ringbuffer.New(frames * frameBytes),
		ringSize:   frames * frameBytes,
		frameBytes: frameBytes,
		sampleRate: c.SampleRate,
		fftSize:    c.FFTSize,
		channels:   c.Channels,
		analyser:   analyser,
	}, nil
}

// write is called from the device thread. When the reader falls behind the
// oldest audio is discarded so the analyser always sees the newest samples.
func (cp *capture) write(pcm []byte) {
	cp.ringMu.Lock()
	defer cp.ringMu.Unlock()

	size := cp.ringSize
	if len(pcm) > size {
		cp.dropped.Add(uint64(len(pcm) - size))
		pcm = pcm[len(pcm)-size:]
	}
	if free := cp.ring.Free(); free < len(pcm) {
		discard := len(pcm) - free
		if rem := discard % cp.frameBytes; rem != 0 {
			discard += cp.frameBytes - rem
		}
		trash := make([]byte, discard)
		n, _ := cp.ring.Read(trash)
		cp.dropped.Add(uint64(n))
	}
	if _, err := cp.ring.Write(pcm); err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		GetLogger().Warn("failed to buffer captured audio", logger.Error(err))
	}
}

// frame drains the ring and returns the current spectrum.
func (cp *capture) frame() audiocore.AudioFrame {
	cp.ringMu.Lock()
	n := cp.ring.Length()
	n -= n % cp.frameBytes
	if cap(cp.raw) < n {
		cp.raw = make([]byte, n)
	}
	raw := cp.raw[:n]
	if n > 0 {
		read, err := cp.ring.Read(raw)
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			GetLogger().Warn("failed to drain capture buffer", logger.Error(err))
		}
		raw = raw[:read-read%cp.frameBytes]
	}
	cp.ringMu.Unlock()

	if len(raw) > 0 {
		cp.samples = audiocore.S16LEToFloat(cp.samples, raw, cp.channels)
		cp.analyser.Push(cp.samples)
	}
	cp.bins = cp.analyser.ByteFrequencyData(cp.bins)

	return audiocore.AudioFrame{
		Bins:       append([]uint8(nil), cp.bins...),
		SampleRate: cp.sampleRate,
		FFTSize:    cp.fftSize,
	}
}

// New creates a capture source. No device is touched until Open.
func New(cfg Config, c audiocore.Constraints) (*Source, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Source{cfg: cfg, c: c, log: GetLogger()}, nil
}

// Factory returns a SourceFactory opening the configured device.
func Factory(cfg Config) audiocore.SourceFactory {
	return func(c audiocore.Constraints) (audiocore.FrameSource, error) {
		return New(cfg, c)
	}
}

// Name implements audiocore.FrameSource.
func (s *Source) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.name != "" {
		return "malgo:" + s.name
	}
	if s.cfg.DeviceName != "" {
		return "malgo:" + s.cfg.DeviceName
	}
	return "malgo:default"
}

// Open selects the device and starts capture. Failures match
// audiocore.ErrPermissionDenied, ErrDeviceUnavailable or
// ErrUnsupportedPlatform.
func (s *Source) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		return audiocore.ErrAlreadyOpen
	}

	cp, err := newCapture(s.c, s.cfg.BufferSeconds)
	if err != nil {
		return err
	}

	mctx, err := initContext()
	if err != nil {
		return err
	}

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		freeContext(mctx)
		return classifyBackendError(err, s.cfg.DeviceName, "enumerate_devices")
	}
	devices := toDeviceInfos(infos)
	idx, err := selectDevice(devices, s.cfg.DeviceName)
	if err != nil {
		freeContext(mctx)
		return err
	}
	selected := devices[idx]

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(s.c.Channels)
	deviceConfig.Capture.DeviceID = infos[selected.Index].ID.Pointer()
	deviceConfig.SampleRate = uint32(s.c.SampleRate)
	deviceConfig.Alsa.NoMMap = 1
	if s.cfg.PeriodFrames > 0 {
		deviceConfig.PeriodSizeInFrames = s.cfg.PeriodFrames
	}

	s.stopped.Store(false)
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			cp.write(input)
		},
		Stop: func() {
			s.stopped.Store(true)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		freeContext(mctx)
		return classifyBackendError(err, selected.Name, "init_device")
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		freeContext(mctx)
		return classifyBackendError(err, selected.Name, "start_device")
	}

	s.ctx = mctx
	s.device = device
	s.capt = cp
	s.name = selected.Name

	s.log.Info("audio capture started",
		logger.String("device", selected.Name),
		logger.String("device_id", selected.ID),
		logger.Int("sample_rate", s.c.SampleRate),
		logger.Int("channels", s.c.Channels),
		logger.Int("fft_size", s.c.FFTSize))

	if s.c.EchoCancellation || s.c.NoiseSuppression {
		s.log.Debug("capture processing requested but not available, using raw input",
			logger.Bool("echo_cancellation", s.c.EchoCancellation),
			logger.Bool("noise_suppression", s.c.NoiseSuppression))
	}

	return nil
}

// ReadFrame implements audiocore.FrameSource.
func (s *Source) ReadFrame() (audiocore.AudioFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return audiocore.AudioFrame{}, audiocore.ErrNotOpen
	}
	if s.stopped.Load() {
		return audiocore.AudioFrame{}, audiocore.NewDeviceError(
			errors.NewStd("capture device stopped unexpectedly"), s.name, "read")
	}
	return s.capt.frame(), nil
}

// Dropped returns the number of PCM bytes discarded because the reader fell
// behind the device.
func (s *Source) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capt == nil {
		return 0
	}
	return s.capt.dropped.Load()
}

// Close stops the device and releases the backend. It is idempotent.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return nil
	}

	var err error
	if stopErr := s.device.Stop(); stopErr != nil && !s.stopped.Load() {
		err = classifyBackendError(stopErr, s.name, "stop_device")
	}
	s.device.Uninit()
	freeContext(s.ctx)

	if s.capt != nil && s.capt.dropped.Load() > 0 {
		s.log.Warn("capture reader fell behind the device",
			logger.Uint64("dropped_bytes", s.capt.dropped.Load()))
	}
	s.log.Info("audio capture stopped", logger.String("device", s.name))

	s.device = nil
	s.ctx = nil
	s.capt = nil
	return err
}
