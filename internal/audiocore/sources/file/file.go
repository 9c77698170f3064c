// Package file replays WAV recordings as a FrameSource.
package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/withu/internal/audiocore"
	"github.com/tphakala/withu/internal/audiocore/spectrum"
	"github.com/tphakala/withu/internal/errors"
	"github.com/tphakala/withu/internal/logger"
)

// Info describes a WAV file.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// Source decodes a WAV file hop by hop. Frames carry the file's own sample
// rate, so band boundaries stay correct for recordings that were not made
// at 44.1 kHz.
type Source struct {
	mu   sync.Mutex
	path string
	c    audiocore.Constraints
	log  logger.Logger

	file     *os.File
	decoder  *wav.Decoder
	info     Info
	analyser *spectrum.Analyser
	buf      *audio.IntBuffer
	samples  []float64
	bins     []uint8
	pos      int64
	eof      bool
}

// New creates a file source. The file is not touched until Open.
func New(path string, c audiocore.Constraints) (*Source, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Source{
		path: path,
		c:    c,
		log:  logger.Global().Module("audio.file"),
	}, nil
}

// Factory returns a SourceFactory that replays path on every Start.
func Factory(path string) audiocore.SourceFactory {
	return func(c audiocore.Constraints) (audiocore.FrameSource, error) {
		return New(path, c)
	}
}

// Name implements audiocore.FrameSource.
func (s *Source) Name() string {
	return "file:" + filepath.Base(s.path)
}

// ReadInfo reads the WAV header of path.
func ReadInfo(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, openError(err, path)
	}
	defer func() { _ = f.Close() }()

	d, err := newDecoder(f, path)
	if err != nil {
		return Info{}, err
	}
	return infoOf(d), nil
}

func newDecoder(f *os.File, path string) (*wav.Decoder, error) {
	d := wav.NewDecoder(f)
	d.ReadInfo()
	if !d.IsValidFile() {
		return nil, errors.Newf("invalid WAV file format").
			Component("audio.file").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	switch d.BitDepth {
	case 16, 24, 32:
	default:
		return nil, errors.Newf("unsupported bit depth: %d", d.BitDepth).
			Component("audio.file").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	if d.NumChans != 1 && d.NumChans != 2 {
		return nil, errors.Newf("unsupported number of channels: %d", d.NumChans).
			Component("audio.file").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	if d.SampleRate == 0 {
		return nil, errors.Newf("WAV file has no sample rate").
			Component("audio.file").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	if err := d.FwdToPCM(); err != nil {
		return nil, errors.New(err).
			Component("audio.file").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Context("operation", "seek_pcm").
			Build()
	}
	return d, nil
}

// infoOf expects the decoder to be positioned at the PCM chunk.
func infoOf(d *wav.Decoder) Info {
	info := Info{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}
	bytesPerSecond := info.SampleRate * info.Channels * info.BitDepth / 8
	if bytesPerSecond > 0 {
		info.Duration = time.Duration(float64(d.PCMSize) / float64(bytesPerSecond) * float64(time.Second))
	}
	return info
}

func openError(err error, path string) error {
	cat := errors.CategoryFileIO
	switch {
	case os.IsNotExist(err):
		cat = errors.CategoryNotFound
	case os.IsPermission(err):
		cat = errors.CategoryPermission
	}
	return errors.New(err).
		Component("audio.file").
		Category(cat).
		Context("path", path).
		Build()
}

// Open implements audiocore.FrameSource.
func (s *Source) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		return audiocore.ErrAlreadyOpen
	}

	f, err := os.Open(s.path)
	if err != nil {
		return openError(err, s.path)
	}
	d, err := newDecoder(f, s.path)
	if err != nil {
		_ = f.Close()
		return err
	}
	analyser, err := spectrum.NewAnalyser(s.c.FFTSize, s.c.SmoothingTimeConstant)
	if err != nil {
		_ = f.Close()
		return err
	}

	info := infoOf(d)
	rate := s.c.AnalysisRate
	if rate <= 0 {
		rate = audiocore.DefaultAnalysisRate
	}
	hop := max(info.SampleRate/rate, 1)

	s.file = f
	s.decoder = d
	s.info = info
	s.analyser = analyser
	s.buf = &audio.IntBuffer{
		Data:   make([]int, hop*info.Channels),
		Format: &audio.Format{SampleRate: info.SampleRate, NumChannels: info.Channels},
	}
	s.pos = 0
	s.eof = false

	if info.SampleRate != s.c.SampleRate {
		s.log.Info("replaying WAV at its native sample rate",
			logger.String("path", s.path),
			logger.Int("file_rate", info.SampleRate),
			logger.Int("capture_rate", s.c.SampleRate))
	}
	s.log.Debug("WAV source opened",
		logger.String("path", s.path),
		logger.Int("channels", info.Channels),
		logger.Int("bit_depth", info.BitDepth),
		logger.Duration("duration", info.Duration))

	return nil
}

// Info returns the header of the open file.
func (s *Source) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// ReadFrame decodes the next hop and returns the updated spectrum. It returns
// ErrSourceExhausted once the data chunk is consumed.
func (s *Source) ReadFrame() (audiocore.AudioFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return audiocore.AudioFrame{}, audiocore.ErrNotOpen
	}
	if s.eof {
		return audiocore.AudioFrame{}, audiocore.ErrSourceExhausted
	}

	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil {
		return audiocore.AudioFrame{}, errors.New(err).
			Component("audio.file").
			Category(errors.CategoryFileIO).
			Context("path", s.path).
			Context("operation", "decode_pcm").
			Build()
	}
	if n == 0 {
		s.eof = true
		return audiocore.AudioFrame{}, audiocore.ErrSourceExhausted
	}

	s.samples = audiocore.IntToFloat(s.samples, s.buf.Data[:n], s.info.Channels, s.info.BitDepth)
	s.pos += int64(len(s.samples))

	s.analyser.Push(s.samples)
	s.bins = s.analyser.ByteFrequencyData(s.bins)

	return audiocore.AudioFrame{
		Bins:       append([]uint8(nil), s.bins...),
		SampleRate: s.info.SampleRate,
		FFTSize:    s.c.FFTSize,
		Timestamp:  time.Time{}.Add(time.Duration(float64(s.pos) / float64(s.info.SampleRate) * float64(time.Second))),
	}, nil
}

// Close implements audiocore.FrameSource.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.decoder = nil
	s.analyser = nil
	if err != nil {
		return errors.New(err).
			Component("audio.file").
			Category(errors.CategoryFileIO).
			Context("path", s.path).
			Build()
	}
	return nil
}
