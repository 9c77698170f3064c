package audiocore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS16LEToFloat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pcm      []byte
		channels int
		want     []float64
	}{
		{"mono", []byte{0x00, 0x40, 0x00, 0xc0}, 1, []float64{0.5, -0.5}},
		{"stereo averages channels", []byte{0x00, 0x40, 0x00, 0x00}, 2, []float64{0.25}},
		{"full scale negative", []byte{0x00, 0x80}, 1, []float64{-1}},
		{"partial frame dropped", []byte{0x00, 0x40, 0x01}, 1, []float64{0.5}},
		{"zero channels treated as mono", []byte{0x00, 0x40}, 0, []float64{0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := S16LEToFloat(nil, tt.pcm, tt.channels)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-9)
			}
		})
	}
}

func TestS16LEToFloatReusesBuffer(t *testing.T) {
	t.Parallel()

	buf := make([]float64, 8)
	got := S16LEToFloat(buf, []byte{0x00, 0x40}, 1)
	assert.Len(t, got, 1)
	assert.Equal(t, &buf[0], &got[0])
}

func TestIntToFloat(t *testing.T) {
	t.Parallel()

	got := IntToFloat(nil, []int{16384, -16384, 8388607 >> 8, 0}, 2, 16)
	require.Len(t, got, 2)
	assert.InDelta(t, 0, got[0], 1e-9)
	assert.InDelta(t, float64(8388607>>8)/2/32768, got[1], 1e-9)

	got = IntToFloat(nil, []int{4194304}, 1, 24)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.5, got[0], 1e-9)
}

func TestConstraintsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultConstraints().Validate())
	assert.Equal(t, 735, DefaultConstraints().HopSize())

	bad := DefaultConstraints()
	bad.FFTSize = 1000
	require.Error(t, bad.Validate())

	bad = DefaultConstraints()
	bad.Channels = 3
	require.Error(t, bad.Validate())
}

func TestFrameBinFrequency(t *testing.T) {
	t.Parallel()

	f := AudioFrame{Bins: make([]uint8, 2048), SampleRate: 44100, FFTSize: 4096}
	assert.Equal(t, 2048, f.BinCount())
	assert.InDelta(t, 44100.0/4096, f.BinWidth(), 1e-9)
	assert.InDelta(t, 100*44100.0/4096, f.BinFrequency(100), 1e-9)
	assert.Zero(t, AudioFrame{}.BinFrequency(5))
}
