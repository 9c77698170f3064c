package audiocore

import "encoding/binary"

// S16LEToFloat converts little-endian 16-bit PCM into samples in [-1, 1),
// averaging interleaved channels down to mono. dst is reused when large
// enough. Trailing bytes that do not form a whole frame are ignored.
func S16LEToFloat(dst []float64, pcm []byte, channels int) []float64 {
	if channels < 1 {
		channels = 1
	}
	frameBytes := 2 * channels
	n := len(pcm) / frameBytes
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]

	for i := range n {
		var sum float64
		base := i * frameBytes
		for ch := range channels {
			off := base + 2*ch
			sum += float64(int16(binary.LittleEndian.Uint16(pcm[off : off+2])))
		}
		dst[i] = sum / float64(channels) / 32768
	}
	return dst
}

// IntToFloat converts interleaved integer samples of the given bit depth
// into mono samples in [-1, 1).
func IntToFloat(dst []float64, data []int, channels, bitDepth int) []float64 {
	if channels < 1 {
		channels = 1
	}
	if bitDepth < 1 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))
	n := len(data) / channels
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]

	for i := range n {
		var sum float64
		for ch := range channels {
			sum += float64(data[i*channels+ch])
		}
		dst[i] = sum / float64(channels) / scale
	}
	return dst
}
