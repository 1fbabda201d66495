package audio

import (
	"math"
	"sync"
)

// CalculateRMSEnergy computes the root-mean-square energy of PCM audio.
// Returns a value between 0.0 and 1.0.
func CalculateRMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < len(pcm)-1; i += 2 {
		normalized := float64(int16(pcm[i])|int16(pcm[i+1])<<8) / 32768.0
		sum += normalized * normalized
	}

	return math.Sqrt(sum / float64(samples))
}

// DecodeSamples converts PCM bytes to normalized float samples in [-1, 1).
func DecodeSamples(pcm []byte) []float64 {
	out := make([]float64, len(pcm)/2)
	for i := range out {
		out[i] = float64(int16(pcm[2*i])|int16(pcm[2*i+1])<<8) / 32768.0
	}
	return out
}

// EncodeSamples converts int16 samples to PCM bytes.
func EncodeSamples(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(s)
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}

// window keeps the most recent bytes of a stream up to a maximum size.
type window struct {
	mu       sync.Mutex
	data     []byte
	maxBytes int
}

func newWindow(maxBytes int) *window {
	return &window{
		data:     make([]byte, 0, maxBytes),
		maxBytes: maxBytes,
	}
}

// Write appends data, discarding the oldest bytes beyond maxBytes.
func (w *window) Write(data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.data = append(w.data, data...)
	if len(w.data) > w.maxBytes {
		excess := len(w.data) - w.maxBytes
		excess += excess % 2
		w.data = append(w.data[:0], w.data[excess:]...)
	}
}

// Last returns a copy of the last n bytes, or fewer if not yet available.
func (w *window) Last(n int) []byte {
	w.mu.Lock()
	defer w.mu.Unlock()

	if n > len(w.data) {
		n = len(w.data)
	}
	out := make([]byte, n)
	copy(out, w.data[len(w.data)-n:])
	return out
}

// Reset discards all buffered bytes.
func (w *window) Reset() {
	w.mu.Lock()
	w.data = w.data[:0]
	w.mu.Unlock()
}
