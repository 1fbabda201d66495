package audio

import (
	"math"
	"math/cmplx"
)

// Decibel range mapped onto [0, 1] by SpectrumLevel.
const (
	minDecibels = -100.0
	maxDecibels = -30.0
)

// SpectrumLevel returns the mean normalized magnitude of the frequency bins
// of pcm. The window is Hann-tapered, converted to decibels, and each bin is
// mapped from [minDecibels, maxDecibels] onto [0, 1]. fftSize must be a power
// of two; shorter input is zero padded.
func SpectrumLevel(pcm []byte, fftSize int) float64 {
	if fftSize < 2 || fftSize&(fftSize-1) != 0 {
		return 0
	}
	samples := DecodeSamples(pcm)
	if len(samples) == 0 {
		return 0
	}
	if len(samples) > fftSize {
		samples = samples[len(samples)-fftSize:]
	}

	buf := make([]complex128, fftSize)
	for i, s := range samples {
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
		buf[i] = complex(s*w, 0)
	}
	fft(buf)

	bins := fftSize / 2
	var sum float64
	for i := 0; i < bins; i++ {
		mag := cmplx.Abs(buf[i]) / float64(fftSize)
		db := minDecibels
		if mag > 0 {
			db = 20 * math.Log10(mag)
		}
		v := (db - minDecibels) / (maxDecibels - minDecibels)
		sum += math.Max(0, math.Min(1, v))
	}
	return sum / float64(bins)
}

// fft is an in-place iterative radix-2 Cooley-Tukey transform.
func fft(a []complex128) {
	n := len(a)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			a[i], a[j] = a[j], a[i]
		}
	}
	for size := 2; size <= n; size <<= 1 {
		step := cmplx.Exp(complex(0, -2*math.Pi/float64(size)))
		for start := 0; start < n; start += size {
			w := complex(1, 0)
			for k := 0; k < size/2; k++ {
				u := a[start+k]
				v := a[start+k+size/2] * w
				a[start+k] = u + v
				a[start+k+size/2] = u - v
				w *= step
			}
		}
	}
}
