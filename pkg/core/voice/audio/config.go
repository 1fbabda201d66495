// Package audio provides microphone capture, level metering and clip
// recording for the intake voice engine.
//
// All PCM handled here is signed 16-bit little-endian.
package audio

import "time"

// Constraints describe the input stream requested from a Device.
type Constraints struct {
	SampleRate       int  `json:"sample_rate" yaml:"sample_rate"`
	Channels         int  `json:"channels" yaml:"channels"`
	EchoCancellation bool `json:"echo_cancellation" yaml:"echo_cancellation"`
	NoiseSuppression bool `json:"noise_suppression" yaml:"noise_suppression"`
}

// DefaultConstraints returns mono 16kHz speech capture with echo
// cancellation and noise suppression requested.
func DefaultConstraints() Constraints {
	return Constraints{
		SampleRate:       16000,
		Channels:         1,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

func (c Constraints) withDefaults() Constraints {
	def := DefaultConstraints()
	if c.SampleRate <= 0 {
		c.SampleRate = def.SampleRate
	}
	if c.Channels <= 0 {
		c.Channels = def.Channels
	}
	return c
}

// BytesPerSecond returns the byte rate for 16-bit PCM.
func (c Constraints) BytesPerSecond() int {
	c = c.withDefaults()
	return c.SampleRate * c.Channels * 2
}

// BytesForDuration returns how many bytes d of audio occupies.
func (c Constraints) BytesForDuration(d time.Duration) int {
	n := int(int64(c.BytesPerSecond()) * int64(d) / int64(time.Second))
	return n - n%2
}

// DurationOf returns the playback duration of n bytes of PCM.
func (c Constraints) DurationOf(n int) time.Duration {
	bps := c.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}
