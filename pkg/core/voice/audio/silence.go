package audio

import (
	"context"
	"sync"
	"time"
)

// SilenceConfig controls when a recording segment is ended automatically.
type SilenceConfig struct {
	// EnergyThreshold is the RMS level above which a frame counts as speech.
	EnergyThreshold float64 `json:"energy_threshold" yaml:"energy_threshold"`
	// SilenceDuration ends the segment after speech followed by this much quiet.
	SilenceDuration time.Duration `json:"silence_duration" yaml:"silence_duration"`
	// NoSpeechTimeout ends the segment if no speech starts within it.
	NoSpeechTimeout time.Duration `json:"no_speech_timeout" yaml:"no_speech_timeout"`
	// MaxDuration caps the segment length.
	MaxDuration time.Duration `json:"max_duration" yaml:"max_duration"`
}

// DefaultSilenceConfig returns conservative defaults for conversational speech.
func DefaultSilenceConfig() SilenceConfig {
	return SilenceConfig{
		EnergyThreshold: 0.02,
		SilenceDuration: 1500 * time.Millisecond,
		NoSpeechTimeout: 8 * time.Second,
		MaxDuration:     60 * time.Second,
	}
}

// SilenceReason explains why a segment was ended.
type SilenceReason string

const (
	ReasonTrailingSilence SilenceReason = "trailing_silence"
	ReasonNoSpeech        SilenceReason = "no_speech"
	ReasonMaxDuration     SilenceReason = "max_duration"
)

// SilenceDetector watches frame energy and reports end of utterance.
type SilenceDetector struct {
	cfg SilenceConfig
	now func() time.Time

	mu          sync.Mutex
	startedAt   time.Time
	lastVoiceAt time.Time
	heardSpeech bool
}

// NewSilenceDetector creates a detector. Zero fields in cfg disable the
// corresponding rule, except EnergyThreshold which falls back to the default.
func NewSilenceDetector(cfg SilenceConfig) *SilenceDetector {
	if cfg.EnergyThreshold <= 0 {
		cfg.EnergyThreshold = DefaultSilenceConfig().EnergyThreshold
	}
	d := &SilenceDetector{cfg: cfg, now: time.Now}
	d.startedAt = d.now()
	return d
}

// WriteFrame implements FrameSink.
func (d *SilenceDetector) WriteFrame(frame []byte) {
	energy := CalculateRMSEnergy(frame)
	if energy < d.cfg.EnergyThreshold {
		return
	}
	d.mu.Lock()
	d.heardSpeech = true
	d.lastVoiceAt = d.now()
	d.mu.Unlock()
}

// Check reports whether the segment should end now.
func (d *SilenceDetector) Check() (SilenceReason, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if d.cfg.MaxDuration > 0 && now.Sub(d.startedAt) >= d.cfg.MaxDuration {
		return ReasonMaxDuration, true
	}
	if d.heardSpeech {
		if d.cfg.SilenceDuration > 0 && now.Sub(d.lastVoiceAt) >= d.cfg.SilenceDuration {
			return ReasonTrailingSilence, true
		}
		return "", false
	}
	if d.cfg.NoSpeechTimeout > 0 && now.Sub(d.startedAt) >= d.cfg.NoSpeechTimeout {
		return ReasonNoSpeech, true
	}
	return "", false
}

// HeardSpeech reports whether any frame exceeded the energy threshold.
func (d *SilenceDetector) HeardSpeech() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.heardSpeech
}

// Wait polls Check every interval until a rule fires or ctx is done.
func (d *SilenceDetector) Wait(ctx context.Context, interval time.Duration) (SilenceReason, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			if reason, ok := d.Check(); ok {
				return reason, nil
			}
		}
	}
}
