// Package tts renders assistant replies to raw PCM speech.
package tts

import "context"

// Synthesizer converts text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice      string  // Voice identifier
	Speed      float64 // Speed multiplier, 0 for provider default
	Language   string  // BCP-47 tag such as en-IN; providers map it as needed
	SampleRate int     // Output sample rate, default 24000
}

// Synthesis is raw signed 16-bit little-endian mono PCM.
type Synthesis struct {
	Audio      []byte
	SampleRate int
}

// BaseLanguage returns the primary subtag of a BCP-47 tag ("en-IN" -> "en").
func BaseLanguage(tag string) string {
	for i := 0; i < len(tag); i++ {
		if tag[i] == '-' || tag[i] == '_' {
			return tag[:i]
		}
	}
	return tag
}
