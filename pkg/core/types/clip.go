package types

import "time"

// AudioClip is a finalized recording ready for transcription.
type AudioClip struct {
	Data     []byte
	MIMEType string
	Duration time.Duration
}

// Size returns the clip size in bytes.
func (c *AudioClip) Size() int {
	if c == nil {
		return 0
	}
	return len(c.Data)
}

// Extension returns a file extension matching the clip encoding.
func (c *AudioClip) Extension() string {
	switch c.MIMEType {
	case "audio/webm":
		return "webm"
	case "audio/ogg":
		return "ogg"
	case "audio/mpeg":
		return "mp3"
	default:
		return "wav"
	}
}
