package audio

import (
	"context"
	"sync"
	"time"

	"github.com/vango-go/vai-intake/pkg/core/types"
)

// DefaultMinClipBytes is the smallest finalized clip considered to contain
// speech. Anything smaller is treated as an accidental tap.
const DefaultMinClipBytes = 500

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`
	MinClipBytes  int           `json:"min_clip_bytes" yaml:"min_clip_bytes"`
}

func (o RecorderOptions) withDefaults() RecorderOptions {
	if o.FlushInterval <= 0 {
		o.FlushInterval = 250 * time.Millisecond
	}
	if o.MinClipBytes <= 0 {
		o.MinClipBytes = DefaultMinClipBytes
	}
	return o
}

// Recorder buffers frames from a capture session into chunks and finalizes
// them into one WAV clip.
type Recorder struct {
	opts RecorderOptions

	mu      sync.Mutex
	session *CaptureSession
	pending []byte
	chunks  [][]byte
	started bool
	stopped bool

	cancel    context.CancelFunc
	flushDone chan struct{}
}

// NewRecorder creates an idle recorder.
func NewRecorder(opts RecorderOptions) *Recorder {
	return &Recorder{opts: opts.withDefaults()}
}

// Start begins buffering frames from session. A recorder records once.
func (r *Recorder) Start(session *CaptureSession) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.session = session
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.flushDone = make(chan struct{})
	r.mu.Unlock()

	session.AddSink(r)
	go r.flushLoop(ctx)
}

// WriteFrame implements FrameSink.
func (r *Recorder) WriteFrame(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.pending = append(r.pending, frame...)
}

func (r *Recorder) flushLoop(ctx context.Context) {
	defer close(r.flushDone)

	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			r.flushLocked()
			r.mu.Unlock()
		}
	}
}

func (r *Recorder) flushLocked() {
	if len(r.pending) == 0 {
		return
	}
	r.chunks = append(r.chunks, r.pending)
	r.pending = nil
}

// Stop closes the capture session, concatenates all buffered chunks and
// encodes the result as WAV. ok is false when there is no clip or it is
// smaller than MinClipBytes. Later calls return no clip.
func (r *Recorder) Stop() (clip *types.AudioClip, ok bool) {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return nil, false
	}
	session := r.session
	r.mu.Unlock()

	// Closing first guarantees every delivered frame is buffered.
	_ = session.Close()

	r.cancel()
	<-r.flushDone

	r.mu.Lock()
	r.stopped = true
	r.flushLocked()
	chunks := r.chunks
	r.chunks = nil
	r.mu.Unlock()

	size := 0
	for _, c := range chunks {
		size += len(c)
	}
	if size == 0 {
		return nil, false
	}
	pcm := make([]byte, 0, size)
	for _, c := range chunks {
		pcm = append(pcm, c...)
	}

	c := session.Constraints()
	data := EncodeWAV(pcm, c.SampleRate, c.Channels)
	if len(data) < r.opts.MinClipBytes {
		return nil, false
	}
	return &types.AudioClip{
		Data:     data,
		MIMEType: "audio/wav",
		Duration: c.DurationOf(len(pcm)),
	}, true
}

// Abort releases the recorder and its session without producing a clip.
func (r *Recorder) Abort() {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	session := r.session
	r.chunks = nil
	r.pending = nil
	r.mu.Unlock()

	_ = session.Close()
	r.cancel()
	<-r.flushDone
}

// Active reports whether the flush loop is still running.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	done := r.flushDone
	r.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}
