package device

import (
	"errors"
	"math"
	"sync"

	"github.com/eleven-am/voice-client/internal/audio"
	"github.com/eleven-am/voice-client/internal/playback"
)

var ErrClosed = errors.New("device closed")

type voice struct {
	id      uint64
	samples []float32
	start   int64
	onEnded func()
	mixer   *Mixer
}

func (v *voice) Stop() error {
	return v.mixer.stop(v.id)
}

// Mixer renders scheduled mono buffers onto a sample clock. It implements
// playback.Device; the output stream callback drives it through Render.
type Mixer struct {
	sampleRate int
	tap        func([]float32)

	mu       sync.Mutex
	rendered int64
	voices   map[uint64]*voice
	nextID   uint64
	closed   bool
}

var _ playback.Device = (*Mixer)(nil)

func NewMixer(sampleRate int) *Mixer {
	if sampleRate <= 0 {
		sampleRate = audio.PlaybackSampleRate
	}
	return &Mixer{
		sampleRate: sampleRate,
		voices:     make(map[uint64]*voice),
	}
}

// SetTap registers a function that sees every rendered block.
func (m *Mixer) SetTap(tap func([]float32)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tap = tap
}

func (m *Mixer) SampleRate() int {
	return m.sampleRate
}

// CurrentTime is the position of the next sample to be rendered, in seconds.
func (m *Mixer) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.rendered) / float64(m.sampleRate)
}

func (m *Mixer) Schedule(buf *audio.Buffer, startAt float64, onEnded func()) (playback.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	var samples []float32
	if buf != nil && len(buf.Channels) > 0 {
		samples = buf.Channels[0]
	}

	start := int64(math.Round(startAt * float64(m.sampleRate)))
	if start < m.rendered {
		start = m.rendered
	}

	m.nextID++
	v := &voice{
		id:      m.nextID,
		samples: samples,
		start:   start,
		onEnded: onEnded,
		mixer:   m,
	}
	m.voices[v.id] = v
	return v, nil
}

func (m *Mixer) stop(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.voices, id)
	return nil
}

// Render mixes every voice overlapping the next len(out) samples into out,
// advances the clock and then fires completion callbacks outside the lock.
func (m *Mixer) Render(out []float32) {
	m.mu.Lock()
	for i := range out {
		out[i] = 0
	}

	blockStart := m.rendered
	blockEnd := blockStart + int64(len(out))
	var ended []func()

	for id, v := range m.voices {
		vEnd := v.start + int64(len(v.samples))
		from := max(v.start, blockStart)
		to := min(vEnd, blockEnd)
		for pos := from; pos < to; pos++ {
			out[pos-blockStart] += v.samples[pos-v.start]
		}
		if vEnd <= blockEnd {
			delete(m.voices, id)
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
		}
	}

	for i, s := range out {
		if s > 1 {
			out[i] = 1
		} else if s < -1 {
			out[i] = -1
		}
	}

	m.rendered = blockEnd
	tap := m.tap
	m.mu.Unlock()

	if tap != nil {
		tap(out)
	}
	for _, fn := range ended {
		fn()
	}
}

func (m *Mixer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Close drops every voice without firing completion callbacks.
func (m *Mixer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	clear(m.voices)
	return nil
}
