// Package capture frames microphone samples, encodes them and forwards them
// to the session channel without ever blocking the device callback.
package capture

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/eleven-am/voice-client/internal/audio"
	"github.com/eleven-am/voice-client/internal/metrics"
)

const (
	DefaultFrameSize = 4096
	DefaultQueueSize = 4
)

type Sender interface {
	Send(ctx context.Context, chunk audio.EncodedChunk) error
}

// Source is an input device that pushes sample blocks to a callback.
type Source interface {
	Start(onSamples func(samples []float32)) error
	Stop() error
}

// Tap observes raw frames before encoding, e.g. a visualizer analyser.
type Tap interface {
	Write(samples []float32)
}

type DropCallback func(dropped int)

type Config struct {
	FrameSize  int
	SampleRate int
	QueueSize  int
}

type Pipeline struct {
	cfg     Config
	sender  Sender
	tap     Tap
	metrics *metrics.Metrics
	log     *slog.Logger

	queue chan audio.EncodedChunk

	mu      sync.Mutex
	source  Source
	pending []float32
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	dropCb  DropCallback
	wg      sync.WaitGroup

	captured atomic.Int64
	sent     atomic.Int64
	dropped  atomic.Int64
}

func New(cfg Config, sender Sender, m *metrics.Metrics, log *slog.Logger) *Pipeline {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultFrameSize
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.CaptureSampleRate
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if log == nil {
		log = slog.Default()
	}

	return &Pipeline{
		cfg:     cfg,
		sender:  sender,
		metrics: m,
		log:     log.With("component", "capture"),
		queue:   make(chan audio.EncodedChunk, cfg.QueueSize),
	}
}

func (p *Pipeline) SetTap(tap Tap) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tap = tap
}

func (p *Pipeline) SetDropCallback(cb DropCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropCb = cb
}

// Start attaches the pipeline to src and begins forwarding frames.
func (p *Pipeline) Start(ctx context.Context, src Source) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true
	p.source = src
	p.pending = p.pending[:0]
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(p.ctx)

	if err := src.Start(p.OnSamples); err != nil {
		p.Stop()
		return err
	}
	p.log.Debug("capture started", "frame_size", p.cfg.FrameSize, "sample_rate", p.cfg.SampleRate)
	return nil
}

// OnSamples is the device callback. It copies the block since devices reuse
// their buffers, slices it into fixed-size frames and enqueues each one.
func (p *Pipeline) OnSamples(samples []float32) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.pending = append(p.pending, samples...)
	var frames [][]float32
	off := 0
	for len(p.pending)-off >= p.cfg.FrameSize {
		frame := make([]float32, p.cfg.FrameSize)
		copy(frame, p.pending[off:off+p.cfg.FrameSize])
		frames = append(frames, frame)
		off += p.cfg.FrameSize
	}
	n := copy(p.pending, p.pending[off:])
	p.pending = p.pending[:n]
	tap := p.tap
	dropCb := p.dropCb
	p.mu.Unlock()

	for _, frame := range frames {
		p.captured.Add(1)
		p.metrics.FrameCaptured()
		if tap != nil {
			tap.Write(frame)
		}
		p.enqueue(audio.EncodeChunk(frame, p.cfg.SampleRate), dropCb)
	}
}

func (p *Pipeline) enqueue(chunk audio.EncodedChunk, dropCb DropCallback) {
	select {
	case p.queue <- chunk:
	default:
		p.dropped.Add(1)
		p.metrics.FrameDropped()
		if dropCb != nil {
			dropCb(1)
		}
	}
}

func (p *Pipeline) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk := <-p.queue:
			if err := p.sender.Send(ctx, chunk); err != nil {
				p.metrics.SendFailed()
				if ctx.Err() == nil {
					p.log.Warn("send frame failed", "error", err)
				}
				continue
			}
			p.sent.Add(1)
			p.metrics.FrameSent()
		}
	}
}

// Stop detaches the device callback, stops the send worker and discards
// anything still queued. Safe to call repeatedly.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	src := p.source
	p.source = nil
	cancel := p.cancel
	p.pending = nil
	p.mu.Unlock()

	if src != nil {
		if err := src.Stop(); err != nil {
			p.log.Debug("stop capture source", "error", err)
		}
	}
	cancel()
	p.wg.Wait()
	p.drain()
	p.log.Debug("capture stopped", "captured", p.captured.Load(), "sent", p.sent.Load(), "dropped", p.dropped.Load())
}

func (p *Pipeline) drain() int {
	count := 0
	for {
		select {
		case <-p.queue:
			count++
		default:
			return count
		}
	}
}

func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

type Stats struct {
	Captured int64 `json:"captured"`
	Sent     int64 `json:"sent"`
	Dropped  int64 `json:"dropped"`
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Captured: p.captured.Load(),
		Sent:     p.sent.Load(),
		Dropped:  p.dropped.Load(),
	}
}
