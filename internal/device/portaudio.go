package device

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const defaultOutputFrames = 512

type PortAudio struct {
	log *slog.Logger
}

func NewPortAudio(log *slog.Logger) *PortAudio {
	if log == nil {
		log = slog.Default()
	}
	return &PortAudio{log: log.With("component", "portaudio")}
}

func (p *PortAudio) OpenInput(cfg InputConfig) (Input, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	in := &paInput{log: p.log}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), cfg.FrameSize, in.process)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	in.stream = stream

	p.log.Info("input device opened", "sample_rate", cfg.SampleRate, "frame_size", cfg.FrameSize)
	return in, nil
}

func (p *PortAudio) OpenOutput(cfg OutputConfig) (Output, error) {
	frames := cfg.FramesPerBuffer
	if frames <= 0 {
		frames = defaultOutputFrames
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	out := &paOutput{Mixer: NewMixer(cfg.SampleRate), log: p.log}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(cfg.SampleRate), frames, out.Render)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start output stream: %w", err)
	}
	out.stream = stream

	p.log.Info("output device opened", "sample_rate", cfg.SampleRate, "frames_per_buffer", frames)
	return out, nil
}

type paInput struct {
	stream *portaudio.Stream
	log    *slog.Logger

	mu       sync.Mutex
	callback func([]float32)
	started  bool
	closed   bool
}

func (in *paInput) process(samples []float32) {
	in.mu.Lock()
	cb := in.callback
	in.mu.Unlock()
	if cb != nil {
		cb(samples)
	}
}

func (in *paInput) Start(onSamples func([]float32)) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return ErrClosed
	}
	in.callback = onSamples
	if in.started {
		return nil
	}
	if err := in.stream.Start(); err != nil {
		in.callback = nil
		return fmt.Errorf("start input stream: %w", err)
	}
	in.started = true
	return nil
}

func (in *paInput) Stop() error {
	in.mu.Lock()
	in.callback = nil
	started := in.started
	in.started = false
	in.mu.Unlock()

	if !started {
		return nil
	}
	return in.stream.Stop()
}

func (in *paInput) Close() error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return nil
	}
	in.closed = true
	in.mu.Unlock()

	if err := in.Stop(); err != nil {
		in.log.Debug("stop input stream", "error", err)
	}
	err := in.stream.Close()
	portaudio.Terminate()
	return err
}

type paOutput struct {
	*Mixer
	stream *portaudio.Stream
	log    *slog.Logger

	closeOnce sync.Once
}

func (out *paOutput) Close() error {
	var err error
	out.closeOnce.Do(func() {
		if stopErr := out.stream.Stop(); stopErr != nil {
			out.log.Debug("stop output stream", "error", stopErr)
		}
		err = out.stream.Close()
		out.Mixer.Close()
		portaudio.Terminate()
	})
	return err
}
