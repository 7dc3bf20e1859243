// Package device owns the audio hardware: a microphone stream that pushes
// fixed-size blocks and an output stream rendered by a software mixer.
package device

import "github.com/eleven-am/voice-client/internal/playback"

type Input interface {
	Start(onSamples func(samples []float32)) error
	Stop() error
	Close() error
}

type Output interface {
	playback.Device
	SetTap(tap func([]float32))
	Close() error
}

type InputConfig struct {
	SampleRate int
	FrameSize  int
}

type OutputConfig struct {
	SampleRate      int
	FramesPerBuffer int
}

type Backend interface {
	OpenInput(cfg InputConfig) (Input, error)
	OpenOutput(cfg OutputConfig) (Output, error)
}
