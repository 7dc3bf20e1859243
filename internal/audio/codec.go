// Package audio converts between float sample buffers and the 16-bit
// little-endian PCM used on the wire.
package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	CaptureSampleRate  = 16000
	PlaybackSampleRate = 24000
	Channels           = 1

	pcmMIMEPrefix = "audio/pcm"
)

var ErrMalformedAudio = errors.New("malformed audio")

type MalformedAudioError struct {
	Length   int
	Channels int
}

func (e *MalformedAudioError) Error() string {
	if e.Channels < 1 {
		return fmt.Sprintf("malformed audio: invalid channel count %d", e.Channels)
	}
	return fmt.Sprintf("malformed audio: %d bytes is not a multiple of %d", e.Length, 2*e.Channels)
}

func (e *MalformedAudioError) Unwrap() error {
	return ErrMalformedAudio
}

// EncodedChunk is one captured frame as 16-bit little-endian PCM.
type EncodedChunk struct {
	Data     []byte
	MIMEType string
}

func (c EncodedChunk) Base64() string {
	return base64.StdEncoding.EncodeToString(c.Data)
}

// Buffer is a decoded, device-playable block of audio.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

func (b *Buffer) Frames() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

func Encode(samples []float32) []byte {
	return Int16ToPCMBytes(Float32ToInt16(samples))
}

func Decode(pcm []byte) []float32 {
	return Int16ToFloat32(PCMBytesToInt16(pcm))
}

func EncodeChunk(samples []float32, sampleRate int) EncodedChunk {
	return EncodedChunk{
		Data:     Encode(samples),
		MIMEType: PCMMIMEType(sampleRate),
	}
}

// DecodeToPlayableBuffer treats pcm as raw interleaved 16-bit PCM already at
// sampleRate; it does not sniff container formats.
func DecodeToPlayableBuffer(pcm []byte, sampleRate, channels int) (*Buffer, error) {
	if channels < 1 || len(pcm)%(2*channels) != 0 {
		return nil, &MalformedAudioError{Length: len(pcm), Channels: channels}
	}

	samples := Decode(pcm)
	frames := len(samples) / channels

	buf := &Buffer{
		SampleRate: sampleRate,
		Channels:   make([][]float32, channels),
	}
	for ch := range buf.Channels {
		data := make([]float32, frames)
		for i := 0; i < frames; i++ {
			data[i] = samples[i*channels+ch]
		}
		buf.Channels[ch] = data
	}
	return buf, nil
}

func DecodeBase64(data string) ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAudio, err)
	}
	return pcm, nil
}

func PCMMIMEType(sampleRate int) string {
	return pcmMIMEPrefix + ";rate=" + strconv.Itoa(sampleRate)
}

// ParseRate extracts the rate parameter of a PCM MIME type such as
// "audio/pcm;rate=24000", returning fallback when absent or unparsable.
func ParseRate(mimeType string, fallback int) int {
	for _, param := range strings.Split(mimeType, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(key, "rate") {
			continue
		}
		if rate, err := strconv.Atoi(value); err == nil && rate > 0 {
			return rate
		}
	}
	return fallback
}
