// Package visualizer turns live audio into the byte frequency bins and
// volume level the UI draws.
package visualizer

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	DefaultFFTSize   = 256
	DefaultSmoothing = 0.8
	DefaultMinDB     = -100.0
	DefaultMaxDB     = -30.0
)

// Config zero values select the defaults. A negative Smoothing disables
// smoothing.
type Config struct {
	FFTSize   int
	Smoothing float64
	MinDB     float64
	MaxDB     float64
}

func (c Config) withDefaults() Config {
	if c.FFTSize <= 0 {
		c.FFTSize = DefaultFFTSize
	}
	switch {
	case c.Smoothing < 0:
		c.Smoothing = 0
	case c.Smoothing == 0 || c.Smoothing >= 1:
		c.Smoothing = DefaultSmoothing
	}
	if c.MinDB == 0 && c.MaxDB == 0 {
		c.MinDB, c.MaxDB = DefaultMinDB, DefaultMaxDB
	}
	return c
}

type Snapshot struct {
	Bins   []byte  `json:"bins"`
	Volume float64 `json:"volume"`
}

// Analyser keeps the most recent FFTSize samples of a stream. It is safe to
// Write from an audio callback while Snapshot is read elsewhere.
type Analyser struct {
	cfg Config
	fft *fourier.FFT

	mu       sync.Mutex
	ring     []float64
	pos      int
	smoothed []float64
}

func NewAnalyser(cfg Config) *Analyser {
	cfg = cfg.withDefaults()
	return &Analyser{
		cfg:      cfg,
		fft:      fourier.NewFFT(cfg.FFTSize),
		ring:     make([]float64, cfg.FFTSize),
		smoothed: make([]float64, cfg.FFTSize/2),
	}
}

func (a *Analyser) BinCount() int {
	return a.cfg.FFTSize / 2
}

func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.ring)
	if len(samples) > n {
		samples = samples[len(samples)-n:]
	}
	for _, s := range samples {
		a.ring[a.pos] = float64(s)
		a.pos = (a.pos + 1) % n
	}
}

// Reset clears both the sample window and the smoothing history.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	clear(a.smoothed)
	a.pos = 0
}

// Snapshot computes the current spectrum, advancing the smoothing state.
func (a *Analyser) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.ring)
	seq := make([]float64, n)
	copy(seq, a.ring[a.pos:])
	copy(seq[n-a.pos:], a.ring[:a.pos])
	window.Blackman(seq)

	coeffs := a.fft.Coefficients(nil, seq)
	bins := make([]byte, len(a.smoothed))
	tau := a.cfg.Smoothing
	span := a.cfg.MaxDB - a.cfg.MinDB

	for k := range a.smoothed {
		mag := cmplx.Abs(coeffs[k]) / float64(n)
		a.smoothed[k] = tau*a.smoothed[k] + (1-tau)*mag

		db := math.Inf(-1)
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		scaled := 255 * (db - a.cfg.MinDB) / span
		switch {
		case scaled <= 0 || math.IsNaN(scaled):
			bins[k] = 0
		case scaled >= 255:
			bins[k] = 255
		default:
			bins[k] = byte(scaled)
		}
	}

	return Snapshot{Bins: bins, Volume: Volume(bins)}
}

// Volume is the mean of the lower half of the bins, normalised to [0, 1].
func Volume(bins []byte) float64 {
	half := len(bins) / 2
	if half == 0 {
		return 0
	}
	var sum int
	for _, b := range bins[:half] {
		sum += int(b)
	}
	return float64(sum) / float64(half) / 255
}
