package device

import (
	"sync"
	"time"
)

// Virtual is a hardware-free backend. Inputs are fed with Push and outputs
// advance either on a real-time ticker or manually through Advance.
type Virtual struct {
	realtime bool
	tick     time.Duration

	mu      sync.Mutex
	inputs  []*VirtualInput
	outputs []*VirtualOutput
	failIn  error
	failOut error
}

func NewVirtual(realtime bool) *Virtual {
	return &Virtual{realtime: realtime, tick: 20 * time.Millisecond}
}

// FailNext makes the next OpenInput/OpenOutput return the given errors.
func (v *Virtual) FailNext(inputErr, outputErr error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failIn = inputErr
	v.failOut = outputErr
}

func (v *Virtual) OpenInput(cfg InputConfig) (Input, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.failIn; err != nil {
		v.failIn = nil
		return nil, err
	}
	in := &VirtualInput{cfg: cfg}
	v.inputs = append(v.inputs, in)
	return in, nil
}

func (v *Virtual) OpenOutput(cfg OutputConfig) (Output, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.failOut; err != nil {
		v.failOut = nil
		return nil, err
	}
	out := &VirtualOutput{Mixer: NewMixer(cfg.SampleRate), done: make(chan struct{})}
	if v.realtime {
		go out.run(v.tick)
	}
	v.outputs = append(v.outputs, out)
	return out, nil
}

func (v *Virtual) Inputs() []*VirtualInput {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]*VirtualInput(nil), v.inputs...)
}

func (v *Virtual) Outputs() []*VirtualOutput {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]*VirtualOutput(nil), v.outputs...)
}

type VirtualInput struct {
	cfg InputConfig

	mu       sync.Mutex
	callback func([]float32)
	starts   int
	stops    int
	closed   bool
}

func (in *VirtualInput) Start(onSamples func([]float32)) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return ErrClosed
	}
	in.callback = onSamples
	in.starts++
	return nil
}

func (in *VirtualInput) Stop() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.callback != nil {
		in.stops++
	}
	in.callback = nil
	return nil
}

func (in *VirtualInput) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.callback = nil
	in.closed = true
	return nil
}

// Push delivers samples as if the device callback had fired. It reports
// whether a callback was attached.
func (in *VirtualInput) Push(samples []float32) bool {
	in.mu.Lock()
	cb := in.callback
	in.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(samples)
	return true
}

func (in *VirtualInput) Closed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.closed
}

func (in *VirtualInput) Attached() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.callback != nil
}

type VirtualOutput struct {
	*Mixer

	closeOnce sync.Once
	done      chan struct{}
	closed    bool
	mu        sync.Mutex
}

func (out *VirtualOutput) run(tick time.Duration) {
	frames := int(tick.Seconds() * float64(out.SampleRate()))
	buf := make([]float32, frames)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-out.done:
			return
		case <-ticker.C:
			out.Render(buf)
		}
	}
}

// Advance renders the given number of seconds of output.
func (out *VirtualOutput) Advance(seconds float64) {
	frames := int(seconds * float64(out.SampleRate()))
	out.Render(make([]float32, frames))
}

func (out *VirtualOutput) Close() error {
	out.closeOnce.Do(func() {
		close(out.done)
		out.mu.Lock()
		out.closed = true
		out.mu.Unlock()
		out.Mixer.Close()
	})
	return nil
}

func (out *VirtualOutput) Closed() bool {
	out.mu.Lock()
	defer out.mu.Unlock()
	return out.closed
}
