// Package voicesession owns the connection lifecycle: it acquires the audio
// devices and the session channel, routes inbound events to playback and the
// transcript, and tears everything down in a fixed order.
package voicesession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eleven-am/voice-client/internal/audio"
	"github.com/eleven-am/voice-client/internal/capture"
	"github.com/eleven-am/voice-client/internal/device"
	"github.com/eleven-am/voice-client/internal/metrics"
	"github.com/eleven-am/voice-client/internal/playback"
	"github.com/eleven-am/voice-client/internal/shared"
	"github.com/eleven-am/voice-client/internal/transcript"
	"github.com/eleven-am/voice-client/internal/transport"
	"github.com/eleven-am/voice-client/internal/visualizer"
	"github.com/google/uuid"
)

type Config struct {
	Session               transport.SessionConfig
	Capture               capture.Config
	PlaybackSampleRate    int
	OutputFramesPerBuffer int
}

type Deps struct {
	Devices        device.Backend
	Dialer         transport.Dialer
	Transcript     *transcript.Aggregator
	Metrics        *metrics.Metrics
	InputAnalyser  *visualizer.Analyser
	OutputAnalyser *visualizer.Analyser
	Log            *slog.Logger
}

type Status struct {
	State          State         `json:"state"`
	Error          string        `json:"error,omitempty"`
	ConnectionID   string        `json:"connection_id,omitempty"`
	Capture        capture.Stats `json:"capture"`
	ActivePlayback int           `json:"active_playback"`
}

// connection is everything acquired for one session. It is replaced, never
// reused, so events from an old channel can be recognised by identity.
type connection struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	input     device.Input
	output    device.Output
	channel   transport.Channel
	capture   *capture.Pipeline
	scheduler *playback.Scheduler
	done      chan struct{}
}

type Controller struct {
	cfg        Config
	devices    device.Backend
	dialer     transport.Dialer
	transcript *transcript.Aggregator
	metrics    *metrics.Metrics
	inputViz   *visualizer.Analyser
	outputViz  *visualizer.Analyser
	log        *slog.Logger

	mu         sync.Mutex
	state      State
	lastErr    error
	conn       *connection
	generation uint64
	listeners  []StateFunc
	pending    []State

	shutdownOnce sync.Once
}

func New(cfg Config, deps Deps) *Controller {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Transcript == nil {
		deps.Transcript = transcript.NewAggregator()
	}
	if cfg.Capture.SampleRate <= 0 {
		cfg.Capture.SampleRate = audio.CaptureSampleRate
	}
	if cfg.Capture.FrameSize <= 0 {
		cfg.Capture.FrameSize = capture.DefaultFrameSize
	}
	if cfg.PlaybackSampleRate <= 0 {
		cfg.PlaybackSampleRate = audio.PlaybackSampleRate
	}
	if cfg.Session.InputMIMEType == "" {
		cfg.Session.InputMIMEType = audio.PCMMIMEType(cfg.Capture.SampleRate)
	}

	deps.Metrics.SetConnectionState(string(StateDisconnected))

	return &Controller{
		cfg:        cfg,
		devices:    deps.Devices,
		dialer:     deps.Dialer,
		transcript: deps.Transcript,
		metrics:    deps.Metrics,
		inputViz:   deps.InputAnalyser,
		outputViz:  deps.OutputAnalyser,
		log:        deps.Log.With("component", "voicesession"),
		state:      StateDisconnected,
	}
}

func (c *Controller) Transcript() *transcript.Aggregator {
	return c.transcript
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the failure that put the controller into StateError.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: c.state}
	if c.lastErr != nil {
		st.Error = c.lastErr.Error()
	}
	if c.conn != nil {
		st.ConnectionID = c.conn.id
		st.Capture = c.conn.capture.Stats()
		st.ActivePlayback = c.conn.scheduler.ActiveCount()
	}
	return st
}

// OnStateChange registers a listener. Listeners run outside the controller
// lock and may call back into the controller.
func (c *Controller) OnStateChange(fn StateFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) ClearTranscript() {
	c.transcript.Clear()
}

// Connect acquires the microphone, the speaker and the session channel. It
// returns once the channel is open; the session becomes connected when the
// remote side confirms setup. Calling Connect while a session is active is a
// no-op.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Active() {
		c.mu.Unlock()
		return nil
	}
	if c.cfg.Session.APIKey == "" {
		c.lastErr = shared.ErrMissingCredential
		c.setStateLocked(StateError)
		c.unlockAndNotify()
		c.metrics.ConnectAttempt("missing_credential")
		c.log.Error("cannot connect without an API key")
		return shared.ErrMissingCredential
	}
	c.lastErr = nil
	c.generation++
	gen := c.generation
	c.setStateLocked(StateConnecting)
	c.unlockAndNotify()

	conn, err := c.acquire(ctx)

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		if conn != nil {
			c.release(conn)
		}
		c.log.Info("connect superseded")
		return context.Canceled
	}
	if err != nil {
		c.lastErr = err
		c.setStateLocked(StateError)
		c.unlockAndNotify()
		c.metrics.ConnectAttempt("failed")
		c.log.Error("connect failed", "error", err)
		return err
	}
	c.conn = conn
	c.mu.Unlock()

	c.metrics.ConnectAttempt("ok")
	c.log.Info("session channel ready", "connection_id", conn.id)
	go c.dispatch(conn)
	return nil
}

// acquire opens every resource in order and releases what it already holds
// when a later step fails.
func (c *Controller) acquire(ctx context.Context) (*connection, error) {
	input, err := c.devices.OpenInput(device.InputConfig{
		SampleRate: c.cfg.Capture.SampleRate,
		FrameSize:  c.cfg.Capture.FrameSize,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open microphone: %v", shared.ErrDeviceAcquisition, err)
	}

	output, err := c.devices.OpenOutput(device.OutputConfig{
		SampleRate:      c.cfg.PlaybackSampleRate,
		FramesPerBuffer: c.cfg.OutputFramesPerBuffer,
	})
	if err != nil {
		c.closeQuietly("input", input.Close)
		return nil, fmt.Errorf("%w: open speaker: %v", shared.ErrDeviceAcquisition, err)
	}
	if c.outputViz != nil {
		output.SetTap(c.outputViz.Write)
	}

	channel, err := c.dialer.Dial(ctx, c.cfg.Session)
	if err != nil {
		c.closeQuietly("output", output.Close)
		c.closeQuietly("input", input.Close)
		if !errors.Is(err, shared.ErrChannel) && !errors.Is(err, shared.ErrMissingCredential) {
			err = fmt.Errorf("%w: %v", shared.ErrChannel, err)
		}
		return nil, err
	}

	id := uuid.NewString()
	log := c.log.With("connection_id", id)
	connCtx, cancel := context.WithCancel(context.Background())

	pipeline := capture.New(c.cfg.Capture, channel, c.metrics, log)
	if c.inputViz != nil {
		pipeline.SetTap(c.inputViz)
	}
	pipeline.SetDropCallback(func(dropped int) {
		log.Debug("capture backpressure, frame dropped", "dropped", dropped)
	})

	return &connection{
		id:        id,
		ctx:       connCtx,
		cancel:    cancel,
		input:     input,
		output:    output,
		channel:   channel,
		capture:   pipeline,
		scheduler: playback.NewScheduler(output, log),
		done:      make(chan struct{}),
	}, nil
}

// Disconnect tears the active session down. It is safe from any state and
// on repeated calls.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	c.generation++
	if c.conn != nil {
		c.teardownLocked()
	}
	c.lastErr = nil
	c.setStateLocked(StateDisconnected)
	c.unlockAndNotify()
}

// Shutdown disconnects exactly once for process exit.
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.log.Info("shutting down voice session")
		c.Disconnect()
	})
}

func (c *Controller) dispatch(conn *connection) {
	defer close(conn.done)

	for evt := range conn.channel.Events() {
		c.handle(conn, evt)
	}
	c.handle(conn, transport.SessionClosed{Reason: "channel closed"})
}

// handle applies one inbound event. Events are serialised by the controller
// lock and ignored once their connection is no longer current.
func (c *Controller) handle(conn *connection, evt transport.ServerEvent) {
	c.mu.Lock()
	defer c.unlockAndNotify()

	if c.conn != conn {
		return
	}
	c.metrics.ServerEvent(transport.EventName(evt))

	switch e := evt.(type) {
	case transport.SessionOpened:
		if err := conn.capture.Start(conn.ctx, conn.input); err != nil {
			c.log.Error("start capture failed", "error", err)
			c.teardownLocked()
			c.lastErr = fmt.Errorf("%w: start microphone: %v", shared.ErrDeviceAcquisition, err)
			c.setStateLocked(StateError)
			return
		}
		c.setStateLocked(StateConnected)
		c.log.Info("session opened", "connection_id", conn.id)

	case transport.PartialInputTranscript:
		c.transcript.OnPartial(transcript.SenderUser, e.Text)

	case transport.PartialOutputTranscript:
		c.transcript.OnPartial(transcript.SenderModel, e.Text)

	case transport.TurnComplete:
		c.transcript.OnTurnComplete()

	case transport.AudioChunk:
		c.playLocked(conn, e)

	case transport.Interrupted:
		stopped := conn.scheduler.Interrupt()
		c.transcript.OnInterrupted()
		c.metrics.Interrupted()
		c.log.Debug("model interrupted", "stopped", stopped)

	case transport.SessionClosed:
		c.log.Info("session closed", "connection_id", conn.id, "reason", e.Reason)
		c.teardownLocked()
		c.setStateLocked(StateDisconnected)

	case transport.SessionError:
		c.log.Error("session error", "connection_id", conn.id, "error", e.Cause)
		c.teardownLocked()
		c.lastErr = fmt.Errorf("%w: %v", shared.ErrChannel, e)
		c.setStateLocked(StateError)
	}
}

func (c *Controller) playLocked(conn *connection, chunk transport.AudioChunk) {
	rate := audio.ParseRate(chunk.MIMEType, c.cfg.PlaybackSampleRate)
	buf, err := audio.DecodeToPlayableBuffer(chunk.Data, rate, audio.Channels)
	if err != nil {
		c.metrics.ChunkMalformed()
		c.log.Warn("dropping malformed audio chunk", "error", err, "mime_type", chunk.MIMEType)
		return
	}

	if rate != c.cfg.PlaybackSampleRate {
		for i, data := range buf.Channels {
			buf.Channels[i] = audio.Resample(data, rate, c.cfg.PlaybackSampleRate)
		}
		buf.SampleRate = c.cfg.PlaybackSampleRate
	}

	item, err := conn.scheduler.Schedule(buf)
	if err != nil {
		c.log.Warn("dropping unplayable audio chunk", "error", err)
		return
	}
	c.metrics.ChunkScheduled(item.Duration, conn.scheduler.ActiveCount())
}

// teardownLocked releases the current connection in a fixed order: capture,
// devices, playback, channel, accumulation buffers.
func (c *Controller) teardownLocked() {
	conn := c.conn
	c.conn = nil
	if conn == nil {
		return
	}
	c.release(conn)
	c.transcript.Reset()
	c.metrics.PlaybackFlushed()
	c.log.Info("session torn down", "connection_id", conn.id)
}

func (c *Controller) release(conn *connection) {
	conn.capture.Stop()
	c.closeQuietly("input", conn.input.Close)
	c.closeQuietly("output", conn.output.Close)
	if stopped := conn.scheduler.StopAll(); stopped > 0 {
		c.log.Debug("playback flushed", "stopped", stopped)
	}
	conn.cancel()
	c.closeQuietly("channel", conn.channel.Close)
}

func (c *Controller) closeQuietly(what string, fn func() error) {
	if err := fn(); err != nil {
		c.log.Debug("close failed", "resource", what, "error", err)
	}
}

func (c *Controller) setStateLocked(state State) {
	if c.state == state {
		return
	}
	c.state = state
	c.pending = append(c.pending, state)
	c.metrics.SetConnectionState(string(state))
}

func (c *Controller) unlockAndNotify() {
	pending := c.pending
	c.pending = nil
	listeners := c.listeners
	c.mu.Unlock()

	for _, state := range pending {
		for _, fn := range listeners {
			fn(state)
		}
	}
}
