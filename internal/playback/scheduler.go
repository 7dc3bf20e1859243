// Package playback schedules decoded audio back-to-back on an output device
// clock and flushes it on interruption.
package playback

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/eleven-am/voice-client/internal/audio"
)

// Source is a buffer that has been handed to the device.
type Source interface {
	Stop() error
}

// Device is the output side of the audio hardware. onEnded fires once when a
// scheduled buffer finishes playing naturally; it is never called from inside
// Schedule and never after Stop.
type Device interface {
	CurrentTime() float64
	Schedule(buf *audio.Buffer, startAt float64, onEnded func()) (Source, error)
}

type Item struct {
	ID       uint64
	StartAt  float64
	Duration float64
}

type activeItem struct {
	Item
	source Source
}

type Scheduler struct {
	device Device
	log    *slog.Logger

	mu     sync.Mutex
	cursor float64
	active map[uint64]*activeItem
	nextID uint64
}

func NewScheduler(device Device, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		device: device,
		log:    log.With("component", "playback_scheduler"),
		active: make(map[uint64]*activeItem),
	}
}

// Schedule queues buf to start where the previous buffer ends, or now if the
// timeline has fallen behind the device clock.
func (s *Scheduler) Schedule(buf *audio.Buffer) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	startAt := s.cursor
	if now := s.device.CurrentTime(); now > startAt {
		startAt = now
	}

	s.nextID++
	id := s.nextID

	source, err := s.device.Schedule(buf, startAt, func() { s.finished(id) })
	if err != nil {
		return Item{}, fmt.Errorf("schedule buffer: %w", err)
	}

	item := &activeItem{
		Item: Item{
			ID:       id,
			StartAt:  startAt,
			Duration: buf.Duration(),
		},
		source: source,
	}
	s.active[id] = item
	s.cursor = startAt + item.Duration

	return item.Item, nil
}

func (s *Scheduler) finished(id uint64) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// Interrupt stops everything queued or playing and rewinds the cursor to zero.
// The next Schedule call clamps to the device clock.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	stopped := s.stopAllLocked()
	s.cursor = 0
	return stopped
}

// StopAll is the teardown flush; it leaves the cursor alone.
func (s *Scheduler) StopAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopAllLocked()
}

func (s *Scheduler) stopAllLocked() int {
	count := len(s.active)
	for id, item := range s.active {
		if err := item.source.Stop(); err != nil {
			s.log.Debug("stop playback source", "item_id", id, "error", err)
		}
	}
	clear(s.active)
	return count
}

func (s *Scheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Active returns the items currently queued or playing, in no particular order.
func (s *Scheduler) Active() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Item, 0, len(s.active))
	for _, item := range s.active {
		items = append(items, item.Item)
	}
	return items
}
