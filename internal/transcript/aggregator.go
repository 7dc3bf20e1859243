// Package transcript accumulates streaming speech-to-text for the user and
// the model into an ordered list of entries.
package transcript

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

type Sender string

const (
	SenderUser  Sender = "user"
	SenderModel Sender = "model"
)

type Entry struct {
	ID        string `json:"id"`
	Sender    Sender `json:"sender"`
	Text      string `json:"text"`
	IsPartial bool   `json:"is_partial"`
}

type ChangeFunc func(entries []Entry)

// Aggregator keeps one accumulation buffer per sender. User text stays hidden
// until the turn completes; model text is mirrored into a partial entry that
// is rewritten in place while it is the trailing entry.
type Aggregator struct {
	mu           sync.Mutex
	entries      []Entry
	input        strings.Builder
	output       strings.Builder
	modelPartial int
	onChange     ChangeFunc
	newID        func() string
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		modelPartial: -1,
		newID:        uuid.NewString,
	}
}

func (a *Aggregator) OnChange(fn ChangeFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange = fn
}

func (a *Aggregator) OnPartial(sender Sender, text string) {
	a.mu.Lock()
	switch sender {
	case SenderUser:
		a.input.WriteString(text)
		a.mu.Unlock()
		return
	case SenderModel:
		a.output.WriteString(text)
		full := a.output.String()
		if a.trailingPartialLocked() {
			a.entries[a.modelPartial].Text = full
		} else {
			a.entries = append(a.entries, Entry{
				ID:        a.newID(),
				Sender:    SenderModel,
				Text:      full,
				IsPartial: true,
			})
			a.modelPartial = len(a.entries) - 1
		}
	default:
		a.mu.Unlock()
		return
	}
	a.notifyLocked()
}

// OnTurnComplete finalizes whatever each stream accumulated. Calling it with
// nothing accumulated is a no-op.
func (a *Aggregator) OnTurnComplete() {
	a.mu.Lock()
	changed := false

	if a.input.Len() > 0 {
		a.entries = append(a.entries, Entry{
			ID:     a.newID(),
			Sender: SenderUser,
			Text:   a.input.String(),
		})
		a.input.Reset()
		changed = true
	}

	if a.output.Len() > 0 {
		if a.modelPartial >= 0 {
			a.entries[a.modelPartial].Text = a.output.String()
			a.entries[a.modelPartial].IsPartial = false
			a.modelPartial = -1
			changed = true
		}
		a.output.Reset()
	}

	if !changed {
		a.mu.Unlock()
		return
	}
	a.notifyLocked()
}

// OnInterrupted drops the model's accumulated text. The visible partial
// entry stays as it is. The next model partial rewrites it only while it is
// still the trailing entry.
func (a *Aggregator) OnInterrupted() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.output.Reset()
}

// Reset drops both accumulation buffers without touching entries.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.input.Reset()
	a.output.Reset()
}

// Clear removes every entry and any pending accumulation.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.entries = nil
	a.modelPartial = -1
	a.input.Reset()
	a.output.Reset()
	a.notifyLocked()
}

func (a *Aggregator) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) PendingInput() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.input.String()
}

func (a *Aggregator) PendingOutput() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.output.String()
}

func (a *Aggregator) trailingPartialLocked() bool {
	return a.modelPartial >= 0 && a.modelPartial == len(a.entries)-1
}

func (a *Aggregator) snapshotLocked() []Entry {
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// notifyLocked releases a.mu before running the listener.
func (a *Aggregator) notifyLocked() {
	fn := a.onChange
	snapshot := a.snapshotLocked()
	a.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
}
