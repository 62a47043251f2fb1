package notify

import (
	"context"
	"sync"
)

type Published struct {
	Channel string
	Event   Event
}

// Recorder keeps every published event in memory. Used by tests across packages.
type Recorder struct {
	mu     sync.Mutex
	events []Published
	Err    error
}

func (r *Recorder) Publish(_ context.Context, channel string, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, Published{Channel: channel, Event: ev})
	return nil
}

func (r *Recorder) All() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.events...)
}

// On returns the events published on channel, in order.
func (r *Recorder) On(channel string) []Event {
	var out []Event
	for _, p := range r.All() {
		if p.Channel == channel {
			out = append(out, p.Event)
		}
	}
	return out
}

// Types returns the event types published on channel, in order.
func (r *Recorder) Types(channel string) []string {
	var out []string
	for _, ev := range r.On(channel) {
		out = append(out, ev.Type)
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
