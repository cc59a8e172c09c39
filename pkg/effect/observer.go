package effect

import (
	"fmt"
	"sync"
	"time"

	"github.com/vango-dev/resync/pkg/deps"
)

// EndReason says why a session ended.
type EndReason uint8

const (
	// EndResynchronized means an input changed and a new session follows.
	EndResynchronized EndReason = iota + 1
	// EndDisposed means the effect was disposed.
	EndDisposed
	// EndAborted means setup panicked and the session never became active.
	EndAborted
)

func (r EndReason) String() string {
	switch r {
	case EndResynchronized:
		return "resynchronized"
	case EndDisposed:
		return "disposed"
	case EndAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Observer is notified of session lifecycle events.
//
// SessionStarted is called right before setup runs, SessionEnded right after
// the teardown returns, and Skipped when a pass leaves the session running.
// Observers run on the caller's goroutine and must not call back into the
// effect.
type Observer interface {
	SessionStarted(s *Session, inputs deps.List)
	SessionEnded(s *Session, reason EndReason)
	Skipped(s *Session, inputs deps.List)
}

type nopObserver struct{}

func (nopObserver) SessionStarted(*Session, deps.List) {}
func (nopObserver) SessionEnded(*Session, EndReason)   {}
func (nopObserver) Skipped(*Session, deps.List)        {}

// Observers fans events out to each non-nil observer in order.
func Observers(list ...Observer) Observer {
	var out multiObserver
	for _, o := range list {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return nopObserver{}
	case 1:
		return out[0]
	}
	return out
}

type multiObserver []Observer

func (m multiObserver) SessionStarted(s *Session, inputs deps.List) {
	for _, o := range m {
		o.SessionStarted(s, inputs)
	}
}

func (m multiObserver) SessionEnded(s *Session, reason EndReason) {
	for _, o := range m {
		o.SessionEnded(s, reason)
	}
}

func (m multiObserver) Skipped(s *Session, inputs deps.List) {
	for _, o := range m {
		o.Skipped(s, inputs)
	}
}

// ObserverFuncs adapts optional functions to an Observer.
type ObserverFuncs struct {
	OnStart func(s *Session, inputs deps.List)
	OnEnd   func(s *Session, reason EndReason)
	OnSkip  func(s *Session, inputs deps.List)
}

func (f ObserverFuncs) SessionStarted(s *Session, inputs deps.List) {
	if f.OnStart != nil {
		f.OnStart(s, inputs)
	}
}

func (f ObserverFuncs) SessionEnded(s *Session, reason EndReason) {
	if f.OnEnd != nil {
		f.OnEnd(s, reason)
	}
}

func (f ObserverFuncs) Skipped(s *Session, inputs deps.List) {
	if f.OnSkip != nil {
		f.OnSkip(s, inputs)
	}
}

// EventType is the kind of a recorded lifecycle event.
type EventType string

const (
	EventSetup    EventType = "setup"
	EventTeardown EventType = "teardown"
	EventSkip     EventType = "skip"
)

// Event is one recorded lifecycle event.
type Event struct {
	Type    EventType `json:"type"`
	Effect  string    `json:"effect"`
	Session string    `json:"session,omitempty"`
	Seq     int       `json:"seq"`
	Inputs  string    `json:"inputs,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Time    time.Time `json:"time"`
}

// String renders the event as "setup name#seq".
func (ev Event) String() string {
	return fmt.Sprintf("%s %s#%d", ev.Type, ev.Effect, ev.Seq)
}

// EventFromStart builds the event for a started session.
func EventFromStart(s *Session, inputs deps.List) Event {
	return Event{
		Type:    EventSetup,
		Effect:  s.Effect,
		Session: s.ID.String(),
		Seq:     s.Seq,
		Inputs:  inputs.String(),
		Time:    s.Started,
	}
}

// EventFromEnd builds the event for an ended session.
func EventFromEnd(s *Session, reason EndReason) Event {
	return Event{
		Type:    EventTeardown,
		Effect:  s.Effect,
		Session: s.ID.String(),
		Seq:     s.Seq,
		Reason:  reason.String(),
		Time:    time.Now(),
	}
}

// EventFromSkip builds the event for a pass that kept the session.
func EventFromSkip(s *Session, inputs deps.List) Event {
	ev := Event{Type: EventSkip, Inputs: inputs.String(), Time: time.Now()}
	if s != nil {
		ev.Effect = s.Effect
		ev.Session = s.ID.String()
		ev.Seq = s.Seq
	}
	return ev
}

// Recorder is an Observer that keeps an ordered call log.
// Aborted sessions are recorded as a teardown with reason "aborted" even
// though no teardown function ran.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) SessionStarted(s *Session, inputs deps.List) {
	r.add(EventFromStart(s, inputs))
}

func (r *Recorder) SessionEnded(s *Session, reason EndReason) {
	r.add(EventFromEnd(s, reason))
}

func (r *Recorder) Skipped(s *Session, inputs deps.List) {
	r.add(EventFromSkip(s, inputs))
}

func (r *Recorder) add(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Log returns the recorded setup and teardown events as strings, skipping
// passes that kept their session.
func (r *Recorder) Log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Type == EventSkip {
			continue
		}
		out = append(out, ev.String())
	}
	return out
}

// Count returns how many events of type t were recorded for effect.
func (r *Recorder) Count(effect string, t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Effect == effect && ev.Type == t {
			n++
		}
	}
	return n
}

// Reset clears the log.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
