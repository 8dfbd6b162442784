// Package admin implements the Administrator, the per-run supervisor that
// watches agent traffic for ping-pong loops, arbitrates them by priority and
// decides when a run is complete.
//
// The Administrator is deterministic: its decision depends only on the
// observed sender history, the candidate event and the context keys. It
// never consults the clock or a random source.
package admin

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/hupe1980/crucible/core"
)

// Kind is the verdict returned for one candidate event.
type Kind string

const (
	Continue Kind = "CONTINUE"
	Resolved Kind = "RESOLVED"
	Stop     Kind = "STOP"
	Pause    Kind = "PAUSE"
)

// LoopRationale is the reason attached to every RESOLVED directive.
const LoopRationale = "repeated alternation between two agents"

// Directive is the Administrator's ruling on a candidate event.
type Directive struct {
	Kind           Kind     `json:"directive"`
	Reason         string   `json:"reason,omitempty"`
	WinnerID       string   `json:"winner_id,omitempty"`
	WinnerPriority int      `json:"winner_priority,omitempty"`
	LoopDetected   bool     `json:"loop_detected"`
	Participants   []string `json:"participants,omitempty"`
}

// Observation is one recorded {sender, priority} pair.
type Observation struct {
	SenderID       string `json:"sender_id"`
	SenderPriority int    `json:"sender_priority"`
}

const (
	// DefaultWindow is the number of trailing observations inspected for loops.
	DefaultWindow = 4
	// MinWindow is the smallest window that can express an alternation.
	MinWindow = 3
	// DefaultTerminalTopic marks the event that may complete a run.
	DefaultTerminalTopic = "OUTPUT_GENERATED"
)

// DefaultRequiredKeys are the context keys that must be present for a run
// to complete.
var DefaultRequiredKeys = []string{"clinical_entity", "diagnosis_mapping", "medication_management", "output_generation"}

// Options configures an Administrator.
type Options struct {
	// Window is the loop detection window. Values below MinWindow are raised.
	Window int
	// ReservedSenders are ignored entirely.
	ReservedSenders []string
	// RequiredKeys must all be present in the context for STOP.
	RequiredKeys []string
	// TerminalTopic is the topic whose candidate event may trigger STOP.
	TerminalTopic string
	// MaxEvents bounds the number of agent events per run; once exceeded the
	// Administrator answers PAUSE. Zero disables the budget.
	MaxEvents int
	// PauseTopics maps a topic to a PAUSE reason.
	PauseTopics map[string]string
}

// Administrator supervises a single run. It is safe for concurrent use, but
// callers that need a consistent view of history and context should
// serialise Monitor calls themselves.
type Administrator struct {
	mu       sync.Mutex
	opts     Options
	history  []Observation
	observed int
}

// New creates an Administrator with fresh history.
func New(optFns ...func(o *Options)) *Administrator {
	opts := Options{
		Window:          DefaultWindow,
		ReservedSenders: []string{core.SystemSender, core.SupervisorSender},
		RequiredKeys:    slices.Clone(DefaultRequiredKeys),
		TerminalTopic:   DefaultTerminalTopic,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Window < MinWindow {
		opts.Window = MinWindow
	}

	return &Administrator{opts: opts}
}

// Window returns the configured loop window.
func (a *Administrator) Window() int { return a.opts.Window }

// Monitor records ev (unless its sender is reserved) and returns the
// directive for it. Precedence: RESOLVED, PAUSE, STOP, CONTINUE.
func (a *Administrator) Monitor(ev core.Event, view map[string]any) Directive {
	a.mu.Lock()
	defer a.mu.Unlock()

	if slices.Contains(a.opts.ReservedSenders, ev.SenderID) {
		return Directive{Kind: Continue}
	}

	a.observed++
	a.history = append(a.history, Observation{SenderID: ev.SenderID, SenderPriority: ev.SenderPriority})
	if len(a.history) > a.opts.Window {
		a.history = slices.Clone(a.history[len(a.history)-a.opts.Window:])
	}

	if d, ok := a.detectLoop(); ok {
		return d
	}

	if reason, ok := a.opts.PauseTopics[ev.Topic]; ok {
		return Directive{Kind: Pause, Reason: reason}
	}

	if a.opts.MaxEvents > 0 && a.observed > a.opts.MaxEvents {
		return Directive{Kind: Pause, Reason: fmt.Sprintf("event budget of %d exhausted", a.opts.MaxEvents)}
	}

	if ev.Topic == a.opts.TerminalTopic && hasKeys(view, a.opts.RequiredKeys) {
		return Directive{Kind: Stop, Reason: "completion criteria met"}
	}

	return Directive{Kind: Continue}
}

// History returns a copy of the retained observations, oldest first.
func (a *Administrator) History() []Observation {
	a.mu.Lock()
	defer a.mu.Unlock()

	return slices.Clone(a.history)
}

// Observed returns how many non-reserved events have been monitored.
func (a *Administrator) Observed() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.observed
}

// detectLoop reports a strict two-party alternation over the full window.
// The caller holds a.mu.
func (a *Administrator) detectLoop() (Directive, bool) {
	w := a.opts.Window
	if len(a.history) < w {
		return Directive{}, false
	}

	tail := a.history[len(a.history)-w:]
	first, second := tail[0].SenderID, tail[1].SenderID
	if first == second {
		return Directive{}, false
	}

	for i, o := range tail {
		want := first
		if i%2 == 1 {
			want = second
		}
		if o.SenderID != want {
			return Directive{}, false
		}
	}

	winner := arbitrate(tail)

	return Directive{
		Kind:           Resolved,
		Reason:         LoopRationale,
		WinnerID:       winner.SenderID,
		WinnerPriority: winner.SenderPriority,
		LoopDetected:   true,
		Participants:   []string{first, second},
	}, true
}

// arbitrate picks the strictly highest priority observation; ties go to the
// participant seen first in the window.
func arbitrate(window []Observation) Observation {
	best := window[0]
	for _, o := range window[1:] {
		if o.SenderPriority > best.SenderPriority {
			best = o
		}
	}

	return best
}

func hasKeys(view map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := view[strings.TrimSpace(k)]; !ok {
			return false
		}
	}

	return true
}
