// Package remap is the key remap state machine.
//
// The engine consumes raw key events in arrival order, decides at press time
// whether and how each key is remapped, pins that decision until the key is
// released, and emits logical actions to a Sink. Pinning guarantees that the
// release always matches the press, whatever happens to focus, policy or the
// mapping table in between.
package remap

import (
	"context"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/jetkvm/remapd/internal/focus"
	"github.com/jetkvm/remapd/internal/keys"
	"github.com/jetkvm/remapd/internal/mapping"
)

// ActionKind is the kind of a logical action.
type ActionKind uint8

const (
	ActionPress ActionKind = iota + 1
	ActionRelease
	ActionMedia
)

func (k ActionKind) String() string {
	switch k {
	case ActionPress:
		return "press"
	case ActionRelease:
		return "release"
	case ActionMedia:
		return "media"
	default:
		return "unknown"
	}
}

// Action is one logical output of the engine.
type Action struct {
	Kind ActionKind
	// Key is the key to press or release. Unset for media actions.
	Key keys.Identity
	// Repeat marks a press re-emitted for an auto-repeat of a held key.
	Repeat bool
	// Command is the media command of an ActionMedia.
	Command mapping.Command
	// Source is the physical key the action was derived from.
	Source keys.Identity
}

func (a Action) String() string {
	switch a.Kind {
	case ActionMedia:
		return "media " + a.Command.String()
	case ActionPress:
		if a.Repeat {
			return "repeat " + a.Key.String()
		}
		return "press " + a.Key.String()
	default:
		return a.Kind.String() + " " + a.Key.String()
	}
}

// Sink executes actions. Dispatch must not block the caller on slow work.
type Sink interface {
	Dispatch(Action)
}

// FocusSource reports the focused window, nil when unknown.
type FocusSource interface {
	Current(ctx context.Context) *focus.Snapshot
}

// Suppressor decides whether remapping is off for a focused window.
type Suppressor interface {
	Suppressed(snap *focus.Snapshot) bool
}

// HeldKey is a physically held key and the target pinned at its press.
type HeldKey struct {
	Key    keys.Identity  `json:"key"`
	Target mapping.Target `json:"-"`
	Since  time.Time      `json:"since"`
}

type pinned struct {
	target mapping.Target
	since  time.Time
}

// Stats are cumulative engine counters.
type Stats struct {
	Events         uint64 `json:"events"`
	Remapped       uint64 `json:"remapped"`
	Suppressed     uint64 `json:"suppressed"`
	MediaCommands  uint64 `json:"media_commands"`
	IgnoredRepeats uint64 `json:"ignored_repeats"`
	StrayReleases  uint64 `json:"stray_releases"`
	ForcedReleases uint64 `json:"forced_releases"`
	Held           int    `json:"held"`
}

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "remapd",
		Subsystem: "engine",
		Name:      "events_total",
		Help:      "Raw key events processed, by transition.",
	}, []string{"transition"})
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "remapd",
		Subsystem: "engine",
		Name:      "decisions_total",
		Help:      "Press-time remap decisions, by outcome.",
	}, []string{"outcome"})
	heldKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "remapd",
		Subsystem: "engine",
		Name:      "held_keys",
		Help:      "Keys currently held with a pinned target.",
	})
)

var defaultLogger = zerolog.New(os.Stdout).With().Str("subsystem", "engine").Logger()

// Engine is the remap state machine. Handle, ReleaseAll and Run must be
// called from a single goroutine; the remaining methods are safe to call
// concurrently.
type Engine struct {
	focus FocusSource
	sink  Sink
	log   *zerolog.Logger
	now   func() time.Time

	table      atomic.Pointer[mapping.Table]
	suppressor atomic.Pointer[suppressorRef]

	mu   sync.Mutex
	held map[keys.Identity]pinned

	events, remapped, suppressed, media, repeats, strays, forced atomic.Uint64
}

type suppressorRef struct{ Suppressor }

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *zerolog.Logger) Option {
	return func(e *Engine) { e.log = logger }
}

// WithNow replaces the clock used for held-key timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New returns an engine reading focus from fs and emitting to sink.
func New(fs FocusSource, table *mapping.Table, s Suppressor, sink Sink, opts ...Option) *Engine {
	e := &Engine{
		focus: fs,
		sink:  sink,
		log:   &defaultLogger,
		now:   time.Now,
		held:  make(map[keys.Identity]pinned),
	}
	e.table.Store(table)
	e.suppressor.Store(&suppressorRef{s})
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetTable swaps the mapping table. Held keys keep their pinned targets.
func (e *Engine) SetTable(t *mapping.Table) {
	e.table.Store(t)
	e.log.Info().Int("entries", t.Len()).Msg("mapping table replaced")
}

func (e *Engine) Table() *mapping.Table { return e.table.Load() }

// SetSuppressor swaps the suppression policy. Held keys keep their pinned
// targets.
func (e *Engine) SetSuppressor(s Suppressor) {
	e.suppressor.Store(&suppressorRef{s})
	e.log.Info().Msg("suppression policy replaced")
}

func (e *Engine) Suppressor() Suppressor { return e.suppressor.Load().Suppressor }

// Handle processes one raw event, dispatches the resulting actions to the
// sink and returns them.
func (e *Engine) Handle(ctx context.Context, ev keys.Event) []Action {
	e.events.Add(1)
	var actions []Action
	if ev.Pressed {
		actions = e.press(ctx, ev.Key)
	} else {
		actions = e.release(ev.Key)
	}
	for _, a := range actions {
		e.log.Trace().Stringer("event", ev).Stringer("action", a).Msg("dispatch")
		e.sink.Dispatch(a)
	}
	return actions
}

func (e *Engine) press(ctx context.Context, id keys.Identity) []Action {
	e.mu.Lock()
	p, tracked := e.held[id]
	e.mu.Unlock()

	if tracked {
		eventsTotal.WithLabelValues("repeat").Inc()
		if p.target.Kind == mapping.TargetMedia {
			// media commands are edge-triggered
			e.repeats.Add(1)
			return nil
		}
		return []Action{pressAction(id, p.target, true)}
	}
	eventsTotal.WithLabelValues("press").Inc()

	target := e.decide(ctx, id)

	e.mu.Lock()
	e.held[id] = pinned{target: target, since: e.now()}
	heldKeys.Set(float64(len(e.held)))
	e.mu.Unlock()

	if target.Kind == mapping.TargetMedia {
		e.media.Add(1)
		return []Action{{Kind: ActionMedia, Command: target.Command, Source: id}}
	}
	return []Action{pressAction(id, target, false)}
}

func (e *Engine) decide(ctx context.Context, id keys.Identity) mapping.Target {
	snap := e.focus.Current(ctx)
	if e.suppressor.Load().Suppressed(snap) {
		target := e.table.Load().Lookup(id)
		if !target.IsPassthrough() {
			e.suppressed.Add(1)
			decisionsTotal.WithLabelValues("suppressed").Inc()
			ev := e.log.Debug().Stringer("key", id)
			if snap != nil {
				ev = ev.Str("title", snap.Title).Str("class", snap.Class)
			}
			ev.Msg("remap suppressed for focused window")
		}
		return mapping.Passthrough()
	}
	target := e.table.Load().Lookup(id)
	if target.IsPassthrough() {
		decisionsTotal.WithLabelValues("passthrough").Inc()
	} else {
		e.remapped.Add(1)
		decisionsTotal.WithLabelValues("remapped").Inc()
	}
	return target
}

func (e *Engine) release(id keys.Identity) []Action {
	e.mu.Lock()
	p, tracked := e.held[id]
	if tracked {
		delete(e.held, id)
		heldKeys.Set(float64(len(e.held)))
	}
	e.mu.Unlock()

	if !tracked {
		eventsTotal.WithLabelValues("stray_release").Inc()
		e.strays.Add(1)
		e.log.Trace().Stringer("key", id).Msg("release for untracked key ignored")
		return nil
	}
	eventsTotal.WithLabelValues("release").Inc()
	if a, ok := releaseAction(id, p.target); ok {
		return []Action{a}
	}
	return nil
}

// ReleaseAll releases every held key through its pinned target and forgets
// it. It is called on shutdown and when the input source goes away, so no
// key stays down in the OS.
func (e *Engine) ReleaseAll() []Action {
	e.mu.Lock()
	ids := make([]keys.Identity, 0, len(e.held))
	for id := range e.held {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	var actions []Action
	for _, id := range ids {
		if a, ok := releaseAction(id, e.held[id].target); ok {
			actions = append(actions, a)
		}
		delete(e.held, id)
	}
	heldKeys.Set(0)
	e.mu.Unlock()

	if len(ids) > 0 {
		e.forced.Add(uint64(len(ids)))
		e.log.Info().Int("keys", len(ids)).Msg("releasing held keys")
	}
	for _, a := range actions {
		e.sink.Dispatch(a)
	}
	return actions
}

// Run handles events until ctx is canceled or events is closed, then
// releases every held key.
func (e *Engine) Run(ctx context.Context, events <-chan keys.Event) error {
	defer e.ReleaseAll()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				e.log.Info().Msg("input stream closed")
				return nil
			}
			e.Handle(ctx, ev)
		}
	}
}

// Held returns the currently held keys ordered by key name.
func (e *Engine) Held() []HeldKey {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]HeldKey, 0, len(e.held))
	for id, p := range e.held {
		out = append(out, HeldKey{Key: id, Target: p.target, Since: p.since})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	held := len(e.held)
	e.mu.Unlock()
	return Stats{
		Events:         e.events.Load(),
		Remapped:       e.remapped.Load(),
		Suppressed:     e.suppressed.Load(),
		MediaCommands:  e.media.Load(),
		IgnoredRepeats: e.repeats.Load(),
		StrayReleases:  e.strays.Load(),
		Held:           held,
		ForcedReleases: e.forced.Load(),
	}
}

func pressAction(id keys.Identity, t mapping.Target, repeat bool) Action {
	key := id
	if t.Kind == mapping.TargetEmitKey {
		key = t.Key
	}
	return Action{Kind: ActionPress, Key: key, Repeat: repeat, Source: id}
}

// releaseAction mirrors pressAction. Media targets have nothing to release.
func releaseAction(id keys.Identity, t mapping.Target) (Action, bool) {
	switch t.Kind {
	case mapping.TargetMedia:
		return Action{}, false
	case mapping.TargetEmitKey:
		return Action{Kind: ActionRelease, Key: t.Key, Source: id}, true
	default:
		return Action{Kind: ActionRelease, Key: id, Source: id}, true
	}
}
