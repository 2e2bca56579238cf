// Package dispatch executes remap actions: key presses and releases are
// written to the virtual keyboard inline, media commands run on a worker so
// a slow mixer never stalls key handling.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/jetkvm/remapd/internal/keys"
	"github.com/jetkvm/remapd/internal/mapping"
	"github.com/jetkvm/remapd/internal/remap"
	"github.com/jetkvm/remapd/internal/uinput"
)

const (
	DefaultQueueSize   = 16
	DefaultTimeout     = 2 * time.Second
	DefaultSettleDelay = 10 * time.Millisecond
)

var (
	ErrQueueFull = errors.New("media queue full")
	ErrClosed    = errors.New("dispatcher closed")
	ErrUnmapped  = errors.New("no key code for identity")
)

var defaultLogger = zerolog.New(os.Stdout).With().Str("subsystem", "dispatch").Logger()

var (
	injectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "remapd",
		Subsystem: "dispatch",
		Name:      "keys_total",
		Help:      "Key actions handled, by action and result.",
	}, []string{"action", "result"})
	mediaTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "remapd",
		Subsystem: "dispatch",
		Name:      "media_total",
		Help:      "Media commands, by command and result.",
	}, []string{"command", "result"})
	mediaQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "remapd",
		Subsystem: "dispatch",
		Name:      "media_queue_depth",
		Help:      "Media commands waiting for the worker.",
	})
)

// Injector writes a single key state change to the OS.
type Injector interface {
	Key(code keys.Code, value int32) error
}

// MediaRunner performs a media command out of band.
type MediaRunner interface {
	Run(ctx context.Context, cmd mapping.Command) error
}

// MediaKeys maps media commands to the keys tapped when no runner is set.
var MediaKeys = map[mapping.Command]keys.Code{
	mapping.CommandVolumeUp:   keys.KEY_VOLUMEUP,
	mapping.CommandVolumeDown: keys.KEY_VOLUMEDOWN,
	mapping.CommandToggleMute: keys.KEY_MUTE,
	mapping.CommandPlayPause:  keys.KEY_PLAYPAUSE,
}

// Options tune the media worker.
type Options struct {
	QueueSize   int
	Timeout     time.Duration
	SettleDelay time.Duration
	Logger      *zerolog.Logger
}

type job struct {
	id       xid.ID
	cmd      mapping.Command
	source   keys.Identity
	queuedAt time.Time
}

// Stats counts dispatcher outcomes since start.
type Stats struct {
	Injected     uint64 `json:"injected"`
	Coalesced    uint64 `json:"coalesced"`
	InjectErrors uint64 `json:"inject_errors"`
	MediaRun     uint64 `json:"media_run"`
	MediaFailed  uint64 `json:"media_failed"`
	MediaDropped uint64 `json:"media_dropped"`
	QueueDepth   int    `json:"queue_depth"`
}

// Dispatcher implements remap.Sink.
type Dispatcher struct {
	inj    Injector
	layout *keys.Layout
	runner MediaRunner
	opts   Options
	log    *zerolog.Logger

	queue  chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
	stats   Stats
	holders map[keys.Code]int
}

var _ remap.Sink = (*Dispatcher)(nil)

// New returns a dispatcher writing keys to inj. Matrix identities are
// translated through layout. With a nil runner media commands are tapped
// as media keys on inj.
func New(inj Injector, layout *keys.Layout, runner MediaRunner, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	logger := opts.Logger
	if logger == nil {
		l := defaultLogger
		logger = &l
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		inj:     inj,
		layout:  layout,
		runner:  runner,
		opts:    opts,
		log:     logger,
		queue:   make(chan job, opts.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		holders: make(map[keys.Code]int),
	}
}

// Start launches the media worker.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	d.wg.Add(1)
	go d.worker()
}

// Close stops accepting media commands and waits for queued ones to finish
// or for ctx to expire, whichever comes first.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// Dispatch executes a. Injection failures are logged and counted; they never
// stop event processing.
func (d *Dispatcher) Dispatch(a remap.Action) {
	switch a.Kind {
	case remap.ActionPress:
		value := uinput.Press
		if a.Repeat {
			value = uinput.Repeat
		}
		d.inject(a, value)
	case remap.ActionRelease:
		d.inject(a, uinput.Release)
	case remap.ActionMedia:
		if _, err := d.Enqueue(a.Command, a.Source); err != nil {
			d.log.Warn().Err(err).Str("command", a.Command.String()).Stringer("source", a.Source).Msg("media command dropped")
		}
	}
}

func (d *Dispatcher) inject(a remap.Action, value int32) {
	code, ok := d.layout.Resolve(a.Key)
	if !ok {
		d.count(func(s *Stats) { s.InjectErrors++ })
		injectedTotal.WithLabelValues(a.Kind.String(), "unmapped").Inc()
		d.log.Warn().Err(ErrUnmapped).Stringer("key", a.Key).Msg("cannot inject key")
		return
	}
	if !d.claim(code, value) {
		d.count(func(s *Stats) { s.Coalesced++ })
		injectedTotal.WithLabelValues(a.Kind.String(), "coalesced").Inc()
		d.log.Trace().Stringer("key", code).Int32("value", value).Stringer("source", a.Source).Msg("key already held by another source")
		return
	}
	if err := d.inj.Key(code, value); err != nil {
		if value == uinput.Press {
			d.unclaim(code)
		}
		d.count(func(s *Stats) { s.InjectErrors++ })
		injectedTotal.WithLabelValues(a.Kind.String(), "error").Inc()
		d.log.Error().Err(err).Stringer("key", code).Int32("value", value).Msg("failed to inject key")
		return
	}
	d.count(func(s *Stats) { s.Injected++ })
	injectedTotal.WithLabelValues(a.Kind.String(), "ok").Inc()
}

// claim updates the number of held sources emitting code and reports whether
// the transition must reach the OS: the first press, repeats while held and
// the release of the last holder.
func (d *Dispatcher) claim(code keys.Code, value int32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.holders[code]
	switch value {
	case uinput.Press:
		d.holders[code] = n + 1
		return n == 0
	case uinput.Release:
		if n <= 1 {
			delete(d.holders, code)
			return n == 1
		}
		d.holders[code] = n - 1
		return false
	default:
		return n > 0
	}
}

func (d *Dispatcher) unclaim(code keys.Code) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.holders[code] <= 1 {
		delete(d.holders, code)
		return
	}
	d.holders[code]--
}

// Enqueue schedules cmd on the media worker without blocking. It returns the
// job id, or ErrQueueFull when the worker is backed up.
func (d *Dispatcher) Enqueue(cmd mapping.Command, source keys.Identity) (xid.ID, error) {
	j := job{id: xid.New(), cmd: cmd, source: source, queuedAt: time.Now()}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return xid.NilID(), ErrClosed
	}
	select {
	case d.queue <- j:
		mediaQueueDepth.Set(float64(len(d.queue)))
		d.log.Debug().Str("job", j.id.String()).Str("command", cmd.String()).Msg("media command queued")
		return j.id, nil
	default:
		d.stats.MediaDropped++
		mediaTotal.WithLabelValues(cmd.String(), "dropped").Inc()
		return xid.NilID(), ErrQueueFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		mediaQueueDepth.Set(float64(len(d.queue)))
		d.run(j)
	}
}

func (d *Dispatcher) run(j job) {
	l := d.log.With().Str("job", j.id.String()).Str("command", j.cmd.String()).Logger()

	ctx, cancel := context.WithTimeout(d.ctx, d.opts.Timeout)
	defer cancel()

	start := time.Now()
	var err error
	if d.runner != nil {
		err = d.runner.Run(ctx, j.cmd)
	} else {
		err = d.tap(ctx, j.cmd)
	}
	if err != nil {
		d.count(func(s *Stats) { s.MediaFailed++ })
		mediaTotal.WithLabelValues(j.cmd.String(), "error").Inc()
		l.Error().Err(err).Msg("media command failed")
		return
	}
	d.count(func(s *Stats) { s.MediaRun++ })
	mediaTotal.WithLabelValues(j.cmd.String(), "ok").Inc()
	l.Debug().Dur("queued", start.Sub(j.queuedAt)).Dur("took", time.Since(start)).Msg("media command done")
}

func (d *Dispatcher) tap(ctx context.Context, cmd mapping.Command) error {
	code, ok := MediaKeys[cmd]
	if !ok {
		return fmt.Errorf("%s: no media key", cmd)
	}
	return d.Tap(ctx, code)
}

// Tap presses code, waits the settle delay and releases it. The release
// always follows a successful press, even when ctx expires during the wait.
func (d *Dispatcher) Tap(ctx context.Context, code keys.Code) error {
	if err := d.inj.Key(code, uinput.Press); err != nil {
		return fmt.Errorf("press %s: %w", code, err)
	}
	if d.opts.SettleDelay > 0 {
		t := time.NewTimer(d.opts.SettleDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}
	if err := d.inj.Key(code, uinput.Release); err != nil {
		return fmt.Errorf("release %s: %w", code, err)
	}
	return nil
}

func (d *Dispatcher) count(f func(*Stats)) {
	d.mu.Lock()
	f(&d.stats)
	d.mu.Unlock()
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.QueueDepth = len(d.queue)
	return s
}
