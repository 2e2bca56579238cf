// Package focus tracks which window currently has keyboard focus.
package focus

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// DefaultRefreshInterval is how long a captured snapshot is served before the
// window system is asked again.
const DefaultRefreshInterval = time.Second

var (
	// ErrNoActiveWindow means the window system reported no focused window.
	ErrNoActiveWindow = errors.New("no active window")
	// ErrMalformedProperty means a window property had an unexpected format
	// or was not valid UTF-8.
	ErrMalformedProperty = errors.New("malformed window property")
)

var refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "remapd",
	Subsystem: "focus",
	Name:      "refresh_total",
	Help:      "Focused-window queries by result.",
}, []string{"result"})

var defaultLogger = zerolog.New(os.Stdout).With().Str("subsystem", "focus").Logger()

// Window is what the window system reports about the focused window.
type Window struct {
	Title   string
	Class   string
	Process string
}

// Snapshot is a captured Window. Callers receive copies and never share one.
type Snapshot struct {
	Title      string    `json:"title"`
	Class      string    `json:"class"`
	Process    string    `json:"process,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// Querier asks the window system for the focused window.
type Querier interface {
	ActiveWindow(ctx context.Context) (Window, error)
}

// Cache memoizes the focused window and refreshes it at most once per
// interval. A failed refresh keeps the last good snapshot.
type Cache struct {
	querier  Querier
	interval time.Duration
	clock    clockwork.Clock
	log      *zerolog.Logger

	mu          sync.Mutex
	snapshot    *Snapshot
	refreshedAt time.Time
	queried     bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the wall clock, for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Cache) { c.log = logger }
}

// NewCache returns a Cache over q. A non-positive interval selects
// DefaultRefreshInterval.
func NewCache(q Querier, interval time.Duration, opts ...Option) *Cache {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	c := &Cache{
		querier:  q,
		interval: interval,
		clock:    clockwork.NewRealClock(),
		log:      &defaultLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current returns the focused window, refreshing it first when the cached
// snapshot is older than the refresh interval. It returns nil until a query
// has succeeded at least once.
//
// The refresh runs on the caller's goroutine and is the only part of the
// cache that may block on I/O.
func (c *Cache) Current(ctx context.Context) *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if !c.queried || now.Sub(c.refreshedAt) >= c.interval {
		c.refresh(ctx, now)
	}
	return c.copyLocked()
}

// Peek returns the cached snapshot without refreshing it.
func (c *Cache) Peek() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyLocked()
}

// Invalidate makes the next Current call query the window system.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.queried = false
	c.mu.Unlock()
}

func (c *Cache) Interval() time.Duration { return c.interval }

func (c *Cache) refresh(ctx context.Context, now time.Time) {
	c.queried = true
	c.refreshedAt = now

	w, err := c.querier.ActiveWindow(ctx)
	if err != nil {
		refreshTotal.WithLabelValues("error").Inc()
		// keep the last good snapshot
		c.log.Debug().Err(err).Bool("cached", c.snapshot != nil).Msg("focused window query failed")
		return
	}
	refreshTotal.WithLabelValues("ok").Inc()

	if c.snapshot == nil || c.snapshot.Title != w.Title || c.snapshot.Class != w.Class || c.snapshot.Process != w.Process {
		c.log.Debug().
			Str("title", w.Title).
			Str("class", w.Class).
			Str("process", w.Process).
			Msg("focus changed")
	}
	c.snapshot = &Snapshot{
		Title:      w.Title,
		Class:      w.Class,
		Process:    w.Process,
		CapturedAt: now,
	}
}

func (c *Cache) copyLocked() *Snapshot {
	if c.snapshot == nil {
		return nil
	}
	s := *c.snapshot
	return &s
}
