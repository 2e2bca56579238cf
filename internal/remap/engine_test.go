package remap

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetkvm/remapd/internal/focus"
	"github.com/jetkvm/remapd/internal/keys"
	"github.com/jetkvm/remapd/internal/mapping"
	"github.com/jetkvm/remapd/internal/policy"
)

type stubFocus struct {
	snap  *focus.Snapshot
	calls int
}

func (s *stubFocus) Current(context.Context) *focus.Snapshot {
	s.calls++
	if s.snap == nil {
		return nil
	}
	c := *s.snap
	return &c
}

type recorder struct {
	actions []Action
}

func (r *recorder) Dispatch(a Action) { r.actions = append(r.actions, a) }

func (r *recorder) reset() { r.actions = nil }

var (
	editor      = &focus.Snapshot{Title: "main.go - vim", Class: "xterm-terminal"}
	spreadsheet = &focus.Snapshot{Title: "Spreadsheet", Class: "libreoffice-calc"}
)

func newEngine(t *testing.T, snap *focus.Snapshot) (*Engine, *stubFocus, *recorder) {
	t.Helper()
	fs := &stubFocus{snap: snap}
	rec := &recorder{}
	e := New(fs, mapping.DefaultKeycodeTable(), policy.Default(), rec)
	return e, fs, rec
}

func press(c keys.Code) keys.Event { return keys.Press(keys.Key(c)) }
func release(c keys.Code) keys.Event { return keys.Release(keys.Key(c)) }

func pressOf(c keys.Code, src keys.Code) Action {
	return Action{Kind: ActionPress, Key: keys.Key(c), Source: keys.Key(src)}
}

func releaseOf(c keys.Code, src keys.Code) Action {
	return Action{Kind: ActionRelease, Key: keys.Key(c), Source: keys.Key(src)}
}

func TestRemapWhenActive(t *testing.T) {
	e, _, rec := newEngine(t, spreadsheet)
	ctx := context.Background()

	assert.Equal(t, []Action{pressOf(keys.KEY_UP, keys.KEY_W)}, e.Handle(ctx, press(keys.KEY_W)))
	assert.Equal(t, []Action{releaseOf(keys.KEY_UP, keys.KEY_W)}, e.Handle(ctx, release(keys.KEY_W)))
	assert.Len(t, rec.actions, 2)
	assert.Empty(t, e.Held())
}

func TestPassthroughWhenSuppressed(t *testing.T) {
	e, _, _ := newEngine(t, editor)
	ctx := context.Background()

	assert.Equal(t, []Action{pressOf(keys.KEY_W, keys.KEY_W)}, e.Handle(ctx, press(keys.KEY_W)))
	assert.Equal(t, []Action{releaseOf(keys.KEY_W, keys.KEY_W)}, e.Handle(ctx, release(keys.KEY_W)))
	assert.Equal(t, uint64(1), e.Stats().Suppressed)
}

func TestSuppressedMediaKeyIsForwarded(t *testing.T) {
	e, _, _ := newEngine(t, editor)
	ctx := context.Background()

	assert.Equal(t, []Action{pressOf(keys.KEY_KPMINUS, keys.KEY_KPMINUS)}, e.Handle(ctx, press(keys.KEY_KPMINUS)))
	assert.Equal(t, []Action{releaseOf(keys.KEY_KPMINUS, keys.KEY_KPMINUS)}, e.Handle(ctx, release(keys.KEY_KPMINUS)))
}

func TestUnknownFocusRemaps(t *testing.T) {
	e, _, _ := newEngine(t, nil)
	assert.Equal(t, []Action{pressOf(keys.KEY_LEFT, keys.KEY_A)}, e.Handle(context.Background(), press(keys.KEY_A)))
}

func TestUnmappedKeyPassesThrough(t *testing.T) {
	e, _, _ := newEngine(t, spreadsheet)
	ctx := context.Background()

	assert.Equal(t, []Action{pressOf(keys.KEY_Q, keys.KEY_Q)}, e.Handle(ctx, press(keys.KEY_Q)))
	assert.Equal(t, []Action{releaseOf(keys.KEY_Q, keys.KEY_Q)}, e.Handle(ctx, release(keys.KEY_Q)))
	assert.Equal(t, uint64(0), e.Stats().Remapped)
}

// Focus moves to an editor while W is held: the release must still be the
// remapped Up arrow.
func TestPinnedAcrossFocusChange(t *testing.T) {
	e, fs, _ := newEngine(t, spreadsheet)
	ctx := context.Background()

	e.Handle(ctx, press(keys.KEY_W))
	fs.snap = editor
	assert.Equal(t, []Action{releaseOf(keys.KEY_UP, keys.KEY_W)}, e.Handle(ctx, release(keys.KEY_W)))

	// the next press sees the new focus
	assert.Equal(t, []Action{pressOf(keys.KEY_W, keys.KEY_W)}, e.Handle(ctx, press(keys.KEY_W)))
	fs.snap = spreadsheet
	assert.Equal(t, []Action{releaseOf(keys.KEY_W, keys.KEY_W)}, e.Handle(ctx, release(keys.KEY_W)))
}

func TestPinnedAcrossTableAndPolicyChange(t *testing.T) {
	e, _, _ := newEngine(t, spreadsheet)
	ctx := context.Background()

	e.Handle(ctx, press(keys.KEY_W))
	e.SetTable(mapping.MustNew([]mapping.Entry{
		{From: keys.Key(keys.KEY_W), To: mapping.Media(mapping.CommandPlayPause)},
	}))
	e.SetSuppressor(policy.New(policy.Rules{ClassContains: []string{"libreoffice"}}))

	assert.Equal(t, []Action{releaseOf(keys.KEY_UP, keys.KEY_W)}, e.Handle(ctx, release(keys.KEY_W)))
	assert.Equal(t, 1, e.Table().Len())
}

func TestFocusQueriedOnlyOnNewPress(t *testing.T) {
	e, fs, _ := newEngine(t, spreadsheet)
	ctx := context.Background()

	e.Handle(ctx, press(keys.KEY_W))
	e.Handle(ctx, press(keys.KEY_W))
	e.Handle(ctx, release(keys.KEY_W))
	e.Handle(ctx, release(keys.KEY_W))
	assert.Equal(t, 1, fs.calls)
}

func TestRepeatReemitsPress(t *testing.T) {
	e, _, _ := newEngine(t, spreadsheet)
	ctx := context.Background()

	e.Handle(ctx, press(keys.KEY_D))
	repeat := e.Handle(ctx, press(keys.KEY_D))
	require.Len(t, repeat, 1)
	assert.Equal(t, Action{Kind: ActionPress, Key: keys.Key(keys.KEY_RIGHT), Repeat: true, Source: keys.Key(keys.KEY_D)}, repeat[0])

	e.Handle(ctx, press(keys.KEY_Z))
	repeat = e.Handle(ctx, press(keys.KEY_Z))
	require.Len(t, repeat, 1)
	assert.True(t, repeat[0].Repeat)
	assert.Equal(t, keys.Key(keys.KEY_Z), repeat[0].Key)
}

func TestMediaIsEdgeTriggered(t *testing.T) {
	e, _, rec := newEngine(t, spreadsheet)
	ctx := context.Background()

	e.Handle(ctx, press(keys.KEY_KPMINUS))
	e.Handle(ctx, press(keys.KEY_KPMINUS))
	e.Handle(ctx, press(keys.KEY_KPMINUS))
	assert.Empty(t, e.Handle(ctx, release(keys.KEY_KPMINUS)))

	require.Len(t, rec.actions, 1)
	assert.Equal(t, Action{Kind: ActionMedia, Command: mapping.CommandVolumeDown, Source: keys.Key(keys.KEY_KPMINUS)}, rec.actions[0])
	assert.Equal(t, uint64(2), e.Stats().IgnoredRepeats)

	// a fresh press after release fires again
	rec.reset()
	e.Handle(ctx, press(keys.KEY_KPMINUS))
	assert.Len(t, rec.actions, 1)
}

func TestStrayReleaseIsNoop(t *testing.T) {
	e, _, rec := newEngine(t, spreadsheet)
	ctx := context.Background()

	assert.Empty(t, e.Handle(ctx, release(keys.KEY_W)))
	e.Handle(ctx, press(keys.KEY_W))
	e.Handle(ctx, release(keys.KEY_W))
	assert.Empty(t, e.Handle(ctx, release(keys.KEY_W)))

	assert.Len(t, rec.actions, 2)
	assert.Equal(t, uint64(2), e.Stats().StrayReleases)
}

func TestMatrixIdentities(t *testing.T) {
	rec := &recorder{}
	e := New(&stubFocus{snap: spreadsheet}, mapping.DefaultMatrixTable(), policy.Default(), rec)
	ctx := context.Background()

	w := keys.At(1, 2)
	assert.Equal(t, []Action{{Kind: ActionPress, Key: keys.Key(keys.KEY_UP), Source: w}}, e.Handle(ctx, keys.Press(w)))
	assert.Equal(t, []Action{{Kind: ActionRelease, Key: keys.Key(keys.KEY_UP), Source: w}}, e.Handle(ctx, keys.Release(w)))

	q := keys.At(1, 1)
	assert.Equal(t, []Action{{Kind: ActionPress, Key: q, Source: q}}, e.Handle(ctx, keys.Press(q)))

	plus := keys.At(5, 4)
	assert.Equal(t, []Action{{Kind: ActionMedia, Command: mapping.CommandVolumeUp, Source: plus}}, e.Handle(ctx, keys.Press(plus)))
}

func TestReleaseAll(t *testing.T) {
	e, _, rec := newEngine(t, spreadsheet)
	ctx := context.Background()

	e.Handle(ctx, press(keys.KEY_W))
	e.Handle(ctx, press(keys.KEY_Q))
	e.Handle(ctx, press(keys.KEY_KPPLUS))
	require.Len(t, e.Held(), 3)
	rec.reset()

	released := e.ReleaseAll()
	assert.ElementsMatch(t, []Action{
		releaseOf(keys.KEY_UP, keys.KEY_W),
		releaseOf(keys.KEY_Q, keys.KEY_Q),
	}, released)
	assert.Equal(t, released, rec.actions)
	assert.Empty(t, e.Held())
	assert.Equal(t, uint64(3), e.Stats().ForcedReleases)

	// the physical releases that follow are strays
	assert.Empty(t, e.Handle(ctx, release(keys.KEY_W)))
}

func TestRunReleasesOnCancel(t *testing.T) {
	e, _, rec := newEngine(t, spreadsheet)
	ctx, cancel := context.WithCancel(context.Background())

	events := make(chan keys.Event, 1)
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, events) }()

	events <- press(keys.KEY_S)
	require.Eventually(t, func() bool { return len(e.Held()) == 1 }, time.Second, time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	require.Len(t, rec.actions, 2)
	assert.Equal(t, releaseOf(keys.KEY_DOWN, keys.KEY_S), rec.actions[1])
}

func TestRunStopsOnClosedStream(t *testing.T) {
	e, _, rec := newEngine(t, spreadsheet)
	events := make(chan keys.Event, 2)
	events <- press(keys.KEY_A)
	close(events)

	assert.NoError(t, e.Run(context.Background(), events))
	assert.Equal(t, []Action{pressOf(keys.KEY_LEFT, keys.KEY_A), releaseOf(keys.KEY_LEFT, keys.KEY_A)}, rec.actions)
}

func TestHeldReportsPinnedTargets(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := &recorder{}
	e := New(&stubFocus{snap: spreadsheet}, mapping.DefaultKeycodeTable(), policy.Default(), rec, WithNow(func() time.Time { return now }))

	e.Handle(context.Background(), press(keys.KEY_W))
	held := e.Held()
	require.Len(t, held, 1)
	assert.Equal(t, HeldKey{Key: keys.Key(keys.KEY_W), Target: mapping.EmitKey(keys.Key(keys.KEY_UP)), Since: now}, held[0])
}

// Random well-formed press/release sequences with focus flipping at random
// must always end with every emitted press matched by a release of the same
// key.
func TestNoStuckKeys(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pool := []keys.Code{keys.KEY_W, keys.KEY_A, keys.KEY_S, keys.KEY_D, keys.KEY_Q, keys.KEY_KPMINUS, keys.KEY_KPPLUS, keys.KEY_ENTER}
	snaps := []*focus.Snapshot{nil, editor, spreadsheet}

	for round := 0; round < 200; round++ {
		e, fs, rec := newEngine(t, snaps[rng.Intn(len(snaps))])
		ctx := context.Background()
		down := map[keys.Code]bool{}

		for step := 0; step < 40; step++ {
			fs.snap = snaps[rng.Intn(len(snaps))]
			c := pool[rng.Intn(len(pool))]
			switch {
			case down[c] && rng.Intn(3) == 0:
				e.Handle(ctx, press(c)) // auto-repeat
			case down[c]:
				e.Handle(ctx, release(c))
				delete(down, c)
			default:
				e.Handle(ctx, press(c))
				down[c] = true
			}
		}
		for c := range down {
			e.Handle(ctx, release(c))
		}

		balance := map[keys.Identity]int{}
		for _, a := range rec.actions {
			switch {
			case a.Kind == ActionPress && !a.Repeat:
				balance[a.Key]++
			case a.Kind == ActionRelease:
				balance[a.Key]--
				require.GreaterOrEqual(t, balance[a.Key], 0, "release before press of %s", a.Key)
			}
		}
		for id, n := range balance {
			require.Zero(t, n, "round %d: %s unbalanced", round, id)
		}
		require.Empty(t, e.Held())
	}
}
