package focus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/prometheus/procfs"
	"github.com/rs/zerolog"
)

// X11 queries the focused window over an X11 connection using the EWMH
// _NET_ACTIVE_WINDOW hint. The connection is opened lazily and reopened
// after a protocol error.
type X11 struct {
	display string
	log     *zerolog.Logger

	mu    sync.Mutex
	conn  *xgb.Conn
	root  xproto.Window
	atoms map[string]xproto.Atom
	proc  *procfs.FS
}

// NewX11 returns a querier for display. An empty display uses $DISPLAY.
func NewX11(display string, logger *zerolog.Logger) *X11 {
	if logger == nil {
		l := defaultLogger
		logger = &l
	}
	x := &X11{display: display, log: logger}
	if fs, err := procfs.NewDefaultFS(); err == nil {
		x.proc = &fs
	} else {
		logger.Debug().Err(err).Msg("procfs unavailable, process names disabled")
	}
	return x
}

// ActiveWindow implements Querier.
func (x *X11) ActiveWindow(ctx context.Context) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.connectLocked(); err != nil {
		return Window{}, err
	}
	w, err := x.queryLocked()
	if err != nil {
		if !errors.Is(err, ErrNoActiveWindow) && !errors.Is(err, ErrMalformedProperty) {
			x.closeLocked()
		}
		return Window{}, err
	}
	return w, nil
}

// Close drops the X connection.
func (x *X11) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closeLocked()
	return nil
}

func (x *X11) connectLocked() error {
	if x.conn != nil {
		return nil
	}
	conn, err := xgb.NewConnDisplay(x.display)
	if err != nil {
		return fmt.Errorf("connect to X display %q: %w", x.display, err)
	}
	setup := xproto.Setup(conn)
	if setup == nil || len(setup.Roots) == 0 {
		conn.Close()
		return fmt.Errorf("X display %q has no screens", x.display)
	}
	x.conn = conn
	x.root = setup.DefaultScreen(conn).Root
	x.atoms = make(map[string]xproto.Atom)
	x.log.Info().Str("display", x.display).Msg("connected to X server")
	return nil
}

func (x *X11) closeLocked() {
	if x.conn != nil {
		x.conn.Close()
		x.conn = nil
	}
}

func (x *X11) atom(name string) (xproto.Atom, error) {
	if a, ok := x.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(x.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("intern atom %s: %w", name, err)
	}
	x.atoms[name] = reply.Atom
	return reply.Atom, nil
}

func (x *X11) property(win xproto.Window, name string, typ xproto.Atom) (*xproto.GetPropertyReply, error) {
	prop, err := x.atom(name)
	if err != nil {
		return nil, err
	}
	return x.propertyAtom(win, prop, name, typ)
}

func (x *X11) propertyAtom(win xproto.Window, prop xproto.Atom, name string, typ xproto.Atom) (*xproto.GetPropertyReply, error) {
	reply, err := xproto.GetProperty(x.conn, false, win, prop, typ, 0, 1024).Reply()
	if err != nil {
		return nil, fmt.Errorf("get property %s: %w", name, err)
	}
	return reply, nil
}

func (x *X11) queryLocked() (Window, error) {
	active, err := x.property(x.root, "_NET_ACTIVE_WINDOW", xproto.AtomWindow)
	if err != nil {
		return Window{}, err
	}
	win, err := decodeWindow(active.Format, active.Value)
	if err != nil {
		return Window{}, err
	}

	title, err := x.title(win)
	if err != nil {
		return Window{}, err
	}

	class, err := x.propertyAtom(win, xproto.AtomWmClass, "WM_CLASS", xproto.AtomString)
	if err != nil {
		return Window{}, err
	}
	wmClass, err := parseWMClass(class.Value)
	if err != nil {
		return Window{}, err
	}

	return Window{Title: title, Class: wmClass, Process: x.process(win)}, nil
}

// title prefers the UTF-8 EWMH name and falls back to the ICCCM WM_NAME.
func (x *X11) title(win xproto.Window) (string, error) {
	utf8String, err := x.atom("UTF8_STRING")
	if err != nil {
		return "", err
	}
	name, err := x.property(win, "_NET_WM_NAME", utf8String)
	if err != nil {
		return "", err
	}
	if len(name.Value) == 0 {
		name, err = x.propertyAtom(win, xproto.AtomWmName, "WM_NAME", xproto.GetPropertyTypeAny)
		if err != nil {
			return "", err
		}
	}
	return decodeText(name.Value)
}

// process resolves _NET_WM_PID to a command name. Failures are not errors:
// many clients do not set the hint.
func (x *X11) process(win xproto.Window) string {
	if x.proc == nil {
		return ""
	}
	reply, err := x.property(win, "_NET_WM_PID", xproto.AtomCardinal)
	if err != nil || reply.Format != 32 || len(reply.Value) < 4 {
		return ""
	}
	pid := int(xgb.Get32(reply.Value))
	p, err := x.proc.Proc(pid)
	if err != nil {
		return ""
	}
	comm, err := p.Comm()
	if err != nil {
		return ""
	}
	return comm
}

func decodeWindow(format byte, value []byte) (xproto.Window, error) {
	if format != 32 || len(value) != 4 {
		return 0, fmt.Errorf("%w: _NET_ACTIVE_WINDOW format %d length %d", ErrMalformedProperty, format, len(value))
	}
	win := xproto.Window(xgb.Get32(value))
	if win == 0 {
		return 0, ErrNoActiveWindow
	}
	return win, nil
}

// parseWMClass joins the NUL-separated instance and class names with a space.
func parseWMClass(value []byte) (string, error) {
	parts := strings.Split(string(value), "\x00")
	names := parts[:0]
	for _, p := range parts {
		if p != "" {
			names = append(names, p)
		}
	}
	return decodeText([]byte(strings.Join(names, " ")))
}

func decodeText(value []byte) (string, error) {
	if !utf8.Valid(value) {
		return "", fmt.Errorf("%w: invalid UTF-8", ErrMalformedProperty)
	}
	return strings.TrimRight(string(value), "\x00"), nil
}
