// Package mediactl runs the system commands that back media actions.
package mediactl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jetkvm/remapd/internal/mapping"
)

var ErrNoCommand = errors.New("no command configured")

var defaultLogger = zerolog.New(os.Stdout).With().Str("subsystem", "media").Logger()

// Commands maps each media command to the argv that performs it.
type Commands map[mapping.Command][]string

// DefaultCommands drives the PulseAudio master channel through amixer and
// the active player through playerctl.
func DefaultCommands() Commands {
	return Commands{
		mapping.CommandVolumeUp:   {"amixer", "-q", "-D", "pulse", "sset", "Master", "5%+"},
		mapping.CommandVolumeDown: {"amixer", "-q", "-D", "pulse", "sset", "Master", "5%-"},
		mapping.CommandToggleMute: {"amixer", "-q", "-D", "pulse", "sset", "Master", "toggle"},
		mapping.CommandPlayPause:  {"playerctl", "play-pause"},
	}
}

// Validate reports commands bound to an empty argv or an unknown command.
func (c Commands) Validate() error {
	var errs []error
	for cmd, argv := range c {
		if cmd == mapping.CommandNone {
			errs = append(errs, fmt.Errorf("media: invalid command"))
			continue
		}
		if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
			errs = append(errs, fmt.Errorf("media: %s: empty argv", cmd))
		}
	}
	return errors.Join(errs...)
}

// Merge returns c with every command missing from it taken from base.
func (c Commands) Merge(base Commands) Commands {
	out := make(Commands, len(base)+len(c))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Exec runs media commands as subprocesses.
type Exec struct {
	commands Commands
	timeout  time.Duration
	log      *zerolog.Logger
}

// NewExec returns a runner for commands. A zero timeout leaves each run
// bounded only by the caller's context.
func NewExec(commands Commands, timeout time.Duration, logger *zerolog.Logger) *Exec {
	if logger == nil {
		l := defaultLogger
		logger = &l
	}
	return &Exec{commands: commands, timeout: timeout, log: logger}
}

// Run executes the argv bound to cmd and waits for it to exit. Anything
// the command writes to stderr is logged.
func (e *Exec) Run(ctx context.Context, cmd mapping.Command) error {
	argv, ok := e.commands[cmd]
	if !ok || len(argv) == 0 {
		return fmt.Errorf("%s: %w", cmd, ErrNoCommand)
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stderr, err := c.StderrPipe()
	if err != nil {
		return fmt.Errorf("%s: stderr pipe: %w", cmd, err)
	}
	if err := c.Start(); err != nil {
		return fmt.Errorf("%s: start %s: %w", cmd, argv[0], err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			e.log.Warn().Str("command", cmd.String()).Str("program", argv[0]).Msg(sc.Text())
		}
	}()
	wg.Wait()

	if err := c.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", cmd, ctx.Err())
		}
		return fmt.Errorf("%s: %s: %w", cmd, argv[0], err)
	}
	return nil
}
