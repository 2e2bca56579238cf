package remapd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jetkvm/remapd/internal/dispatch"
	"github.com/jetkvm/remapd/internal/focus"
	"github.com/jetkvm/remapd/internal/keys"
	"github.com/jetkvm/remapd/internal/mediactl"
	"github.com/jetkvm/remapd/internal/remap"
	"github.com/jetkvm/remapd/internal/uinput"
	"github.com/jetkvm/remapd/internal/utils"
)

const shutdownTimeout = 3 * time.Second

// daemon holds the running components.
type daemon struct {
	version    string
	configPath string
	source     string
	input      string

	cache      *focus.Cache
	engine     *remap.Engine
	dispatcher *dispatch.Dispatcher

	mu         sync.Mutex
	lastReload time.Time
	reloadErr  error
}

// Options configure Main.
type Options struct {
	// ConfigPath is the config file; empty means DefaultConfigPath.
	ConfigPath string
	Version    string
}

// Main runs the remapper until ctx is canceled.
func Main(ctx context.Context, opts Options) error {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	if err := SetLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	utils.SetProcTitle("starting")
	initPrometheus(opts.Version)

	rootLogger.Info().Str("version", opts.Version).Str("source", cfg.Input.Source).Msg("starting remapd")

	src, err := openInput(ctx, cfg.Input)
	if err != nil {
		return err
	}
	defer src.Close()

	table, err := cfg.Table(src.Kind())
	if err != nil {
		return err
	}
	pol, err := cfg.SuppressionPolicy()
	if err != nil {
		return err
	}

	kb, err := uinput.NewKeyboard(uinput.DefaultName, keys.AllCodes(), uinputLogger)
	if err != nil {
		return err
	}
	defer kb.Close()

	var runner dispatch.MediaRunner
	if cfg.Media.Backend == MediaExec {
		runner = mediactl.NewExec(cfg.MediaCommands(), cfg.Media.Timeout, mediaLogger)
	}
	disp := dispatch.New(kb, keys.DefaultLayout(), runner, dispatch.Options{
		QueueSize:   cfg.Media.QueueSize,
		Timeout:     cfg.Media.Timeout,
		SettleDelay: cfg.Media.SettleDelay,
		Logger:      dispatchLogger,
	})
	disp.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := disp.Close(shutdownCtx); err != nil {
			dispatchLogger.Warn().Err(err).Msg("media queue not drained")
		}
	}()

	x := focus.NewX11(cfg.Focus.Display, focusLogger)
	defer x.Close()
	cache := focus.NewCache(x, cfg.Focus.RefreshInterval, focus.WithLogger(focusLogger))

	d := &daemon{
		version:    opts.Version,
		configPath: opts.ConfigPath,
		source:     src.Kind(),
		input:      src.Name(),
		cache:      cache,
		engine:     remap.New(cache, table, pol, disp, remap.WithLogger(engineLogger)),
		dispatcher: disp,
	}
	if d.configPath == "" {
		d.configPath = DefaultConfigPath
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.watchConfig(ctx); err != nil {
		configLogger.Warn().Err(err).Msg("config hot reload disabled")
	}

	if cfg.HTTP.Listen != "" {
		go func() {
			if err := d.serveHTTP(ctx, cfg.HTTP.Listen); err != nil {
				webLogger.Error().Err(err).Msg("status API stopped")
			}
		}()
	}

	sched, err := d.startCron(cfg.Cron.StatsInterval)
	if err != nil {
		cronLogger.Warn().Err(err).Msg("stats heartbeat disabled")
	}
	if sched != nil {
		defer func() { _ = sched.Shutdown() }()
	}

	utils.SetProcTitle("running " + src.Name())
	engineLogger.Info().Str("input", src.Name()).Int("mappings", table.Len()).Msg("remap engine running")

	err = d.engine.Run(ctx, src.Events(ctx))
	utils.SetProcTitle("stopping")
	if errors.Is(err, context.Canceled) {
		rootLogger.Info().Msg("shutting down")
		return nil
	}
	if err == nil {
		return fmt.Errorf("input %s closed", src.Name())
	}
	return err
}

// QueryFocus asks the window system once for the focused window and returns
// it with the suppression verdict under cfg.
func QueryFocus(ctx context.Context, cfg *Config) (*focus.Snapshot, string, bool, error) {
	x := focus.NewX11(cfg.Focus.Display, focusLogger)
	defer x.Close()
	w, err := x.ActiveWindow(ctx)
	if err != nil {
		return nil, "", false, err
	}
	pol, err := cfg.SuppressionPolicy()
	if err != nil {
		return nil, "", false, err
	}
	snap := &focus.Snapshot{Title: w.Title, Class: w.Class, Process: w.Process, CapturedAt: time.Now()}
	reason, suppressed := pol.Match(snap)
	return snap, reason, suppressed, nil
}

// MappingSummary renders the table for source, one entry per line.
func MappingSummary(cfg *Config, source string) ([]string, error) {
	t, err := cfg.Table(source)
	if err != nil {
		return nil, err
	}
	return mappingSummary(t), nil
}
