package remapd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// reload re-reads the config file and swaps the mapping table and policy
// into the engine. An invalid file is logged and the running state kept.
func (d *daemon) reload() error {
	cfg, err := LoadConfig(d.configPath)
	if err == nil {
		err = d.apply(cfg)
	}
	d.mu.Lock()
	d.lastReload = time.Now()
	d.reloadErr = err
	d.mu.Unlock()
	if err != nil {
		configLogger.Error().Err(err).Str("path", d.configPath).Msg("config reload rejected, keeping current mapping")
		return err
	}
	configLogger.Info().Str("path", d.configPath).Int("mappings", d.engine.Table().Len()).Msg("config reloaded")
	return nil
}

// apply swaps in the table and policy built from cfg. Keys held across the
// swap keep the target pinned at their press.
func (d *daemon) apply(cfg *Config) error {
	table, err := cfg.Table(d.source)
	if err != nil {
		return err
	}
	pol, err := cfg.SuppressionPolicy()
	if err != nil {
		return err
	}
	if err := SetLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	d.engine.SetTable(table)
	d.engine.SetSuppressor(pol)
	return nil
}

func (d *daemon) reloadState() (time.Time, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reloadErr != nil {
		return d.lastReload, d.reloadErr.Error()
	}
	return d.lastReload, ""
}

// watchConfig reloads the config whenever its file changes, until ctx is
// canceled. The directory is watched so editors that replace the file by
// rename are picked up.
func (d *daemon) watchConfig(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	path, err := filepath.Abs(d.configPath)
	if err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	configLogger.Info().Str("path", path).Msg("watching config for changes")

	go func() {
		defer w.Close()
		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != path {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					debounce = time.After(reloadDebounce)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				configLogger.Warn().Err(err).Msg("config watcher error")
			case <-debounce:
				debounce = nil
				_ = d.reload()
			}
		}
	}()
	return nil
}
