package remapd

import (
	"time"

	"github.com/go-co-op/gocron/v2"
)

// startCron schedules the stats heartbeat. A zero interval disables it and
// returns a nil scheduler.
func (d *daemon) startCron(interval time.Duration) (gocron.Scheduler, error) {
	if interval <= 0 {
		return nil, nil
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(d.logStats),
		gocron.WithName("stats"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, err
	}
	s.Start()
	cronLogger.Info().Dur("interval", interval).Msg("stats heartbeat scheduled")
	return s, nil
}

func (d *daemon) logStats() {
	st := d.status()
	cronLogger.Info().
		Uint64("events", st.Engine.Events).
		Uint64("remapped", st.Engine.Remapped).
		Uint64("suppressed", st.Engine.Suppressed).
		Uint64("media", st.Engine.MediaCommands).
		Int("held", st.Engine.Held).
		Uint64("injected", st.Dispatch.Injected).
		Uint64("inject_errors", st.Dispatch.InjectErrors).
		Uint64("media_dropped", st.Dispatch.MediaDropped).
		Bool("focus_known", st.Focus != nil).
		Msg("stats")
}
