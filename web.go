package remapd

import (
	"context"
	"errors"
	"net/http"
	"time"

	ginlogger "github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jetkvm/remapd/internal/dispatch"
	"github.com/jetkvm/remapd/internal/focus"
	"github.com/jetkvm/remapd/internal/policy"
	"github.com/jetkvm/remapd/internal/remap"
)

type HeldKeyStatus struct {
	Key    string    `json:"key"`
	Target string    `json:"target"`
	Since  time.Time `json:"since"`
}

type Status struct {
	Version     string          `json:"version"`
	Input       string          `json:"input"`
	Focus       *focus.Snapshot `json:"focus"`
	Suppressed  bool            `json:"suppressed"`
	Reason      string          `json:"reason,omitempty"`
	Held        []HeldKeyStatus `json:"held"`
	Mapping     []string        `json:"mapping"`
	Engine      remap.Stats     `json:"engine"`
	Dispatch    dispatch.Stats  `json:"dispatch"`
	LastReload  time.Time       `json:"last_reload,omitempty"`
	ReloadError string          `json:"reload_error,omitempty"`
}

// status collects the current daemon state. It reads the cached focus
// snapshot only and never queries the window system.
func (d *daemon) status() Status {
	snap := d.cache.Peek()
	st := Status{
		Version:  d.version,
		Input:    d.input,
		Focus:    snap,
		Held:     []HeldKeyStatus{},
		Mapping:  mappingSummary(d.engine.Table()),
		Engine:   d.engine.Stats(),
		Dispatch: d.dispatcher.Stats(),
	}
	switch s := d.engine.Suppressor().(type) {
	case *policy.Policy:
		st.Reason, st.Suppressed = s.Match(snap)
	case nil:
	default:
		st.Suppressed = s.Suppressed(snap)
	}
	for _, h := range d.engine.Held() {
		st.Held = append(st.Held, HeldKeyStatus{Key: h.Key.String(), Target: h.Target.String(), Since: h.Since})
	}
	st.LastReload, st.ReloadError = d.reloadState()
	return st
}

func (d *daemon) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	gin.DisableConsoleColor()
	r := gin.New()

	logger := webLogger.With().Logger()
	r.Use(ginlogger.SetLogger(
		ginlogger.WithLogger(func(*gin.Context, zerolog.Logger) zerolog.Logger { return logger }),
		ginlogger.WithSkipPath([]string{"/healthz", "/metrics"}),
	), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, d.status())
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// serveHTTP runs the status API until ctx is canceled.
func (d *daemon) serveHTTP(ctx context.Context, listen string) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           d.setupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		webLogger.Info().Str("listen", listen).Msg("starting status API")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
