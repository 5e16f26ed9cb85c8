package report

import (
	"os"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

// Reporter logs errors and forwards them to Sentry when a DSN is configured.
type Reporter struct {
	logger  zerolog.Logger
	enabled bool
}

// New initialises the Sentry client. An empty DSN yields a reporter that only logs.
func New(dsn, env, version string, logger zerolog.Logger) (*Reporter, error) {
	r := &Reporter{logger: logger}
	if dsn == "" {
		return r, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Release:     version,
	}); err != nil {
		return r, err
	}
	r.enabled = true
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("go_version", runtime.Version())
		scope.SetContext("host_info", map[string]interface{}{
			"hostname": hostname(),
		})
	})
	return r, nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// ReportError logs err and captures it with the given tags.
func (r *Reporter) ReportError(err error, tags map[string]string) {
	if r == nil || err == nil {
		return
	}
	evt := r.logger.Error().Err(err)
	for k, v := range tags {
		evt = evt.Str(k, v)
	}
	evt.Msg("unexpected error")

	if !r.enabled {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Flush waits for buffered events to be sent.
func (r *Reporter) Flush() {
	if r == nil || !r.enabled {
		return
	}
	sentry.Flush(2 * time.Second)
}
