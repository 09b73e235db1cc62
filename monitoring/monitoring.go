// Package monitoring captures non-fatal per-prison failures for operators.
package monitoring

import (
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/prisonops/lifecycle/am"
	"github.com/prisonops/lifecycle/errors"
	"github.com/prisonops/lifecycle/version"
)

// Monitor receives failures that were handled but should be seen.
type Monitor interface {
	Capture(message string, err error)
}

// LogMonitor writes captured failures to the log.
type LogMonitor struct {
	Log *zap.SugaredLogger
}

// Capture logs message with the error and its details
func (m LogMonitor) Capture(message string, err error) {
	m.Log.Errorw(message, "error", err, "details", errors.GetAllDetails(err))
}

// Multi captures to every monitor in order
type Multi []Monitor

// Capture forwards to each monitor
func (m Multi) Capture(message string, err error) {
	for _, monitor := range m {
		monitor.Capture(message, err)
	}
}

// SentryMonitor reports captured failures to Sentry
type SentryMonitor struct {
	hub *sentry.Hub
}

// NewSentryMonitor creates a monitor with its own Sentry client
func NewSentryMonitor(cfg am.MonitoringConfig, transport sentry.Transport) (*SentryMonitor, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
		SampleRate:  cfg.SampleRate,
		Release:     version.Get().Release(),
		Transport:   transport,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create sentry client")
	}
	return &SentryMonitor{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Capture sends the error as a Sentry event titled with message
func (m *SentryMonitor) Capture(message string, err error) {
	if err == nil {
		err = errors.New(message)
	}
	event, extra := errors.BuildSentryReport(err)
	event.Message = message

	m.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("monitor", message)
		if len(extra) > 0 {
			scope.SetContext("error details", extra)
		}
		m.hub.CaptureEvent(event)
	})
}

// Flush waits for buffered events to be sent
func (m *SentryMonitor) Flush(timeout time.Duration) bool {
	return m.hub.Flush(timeout)
}

// New builds the configured monitor: always the log, plus Sentry when a DSN is set.
// The returned flush func must be called before exit.
func New(cfg am.MonitoringConfig, log *zap.SugaredLogger) (Monitor, func(), error) {
	logMonitor := LogMonitor{Log: log.Named("monitor")}
	if cfg.SentryDSN == "" {
		return logMonitor, func() {}, nil
	}

	sentryMonitor, err := NewSentryMonitor(cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	flush := func() { sentryMonitor.Flush(2 * time.Second) }
	return Multi{logMonitor, sentryMonitor}, flush, nil
}
