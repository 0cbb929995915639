// Package telemetry reports soft failures (mirror, push, stream) to Sentry
// when a DSN is configured. Without a DSN every call is a no-op.
package telemetry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
)

// Init configures the global Sentry hub. The returned flush func should be
// deferred by main.
func Init(dsn, env, release string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      env,
		Release:          release,
		AttachStacktrace: true,
	})
	if err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// Enabled reports whether a Sentry client is bound to the current hub.
func Enabled() bool {
	return sentry.CurrentHub().Client() != nil
}

// SoftFailure records an error that was logged and swallowed.
// component names the boundary (mirror, push, stream, broadcast).
func SoftFailure(ctx context.Context, component string, err error, tags map[string]string) {
	if err == nil || !Enabled() {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetTag("component", component)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		hub.CaptureException(err)
	})
}
