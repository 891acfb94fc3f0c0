package observability

import (
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

type SentryOptions struct {
	DSN         string
	Environment string
	Release     string
}

// sensitiveHeaders never leave the process; bearer tokens and cookies are
// replayable credentials.
var sensitiveHeaders = []string{"Authorization", "Cookie", "Set-Cookie", "X-Api-Key"}

const redacted = "[redacted]"

// InitSentry is a no-op without a DSN.
func InitSentry(options SentryOptions) error {
	if options.DSN == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              options.DSN,
		Environment:      options.Environment,
		Release:          options.Release,
		AttachStacktrace: true,
		BeforeSend:       scrubEvent,
	})
}

// scrubEvent strips credentials and request bodies, which carry passwords on
// the auth routes, from events before they are sent.
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event == nil || event.Request == nil {
		return event
	}

	for name := range event.Request.Headers {
		for _, sensitive := range sensitiveHeaders {
			if strings.EqualFold(name, sensitive) {
				event.Request.Headers[name] = redacted
			}
		}
	}
	if event.Request.Cookies != "" {
		event.Request.Cookies = redacted
	}
	if event.Request.Data != "" {
		event.Request.Data = redacted
	}
	return event
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
