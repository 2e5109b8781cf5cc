// Package sentry provides data scrubbing utilities for Sentry events
// to ensure sensitive information is not transmitted to the error tracking service.
package sentry

import (
	"net/url"

	"github.com/getsentry/sentry-go"
)

const filtered = "[Filtered]"

// sensitiveHeaders are HTTP headers that should be redacted from Sentry events.
var sensitiveHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"Set-Cookie":    true,
}

// sensitiveKeys are field names that may contain sensitive data in tags,
// breadcrumb metadata, or query strings. The websocket endpoint accepts its
// session token as ?token=.
var sensitiveKeys = map[string]bool{
	"password":      true,
	"passwordHash":  true,
	"passwordSalt":  true,
	"token":         true,
	"secret":        true,
	"jwt":           true,
	"session":       true,
	"credential":    true,
	"authorization": true,
	"cookie":        true,
}

// ScrubEvent removes sensitive data from a Sentry event before it is sent.
// It redacts sensitive headers, cookies, and query parameters, strips request
// bodies, and scrubs tags and breadcrumbs.
func ScrubEvent(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if event.Request != nil {
		for header := range event.Request.Headers {
			if sensitiveHeaders[header] {
				event.Request.Headers[header] = filtered
			}
		}
		if event.Request.Cookies != "" {
			event.Request.Cookies = filtered
		}
		event.Request.QueryString = scrubQuery(event.Request.QueryString)
		// Login bodies carry passwords.
		event.Request.Data = ""
	}

	for key := range event.Tags {
		if sensitiveKeys[key] {
			event.Tags[key] = filtered
		}
	}

	for i := range event.Breadcrumbs {
		for key := range event.Breadcrumbs[i].Data {
			if sensitiveKeys[key] {
				event.Breadcrumbs[i].Data[key] = filtered
			}
		}
	}

	return event
}

// scrubQuery redacts sensitive parameters. An unparsable query is dropped.
func scrubQuery(raw string) string {
	if raw == "" {
		return raw
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}
	for key := range values {
		if sensitiveKeys[key] {
			values[key] = []string{filtered}
		}
	}
	return values.Encode()
}

// ScrubTransaction applies the same scrubbing logic to transaction events.
func ScrubTransaction(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	return ScrubEvent(event, hint)
}
