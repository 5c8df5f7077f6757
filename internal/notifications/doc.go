// Package notifications delivers run lifecycle events via pluggable notifiers.
//
// Two transports are available: ntfy (plain HTTP POST of a short human
// message) and NATS (JSON event published on a subject for other services to
// consume). Both can be enabled at once. With neither configured the service
// degrades to a no-op, so callers never need to check whether notifications
// are on.
package notifications
