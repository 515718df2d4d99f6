// Package notifications pushes job lifecycle events to an ntfy topic when one
// is configured. Without a topic every call is a no-op.
package notifications
