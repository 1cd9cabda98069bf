// Package audit buffers security events and hands them to sinks.
//
// The engine decides what to emit; this package only moves events from the
// request path to a [Sink] on a background goroutine. A [Dispatcher] either
// blocks or drops when its buffer is full, per [Config.DropIfFull].
//
// Sinks shipped here write to a channel, to an io.Writer as JSON lines, or
// to a *slog.Logger. Hosts implement [Sink] for anything else.
package audit
