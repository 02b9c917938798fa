// Package notify carries user-facing analysis notifications ("started",
// "completed", "failed") from the background tracker to pluggable sinks. Emit
// never blocks the tracker; a background goroutine batches notifications and
// fans them out to the console, logs, metrics or Pub/Sub.
package notify
