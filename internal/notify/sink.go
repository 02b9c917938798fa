package notify

import "context"

// Sink consumes batches of notifications. Implementations must honor ctx
// deadlines and tolerate repeated calls.
type Sink interface {
	Consume(ctx context.Context, batch []Notification) error
	Close(ctx context.Context) error
}

// Emitter publishes individual notifications. Hub satisfies it, so the tracker
// does not care how notifications are buffered or delivered.
type Emitter interface {
	Emit(n Notification)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Notification)

// Emit calls f(n).
func (f EmitterFunc) Emit(n Notification) { f(n) }
