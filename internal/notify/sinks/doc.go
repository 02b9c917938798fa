// Package sinks implements notification consumers: structured logs, the
// terminal, Prometheus and Google Cloud Pub/Sub. Each sink satisfies
// notify.Sink and tolerates repeated Consume/Close calls.
package sinks
