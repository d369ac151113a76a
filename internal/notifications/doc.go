// Package notifications delivers asset completion events to subscribers.
//
// A Notifier is built once at startup with a fixed subscriber list. Publish
// hands the event to every subscriber in order; one subscriber failing never
// keeps the others from receiving it. The orchestrator is the only publisher:
// it fires exactly one event per applied terminal transition, and replays
// events whose delivery was interrupted by a crash.
//
// Subscribers ship for the log, ntfy topics, NATS subjects and Kafka topics.
package notifications
