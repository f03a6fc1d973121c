// Package wsconn keeps a single logical WebSocket connection to one endpoint.
//
// A Manager owns at most one transport at a time. When the transport closes
// without the consumer asking for it, the Manager waits with exponential
// backoff and jitter and dials again, up to a fixed number of attempts. After
// the last attempt fails it emits one terminal notification and stops.
//
// Consumers register one handler per event category (message, open, error,
// close). Handlers are called one at a time and never for a transport that
// has been replaced or closed by the consumer.
package wsconn
