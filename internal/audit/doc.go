// Package audit relays session lifecycle events to a caller-supplied sink on
// a dedicated goroutine so the controller never waits on slow sinks.
//
// # Components
//
//   - [Event]: timestamp, type, user, origin tab, outcome and metadata.
//   - [Sink]: consumer; [ChannelSink], [JSONWriterSink], [SinkFunc], [NoOpSink].
//   - [Dispatcher]: bounded queue plus relay. A full queue either drops (counted)
//     or blocks the emitter until its context ends. Close drains the queue.
//
// A panicking sink loses the event it was handed; the relay keeps running.
//
// This package does not decide which events exist; the controller does.
package audit
