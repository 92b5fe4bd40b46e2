// Package audit defines the structured event model and the asynchronous
// dispatcher that forwards events from the Engine to an external sink.
//
// Delivery is fire-and-forget: a primary authentication operation never
// blocks on, and never fails because of, an unavailable observability
// collaborator. Overflow is accounted via [Dispatcher.Dropped].
//
// # What this package must NOT do
//
//   - Make authentication decisions or mutate engine state.
//   - Perform blocking I/O on the caller's goroutine.
//   - Be imported outside the authcore module.
package audit
