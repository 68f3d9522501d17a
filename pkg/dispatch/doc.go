// Package dispatch serializes outbound message delivery.
//
// Invariants:
// - At most one delivery is in flight at any time.
// - After a successful send the worker waits the cooldown before the next one.
// - A throttled item is retried after the requested delay from the tail of the queue.
// - Any other delivery failure drops the item and never stops the worker.
//
// Usage:
//
//	q := dispatch.New(sender, dispatch.Config{})
//	_ = q.Start(ctx)
//	q.Enqueue("chat-1", "hello")
//	defer q.Stop()
package dispatch
