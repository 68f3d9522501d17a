// Package reply turns a conversation history into a generated reply.
//
// Invariants:
// - A Generate call makes at most MaxAttempts completion calls.
// - Between attempts i and i+1 it waits BaseDelay * 2^i; it never waits after the last attempt.
// - Failures classified as permanent stop the loop immediately.
//
// Usage:
//
//	completer, _ := reply.NewCompleter("anthropic", apiKey, "")
//	gen := reply.NewGenerator(completer, reply.Config{Model: "claude-3-5-haiku-latest"})
//	text, err := gen.Generate(ctx, turns)
package reply
