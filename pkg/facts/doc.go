// Package facts persists the small pieces of shared state the bot remembers
// across restarts: named coordinates and the question-of-the-day queue.
package facts
