// Package session keeps short-lived conversation history in memory.
//
// Invariants:
// - A history never holds more than its configured number of turns.
// - A conversation with no turns is not present in the store.
// - Mutations for the same key are serialized through a per-key lock; different keys never block each other.
// - Last activity never moves backwards while a conversation exists.
//
// Usage:
//
//	store := session.NewStore(session.Options{})
//	key := session.Key{ParticipantID: "42", ChannelID: "chat-1"}
//	_ = store.WithSession(ctx, key, func(s *session.Session) error {
//		s.Append(session.RoleUser, "hello")
//		return nil
//	})
package session
