package router

import (
	"strings"
	"time"

	"github.com/harun/kodok/pkg/session"
)

type EventKind string

const (
	// KindMessage is ordinary chat text.
	KindMessage EventKind = "message"
	// KindEnd asks to end the sender's conversation.
	KindEnd EventKind = "end"
)

// Event is one inbound chat message, already stripped of platform framing.
type Event struct {
	Kind          EventKind
	ParticipantID string
	ChannelID     string
	Text          string
	Timestamp     time.Time
	// Destination is where replies for this event are delivered.
	Destination string
	// Addressed is true when the message was directed at the bot.
	Addressed   bool
	DisplayName string
}

func (e Event) Key() session.Key {
	return session.Key{ParticipantID: e.ParticipantID, ChannelID: e.ChannelID}
}

type Route string

const (
	RouteIgnored      Route = "ignored"
	RouteCommand      Route = "command"
	RouteEnd          Route = "end"
	RouteCanned       Route = "canned"
	RouteConversation Route = "conversation"
)

// parseCommand splits "!name args" or "/name@bot args". ok is false when text
// is not a command.
func parseCommand(text string) (name, args string, ok bool) {
	if len(text) < 2 || (text[0] != '!' && text[0] != '/') {
		return "", "", false
	}
	body := text[1:]
	name, args, _ = strings.Cut(body, " ")
	name, _, _ = strings.Cut(name, "@")
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(args), true
}
