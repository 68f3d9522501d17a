package telegram

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/kodok/internal/router"
)

// toEvent converts an update into a router event. ok is false for updates
// kodok never answers: non-messages, bots, chats outside the allowlist and
// commands addressed to another bot.
func (b *Bot) toEvent(update tgbotapi.Update) (router.Event, bool) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.From.IsBot {
		return router.Event{}, false
	}
	if len(b.allow) > 0 {
		if _, ok := b.allow[msg.Chat.ID]; !ok {
			b.logger.Debug().Int64("chat_id", msg.Chat.ID).Msg("Chat not in allowlist")
			return router.Event{}, false
		}
	}

	text := msg.Text
	entities := msg.Entities
	if text == "" {
		text, entities = msg.Caption, msg.CaptionEntities
	}
	if strings.TrimSpace(text) == "" {
		return router.Event{}, false
	}

	self := b.api.Self
	if msg.IsCommand() {
		if _, target, found := strings.Cut(msg.CommandWithAt(), "@"); found && !strings.EqualFold(target, self.UserName) {
			return router.Event{}, false
		}
	}

	mentioned := isMentioned(text, entities, self)
	if mentioned {
		text = stripMention(text, self.UserName)
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	ev := router.Event{
		Kind:          router.KindMessage,
		ParticipantID: strconv.FormatInt(msg.From.ID, 10),
		ChannelID:     chatID,
		Text:          text,
		Timestamp:     msg.Time(),
		Destination:   chatID,
		Addressed:     msg.Chat.IsPrivate() || mentioned || isReplyToSelf(msg, self),
		DisplayName:   displayName(msg.From),
	}

	b.logger.Debug().
		Int64("chat_id", msg.Chat.ID).
		Int64("user_id", msg.From.ID).
		Bool("addressed", ev.Addressed).
		Msg("Message received")

	return ev, true
}

// isMentioned reports whether entities mention self. Entity offsets are in
// UTF-16 code units.
func isMentioned(text string, entities []tgbotapi.MessageEntity, self tgbotapi.User) bool {
	var units []uint16
	for _, entity := range entities {
		switch entity.Type {
		case "text_mention":
			if entity.User != nil && entity.User.ID == self.ID {
				return true
			}
		case "mention":
			if units == nil {
				units = utf16.Encode([]rune(text))
			}
			end := entity.Offset + entity.Length
			if entity.Offset < 0 || end > len(units) {
				continue
			}
			mention := string(utf16.Decode(units[entity.Offset:end]))
			if strings.EqualFold(mention, "@"+self.UserName) {
				return true
			}
		}
	}
	return false
}

func stripMention(text, username string) string {
	if username == "" {
		return text
	}
	re := regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(username) + `\b`)
	return strings.Join(strings.Fields(re.ReplaceAllString(text, "")), " ")
}

func isReplyToSelf(msg *tgbotapi.Message, self tgbotapi.User) bool {
	reply := msg.ReplyToMessage
	return reply != nil && reply.From != nil && reply.From.ID == self.ID
}

func displayName(user *tgbotapi.User) string {
	if user.UserName != "" {
		return user.UserName
	}
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}

// truncate cuts text to at most limit UTF-16 units.
func truncate(text string, limit int) string {
	units := 0
	for i, r := range text {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > limit {
			return text[:i]
		}
		units += n
	}
	return text
}
