package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/kodok/internal/config"
	"github.com/harun/kodok/internal/logger"
	"github.com/harun/kodok/internal/router"
	"github.com/harun/kodok/pkg/dispatch"
	"github.com/rs/zerolog"
)

// MaxMessageLength is the Bot API limit for a text message, in UTF-16 units.
const MaxMessageLength = 4096

// EventHandler consumes inbound events.
type EventHandler interface {
	Handle(ctx context.Context, ev router.Event) (router.Route, error)
}

// Bot is the Telegram side of kodok. It turns updates into router events and
// implements dispatch.Sender for outbound replies.
type Bot struct {
	api    *tgbotapi.BotAPI
	config *config.TelegramConfig
	logger zerolog.Logger
	allow  map[int64]struct{}

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	loopDone chan struct{}
	handlers sync.WaitGroup
	stopOnce sync.Once
}

// New authenticates against the Bot API (getMe) and returns a stopped bot.
func New(cfg *config.TelegramConfig, log *logger.Logger) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram config is required")
	}
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	component := log.GetZerolog().With().Str("component", "telegram").Logger()
	_ = tgbotapi.SetLogger(botLogger{logger: component})

	client := &http.Client{Timeout: clientTimeout(cfg)}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	allow := make(map[int64]struct{}, len(cfg.Allowlist))
	for _, id := range cfg.Allowlist {
		allow[id] = struct{}{}
	}

	bot := &Bot{
		api:    api,
		config: cfg,
		logger: component,
		allow:  allow,
	}

	bot.logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authenticated")

	return bot, nil
}

// clientTimeout must outlast a long poll.
func clientTimeout(cfg *config.TelegramConfig) time.Duration {
	poll := time.Duration(cfg.PollTimeout) * time.Second
	send := time.Duration(cfg.SendTimeout) * time.Second
	if send <= 0 {
		send = 30 * time.Second
	}
	if poll+10*time.Second > send {
		return poll + 10*time.Second
	}
	return send
}

// Start begins long polling. Every accepted message is handed to handler on
// its own goroutine; the handler serializes per conversation.
func (b *Bot) Start(ctx context.Context, handler EventHandler) error {
	if handler == nil {
		return fmt.Errorf("event handler is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return fmt.Errorf("bot is already running")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.config.PollTimeout
	u.AllowedUpdates = []string{"message"}
	updates := b.api.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.loopDone = make(chan struct{})
	b.running = true

	go b.processUpdates(ctx, updates, handler, b.loopDone)

	b.logger.Info().Int("poll_timeout", u.Timeout).Msg("Telegram bot started")
	return nil
}

// Stop ends polling, cancels in-flight handlers and waits for them.
func (b *Bot) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot is not running")
	}
	b.running = false
	cancel, done := b.cancel, b.loopDone
	b.mu.Unlock()

	b.logger.Info().Msg("Stopping Telegram bot")

	b.stopOnce.Do(b.api.StopReceivingUpdates)
	cancel()
	<-done

	finished := make(chan struct{})
	go func() {
		b.handlers.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(10 * time.Second):
		b.logger.Warn().Msg("Timeout waiting for event handlers")
	}

	b.logger.Info().Msg("Telegram bot stopped")
	return nil
}

func (b *Bot) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Bot) processUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel, handler EventHandler, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			ev, ok := b.toEvent(update)
			if !ok {
				continue
			}
			b.handlers.Add(1)
			go b.handle(ctx, handler, update.UpdateID, ev)
		}
	}
}

func (b *Bot) handle(ctx context.Context, handler EventHandler, updateID int, ev router.Event) {
	defer b.handlers.Done()

	// No per-update deadline: lock waits and the retry policy run to
	// completion and only Stop cancels them.
	route, err := handler.Handle(ctx, ev)
	if err != nil {
		b.logger.Error().
			Err(err).
			Int("update_id", updateID).
			Str("route", string(route)).
			Msg("Failed to handle update")
		return
	}

	b.logger.Debug().
		Int("update_id", updateID).
		Str("route", string(route)).
		Msg("Update handled")
}

// Send delivers text to the chat named by destination. A flood-control
// response becomes a *dispatch.RateLimitedError.
func (b *Bot) Send(ctx context.Context, destination, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	chatID, err := strconv.ParseInt(destination, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", destination, err)
	}

	msg := tgbotapi.NewMessage(chatID, truncate(text, MaxMessageLength))
	if _, err := b.api.Send(msg); err != nil {
		return classifySendError(err)
	}

	b.logger.Debug().Int64("chat_id", chatID).Msg("Message sent")
	return nil
}

var _ dispatch.Sender = (*Bot)(nil)

func classifySendError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.RetryAfter > 0 {
			return &dispatch.RateLimitedError{
				RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second,
				Err:        err,
			}
		}
		if apiErr.MigrateToChatID != 0 {
			return fmt.Errorf("chat migrated to %d: %w", apiErr.MigrateToChatID, err)
		}
	}
	return fmt.Errorf("failed to send message: %w", err)
}

// RegisterCommands publishes the command menu shown by Telegram clients.
func (b *Bot) RegisterCommands() error {
	cfg := tgbotapi.NewSetMyCommands(Commands...)
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("failed to set commands: %w", err)
	}

	b.logger.Info().Int("count", len(Commands)).Msg("Bot commands updated")
	return nil
}

// Username returns the authenticated bot's username.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// botLogger routes the Bot API library's own log lines through zerolog.
type botLogger struct {
	logger zerolog.Logger
}

func (l botLogger) Println(v ...interface{}) {
	l.logger.Warn().Msg(fmt.Sprint(v...))
}

func (l botLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug().Msg(fmt.Sprintf(format, v...))
}
