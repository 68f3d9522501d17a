package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/kodok/internal/config"
	"github.com/harun/kodok/internal/logger"
	"github.com/harun/kodok/internal/router"
	"github.com/harun/kodok/pkg/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123:test-token"

// fakeBotAPI serves the handful of Bot API methods kodok calls.
type fakeBotAPI struct {
	mu       sync.Mutex
	requests map[string][]url.Values
	updates  []tgbotapi.Update
	sendErr  func(n int) string
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := "/bot" + testToken + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	method := strings.TrimPrefix(r.URL.Path, prefix)
	_ = r.ParseForm()

	f.mu.Lock()
	if f.requests == nil {
		f.requests = make(map[string][]url.Values)
	}
	f.requests[method] = append(f.requests[method], r.PostForm)
	n := len(f.requests[method])
	var pending []tgbotapi.Update
	if method == "getUpdates" {
		pending, f.updates = f.updates, nil
	}
	sendErr := f.sendErr
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":999,"is_bot":true,"first_name":"Kodok","username":"kodokbot"}}`)
	case "getUpdates":
		if len(pending) == 0 {
			time.Sleep(20 * time.Millisecond)
		}
		data, _ := json.Marshal(pending)
		fmt.Fprintf(w, `{"ok":true,"result":%s}`, data)
	case "sendMessage":
		if sendErr != nil {
			if body := sendErr(n); body != "" {
				fmt.Fprint(w, body)
				return
			}
		}
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`)
	case "setMyCommands":
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	default:
		fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
	}
}

func (f *fakeBotAPI) calls(method string) []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.requests[method]...)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	return log
}

func newTestBot(t *testing.T, api *fakeBotAPI, mutate func(*config.TelegramConfig)) *Bot {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg := &config.TelegramConfig{
		BotToken:    testToken,
		APIEndpoint: srv.URL + "/bot%s/%s",
		PollTimeout: 0,
		SendTimeout: 5,
	}
	if mutate != nil {
		mutate(cfg)
	}

	bot, err := New(cfg, testLogger(t))
	require.NoError(t, err)
	return bot
}

func TestNew(t *testing.T) {
	log := testLogger(t)

	t.Run("authenticates", func(t *testing.T) {
		bot := newTestBot(t, &fakeBotAPI{}, nil)
		assert.Equal(t, "kodokbot", bot.Username())
		assert.False(t, bot.IsRunning())
	})

	t.Run("nil config", func(t *testing.T) {
		bot, err := New(nil, log)
		assert.Error(t, err)
		assert.Nil(t, bot)
		assert.Contains(t, err.Error(), "config is required")
	})

	t.Run("empty bot token", func(t *testing.T) {
		bot, err := New(&config.TelegramConfig{}, log)
		assert.Error(t, err)
		assert.Nil(t, bot)
		assert.Contains(t, err.Error(), "bot token is required")
	})

	t.Run("rejected token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
		}))
		defer srv.Close()

		bot, err := New(&config.TelegramConfig{
			BotToken:    testToken,
			APIEndpoint: srv.URL + "/bot%s/%s",
		}, log)
		assert.Error(t, err)
		assert.Nil(t, bot)
	})
}

func TestSend(t *testing.T) {
	t.Run("delivers to chat", func(t *testing.T) {
		api := &fakeBotAPI{}
		bot := newTestBot(t, api, nil)

		require.NoError(t, bot.Send(context.Background(), "-100200", "halo"))

		calls := api.calls("sendMessage")
		require.Len(t, calls, 1)
		assert.Equal(t, "-100200", calls[0].Get("chat_id"))
		assert.Equal(t, "halo", calls[0].Get("text"))
	})

	t.Run("flood control is rate limited", func(t *testing.T) {
		api := &fakeBotAPI{sendErr: func(int) string {
			return `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 7","parameters":{"retry_after":7}}`
		}}
		bot := newTestBot(t, api, nil)

		err := bot.Send(context.Background(), "1", "hi")
		rl, ok := dispatch.AsRateLimited(err)
		require.True(t, ok)
		assert.Equal(t, 7*time.Second, rl.RetryAfter)
	})

	t.Run("other errors are permanent", func(t *testing.T) {
		api := &fakeBotAPI{sendErr: func(int) string {
			return `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`
		}}
		bot := newTestBot(t, api, nil)

		err := bot.Send(context.Background(), "1", "hi")
		require.Error(t, err)
		_, ok := dispatch.AsRateLimited(err)
		assert.False(t, ok)
		assert.Contains(t, err.Error(), "chat not found")
	})

	t.Run("invalid destination", func(t *testing.T) {
		api := &fakeBotAPI{}
		bot := newTestBot(t, api, nil)

		assert.Error(t, bot.Send(context.Background(), "general", "hi"))
		assert.Empty(t, api.calls("sendMessage"))
	})

	t.Run("cancelled context", func(t *testing.T) {
		api := &fakeBotAPI{}
		bot := newTestBot(t, api, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, bot.Send(ctx, "1", "hi"), context.Canceled)
		assert.Empty(t, api.calls("sendMessage"))
	})
}

func TestSendThroughDispatchQueue(t *testing.T) {
	api := &fakeBotAPI{sendErr: func(n int) string {
		if n == 1 {
			return `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 0","parameters":{"retry_after":0}}`
		}
		return ""
	}}
	bot := newTestBot(t, api, nil)

	q := dispatch.New(bot, dispatch.Config{Cooldown: 5 * time.Millisecond})
	q.Enqueue("1", "first")
	q.Enqueue("2", "second")
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	require.True(t, q.WaitForIdle(2*time.Second))

	texts := []string{}
	for _, call := range api.calls("sendMessage") {
		texts = append(texts, call.Get("text"))
	}
	assert.Equal(t, []string{"first", "second", "first"}, texts)
}

type recordingHandler struct {
	mu     sync.Mutex
	events []router.Event
}

func (h *recordingHandler) Handle(_ context.Context, ev router.Event) (router.Route, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return router.RouteConversation, nil
}

func (h *recordingHandler) snapshot() []router.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]router.Event(nil), h.events...)
}

func TestBotStartStop(t *testing.T) {
	api := &fakeBotAPI{updates: []tgbotapi.Update{
		{UpdateID: 1, Message: &tgbotapi.Message{
			MessageID: 10,
			From:      &tgbotapi.User{ID: 5, UserName: "alice"},
			Chat:      &tgbotapi.Chat{ID: 5, Type: "private"},
			Text:      "hello",
			Date:      1700000000,
		}},
		{UpdateID: 2, Message: &tgbotapi.Message{
			MessageID: 11,
			From:      &tgbotapi.User{ID: 6, IsBot: true},
			Chat:      &tgbotapi.Chat{ID: 5, Type: "private"},
			Text:      "beep",
		}},
	}}
	bot := newTestBot(t, api, nil)
	handler := &recordingHandler{}

	require.NoError(t, bot.Start(context.Background(), handler))
	assert.True(t, bot.IsRunning())
	assert.Error(t, bot.Start(context.Background(), handler))

	assert.Eventually(t, func() bool { return len(handler.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bot.Stop())
	assert.False(t, bot.IsRunning())
	assert.Error(t, bot.Stop())

	ev := handler.snapshot()[0]
	assert.Equal(t, "5", ev.ParticipantID)
	assert.Equal(t, "5", ev.ChannelID)
	assert.Equal(t, "hello", ev.Text)
	assert.True(t, ev.Addressed)
	assert.Equal(t, time.Unix(1700000000, 0), ev.Timestamp)
}

type deadlineHandler struct {
	mu        sync.Mutex
	deadlines []bool
}

func (h *deadlineHandler) Handle(ctx context.Context, _ router.Event) (router.Route, error) {
	_, has := ctx.Deadline()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deadlines = append(h.deadlines, has)
	return router.RouteConversation, nil
}

func (h *deadlineHandler) seen() []bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]bool(nil), h.deadlines...)
}

func TestBotHandlesWithoutDeadline(t *testing.T) {
	api := &fakeBotAPI{updates: []tgbotapi.Update{
		{UpdateID: 1, Message: &tgbotapi.Message{
			MessageID: 10,
			From:      &tgbotapi.User{ID: 5, UserName: "alice"},
			Chat:      &tgbotapi.Chat{ID: 5, Type: "private"},
			Text:      "hello",
		}},
	}}
	bot := newTestBot(t, api, nil)
	handler := &deadlineHandler{}

	require.NoError(t, bot.Start(context.Background(), handler))
	assert.Eventually(t, func() bool { return len(handler.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, bot.Stop())

	assert.Equal(t, []bool{false}, handler.seen())
}

func TestStartRequiresHandler(t *testing.T) {
	bot := newTestBot(t, &fakeBotAPI{}, nil)
	assert.Error(t, bot.Start(context.Background(), nil))
}

func TestRegisterCommands(t *testing.T) {
	api := &fakeBotAPI{}
	bot := newTestBot(t, api, nil)

	require.NoError(t, bot.RegisterCommands())

	calls := api.calls("setMyCommands")
	require.Len(t, calls, 1)
	var commands []tgbotapi.BotCommand
	require.NoError(t, json.Unmarshal([]byte(calls[0].Get("commands")), &commands))
	assert.Equal(t, Commands, commands)
}

func TestClientTimeoutOutlastsPoll(t *testing.T) {
	assert.Equal(t, 70*time.Second, clientTimeout(&config.TelegramConfig{PollTimeout: 60, SendTimeout: 30}))
	assert.Equal(t, 30*time.Second, clientTimeout(&config.TelegramConfig{PollTimeout: 0, SendTimeout: 30}))
}
