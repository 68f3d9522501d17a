package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harun/kodok/internal/observability"
	"github.com/harun/kodok/internal/tracing"
	"github.com/harun/kodok/pkg/canned"
	"github.com/harun/kodok/pkg/dispatch"
	"github.com/harun/kodok/pkg/qotd"
	"github.com/harun/kodok/pkg/reply"
	"github.com/harun/kodok/pkg/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	ApologyReply      = "Sorry, I couldn't come up with a reply right now. Let's start over."
	EndedReply        = "Okay, conversation ended. Talk to you later!"
	NothingToEndReply = "There's no active conversation to end."
	QOTDDisabledReply = "Questions of the day are not enabled."

	HelpReply = "Talk to me by mentioning me or replying to my messages.\n" +
		"!end - end our conversation\n" +
		"!question - post the next question of the day\n" +
		"!help - show this message\n" +
		"add <name> <x> <z> dong / delete <name> pls / coords po o - manage coordinates\n" +
		"i pick rock|paper|scissors - play a round"
)

// Generator produces a reply for a conversation history.
type Generator interface {
	Generate(ctx context.Context, turns []session.Turn) (string, error)
}

// Outbox accepts replies for delivery.
type Outbox interface {
	EnqueueWithContext(ctx context.Context, destination, payload string) dispatch.Item
}

// CannedMatcher answers fixed phrases.
type CannedMatcher interface {
	Match(ctx context.Context, text string) (canned.Response, bool, error)
}

// QuestionPoster posts the next question of the day.
type QuestionPoster interface {
	PostNow(ctx context.Context, destination string) (bool, error)
}

type Options struct {
	Store     *session.Store
	Generator Generator
	Outbox    Outbox
	// Canned and Questions are optional.
	Canned    CannedMatcher
	Questions QuestionPoster
	// Observer, if set, sees every routed event and its outcome.
	Observer func(ctx context.Context, ev Event, route Route, err error)
}

// Router classifies inbound events and drives the conversation engine.
type Router struct {
	store     *session.Store
	generator Generator
	outbox    Outbox
	canned    CannedMatcher
	questions QuestionPoster
	observer  func(ctx context.Context, ev Event, route Route, err error)
	logger    zerolog.Logger
}

func New(opts Options) (*Router, error) {
	if opts.Store == nil {
		return nil, errors.New("session store is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("reply generator is required")
	}
	if opts.Outbox == nil {
		return nil, errors.New("outbox is required")
	}
	return &Router{
		store:     opts.Store,
		generator: opts.Generator,
		outbox:    opts.Outbox,
		canned:    opts.Canned,
		questions: opts.Questions,
		observer:  opts.Observer,
		logger:    log.With().Str("component", "router").Logger(),
	}, nil
}

// Handle routes one event. It is safe to call concurrently; events for the
// same conversation are serialized by the session store.
func (r *Router) Handle(ctx context.Context, ev Event) (route Route, err error) {
	key := ev.Key()
	ctx = tracing.NewEventContext(ctx, key.String(), ev.ChannelID)
	logger := tracing.LoggerFromContext(ctx, r.logger)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("Recovered from panic while routing event")
			err = fmt.Errorf("panic while routing event: %v", rec)
		}
		observability.RecordRoutedEvent(string(route))
		if r.observer != nil {
			r.observer(ctx, ev, route, err)
		}
	}()

	if ev.Kind == KindEnd {
		return RouteEnd, r.endConversation(ctx, logger, ev)
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return RouteIgnored, nil
	}

	if name, args, ok := parseCommand(text); ok {
		return r.handleCommand(ctx, logger, ev, name, args)
	}

	if r.canned != nil {
		resp, ok, err := r.canned.Match(ctx, text)
		if ok {
			if err != nil {
				logger.Error().Err(err).Str("rule", resp.Rule).Msg("Canned response failed")
				return RouteCanned, err
			}
			logger.Debug().Str("rule", resp.Rule).Msg("Canned response matched")
			r.outbox.EnqueueWithContext(ctx, ev.Destination, resp.Text)
			return RouteCanned, nil
		}
	}

	if !ev.Addressed && !r.store.Has(key) {
		return RouteIgnored, nil
	}

	return RouteConversation, r.converse(ctx, logger, ev, text)
}

func (r *Router) handleCommand(ctx context.Context, logger zerolog.Logger, ev Event, name, args string) (Route, error) {
	switch name {
	case "end":
		return RouteEnd, r.endConversation(ctx, logger, ev)
	case "question", "qotd":
		return RouteCommand, r.postQuestion(ctx, logger, ev)
	case "help", "start":
		r.outbox.EnqueueWithContext(ctx, ev.Destination, HelpReply)
		return RouteCommand, nil
	default:
		logger.Debug().Str("command", name).Msg("Unknown command ignored")
		return RouteIgnored, nil
	}
}

func (r *Router) converse(ctx context.Context, logger zerolog.Logger, ev Event, text string) error {
	key := ev.Key()

	return r.store.WithSession(ctx, key, func(s *session.Session) error {
		s.Append(session.RoleUser, text)

		answer, err := r.generator.Generate(ctx, s.Turns())
		if err != nil {
			// A cancelled caller keeps the conversation for the next run.
			if ctx.Err() != nil || !reply.IsTerminal(err) {
				return fmt.Errorf("reply generation for %s: %w", key, err)
			}

			s.Evict()
			observability.RecordConversationAudit(ctx, "drop", key.String(), "failure", map[string]interface{}{
				"error": err.Error(),
			})
			logger.Warn().Err(err).Msg("Dropping conversation after failed generation")
			r.outbox.EnqueueWithContext(ctx, ev.Destination, ApologyReply)
			return fmt.Errorf("reply generation for %s: %w", key, err)
		}

		s.Append(session.RoleAssistant, answer)
		r.outbox.EnqueueWithContext(ctx, ev.Destination, answer)
		logger.Debug().Int("turns", s.Len()).Msg("Reply enqueued")
		return nil
	})
}

func (r *Router) endConversation(ctx context.Context, logger zerolog.Logger, ev Event) error {
	key := ev.Key()
	existed, err := r.store.Evict(ctx, key)
	if err != nil {
		return err
	}

	if !existed {
		r.outbox.EnqueueWithContext(ctx, ev.Destination, NothingToEndReply)
		return nil
	}

	observability.RecordConversationAudit(ctx, "end", key.String(), "success", nil)
	logger.Info().Msg("Conversation ended")
	r.outbox.EnqueueWithContext(ctx, ev.Destination, EndedReply)
	return nil
}

func (r *Router) postQuestion(ctx context.Context, logger zerolog.Logger, ev Event) error {
	if r.questions == nil {
		r.outbox.EnqueueWithContext(ctx, ev.Destination, QOTDDisabledReply)
		return nil
	}

	posted, err := r.questions.PostNow(ctx, ev.Destination)
	if err != nil {
		logger.Error().Err(err).Msg("Manual question failed")
		return err
	}
	if !posted {
		r.outbox.EnqueueWithContext(ctx, ev.Destination, qotd.NoQuestionsReply)
	}
	return nil
}
