package reply

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/harun/kodok/internal/observability"
	"github.com/harun/kodok/internal/tracing"
	"github.com/harun/kodok/pkg/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxTokens   = 512

	DefaultPersona = "You are Kodok, a cheerful frog who hangs out in a group chat. " +
		"Reply casually and briefly, in the same language the user writes in. " +
		"Keep answers under a few sentences unless asked for more."
)

type Config struct {
	Model       string
	Persona     string
	MaxTokens   int
	Temperature float64
	MaxAttempts int
	// BaseDelay is the wait after the first failed attempt; it doubles after each failure.
	BaseDelay time.Duration
	// AttemptTimeout bounds a single completion call. Zero means no bound.
	AttemptTimeout time.Duration
}

// Generator wraps a Completer with bounded retry and exponential backoff.
type Generator struct {
	completer Completer
	config    Config
	logger    zerolog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewGenerator(completer Completer, config Config) *Generator {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultBaseDelay
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Persona == "" {
		config.Persona = DefaultPersona
	}
	return &Generator{
		completer: completer,
		config:    config,
		logger:    log.With().Str("component", "reply").Str("provider", completer.Provider()).Logger(),
		sleep:     sleepContext,
	}
}

// Generate produces a reply for the given turns, oldest first. It returns a
// *TerminalError once it gives up, or ctx.Err() if ctx is done before the
// first attempt.
func (g *Generator) Generate(ctx context.Context, turns []session.Turn) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ctx, span := tracing.StartSpan(ctx, "kodok/reply", "reply.generate",
		attribute.String("provider", g.completer.Provider()),
		attribute.Int("turns", len(turns)),
	)
	started := time.Now()
	logger := tracing.LoggerFromContext(ctx, g.logger)

	text, err := g.generate(ctx, logger, g.buildRequest(turns))

	observability.RecordGeneration(g.completer.Provider(), time.Since(started))
	tracing.EndSpan(span, err)
	return text, err
}

func (g *Generator) generate(ctx context.Context, logger zerolog.Logger, request Request) (string, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt < g.config.MaxAttempts; attempt++ {
		attempts++
		text, err := g.attempt(ctx, request)
		observability.RecordGenerationAttempt(g.completer.Provider(), err == nil)
		if err == nil {
			if attempt > 0 {
				logger.Info().Int("attempt", attempts).Msg("Reply generated after retry")
			}
			return text, nil
		}
		lastErr = err

		// Cancellation by the caller is shutdown, not a generation failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Debug().Err(err).Int("attempt", attempts).Msg("Generation interrupted")
			return "", errors.Join(ctxErr, err)
		}

		if !IsTransient(err) {
			logger.Warn().Err(err).Int("attempt", attempts).Msg("Permanent generation failure")
			break
		}
		if attempt == g.config.MaxAttempts-1 {
			break
		}

		delay := g.config.BaseDelay * time.Duration(1<<attempt)
		logger.Info().
			Int("attempt", attempts).
			Dur("delay", delay).
			Err(err).
			Msg("Retrying after error")

		if err := g.sleep(ctx, delay); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
	}

	logger.Error().Err(lastErr).Int("attempts", attempts).Msg("Reply generation gave up")
	return "", &TerminalError{Attempts: attempts, Err: lastErr}
}

func (g *Generator) attempt(ctx context.Context, request Request) (string, error) {
	if g.config.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.AttemptTimeout)
		defer cancel()
	}

	text, err := g.completer.Complete(ctx, request)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

func (g *Generator) buildRequest(turns []session.Turn) Request {
	messages := make([]Message, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, Message{Role: string(turn.Role), Content: turn.Text})
	}
	return Request{
		Model:        g.config.Model,
		SystemPrompt: g.config.Persona,
		Messages:     messages,
		MaxTokens:    g.config.MaxTokens,
		Temperature:  g.config.Temperature,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
