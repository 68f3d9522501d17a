// Package qotd posts a daily question from the fact store's queue.
package qotd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/kodok/internal/tracing"
	"github.com/harun/kodok/pkg/dispatch"
	"github.com/harun/kodok/pkg/facts"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSchedule = "0 10 * * *"

	NoQuestionsReply = "No QOTD available. Please add questions to the list."
)

// QuestionSource hands out the next unused question.
type QuestionSource interface {
	NextQuestion(ctx context.Context) (facts.Question, error)
}

// Outbox accepts messages for delivery.
type Outbox interface {
	EnqueueWithContext(ctx context.Context, destination, payload string) dispatch.Item
}

type Config struct {
	// Schedule is a five-field cron expression.
	Schedule string
	// Timezone is an IANA zone name for Schedule. Empty means local time.
	Timezone string
	// Destination receives the scheduled post.
	Destination string
}

// Poster pops questions and enqueues them, on a schedule or on demand.
type Poster struct {
	source   QuestionSource
	outbox   Outbox
	config   Config
	schedule cron.Schedule
	location *time.Location
	logger   zerolog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func New(source QuestionSource, outbox Outbox, config Config) (*Poster, error) {
	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}
	schedule, err := parser.Parse(config.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", config.Schedule, err)
	}

	location := time.Local
	if config.Timezone != "" {
		location, err = time.LoadLocation(config.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone: %w", err)
		}
	}

	return &Poster{
		source:   source,
		outbox:   outbox,
		config:   config,
		schedule: schedule,
		location: location,
		logger:   log.With().Str("component", "qotd").Logger(),
	}, nil
}

// Format renders a question as it is posted.
func Format(question string) string {
	return "**Question of the Day:** " + question
}

// PostNow pops the next question and enqueues it to destination. It reports
// false without error when the queue is empty.
func (p *Poster) PostNow(ctx context.Context, destination string) (bool, error) {
	q, err := p.source.NextQuestion(ctx)
	if errors.Is(err, facts.ErrNotFound) {
		p.logger.Info().Msg("No QOTD available")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load question: %w", err)
	}

	p.outbox.EnqueueWithContext(ctx, destination, Format(q.Text))
	p.logger.Info().
		Int64("question_id", q.ID).
		Str("destination", destination).
		Msg("Question of the day posted")
	return true, nil
}

// NextRun returns the first scheduled time after now.
func (p *Poster) NextRun(now time.Time) time.Time {
	return p.schedule.Next(now.In(p.location))
}

// Start begins the schedule. It fails when no destination is configured.
func (p *Poster) Start(ctx context.Context) error {
	if p.config.Destination == "" {
		return fmt.Errorf("qotd destination is not configured")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron != nil {
		return fmt.Errorf("qotd scheduler is already running")
	}

	c := cron.New(cron.WithLocation(p.location), cron.WithParser(parser))
	c.Schedule(p.schedule, cron.FuncJob(func() {
		runCtx := tracing.WithTraceID(ctx, tracing.NewTraceID())
		if _, err := p.PostNow(runCtx, p.config.Destination); err != nil {
			p.logger.Error().Err(err).Msg("Scheduled question failed")
		}
	}))
	c.Start()
	p.cron = c

	p.logger.Info().
		Str("schedule", p.config.Schedule).
		Str("timezone", p.location.String()).
		Time("next_run", p.NextRun(time.Now())).
		Msg("QOTD scheduler started")
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (p *Poster) Stop() {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	p.logger.Info().Msg("QOTD scheduler stopped")
}
