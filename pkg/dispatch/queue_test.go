package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sendRecord struct {
	destination string
	text        string
	at          time.Time
}

type recordingSender struct {
	mu        sync.Mutex
	sent      []sendRecord
	attempts  map[string]int
	active    int
	maxActive int
	fail      func(text string, attempt int) error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{attempts: make(map[string]int)}
}

func (s *recordingSender) Send(ctx context.Context, destination, text string) error {
	s.mu.Lock()
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	s.attempts[text]++
	attempt := s.attempts[text]
	fail := s.fail
	s.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	var err error
	if fail != nil {
		err = fail(text, attempt)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
	if err == nil {
		s.sent = append(s.sent, sendRecord{destination: destination, text: text, at: time.Now()})
	}
	return err
}

func (s *recordingSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, r := range s.sent {
		out = append(out, r.text)
	}
	return out
}

func (s *recordingSender) records() []sendRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sendRecord(nil), s.sent...)
}

func startQueue(t *testing.T, sender Sender, config Config) *Queue {
	t.Helper()
	q := New(sender, config)
	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(q.Stop)
	return q
}

func TestQueue_EnqueueDoesNotBlock(t *testing.T) {
	q := New(newRecordingSender(), Config{})

	item := q.Enqueue("chat-1", "hello")
	q.Enqueue("chat-1", "world")

	assert.Equal(t, "chat-1", item.Destination)
	assert.Equal(t, "hello", item.Payload)
	assert.False(t, item.EnqueuedAt.IsZero())
	assert.Equal(t, 2, q.Len())
	assert.False(t, q.WaitForIdle(20*time.Millisecond))
}

func TestQueue_SerializesDeliveriesWithCooldown(t *testing.T) {
	sender := newRecordingSender()
	cooldown := 30 * time.Millisecond
	q := startQueue(t, sender, Config{Cooldown: cooldown})

	q.Enqueue("a", "A")
	q.Enqueue("b", "B")
	q.Enqueue("c", "C")

	require.True(t, q.WaitForIdle(2*time.Second))
	assert.Equal(t, []string{"A", "B", "C"}, sender.texts())
	assert.Equal(t, 1, sender.maxActive)

	records := sender.records()
	for i := 1; i < len(records); i++ {
		assert.GreaterOrEqual(t, records[i].at.Sub(records[i-1].at), cooldown)
	}
}

func TestQueue_ExactCooldownAndRetryAfter(t *testing.T) {
	sender := newRecordingSender()
	sender.fail = func(text string, attempt int) error {
		if text == "A" && attempt == 1 {
			return &RateLimitedError{RetryAfter: 7 * time.Second}
		}
		return nil
	}

	q := New(sender, Config{})
	var mu sync.Mutex
	var sleeps []time.Duration
	q.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
		return nil
	}
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	q.Enqueue("x", "A")
	q.Enqueue("x", "B")
	require.True(t, q.WaitForIdle(2*time.Second))

	assert.Equal(t, []string{"B", "A"}, sender.texts(), "throttled item moves to the tail")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{7 * time.Second, DefaultCooldown, DefaultCooldown}, sleeps)
}

func TestQueue_RateLimitedItemIsDeliveredAfterDelay(t *testing.T) {
	sender := newRecordingSender()
	retryAfter := 60 * time.Millisecond
	var firstAttempt time.Time
	sender.fail = func(text string, attempt int) error {
		if text == "A" && attempt == 1 {
			firstAttempt = time.Now()
			return &RateLimitedError{RetryAfter: retryAfter}
		}
		return nil
	}
	q := startQueue(t, sender, Config{Cooldown: 5 * time.Millisecond})

	q.Enqueue("x", "A")
	q.Enqueue("y", "B")
	q.Enqueue("z", "C")
	require.True(t, q.WaitForIdle(2*time.Second))

	assert.Equal(t, []string{"B", "C", "A"}, sender.texts())
	for _, r := range sender.records() {
		if r.text == "A" {
			assert.GreaterOrEqual(t, r.at.Sub(firstAttempt), retryAfter)
		}
	}
}

func TestQueue_ZeroRetryAfterFallsBackToCooldown(t *testing.T) {
	sender := newRecordingSender()
	sender.fail = func(text string, attempt int) error {
		if attempt == 1 {
			return &RateLimitedError{}
		}
		return nil
	}

	q := New(sender, Config{Cooldown: 3 * time.Second})
	var sleeps []time.Duration
	q.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	q.Enqueue("x", "A")
	require.True(t, q.WaitForIdle(2*time.Second))

	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, sleeps)
}

func TestQueue_FailedDeliveryIsDropped(t *testing.T) {
	sender := newRecordingSender()
	sender.fail = func(text string, attempt int) error {
		if text == "bad" {
			return errors.New("chat not found")
		}
		return nil
	}
	q := startQueue(t, sender, Config{Cooldown: time.Millisecond})

	q.Enqueue("x", "bad")
	q.Enqueue("x", "good")
	require.True(t, q.WaitForIdle(2*time.Second))

	assert.Equal(t, []string{"good"}, sender.texts())
	sender.mu.Lock()
	assert.Equal(t, 1, sender.attempts["bad"])
	sender.mu.Unlock()
}

func TestQueue_ReportsOutcomes(t *testing.T) {
	sender := newRecordingSender()
	sender.fail = func(text string, attempt int) error {
		switch {
		case text == "bad":
			return errors.New("chat not found")
		case text == "slow" && attempt == 1:
			return &RateLimitedError{RetryAfter: time.Millisecond}
		}
		return nil
	}

	var mu sync.Mutex
	outcomes := map[string][]Outcome{}
	q := startQueue(t, sender, Config{
		Cooldown: time.Millisecond,
		OnOutcome: func(item Item, outcome Outcome, err error) {
			mu.Lock()
			defer mu.Unlock()
			outcomes[item.Payload] = append(outcomes[item.Payload], outcome)
		},
	})

	q.Enqueue("x", "bad")
	q.Enqueue("x", "slow")
	q.Enqueue("x", "good")
	require.True(t, q.WaitForIdle(2*time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Outcome{OutcomeDropped}, outcomes["bad"])
	assert.Equal(t, []Outcome{OutcomeRateLimited, OutcomeSent}, outcomes["slow"])
	assert.Equal(t, []Outcome{OutcomeSent}, outcomes["good"])
}

func TestQueue_PanicInSenderDoesNotStopWorker(t *testing.T) {
	var mu sync.Mutex
	var delivered []string
	sender := SenderFunc(func(ctx context.Context, destination, text string) error {
		if text == "boom" {
			panic("sender exploded")
		}
		mu.Lock()
		delivered = append(delivered, text)
		mu.Unlock()
		return nil
	})
	q := startQueue(t, sender, Config{Cooldown: time.Millisecond})

	q.Enqueue("x", "boom")
	q.Enqueue("x", "after")
	require.True(t, q.WaitForIdle(2*time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"after"}, delivered)
	assert.True(t, q.IsRunning())
}

func TestQueue_StartStop(t *testing.T) {
	release := make(chan struct{})
	sender := SenderFunc(func(ctx context.Context, destination, text string) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	q := New(sender, Config{Cooldown: time.Millisecond})

	require.NoError(t, q.Start(context.Background()))
	assert.Error(t, q.Start(context.Background()))

	q.Enqueue("x", "first")
	q.Enqueue("x", "second")
	q.Enqueue("x", "third")

	assert.Eventually(t, func() bool { return q.Len() == 2 }, time.Second, 5*time.Millisecond)
	q.Stop()
	close(release)

	assert.False(t, q.IsRunning())
	assert.Equal(t, 2, q.Len(), "pending items are abandoned on stop")

	// Stop is idempotent.
	q.Stop()
}

func TestRateLimitedError(t *testing.T) {
	cause := errors.New("too many requests")
	err := &RateLimitedError{RetryAfter: 5 * time.Second, Err: cause}

	rl, ok := AsRateLimited(err)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, rl.RetryAfter)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "retry after 5s")

	_, ok = AsRateLimited(cause)
	assert.False(t, ok)
}
