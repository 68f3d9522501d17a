package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultSweepInterval = 5 * time.Second
	DefaultIdleTimeout   = 180 * time.Second
	DefaultSweepBatch    = 100
	DefaultBatchPause    = 10 * time.Millisecond
)

type SweeperConfig struct {
	Interval    time.Duration
	IdleTimeout time.Duration
	// BatchSize is the number of evictions between pauses.
	BatchSize  int
	BatchPause time.Duration
	Clock      func() time.Time
}

// Sweeper periodically evicts conversations that have been idle too long.
type Sweeper struct {
	store  *Store
	config SweeperConfig

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewSweeper(store *Store, config SweeperConfig) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepInterval
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultSweepBatch
	}
	if config.BatchPause < 0 {
		config.BatchPause = 0
	} else if config.BatchPause == 0 {
		config.BatchPause = DefaultBatchPause
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &Sweeper{store: store, config: config}
}

// Start launches the sweep loop. It stops when ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("sweeper is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.run(ctx, s.done)

	log.Info().
		Dur("interval", s.config.Interval).
		Dur("idle_timeout", s.config.IdleTimeout).
		Msg("Session sweeper started")

	return nil
}

// Stop cancels the loop and waits for an in-progress sweep to finish.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is not running")
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done

	log.Info().Msg("Session sweeper stopped")
	return nil
}

func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepNow(ctx)
		}
	}
}

// SweepNow evicts every expired conversation and returns how many were
// removed. Each key is locked only while it is examined.
func (s *Sweeper) SweepNow(ctx context.Context) int {
	now := s.config.Clock()
	evicted := 0

	for _, key := range s.store.Keys() {
		if ctx.Err() != nil {
			break
		}

		ok, err := s.store.EvictIfExpired(ctx, key, now, s.config.IdleTimeout)
		if err != nil {
			log.Warn().
				Str("session_key", key.String()).
				Err(err).
				Msg("Failed to expire session")
			continue
		}
		if !ok {
			continue
		}

		evicted++
		if evicted%s.config.BatchSize == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.config.BatchPause):
			}
		}
	}

	if evicted > 0 {
		log.Info().
			Int("evicted", evicted).
			Int("remaining", s.store.Len()).
			Msg("Expired idle sessions")
	}

	return evicted
}
