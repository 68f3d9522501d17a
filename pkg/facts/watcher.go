package facts

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultWatchDebounce = 200 * time.Millisecond

// QuestionWatcher re-imports a questions file whenever it is written.
type QuestionWatcher struct {
	store    *Store
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	onImport func(QuestionFile)

	mu       sync.Mutex
	timer    *time.Timer
	done     chan struct{}
	stopOnce sync.Once
}

type QuestionWatcherConfig struct {
	Path     string
	Debounce time.Duration
	// OnImport is called after every successful import.
	OnImport func(QuestionFile)
}

func NewQuestionWatcher(store *Store, config QuestionWatcherConfig) (*QuestionWatcher, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("questions file path is required")
	}
	if config.Debounce <= 0 {
		config.Debounce = defaultWatchDebounce
	}

	path, err := filepath.Abs(config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve questions file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &QuestionWatcher{
		store:    store,
		path:     path,
		debounce: config.Debounce,
		watcher:  watcher,
		logger:   log.With().Str("component", "question-watcher").Str("path", path).Logger(),
		onImport: config.OnImport,
		done:     make(chan struct{}),
	}, nil
}

// Start imports the file once if it exists, then watches its directory.
// Watching the directory keeps working across editors that save by rename.
func (w *QuestionWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	w.importFile(ctx)
	go w.eventLoop(ctx)

	w.logger.Info().Msg("Question watcher started")
	return nil
}

func (w *QuestionWatcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.logger.Info().Msg("Question watcher stopped")
	return nil
}

func (w *QuestionWatcher) eventLoop(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.schedule(ctx)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-ctx.Done():
			return
		case <-w.done:
			return
		}
	}
}

// schedule coalesces bursts of writes into a single import.
func (w *QuestionWatcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}
		w.importFile(ctx)
	})
}

func (w *QuestionWatcher) importFile(ctx context.Context) {
	imported, err := w.store.ImportQuestionsFile(ctx, w.path)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Questions file import failed")
		return
	}
	if w.onImport != nil {
		w.onImport(imported)
	}
}
