package facts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Question is an entry of the question-of-the-day queue.
type Question struct {
	ID     int64
	Text   string
	UsedAt *time.Time
}

// QuestionFile is the JSON layout accepted by ImportQuestions.
type QuestionFile struct {
	Questions     []string `json:"questions"`
	UsedQuestions []string `json:"used_questions"`
}

// AddQuestion appends text to the end of the pending queue.
func (s *Store) AddQuestion(ctx context.Context, text string) (Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Question{}, fmt.Errorf("question text is required")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO questions (text, created_at) VALUES (?, ?)`, text, s.now().Unix())
	if err != nil {
		return Question{}, fmt.Errorf("failed to add question: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Question{}, fmt.Errorf("failed to add question: %w", err)
	}
	return Question{ID: id, Text: text}, nil
}

// NextQuestion pops the oldest pending question and marks it used. It returns
// ErrNotFound when the queue is empty.
func (s *Store) NextQuestion(ctx context.Context) (Question, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Question{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var q Question
	err = tx.QueryRowContext(ctx,
		`SELECT id, text FROM questions WHERE used_at IS NULL ORDER BY id LIMIT 1`,
	).Scan(&q.ID, &q.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, ErrNotFound
	}
	if err != nil {
		return Question{}, fmt.Errorf("failed to load next question: %w", err)
	}

	usedAt := s.now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE questions SET used_at = ? WHERE id = ?`, usedAt.Unix(), q.ID,
	); err != nil {
		return Question{}, fmt.Errorf("failed to mark question %d used: %w", q.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return Question{}, fmt.Errorf("failed to commit question %d: %w", q.ID, err)
	}

	q.UsedAt = &usedAt
	s.logger.Debug().Int64("question_id", q.ID).Msg("Question popped")
	return q, nil
}

// PendingQuestions lists unused questions, oldest first.
func (s *Store) PendingQuestions(ctx context.Context) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text FROM questions WHERE used_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.Text); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// QuestionCounts returns the number of pending and used questions.
func (s *Store) QuestionCounts(ctx context.Context) (pending, used int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN used_at IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN used_at IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM questions`,
	).Scan(&pending, &used)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return pending, used, nil
}

// ImportQuestions loads a QuestionFile from r. Pending questions are appended
// to the queue in file order; used ones are recorded as already asked. Texts
// already present in the queue are skipped, so importing the same file twice
// is a no-op.
func (s *Store) ImportQuestions(ctx context.Context, r io.Reader) (QuestionFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return QuestionFile{}, fmt.Errorf("failed to read questions: %w", err)
	}
	if err := validateQuestionFile(data); err != nil {
		return QuestionFile{}, err
	}

	var file QuestionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return QuestionFile{}, fmt.Errorf("failed to decode questions: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return QuestionFile{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().Unix()
	imported := QuestionFile{}
	insert := func(text string, usedAt any) (bool, error) {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO questions (text, created_at, used_at)
			SELECT ?, ?, ?
			WHERE NOT EXISTS (SELECT 1 FROM questions WHERE text = ?)`,
			text, now, usedAt, text,
		)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		return n > 0, err
	}

	for _, text := range file.UsedQuestions {
		if text = strings.TrimSpace(text); text == "" {
			continue
		}
		added, err := insert(text, now)
		if err != nil {
			return QuestionFile{}, fmt.Errorf("failed to import used question: %w", err)
		}
		if added {
			imported.UsedQuestions = append(imported.UsedQuestions, text)
		}
	}
	for _, text := range file.Questions {
		if text = strings.TrimSpace(text); text == "" {
			continue
		}
		added, err := insert(text, nil)
		if err != nil {
			return QuestionFile{}, fmt.Errorf("failed to import question: %w", err)
		}
		if added {
			imported.Questions = append(imported.Questions, text)
		}
	}

	if err := tx.Commit(); err != nil {
		return QuestionFile{}, fmt.Errorf("failed to commit import: %w", err)
	}

	s.logger.Info().
		Int("pending", len(imported.Questions)).
		Int("used", len(imported.UsedQuestions)).
		Msg("Questions imported")
	return imported, nil
}

// ImportQuestionsFile is ImportQuestions reading from path.
func (s *Store) ImportQuestionsFile(ctx context.Context, path string) (QuestionFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return QuestionFile{}, fmt.Errorf("failed to open questions file: %w", err)
	}
	defer f.Close()
	return s.ImportQuestions(ctx, f)
}
