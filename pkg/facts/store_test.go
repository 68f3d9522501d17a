package facts

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "facts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestCoordinates_CRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutCoordinate(ctx, Coordinate{Name: "Base", X: 10, Z: -20}))
	require.NoError(t, store.PutCoordinate(ctx, Coordinate{Name: "farm", X: 1, Z: 2}))

	got, err := store.GetCoordinate(ctx, "base")
	require.NoError(t, err)
	assert.Equal(t, Coordinate{Name: "base", X: 10, Z: -20}, got)

	require.NoError(t, store.PutCoordinate(ctx, Coordinate{Name: "base", X: 99, Z: 98}))
	list, err := store.ListCoordinates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Coordinate{
		{Name: "base", X: 99, Z: 98},
		{Name: "farm", X: 1, Z: 2},
	}, list)

	deleted, err := store.DeleteCoordinate(ctx, "BASE")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.DeleteCoordinate(ctx, "base")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = store.GetCoordinate(ctx, "base")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, store.PutCoordinate(ctx, Coordinate{Name: "  "}))
}

func TestQuestions_Queue(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.NextQuestion(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.AddQuestion(ctx, "first?")
	require.NoError(t, err)
	_, err = store.AddQuestion(ctx, "second?")
	require.NoError(t, err)
	_, err = store.AddQuestion(ctx, "   ")
	assert.Error(t, err)

	q, err := store.NextQuestion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first?", q.Text)
	require.NotNil(t, q.UsedAt)

	pending, err := store.PendingQuestions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "second?", pending[0].Text)

	p, u, err := store.QuestionCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p)
	assert.Equal(t, 1, u)
}

func TestQuestions_Import(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	input := `{"questions": ["a?", "", "b?"], "used_questions": ["old?"]}`
	imported, err := store.ImportQuestions(ctx, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"a?", "b?"}, imported.Questions)
	assert.Equal(t, []string{"old?"}, imported.UsedQuestions)

	q, err := store.NextQuestion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a?", q.Text)

	p, u, err := store.QuestionCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p)
	assert.Equal(t, 2, u)

	_, err = store.ImportQuestions(ctx, strings.NewReader("not json"))
	assert.Error(t, err)
}

func TestQuestionCounts_Empty(t *testing.T) {
	store := setupTestStore(t)

	p, u, err := store.QuestionCounts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, p)
	assert.Zero(t, u)
}

func TestQuestions_ImportIsIdempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	input := `{"questions": ["a?", "b?"]}`
	_, err := store.ImportQuestions(ctx, strings.NewReader(input))
	require.NoError(t, err)

	imported, err := store.ImportQuestions(ctx, strings.NewReader(`{"questions": ["a?", "c?"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"c?"}, imported.Questions)

	p, _, err := store.QuestionCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, p)
}

func TestQuestions_ImportRejectsWrongShape(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tests := map[string]string{
		"not an object":   `["a?"]`,
		"wrong item type": `{"questions": [1, 2]}`,
		"missing keys":    `{"other": []}`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := store.ImportQuestions(ctx, strings.NewReader(input))
			assert.Error(t, err)
		})
	}

	p, u, err := store.QuestionCounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, p+u)
}
