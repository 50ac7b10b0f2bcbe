package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/ai-town/internal/events"
	"github.com/talgya/ai-town/internal/world"
)

func TestEventArchiveRotatesBySimHour(t *testing.T) {
	dir := t.TempDir()
	a := NewEventArchive(dir)
	ctx := context.Background()

	e1 := events.New(t0, events.TypeMovement, "Alice moved to park", world.Position{}, []string{"alice"}, nil, 1)
	e2 := events.New(t0.Add(30*time.Minute), events.TypeConversation, "Alice started a conversation with Bob", world.Position{}, []string{"alice", "bob"}, nil, 5)
	e3 := events.New(t0.Add(90*time.Minute), events.TypeActivity, "Bob is reading", world.Position{}, []string{"bob"}, nil, 10)

	require.NoError(t, a.Archive(ctx, []events.Event{e1}))
	require.NoError(t, a.Archive(ctx, []events.Event{e2, e3}))
	require.NoError(t, a.Close())

	first, err := ReadArchive(a.PathForHour("2024-01-01-08"))
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, e1.ID, first[0].ID)
	assert.Equal(t, e2.Description, first[1].Description)

	second, err := ReadArchive(a.PathForHour("2024-01-01-09"))
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, e3.ID, second[0].ID)
}

func TestEventArchiveEmptyBatch(t *testing.T) {
	a := NewEventArchive(t.TempDir())
	assert.NoError(t, a.Archive(context.Background(), nil))
	assert.NoError(t, a.Close())
}

type failingSink struct{ calls int }

func (f *failingSink) Archive(context.Context, []events.Event) error {
	f.calls++
	return errors.New("disk full")
}

func TestMultiSinkTriesAll(t *testing.T) {
	bad1, bad2 := &failingSink{}, &failingSink{}
	err := MultiSink{bad1, bad2}.Archive(context.Background(), []events.Event{{ID: "x"}})
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 1, bad1.calls)
	assert.Equal(t, 1, bad2.calls)
}
