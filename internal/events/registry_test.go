package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/ai-town/internal/world"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	assert.True(t, r.Known(TypeMovement))
	assert.True(t, r.Known("coffee_making"))
	assert.False(t, r.Known("juggling"))
	assert.Equal(t, TypeMovement, r.IDs()[0])

	assert.Equal(t, 4.0, r.Importance(TypeConversation))
	assert.Equal(t, DefaultImportance, r.Importance("juggling"))

	social := r.ByCategory(CategorySocial)
	require.NotEmpty(t, social)
	for _, md := range social {
		assert.Equal(t, CategorySocial, md.Category)
	}
}

func TestRegisterValidates(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(Metadata{}))
	assert.Error(t, r.Register(Metadata{ID: "x", Importance: 11}))

	require.NoError(t, r.Register(Metadata{ID: "x", Importance: 2}))
	require.NoError(t, r.Register(Metadata{ID: "x", Importance: 6}))
	assert.Equal(t, []string{"x"}, r.IDs())
	assert.Equal(t, 6.0, r.Importance("x"))
}

func TestDescribe(t *testing.T) {
	r := DefaultRegistry()
	got := r.Describe(TypeConversation, map[string]string{"agent_name": "Alice", "target_name": "Bob"})
	assert.Equal(t, "Alice started a conversation with Bob", got)

	assert.Equal(t, "Alice greeted someone", r.Describe(TypeInteraction, map[string]string{"agent_name": "Alice"}))
	assert.Equal(t, "Bob is busy with fix bike", r.Describe("fix_bike", map[string]string{"agent_name": "Bob"}))
}

func TestEventExpiry(t *testing.T) {
	ts := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	e := New(ts, TypeConversation, "hi", world.Position{}, []string{"a", "b"}, nil, 5)

	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Expired(ts.Add(4*time.Minute)))
	assert.True(t, e.Expired(ts.Add(5*time.Minute)))
	assert.Equal(t, 2, *e.Remaining(ts.Add(3*time.Minute)))
	assert.Equal(t, 0, *e.Remaining(ts.Add(time.Hour)))
	assert.True(t, e.Involves("b"))
	assert.False(t, e.Involves("c"))

	open := New(ts, "work", "", world.Position{}, nil, nil, 0)
	assert.Nil(t, open.Duration)
	assert.False(t, open.Expired(ts.Add(24*time.Hour)))
	assert.Nil(t, open.Remaining(ts))
}

func TestView(t *testing.T) {
	r := DefaultRegistry()
	e := New(time.Now(), "reading", "", world.Position{}, nil, nil, 10)
	v := r.View(e, e.Remaining(e.Timestamp))
	assert.Equal(t, "📘", v.Icon)
	assert.Equal(t, "learning", v.Category)
	assert.Equal(t, 10, *v.Remaining)

	unknown := r.View(New(time.Now(), "juggling", "", world.Position{}, nil, nil, 0), nil)
	assert.Equal(t, "•", unknown.Icon)
}
