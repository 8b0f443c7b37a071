package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

func TestHandlerTag(t *testing.T) {
	tag := SubjectTag(" Math ")
	assert.Equal(t, HandlerTag("subject:math"), tag)
	assert.Equal(t, "math", tag.Subject())
	assert.True(t, tag.IsSubject())
	assert.True(t, tag.IsValid())

	assert.True(t, TagGeneral.IsValid())
	assert.True(t, TagSupport.IsValid())
	assert.False(t, TagSupport.IsSubject())
	assert.False(t, HandlerTag("subject:").IsValid())
	assert.False(t, HandlerTag("math").IsValid())
}

func TestNewChatMessage(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	m, err := NewChatMessage(NewMessageParams{
		ID:           "m1",
		SessionID:    "s1",
		StudentID:    "stu",
		Subject:      "Math",
		UserText:     "what is 2+2",
		ResponseText: "4",
		Handler:      SubjectTag("math"),
		At:           at,
	})
	require.NoError(t, err)
	assert.Equal(t, "math", m.Subject)
	assert.Equal(t, at, m.CreatedAt)

	_, err = NewChatMessage(NewMessageParams{ID: "m", SessionID: "s", UserText: "  ", Handler: TagGeneral})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)

	_, err = NewChatMessage(NewMessageParams{ID: "m", SessionID: "s", UserText: "hi", Handler: "weird"})
	assert.True(t, shared.IsValidation(err))
}

func TestNewChatSession(t *testing.T) {
	s, err := NewChatSession("id", "stu", "Ada", "Physics")
	require.NoError(t, err)
	assert.Equal(t, "physics", s.Subject)
	assert.Zero(t, s.TotalMessages)

	_, err = NewChatSession("id", " ", "", "")
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

func TestModeSubject(t *testing.T) {
	msg := func(subject string) *ChatMessage { return &ChatMessage{Subject: subject} }

	assert.Equal(t, "", ModeSubject(nil))
	assert.Equal(t, "", ModeSubject([]*ChatMessage{msg("general"), msg("")}))
	assert.Equal(t, "math", ModeSubject([]*ChatMessage{msg("physics"), msg("math"), msg("math"), msg("general"), msg("general")}))
	// tie goes to the most recently used subject
	assert.Equal(t, "physics", ModeSubject([]*ChatMessage{msg("math"), msg("physics"), msg("math"), msg("physics")}))
	assert.Equal(t, "math", ModeSubject([]*ChatMessage{msg("physics"), msg("math")}))
}
