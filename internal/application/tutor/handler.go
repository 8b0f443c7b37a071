// Package tutor contains the handler set: one tutor per catalog subject plus
// the support and general tutors. Handlers are stateless and call the model
// once per reply.
package tutor

import (
	"context"

	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/domain/session"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/llm"
)

// HandlerInput is what a tutor sees when answering.
type HandlerInput struct {
	Message string
	Profile profile.Snapshot
	// Most recent messages of the session, newest last.
	History        []*session.ChatMessage
	Classification session.Classification
}

// Handler produces a reply for one message.
type Handler interface {
	Tag() session.HandlerTag
	Respond(ctx context.Context, in HandlerInput) (string, error)
}

// ModelHandler answers through the model with a fixed persona.
type ModelHandler struct {
	tag         session.HandlerTag
	persona     Persona
	provider    llm.Provider
	maxTokens   int
	temperature float64
}

func (h *ModelHandler) Tag() session.HandlerTag { return h.tag }

// Respond calls the model once. Any failure, including an empty reply, is a
// generation failure.
func (h *ModelHandler) Respond(ctx context.Context, in HandlerInput) (string, error) {
	req := llm.Request{
		System:      h.persona.Instruction(in.Profile, in.Classification),
		Messages:    conversation(in.History, in.Message),
		MaxTokens:   h.maxTokens,
		Temperature: h.temperature,
	}

	text, err := llm.GenerateText(llm.WithPurpose(ctx, llm.PurposeReply), h.provider, req)
	if err != nil {
		return "", shared.WrapError("tutor", "Respond", shared.ErrGenerationFailure,
			"no reply from "+h.tag.String(), err)
	}
	return text, nil
}

// conversation replays history as alternating turns and ends with the new message.
func conversation(history []*session.ChatMessage, message string) []llm.Message {
	out := make([]llm.Message, 0, len(history)*2+1)
	for _, m := range history {
		out = append(out, llm.Message{Role: llm.RoleUser, Content: m.UserText})
		if m.ResponseText != "" {
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: m.ResponseText})
		}
	}
	return append(out, llm.Message{Role: llm.RoleUser, Content: message})
}
