package routing

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tutorhub/tutor-hub/internal/domain/session"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/llm"
)

// GeneralSubject is the enumeration value for "no particular subject".
const GeneralSubject = "general"

// ModelClassification is the validated model output. Subject is always either
// a registered subject or GeneralSubject.
type ModelClassification struct {
	Subject    string
	Topic      string
	Difficulty session.Difficulty
	Urgency    session.Urgency
	Mood       session.Mood
}

type rawClassification struct {
	Subject    string `json:"subject"`
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
	Urgency    string `json:"urgency"`
	Mood       string `json:"mood"`
}

var (
	difficulties = []string{
		string(session.DifficultyElementary), string(session.DifficultyMiddle),
		string(session.DifficultyHigh), string(session.DifficultyAdvanced),
	}
	urgencies = []string{string(session.UrgencyLow), string(session.UrgencyMedium), string(session.UrgencyHigh)}
	moods     = []string{
		string(session.MoodNeutral), string(session.MoodConfused), string(session.MoodFrustrated),
		string(session.MoodExcited), string(session.MoodStressed),
	}
)

const classifierContextTurns = 3

// ModelClassifier asks the model for a structured classification constrained
// to the registered subjects plus "general".
type ModelClassifier struct {
	provider llm.Provider
	subjects []string
	schema   *llm.Schema
	system   string
	timeout  time.Duration
	cache    *ClassificationCache
}

// NewModelClassifier builds the classifier. cache may be nil.
func NewModelClassifier(p llm.Provider, subjects []string, timeout time.Duration, cache *ClassificationCache) *ModelClassifier {
	enum := append(slices.Clone(subjects), GeneralSubject)
	return &ModelClassifier{
		provider: p,
		subjects: subjects,
		schema:   classificationSchema(enum),
		system:   classifierPrompt(enum),
		timeout:  timeout,
		cache:    cache,
	}
}

func classificationSchema(subjects []string) *llm.Schema {
	return &llm.Schema{
		Name:        "message-classification",
		Description: "Subject and tone of a student's message",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"subject":    map[string]any{"type": "string", "enum": subjects},
				"topic":      map[string]any{"type": "string"},
				"difficulty": map[string]any{"type": "string", "enum": difficulties},
				"urgency":    map[string]any{"type": "string", "enum": urgencies},
				"mood":       map[string]any{"type": "string", "enum": moods},
			},
			"required":             []string{"subject", "topic", "difficulty", "urgency", "mood"},
			"additionalProperties": false,
		},
	}
}

func classifierPrompt(subjects []string) string {
	return fmt.Sprintf(`You analyze messages that middle and high school students send to a tutoring service.
Classify the student's latest message.

subject: one of %s. Use "general" for greetings, study habits and anything not tied to one subject.
topic: the specific topic if identifiable, otherwise an empty string.
difficulty: the school level the question belongs to.
urgency: "high" for tests or deadlines today or tomorrow, "medium" for upcoming homework, otherwise "low".
mood: the student's tone. Use "stressed" only for anxiety, overwhelm or panic.`, strings.Join(subjects, ", "))
}

// Classify returns the model classification for message. Errors are returned
// to the caller, which downgrades them to the general route.
func (c *ModelClassifier) Classify(ctx context.Context, message string, history []*session.ChatMessage) (ModelClassification, error) {
	key := CacheKey(message, strings.Join(contextTurns(history), "\n"))
	if mc, ok := c.cache.Get(key); ok {
		return mc, nil
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	ctx = llm.WithPurpose(ctx, llm.PurposeClassification)

	raw, err := llm.GenerateJSON[rawClassification](ctx, c.provider, llm.Request{
		System:    c.system,
		Messages:  llm.UserTurn(classifierInput(message, history)),
		Schema:    c.schema,
		MaxTokens: 256,
	})
	if err != nil {
		return ModelClassification{}, err
	}

	mc := c.parse(raw)
	c.cache.Set(key, mc)
	return mc, nil
}

// parse maps the raw output onto the closed enumerations. Anything unknown
// falls back to the neutral value.
func (c *ModelClassifier) parse(raw rawClassification) ModelClassification {
	mc := ModelClassification{
		Subject:    GeneralSubject,
		Topic:      strings.TrimSpace(raw.Topic),
		Difficulty: session.Difficulty(pick(raw.Difficulty, difficulties, "")),
		Urgency:    session.Urgency(pick(raw.Urgency, urgencies, string(session.UrgencyLow))),
		Mood:       session.Mood(pick(raw.Mood, moods, string(session.MoodNeutral))),
	}
	if s := strings.ToLower(strings.TrimSpace(raw.Subject)); slices.Contains(c.subjects, s) {
		mc.Subject = s
	}
	return mc
}

func pick(v string, allowed []string, def string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if slices.Contains(allowed, v) {
		return v
	}
	return def
}

// contextTurns returns the student's last few messages, oldest first.
func contextTurns(history []*session.ChatMessage) []string {
	start := max(0, len(history)-classifierContextTurns)
	out := make([]string, 0, len(history)-start)
	for _, m := range history[start:] {
		out = append(out, m.UserText)
	}
	return out
}

func classifierInput(message string, history []*session.ChatMessage) string {
	turns := contextTurns(history)
	if len(turns) == 0 {
		return message
	}
	var b strings.Builder
	b.WriteString("Earlier messages from the student:\n")
	for _, t := range turns {
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteString("\n")
	}
	b.WriteString("\nLatest message:\n")
	b.WriteString(message)
	return b.String()
}
