package command

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tutorhub/tutor-hub/config"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/llm"
	"github.com/tutorhub/tutor-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GENERATE PRACTICE TEST COMMAND
// A short quiz generated by the model as schema-validated JSON.
// ══════════════════════════════════════════════════════════════════════════════

// Practice test bounds and vocabularies.
const (
	DefaultMinQuestions = 5
	DefaultMaxQuestions = 20
)

var (
	practiceDifficulties = []string{"easy", "medium", "hard"}
	questionTypes        = []string{"multiple_choice", "short_answer", "true_false"}
)

// GeneratePracticeCommand requests a practice test.
type GeneratePracticeCommand struct {
	StudentID     string
	Subject       string
	Topics        []string
	Difficulty    string
	QuestionCount int
}

// PracticeQuestion is one generated question.
type PracticeQuestion struct {
	QuestionText  string   `json:"question_text"`
	QuestionType  string   `json:"question_type"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// PracticeTest is the generated test.
type PracticeTest struct {
	TestID      string             `json:"test_id"`
	StudentID   string             `json:"student_id,omitempty"`
	Subject     string             `json:"subject"`
	Topics      []string           `json:"topics"`
	Difficulty  string             `json:"difficulty"`
	Questions   []PracticeQuestion `json:"questions"`
	GeneratedAt time.Time          `json:"generated_at"`
}

type practiceSheet struct {
	Questions []PracticeQuestion `json:"questions"`
}

// GeneratePracticeConfig contains configuration for the handler.
type GeneratePracticeConfig struct {
	MinQuestions int
	MaxQuestions int
	MaxTokens    int
}

// GeneratePracticeHandler handles GeneratePracticeCommand.
type GeneratePracticeHandler struct {
	provider llm.Provider
	catalog  *config.Catalog
	flags    interface{ IsEnabled(name, studentID string) bool }
	cfg      GeneratePracticeConfig
	log      *logger.Logger
	newID    func() string
	now      func() time.Time
}

// NewGeneratePracticeHandler creates a GeneratePracticeHandler. flags may be nil.
func NewGeneratePracticeHandler(
	provider llm.Provider,
	catalog *config.Catalog,
	flags interface{ IsEnabled(name, studentID string) bool },
	cfg GeneratePracticeConfig,
	log *logger.Logger,
) *GeneratePracticeHandler {
	if cfg.MinQuestions <= 0 {
		cfg.MinQuestions = DefaultMinQuestions
	}
	if cfg.MaxQuestions < cfg.MinQuestions {
		cfg.MaxQuestions = max(DefaultMaxQuestions, cfg.MinQuestions)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GeneratePracticeHandler{
		provider: provider,
		catalog:  catalog,
		flags:    flags,
		cfg:      cfg,
		log:      log.With(logger.Component("practice")),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Validate normalizes and checks the command against the handler's limits.
func (h *GeneratePracticeHandler) validate(cmd *GeneratePracticeCommand) error {
	cmd.Subject = string(shared.NormalizeSubject(cmd.Subject))
	if !h.catalog.Has(cmd.Subject) {
		return shared.NewDomainError("practice", "Generate", shared.ErrInvalidInput,
			fmt.Sprintf("unknown subject %q", cmd.Subject))
	}
	cmd.Difficulty = strings.ToLower(strings.TrimSpace(cmd.Difficulty))
	if cmd.Difficulty == "" {
		cmd.Difficulty = "medium"
	}
	if !slices.Contains(practiceDifficulties, cmd.Difficulty) {
		return shared.NewDomainError("practice", "Generate", shared.ErrInvalidInput,
			"difficulty must be one of easy, medium, hard")
	}
	if cmd.QuestionCount < h.cfg.MinQuestions || cmd.QuestionCount > h.cfg.MaxQuestions {
		return shared.NewDomainError("practice", "Generate", shared.ErrValueOutOfRange,
			fmt.Sprintf("question_count must be between %d and %d", h.cfg.MinQuestions, h.cfg.MaxQuestions))
	}
	topics := make([]string, 0, len(cmd.Topics))
	for _, t := range cmd.Topics {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	cmd.Topics = topics
	return nil
}

// Handle executes the command.
func (h *GeneratePracticeHandler) Handle(ctx context.Context, cmd GeneratePracticeCommand) (*PracticeTest, error) {
	if h.flags != nil && !h.flags.IsEnabled(config.FeaturePracticeTests, cmd.StudentID) {
		return nil, shared.NewDomainError("practice", "Generate", shared.ErrForbidden, "practice tests are disabled")
	}
	if err := h.validate(&cmd); err != nil {
		return nil, err
	}

	entry, _ := h.catalog.Subject(cmd.Subject)
	sheet, err := llm.GenerateJSON[practiceSheet](llm.WithPurpose(ctx, llm.PurposePractice), h.provider, llm.Request{
		System:    practicePrompt(entry, cmd),
		Messages:  llm.UserTurn(fmt.Sprintf("Create %d %s questions.", cmd.QuestionCount, cmd.Difficulty)),
		Schema:    practiceSchema(cmd.QuestionCount),
		MaxTokens: h.cfg.MaxTokens,
	})
	if err != nil {
		h.log.Warn("practice generation failed", logger.Subject(cmd.Subject), logger.Err(err))
		return nil, shared.WrapError("practice", "Generate", shared.ErrGenerationFailure, "practice test could not be generated", err)
	}

	questions, err := checkQuestions(sheet.Questions, cmd.QuestionCount)
	if err != nil {
		return nil, shared.WrapError("practice", "Generate", shared.ErrGenerationFailure, "practice test was malformed", err)
	}

	return &PracticeTest{
		TestID:      h.newID(),
		StudentID:   cmd.StudentID,
		Subject:     cmd.Subject,
		Topics:      cmd.Topics,
		Difficulty:  cmd.Difficulty,
		Questions:   questions,
		GeneratedAt: h.now().UTC(),
	}, nil
}

// checkQuestions enforces what the schema cannot: multiple choice answers
// must be one of the options.
func checkQuestions(qs []PracticeQuestion, want int) ([]PracticeQuestion, error) {
	if len(qs) < want {
		return nil, fmt.Errorf("got %d questions, want %d", len(qs), want)
	}
	qs = qs[:want]
	for i, q := range qs {
		switch q.QuestionType {
		case "multiple_choice":
			if len(q.Options) < 2 || !slices.Contains(q.Options, q.CorrectAnswer) {
				return nil, fmt.Errorf("question %d: correct answer is not among the options", i+1)
			}
		case "true_false":
			qs[i].Options = []string{"True", "False"}
		default:
			qs[i].Options = nil
		}
	}
	return qs, nil
}

func practicePrompt(entry config.SubjectEntry, cmd GeneratePracticeCommand) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You write practice tests for %s students.\n", entry.DisplayName)
	if len(cmd.Topics) > 0 {
		fmt.Fprintf(&b, "Cover these topics: %s.\n", strings.Join(cmd.Topics, ", "))
	} else if len(entry.Topics) > 0 {
		fmt.Fprintf(&b, "Pick topics from: %s.\n", strings.Join(entry.Topics, ", "))
	}
	fmt.Fprintf(&b, "Difficulty: %s.\n", cmd.Difficulty)
	b.WriteString("Mix question types. Multiple choice questions have four options and the correct answer is copied exactly from the options. ")
	b.WriteString("Every question has a one or two sentence explanation.")
	return b.String()
}

func practiceSchema(count int) *llm.Schema {
	return &llm.Schema{
		// compiled schemas are cached by name
		Name:        fmt.Sprintf("practice-test-%d", count),
		Description: "A list of practice questions",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"questions": map[string]any{
					"type":     "array",
					"minItems": count,
					"maxItems": count,
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"question_text":  map[string]any{"type": "string", "minLength": 1},
							"question_type":  map[string]any{"type": "string", "enum": questionTypes},
							"options":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
							"correct_answer": map[string]any{"type": "string", "minLength": 1},
							"explanation":    map[string]any{"type": "string"},
						},
						"required":             []string{"question_text", "question_type", "options", "correct_answer", "explanation"},
						"additionalProperties": false,
					},
				},
			},
			"required":             []string{"questions"},
			"additionalProperties": false,
		},
	}
}
