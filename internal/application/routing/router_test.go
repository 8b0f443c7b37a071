package routing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorhub/tutor-hub/config"
	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/domain/session"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/llm"
)

func testCatalog(t *testing.T) *config.Catalog {
	t.Helper()
	c, err := config.LoadCatalog("")
	require.NoError(t, err)
	return c
}

type fakeClassifier struct {
	result  ModelClassification
	err     error
	calls   int
	history int
}

func (f *fakeClassifier) Classify(_ context.Context, _ string, h []*session.ChatMessage) (ModelClassification, error) {
	f.calls++
	f.history = len(h)
	return f.result, f.err
}

type gate map[string]bool

func (g gate) IsEnabled(name, _ string) bool { return g[name] }

func TestRoute_StressBeatsDeclaredSubject(t *testing.T) {
	r := NewRouter(testCatalog(t))

	sel := r.Route(context.Background(), RouteInput{
		Message:         "I'm so stressed about my algebra test, I can't do this",
		DeclaredSubject: "math",
	})

	assert.Equal(t, session.TagSupport, sel.Tag)
	assert.Equal(t, SourceStress, sel.Source)
	assert.Equal(t, session.MoodStressed, sel.Mood)
	assert.Equal(t, "math", sel.Subject)
}

func TestRoute_StressInflectedForms(t *testing.T) {
	r := NewRouter(testCatalog(t))

	messages := []string{
		"This algebra homework is overwhelming",
		"I'm stressing out about the quiz",
		"exams are so stressful",
		"I can’t cope with this anymore",
		"I'm panicking, the test is tomorrow",
	}
	for _, msg := range messages {
		t.Run(msg, func(t *testing.T) {
			sel := r.Route(context.Background(), RouteInput{Message: msg, DeclaredSubject: "math"})
			assert.Equal(t, session.TagSupport, sel.Tag)
			assert.Equal(t, SourceStress, sel.Source)
		})
	}
}

func TestRoute_StressIsWordBounded(t *testing.T) {
	r := NewRouter(testCatalog(t))

	// "distress" contains "stress" but is not the word.
	sel := r.Route(context.Background(), RouteInput{Message: "the ship sent a distress signal about its velocity"})
	assert.Equal(t, session.SubjectTag("physics"), sel.Tag)
}

func TestRoute_DeclaredSubject(t *testing.T) {
	r := NewRouter(testCatalog(t))

	sel := r.Route(context.Background(), RouteInput{Message: "can you help me with this?", DeclaredSubject: " Physics "})
	assert.Equal(t, session.SubjectTag("physics"), sel.Tag)
	assert.Equal(t, "physics", sel.Subject)
	assert.Equal(t, SourceDeclared, sel.Source)
}

func TestRoute_UnregisteredDeclaredSubjectIsIgnored(t *testing.T) {
	r := NewRouter(testCatalog(t))

	sel := r.Route(context.Background(), RouteInput{Message: "what is a metaphor", DeclaredSubject: "astrology"})
	assert.Equal(t, session.SubjectTag("english"), sel.Tag)
	assert.Equal(t, SourceLexical, sel.Source)
}

func TestRoute_Lexical(t *testing.T) {
	r := NewRouter(testCatalog(t))

	sel := r.Route(context.Background(), RouteInput{Message: "How do I solve this quadratic equation? It's due tomorrow"})
	assert.Equal(t, session.SubjectTag("math"), sel.Tag)
	assert.Equal(t, SourceLexical, sel.Source)
	assert.Equal(t, "Algebra", sel.Topic)
	assert.Equal(t, session.UrgencyHigh, sel.Urgency)
}

func TestRoute_LexicalTieGoesToCatalogOrder(t *testing.T) {
	c, err := config.ParseCatalog([]byte(`
subjects:
  - name: biology
    keywords: [cell]
    persona: b
  - name: physics
    keywords: [battery]
    persona: p
support_persona: s
general_persona: g
`))
	require.NoError(t, err)
	r := NewRouter(c)

	sel := r.Route(context.Background(), RouteInput{Message: "a battery cell"})
	assert.Equal(t, session.SubjectTag("biology"), sel.Tag)

	sel = r.Route(context.Background(), RouteInput{Message: "battery, battery"})
	assert.Equal(t, session.SubjectTag("physics"), sel.Tag)
}

func TestRoute_ModelClassification(t *testing.T) {
	fc := &fakeClassifier{result: ModelClassification{Subject: "chemistry", Topic: "Combustion", Mood: session.MoodConfused, Urgency: session.UrgencyMedium}}
	r := NewRouter(testCatalog(t), WithClassifier(fc))

	sel := r.Route(context.Background(), RouteInput{Message: "why does wood burn?"})
	assert.Equal(t, session.SubjectTag("chemistry"), sel.Tag)
	assert.Equal(t, SourceModel, sel.Source)
	assert.Equal(t, "Combustion", sel.Topic)
	assert.Equal(t, session.MoodConfused, sel.Mood)
	assert.Equal(t, session.UrgencyMedium, sel.Urgency)
	assert.Equal(t, 1, fc.calls)
}

func TestRoute_ModelStressedMoodRoutesToSupport(t *testing.T) {
	fc := &fakeClassifier{result: ModelClassification{Subject: "math", Mood: session.MoodStressed}}
	r := NewRouter(testCatalog(t), WithClassifier(fc))

	sel := r.Route(context.Background(), RouteInput{Message: "everything is falling apart"})
	assert.Equal(t, session.TagSupport, sel.Tag)
	assert.Equal(t, SourceStress, sel.Source)
}

func TestRoute_ModelGeneral(t *testing.T) {
	fc := &fakeClassifier{result: ModelClassification{Subject: GeneralSubject, Mood: session.MoodNeutral}}
	r := NewRouter(testCatalog(t), WithClassifier(fc))

	sel := r.Route(context.Background(), RouteInput{Message: "hello there"})
	assert.Equal(t, session.TagGeneral, sel.Tag)
	assert.Equal(t, SourceModel, sel.Source)
}

func TestRoute_ModelFailureFallsBackToGeneral(t *testing.T) {
	fc := &fakeClassifier{err: errors.New("backend down")}
	r := NewRouter(testCatalog(t), WithClassifier(fc))

	sel := r.Route(context.Background(), RouteInput{Message: "hello there"})
	assert.Equal(t, session.TagGeneral, sel.Tag)
	assert.Equal(t, SourceFallback, sel.Source)
}

func TestRoute_ModelStageIsFeatureGated(t *testing.T) {
	fc := &fakeClassifier{result: ModelClassification{Subject: "math"}}
	r := NewRouter(testCatalog(t), WithClassifier(fc), WithFeatureGate(gate{}))

	sel := r.Route(context.Background(), RouteInput{Message: "hello there"})
	assert.Equal(t, session.TagGeneral, sel.Tag)
	assert.Equal(t, 0, fc.calls)
}

func TestRoute_HistoryIsCapped(t *testing.T) {
	fc := &fakeClassifier{result: ModelClassification{Subject: GeneralSubject}}
	r := NewRouter(testCatalog(t), WithClassifier(fc), WithHistoryLimit(4))

	history := make([]*session.ChatMessage, 9)
	for i := range history {
		history[i] = &session.ChatMessage{UserText: "hi", Handler: session.TagGeneral}
	}
	r.Route(context.Background(), RouteInput{Message: "hello", History: history})
	assert.Equal(t, 4, fc.history)
}

func TestRoute_EmptyMessage(t *testing.T) {
	r := NewRouter(testCatalog(t))
	sel := r.Route(context.Background(), RouteInput{Message: "   "})
	assert.Equal(t, session.TagGeneral, sel.Tag)
	assert.Equal(t, SourceFallback, sel.Source)
	assert.NotEmpty(t, sel.Note)
}

func TestRoute_DifficultyFromProfile(t *testing.T) {
	r := NewRouter(testCatalog(t))
	sel := r.Route(context.Background(), RouteInput{
		Message: "explain momentum",
		Profile: profile.Snapshot{StudentID: "s1", GradeLevel: "Grade 9"},
	})
	assert.Equal(t, session.DifficultyHigh, sel.Difficulty)
}

func TestDifficultyForGrade(t *testing.T) {
	tests := []struct {
		grade string
		want  session.Difficulty
	}{
		{"", ""},
		{"4", session.DifficultyElementary},
		{"grade 7", session.DifficultyMiddle},
		{"10th", session.DifficultyHigh},
		{"College", session.DifficultyAdvanced},
		{"unknown", ""},
	}
	for _, tt := range tests {
		t.Run(tt.grade, func(t *testing.T) {
			assert.Equal(t, tt.want, DifficultyForGrade(tt.grade))
		})
	}
}

func TestModelClassifier_ValidatesAndCaches(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{
		Text: `{"subject":"physics","topic":"Friction","difficulty":"middle_school","urgency":"low","mood":"excited"}`,
	})
	cache, err := NewClassificationCache(0)
	require.NoError(t, err)
	defer cache.Close()

	mc := NewModelClassifier(mock, []string{"math", "physics"}, 0, cache)

	got, err := mc.Classify(context.Background(), "Why do tyres  GRIP the road?", nil)
	require.NoError(t, err)
	assert.Equal(t, ModelClassification{Subject: "physics", Topic: "Friction", Difficulty: session.DifficultyMiddle, Urgency: session.UrgencyLow, Mood: session.MoodExcited}, got)

	cache.Wait()
	again, err := mc.Classify(context.Background(), "why do tyres grip the road?", nil)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, 1, mock.CallCount())

	req, _ := mock.LastCall()
	assert.Contains(t, req.System, "math, physics, general")
	assert.Equal(t, "message-classification", req.Schema.Name)
}

func TestModelClassifier_RejectsValuesOutsideEnum(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{
		Text: `{"subject":"astrology","topic":"","difficulty":"advanced","urgency":"low","mood":"neutral"}`,
	})
	mc := NewModelClassifier(mock, []string{"math"}, 0, nil)

	_, err := mc.Classify(context.Background(), "what is my sign", nil)
	assert.True(t, llm.IsInvalidResponse(err))
}

func TestModelClassifier_ParseDefaults(t *testing.T) {
	mc := NewModelClassifier(llm.NewMockProvider(), []string{"math"}, 0, nil)
	got := mc.parse(rawClassification{Subject: "History", Mood: "sleepy", Urgency: "??"})
	assert.Equal(t, GeneralSubject, got.Subject)
	assert.Equal(t, session.MoodNeutral, got.Mood)
	assert.Equal(t, session.UrgencyLow, got.Urgency)
	assert.Empty(t, got.Difficulty)
}

func TestModelClassifier_IncludesRecentTurns(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{
		Text: `{"subject":"math","topic":"","difficulty":"advanced","urgency":"low","mood":"neutral"}`,
	})
	mc := NewModelClassifier(mock, []string{"math"}, 0, nil)
	history := []*session.ChatMessage{{UserText: "first"}, {UserText: "second"}, {UserText: "third"}, {UserText: "fourth"}}

	_, err := mc.Classify(context.Background(), "and now?", history)
	require.NoError(t, err)

	req, _ := mock.LastCall()
	content := req.Messages[0].Content
	assert.NotContains(t, content, "first")
	assert.Contains(t, content, "fourth")
	assert.Contains(t, content, "and now?")
}

func TestLexicon_Mood(t *testing.T) {
	l := NewLexicon(testCatalog(t))
	assert.Equal(t, session.MoodConfused, l.Mood("I'm totally lost here"))
	assert.Equal(t, session.MoodFrustrated, l.Mood("ugh, I'm confused and frustrated"))
	assert.Equal(t, session.MoodStressed, l.Mood("I'm freaking out"))
	assert.Equal(t, session.MoodNeutral, l.Mood("what is a noun"))
}

func TestCacheKey_Normalizes(t *testing.T) {
	assert.Equal(t, CacheKey("Hello   World", ""), CacheKey(" hello world ", ""))
	assert.NotEqual(t, CacheKey("hello", ""), CacheKey("hello", "context"))
}

func TestCacheKey_LongMessagesDiffer(t *testing.T) {
	prefix := strings.Repeat("a", 600)
	assert.NotEqual(t, CacheKey(prefix+" one", ""), CacheKey(prefix+" two", ""))
}

func TestLexicon_StemKeywords(t *testing.T) {
	c := testCatalog(t)
	c.StressKeywords = []string{"overwhelm*", "*"}
	l := NewLexicon(c)

	assert.True(t, l.IsStressed("I feel overwhelmed"))
	assert.True(t, l.IsStressed("Overwhelm is the word"))
	assert.False(t, l.IsStressed("nothing to see"))
}
