package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorhub/tutor-hub/pkg/circuitbreaker"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

var testSchema = &Schema{
	Name: "test-verdict",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"verdict": map[string]any{"type": "string", "enum": []string{"yes", "no"}},
		},
		"required":             []string{"verdict"},
		"additionalProperties": false,
	},
}

func TestMockProvider_FIFOAndCalls(t *testing.T) {
	m := NewMockProvider(MockResponse{Text: "first"}, MockResponse{Text: "second"})

	r1, err := m.Generate(context.Background(), Request{Messages: UserTurn("a")})
	require.NoError(t, err)
	r2, err := m.Generate(context.Background(), Request{Messages: UserTurn("b")})
	require.NoError(t, err)

	assert.Equal(t, "first", r1.Text)
	assert.Equal(t, "second", r2.Text)
	assert.Equal(t, 2, m.CallCount())
	last, ok := m.LastCall()
	require.True(t, ok)
	assert.Equal(t, "b", last.Messages[0].Content)

	_, err = m.Generate(context.Background(), Request{})
	assert.True(t, IsUnavailable(err))
}

func TestEchoProvider(t *testing.T) {
	p := NewEchoProvider()
	text, err := GenerateText(context.Background(), p, Request{Messages: UserTurn("what is 2+2")})
	require.NoError(t, err)
	assert.Contains(t, text, "what is 2+2")

	_, err = p.Generate(context.Background(), Request{Schema: testSchema})
	assert.True(t, IsUnavailable(err))
}

func TestGenerateText_EmptyReply(t *testing.T) {
	m := NewMockProvider(MockResponse{Text: "   "})
	_, err := GenerateText(context.Background(), m, Request{})
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestGenerateJSON(t *testing.T) {
	type verdict struct {
		Verdict string `json:"verdict"`
	}
	m := NewMockProvider(
		MockResponse{Text: `{"verdict":"yes"}`},
		MockResponse{Text: `{"verdict":"maybe"}`},
		MockResponse{Text: `not json`},
	)

	v, err := GenerateJSON[verdict](context.Background(), m, Request{Schema: testSchema})
	require.NoError(t, err)
	assert.Equal(t, "yes", v.Verdict)

	_, err = GenerateJSON[verdict](context.Background(), m, Request{Schema: testSchema})
	assert.True(t, IsInvalidResponse(err))

	_, err = GenerateJSON[verdict](context.Background(), m, Request{Schema: testSchema})
	assert.True(t, IsInvalidResponse(err))

	_, err = GenerateJSON[verdict](context.Background(), m, Request{})
	assert.Error(t, err)
}

func TestGuard_TimeoutBecomesUnavailable(t *testing.T) {
	slow := &funcProvider{fn: func(ctx context.Context, _ Request) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	g := WithGuard(slow, nil, 10*time.Millisecond, quietLog)

	_, err := g.Generate(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGuard_BreakerOpensOnOutages(t *testing.T) {
	calls := 0
	down := &funcProvider{fn: func(context.Context, Request) (*Response, error) {
		calls++
		return nil, &ErrProviderUnavailable{Err: errors.New("503")}
	}}
	cb := circuitbreaker.New("test",
		circuitbreaker.WithFailureThreshold(2),
		circuitbreaker.WithTimeout(time.Hour),
		circuitbreaker.WithIsFailure(IsBreakerFailure))
	g := WithGuard(down, cb, 0, quietLog)

	for i := 0; i < 3; i++ {
		_, err := g.Generate(context.Background(), Request{})
		assert.True(t, IsUnavailable(err))
	}
	assert.Equal(t, 2, calls)
	assert.True(t, cb.IsOpen())
}

func TestGuard_InvalidOutputDoesNotTripBreaker(t *testing.T) {
	m := NewMockProvider(
		MockResponse{Text: `{}`},
		MockResponse{Text: `{}`},
	)
	cb := circuitbreaker.New("test",
		circuitbreaker.WithFailureThreshold(1),
		circuitbreaker.WithIsFailure(IsBreakerFailure))
	g := WithGuard(m, cb, 0, quietLog)

	for i := 0; i < 2; i++ {
		_, err := g.Generate(context.Background(), Request{Schema: testSchema})
		assert.True(t, IsInvalidResponse(err))
	}
	assert.False(t, cb.IsOpen())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{Provider: "mock"}.Validate())
	assert.Error(t, Config{Provider: "gemini"}.Validate())
	assert.Error(t, Config{Provider: "anthropic"}.Validate())
	assert.Error(t, Config{Provider: "openai"}.Validate())
	assert.Error(t, Config{Provider: "llama"}.Validate())
}

func TestNewProvider_Mock(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Provider: "mock", Timeout: time.Second}, quietLog)
	require.NoError(t, err)
	assert.Equal(t, "mock", p.ModelID())
}

func TestResolveModel(t *testing.T) {
	assert.Equal(t, "gemini-2.0-flash", resolveModel("gemini-flash", geminiModels))
	assert.Equal(t, "custom-model", resolveModel("custom-model", geminiModels))
}

func TestBuildGeminiSchema(t *testing.T) {
	s := buildGeminiSchema(testSchema.Definition)
	require.Contains(t, s.Properties, "verdict")
	assert.Equal(t, []string{"yes", "no"}, s.Properties["verdict"].Enum)
	assert.Equal(t, []string{"verdict"}, s.Required)
}

func TestPurpose(t *testing.T) {
	assert.Equal(t, "unknown", PurposeFrom(context.Background()))
	assert.Equal(t, PurposeReply, PurposeFrom(WithPurpose(context.Background(), PurposeReply)))
}

type funcProvider struct {
	fn func(ctx context.Context, req Request) (*Response, error)
}

func (f *funcProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	return f.fn(ctx, req)
}

func (f *funcProvider) ModelID() string { return "func" }
