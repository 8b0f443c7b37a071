package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "mock")
	t.Setenv("ENV_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, 10, cfg.Tutor.HistoryLimit)
	assert.Equal(t, 5, cfg.Tutor.XPPerMessage)
	assert.Equal(t, 10, cfg.Tutor.AlertWindow)
	assert.Equal(t, 3, cfg.Tutor.LowActivityThreshold)
	assert.Equal(t, 3, cfg.Tutor.ActiveDays)
	assert.Equal(t, "math", cfg.Tutor.FallbackSubject)
	assert.Equal(t, "0 16 * * *", cfg.Scheduler.DailyPracticeCron)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.False(t, cfg.UsesPostgres())
	assert.True(t, cfg.Catalog.Has("math"))
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LLM_PROVIDER=mock\nTUTOR_XP_PER_MESSAGE=7\nHTTP_PORT=9999\n"), 0o600))
	t.Setenv("ENV_FILE", path)

	// godotenv never overrides variables that are already set.
	t.Setenv("HTTP_PORT", "8081")
	defer os.Unsetenv("LLM_PROVIDER")
	defer os.Unsetenv("TUTOR_XP_PER_MESSAGE")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Tutor.XPPerMessage)
	assert.Equal(t, 8081, cfg.HTTP.Port)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "nope.env"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_CollectsErrors(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TUTOR_HISTORY_LIMIT", "0")
	t.Setenv("ENV_FILE", "")

	_, err := Load()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "DATABASE_URL is required in production")
	assert.Contains(t, msg, "ANTHROPIC_API_KEY is required")
	assert.Contains(t, msg, "TUTOR_HISTORY_LIMIT must be positive")
}

func TestValidate_UnknownFallbackSubject(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "mock")
	t.Setenv("TUTOR_FALLBACK_SUBJECT", "astrology")
	t.Setenv("ENV_FILE", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "astrology")
}

func TestDefaultCatalog(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	assert.Equal(t, []string{"math", "physics", "chemistry", "english"}, c.SubjectNames())
	math, ok := c.Subject(" MATH ")
	require.True(t, ok)
	assert.Equal(t, "socratic", math.Style)
	assert.Contains(t, math.Topics[0], "Algebra")
	assert.Contains(t, c.StressKeywords, "overwhelm*")
	assert.NotEmpty(t, c.MoodKeywords["confused"])
	assert.NotEmpty(t, c.SupportPersona)
}

func TestParseCatalog_Invalid(t *testing.T) {
	_, err := ParseCatalog([]byte(`
subjects:
  - name: support
    persona: x
  - name: math
    persona: x
  - name: Math
    persona: x
support_persona: s
general_persona: g
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"support" is reserved`)
	assert.Contains(t, err.Error(), `duplicate subject "math"`)

	_, err = ParseCatalog([]byte("subjects: ["))
	assert.Error(t, err)
}

func TestFeatureFlags(t *testing.T) {
	t.Setenv("FEATURE_ROUTING_MODEL_CLASSIFIER", "false")
	t.Setenv("FEATURE_PRACTICE_TESTS", "0")
	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled(FeatureModelClassifier, ""))
	assert.False(t, ff.IsEnabled(FeaturePracticeTests, "stu-1"))
	assert.True(t, ff.IsEnabled(FeatureDailyPractice, "stu-1"))
	assert.False(t, ff.IsEnabled("unknown.feature", ""))

	ff.SetStudentOverride("stu-1", FeatureModelClassifier, true)
	assert.True(t, ff.IsEnabled(FeatureModelClassifier, "stu-1"))
	assert.False(t, ff.IsEnabled(FeatureModelClassifier, "stu-2"))

	require.NoError(t, ff.SetRolloutPercent(FeatureSupportAlerts, 50))
	first := ff.IsEnabled(FeatureSupportAlerts, "stu-9")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ff.IsEnabled(FeatureSupportAlerts, "stu-9"))
	}

	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureSupportAlerts, 101), ErrInvalidRolloutPercent)
	assert.ErrorIs(t, ff.EnableFeature("nope"), ErrFeatureNotFound)

	var nilFlags *FeatureFlags
	assert.True(t, nilFlags.IsEnabled(FeatureDailyPractice, "x"))
}
