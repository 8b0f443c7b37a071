package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorhub/tutor-hub/config"
	"github.com/tutorhub/tutor-hub/internal/application/engagement"
	"github.com/tutorhub/tutor-hub/internal/domain/alert"
	"github.com/tutorhub/tutor-hub/internal/domain/notification"
	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/llm"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/messaging"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/persistence/memory"
)

func TestStartSession_CreatesProfileOnce(t *testing.T) {
	store := memory.New()
	rec := &messaging.Recorder{}
	h := NewStartSessionHandler(store.Sessions, store.Profiles, rec, nil)
	ctx := context.Background()

	first, err := h.Handle(ctx, StartSessionCommand{StudentID: "s1", StudentName: "Priya", Subject: "Math", GradeLevel: "9"})
	require.NoError(t, err)
	assert.True(t, first.ProfileCreated)
	assert.Equal(t, "math", first.Session.Subject)
	assert.Equal(t, "Priya", first.Session.StudentName)

	second, err := h.Handle(ctx, StartSessionCommand{StudentID: "s1"})
	require.NoError(t, err)
	assert.False(t, second.ProfileCreated)
	assert.Equal(t, "Priya", second.Session.StudentName)
	assert.NotEqual(t, first.Session.ID, second.Session.ID)

	p, err := store.Profiles.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "9", p.GradeLevel)
	assert.Equal(t, 2, rec.Count(shared.EventSessionStarted))
}

func TestStartSession_Anonymous(t *testing.T) {
	store := memory.New()
	h := NewStartSessionHandler(store.Sessions, store.Profiles, nil, nil)

	res, err := h.Handle(context.Background(), StartSessionCommand{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Session.StudentID, "anon-"))
	assert.Equal(t, "Student", res.Profile.DisplayName)
}

func TestUpdateProfile(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	p, _ := profile.NewStudentProfile(profile.NewStudentParams{ID: "s1"})
	require.NoError(t, store.Profiles.Create(ctx, p))
	h := NewUpdateProfileHandler(store.Profiles, store.Teachers, nil)

	teacher := "t1"
	name := "Priya"
	got, err := h.Handle(ctx, UpdateProfileCommand{StudentID: "s1", Update: profile.ProfileUpdate{
		DisplayName:      &name,
		TeacherID:        &teacher,
		SubjectInterests: []string{"Math", "math", " physics "},
	}})
	require.NoError(t, err)
	assert.Equal(t, "Priya", got.DisplayName)
	assert.Equal(t, "t1", got.TeacherID)
	assert.Equal(t, []string{"math", "physics"}, got.SubjectInterests)

	_, err = store.Teachers.GetTeacher(ctx, "t1")
	assert.NoError(t, err, "assigning a teacher registers it")

	_, err = h.Handle(ctx, UpdateProfileCommand{StudentID: "s1"})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, UpdateProfileCommand{StudentID: "ghost", Update: profile.ProfileUpdate{DisplayName: &name}})
	assert.True(t, shared.IsNotFound(err))
}

func TestMarkRead(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	a, err := alert.NewAlert(alert.NewAlertParams{ID: "a1", TeacherID: "t1", StudentID: "s1", Kind: alert.KindInactive, Title: "x"})
	require.NoError(t, err)
	require.NoError(t, store.Alerts.Insert(ctx, a))
	n, err := notification.NewNotification(notification.NewNotificationParams{ID: "n1", RecipientID: "s1", Kind: notification.KindSystem, Title: "hi"})
	require.NoError(t, err)
	require.NoError(t, store.Notifications.Insert(ctx, n))

	h := NewMarkReadHandler(store.Alerts, store.Notifications)

	_, err = h.MarkAlert(ctx, MarkAlertReadCommand{AlertID: "a1", TeacherID: "t2"})
	assert.True(t, shared.IsForbidden(err))

	read, err := h.MarkAlert(ctx, MarkAlertReadCommand{AlertID: "a1", TeacherID: "t1"})
	require.NoError(t, err)
	assert.True(t, read.IsRead)

	again, err := h.MarkAlert(ctx, MarkAlertReadCommand{AlertID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, read.ReadAt, again.ReadAt)

	_, err = h.MarkAlert(ctx, MarkAlertReadCommand{AlertID: "nope"})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.MarkNotification(ctx, MarkNotificationReadCommand{NotificationID: "n1", StudentID: "s2"})
	assert.True(t, shared.IsForbidden(err))
	nr, err := h.MarkNotification(ctx, MarkNotificationReadCommand{NotificationID: "n1", StudentID: "s1"})
	require.NoError(t, err)
	assert.True(t, nr.IsRead)
}

type fakeRunner struct {
	ran []string
	err error
}

func (f *fakeRunner) RunNow(_ context.Context, name string) error {
	f.ran = append(f.ran, name)
	return f.err
}

func TestAdmin(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	p, _ := profile.NewStudentProfile(profile.NewStudentParams{ID: "s1"})
	require.NoError(t, store.Profiles.Create(ctx, p))
	runner := &fakeRunner{}
	h := NewAdminHandler(engagement.NewLedger(store.Profiles, nil, nil), runner, nil)

	got, err := h.SetStreak(ctx, SetStreakCommand{StudentID: "s1", Days: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, got.StreakDays)

	got, err = h.CorrectXP(ctx, CorrectXPCommand{StudentID: "s1", XP: 160, Reason: "imported"})
	require.NoError(t, err)
	assert.Equal(t, shared.Level(3), got.Level)

	require.NoError(t, h.RunJob(ctx, "daily_practice"))
	assert.Equal(t, []string{"daily_practice"}, runner.ran)

	_, err = h.SetStreak(ctx, SetStreakCommand{Days: 1})
	assert.ErrorIs(t, err, shared.ErrInvalidStudentID)

	noJobs := NewAdminHandler(engagement.NewLedger(store.Profiles, nil, nil), nil, nil)
	err = noJobs.RunJob(ctx, "daily_practice")
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}

func practiceJSON(n int, mutate func(i int, q map[string]any)) string {
	qs := make([]map[string]any, n)
	for i := range qs {
		qs[i] = map[string]any{
			"question_text":  fmt.Sprintf("What is %d + %d?", i, i),
			"question_type":  "multiple_choice",
			"options":        []string{"0", fmt.Sprint(2 * i), "7", "9"},
			"correct_answer": fmt.Sprint(2 * i),
			"explanation":    "Add the numbers.",
		}
		if mutate != nil {
			mutate(i, qs[i])
		}
	}
	b, _ := json.Marshal(map[string]any{"questions": qs})
	return string(b)
}

func newPracticeHandler(t *testing.T, mock *llm.MockProvider, flags *config.FeatureFlags) *GeneratePracticeHandler {
	t.Helper()
	catalog, err := config.LoadCatalog("")
	require.NoError(t, err)
	h := NewGeneratePracticeHandler(mock, catalog, flags, GeneratePracticeConfig{}, nil)
	h.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }
	return h
}

func TestGeneratePractice(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Text: practiceJSON(5, nil)})
	h := newPracticeHandler(t, mock, nil)

	test, err := h.Handle(context.Background(), GeneratePracticeCommand{
		StudentID: "s1", Subject: "Math", Topics: []string{"Algebra", " "}, Difficulty: "Medium", QuestionCount: 5,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, test.TestID)
	assert.Equal(t, "math", test.Subject)
	assert.Equal(t, "medium", test.Difficulty)
	assert.Equal(t, []string{"Algebra"}, test.Topics)
	require.Len(t, test.Questions, 5)
	assert.Equal(t, "2", test.Questions[1].CorrectAnswer)

	req, ok := mock.LastCall()
	require.True(t, ok)
	require.NotNil(t, req.Schema)
	assert.Contains(t, req.System, "Algebra")
}

func TestGeneratePractice_Validation(t *testing.T) {
	h := newPracticeHandler(t, llm.NewMockProvider(), nil)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  GeneratePracticeCommand
	}{
		{"too few", GeneratePracticeCommand{Subject: "math", QuestionCount: 4}},
		{"too many", GeneratePracticeCommand{Subject: "math", QuestionCount: 21}},
		{"unknown subject", GeneratePracticeCommand{Subject: "astrology", QuestionCount: 5}},
		{"bad difficulty", GeneratePracticeCommand{Subject: "math", Difficulty: "extreme", QuestionCount: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(ctx, tt.cmd)
			assert.True(t, shared.IsValidation(err), "got %v", err)
		})
	}
}

func TestGeneratePractice_Failures(t *testing.T) {
	ctx := context.Background()
	cmd := GeneratePracticeCommand{Subject: "math", QuestionCount: 5}

	t.Run("model down", func(t *testing.T) {
		h := newPracticeHandler(t, llm.NewMockProvider(llm.MockResponse{Err: errors.New("down")}), nil)
		_, err := h.Handle(ctx, cmd)
		assert.True(t, shared.IsGenerationFailure(err))
	})

	t.Run("answer not among options", func(t *testing.T) {
		bad := practiceJSON(5, func(i int, q map[string]any) {
			if i == 2 {
				q["correct_answer"] = "42"
			}
		})
		h := newPracticeHandler(t, llm.NewMockProvider(llm.MockResponse{Text: bad}), nil)
		_, err := h.Handle(ctx, cmd)
		assert.True(t, shared.IsGenerationFailure(err))
	})

	t.Run("wrong count fails schema", func(t *testing.T) {
		h := newPracticeHandler(t, llm.NewMockProvider(llm.MockResponse{Text: practiceJSON(3, nil)}), nil)
		_, err := h.Handle(ctx, cmd)
		assert.True(t, shared.IsGenerationFailure(err))
	})

	t.Run("feature disabled", func(t *testing.T) {
		flags := config.NewFeatureFlags()
		require.NoError(t, flags.DisableFeature(config.FeaturePracticeTests))
		h := newPracticeHandler(t, llm.NewMockProvider(), flags)
		_, err := h.Handle(ctx, cmd)
		assert.True(t, shared.IsForbidden(err))
	})
}

func TestCheckQuestions_NormalizesOptions(t *testing.T) {
	qs := []PracticeQuestion{
		{QuestionText: "Sky is blue", QuestionType: "true_false", CorrectAnswer: "True"},
		{QuestionText: "Name a prime", QuestionType: "short_answer", Options: []string{"x"}, CorrectAnswer: "2"},
	}
	out, err := checkQuestions(qs, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"True", "False"}, out[0].Options)
	assert.Nil(t, out[1].Options)
}
