package alerting

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorhub/tutor-hub/config"
	"github.com/tutorhub/tutor-hub/internal/domain/alert"
	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/domain/session"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/messaging"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/persistence/memory"
)

type fixture struct {
	engine *Engine
	store  *memory.Store
	rec    *messaging.Recorder
	seq    int
}

func newFixture(t *testing.T, flags FeatureGate) *fixture {
	t.Helper()
	store := memory.New()
	rec := &messaging.Recorder{}
	f := &fixture{
		engine: NewEngine(store.Profiles, store.Sessions, store.Alerts, rec, flags, DefaultConfig(), nil),
		store:  store,
		rec:    rec,
	}
	return f
}

func (f *fixture) student(t *testing.T, id, teacher string) {
	t.Helper()
	ctx := context.Background()
	p, err := profile.NewStudentProfile(profile.NewStudentParams{ID: id, DisplayName: "Ann", TeacherID: teacher})
	require.NoError(t, err)
	require.NoError(t, f.store.Profiles.Create(ctx, p))
	cs, err := session.NewChatSession("sess-"+id, id, "Ann", "")
	require.NoError(t, err)
	require.NoError(t, f.store.Sessions.CreateSession(ctx, cs))
}

func (f *fixture) message(t *testing.T, studentID string, tag session.HandlerTag) {
	t.Helper()
	f.seq++
	m, err := session.NewChatMessage(session.NewMessageParams{
		ID:        fmt.Sprintf("m%d", f.seq),
		SessionID: "sess-" + studentID,
		StudentID: studentID,
		UserText:  "hello",
		Handler:   tag,
		At:        time.Now().Add(time.Duration(f.seq) * time.Millisecond),
	})
	require.NoError(t, err)
	require.NoError(t, f.store.Sessions.AppendMessage(context.Background(), m))
}

func TestEvaluate_InactiveRaisedOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.student(t, "s1", "t1")
	f.message(t, "s1", session.TagGeneral)
	ctx := context.Background()

	a, err := f.engine.Evaluate(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, alert.KindInactive, a.Kind)
	assert.Equal(t, "t1", a.TeacherID)
	assert.False(t, a.IsRead)

	again, err := f.engine.Evaluate(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, again)

	list, err := f.store.Alerts.ListForTeacher(ctx, "t1", false, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, f.rec.Count(shared.EventAlertRaised))
}

func TestEvaluate_ReadClearsBarrier(t *testing.T) {
	f := newFixture(t, nil)
	f.student(t, "s1", "t1")
	ctx := context.Background()

	first, err := f.engine.Evaluate(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, first)

	_, err = f.engine.MarkRead(ctx, first.ID)
	require.NoError(t, err)

	second, err := f.engine.Evaluate(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestEvaluate_NoTeacherNoAlert(t *testing.T) {
	f := newFixture(t, nil)
	f.student(t, "s1", "")

	a, err := f.engine.Evaluate(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, a)

	a, err = f.engine.Evaluate(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestEvaluate_ActiveStudentNoAlert(t *testing.T) {
	f := newFixture(t, nil)
	f.student(t, "s1", "t1")
	for i := 0; i < 3; i++ {
		f.message(t, "s1", session.SubjectTag("math"))
	}

	a, err := f.engine.Evaluate(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestEvaluate_NeedsAttention(t *testing.T) {
	f := newFixture(t, nil)
	f.student(t, "s1", "t1")
	for i := 0; i < 3; i++ {
		f.message(t, "s1", session.TagSupport)
	}

	a, err := f.engine.Evaluate(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, alert.KindNeedsAttention, a.Kind)
	assert.Contains(t, a.Description, "3 of their last 3")
}

func TestEvaluate_SupportRuleBehindFlag(t *testing.T) {
	flags := config.NewFeatureFlags()
	require.NoError(t, flags.DisableFeature(config.FeatureSupportAlerts))
	f := newFixture(t, flags)
	f.student(t, "s1", "t1")
	for i := 0; i < 3; i++ {
		f.message(t, "s1", session.TagSupport)
	}

	a, err := f.engine.Evaluate(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, a)
}

type conflictingAlerts struct {
	*memory.AlertStore
}

func (c conflictingAlerts) Insert(context.Context, *alert.Alert) error { return shared.ErrAlertExists }

func TestEvaluate_InsertConflictMeansPresent(t *testing.T) {
	store := memory.New()
	engine := NewEngine(store.Profiles, store.Sessions, conflictingAlerts{store.Alerts}, nil, nil, DefaultConfig(), nil)
	p, _ := profile.NewStudentProfile(profile.NewStudentParams{ID: "s1", TeacherID: "t1"})
	require.NoError(t, store.Profiles.Create(context.Background(), p))

	a, err := engine.Evaluate(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestEvaluateAll(t *testing.T) {
	f := newFixture(t, nil)
	f.student(t, "s1", "t1")
	f.student(t, "s2", "t1")
	f.student(t, "s3", "")

	raised, failed, err := f.engine.EvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, raised)
	assert.Zero(t, failed)

	raised, _, err = f.engine.EvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, raised)
}
