package query

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorhub/tutor-hub/config"
	"github.com/tutorhub/tutor-hub/internal/domain/alert"
	"github.com/tutorhub/tutor-hub/internal/domain/notification"
	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/domain/session"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/persistence/memory"
)

type fixture struct {
	store   *memory.Store
	catalog *config.Catalog
	sess    *session.ChatSession
}

func newFixture(t *testing.T, interests ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	catalog, err := config.LoadCatalog("")
	require.NoError(t, err)

	store := memory.New()
	p, err := profile.NewStudentProfile(profile.NewStudentParams{ID: "s1", DisplayName: "Ada", SubjectInterests: interests})
	require.NoError(t, err)
	require.NoError(t, store.Profiles.Create(ctx, p))

	s, err := session.NewChatSession("sess-1", "s1", "Ada", "")
	require.NoError(t, err)
	require.NoError(t, store.Sessions.CreateSession(ctx, s))
	return &fixture{store: store, catalog: catalog, sess: s}
}

func (f *fixture) say(t *testing.T, subject string, n int) {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	tag := session.TagGeneral
	if subject != "" {
		tag = session.SubjectTag(subject)
	}
	for i := 0; i < n; i++ {
		m, err := session.NewChatMessage(session.NewMessageParams{
			ID:           fmt.Sprintf("%s-%s-%d", f.sess.ID, subject, i),
			SessionID:    f.sess.ID,
			StudentID:    f.sess.StudentID,
			Subject:      subject,
			UserText:     "question",
			ResponseText: "answer",
			Handler:      tag,
			At:           base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
		require.NoError(t, f.store.Sessions.AppendMessage(context.Background(), m))
	}
}

func TestChat_HistoryAndOwnership(t *testing.T) {
	f := newFixture(t)
	f.say(t, "math", 3)
	h := NewChatHandler(f.store.Sessions)
	ctx := context.Background()

	msgs, err := h.GetHistory(ctx, GetHistoryQuery{SessionID: "sess-1", StudentID: "s1"})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.True(t, msgs[0].Timestamp.Before(msgs[2].Timestamp))
	assert.Equal(t, "subject:math", msgs[0].Handler)

	_, err = h.GetHistory(ctx, GetHistoryQuery{SessionID: "sess-1", StudentID: "intruder"})
	assert.True(t, shared.IsForbidden(err))

	_, err = h.GetSession(ctx, GetSessionQuery{SessionID: "missing"})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.GetSession(ctx, GetSessionQuery{})
	assert.True(t, shared.IsValidation(err))

	dto, err := h.GetSession(ctx, GetSessionQuery{SessionID: "sess-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, dto.TotalMessages)
}

func TestChat_ListSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	older, err := session.NewChatSession("sess-0", "s1", "Ada", "physics")
	require.NoError(t, err)
	older.LastActiveAt = older.LastActiveAt.Add(-time.Hour)
	require.NoError(t, f.store.Sessions.CreateSession(ctx, older))

	list, err := NewChatHandler(f.store.Sessions).ListSessions(ctx, ListSessionsQuery{StudentID: "s1", Limit: 1000})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "sess-1", list[0].ID)
	assert.Equal(t, "sess-0", list[1].ID)
}

func TestWelcome_FirstVisit(t *testing.T) {
	f := newFixture(t)
	h := NewWelcomeHandler(f.store.Sessions, f.store.Profiles, f.catalog)

	w, err := h.Handle(context.Background(), GetWelcomeQuery{SessionID: "sess-1", StudentID: "s1"})
	require.NoError(t, err)
	assert.Contains(t, w.Message, "Hi Ada")
	require.Len(t, w.QuickActions, 4)
	assert.Equal(t, f.catalog.SubjectNames()[0]+"_help", w.QuickActions[0].Action)
	assert.Equal(t, "study_now", w.QuickActions[1].Action)
	assert.Equal(t, "review", w.QuickActions[2].Action)
	assert.Equal(t, "quiz", w.QuickActions[3].Action)
	assert.Equal(t, 1, w.Level)
	assert.Equal(t, "Beginner", w.LevelTitle)
}

func TestWelcome_FavouriteSubject(t *testing.T) {
	t.Run("interest when no history", func(t *testing.T) {
		f := newFixture(t, "chemistry")
		w, err := NewWelcomeHandler(f.store.Sessions, f.store.Profiles, f.catalog).
			Handle(context.Background(), GetWelcomeQuery{SessionID: "sess-1"})
		require.NoError(t, err)
		assert.Equal(t, "chemistry_help", w.QuickActions[0].Action)
	})

	t.Run("history beats interest", func(t *testing.T) {
		f := newFixture(t, "chemistry")
		f.say(t, "physics", 3)
		f.say(t, "math", 1)
		_, err := f.store.Profiles.SetStreak(context.Background(), "s1", 4)
		require.NoError(t, err)

		w, err := NewWelcomeHandler(f.store.Sessions, f.store.Profiles, f.catalog).
			Handle(context.Background(), GetWelcomeQuery{SessionID: "sess-1"})
		require.NoError(t, err)
		assert.Equal(t, "physics_help", w.QuickActions[0].Action)
		assert.Contains(t, w.Message, "Welcome back, Ada")
		assert.Contains(t, w.Message, "4-day streak")
		assert.Equal(t, 4, w.StreakDays)
	})
}

func TestProfile_DTO(t *testing.T) {
	f := newFixture(t)
	f.say(t, "math", 2)
	f.say(t, "physics", 1)
	_, err := f.store.Profiles.ApplyXP(context.Background(), "s1", 60)
	require.NoError(t, err)

	dto, err := NewProfileHandler(f.store.Profiles, f.store.Sessions).Handle(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 60, dto.XP)
	assert.Equal(t, 2, dto.Level)
	assert.Equal(t, 90, dto.XPToNextLevel)
	assert.Equal(t, 3, dto.MessageCount)
	assert.Equal(t, []string{"math", "physics"}, dto.Subjects)

	_, err = NewProfileHandler(f.store.Profiles, f.store.Sessions).Handle(context.Background(), "ghost")
	assert.True(t, shared.IsNotFound(err))
}

func TestInbox(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	for i, kind := range []alert.Kind{alert.KindInactive, alert.KindNeedsAttention} {
		a, err := alert.NewAlert(alert.NewAlertParams{
			ID: fmt.Sprintf("a%d", i), TeacherID: "t1", StudentID: "s1", Kind: kind, Title: string(kind),
		})
		require.NoError(t, err)
		require.NoError(t, store.Alerts.Insert(ctx, a))
	}
	_, err := store.Alerts.MarkRead(ctx, "a0", time.Now())
	require.NoError(t, err)

	n, err := notification.NewNotification(notification.NewNotificationParams{
		ID: "n1", RecipientID: "s1", Kind: notification.KindDailyPractice,
		Title: notification.DailyPracticeTitle("math"), Subject: "math",
	})
	require.NoError(t, err)
	require.NoError(t, store.Notifications.Insert(ctx, n))

	h := NewInboxHandler(store.Alerts, store.Notifications)

	all, err := h.TeacherAlerts(ctx, InboxQuery{RecipientID: "t1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	unread, err := h.TeacherAlerts(ctx, InboxQuery{RecipientID: "t1", UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "needs_attention", unread[0].Kind)

	notes, err := h.StudentNotifications(ctx, InboxQuery{RecipientID: "s1"})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Time for some Math practice!", notes[0].Title)
	assert.NotEmpty(t, notes[0].Day)
}
