package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorhub/tutor-hub/internal/domain/alert"
	"github.com/tutorhub/tutor-hub/internal/domain/notification"
	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/domain/session"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

func seedProfile(t *testing.T, s *ProfileStore, id, teacher string) {
	t.Helper()
	p, err := profile.NewStudentProfile(profile.NewStudentParams{ID: id, DisplayName: "Ann", TeacherID: teacher})
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), p))
}

func TestProfileStore_CreateAndApplyXP(t *testing.T) {
	ctx := context.Background()
	s := NewProfileStore()
	seedProfile(t, s, "s1", "")

	p, err := s.ApplyXP(ctx, "s1", 60)
	require.NoError(t, err)
	assert.Equal(t, shared.XP(60), p.XP)
	assert.Equal(t, shared.Level(2), p.Level)

	_, err = s.ApplyXP(ctx, "s1", -1)
	assert.ErrorIs(t, err, shared.ErrInvalidXPDelta)

	got, err := s.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, shared.XP(60), got.XP, "failed mutation must not leak")

	assert.ErrorIs(t, s.Create(ctx, got), shared.ErrProfileAlreadyExists)
	_, err = s.GetByID(ctx, "nobody")
	assert.True(t, shared.IsNotFound(err))
}

func TestProfileStore_ConcurrentAwards(t *testing.T) {
	ctx := context.Background()
	s := NewProfileStore()
	seedProfile(t, s, "s1", "")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.ApplyXP(ctx, "s1", 5)
		}()
	}
	wg.Wait()

	p, err := s.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, shared.XP(250), p.XP)
}

func TestProfileStore_ListWithTeacher(t *testing.T) {
	s := NewProfileStore()
	seedProfile(t, s, "b", "t1")
	seedProfile(t, s, "a", "t1")
	seedProfile(t, s, "c", "")

	ids, err := s.ListWithTeacher(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func newMessage(t *testing.T, id, sessionID, studentID, subject string, at time.Time) *session.ChatMessage {
	t.Helper()
	m, err := session.NewChatMessage(session.NewMessageParams{
		ID: id, SessionID: sessionID, StudentID: studentID, Subject: subject,
		UserText: "q " + id, ResponseText: "a " + id, Handler: session.TagGeneral, At: at,
	})
	require.NoError(t, err)
	return m
}

func TestSessionStore_AppendAndHistory(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	cs, err := session.NewChatSession("sess", "s1", "Ann", "")
	require.NoError(t, err)
	require.NoError(t, s.CreateSession(ctx, cs))

	base := time.Now().UTC()
	for i, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, s.AppendMessage(ctx, newMessage(t, id, "sess", "s1", "math", base.Add(time.Duration(i)*time.Second))))
	}

	got, err := s.GetSession(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalMessages)
	assert.True(t, got.LastActiveAt.Equal(base.Add(2*time.Second)))

	hist, err := s.History(ctx, "sess", 0)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, "m1", hist[0].ID)
	assert.Equal(t, "m3", hist[2].ID)

	recent, err := s.RecentMessages(ctx, session.MessageQuery{StudentID: "s1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "m2", recent[0].ID)
	assert.Equal(t, "m3", recent[1].ID)

	err = s.AppendMessage(ctx, newMessage(t, "x", "missing", "s1", "", base))
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)

	_, err = s.RecentMessages(ctx, session.MessageQuery{})
	assert.True(t, shared.IsValidation(err))
}

func TestSessionStore_ListSessionsOrder(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	for _, id := range []string{"a", "b"} {
		cs, err := session.NewChatSession(id, "s1", "", "")
		require.NoError(t, err)
		require.NoError(t, s.CreateSession(ctx, cs))
	}
	require.NoError(t, s.UpdateSessionActivity(ctx, "a", time.Now().Add(time.Hour)))

	list, err := s.ListSessions(ctx, session.SessionFilter{StudentID: "s1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)

	list, err = s.ListSessions(ctx, session.SessionFilter{StudentID: "other"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSessionStore_SubjectsAndActivity(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	cs, _ := session.NewChatSession("sess", "s1", "", "")
	require.NoError(t, s.CreateSession(ctx, cs))

	old := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, s.AppendMessage(ctx, newMessage(t, "m1", "sess", "s1", "science", old)))
	require.NoError(t, s.AppendMessage(ctx, newMessage(t, "m2", "sess", "s1", "math", time.Now())))

	subjects, err := s.DistinctSubjects(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"math", "science"}, subjects)

	n, err := s.CountMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	active, err := s.ActiveStudents(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, active)

	active, err = s.ActiveStudents(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestAlertStore_UnreadUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewAlertStore()
	mk := func(id string) *alert.Alert {
		a, err := alert.NewAlert(alert.NewAlertParams{ID: id, TeacherID: "t1", StudentID: "s1", Kind: alert.KindInactive, Title: "x"})
		require.NoError(t, err)
		return a
	}

	require.NoError(t, s.Insert(ctx, mk("a1")))
	assert.ErrorIs(t, s.Insert(ctx, mk("a2")), shared.ErrAlertExists)

	found, err := s.FindUnread(ctx, alert.Key{TeacherID: "t1", StudentID: "s1", Kind: alert.KindInactive})
	require.NoError(t, err)
	assert.Equal(t, "a1", found.ID)

	read, err := s.MarkRead(ctx, "a1", time.Now())
	require.NoError(t, err)
	assert.True(t, read.IsRead)
	assert.NotNil(t, read.ReadAt)

	require.NoError(t, s.Insert(ctx, mk("a3")))

	all, err := s.ListForTeacher(ctx, "t1", false, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	unread, err := s.ListForTeacher(ctx, "t1", true, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "a3", unread[0].ID)
}

func TestNotificationStore_DailyUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewNotificationStore()
	at := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	mk := func(id string, kind notification.Kind) *notification.Notification {
		n, err := notification.NewNotification(notification.NewNotificationParams{
			ID: id, RecipientID: "s1", Kind: kind, Title: "t", At: at,
		})
		require.NoError(t, err)
		return n
	}

	require.NoError(t, s.Insert(ctx, mk("n1", notification.KindDailyPractice)))
	assert.ErrorIs(t, s.Insert(ctx, mk("n2", notification.KindDailyPractice)), shared.ErrNotificationExists)
	require.NoError(t, s.Insert(ctx, mk("n3", notification.KindSystem)))
	require.NoError(t, s.Insert(ctx, mk("n4", notification.KindSystem)))
	assert.Equal(t, 3, s.Count())

	found, err := s.FindForDay(ctx, "s1", notification.KindDailyPractice, shared.DayKey("2026-03-02"))
	require.NoError(t, err)
	assert.Equal(t, "n1", found.ID)

	_, err = s.FindForDay(ctx, "s1", notification.KindDailyPractice, shared.DayKey("2026-03-03"))
	assert.ErrorIs(t, err, shared.ErrNotificationNotFound)

	_, err = s.MarkRead(ctx, "n1")
	require.NoError(t, err)
	unread, err := s.ListForStudent(ctx, "s1", true, 0)
	require.NoError(t, err)
	assert.Len(t, unread, 2)
}
