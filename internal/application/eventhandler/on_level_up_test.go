package eventhandler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorhub/tutor-hub/internal/domain/notification"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/messaging"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/persistence/memory"
)

type recordingPublisher struct {
	events []shared.Event
}

func (r *recordingPublisher) Publish(e shared.Event) error {
	r.events = append(r.events, e)
	return nil
}

func newHandler(t *testing.T) (*OnLevelUpHandler, *memory.NotificationStore, *recordingPublisher) {
	t.Helper()
	store := memory.NewNotificationStore()
	pub := &recordingPublisher{}
	h := NewOnLevelUpHandler(store, pub, nil, LevelUpConfig{})
	h.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return h, store, pub
}

func TestOnLevelUp_CreatesNotification(t *testing.T) {
	h, store, pub := newHandler(t)

	err := h.Handle(shared.NewXPAwardedEvent("s1", 5, 100, 2, true))
	require.NoError(t, err)

	list, err := store.ListForStudent(context.Background(), "s1", false, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, notification.KindSystem, list[0].Kind)
	assert.Equal(t, "Level 2 reached!", list[0].Title)
	assert.Equal(t, shared.DayKey("2025-03-01"), list[0].DayKey)

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventNotificationCreated, pub.events[0].EventType())
}

func TestOnLevelUp_IgnoresPlainAwards(t *testing.T) {
	h, store, pub := newHandler(t)

	require.NoError(t, h.Handle(shared.NewXPAwardedEvent("s1", 5, 10, 1, false)))
	require.NoError(t, h.Handle(shared.NewStreakUpdatedEvent("s1", 4)))

	list, err := store.ListForStudent(context.Background(), "s1", false, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, pub.events)
}

func TestOnLevelUp_RegisteredOnBus(t *testing.T) {
	h, store, _ := newHandler(t)
	bus := messaging.New(messaging.DefaultConfig())
	t.Cleanup(func() { _ = bus.Close() })

	require.NoError(t, h.Register(bus))
	require.NoError(t, bus.Publish(shared.NewXPAwardedEvent("s2", 5, 100, 2, true)))

	list, err := store.ListForStudent(context.Background(), "s2", true, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
