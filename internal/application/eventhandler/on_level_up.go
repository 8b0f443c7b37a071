// Package eventhandler содержит обработчики доменных событий.
// Обработчики - реактивная часть системы: они подписаны на шину и
// запускают побочные эффекты, не влияя на исход основной операции.
package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tutorhub/tutor-hub/internal/domain/notification"
	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON LEVEL UP HANDLER
// Поздравляет студента системным уведомлением, когда начисление XP
// перевело его на новый уровень.
// ═══════════════════════════════════════════════════════════════════════════

// LevelUpConfig содержит конфигурацию обработчика.
type LevelUpConfig struct {
	// Location - часовой пояс для DayKey уведомления.
	Location *time.Location

	// Timeout ограничивает запись уведомления.
	Timeout time.Duration
}

// DefaultLevelUpConfig возвращает конфигурацию по умолчанию.
func DefaultLevelUpConfig() LevelUpConfig {
	return LevelUpConfig{
		Location: time.UTC,
		Timeout:  5 * time.Second,
	}
}

// OnLevelUpHandler создаёт уведомление "новый уровень".
type OnLevelUpHandler struct {
	notifications notification.Repository
	publisher     shared.EventPublisher
	logger        *slog.Logger
	config        LevelUpConfig

	newID func() string
	now   func() time.Time
}

// NewOnLevelUpHandler создаёт обработчик. publisher может быть nil.
func NewOnLevelUpHandler(
	notifications notification.Repository,
	publisher shared.EventPublisher,
	logger *slog.Logger,
	config LevelUpConfig,
) *OnLevelUpHandler {
	def := DefaultLevelUpConfig()
	if config.Location == nil {
		config.Location = def.Location
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &OnLevelUpHandler{
		notifications: notifications,
		publisher:     publisher,
		logger:        logger.With("handler", "on_level_up"),
		config:        config,
		newID:         uuid.NewString,
		now:           time.Now,
	}
}

// Register подписывает обработчик на начисления XP.
func (h *OnLevelUpHandler) Register(sub shared.EventSubscriber) error {
	return sub.Subscribe(shared.EventXPAwarded, h.Handle)
}

// Handle обрабатывает событие начисления XP.
// Реализует сигнатуру shared.EventHandler.
func (h *OnLevelUpHandler) Handle(event shared.Event) error {
	awarded, ok := event.(shared.XPAwardedEvent)
	if !ok {
		h.logger.Warn("received unexpected event", "event_type", event.EventType())
		return nil
	}
	if !awarded.LeveledUp {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	n, err := notification.NewNotification(notification.NewNotificationParams{
		ID:          h.newID(),
		RecipientID: awarded.StudentID,
		Kind:        notification.KindSystem,
		Title:       fmt.Sprintf("Level %d reached!", awarded.Level),
		Message:     fmt.Sprintf("You now have %d XP. Keep asking questions to reach level %d.", awarded.NewTotal, awarded.Level+1),
		At:          h.now(),
		Location:    h.config.Location,
	})
	if err != nil {
		return fmt.Errorf("build level-up notification: %w", err)
	}

	if err := h.notifications.Insert(ctx, n); err != nil {
		if errors.Is(err, shared.ErrNotificationExists) {
			return nil
		}
		h.logger.Error("failed to store level-up notification",
			"student_id", awarded.StudentID,
			"error", err,
		)
		return err
	}

	h.logger.Info("level-up notification created",
		"student_id", awarded.StudentID,
		"level", awarded.Level,
	)

	if err := h.publisher.Publish(shared.NewNotificationCreatedEvent(n.ID, n.RecipientID, string(n.Kind), "")); err != nil {
		h.logger.Warn("failed to publish notification event", "error", err)
	}
	return nil
}
