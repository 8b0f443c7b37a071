// Package memory - хранилища в памяти процесса.
// Используются в тестах и для локального запуска без PostgreSQL.
// Семантика (уникальность, атомарность счётчиков, порядок) совпадает с postgres-реализацией.
package memory

import (
	"time"
)

// Store объединяет все хранилища в памяти.
type Store struct {
	Profiles      *ProfileStore
	Teachers      *TeacherStore
	Sessions      *SessionStore
	Alerts        *AlertStore
	Notifications *NotificationStore
}

// New создаёт пустой Store.
func New() *Store {
	return &Store{
		Profiles:      NewProfileStore(),
		Teachers:      NewTeacherStore(),
		Sessions:      NewSessionStore(),
		Alerts:        NewAlertStore(),
		Notifications: NewNotificationStore(),
	}
}

func clock() time.Time { return time.Now().UTC() }

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
