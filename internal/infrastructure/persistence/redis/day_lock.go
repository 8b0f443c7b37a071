package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Locker is the subset of Cache a DayLock needs.
type Locker interface {
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// DayLock makes sure a named daily job runs once per calendar day
// even when several workers share one Redis.
type DayLock struct {
	locker Locker
	ttl    time.Duration
}

// NewDayLock creates a lock. The key outlives the day by ttl.
func NewDayLock(locker Locker, ttl time.Duration) *DayLock {
	if ttl <= 0 {
		ttl = 26 * time.Hour
	}
	return &DayLock{locker: locker, ttl: ttl}
}

// Acquire claims job for day. It returns a release func that must be called
// when the job failed, so a retry on the same day can run again.
func (l *DayLock) Acquire(ctx context.Context, job, day string) (bool, func(context.Context), error) {
	key := LockKey(fmt.Sprintf("%s:%s", job, day))
	ok, err := l.locker.SetNX(ctx, key, uuid.NewString(), l.ttl)
	if err != nil {
		return false, nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return false, nil, nil
	}
	release := func(ctx context.Context) { _ = l.locker.Delete(ctx, key) }
	return true, release, nil
}
