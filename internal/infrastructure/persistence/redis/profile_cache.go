package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tutorhub/tutor-hub/internal/domain/profile"
)

// KV is the subset of Cache the profile cache needs.
type KV interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// DefaultProfileTTL is used when the configured TTL is zero.
const DefaultProfileTTL = 10 * time.Minute

// ProfileCache is a read-through cache in front of a profile.Repository.
// Writes go to the store first and then drop the cached copy, so the store
// stays the only source of truth for XP. Cache failures never fail a call.
type ProfileCache struct {
	profile.Repository
	kv  KV
	ttl time.Duration
	log *slog.Logger
}

// NewProfileCache wraps next.
func NewProfileCache(next profile.Repository, kv KV, ttl time.Duration, log *slog.Logger) *ProfileCache {
	if ttl <= 0 {
		ttl = DefaultProfileTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &ProfileCache{Repository: next, kv: kv, ttl: ttl, log: log.With("component", "profile_cache")}
}

var _ profile.Repository = (*ProfileCache)(nil)

// GetByID serves from cache and falls back to the store.
func (c *ProfileCache) GetByID(ctx context.Context, id string) (*profile.StudentProfile, error) {
	var cached profile.StudentProfile
	err := c.kv.Get(ctx, ProfileKey(id), &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.log.Warn("profile cache read failed", "student_id", id, "error", err)
	}

	p, err := c.Repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.kv.Set(ctx, ProfileKey(id), p, c.ttl); err != nil {
		c.log.Warn("profile cache write failed", "student_id", id, "error", err)
	}
	return p, nil
}

func (c *ProfileCache) Update(ctx context.Context, id string, upd profile.ProfileUpdate) (*profile.StudentProfile, error) {
	return c.invalidate(ctx, id)(c.Repository.Update(ctx, id, upd))
}

func (c *ProfileCache) ApplyXP(ctx context.Context, id string, delta int) (*profile.StudentProfile, error) {
	return c.invalidate(ctx, id)(c.Repository.ApplyXP(ctx, id, delta))
}

func (c *ProfileCache) SetXP(ctx context.Context, id string, xp int) (*profile.StudentProfile, error) {
	return c.invalidate(ctx, id)(c.Repository.SetXP(ctx, id, xp))
}

func (c *ProfileCache) SetStreak(ctx context.Context, id string, days int) (*profile.StudentProfile, error) {
	return c.invalidate(ctx, id)(c.Repository.SetStreak(ctx, id, days))
}

func (c *ProfileCache) invalidate(ctx context.Context, id string) func(*profile.StudentProfile, error) (*profile.StudentProfile, error) {
	return func(p *profile.StudentProfile, err error) (*profile.StudentProfile, error) {
		if delErr := c.kv.Delete(ctx, ProfileKey(id)); delErr != nil {
			c.log.Warn("profile cache invalidate failed", "student_id", id, "error", delErr)
		}
		return p, err
	}
}
