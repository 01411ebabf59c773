package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const loginAttemptPrefix = "login_attempts:"

// LoginAttemptRepository counts failed logins per account in Redis.
type LoginAttemptRepository struct {
	client *redis.Client
	window time.Duration
}

// NewLoginAttemptRepository builds the repository. Counters expire after window.
func NewLoginAttemptRepository(client *redis.Client, window time.Duration) *LoginAttemptRepository {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &LoginAttemptRepository{client: client, window: window}
}

// Failures returns the number of failed attempts recorded for email inside the current window.
func (r *LoginAttemptRepository) Failures(ctx context.Context, email string) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	count, err := r.client.Get(ctx, loginAttemptPrefix+email).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get login attempts: %w", err)
	}
	return count, nil
}

// RecordFailure increments the counter. The window starts at the first failure.
func (r *LoginAttemptRepository) RecordFailure(ctx context.Context, email string) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	key := loginAttemptPrefix + email
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr login attempts: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			return count, fmt.Errorf("redis expire login attempts: %w", err)
		}
	}
	return count, nil
}

// Reset clears the counter after a successful login.
func (r *LoginAttemptRepository) Reset(ctx context.Context, email string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, loginAttemptPrefix+email).Err(); err != nil {
		return fmt.Errorf("redis reset login attempts: %w", err)
	}
	return nil
}
