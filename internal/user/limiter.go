package user

import (
	"context"
	"time"

	"github.com/pot-code/go-signin/internal/infrastructure/driver"
)

// LoginLimiter counts password checks per user in the kv store
type LoginLimiter struct {
	kv          driver.KeyValueDB
	maxAttempts int
	window      time.Duration
}

// NewLoginLimiter lock a user after maxAttempts password checks without a success, until window passes since the first one.
// maxAttempts <= 0 disables the limit.
func NewLoginLimiter(kv driver.KeyValueDB, maxAttempts int, window time.Duration) *LoginLimiter {
	return &LoginLimiter{kv: kv, maxAttempts: maxAttempts, window: window}
}

func attemptsKey(userID string) string {
	return "login_attempts:" + userID
}

// Reserve count one password check against the user, false once the checks
// inside the window exceed maxAttempts. The counter is the gate, so concurrent
// attempts can not get past the limit.
func (ll *LoginLimiter) Reserve(ctx context.Context, userID string) (bool, error) {
	if ll.maxAttempts <= 0 {
		return true, nil
	}
	n, err := ll.kv.Incr(ctx, attemptsKey(userID), ll.window)
	if err != nil {
		return false, err
	}
	return n <= int64(ll.maxAttempts), nil
}

// Reset forget failures after a successful login
func (ll *LoginLimiter) Reset(ctx context.Context, userID string) error {
	if ll.maxAttempts <= 0 {
		return nil
	}
	return ll.kv.Del(ctx, attemptsKey(userID))
}
