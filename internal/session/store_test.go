package session

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pot-code/go-signin/internal/domain"
	"github.com/pot-code/go-signin/internal/infrastructure/auth"
	"github.com/pot-code/go-signin/internal/infrastructure/driver"
	"github.com/pot-code/go-signin/internal/infrastructure/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, lifetime time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	rdb := driver.NewRedisClient(mr.Host(), port, "")
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewStore(rdb, rdb, uuid.NewNanoIDGenerator(32), lifetime, nil), mr
}

func issuePair(t *testing.T, refreshTimeout time.Duration) *auth.TokenPair {
	t.Helper()

	ju := auth.NewJWTUtil("HS256", "secret", time.Minute, refreshTimeout)
	pair, err := ju.IssuePair(&domain.UserModel{ID: "u-1", Username: "alice"})
	require.NoError(t, err)
	return pair
}

func TestStore_LoginCapsTTLAtRefreshExpiry(t *testing.T) {
	store, mr := newTestStore(t, 24*time.Hour)
	ctx := context.Background()
	pair := issuePair(t, time.Hour)

	sid, err := store.Issue(ctx)
	require.NoError(t, err)
	assert.Len(t, sid, 32)

	loggedIn, err := store.IsLoggedIn(ctx, sid)
	require.NoError(t, err)
	assert.False(t, loggedIn)

	require.NoError(t, store.Login(ctx, sid, pair.Access, pair.Refresh))

	loggedIn, err = store.IsLoggedIn(ctx, sid)
	require.NoError(t, err)
	assert.True(t, loggedIn)
	assert.InDelta(t, time.Hour.Seconds(), mr.TTL("session:"+sid).Seconds(), 2)

	tokens, err := store.Tokens(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, pair.Access, tokens.Access)
	assert.Equal(t, pair.Refresh, tokens.Refresh)

	remaining, err := store.Remaining(ctx, sid)
	require.NoError(t, err)
	assert.InDelta(t, time.Hour.Seconds(), remaining.Seconds(), 2)
}

func TestStore_LoginUsesLifetimeForOpaqueTokens(t *testing.T) {
	store, mr := newTestStore(t, 10*time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Login(ctx, "sid-1", "opaque-access", "opaque-refresh"))
	assert.Equal(t, 10*time.Minute, mr.TTL("session:sid-1"))

	mr.FastForward(11 * time.Minute)
	loggedIn, err := store.IsLoggedIn(ctx, "sid-1")
	require.NoError(t, err)
	assert.False(t, loggedIn)

	_, err = store.Tokens(ctx, "sid-1")
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = store.Remaining(ctx, "sid-1")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestStore_LoginRejectsExpiredRefresh(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	pair := issuePair(t, -time.Minute)

	err := store.Login(context.Background(), "sid-1", pair.Access, pair.Refresh)
	assert.ErrorIs(t, err, ErrRefreshExpired)
	assert.False(t, mr.Exists("session:sid-1"))
}

func TestStore_Logout(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Login(ctx, "sid-1", "a", "r"))
	require.NoError(t, store.Logout(ctx, "sid-1"))
	require.NoError(t, store.Logout(ctx, ""))

	loggedIn, err := store.IsLoggedIn(ctx, "sid-1")
	require.NoError(t, err)
	assert.False(t, loggedIn)

	sid, err := store.Issue(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Logout(ctx, sid))
	known, err := store.Known(ctx, sid)
	require.NoError(t, err)
	assert.False(t, known)
}

func TestStore_Known(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	known, err := store.Known(ctx, "made-up")
	require.NoError(t, err)
	assert.False(t, known)
	known, err = store.Known(ctx, "")
	require.NoError(t, err)
	assert.False(t, known)

	sid, err := store.Issue(ctx)
	require.NoError(t, err)
	known, err = store.Known(ctx, sid)
	require.NoError(t, err)
	assert.True(t, known)

	mr.FastForward(time.Hour + time.Second)
	known, err = store.Known(ctx, sid)
	require.NoError(t, err)
	assert.False(t, known)

	require.NoError(t, store.Login(ctx, "sid-1", "a", "r"))
	known, err = store.Known(ctx, "sid-1")
	require.NoError(t, err)
	assert.True(t, known)
}

func TestStore_SubmitLock(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	ok, err := store.LockSubmit(ctx, "sid-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.LockSubmit(ctx, "sid-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.UnlockSubmit(ctx, "sid-1"))
	ok, err = store.LockSubmit(ctx, "sid-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// a crashed submit does not hold the lock forever
	mr.FastForward(2 * time.Minute)
	ok, err = store.LockSubmit(ctx, "sid-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_WatchReceivesLogin(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	sub, err := store.Watch(ctx, "sid-1")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, store.Bind("sid-1").Login(ctx, "a", "r"))

	select {
	case msg := <-sub.Messages():
		assert.Equal(t, EventLogin, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no login event")
	}
}

func TestSession_LoginMovesToFreshID(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	sid, err := store.Issue(ctx)
	require.NoError(t, err)
	bound := store.Bind(sid)
	assert.Equal(t, sid, bound.ID())
	loggedIn, err := bound.IsLoggedIn(ctx)
	require.NoError(t, err)
	assert.False(t, loggedIn)

	require.NoError(t, bound.Login(ctx, "a", "r"))
	assert.NotEqual(t, sid, bound.ID())
	assert.Len(t, bound.ID(), 32)

	loggedIn, err = bound.IsLoggedIn(ctx)
	require.NoError(t, err)
	assert.True(t, loggedIn)
	tokens, err := store.Tokens(ctx, bound.ID())
	require.NoError(t, err)
	assert.Equal(t, "a", tokens.Access)

	// the id known before login is gone
	loggedIn, err = store.IsLoggedIn(ctx, sid)
	require.NoError(t, err)
	assert.False(t, loggedIn)
	known, err := store.Known(ctx, sid)
	require.NoError(t, err)
	assert.False(t, known)
	assert.False(t, mr.Exists("session:"+sid+":pending"))
}
