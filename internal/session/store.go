// Package session keeps browser sessions of the sign-in front in the key-value store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pot-code/go-signin/internal/infrastructure/auth"
	"github.com/pot-code/go-signin/internal/infrastructure/driver"
	"github.com/pot-code/go-signin/internal/infrastructure/uuid"
	"github.com/pot-code/go-signin/internal/signin"
	"go.uber.org/zap"
)

// EventLogin published on the session channel after tokens are stored
const EventLogin = "login"

// ErrRefreshExpired the refresh token is already past its expiry
var ErrRefreshExpired = errors.New("refresh token has expired")

// ErrNoSession the browser session is unknown or expired
var ErrNoSession = errors.New("session not found")

// Store browser session store
type Store struct {
	kv       driver.KeyValueDB
	ps       driver.PubSub
	ids      uuid.Generator
	lifetime time.Duration
	logger   *zap.Logger
}

// NewStore create a session store, sessions live at most lifetime
func NewStore(kv driver.KeyValueDB, ps driver.PubSub, ids uuid.Generator, lifetime time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: kv, ps: ps, ids: ids, lifetime: lifetime, logger: logger}
}

func tokenKey(sid string) string {
	return "session:" + sid
}

func pendingKey(sid string) string {
	return "session:" + sid + ":pending"
}

func submitKey(sid string) string {
	return "session:" + sid + ":submitting"
}

func eventChannel(sid string) string {
	return "session:" + sid + ":events"
}

// Issue generate a session id for an anonymous browser, it is known to the store for lifetime
func (s *Store) Issue(ctx context.Context) (string, error) {
	sid, err := s.ids.Generate()
	if err != nil {
		return "", err
	}
	if err := s.kv.SetEX(ctx, pendingKey(sid), "1", s.lifetime); err != nil {
		return "", fmt.Errorf("failed to issue session: %w", err)
	}
	return sid, nil
}

// Known whether sid was issued by this store and has not expired or logged out
func (s *Store) Known(ctx context.Context, sid string) (bool, error) {
	if sid == "" {
		return false, nil
	}
	ok, err := s.kv.Exists(ctx, pendingKey(sid))
	if err != nil || ok {
		return ok, err
	}
	return s.kv.Exists(ctx, tokenKey(sid))
}

// Login store the token pair for sid and notify watchers
func (s *Store) Login(ctx context.Context, sid, access, refresh string) error {
	if err := s.save(ctx, sid, access, refresh); err != nil {
		return err
	}
	s.publish(ctx, sid, EventLogin)
	return nil
}

func (s *Store) save(ctx context.Context, sid, access, refresh string) error {
	ttl := s.lifetime
	if claims, err := auth.PeekClaims(refresh); err == nil && claims.ExpiresAt != 0 {
		remaining := claims.TimeRemaining()
		if remaining <= 0 {
			return ErrRefreshExpired
		}
		if ttl <= 0 || remaining < ttl {
			ttl = remaining
		}
	} else if err != nil {
		s.logger.Debug("refresh token is not a readable JWT, using session lifetime", zap.Error(err))
	}

	value, err := json.Marshal(signin.SessionTokens{Access: access, Refresh: refresh})
	if err != nil {
		return err
	}
	if err := s.kv.SetEX(ctx, tokenKey(sid), string(value), ttl); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *Store) publish(ctx context.Context, sid, event string) {
	if err := s.ps.Publish(ctx, eventChannel(sid), event); err != nil {
		s.logger.Warn("failed to publish session event", zap.String("session.id", sid), zap.Error(err))
	}
}

// IsLoggedIn whether sid holds tokens
func (s *Store) IsLoggedIn(ctx context.Context, sid string) (bool, error) {
	if sid == "" {
		return false, nil
	}
	return s.kv.Exists(ctx, tokenKey(sid))
}

// Tokens stored for sid, ErrNoSession if there are none
func (s *Store) Tokens(ctx context.Context, sid string) (*signin.SessionTokens, error) {
	if sid == "" {
		return nil, ErrNoSession
	}
	value, err := s.kv.Get(ctx, tokenKey(sid))
	if errors.Is(err, driver.ErrKeyNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	tokens := new(signin.SessionTokens)
	if err := json.Unmarshal([]byte(value), tokens); err != nil {
		return nil, fmt.Errorf("corrupted session %s: %w", sid, err)
	}
	return tokens, nil
}

// Remaining time before sid expires
func (s *Store) Remaining(ctx context.Context, sid string) (time.Duration, error) {
	ttl, err := s.kv.TTL(ctx, tokenKey(sid))
	if errors.Is(err, driver.ErrKeyNotFound) {
		return 0, ErrNoSession
	}
	return ttl, err
}

// Logout forget sid
func (s *Store) Logout(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	return s.kv.Del(ctx, tokenKey(sid), pendingKey(sid))
}

// LockSubmit mark a sign-in of sid as running for at most ttl, false if one already is
func (s *Store) LockSubmit(ctx context.Context, sid string, ttl time.Duration) (bool, error) {
	return s.kv.SetNX(ctx, submitKey(sid), "1", ttl)
}

// UnlockSubmit .
func (s *Store) UnlockSubmit(ctx context.Context, sid string) error {
	return s.kv.Del(ctx, submitKey(sid))
}

// Watch subscribe to events of sid
func (s *Store) Watch(ctx context.Context, sid string) (driver.Subscription, error) {
	return s.ps.Subscribe(ctx, eventChannel(sid))
}

// Bind the session sid as a signin.SessionStore
func (s *Store) Bind(sid string) *Session {
	return &Session{store: s, id: sid}
}

// Session one browser session. Signing in moves it to a fresh id, so an id
// handed out before login never carries tokens.
type Session struct {
	store *Store
	mu    sync.Mutex
	id    string
}

var _ signin.SessionStore = &Session{}

// ID current id of the session, it changes on Login
func (bs *Session) ID() string {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.id
}

// Login implement signin.SessionStore, tokens are stored under a new id and
// watchers of the previous one are notified
func (bs *Session) Login(ctx context.Context, access, refresh string) error {
	sid, err := bs.store.ids.Generate()
	if err != nil {
		return err
	}
	if err := bs.store.save(ctx, sid, access, refresh); err != nil {
		return err
	}

	bs.mu.Lock()
	previous := bs.id
	bs.id = sid
	bs.mu.Unlock()

	if err := bs.store.Logout(ctx, previous); err != nil {
		bs.store.logger.Warn("failed to drop previous session", zap.String("session.id", previous), zap.Error(err))
	}
	bs.store.publish(ctx, previous, EventLogin)
	return nil
}

// IsLoggedIn implement signin.SessionStore
func (bs *Session) IsLoggedIn(ctx context.Context) (bool, error) {
	return bs.store.IsLoggedIn(ctx, bs.ID())
}
