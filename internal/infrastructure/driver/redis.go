package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisClient .
type RedisClient struct {
	conn *redis.Client
}

var (
	_ KeyValueDB = &RedisClient{}
	_ PubSub     = &RedisClient{}
)

// NewRedisClient create a redis client
func NewRedisClient(host string, port int, password string) *RedisClient {
	conn := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
	})
	return &RedisClient{
		conn: conn,
	}
}

// SetEX implement KeyValueDB
func (rdb *RedisClient) SetEX(ctx context.Context, key string, value string, expiration time.Duration) error {
	return rdb.conn.Set(ctx, key, value, expiration).Err()
}

// SetNX implement KeyValueDB
func (rdb *RedisClient) SetNX(ctx context.Context, key string, value string, expiration time.Duration) (bool, error) {
	return rdb.conn.SetNX(ctx, key, value, expiration).Result()
}

// Get implement KeyValueDB
func (rdb *RedisClient) Get(ctx context.Context, key string) (string, error) {
	value, err := rdb.conn.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	return value, err
}

// Exists implement KeyValueDB
func (rdb *RedisClient) Exists(ctx context.Context, key string) (bool, error) {
	n, err := rdb.conn.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Del implement KeyValueDB
func (rdb *RedisClient) Del(ctx context.Context, keys ...string) error {
	return rdb.conn.Del(ctx, keys...).Err()
}

// Incr implement KeyValueDB
func (rdb *RedisClient) Incr(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	n, err := rdb.conn.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 && expiration > 0 {
		if err := rdb.conn.Expire(ctx, key, expiration).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// TTL implement KeyValueDB
func (rdb *RedisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := rdb.conn.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, ErrKeyNotFound
	}
	return ttl, nil
}

// Ping implement KeyValueDB
func (rdb *RedisClient) Ping(ctx context.Context) error {
	return rdb.conn.Ping(ctx).Err()
}

// Publish implement PubSub
func (rdb *RedisClient) Publish(ctx context.Context, channel string, message string) error {
	return rdb.conn.Publish(ctx, channel, message).Err()
}

// Subscribe implement PubSub, it waits for the subscription to be confirmed before returning
func (rdb *RedisClient) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := rdb.conn.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}

	sub := &redisSubscription{
		ps:       ps,
		messages: make(chan string),
		done:     make(chan struct{}),
	}
	go sub.forward()
	return sub, nil
}

// Close close the underlying connection pool
func (rdb *RedisClient) Close() error {
	return rdb.conn.Close()
}

type redisSubscription struct {
	ps       *redis.PubSub
	messages chan string
	done     chan struct{}
	once     sync.Once
}

func (s *redisSubscription) forward() {
	defer close(s.messages)
	for msg := range s.ps.Channel() {
		select {
		case s.messages <- msg.Payload:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan string {
	return s.messages
}

func (s *redisSubscription) Close() (err error) {
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return
}
