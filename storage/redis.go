package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix  = "quizdom"
	defaultRedisChannel = "quizdom:storage-events"
)

// RedisStore keeps values in Redis and publishes every write on a pub/sub
// channel so sibling processes observe it as a [ChangeEvent].
//
// Unlike [MemoryStore], deleting an absent key still publishes a removal event.
type RedisStore struct {
	redis   redis.UniversalClient
	prefix  string
	channel string
	origin  string
}

// NewRedisStore creates a [RedisStore]. Empty prefix or channel fall back to
// package defaults. Each store gets a fresh origin.
func NewRedisStore(client redis.UniversalClient, prefix, channel string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if channel == "" {
		channel = defaultRedisChannel
	}
	return &RedisStore{
		redis:   client,
		prefix:  prefix,
		channel: channel,
		origin:  uuid.NewString(),
	}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":" + k
}

// Origin returns the identifier stamped on events published by this store.
func (s *RedisStore) Origin() string {
	return s.origin
}

// Get returns the value stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.redis.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return v, true, nil
}

// Set writes value and publishes the change in one MULTI/EXEC.
//
//	Performance: 1 round trip (SET + PUBLISH).
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if value == "" {
		return s.Delete(ctx, key)
	}

	payload, err := s.event(key, value)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(key), value, 0)
		pipe.Publish(ctx, s.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Delete removes key and publishes a removal event.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	payload, err := s.event(key, "")
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(key))
		pipe.Publish(ctx, s.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Watch subscribes to the change channel. It returns once the subscription is
// confirmed, so writes issued afterwards are guaranteed to be observed.
func (s *RedisStore) Watch(ctx context.Context, fn func(ChangeEvent)) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}

	sub := s.redis.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("%w: subscribe: %v", ErrStorageUnavailable, err)
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			_ = sub.Close()
		})
	}
	context.AfterFunc(ctx, stop)

	messages := sub.Channel()
	go func() {
		for msg := range messages {
			var ev ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			if ev.Origin == s.origin {
				continue
			}
			fn(ev)
		}
	}()

	return stop, nil
}

func (s *RedisStore) event(key, value string) ([]byte, error) {
	payload, err := json.Marshal(ChangeEvent{Key: key, NewValue: value, Origin: s.origin})
	if err != nil {
		return nil, fmt.Errorf("encode change event: %w", err)
	}
	return payload, nil
}
