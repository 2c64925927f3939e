package statestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	fieldDoc      = "doc"
	fieldVersion  = "version"
	defaultPrefix = "workloop:state:"
)

// Redis keeps each document in a hash holding doc and version. Saves run
// under WATCH so a concurrent writer aborts the transaction.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis wraps a connected client.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// OpenRedis connects to addr and pings it.
func OpenRedis(ctx context.Context, addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       addr,
		MaxRetries: 3,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(client, ""), nil
}

// Load implements Store.
func (r *Redis) Load(ctx context.Context, key string) ([]byte, int64, error) {
	if err := validateKey(key); err != nil {
		return nil, 0, err
	}
	vals, err := r.client.HGetAll(ctx, r.prefix+key).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("load %s: %w", key, err)
	}
	if len(vals) == 0 {
		return nil, 0, nil
	}
	version, err := strconv.ParseInt(vals[fieldVersion], 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("load %s: bad version: %w", key, err)
	}
	return []byte(vals[fieldDoc]), version, nil
}

// Save implements Store.
func (r *Redis) Save(ctx context.Context, key string, doc []byte, expected int64) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	k := r.prefix + key
	saved := false
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, k, fieldVersion).Int64()
		if errors.Is(err, redis.Nil) {
			cur = 0
		} else if err != nil {
			return err
		}
		if cur != expected {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, k, fieldDoc, doc, fieldVersion, expected+1)
			return nil
		})
		if err != nil {
			return err
		}
		saved = true
		return nil
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("save %s: %w", key, err)
	}
	return saved, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
