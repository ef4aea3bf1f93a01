package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

type redisStore struct {
	c      *redis.Client
	prefix string
	schema int
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisStore(c *redis.Client, prefix string, schema int) Store {
	return &redisStore{c: c, prefix: prefix, schema: schema}
}

func (r *redisStore) key(k string) string {
	return r.prefix + k
}

func (r *redisStore) Get(ctx context.Context, key string, v any) (Meta, error) {
	b, err := r.c.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Meta{}, ErrNotFound
		}
		return Meta{}, err
	}

	return open(r.schema, b, v)
}

// Put uses WATCH and MULTI so that the revision check and the write are atomic.
func (r *redisStore) Put(ctx context.Context, key string, v any, expectedRevision uint64) (Meta, error) {
	k := r.key(key)
	var meta Meta

	err := r.c.Watch(ctx, func(tx *redis.Tx) error {
		current := uint64(0)

		b, err := tx.Get(ctx, k).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			current = revisionOf(b)
		}

		if current != expectedRevision {
			return fmt.Errorf("%w: %s is at revision %d, not %d", ErrRevisionConflict, key, current, expectedRevision)
		}

		sealed, m, err := seal(r.schema, current, v)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, sealed, 0)
			return nil
		})
		if err != nil {
			return err
		}

		meta = m
		return nil
	}, k)

	if errors.Is(err, redis.TxFailedErr) {
		return Meta{}, fmt.Errorf("%w: %s was modified concurrently", ErrRevisionConflict, key)
	}

	return meta, err
}

func (r *redisStore) Delete(ctx context.Context, key string) error {
	return r.c.Del(ctx, r.key(key)).Err()
}
