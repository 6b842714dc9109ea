// Package cache provides the atomic counter and transaction primitives the
// abuse-defense layer relies on. Every command runs through the cache
// breaker; the increment-with-expiry primitive is a single server-side Lua
// script because a separate INCR + EXPIRE pair leaves an unbounded-lifetime
// counter if the process dies between the two commands.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Silent-Watcher/note-app-api/executor"
)

// ErrCacheUnavailable wraps every failure to reach the cache, including the
// breaker failing fast. Callers treat "cache is down" uniformly regardless
// of the root cause.
var ErrCacheUnavailable = errors.New("cache unavailable")

// incrWithTTLScript increments KEYS[1] and attaches ARGV[1] seconds of TTL
// if and only if this call observed the counter transition from absent to 1.
var incrWithTTLScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Op is one command in a Transact batch.
type Op struct {
	Name string
	Args []interface{}
}

// Atomic executes counter and transaction commands against the cache through
// a shared circuit breaker. One instance per process, injected wherever the
// cache is needed.
type Atomic struct {
	redis   redis.UniversalClient
	breaker *executor.Breaker
}

// New creates an Atomic over the given client and breaker.
func New(client redis.UniversalClient, breaker *executor.Breaker) *Atomic {
	return &Atomic{
		redis:   client,
		breaker: breaker,
	}
}

// IncrWithTTL atomically increments key and, only on the first increment,
// sets its expiry to ttl. Returns the new counter value.
func (a *Atomic) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	res := executor.Run(ctx, a.breaker, func(ctx context.Context) (int64, error) {
		return incrWithTTLScript.Run(ctx, a.redis, []string{key}, int64(ttl.Seconds())).Int64()
	})
	if !res.Ok() {
		return 0, fmt.Errorf("%w: %v", ErrCacheUnavailable, res.Err)
	}
	return res.Value, nil
}

// Transact executes the ordered batch as one MULTI/EXEC transaction. Either
// every command is applied or none is; per-command results are returned in
// order.
func (a *Atomic) Transact(ctx context.Context, ops []Op) ([]redis.Cmder, error) {
	if len(ops) == 0 {
		return nil, nil
	}

	res := executor.Run(ctx, a.breaker, func(ctx context.Context) ([]redis.Cmder, error) {
		return a.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, op := range ops {
				args := make([]interface{}, 0, len(op.Args)+1)
				args = append(args, op.Name)
				args = append(args, op.Args...)
				pipe.Do(ctx, args...)
			}
			return nil
		})
	})
	if !res.Ok() {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, res.Err)
	}

	for _, cmd := range res.Value {
		if err := cmd.Err(); err != nil && !errors.Is(err, redis.Nil) {
			return res.Value, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
	}
	return res.Value, nil
}

// Get reads key and reports whether it exists. A missing key is not an
// error.
func (a *Atomic) Get(ctx context.Context, key string) (string, bool, error) {
	type lookup struct {
		value string
		found bool
	}

	res := executor.Run(ctx, a.breaker, func(ctx context.Context) (lookup, error) {
		v, err := a.redis.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return lookup{}, nil
		}
		if err != nil {
			return lookup{}, err
		}
		return lookup{value: v, found: true}, nil
	})
	if !res.Ok() {
		return "", false, fmt.Errorf("%w: %v", ErrCacheUnavailable, res.Err)
	}
	return res.Value.value, res.Value.found, nil
}

// Del removes the given keys.
func (a *Atomic) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	res := executor.Run(ctx, a.breaker, func(ctx context.Context) (int64, error) {
		return a.redis.Del(ctx, keys...).Result()
	})
	if !res.Ok() {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, res.Err)
	}
	return nil
}
