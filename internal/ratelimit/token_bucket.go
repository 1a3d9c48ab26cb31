package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Refills by elapsed redis time, takes one token when available and
// otherwise reports how many milliseconds until the next token. Integer
// replies only, since redis truncates Lua numbers.
//
// ARGV: rate (tokens per second), burst, ttl (ms)
// Reply: {allowed, whole tokens left, wait ms}
const takeTokenScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])

local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
tokens = math.min(burst, tokens + math.max(0, now - last) * rate / 1000)

local allowed = 0
local wait = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait = math.ceil((1 - tokens) * 1000 / rate)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {allowed, math.floor(tokens), wait}
`

// Bucket sizes one token bucket: Rate tokens per second up to Burst.
type Bucket struct {
	Rate  float64
	Burst int
}

func (b Bucket) validate() error {
	switch {
	case b.Rate <= 0:
		return errors.New("rate limiter rate must be positive")
	case b.Burst <= 0:
		return errors.New("rate limiter burst must be positive")
	}
	return nil
}

// ttl keeps an idle bucket around for twice its full refill time, so a
// key that expires would have been full anyway.
func (b Bucket) ttl() time.Duration {
	if b.Rate <= 0 || b.Burst <= 0 {
		return time.Second
	}
	seconds := math.Max(1, math.Ceil(float64(b.Burst)/b.Rate*2))
	return time.Duration(seconds) * time.Second
}

// Result is one bucket decision, shaped for the X-RateLimit headers.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up for the Retry-After header. A
// rejected request always waits at least one second.
func (r Result) RetryAfterSeconds() int {
	if r.Allowed {
		return 0
	}
	return int(math.Max(1, math.Ceil(r.RetryAfter.Seconds())))
}

// TokenBucket is a redis-backed token bucket shared by every API replica.
type TokenBucket struct {
	client redis.UniversalClient
	script *redis.Script
}

func NewTokenBucket(client redis.UniversalClient) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(takeTokenScript),
	}
}

// Take removes one token from the bucket stored at key.
func (t *TokenBucket) Take(ctx context.Context, key string, b Bucket) (Result, error) {
	if t == nil || t.client == nil {
		return Result{}, ErrNotConfigured
	}
	if key == "" {
		return Result{}, errors.New("rate limiter key is empty")
	}
	if err := b.validate(); err != nil {
		return Result{}, err
	}

	reply, err := t.script.Run(ctx, t.client, []string{key},
		b.Rate, b.Burst, b.ttl().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	if len(reply) != 3 {
		return Result{}, errors.New("invalid rate limit script response")
	}

	return Result{
		Allowed:    reply[0] == 1,
		Limit:      b.Burst,
		Remaining:  int(reply[1]),
		RetryAfter: time.Duration(reply[2]) * time.Millisecond,
	}, nil
}
