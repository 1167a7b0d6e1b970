// Package ratelimit throttles chat traffic at two levels. The Redis-backed
// Limiter counts message sends per user with INCR + EXPIRE fixed windows so
// that the limit holds across server instances. The HTTPLimiter applies an
// in-process token bucket per caller to every REST request.
package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "rl:chat:msg:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

// RuleMessage allows 20 message sends per 10 seconds per user.
var RuleMessage = Rule{Key: "rl:chat:msg:", Limit: 20, Window: 10 * time.Second}

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow checks whether the given identifier is within the rate limit defined by
// rule. It increments the counter in Redis and sets the expiry on first access.
//
// Returns true if the request is allowed, false if rate limited. On Redis
// errors the method fails open (returns true) so that a Redis outage does not
// block legitimate traffic.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] redis INCR error key=%s: %v (failing open)", key, err)
		return true, err
	}

	// On the first increment, set the expiry to define the window boundary.
	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] redis EXPIRE error key=%s: %v (failing open)", key, err)
			// A key without TTL would throttle the identifier forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= rule.Limit, nil
}

// MessageLimiter applies a Rule to chat message sends, keyed by user id.
type MessageLimiter struct {
	limiter *Limiter
	rule    Rule
}

// NewMessageLimiter creates a MessageLimiter. A zero rule falls back to
// RuleMessage.
func NewMessageLimiter(limiter *Limiter, rule Rule) *MessageLimiter {
	if rule.Limit <= 0 || rule.Window <= 0 {
		rule = RuleMessage
	}
	if rule.Key == "" {
		rule.Key = RuleMessage.Key
	}
	return &MessageLimiter{limiter: limiter, rule: rule}
}

// AllowMessage reports whether userID may send another message now.
func (m *MessageLimiter) AllowMessage(ctx context.Context, userID string) (bool, error) {
	return m.limiter.Allow(ctx, userID, m.rule)
}
