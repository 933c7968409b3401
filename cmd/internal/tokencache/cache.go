// Package tokencache is a Redis read-through cache for token resolution.
//
// Keys are token fingerprints, never raw tokens, so a Redis dump does not
// leak bearer credentials.
package tokencache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"forum/cmd/security/token"
)

const (
	// KeyPrefix namespaces cache keys.
	KeyPrefix = "forum:tok:"

	// DefaultTTL bounds how long a stale mapping can outlive a reissue race.
	DefaultTTL = 10 * time.Minute
)

// Cache implements identity.TokenCache over rueidis.
type Cache struct {
	client rueidis.Client
	ttl    time.Duration
}

// New wraps an existing client. The caller keeps ownership of client.
func New(client rueidis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Dial creates a client for addr and checks it with PING.
func Dial(ctx context.Context, addr, password string, db int) (rueidis.Client, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{addr},
		Password:     password,
		SelectDB:     db,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("tokencache: connect %s: %w", addr, err)
	}

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("tokencache: ping %s: %w", addr, err)
	}
	return client, nil
}

func key(tok string) string { return KeyPrefix + token.Fingerprint(tok) }

// Get returns (0, false, nil) on a miss.
func (c *Cache) Get(ctx context.Context, tok string) (int64, bool, error) {
	s, err := c.client.Do(ctx, c.client.B().Get().Key(key(tok)).Build()).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("tokencache: get: %w", err)
	}

	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("tokencache: invalid cached value: %w", err)
	}
	return id, true, nil
}

func (c *Cache) Set(ctx context.Context, tok string, userID int64) error {
	cmd := c.client.B().Set().
		Key(key(tok)).
		Value(strconv.FormatInt(userID, 10)).
		Ex(c.ttl).
		Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("tokencache: set: %w", err)
	}
	return nil
}

func (c *Cache) Evict(ctx context.Context, tok string) error {
	if err := c.client.Do(ctx, c.client.B().Del().Key(key(tok)).Build()).Error(); err != nil {
		return fmt.Errorf("tokencache: evict: %w", err)
	}
	return nil
}
