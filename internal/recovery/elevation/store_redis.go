package elevation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	recoveryMetrics "troupon/internal/recovery/metrics"
	"troupon/internal/recovery/models"
	id "troupon/pkg/domain"
	"troupon/pkg/platform/sentinel"
)

// Redis key prefix for elevation grants, followed by the browser session ID.
const grantKeyPrefix = "elev:"

// dropIfUnchanged deletes KEYS[1] only while it still holds ARGV[1], so a
// grant written after the expired one was read is left alone.
var dropIfUnchanged = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps grants in Redis so every instance sees the same state.
// Expiry is enforced both by the key TTL and by ExpiresAt.
type RedisStore struct {
	client  *redis.Client
	metrics *recoveryMetrics.Metrics
}

type RedisOption func(*RedisStore)

func WithMetrics(m *recoveryMetrics.Metrics) RedisOption {
	return func(s *RedisStore) {
		s.metrics = m
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func grantKey(sessionID id.SessionID) string {
	return grantKeyPrefix + sessionID.String()
}

// Grant stores g with a key TTL matching its lifetime.
func (s *RedisStore) Grant(ctx context.Context, g *models.ElevationGrant) error {
	defer s.observe("grant", time.Now())

	ttl := g.ExpiresAt.Sub(g.GrantedAt)
	if ttl <= 0 {
		return fmt.Errorf("elevation grant must expire after it is granted")
	}
	payload, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode elevation grant: %w", err)
	}
	if err := s.client.Set(ctx, grantKey(g.SessionID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("store elevation grant: %w", err)
	}
	return nil
}

func (s *RedisStore) Check(ctx context.Context, sessionID id.SessionID, now time.Time) (*models.ElevationGrant, error) {
	defer s.observe("check", time.Now())

	key := grantKey(sessionID)
	raw, err := s.client.Get(ctx, key).Bytes()
	g, err := decode(raw, err, now)
	if errors.Is(err, sentinel.ErrExpired) {
		_ = dropIfUnchanged.Run(ctx, s.client, []string{key}, raw).Err()
	}
	return g, err
}

// Consume atomically reads and deletes the grant with GETDEL, so concurrent
// resets on one session see at most one success.
func (s *RedisStore) Consume(ctx context.Context, sessionID id.SessionID, now time.Time) (*models.ElevationGrant, error) {
	defer s.observe("consume", time.Now())

	raw, err := s.client.GetDel(ctx, grantKey(sessionID)).Bytes()
	return decode(raw, err, now)
}

func decode(raw []byte, err error, now time.Time) (*models.ElevationGrant, error) {
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("elevation grant: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load elevation grant: %w", err)
	}

	var g models.ElevationGrant
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode elevation grant: %w", err)
	}
	if g.IsExpired(now) {
		return nil, fmt.Errorf("elevation grant: %w", sentinel.ErrExpired)
	}
	return &g, nil
}

func (s *RedisStore) observe(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveElevationStore(op, start)
	}
}
