package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/sweeney/plunger-sensor/internal/plunger"
)

// hashClient is the subset of *redis.Client the store uses.
type hashClient interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// RedisStore keeps one hash per unit.
type RedisStore struct {
	client hashClient
	prefix string
}

// OpenRedis connects to addr and checks the connection.
func OpenRedis(ctx context.Context, addr, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return NewRedisStore(client, prefix), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client hashClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(unit int) string {
	return fmt.Sprintf("%s:unit:%d:calibration", s.prefix, unit)
}

// Load reads the unit's hash.
func (s *RedisStore) Load(ctx context.Context, unit int) (plunger.Calibration, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.key(unit)).Result()
	if err != nil {
		return plunger.Calibration{}, false, fmt.Errorf("load calibration: %w", err)
	}
	if len(fields) == 0 {
		return plunger.Calibration{}, false, nil
	}

	var r record
	for name, dst := range map[string]*int{"min": &r.Min, "zero": &r.Zero, "max": &r.Max} {
		v, err := strconv.Atoi(fields[name])
		if err != nil {
			return plunger.Calibration{}, false, fmt.Errorf("load calibration field %s: %w", name, err)
		}
		*dst = v
	}
	if r.ReleaseTime, err = strconv.ParseInt(fields["release_ms"], 10, 64); err != nil {
		return plunger.Calibration{}, false, fmt.Errorf("load calibration field release_ms: %w", err)
	}
	return r.calibration(), true, nil
}

// Save writes the unit's hash.
func (s *RedisStore) Save(ctx context.Context, unit int, cal plunger.Calibration) error {
	r := toRecord(cal)
	err := s.client.HSet(ctx, s.key(unit),
		"min", r.Min,
		"zero", r.Zero,
		"max", r.Max,
		"release_ms", r.ReleaseTime,
	).Err()
	if err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
