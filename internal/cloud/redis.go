package cloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spellflare/spellsync/internal/migrate"
	"github.com/spellflare/spellsync/internal/profile"
)

// KeyPrefix namespaces backup keys.
const KeyPrefix = "spellsync:profile:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address in "host:port" format.
	Addr string

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number.
	DB int

	// Account identifies whose backup this is.
	Account string

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns a sensible default configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Account:      "default",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// RedisSlot stores the backup as one JSON string under
// spellsync:profile:<account>, with the record's metadata mirrored in a
// companion hash for inspection.
type RedisSlot struct {
	client *redis.Client
	key    string
}

var _ Slot = (*RedisSlot)(nil)

// NewRedisSlot connects to Redis and verifies the connection.
func NewRedisSlot(cfg RedisConfig) (*RedisSlot, error) {
	if cfg.Account == "" {
		return nil, errors.New("cloud: account is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultRedisConfig().DialTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewRedisSlotFromClient(client, cfg.Account), nil
}

// NewRedisSlotFromClient wraps an existing client.
func NewRedisSlotFromClient(client *redis.Client, account string) *RedisSlot {
	return &RedisSlot{client: client, key: KeyPrefix + account}
}

// Key returns the Redis key holding the backup.
func (r *RedisSlot) Key() string {
	return r.key
}

func (r *RedisSlot) metaKey() string {
	return r.key + ":meta"
}

// Close closes the Redis connection.
func (r *RedisSlot) Close() error {
	return r.client.Close()
}

// Fetch implements Slot.Fetch.
func (r *RedisSlot) Fetch(ctx context.Context) (profile.Syncable, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return profile.Syncable{}, ErrNoBackup
		}
		return profile.Syncable{}, fmt.Errorf("failed to fetch backup: %w", err)
	}

	s, _, err := migrate.DecodeSyncable(data)
	if err != nil {
		return profile.Syncable{}, fmt.Errorf("%w: %v", ErrCorruptBackup, err)
	}
	return s, nil
}

// Store implements Slot.Store.
func (r *RedisSlot) Store(ctx context.Context, s profile.Syncable) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key, data, 0)
		pipe.HSet(ctx, r.metaKey(),
			"deviceIdentifier", s.DeviceIdentifier,
			"lastModified", s.LastModified.UTC().Format(time.RFC3339Nano),
			"completedLevels", s.Profile.TotalCompletedLevels(),
			"totalCoins", s.Profile.TotalCoins,
			"storedAt", time.Now().UTC().Format(time.RFC3339Nano),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store backup: %w", err)
	}
	return nil
}

// Delete implements Slot.Delete.
func (r *RedisSlot) Delete(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key, r.metaKey()).Err(); err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}
	return nil
}
