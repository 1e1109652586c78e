package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/alenia-group/quotation-cli/internal/model"
)

// RedisStorage implements Storage on Redis. TTLs map directly onto key
// expiry, so expired batches simply vanish and read as not found.
type RedisStorage struct {
	client *redis.Client
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, eris.Wrap(err, "redis: ping")
	}

	return &RedisStorage{client: client}, nil
}

func batchKey(id string) string    { return "batch:" + id }
func progressKey(id string) string { return "batch:" + id + ":progress" }
func userKey(userID string) string { return "user_batches:" + userID }

func (s *RedisStorage) SaveBatch(ctx context.Context, batch *model.QuotationBatch, ttl time.Duration) error {
	batchJSON, err := json.Marshal(batch)
	if err != nil {
		return eris.Wrap(err, "redis: marshal batch")
	}
	progress := batch.Snapshot()
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return eris.Wrap(err, "redis: marshal progress")
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, batchKey(batch.ID), batchJSON, ttl)
	pipe.Set(ctx, progressKey(batch.ID), progressJSON, ttl)
	pipe.ZAdd(ctx, userKey(batch.UserID), redis.Z{
		Score:  float64(batch.CreatedAt.Unix()),
		Member: batch.ID,
	})
	pipe.Expire(ctx, userKey(batch.UserID), model.DownloadTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return eris.Wrapf(err, "redis: save batch %s", batch.ID)
	}
	return nil
}

func (s *RedisStorage) GetBatch(ctx context.Context, id string) (*model.QuotationBatch, error) {
	data, err := s.client.Get(ctx, batchKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "redis: get batch %s", id)
	}

	var batch model.QuotationBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, eris.Wrapf(err, "redis: unmarshal batch %s", id)
	}
	if err := batch.ValidateStatuses(); err != nil {
		return nil, eris.Wrapf(err, "redis: batch %s", id)
	}
	return &batch, nil
}

func (s *RedisStorage) GetBatchProgress(ctx context.Context, id string) (*model.Progress, error) {
	data, err := s.client.Get(ctx, progressKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "redis: get progress %s", id)
	}

	var progress model.Progress
	if err := json.Unmarshal(data, &progress); err != nil {
		return nil, eris.Wrapf(err, "redis: unmarshal progress %s", id)
	}
	if _, err := model.ParseBatchStatus(string(progress.Status)); err != nil {
		return nil, eris.Wrapf(err, "redis: progress %s", id)
	}
	return &progress, nil
}

func (s *RedisStorage) ListUserBatches(ctx context.Context, userID string, limit int) ([]model.QuotationBatch, error) {
	if limit <= 0 {
		limit = 50
	}

	ids, err := s.client.ZRevRange(ctx, userKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, eris.Wrapf(err, "redis: list batches for %s", userID)
	}

	batches := make([]model.QuotationBatch, 0, len(ids))
	for _, id := range ids {
		batch, err := s.GetBatch(ctx, id)
		if err != nil {
			// Index entries outlive expired batch keys; skip them.
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		batches = append(batches, *batch)
	}
	return batches, nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
