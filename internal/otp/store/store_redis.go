package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"fintech-id/internal/otp/models"
	"fintech-id/internal/otp/service"
	"fintech-id/pkg/platform/sentinel"
)

var operationDurationMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "identity_otp_store_duration_ms",
	Help:    "Latency of OTP store operations in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
}, []string{"operation"})

const defaultMaxRetries = 5

// RedisStore keeps OTP records as "code,attempts" strings under the phone
// number. Updates run under WATCH so concurrent verifications of one phone
// cannot both spend the same attempt.
type RedisStore struct {
	client     *redis.Client
	keyPrefix  string
	maxRetries int
}

type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces keys. The default is the bare phone number.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.keyPrefix = prefix
	}
}

// WithMaxRetries bounds retries after a WATCH conflict.
func WithMaxRetries(n int) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, maxRetries: defaultMaxRetries}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

var _ service.Store = (*RedisStore)(nil)

func (s *RedisStore) key(phone string) string {
	return s.keyPrefix + phone
}

func (s *RedisStore) Put(ctx context.Context, phone string, record models.Record, ttl time.Duration) error {
	defer observe("put", time.Now())
	if err := s.client.Set(ctx, s.key(phone), record.Encode(), ttl).Err(); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	return nil
}

// Update reads, decides and writes in one optimistic transaction. A Save
// uses SET XX KEEPTTL: the record keeps its remaining lifetime and is never
// resurrected if it expired in between.
func (s *RedisStore) Update(ctx context.Context, phone string, fn func(models.Record) (models.Record, models.Transition)) error {
	defer observe("update", time.Now())
	key := s.key(phone)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return err
		}
		current, err := models.ParseRecord(raw)
		if err != nil {
			return err
		}

		next, transition := fn(current)
		switch transition {
		case models.Consume:
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
		case models.Save:
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.SetArgs(ctx, key, next.Encode(), redis.SetArgs{Mode: "XX", KeepTTL: true})
				return nil
			})
		}
		if errors.Is(err, redis.Nil) {
			// XX found nothing to overwrite: the record expired mid-update.
			return sentinel.ErrNotFound
		}
		return err
	}

	for range s.maxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return fmt.Errorf("update otp: %w", err)
		}
		return err
	}
	return fmt.Errorf("update otp: contended after %d attempts: %w", s.maxRetries, sentinel.ErrUnavailable)
}

// Delete removes the phone's record. A missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, phone string) error {
	defer observe("delete", time.Now())
	if err := s.client.Del(ctx, s.key(phone)).Err(); err != nil {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}

// TTL reports the remaining lifetime of the phone's record.
func (s *RedisStore) TTL(ctx context.Context, phone string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, s.key(phone)).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, sentinel.ErrNotFound
	}
	return ttl, nil
}

func observe(operation string, start time.Time) {
	operationDurationMs.WithLabelValues(operation).Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}
