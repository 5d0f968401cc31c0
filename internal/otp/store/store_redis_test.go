package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"fintech-id/internal/otp/models"
	"fintech-id/pkg/platform/sentinel"
)

const phone = "79991234567"

type RedisStoreSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	store  *RedisStore
	ctx    context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.T().Cleanup(func() { _ = s.client.Close() })
	s.store = NewRedis(s.client, WithMaxRetries(100))
	s.ctx = context.Background()
}

func (s *RedisStoreSuite) update(submitted string, maxAttempts int) (models.Outcome, error) {
	var outcome models.Outcome
	err := s.store.Update(s.ctx, phone, func(rec models.Record) (models.Record, models.Transition) {
		next, transition, o := rec.Check(submitted, maxAttempts)
		outcome = o
		return next, transition
	})
	return outcome, err
}

func (s *RedisStoreSuite) TestPutStoresEncodedRecordUnderPhone() {
	s.Require().NoError(s.store.Put(s.ctx, phone, models.Record{Code: "012345"}, 120*time.Second))

	raw, err := s.mr.Get(phone)
	s.Require().NoError(err)
	s.Equal("012345,0", raw)
	s.Equal(120*time.Second, s.mr.TTL(phone))
}

func (s *RedisStoreSuite) TestKeyPrefix() {
	st := NewRedis(s.client, WithKeyPrefix("otp:"))
	s.Require().NoError(st.Put(s.ctx, phone, models.Record{Code: "111111"}, time.Minute))
	s.True(s.mr.Exists("otp:" + phone))
	s.False(s.mr.Exists(phone))
}

func (s *RedisStoreSuite) TestMismatchKeepsRemainingTTL() {
	s.Require().NoError(s.store.Put(s.ctx, phone, models.Record{Code: "123456"}, 120*time.Second))
	s.mr.FastForward(30 * time.Second)

	outcome, err := s.update("000000", 3)
	s.Require().NoError(err)
	s.Equal(models.OutcomeMismatch, outcome)

	raw, err := s.mr.Get(phone)
	s.Require().NoError(err)
	s.Equal("123456,1", raw)
	s.Equal(90*time.Second, s.mr.TTL(phone))

	ttl, err := s.store.TTL(s.ctx, phone)
	s.Require().NoError(err)
	s.Equal(90*time.Second, ttl)
}

func (s *RedisStoreSuite) TestMatchConsumesRecord() {
	s.Require().NoError(s.store.Put(s.ctx, phone, models.Record{Code: "123456"}, time.Minute))

	outcome, err := s.update("123456", 3)
	s.Require().NoError(err)
	s.Equal(models.OutcomeMatched, outcome)
	s.False(s.mr.Exists(phone))

	_, err = s.update("123456", 3)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestExhaustedRecordIsKept() {
	s.Require().NoError(s.store.Put(s.ctx, phone, models.Record{Code: "123456", Attempts: 3}, time.Minute))

	outcome, err := s.update("123456", 3)
	s.Require().NoError(err)
	s.Equal(models.OutcomeExhausted, outcome)

	raw, err := s.mr.Get(phone)
	s.Require().NoError(err)
	s.Equal("123456,3", raw)
}

func (s *RedisStoreSuite) TestExpiredRecordIsNotFound() {
	s.Require().NoError(s.store.Put(s.ctx, phone, models.Record{Code: "123456", Attempts: 2}, 120*time.Second))
	s.mr.FastForward(121 * time.Second)

	_, err := s.update("123456", 3)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.TTL(s.ctx, phone)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestMalformedRecord() {
	s.Require().NoError(s.mr.Set(phone, "garbage"))

	_, err := s.update("123456", 3)
	s.Error(err)
	s.NotErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestReissueResetsAttemptsAndLifetime() {
	s.Require().NoError(s.store.Put(s.ctx, phone, models.Record{Code: "123456", Attempts: 2}, 120*time.Second))
	s.mr.FastForward(100 * time.Second)

	s.Require().NoError(s.store.Put(s.ctx, phone, models.Record{Code: "654321"}, 120*time.Second))

	raw, err := s.mr.Get(phone)
	s.Require().NoError(err)
	s.Equal("654321,0", raw)
	s.Equal(120*time.Second, s.mr.TTL(phone))
}

func (s *RedisStoreSuite) TestConcurrentGuessesCannotExceedCeiling() {
	s.Require().NoError(s.store.Put(s.ctx, phone, models.Record{Code: "123456"}, time.Minute))

	const guesses = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[models.Outcome]int{}
	)
	for range guesses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := s.update("000000", 3)
			s.NoError(err)
			mu.Lock()
			outcomes[outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.Equal(3, outcomes[models.OutcomeMismatch])
	s.Equal(guesses-3, outcomes[models.OutcomeExhausted])

	raw, err := s.mr.Get(phone)
	s.Require().NoError(err)
	s.Equal("123456,3", raw)
}

func (s *RedisStoreSuite) TestDeleteRemovesRecord() {
	s.Require().NoError(s.store.Put(s.ctx, phone, models.Record{Code: "123456"}, time.Minute))
	s.Require().NoError(s.store.Delete(s.ctx, phone))
	s.False(s.mr.Exists(phone))

	_, err := s.update("123456", 3)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.NoError(s.store.Delete(s.ctx, phone))
}
