//go:build integration

// Package containers starts shared testcontainers for integration suites.
// Containers live for the whole test binary; Ryuk removes them afterwards.
package containers

import (
	"context"
	"sync"
	"testing"
	"time"
)

const startTimeout = 2 * time.Minute

type lazy[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (l *lazy[T]) get(start func(context.Context) (T, error)) (T, error) {
	l.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		l.val, l.err = start(ctx)
	})
	return l.val, l.err
}

// Manager owns one lazily started container per backend.
type Manager struct {
	redisC    lazy[*RedisContainer]
	postgresC lazy[*PostgresContainer]
	redpandaC lazy[*RedpandaContainer]
}

var (
	managerOnce sync.Once
	instance    *Manager
)

// GetManager returns the process-wide container manager.
func GetManager() *Manager {
	managerOnce.Do(func() { instance = &Manager{} })
	return instance
}

// GetRedis returns the shared Redis container, starting it on first use.
func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	c, err := m.redisC.get(newRedisContainer)
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	return c
}

// GetPostgres returns the shared Postgres container with migrations applied.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	c, err := m.postgresC.get(newPostgresContainer)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	return c
}

// GetRedpanda returns the shared Kafka-compatible broker.
func (m *Manager) GetRedpanda(t *testing.T) *RedpandaContainer {
	t.Helper()
	c, err := m.redpandaC.get(newRedpandaContainer)
	if err != nil {
		t.Fatalf("failed to start redpanda container: %v", err)
	}
	return c
}
