// Package testutil starts throwaway Postgres and Redis containers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	redisPort    = "6379"
	postgresPort = "5432"

	postgresUser     = "scheduler"
	postgresPassword = "scheduler"
	postgresDB       = "scheduler"
)

func skipShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
}

// RedisAddr starts redis:latest and returns its host:port. The container is
// terminated when t ends.
func RedisAddr(t *testing.T) string {
	t.Helper()
	skipShort(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:latest",
			ExposedPorts: []string{redisPort + "/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	mapped, err := container.MappedPort(ctx, redisPort)
	if err != nil {
		t.Fatalf("redis container port: %v", err)
	}
	return fmt.Sprintf("%s:%s", host(t, ctx, container), mapped.Port())
}

// PostgresDSN starts postgres:latest and returns a DSN for it.
func PostgresDSN(t *testing.T) string {
	t.Helper()
	skipShort(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:latest",
			ExposedPorts: []string{postgresPort + "/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     postgresUser,
				"POSTGRES_PASSWORD": postgresPassword,
				"POSTGRES_DB":       postgresDB,
			},
			// the server logs readiness once for initdb and once for real
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort(postgresPort+"/tcp"),
			).WithDeadline(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	mapped, err := container.MappedPort(ctx, postgresPort)
	if err != nil {
		t.Fatalf("postgres container port: %v", err)
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		postgresUser, postgresPassword, host(t, ctx, container), mapped.Port(), postgresDB)
}

func host(t *testing.T, ctx context.Context, c testcontainers.Container) string {
	t.Helper()

	h, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	return h
}
