// Package common starts the database containers shared by storage tests.
// Each container is started once per test process and reused.
package common

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SkipEnv disables container-backed tests when set to a non-empty value.
const SkipEnv = "FOLIO_SKIP_CONTAINERS"

// Container is a started database container reachable on host:port.
type Container struct {
	container testcontainers.Container
	host      string
	port      string
}

type sharedContainer struct {
	once sync.Once
	c    *Container
	err  error
}

func (s *sharedContainer) start(t *testing.T, name, port string, req testcontainers.ContainerRequest) *Container {
	t.Helper()
	if testing.Short() || os.Getenv(SkipEnv) != "" {
		t.Skipf("skipping %s container test", name)
	}

	s.once.Do(func() {
		ctx := context.Background()
		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		if err != nil {
			s.err = fmt.Errorf("start %s container: %w", name, err)
			return
		}

		host, err := container.Host(ctx)
		if err != nil {
			container.Terminate(ctx)
			s.err = fmt.Errorf("get %s host: %w", name, err)
			return
		}

		mapped, err := container.MappedPort(ctx, port)
		if err != nil {
			container.Terminate(ctx)
			s.err = fmt.Errorf("get %s port: %w", name, err)
			return
		}

		s.c = &Container{container: container, host: host, port: mapped.Port()}
	})

	if s.err != nil {
		t.Fatalf("%s container failed: %v", name, s.err)
	}
	return s.c
}

// Cleanup terminates the container.
func (c *Container) Cleanup() {
	if c != nil && c.container != nil {
		c.container.Terminate(context.Background())
	}
}

var surreal sharedContainer

// StartSurrealDB returns the shared SurrealDB container, root/root credentials.
func StartSurrealDB(t *testing.T) *Container {
	return surreal.start(t, "SurrealDB", "8000/tcp", testcontainers.ContainerRequest{
		Image:        "surrealdb/surrealdb:v3.0.0",
		ExposedPorts: []string{"8000/tcp"},
		Cmd:          []string{"start", "--user", "root", "--pass", "root"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("8000/tcp"),
			wait.ForLog("Started web server"),
		).WithDeadline(60 * time.Second),
	})
}

// Address returns the WebSocket RPC address of a SurrealDB container.
func (c *Container) Address() string {
	return fmt.Sprintf("ws://%s:%s/rpc", c.host, c.port)
}

var pg sharedContainer

// StartPostgres returns the shared PostgreSQL container. The folio role owns
// the folio database and may create more.
func StartPostgres(t *testing.T) *Container {
	return pg.start(t, "Postgres", "5432/tcp", testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "folio",
			"POSTGRES_PASSWORD": "folio",
			"POSTGRES_DB":       "folio",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithDeadline(60 * time.Second),
	})
}

// DSN returns a Postgres connection string for database.
func (c *Container) DSN(database string) string {
	return fmt.Sprintf("host=%s port=%s user=folio password=folio dbname=%s sslmode=disable", c.host, c.port, database)
}
