package e2e_harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	s3AccessKey = "rustfsadmin"
	s3SecretKey = "rustfsadmin"
)

// Harness owns the containers started by one end-to-end test. Close tears
// them down in reverse start order.
type Harness struct {
	cleanups []func(context.Context) error
}

// Postgres is a running database container.
type Postgres struct {
	DSN string
	DB  *sql.DB
}

type containerSpec struct {
	image string
	port  string
	env   map[string]string
	wait  wait.Strategy
}

// start runs the container and returns the host:port its exposed port is mapped to.
func (h *Harness) start(ctx context.Context, c containerSpec) (string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        c.image,
			ExposedPorts: []string{c.port + "/tcp"},
			Env:          c.env,
			WaitingFor:   c.wait,
		},
		Started: true,
	})
	if err != nil {
		return "", fmt.Errorf("start %s: %w", c.image, err)
	}
	h.cleanups = append(h.cleanups, func(ctx context.Context) error {
		return container.Terminate(ctx)
	})

	// a single exposed port, so Endpoint resolves to it
	return container.Endpoint(ctx, "")
}

// StartPostgres starts postgres:16 with a formflow database.
func (h *Harness) StartPostgres(ctx context.Context) (*Postgres, error) {
	addr, err := h.start(ctx, containerSpec{
		image: "postgres:16",
		port:  "5432",
		env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "formflow",
		},
		// postgres restarts once after init; the second line marks the real server.
		wait: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	})
	if err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("postgres://postgres:password@%s/formflow?sslmode=disable", addr)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	h.cleanups = append(h.cleanups, func(context.Context) error { return db.Close() })
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{DSN: dsn, DB: db}, nil
}

// StartObjectStore starts an S3 compatible store and returns its endpoint URL.
func (h *Harness) StartObjectStore(ctx context.Context) (string, error) {
	addr, err := h.start(ctx, containerSpec{
		image: "rustfs/rustfs:latest",
		port:  "9000",
		env: map[string]string{
			"RUSTFS_ACCESS_KEY": s3AccessKey,
			"RUSTFS_SECRET_KEY": s3SecretKey,
		},
		wait: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	})
	if err != nil {
		return "", err
	}
	return "http://" + addr, nil
}

func (h *Harness) Close(ctx context.Context) error {
	var errs []error
	for i := len(h.cleanups) - 1; i >= 0; i-- {
		if err := h.cleanups[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	h.cleanups = nil
	return errors.Join(errs...)
}
