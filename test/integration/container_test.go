package integration

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgImage        = "postgres:16-alpine"
	pgUser         = "testuser"
	pgPassword     = "testpass"
	pgDatabase     = "medtracktest"
	pgReadyTimeout = 30 * time.Second
)

// startPostgresContainer runs a throwaway Postgres via the Docker CLI and
// returns the connection string plus a cleanup that removes the container.
func startPostgresContainer(ctx context.Context) (string, func(), error) {
	port, err := freePort()
	if err != nil {
		return "", nil, fmt.Errorf("pick host port: %w", err)
	}

	name := fmt.Sprintf("medtrack-integration-test-%d", port)
	// A stale container from an aborted run would still hold the name.
	exec.CommandContext(ctx, "docker", "rm", "-f", name).Run()

	id, err := dockerRun(ctx,
		"--name", name,
		"-d",
		"-p", fmt.Sprintf("%d:5432", port),
		"-e", "POSTGRES_USER="+pgUser,
		"-e", "POSTGRES_PASSWORD="+pgPassword,
		"-e", "POSTGRES_DB="+pgDatabase,
		pgImage,
	)
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		exec.Command("docker", "rm", "-f", id).Run()
	}

	dsn := fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		pgUser, pgPassword, port, pgDatabase)
	if err := awaitPostgres(ctx, dsn); err != nil {
		cleanup()
		return "", nil, err
	}
	return dsn, cleanup, nil
}

// dockerRun invokes `docker run` and returns the new container's id.
func dockerRun(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", append([]string{"run"}, args...)...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker run: %w\noutput: %s", err, out)
	}
	return strings.TrimSpace(string(out)), nil
}

// freePort reserves and immediately releases a TCP port on localhost.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// awaitPostgres polls until the database answers a ping. Container startup
// includes an initdb run, so the first attempts always fail.
func awaitPostgres(ctx context.Context, dsn string) error {
	ctx, cancel := context.WithTimeout(ctx, pgReadyTimeout)
	defer cancel()

	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	for {
		if pingOnce(ctx, dsn) == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready after %v: %w", pgReadyTimeout, ctx.Err())
		case <-tick.C:
		}
	}
}

func pingOnce(ctx context.Context, dsn string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()
	return pool.Ping(ctx)
}
