//go:build integration

package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"faceattend/internal/attendance"
)

func setupPostgres(t *testing.T) *Postgres {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil || container == nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	url := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	backend, err := Open(ctx, Options{Driver: DriverPostgres, URL: url, MigrateOnStart: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	return backend.(*Postgres)
}

func TestPostgres_Flow(t *testing.T) {
	p := setupPostgres(t)
	ctx := context.Background()

	u, err := p.InsertUser(ctx, attendance.NewUser{Name: "Ada", Email: "ada@example.com", Descriptor: descriptor(0.2)})
	if err != nil {
		t.Fatalf("InsertUser: %v", err)
	}
	if _, err := p.InsertUser(ctx, attendance.NewUser{Name: "B", Email: "ada@example.com", Descriptor: descriptor(0.3)}); !errors.Is(err, attendance.ErrDuplicateEmail) {
		t.Errorf("duplicate err = %v", err)
	}

	users, err := p.ListEnrolledUsers(ctx)
	if err != nil || len(users) != 1 {
		t.Fatalf("ListEnrolledUsers = %v, %v", users, err)
	}
	if *users[0].Descriptor != descriptor(0.2) {
		t.Errorf("descriptor changed in storage")
	}

	now := time.Now()
	if _, err := p.InsertAttendance(ctx, u.ID, 87.5, now); err != nil {
		t.Fatalf("InsertAttendance: %v", err)
	}
	recs, err := p.ListAttendance(ctx, 10)
	if err != nil || len(recs) != 1 || recs[0].UserName != "Ada" {
		t.Fatalf("ListAttendance = %+v, %v", recs, err)
	}
	confs, err := p.ListConfidencesSince(ctx, now.Add(-time.Minute))
	if err != nil || len(confs) != 1 || confs[0] != 87.5 {
		t.Errorf("ListConfidencesSince = %v, %v", confs, err)
	}

	if err := p.UpsertDevice(ctx, "kiosk"); err != nil {
		t.Fatal(err)
	}
	if err := p.SaveRefreshToken(ctx, "kiosk", "tok", now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if ok, err := p.RevokeRefreshToken(ctx, "tok"); err != nil || !ok {
		t.Errorf("revoke = %v, %v", ok, err)
	}
}
