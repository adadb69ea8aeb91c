package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"faceattend/internal/attendance"
	"faceattend/internal/face"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attend.db")
	if err := RunMigrations(DriverSQLite, path); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s, err := NewSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func descriptor(seed float32) face.Descriptor {
	var d face.Descriptor
	for i := range d {
		d[i] = seed + float32(i)*0.001
	}
	return d
}

func TestSQLite_UsersRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	u, err := s.InsertUser(ctx, attendance.NewUser{Name: "Ada", Email: "ada@example.com", Descriptor: descriptor(0.1)})
	if err != nil {
		t.Fatalf("InsertUser: %v", err)
	}
	if u.ID == "" {
		t.Fatal("empty id")
	}

	users, err := s.ListEnrolledUsers(ctx)
	if err != nil {
		t.Fatalf("ListEnrolledUsers: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("len = %d, want 1", len(users))
	}
	if *users[0].Descriptor != descriptor(0.1) {
		t.Errorf("descriptor changed in storage")
	}
	if users[0].Email != "ada@example.com" {
		t.Errorf("email = %q", users[0].Email)
	}

	n, err := s.CountUsers(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountUsers = %d, %v", n, err)
	}
}

func TestSQLite_DuplicateEmail(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if _, err := s.InsertUser(ctx, attendance.NewUser{Name: "Ada", Email: "ada@example.com", Descriptor: descriptor(0.1)}); err != nil {
		t.Fatal(err)
	}
	_, err := s.InsertUser(ctx, attendance.NewUser{Name: "Other", Email: "ada@example.com", Descriptor: descriptor(0.2)})
	if !errors.Is(err, attendance.ErrDuplicateEmail) {
		t.Errorf("err = %v, want ErrDuplicateEmail", err)
	}
}

func TestSQLite_Attendance(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	u, err := s.InsertUser(ctx, attendance.NewUser{Name: "Ada", Email: "ada@example.com", Descriptor: descriptor(0.1)})
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	for i, conf := range []float64{70, 80.5, 90} {
		if _, err := s.InsertAttendance(ctx, u.ID, conf, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("InsertAttendance: %v", err)
		}
	}

	recs, err := s.ListAttendance(ctx, 2)
	if err != nil {
		t.Fatalf("ListAttendance: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	if recs[0].Confidence != 90 || recs[0].UserName != "Ada" || recs[0].UserEmail != "ada@example.com" {
		t.Errorf("newest = %+v", recs[0])
	}
	if !recs[0].CheckInTime.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("check-in = %v", recs[0].CheckInTime)
	}

	confs, err := s.ListConfidencesSince(ctx, base.Add(30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(confs) != 2 {
		t.Errorf("confidences since = %v", confs)
	}
}

func TestSQLite_AttendanceUnknownUser(t *testing.T) {
	s := newTestSQLite(t)
	if _, err := s.InsertAttendance(context.Background(), "missing", 75, time.Now()); err == nil {
		t.Error("expected foreign key error")
	}
}

func TestSQLite_RefreshTokens(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	if err := s.UpsertDevice(ctx, "kiosk-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertDevice(ctx, "kiosk-1"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if err := s.SaveRefreshToken(ctx, "kiosk-1", "tok", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	ok, err := s.RevokeRefreshToken(ctx, "tok")
	if err != nil || !ok {
		t.Fatalf("first revoke = %v, %v", ok, err)
	}
	ok, err = s.RevokeRefreshToken(ctx, "tok")
	if err != nil || ok {
		t.Errorf("second revoke = %v, %v", ok, err)
	}
	if err := s.SaveRefreshToken(ctx, "kiosk-1", "old", time.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.RevokeRefreshToken(ctx, "old"); ok {
		t.Error("expired token accepted")
	}
}

func TestDescriptorEncoding(t *testing.T) {
	d := descriptor(-0.5)
	got, err := decodeDescriptor(encodeDescriptor(d))
	if err != nil || got != d {
		t.Errorf("decode(encode(d)) = %v, %v", got, err)
	}
	if _, err := decodeDescriptor([]byte{1, 2, 3}); !errors.Is(err, face.ErrDescriptorLength) {
		t.Errorf("short blob err = %v", err)
	}
}

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		driver, in, want string
		wantErr          bool
	}{
		{DriverPostgres, "postgres://u:p@h:5432/db?sslmode=disable", "pgx5://u:p@h:5432/db?sslmode=disable", false},
		{DriverPostgres, "postgresql://h/db", "pgx5://h/db", false},
		{DriverPostgres, "mysql://h/db", "", true},
		{DriverSQLite, "data/attend.db", "sqlite3://data/attend.db", false},
		{"oracle", "x", "", true},
	}
	for _, tt := range tests {
		got, err := migrateURL(tt.driver, tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("migrateURL(%q, %q) = %q, %v", tt.driver, tt.in, got, err)
		}
	}
}
