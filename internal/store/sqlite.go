package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"faceattend/internal/attendance"
	"faceattend/internal/face"
)

// sqliteTime is fixed width so stored timestamps sort as text.
const sqliteTime = "2006-01-02 15:04:05.000000000"

// SQLite is a single-file store for one-box deployments and tests.
type SQLite struct {
	db *sql.DB
}

var _ Backend = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the database file at path.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) InsertUser(ctx context.Context, u attendance.NewUser) (attendance.User, error) {
	desc := u.Descriptor
	user := attendance.User{
		ID:         uuid.NewString(),
		Name:       u.Name,
		Email:      u.Email,
		Descriptor: &desc,
		PhotoURL:   u.PhotoURL,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, face_descriptor, photo_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, encodeDescriptor(desc), user.PhotoURL, user.CreatedAt.Format(sqliteTime),
	)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return attendance.User{}, fmt.Errorf("insert user: %w", attendance.ErrDuplicateEmail)
		}
		return attendance.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *SQLite) InsertAttendance(ctx context.Context, userID string, confidence float64, at time.Time) (attendance.Record, error) {
	rec := attendance.Record{
		ID:          uuid.NewString(),
		UserID:      userID,
		CheckInTime: at.UTC(),
		Confidence:  confidence,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attendance_records (id, user_id, check_in_time, face_match_confidence, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.CheckInTime.Format(sqliteTime), rec.Confidence, rec.CreatedAt.Format(sqliteTime),
	)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("insert attendance: %w", err)
	}
	return rec, nil
}

func (s *SQLite) ListEnrolledUsers(ctx context.Context) ([]attendance.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, face_descriptor, photo_url, created_at
		 FROM users WHERE face_descriptor IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []attendance.User
	for rows.Next() {
		var (
			u    attendance.User
			blob []byte
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &blob, &u.PhotoURL, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		d, err := decodeDescriptor(blob)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", u.ID, err)
		}
		u.Descriptor = &d
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLite) ListAttendance(ctx context.Context, limit int) ([]attendance.Record, error) {
	if limit <= 0 {
		limit = attendance.DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.user_id, a.check_in_time, a.face_match_confidence, a.created_at, u.name, u.email
		 FROM attendance_records a
		 JOIN users u ON u.id = a.user_id
		 ORDER BY a.check_in_time DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var recs []attendance.Record
	for rows.Next() {
		var r attendance.Record
		if err := rows.Scan(&r.ID, &r.UserID, &r.CheckInTime, &r.Confidence, &r.CreatedAt, &r.UserName, &r.UserEmail); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *SQLite) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *SQLite) ListConfidencesSince(ctx context.Context, since time.Time) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT face_match_confidence FROM attendance_records WHERE check_in_time >= ?`,
		since.UTC().Format(sqliteTime))
	if err != nil {
		return nil, fmt.Errorf("query confidences: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) UpsertDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errors.New("device id required")
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO devices (device_id) VALUES (?)`, deviceID)
	return err
}

func (s *SQLite) SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (device_id, token, expires_at) VALUES (?, ?, ?)`,
		deviceID, token, expiresAt.UTC().Format(sqliteTime))
	return err
}

func (s *SQLite) RevokeRefreshToken(ctx context.Context, token string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1 WHERE token = ? AND revoked = 0 AND expires_at > ?`,
		token, time.Now().UTC().Format(sqliteTime))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// encodeDescriptor packs a descriptor as little-endian float32s.
func encodeDescriptor(d face.Descriptor) []byte {
	buf := make([]byte, 4*face.DescriptorSize)
	for i, v := range d {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeDescriptor(b []byte) (face.Descriptor, error) {
	var d face.Descriptor
	if len(b) != 4*face.DescriptorSize {
		return d, fmt.Errorf("%w: %d bytes", face.ErrDescriptorLength, len(b))
	}
	for i := range d {
		d[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return d, nil
}
