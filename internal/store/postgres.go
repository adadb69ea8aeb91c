package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"faceattend/internal/attendance"
	"faceattend/internal/face"
)

const uniqueViolation = "23505"

// Postgres stores users and records in Postgres with descriptors in a
// pgvector column.
type Postgres struct {
	db *sql.DB
}

var _ Backend = (*Postgres)(nil)

// NewPostgres opens a pgx-backed connection pool and pings it.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) InsertUser(ctx context.Context, u attendance.NewUser) (attendance.User, error) {
	user := attendance.User{
		ID:       uuid.NewString(),
		Name:     u.Name,
		Email:    u.Email,
		PhotoURL: u.PhotoURL,
	}
	desc := u.Descriptor
	user.Descriptor = &desc

	err := p.db.QueryRowContext(ctx, `
		INSERT INTO users (id, name, email, face_descriptor, photo_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, user.ID, user.Name, user.Email, pgvector.NewVector(desc.Slice()), user.PhotoURL).Scan(&user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return attendance.User{}, fmt.Errorf("insert user: %w", attendance.ErrDuplicateEmail)
		}
		return attendance.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (p *Postgres) InsertAttendance(ctx context.Context, userID string, confidence float64, at time.Time) (attendance.Record, error) {
	rec := attendance.Record{
		ID:          uuid.NewString(),
		UserID:      userID,
		CheckInTime: at.UTC(),
		Confidence:  confidence,
	}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, user_id, check_in_time, face_match_confidence)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, rec.ID, rec.UserID, rec.CheckInTime, rec.Confidence).Scan(&rec.CreatedAt)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("insert attendance: %w", err)
	}
	return rec, nil
}

func (p *Postgres) ListEnrolledUsers(ctx context.Context) ([]attendance.User, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, email, face_descriptor, photo_url, created_at
		FROM users
		WHERE face_descriptor IS NOT NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []attendance.User
	for rows.Next() {
		var (
			u   attendance.User
			vec pgvector.Vector
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &vec, &u.PhotoURL, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		d, err := face.FromSlice(vec.Slice())
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", u.ID, err)
		}
		u.Descriptor = &d
		users = append(users, u)
	}
	return users, rows.Err()
}

func (p *Postgres) ListAttendance(ctx context.Context, limit int) ([]attendance.Record, error) {
	if limit <= 0 {
		limit = attendance.DefaultListLimit
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT a.id, a.user_id, a.check_in_time, a.face_match_confidence, a.created_at, u.name, u.email
		FROM attendance_records a
		JOIN users u ON u.id = a.user_id
		ORDER BY a.check_in_time DESC
		LIMIT $1
	`, limit)
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

func (p *Postgres) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (p *Postgres) ListConfidencesSince(ctx context.Context, since time.Time) ([]float64, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT face_match_confidence FROM attendance_records WHERE check_in_time >= $1
	`, since)
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

// UpsertDevice ensures a device record exists.
func (p *Postgres) UpsertDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errors.New("device id required")
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO devices (device_id)
		VALUES ($1)
		ON CONFLICT (device_id) DO NOTHING
	`, deviceID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (p *Postgres) SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (device_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, deviceID, token, expiresAt)
	return err
}

// RevokeRefreshToken marks a live token revoked and reports whether it was.
func (p *Postgres) RevokeRefreshToken(ctx context.Context, token string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token = $1 AND NOT revoked AND expires_at > NOW()
	`, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
