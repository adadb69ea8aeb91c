package attendance

import (
	"time"

	"faceattend/internal/face"
)

// User is a registered person. Descriptor is nil until the user enrolls.
type User struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Email      string           `json:"email"`
	Descriptor *face.Descriptor `json:"-"`
	PhotoURL   string           `json:"photo_url,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Enrolled reports whether the user has a face descriptor.
func (u User) Enrolled() bool { return u.Descriptor != nil }

// NewUser is the input for registering a user.
type NewUser struct {
	Name       string
	Email      string
	Descriptor face.Descriptor
	PhotoURL   string
}

// Record is one attendance check-in. Confidence is a percentage.
type Record struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CheckInTime time.Time `json:"check_in_time"`
	Confidence  float64   `json:"face_match_confidence"`
	CreatedAt   time.Time `json:"created_at"`
	UserName    string    `json:"user_name,omitempty"`
	UserEmail   string    `json:"user_email,omitempty"`
}

// Summary is the dashboard headline.
type Summary struct {
	TotalToday        int     `json:"total_today"`
	TotalUsers        int     `json:"total_users"`
	AverageConfidence float64 `json:"average_confidence"`
}

// Event types published after a state change.
const (
	EventUserEnrolled     = "user.enrolled"
	EventAttendanceMarked = "attendance.marked"
)

// Event describes something that happened to the attendance data.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	RecordID   string    `json:"record_id,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	At         time.Time `json:"at"`
}
