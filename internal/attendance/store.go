package attendance

import (
	"context"
	"time"
)

// Listing limits. DefaultListLimit applies when none is given; larger
// requests are cut to MaxListLimit.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Store persists users and attendance records.
type Store interface {
	// InsertUser creates a user. A taken email yields ErrDuplicateEmail.
	InsertUser(ctx context.Context, u NewUser) (User, error)
	// InsertAttendance writes one record atomically.
	InsertAttendance(ctx context.Context, userID string, confidence float64, at time.Time) (Record, error)
	// ListEnrolledUsers returns every user that has a descriptor.
	ListEnrolledUsers(ctx context.Context) ([]User, error)
	// ListAttendance returns the latest records by check-in time, joined with
	// the user's name and email.
	ListAttendance(ctx context.Context, limit int) ([]Record, error)
	CountUsers(ctx context.Context) (int, error)
	ListConfidencesSince(ctx context.Context, since time.Time) ([]float64, error)
	Ping(ctx context.Context) error
}

// Publisher delivers events to whoever maintains derived data.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Observer receives flow outcomes, typically for metrics.
type Observer interface {
	Enrolled()
	CaptureFailed(flow, code string)
	Matched(outcome string, confidence float64)
	Extracted(d time.Duration)
}

// PhotoUploader stores an enrollment snapshot and returns its public URL.
type PhotoUploader interface {
	UploadPhoto(ctx context.Context, jpeg []byte, name string) (string, error)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

type nopObserver struct{}

func (nopObserver) Enrolled()                    {}
func (nopObserver) CaptureFailed(string, string) {}
func (nopObserver) Matched(string, float64)      {}
func (nopObserver) Extracted(time.Duration)      {}
