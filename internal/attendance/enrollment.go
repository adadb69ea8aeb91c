package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"faceattend/internal/camera"
	"faceattend/internal/face"
)

// EnrollState is the position of an Enrollment in its lifecycle.
type EnrollState int

const (
	EnrollIdle EnrollState = iota
	EnrollCameraActive
	EnrollCaptured
	EnrollSubmitted
)

func (s EnrollState) String() string {
	switch s {
	case EnrollIdle:
		return "idle"
	case EnrollCameraActive:
		return "camera_active"
	case EnrollCaptured:
		return "captured"
	case EnrollSubmitted:
		return "submitted"
	}
	return "unknown"
}

// EnrollDeps are the collaborators shared by all enrollments.
type EnrollDeps struct {
	Store    Store
	Detector Detector
	Events   Publisher
	Observer Observer
	Photos   PhotoUploader // optional
	Now      func() time.Time
}

func (d EnrollDeps) withDefaults() EnrollDeps {
	if d.Events == nil {
		d.Events = nopPublisher{}
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Enrollment captures one face descriptor and registers a user with it.
// The descriptor is held in memory until Submit succeeds.
type Enrollment struct {
	ID   string
	deps EnrollDeps

	busy atomic.Bool

	mu         sync.Mutex
	state      EnrollState
	held       *face.Descriptor
	snapshot   []byte
	lastActive time.Time
	expired    bool
}

// NewEnrollment starts an enrollment in the Idle state.
func NewEnrollment(id string, deps EnrollDeps) *Enrollment {
	deps = deps.withDefaults()
	return &Enrollment{ID: id, deps: deps, lastActive: deps.Now()}
}

// State returns the current state.
func (e *Enrollment) State() EnrollState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// HasCapture reports whether a descriptor is held.
func (e *Enrollment) HasCapture() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.held != nil
}

// LastActive is the time of the latest operation.
func (e *Enrollment) LastActive() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActive
}

func (e *Enrollment) set(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
	e.lastActive = e.deps.Now()
}

func (e *Enrollment) begin() error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	e.mu.Lock()
	expired := e.expired
	e.mu.Unlock()
	if expired {
		e.end()
		return ErrSessionNotFound
	}
	return nil
}

func (e *Enrollment) end() { e.busy.Store(false) }

// Capture opens the camera, samples one frame and extracts a descriptor.
// The camera is released before Capture returns. When keepSnapshot is set
// the frame is kept for upload as the user's photo.
func (e *Enrollment) Capture(ctx context.Context, src camera.Source, keepSnapshot bool) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	stream, err := openCamera(ctx, src)
	if err != nil {
		e.set(func() { e.state = EnrollIdle })
		e.deps.Observer.CaptureFailed("enroll", Describe(err).Code)
		return err
	}
	defer stream.Release()
	e.set(func() { e.state = EnrollCameraActive })

	det, frame, err := sampleFace(ctx, stream, e.deps.Detector, e.deps.Observer)
	if err != nil {
		e.deps.Observer.CaptureFailed("enroll", Describe(err).Code)
		return err
	}

	desc := det.Descriptor
	e.set(func() {
		e.held = &desc
		e.snapshot = nil
		if keepSnapshot {
			e.snapshot = frame.JPEG
		}
		e.state = EnrollCaptured
	})
	return nil
}

// Submit registers the user with the held descriptor. It fails with
// ErrMissingFaceCapture, without touching the store, when nothing was
// captured. On success the flow returns to Idle.
func (e *Enrollment) Submit(ctx context.Context, name, email string) (User, error) {
	if err := e.begin(); err != nil {
		return User{}, err
	}
	defer e.end()

	e.mu.Lock()
	held, snapshot := e.held, e.snapshot
	e.mu.Unlock()

	if held == nil {
		return User{}, ErrMissingFaceCapture
	}
	name, email, err := validateForm(name, email)
	if err != nil {
		return User{}, err
	}

	var photoURL string
	if len(snapshot) > 0 && e.deps.Photos != nil {
		photoURL, err = e.deps.Photos.UploadPhoto(ctx, snapshot, e.ID)
		if err != nil {
			// The photo is cosmetic; registration goes ahead without it.
			slog.Warn("enrollment photo upload failed", slog.String("session_id", e.ID), slog.Any("error", err))
		}
	}

	user, err := e.deps.Store.InsertUser(ctx, NewUser{
		Name:       name,
		Email:      email,
		Descriptor: *held,
		PhotoURL:   photoURL,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return User{}, ErrDuplicateEmail
		}
		return User{}, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	e.set(func() { e.state = EnrollSubmitted })
	e.deps.Observer.Enrolled()
	if err := e.deps.Events.Publish(ctx, Event{Type: EventUserEnrolled, UserID: user.ID, At: e.deps.Now()}); err != nil {
		slog.Warn("publish enrollment event failed", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	e.set(func() {
		e.held = nil
		e.snapshot = nil
		e.state = EnrollIdle
	})
	return user, nil
}

// Cancel drops any held capture and returns to Idle.
func (e *Enrollment) Cancel() {
	e.set(func() {
		e.held = nil
		e.snapshot = nil
		e.state = EnrollIdle
	})
}

// expire drops any held capture and makes every later Capture or Submit fail
// with ErrSessionNotFound. It reports false, changing nothing, while an
// operation is running.
func (e *Enrollment) expire() bool {
	if !e.busy.CompareAndSwap(false, true) {
		return false
	}
	defer e.end()
	e.set(func() {
		e.held = nil
		e.snapshot = nil
		e.state = EnrollIdle
		e.expired = true
	})
	return true
}

func validateForm(name, email string) (string, string, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return "", "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", "", fmt.Errorf("%w: invalid email %q", ErrInvalidInput, email)
	}
	return name, email, nil
}
