package attendance

import (
	"errors"
	"net/http"
)

// Flow errors. Every failure surfaced by a flow wraps one of these.
var (
	ErrNoFaceDetected        = errors.New("no face detected")
	ErrCameraUnavailable     = errors.New("camera unavailable")
	ErrInvalidFrame          = errors.New("invalid frame")
	ErrDuplicateEmail        = errors.New("email already registered")
	ErrNoRegisteredUsers     = errors.New("no registered users")
	ErrNoMatch               = errors.New("face not recognized")
	ErrMissingFaceCapture    = errors.New("missing face capture")
	ErrInvalidInput          = errors.New("invalid input")
	ErrRegistrationFailed    = errors.New("registration failed")
	ErrAttendanceWriteFailed = errors.New("attendance write failed")
	ErrExtractorUnavailable  = errors.New("face extractor unavailable")
	ErrStoreUnavailable      = errors.New("store unavailable")
	ErrBusy                  = errors.New("capture already in progress")
	ErrSessionNotFound       = errors.New("enrollment session not found")
)

// Problem is the user-facing form of an error.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

var problems = []struct {
	err     error
	problem Problem
}{
	{ErrNoFaceDetected, Problem{"no_face_detected", "No face detected. Please ensure your face is clearly visible.", http.StatusUnprocessableEntity}},
	{ErrCameraUnavailable, Problem{"camera_unavailable", "Unable to access camera. Please grant camera permissions.", http.StatusBadRequest}},
	{ErrInvalidFrame, Problem{"invalid_frame", "The captured frame could not be read. Please try again.", http.StatusBadRequest}},
	{ErrDuplicateEmail, Problem{"duplicate_email", "This email is already registered.", http.StatusConflict}},
	{ErrNoRegisteredUsers, Problem{"no_registered_users", "No registered users found. Please register first.", http.StatusNotFound}},
	{ErrNoMatch, Problem{"no_match", "Face not recognized. Please try again or register first.", http.StatusUnauthorized}},
	{ErrMissingFaceCapture, Problem{"missing_face_capture", "Please capture your face before submitting.", http.StatusBadRequest}},
	{ErrInvalidInput, Problem{"invalid_input", "Please provide your full name and a valid email address.", http.StatusBadRequest}},
	{ErrRegistrationFailed, Problem{"registration_failed", "An error occurred during registration. Please try again.", http.StatusInternalServerError}},
	{ErrAttendanceWriteFailed, Problem{"attendance_write_failed", "An error occurred while marking attendance. Please try again.", http.StatusInternalServerError}},
	{ErrExtractorUnavailable, Problem{"extractor_unavailable", "Face recognition is unavailable right now. Please try again.", http.StatusServiceUnavailable}},
	{ErrStoreUnavailable, Problem{"store_unavailable", "An error occurred. Please try again.", http.StatusServiceUnavailable}},
	{ErrBusy, Problem{"busy", "Another capture is already in progress.", http.StatusConflict}},
	{ErrSessionNotFound, Problem{"session_not_found", "Enrollment session not found or expired. Please start again.", http.StatusNotFound}},
}

// Describe maps err to the message shown to the user. Unknown errors get a
// generic 500 problem.
func Describe(err error) Problem {
	for _, p := range problems {
		if errors.Is(err, p.err) {
			return p.problem
		}
	}
	return Problem{"internal", "An unexpected error occurred. Please try again.", http.StatusInternalServerError}
}
