package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"faceattend/internal/camera"
	"faceattend/internal/face"
)

// MatchState is the position of a MatchFlow in its lifecycle.
type MatchState int

const (
	MatchIdle MatchState = iota
	MatchCameraActive
	MatchProcessing
	MatchSuccess
	MatchRejected
)

func (s MatchState) String() string {
	switch s {
	case MatchIdle:
		return "idle"
	case MatchCameraActive:
		return "camera_active"
	case MatchProcessing:
		return "processing"
	case MatchSuccess:
		return "success"
	case MatchRejected:
		return "rejected"
	}
	return "unknown"
}

// Outcome values reported by Run.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
)

// MatchResult is the outcome of one attendance attempt. Reason is set when
// Outcome is OutcomeRejected and is one of ErrNoRegisteredUsers or ErrNoMatch.
type MatchResult struct {
	Outcome    string
	Reason     error
	User       User
	Record     Record
	Confidence float64
}

// Scorer picks the best candidate for a live descriptor.
type Scorer func(live face.Descriptor, candidates []face.Candidate, threshold float64) (face.Match, bool)

// MatchDeps are the collaborators of a MatchFlow.
type MatchDeps struct {
	Store     Store
	Detector  Detector
	Events    Publisher
	Observer  Observer
	// Threshold is the confidence a match must exceed. Zero or less selects
	// face.DefaultThreshold; confidences are at most 1, so a threshold of 0
	// would accept any face.
	Threshold float64
	Score     Scorer
	Now       func() time.Time
}

// MatchFlow identifies a live face against every enrolled user and records
// attendance for an accepted match.
type MatchFlow struct {
	deps MatchDeps

	busy atomic.Bool

	mu         sync.Mutex
	state      MatchState
	lastActive time.Time
}

// NewMatchFlow fills in defaults for optional dependencies.
func NewMatchFlow(deps MatchDeps) *MatchFlow {
	if deps.Events == nil {
		deps.Events = nopPublisher{}
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Threshold <= 0 {
		deps.Threshold = face.DefaultThreshold
	}
	if deps.Score == nil {
		deps.Score = face.BestMatch
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &MatchFlow{deps: deps, lastActive: deps.Now()}
}

// State returns the current state.
func (f *MatchFlow) State() MatchState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// LastActive is the time of the latest state change.
func (f *MatchFlow) LastActive() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastActive
}

func (f *MatchFlow) setState(s MatchState) {
	f.mu.Lock()
	f.state = s
	f.lastActive = f.deps.Now()
	f.mu.Unlock()
}

// Run captures one frame from src and tries to identify it. Rejections are
// reported in the result; errors are reserved for failures the caller should
// surface as faults. The camera is released before Run returns.
func (f *MatchFlow) Run(ctx context.Context, src camera.Source) (MatchResult, error) {
	if !f.busy.CompareAndSwap(false, true) {
		return MatchResult{}, ErrBusy
	}
	defer f.busy.Store(false)

	stream, err := openCamera(ctx, src)
	if err != nil {
		f.setState(MatchIdle)
		f.deps.Observer.CaptureFailed("match", Describe(err).Code)
		return MatchResult{}, err
	}
	defer stream.Release()
	f.setState(MatchCameraActive)

	det, _, err := sampleFace(ctx, stream, f.deps.Detector, f.deps.Observer)
	if err != nil {
		f.deps.Observer.CaptureFailed("match", Describe(err).Code)
		return MatchResult{}, err
	}
	f.setState(MatchProcessing)

	users, err := f.deps.Store.ListEnrolledUsers(ctx)
	if err != nil {
		f.setState(MatchCameraActive)
		return MatchResult{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	candidates := make([]face.Candidate, 0, len(users))
	byID := make(map[string]User, len(users))
	for _, u := range users {
		if u.Descriptor == nil {
			continue
		}
		candidates = append(candidates, face.Candidate{UserID: u.ID, Descriptor: *u.Descriptor})
		byID[u.ID] = u
	}
	if len(candidates) == 0 {
		f.setState(MatchRejected)
		f.deps.Observer.Matched(OutcomeRejected, 0)
		return MatchResult{Outcome: OutcomeRejected, Reason: ErrNoRegisteredUsers}, nil
	}

	best, _ := f.deps.Score(det.Descriptor, candidates, f.deps.Threshold)
	if !best.Accepted {
		f.setState(MatchRejected)
		f.deps.Observer.Matched(OutcomeRejected, best.Confidence)
		slog.Debug("face not recognized",
			slog.String("closest_user_id", best.UserID),
			slog.Float64("confidence", best.Confidence))
		return MatchResult{Outcome: OutcomeRejected, Reason: ErrNoMatch, Confidence: best.Confidence}, nil
	}

	rec, err := f.deps.Store.InsertAttendance(ctx, best.UserID, face.Percent(best.Confidence), f.deps.Now())
	if err != nil {
		f.setState(MatchCameraActive)
		return MatchResult{}, fmt.Errorf("%w: %w", ErrAttendanceWriteFailed, err)
	}

	user := byID[best.UserID]
	if rec.UserName == "" {
		rec.UserName, rec.UserEmail = user.Name, user.Email
	}
	f.setState(MatchSuccess)
	f.deps.Observer.Matched(OutcomeSuccess, best.Confidence)
	evt := Event{
		Type:       EventAttendanceMarked,
		UserID:     rec.UserID,
		RecordID:   rec.ID,
		Confidence: rec.Confidence,
		At:         rec.CheckInTime,
	}
	if err := f.deps.Events.Publish(ctx, evt); err != nil {
		slog.Warn("publish attendance event failed", slog.String("record_id", rec.ID), slog.Any("error", err))
	}

	return MatchResult{
		Outcome:    OutcomeSuccess,
		User:       user,
		Record:     rec,
		Confidence: best.Confidence,
	}, nil
}
