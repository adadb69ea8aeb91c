package attendance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"faceattend/internal/camera"
	"faceattend/internal/extractor"
	"faceattend/internal/face"
)

type memStore struct {
	mu      sync.Mutex
	users   []User
	records []Record

	insertUserErr   error
	insertRecordErr error
	listErr         error

	insertUserCalls int
	listCalls       int
	calls           int
	lastLimit       int
}

func (s *memStore) InsertUser(_ context.Context, u NewUser) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.insertUserCalls++
	if s.insertUserErr != nil {
		return User{}, s.insertUserErr
	}
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return User{}, fmt.Errorf("insert user: %w", ErrDuplicateEmail)
		}
	}
	d := u.Descriptor
	user := User{
		ID:         fmt.Sprintf("u%d", len(s.users)+1),
		Name:       u.Name,
		Email:      u.Email,
		Descriptor: &d,
		PhotoURL:   u.PhotoURL,
		CreatedAt:  time.Now(),
	}
	s.users = append(s.users, user)
	return user, nil
}

func (s *memStore) InsertAttendance(_ context.Context, userID string, confidence float64, at time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.insertRecordErr != nil {
		return Record{}, s.insertRecordErr
	}
	r := Record{
		ID:          fmt.Sprintf("r%d", len(s.records)+1),
		UserID:      userID,
		CheckInTime: at,
		Confidence:  confidence,
		CreatedAt:   at,
	}
	s.records = append(s.records, r)
	return r, nil
}

func (s *memStore) ListEnrolledUsers(context.Context) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []User
	for _, u := range s.users {
		if u.Enrolled() {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memStore) ListAttendance(_ context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastLimit = limit
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := append([]Record(nil), s.records...)
	sort.Slice(out, func(i, j int) bool { return out[i].CheckInTime.After(out[j].CheckInTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) CountUsers(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return len(s.users), s.listErr
}

func (s *memStore) ListConfidencesSince(_ context.Context, since time.Time) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []float64
	for _, r := range s.records {
		if !r.CheckInTime.Before(since) {
			out = append(out, r.Confidence)
		}
	}
	return out, nil
}

func (s *memStore) Ping(context.Context) error { return nil }

func (s *memStore) addUser(id string, d face.Descriptor) {
	s.users = append(s.users, User{ID: id, Name: "User " + id, Email: id + "@example.com", Descriptor: &d})
}

// fakeSource hands out streams and counts acquire/release pairs.
type fakeSource struct {
	acquireErr error
	frameErr   error

	mu       sync.Mutex
	acquired int
	released int
}

func (s *fakeSource) Acquire(context.Context) (camera.Stream, error) {
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	s.mu.Lock()
	s.acquired++
	s.mu.Unlock()
	return &fakeStream{src: s}, nil
}

func (s *fakeSource) open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired - s.released
}

type fakeStream struct {
	src  *fakeSource
	once sync.Once
}

func (st *fakeStream) Frame(context.Context) (camera.Frame, error) {
	if st.src.frameErr != nil {
		return camera.Frame{}, st.src.frameErr
	}
	return camera.Frame{JPEG: []byte{0xff, 0xd8}}, nil
}

func (st *fakeStream) Release() {
	st.once.Do(func() {
		st.src.mu.Lock()
		st.src.released++
		st.src.mu.Unlock()
	})
}

// fakeDetector returns a fixed descriptor, or err when set.
type fakeDetector struct {
	desc  face.Descriptor
	err   error
	block chan struct{}
}

func (d *fakeDetector) Detect(ctx context.Context, _ camera.Frame) (*extractor.Detection, error) {
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return &extractor.Detection{Descriptor: d.desc, Score: 0.99}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

type fakeUploader struct {
	url   string
	err   error
	calls int
}

func (u *fakeUploader) UploadPhoto(context.Context, []byte, string) (string, error) {
	u.calls++
	return u.url, u.err
}

var errBoom = errors.New("boom")

// at returns a descriptor whose distance from the zero descriptor is dist.
func at(dist float32) face.Descriptor {
	var d face.Descriptor
	d[0] = dist
	return d
}
