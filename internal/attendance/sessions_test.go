package attendance

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSessions_Lifecycle(t *testing.T) {
	s := NewSessions(EnrollDeps{Store: &memStore{}, Detector: &fakeDetector{}}, time.Minute)
	e := s.Open()
	got, err := s.Get(e.ID)
	if err != nil || got != e {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if err := got.Capture(context.Background(), &fakeSource{}, false); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(e.ID); err != nil {
		t.Fatal(err)
	}
	if e.HasCapture() {
		t.Errorf("closed session kept its capture")
	}
	if _, err := s.Get(e.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after close err = %v", err)
	}
	if err := s.Close(e.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Close err = %v", err)
	}
}

func TestSessions_Sweep(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := now
	s := NewSessions(EnrollDeps{
		Store:    &memStore{},
		Detector: &fakeDetector{},
		Now:      func() time.Time { return clock },
	}, 10*time.Minute)

	old := s.Open()
	clock = now.Add(8 * time.Minute)
	fresh := s.Open()

	if n := s.Sweep(now.Add(12 * time.Minute)); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	if _, err := s.Get(old.ID); err == nil {
		t.Errorf("stale session survived")
	}
	if _, err := s.Get(fresh.ID); err != nil {
		t.Errorf("fresh session removed")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d", s.Len())
	}
}

func TestSessions_SweepDropsCaptureAndRefusesLaterUse(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := now
	st := &memStore{}
	s := NewSessions(EnrollDeps{
		Store:    st,
		Detector: &fakeDetector{desc: at(0)},
		Now:      func() time.Time { return clock },
	}, 10*time.Minute)

	e := s.Open()
	if err := e.Capture(context.Background(), &fakeSource{}, false); err != nil {
		t.Fatal(err)
	}
	if n := s.Sweep(now.Add(11 * time.Minute)); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	if e.HasCapture() {
		t.Error("expired session kept its descriptor")
	}

	// A request that looked the session up before the sweep must not
	// register anyone with it.
	if _, err := e.Submit(context.Background(), "Ada", "ada@example.com"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Submit after expiry err = %v, want ErrSessionNotFound", err)
	}
	if st.insertUserCalls != 0 {
		t.Errorf("InsertUser called %d times after expiry", st.insertUserCalls)
	}
	if err := e.Capture(context.Background(), &fakeSource{}, false); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Capture after expiry err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessions_SweepSkipsRunningCapture(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	det := &fakeDetector{block: make(chan struct{})}
	s := NewSessions(EnrollDeps{
		Store:    &memStore{},
		Detector: det,
		Now:      func() time.Time { return now },
	}, time.Minute)

	e := s.Open()
	done := make(chan error, 1)
	go func() { done <- e.Capture(context.Background(), &fakeSource{}, false) }()
	for e.State() != EnrollCameraActive {
		time.Sleep(time.Millisecond)
	}

	if n := s.Sweep(now.Add(time.Hour)); n != 0 {
		t.Errorf("Sweep removed %d sessions with a capture running", n)
	}
	close(det.block)
	if err := <-done; err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if _, err := s.Get(e.ID); err != nil {
		t.Errorf("running session was removed: %v", err)
	}
	if n := s.Sweep(now.Add(time.Hour)); n != 1 {
		t.Errorf("idle session not swept, removed %d", n)
	}
}
