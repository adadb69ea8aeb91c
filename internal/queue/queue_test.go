package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"faceattend/internal/attendance"
)

func TestPublisher_RoundTrip(t *testing.T) {
	q := NewInMemory(4)
	p := Publisher{Queue: q}
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	in := attendance.Event{Type: attendance.EventAttendanceMarked, UserID: "u1", RecordID: "r1", Confidence: 88.2, At: at}
	if err := p.Publish(context.Background(), in); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msgs, _ := q.Consume(ctx)
	msg := <-msgs
	if msg.Type != attendance.EventAttendanceMarked {
		t.Errorf("type = %q", msg.Type)
	}
	out, err := Decode(msg)
	if err != nil {
		t.Fatal(err)
	}
	if out.UserID != "u1" || out.RecordID != "r1" || out.Confidence != 88.2 || !out.At.Equal(at) {
		t.Errorf("event = %+v", out)
	}
}

func TestInMemory_PublishHonoursContext(t *testing.T) {
	q := NewInMemory(1)
	ctx := context.Background()
	if err := q.Publish(ctx, Message{Type: "a"}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.Publish(ctx, Message{Type: "b"}); !errors.Is(err, context.Canceled) {
		t.Errorf("full queue err = %v", err)
	}
}

func TestRun_DispatchesAndSkipsBadMessages(t *testing.T) {
	q := NewInMemory(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = q.Publish(ctx, Message{Type: "junk", Body: []byte("not json")})
	p := Publisher{Queue: q}
	_ = p.Publish(ctx, attendance.Event{Type: attendance.EventUserEnrolled, UserID: "u1"})
	_ = p.Publish(ctx, attendance.Event{Type: attendance.EventAttendanceMarked, UserID: "u2"})

	var (
		mu   sync.Mutex
		seen []string
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Run(ctx, q, func(_ context.Context, evt attendance.Event) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, evt.UserID)
			if len(seen) == 2 {
				cancel()
			}
			return errors.New("handler errors are logged")
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "u1" || seen[1] != "u2" {
		t.Errorf("seen = %v", seen)
	}
}
