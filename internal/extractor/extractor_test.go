package extractor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"faceattend/internal/camera"
)

type countingBackend struct {
	loads   atomic.Int32
	loadErr error
	det     *Detection
}

func (b *countingBackend) Load(ctx context.Context) error {
	b.loads.Add(1)
	return b.loadErr
}

func (b *countingBackend) Detect(ctx context.Context, frame camera.Frame) (*Detection, error) {
	return b.det, nil
}

func TestInitialize_LoadsOnce(t *testing.T) {
	b := &countingBackend{}
	e := New(b)
	ctx := context.Background()

	if err := e.Initialize(ctx); err != nil {
		t.Fatalf("first initialize: %v", err)
	}
	if err := e.Initialize(ctx); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if got := b.loads.Load(); got != 1 {
		t.Errorf("loads = %d, want 1", got)
	}
	if !e.Loaded() {
		t.Error("expected Loaded() to be true")
	}
}

func TestInitialize_ConcurrentCallersLoadOnce(t *testing.T) {
	b := &countingBackend{}
	e := New(b)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Initialize(context.Background())
		}()
	}
	wg.Wait()

	if got := b.loads.Load(); got != 1 {
		t.Errorf("loads = %d, want 1", got)
	}
}

func TestInitialize_RetriesAfterFailure(t *testing.T) {
	b := &countingBackend{loadErr: errors.New("weights missing")}
	e := New(b)
	ctx := context.Background()

	if err := e.Initialize(ctx); err == nil {
		t.Fatal("expected load error")
	}
	if e.Loaded() {
		t.Error("failed load must not mark the extractor loaded")
	}

	b.loadErr = nil
	if err := e.Initialize(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := b.loads.Load(); got != 2 {
		t.Errorf("loads = %d, want 2", got)
	}
}

func TestDetect_NoFace(t *testing.T) {
	e := New(&countingBackend{})
	_, err := e.Detect(context.Background(), camera.Frame{})
	if !errors.Is(err, ErrNoFaceDetected) {
		t.Errorf("expected ErrNoFaceDetected, got %v", err)
	}
}

func TestDetect_InitializesFirst(t *testing.T) {
	b := &countingBackend{det: &Detection{Score: 0.9}}
	e := New(b)

	det, err := e.Detect(context.Background(), camera.Frame{})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if det.Score != 0.9 {
		t.Errorf("Score = %v, want 0.9", det.Score)
	}
	if got := b.loads.Load(); got != 1 {
		t.Errorf("loads = %d, want 1", got)
	}
}
