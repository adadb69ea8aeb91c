// Package extractor turns camera frames into face descriptors. The model
// itself lives behind a Backend; Extractor owns its one-time initialization.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"faceattend/internal/camera"
	"faceattend/internal/face"
)

// ErrNoFaceDetected is returned when a frame holds no face, or more than one
// face and the backend can't pick one.
var ErrNoFaceDetected = errors.New("no face detected")

// Detection is a single detected face.
type Detection struct {
	Box        image.Rectangle
	Landmarks  []image.Point
	Descriptor face.Descriptor
	Score      float64
}

// Backend is a face detector/encoder. Detect returns a nil Detection when no
// single face was found.
type Backend interface {
	Load(ctx context.Context) error
	Detect(ctx context.Context, frame camera.Frame) (*Detection, error)
}

// Extractor wraps a Backend and loads its model at most once per process.
type Extractor struct {
	backend Backend

	mu     sync.Mutex
	loaded bool
}

// New creates an Extractor around backend.
func New(backend Backend) *Extractor {
	return &Extractor{backend: backend}
}

// Initialize loads the model. Concurrent callers wait for the first load.
// Once a load succeeds further calls are no-ops; a failed load is retried
// by the next caller.
func (e *Extractor) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return nil
	}
	if err := e.backend.Load(ctx); err != nil {
		return fmt.Errorf("load face model: %w", err)
	}
	e.loaded = true
	return nil
}

// Loaded reports whether the model has been loaded.
func (e *Extractor) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Detect initializes the model if needed and extracts one face from frame.
func (e *Extractor) Detect(ctx context.Context, frame camera.Frame) (*Detection, error) {
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}
	det, err := e.backend.Detect(ctx, frame)
	if err != nil {
		return nil, err
	}
	if det == nil {
		return nil, ErrNoFaceDetected
	}
	return det, nil
}
