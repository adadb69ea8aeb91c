//go:build dlib

// Package dlibface runs face detection and encoding in-process with dlib.
// Building it needs the dlib headers and models, hence the dlib build tag.
package dlibface

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gof "github.com/Kagami/go-face"

	"faceattend/internal/camera"
	"faceattend/internal/extractor"
	"faceattend/internal/face"
)

// Recognizer is an extractor.Backend over a dlib recognizer loaded from
// modelsDir (shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat, mmod_human_face_detector.dat).
type Recognizer struct {
	modelsDir string

	mu  sync.Mutex
	rec *gof.Recognizer
}

var _ extractor.Backend = (*Recognizer)(nil)

// New returns an unloaded recognizer.
func New(modelsDir string) *Recognizer {
	return &Recognizer{modelsDir: modelsDir}
}

// Load reads the model weights.
func (r *Recognizer) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec != nil {
		return nil
	}
	rec, err := gof.NewRecognizer(r.modelsDir)
	if err != nil {
		return fmt.Errorf("dlib recognizer: %w", err)
	}
	r.rec = rec
	return nil
}

// Detect runs the recognizer on the JPEG frame. dlib is not safe for
// concurrent use, so calls are serialized.
func (r *Recognizer) Detect(ctx context.Context, frame camera.Frame) (*extractor.Detection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec == nil {
		return nil, errors.New("dlib recognizer not loaded")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	faces, err := r.rec.Recognize(frame.JPEG)
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}
	if len(faces) != 1 {
		return nil, nil
	}
	f := faces[0]
	return &extractor.Detection{
		Box:        f.Rectangle,
		Landmarks:  f.Shapes,
		Descriptor: face.Descriptor(f.Descriptor),
		Score:      1,
	}, nil
}

// Close frees the dlib resources.
func (r *Recognizer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec != nil {
		r.rec.Close()
		r.rec = nil
	}
}
