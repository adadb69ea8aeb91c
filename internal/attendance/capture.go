package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"faceattend/internal/camera"
	"faceattend/internal/extractor"
)

// Detector is the part of the extractor the flows depend on.
type Detector interface {
	Detect(ctx context.Context, frame camera.Frame) (*extractor.Detection, error)
}

func openCamera(ctx context.Context, src camera.Source) (camera.Stream, error) {
	stream, err := src.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}
	return stream, nil
}

// sampleFace takes one frame from stream and runs the detector on it.
func sampleFace(ctx context.Context, stream camera.Stream, det Detector, obs Observer) (*extractor.Detection, camera.Frame, error) {
	frame, err := stream.Frame(ctx)
	if err != nil {
		if errors.Is(err, camera.ErrBadFrame) {
			return nil, frame, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
		}
		return nil, frame, fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}

	start := time.Now()
	d, err := det.Detect(ctx, frame)
	obs.Extracted(time.Since(start))
	switch {
	case errors.Is(err, extractor.ErrNoFaceDetected), err == nil && d == nil:
		return nil, frame, ErrNoFaceDetected
	case err != nil:
		return nil, frame, fmt.Errorf("%w: %w", ErrExtractorUnavailable, err)
	}
	return d, frame, nil
}
