//go:build !dlib

package main

import (
	"log/slog"

	"faceattend/internal/config"
	"faceattend/internal/extractor"
	"faceattend/internal/faceclient"
)

// newBackend talks to the face recognition service over HTTP.
func newBackend(cfg config.App) (extractor.Backend, func()) {
	if cfg.FaceSkip {
		slog.Warn("FACE_SKIP is set, descriptors are derived from pixels and are not real face encodings")
	}
	return faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip), func() {}
}
