//go:build dlib

package main

import (
	"log/slog"

	"faceattend/internal/config"
	"faceattend/internal/dlibface"
	"faceattend/internal/extractor"
)

// newBackend runs dlib in-process with the models from FACE_MODELS_DIR.
func newBackend(cfg config.App) (extractor.Backend, func()) {
	slog.Info("using in-process dlib recognizer", slog.String("models_dir", cfg.ModelsDir))
	r := dlibface.New(cfg.ModelsDir)
	return r, r.Close
}
