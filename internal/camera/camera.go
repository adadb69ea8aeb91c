// Package camera models the capture device a flow samples frames from. The
// browser owns the physical camera; the server sees one uploaded frame per
// capture, wrapped in the same acquire/sample/release lifecycle.
package camera

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"
	"sync"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

var (
	// ErrUnavailable means no frame source could be opened.
	ErrUnavailable = errors.New("camera unavailable")
	// ErrPermissionDenied means the user refused camera access.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrReleased is returned when sampling a stream after Release.
	ErrReleased = errors.New("camera stream released")
	// ErrBadFrame means the uploaded bytes are not a decodable image.
	ErrBadFrame = errors.New("frame is not a valid image")
)

// Frame is one sampled image. JPEG holds the (possibly downscaled) frame
// re-encoded as JPEG for extractors that need encoded bytes.
type Frame struct {
	Image image.Image
	JPEG  []byte
}

// Source hands out streams.
type Source interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is an acquired camera. Release must be called on every exit path
// and is safe to call more than once.
type Stream interface {
	Frame(ctx context.Context) (Frame, error)
	Release()
}

// Upload is a Source backed by a frame the browser uploaded.
type Upload struct {
	Data      []byte
	Denied    bool // the client reported a permission error instead of a frame
	MaxWidth  uint
	MaxHeight uint
}

// NewUpload builds an Upload limited to the given frame size.
func NewUpload(data []byte, maxWidth, maxHeight uint) *Upload {
	return &Upload{Data: data, MaxWidth: maxWidth, MaxHeight: maxHeight}
}

// Acquire opens a stream over the uploaded frame.
func (u *Upload) Acquire(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if u.Denied {
		return nil, ErrPermissionDenied
	}
	if len(u.Data) == 0 {
		return nil, ErrUnavailable
	}
	return &uploadStream{src: u}, nil
}

type uploadStream struct {
	src      *Upload
	mu       sync.Mutex
	released bool
}

func (s *uploadStream) Frame(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return Frame{}, ErrReleased
	}
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	return Decode(s.src.Data, s.src.MaxWidth, s.src.MaxHeight)
}

func (s *uploadStream) Release() {
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
}

// MaxDecodePixels bounds the declared size of an uploaded frame. Larger
// images are rejected from their header before any pixel is decoded.
const MaxDecodePixels = 4096 * 4096

// Decode parses a JPEG, PNG or WebP frame, shrinks it to fit within
// maxWidth x maxHeight (0 disables the limit) and re-encodes it as JPEG.
func Decode(data []byte, maxWidth, maxHeight uint) (Frame, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxDecodePixels {
		return Frame{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrBadFrame, cfg.Width, cfg.Height, MaxDecodePixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if maxWidth > 0 && maxHeight > 0 {
		b := img.Bounds()
		if uint(b.Dx()) > maxWidth || uint(b.Dy()) > maxHeight {
			img = resize.Thumbnail(maxWidth, maxHeight, img, resize.Bilinear)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return Frame{}, fmt.Errorf("encode frame: %w", err)
	}
	return Frame{Image: img, JPEG: buf.Bytes()}, nil
}

// DecodeDataURL accepts "data:image/jpeg;base64,..." or bare base64.
func DecodeDataURL(s string) ([]byte, error) {
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return data, nil
}
