package camera

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func pngFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestUpload_AcquireEmptyIsUnavailable(t *testing.T) {
	_, err := NewUpload(nil, 640, 480).Acquire(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestUpload_AcquireDenied(t *testing.T) {
	u := &Upload{Denied: true}
	if _, err := u.Acquire(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestUpload_FrameDownscales(t *testing.T) {
	ctx := context.Background()
	s, err := NewUpload(pngFrame(t, 1280, 960), 640, 480).Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer s.Release()

	f, err := s.Frame(ctx)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	b := f.Image.Bounds()
	if b.Dx() > 640 || b.Dy() > 480 {
		t.Errorf("frame not downscaled: %dx%d", b.Dx(), b.Dy())
	}
	if len(f.JPEG) == 0 {
		t.Error("expected JPEG bytes")
	}
}

func TestUpload_FrameAfterRelease(t *testing.T) {
	ctx := context.Background()
	s, err := NewUpload(pngFrame(t, 8, 8), 640, 480).Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	s.Release()
	s.Release()
	if _, err := s.Frame(ctx); !errors.Is(err, ErrReleased) {
		t.Errorf("expected ErrReleased, got %v", err)
	}
}

func TestDecode_Garbage(t *testing.T) {
	if _, err := Decode([]byte("not an image"), 0, 0); !errors.Is(err, ErrBadFrame) {
		t.Errorf("expected ErrBadFrame, got %v", err)
	}
}

// withDimensions rewrites the IHDR chunk of a PNG so it declares w x h.
func withDimensions(data []byte, w, h uint32) []byte {
	out := append([]byte(nil), data...)
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc after 13 data bytes
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestDecode_RejectsOversizedDimensions(t *testing.T) {
	huge := withDimensions(pngFrame(t, 4, 4), 12000, 12000)
	if _, err := Decode(huge, 640, 480); !errors.Is(err, ErrBadFrame) {
		t.Fatalf("12000x12000 frame: err = %v, want ErrBadFrame", err)
	}

	src := NewUpload(huge, 640, 480)
	st, err := src.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Release()
	if _, err := st.Frame(context.Background()); !errors.Is(err, ErrBadFrame) {
		t.Errorf("Frame err = %v, want ErrBadFrame", err)
	}
}

func TestDecode_PixelLimitIsTheArea(t *testing.T) {
	// Wide but short frames are fine as long as the area fits.
	if _, err := Decode(withDimensions(pngFrame(t, 4, 4), 4097, 4096), 0, 0); !errors.Is(err, ErrBadFrame) {
		t.Errorf("4097x4096: err = %v, want ErrBadFrame", err)
	}
	if _, err := Decode(pngFrame(t, 600, 20), 640, 480); err != nil {
		t.Errorf("600x20: %v", err)
	}
}

func TestDecodeDataURL(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	enc := base64.StdEncoding.EncodeToString(raw)

	for _, in := range []string{"data:image/png;base64," + enc, enc} {
		got, err := DecodeDataURL(in)
		if err != nil {
			t.Fatalf("DecodeDataURL(%q): %v", in, err)
		}
		if !bytes.Equal(got, raw) {
			t.Errorf("DecodeDataURL(%q) = %v, want %v", in, got, raw)
		}
	}
	if _, err := DecodeDataURL("data:image/png;base64,!!!"); !errors.Is(err, ErrBadFrame) {
		t.Errorf("expected ErrBadFrame, got %v", err)
	}
}
