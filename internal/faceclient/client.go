package faceclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"time"

	"github.com/nfnt/resize"

	"faceattend/internal/camera"
	"faceattend/internal/extractor"
	"faceattend/internal/face"
)

// FaceQuality contains face quality metrics reported by the service.
type FaceQuality struct {
	Score     float64 `json:"score"`
	Blur      float64 `json:"blur"`
	IsFrontal bool    `json:"is_frontal"`
}

type detectedFace struct {
	Box        []int        `json:"box"` // x1, y1, x2, y2
	Landmarks  [][2]int     `json:"landmarks"`
	Descriptor []float64    `json:"descriptor"`
	Score      float64      `json:"score"`
	Quality    *FaceQuality `json:"quality,omitempty"`
}

// Client calls the face recognition microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // Face processing can take time
		},
	}
}

var _ extractor.Backend = (*Client)(nil)

// Load asks the service to load its detector, landmark and recognition
// models. The service treats repeated loads as no-ops.
func (c *Client) Load(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/models/load", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}
	return nil
}

// Detect sends the frame to /descriptor. A response with zero faces, or with
// more than one face, yields a nil detection.
func (c *Client) Detect(ctx context.Context, frame camera.Frame) (*extractor.Detection, error) {
	if c.Skip {
		return mockDetection(frame), nil
	}
	if len(frame.JPEG) == 0 {
		return nil, fmt.Errorf("frame has no image data")
	}

	body, _ := json.Marshal(map[string]string{
		"image": base64.StdEncoding.EncodeToString(frame.JPEG),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/descriptor", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Faces []detectedFace `json:"faces"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Faces) != 1 {
		return nil, nil
	}
	return toDetection(out.Faces[0])
}

func toDetection(f detectedFace) (*extractor.Detection, error) {
	desc, err := face.FromFloat64s(f.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("face service returned bad descriptor: %w", err)
	}
	det := &extractor.Detection{Descriptor: desc, Score: f.Score}
	if len(f.Box) == 4 {
		det.Box = image.Rect(f.Box[0], f.Box[1], f.Box[2], f.Box[3])
	}
	for _, p := range f.Landmarks {
		det.Landmarks = append(det.Landmarks, image.Pt(p[0], p[1]))
	}
	return det, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}

	return nil
}

// mockDetection derives a descriptor from a 16x8 grayscale thumbnail of the
// frame, one value in [0, 1] per pixel. Identical frames match; a shift of
// about nine gray levels across the frame already falls below the default
// threshold. Only used in skip mode for local development.
func mockDetection(frame camera.Frame) *extractor.Detection {
	if frame.Image == nil {
		return nil
	}
	thumb := resize.Resize(16, 8, frame.Image, resize.Bilinear)
	var desc face.Descriptor
	i := 0
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			g := color.GrayModel.Convert(thumb.At(thumb.Bounds().Min.X+x, thumb.Bounds().Min.Y+y)).(color.Gray)
			desc[i] = float32(g.Y) / 255
			i++
		}
	}
	return &extractor.Detection{
		Box:        frame.Image.Bounds(),
		Descriptor: desc,
		Score:      0.95,
	}
}
