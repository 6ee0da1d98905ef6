package filter

import (
	"bytes"
	"fmt"
	"image/jpeg"

	"github.com/anthonynsimon/bild/effect"
)

// Edge highlights edges in each frame, the streaming equivalent of the
// classic Canny demo overlay. Output frames are grayscale JPEG at the
// same dimensions as the input.
type Edge struct {
	radius  float64
	quality int
}

// NewEdge creates an edge-detection filter. radius controls the size of
// the detection kernel; 1.0 matches the single-pixel neighborhood of the
// usual demo settings.
func NewEdge(radius float64) *Edge {
	if radius <= 0 {
		radius = 1.0
	}
	return &Edge{radius: radius, quality: 80}
}

// Apply decodes the JPEG payload, runs edge detection and re-encodes.
func (e *Edge) Apply(jpegData []byte) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return nil, fmt.Errorf("filter: decode failed: %w", err)
	}

	edges := effect.EdgeDetection(img, e.radius)
	gray := effect.Grayscale(edges)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gray, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("filter: encode failed: %w", err)
	}
	return buf.Bytes(), nil
}
