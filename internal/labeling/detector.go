package labeling

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"fable/internal/output"
	"fable/internal/services"
	"fable/internal/services/llm"
)

// Detector finds face boxes in an image. Boxes are in the image's pixel space
// with the origin at the top-left corner.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]output.Box, error)
}

// WholeImage treats the full frame as a single face.
type WholeImage struct{}

// Detect returns one box covering img.
func (WholeImage) Detect(_ context.Context, img image.Image) ([]output.Box, error) {
	b := img.Bounds()
	return []output.Box{{XMin: 0, YMin: 0, XMax: b.Dx(), YMax: b.Dy()}}, nil
}

const (
	detectSystemPrompt = "You locate human faces in photographs. Answer only with JSON."
	detectUserTemplate = "The image is %d pixels wide and %d pixels high. " +
		"Return every visible human face as {\"faces\": [{\"xmin\": int, \"ymin\": int, \"xmax\": int, \"ymax\": int}]} " +
		"in pixel coordinates. Return {\"faces\": []} when there is no face."
	defaultDetectMaxSide = 1024
)

var detectFormat = json.RawMessage(`{"type":"object","properties":{"faces":{"type":"array","items":{"type":"object",` +
	`"properties":{"xmin":{"type":"integer"},"ymin":{"type":"integer"},"xmax":{"type":"integer"},"ymax":{"type":"integer"}},` +
	`"required":["xmin","ymin","xmax","ymax"]}}},"required":["faces"]}`)

// VisionDetector asks the vision model for face boxes. Large images are
// downscaled before upload and the answer is scaled back to source pixels.
type VisionDetector struct {
	client  ChatClient
	maxSide int
	quality int
}

// NewVisionDetector builds a detector backed by client.
func NewVisionDetector(client ChatClient) *VisionDetector {
	return &VisionDetector{client: client, maxSide: defaultDetectMaxSide, quality: defaultJPEGQuality}
}

type faceAnswer struct {
	Faces []struct {
		XMin float64 `json:"xmin"`
		YMin float64 `json:"ymin"`
		XMax float64 `json:"xmax"`
		YMax float64 `json:"ymax"`
	} `json:"faces"`
}

// Detect implements Detector.
func (d *VisionDetector) Detect(ctx context.Context, img image.Image) ([]output.Box, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, nil
	}

	sent := img
	if max(width, height) > d.maxSide {
		sent = imaging.Fit(img, d.maxSide, d.maxSide, imaging.Lanczos)
	}
	scale := float64(width) / float64(sent.Bounds().Dx())

	encoded, err := encodeJPEG(sent, d.quality)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "detect", "encode", "", err)
	}
	reply, err := d.client.Chat(ctx, llm.Request{
		System: detectSystemPrompt,
		User:   fmt.Sprintf(detectUserTemplate, sent.Bounds().Dx(), sent.Bounds().Dy()),
		Images: []string{encoded},
		Format: detectFormat,
	})
	if err != nil {
		return nil, wrapChatError("detect", err)
	}

	var answer faceAnswer
	if err := llm.DecodeLLMJSON(reply, &answer); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "detect", "decode answer", "", err)
	}

	boxes := make([]output.Box, 0, len(answer.Faces))
	for _, face := range answer.Faces {
		box := clampBox(output.Box{
			XMin: int(math.Floor(face.XMin * scale)),
			YMin: int(math.Floor(face.YMin * scale)),
			XMax: int(math.Ceil(face.XMax * scale)),
			YMax: int(math.Ceil(face.YMax * scale)),
		}, width, height)
		if box.Empty() {
			continue
		}
		boxes = append(boxes, box)
	}
	return boxes, nil
}

// clampBox limits b to [0,width) x [0,height) and normalizes swapped corners.
func clampBox(b output.Box, width, height int) output.Box {
	if b.XMin > b.XMax {
		b.XMin, b.XMax = b.XMax, b.XMin
	}
	if b.YMin > b.YMax {
		b.YMin, b.YMax = b.YMax, b.YMin
	}
	b.XMin = min(max(b.XMin, 0), width)
	b.XMax = min(max(b.XMax, 0), width)
	b.YMin = min(max(b.YMin, 0), height)
	b.YMax = min(max(b.YMax, 0), height)
	return b
}
