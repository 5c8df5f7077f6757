package labeling

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"fable/internal/logging"
	"fable/internal/output"
	"fable/internal/schema"
	"fable/internal/services"
	"fable/internal/services/llm"
)

// ErrProcessing marks every failure returned by Process.
var ErrProcessing = errors.New("processing failed")

// UserPrompt accompanies every face crop.
const UserPrompt = "Describe the following image:"

const defaultJPEGQuality = 90

// ChatClient is the subset of the vision client used here.
type ChatClient interface {
	Chat(ctx context.Context, req llm.Request) (string, error)
}

// Labeler labels the faces found in one image.
type Labeler struct {
	root     string
	schema   *schema.Schema
	client   ChatClient
	detector Detector
	quality  int
	logger   *slog.Logger
}

// Option customizes a Labeler.
type Option func(*Labeler)

// WithDetector replaces the default whole-image detector.
func WithDetector(d Detector) Option {
	return func(l *Labeler) {
		if d != nil {
			l.detector = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Labeler) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithJPEGQuality sets the crop encoding quality (1-100).
func WithJPEGQuality(q int) Option {
	return func(l *Labeler) {
		if q >= 1 && q <= 100 {
			l.quality = q
		}
	}
}

// New builds a Labeler. root is the data directory; record filenames are
// reported relative to it.
func New(root string, sch *schema.Schema, client ChatClient, opts ...Option) *Labeler {
	l := &Labeler{
		root:     root,
		schema:   sch,
		client:   client,
		detector: WholeImage{},
		quality:  defaultJPEGQuality,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.NewComponentLogger(l.logger, "labeling")
	return l
}

// Process labels every face in the image at path. Zero faces is a success
// with no records.
func (l *Labeler) Process(ctx context.Context, path string) ([]output.Record, error) {
	records, err := l.process(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProcessing, path, err)
	}
	return records, nil
}

func (l *Labeler) process(ctx context.Context, path string) ([]output.Record, error) {
	logger := logging.WithContext(services.WithItemPath(ctx, path), l.logger)
	started := time.Now()

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, services.Wrap(services.ErrNotFound, "labeling", "open image", "", err)
		}
		return nil, services.Wrap(services.ErrValidation, "labeling", "decode image", "", err)
	}

	boxes, err := l.detector.Detect(ctx, img)
	if err != nil {
		return nil, err
	}
	logger.Debug("faces located", logging.Int("faces", len(boxes)))

	filename := l.relativeName(path)
	system := l.schema.SystemMessage()
	format := l.schema.JSONSchema()
	origin := img.Bounds().Min

	records := make([]output.Record, 0, len(boxes))
	for personID, box := range boxes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		crop := imaging.Crop(img, image.Rect(box.XMin, box.YMin, box.XMax, box.YMax).Add(origin))
		encoded, err := encodeJPEG(crop, l.quality)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "labeling", "encode crop", "", err)
		}
		reply, err := l.client.Chat(ctx, llm.Request{
			System: system,
			User:   UserPrompt,
			Images: []string{encoded},
			Format: format,
		})
		if err != nil {
			return nil, wrapChatError("labeling", err)
		}
		labels, err := l.schema.Decode([]byte(llm.SanitizeJSON(reply)))
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "labeling", "decode answer", fmt.Sprintf("person %d", personID), err)
		}
		records = append(records, output.Record{
			Filename: filename,
			PersonID: personID,
			Box:      box,
			Labels:   labels,
		})
	}

	logger.Debug("image labeled",
		logging.Int("faces", len(records)),
		logging.Duration("duration", time.Since(started)),
	)
	return records, nil
}

// relativeName reports path relative to the data root with forward slashes,
// falling back to the base name when path is outside the root.
func (l *Labeler) relativeName(path string) string {
	if l.root != "" {
		if rel, err := filepath.Rel(l.root, path); err == nil && !strings.HasPrefix(rel, "..") && rel != "." {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(path)
}

func encodeJPEG(img image.Image, quality int) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func wrapChatError(stage string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, stage, "chat", "", err)
	default:
		return services.Wrap(services.ErrExternalTool, stage, "chat", "", err)
	}
}
