package labeling_test

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fable/internal/labeling"
	"fable/internal/output"
	"fable/internal/schema"
	"fable/internal/services"
	"fable/internal/services/llm"
	"fable/internal/testsupport"
)

type fakeChat struct {
	mu       sync.Mutex
	requests []llm.Request
	reply    func(req llm.Request) (string, error)
}

func (f *fakeChat) Chat(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.reply(req)
}

type fixedDetector []output.Box

func (d fixedDetector) Detect(context.Context, image.Image) ([]output.Box, error) {
	return d, nil
}

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.New([]schema.Field{
		{Name: "glasses", Description: "Eyeglasses"},
		{Name: "hat", Description: "Head covering"},
	})
	require.NoError(t, err)
	return sch
}

func decodeCrop(t *testing.T, encoded string) image.Image {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	img, err := imaging.Decode(strings.NewReader(string(data)))
	require.NoError(t, err)
	return img
}

func TestProcessWholeImage(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "people", "a.jpg")
	testsupport.WriteImage(t, path, 64, 48)

	client := &fakeChat{reply: func(llm.Request) (string, error) {
		return `{"glasses": 1, "hat": 0}`, nil
	}}
	labeler := labeling.New(root, testSchema(t), client)

	records, err := labeler.Process(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, output.Record{
		Filename: "people/a.jpg",
		PersonID: 0,
		Box:      output.Box{XMin: 0, YMin: 0, XMax: 64, YMax: 48},
		Labels:   []int{1, 0},
	}, records[0])

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, labeling.UserPrompt, req.User)
	assert.Contains(t, req.System, "1. glasses: Eyeglasses.")
	assert.JSONEq(t, string(testSchema(t).JSONSchema()), string(req.Format))
	require.Len(t, req.Images, 1)
	crop := decodeCrop(t, req.Images[0])
	assert.Equal(t, 64, crop.Bounds().Dx())
	assert.Equal(t, 48, crop.Bounds().Dy())
}

func TestProcessCropsEachFace(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "group.png")
	testsupport.WriteImage(t, path, 100, 80)

	client := &fakeChat{reply: func(llm.Request) (string, error) {
		return "```json\n{\"glasses\": 0, \"hat\": 1}\n```", nil
	}}
	boxes := fixedDetector{
		{XMin: 10, YMin: 5, XMax: 30, YMax: 35},
		{XMin: 50, YMin: 20, XMax: 90, YMax: 70},
	}
	labeler := labeling.New(root, testSchema(t), client, labeling.WithDetector(boxes))

	records, err := labeler.Process(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for i, rec := range records {
		assert.Equal(t, "group.png", rec.Filename)
		assert.Equal(t, i, rec.PersonID)
		assert.Equal(t, boxes[i], rec.Box)
		assert.Equal(t, []int{0, 1}, rec.Labels)
	}

	require.Len(t, client.requests, 2)
	first := decodeCrop(t, client.requests[0].Images[0])
	assert.Equal(t, 20, first.Bounds().Dx())
	assert.Equal(t, 30, first.Bounds().Dy())
}

func TestProcessNoFacesSucceedsWithoutRecords(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "empty.jpg")
	testsupport.WriteImage(t, path, 16, 16)

	client := &fakeChat{reply: func(llm.Request) (string, error) {
		t.Fatal("model should not be called without faces")
		return "", nil
	}}
	labeler := labeling.New(root, testSchema(t), client, labeling.WithDetector(fixedDetector{}))

	records, err := labeler.Process(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestProcessMissingFileIsPermanent(t *testing.T) {
	root := t.TempDir()
	labeler := labeling.New(root, testSchema(t), &fakeChat{})

	_, err := labeler.Process(context.Background(), filepath.Join(root, "gone.jpg"))
	require.Error(t, err)
	assert.ErrorIs(t, err, labeling.ErrProcessing)
	assert.ErrorIs(t, err, services.ErrNotFound)
	assert.False(t, services.Retryable(err))
}

func TestProcessCorruptImageIsPermanent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "broken.jpg")
	testsupport.WriteFile(t, path, []byte("not an image"))
	labeler := labeling.New(root, testSchema(t), &fakeChat{})

	_, err := labeler.Process(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrValidation)
	assert.False(t, services.Retryable(err))
}

func TestProcessModelFailureIsRetryable(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.jpg")
	testsupport.WriteImage(t, path, 8, 8)

	client := &fakeChat{reply: func(llm.Request) (string, error) {
		return "", errors.New("connection refused")
	}}
	labeler := labeling.New(root, testSchema(t), client)

	_, err := labeler.Process(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, labeling.ErrProcessing)
	assert.ErrorIs(t, err, services.ErrExternalTool)
	assert.True(t, services.Retryable(err))
}

func TestProcessRejectsNonIntegerLabels(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.jpg")
	testsupport.WriteImage(t, path, 8, 8)

	client := &fakeChat{reply: func(llm.Request) (string, error) {
		return `{"glasses": "maybe"}`, nil
	}}
	labeler := labeling.New(root, testSchema(t), client)

	_, err := labeler.Process(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrDecode)
}

func TestProcessCancelledContextPropagates(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.jpg")
	testsupport.WriteImage(t, path, 8, 8)

	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeChat{reply: func(llm.Request) (string, error) {
		cancel()
		return "", context.Canceled
	}}
	labeler := labeling.New(root, testSchema(t), client)

	_, err := labeler.Process(ctx, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessOutsideRootUsesBaseName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "elsewhere.jpg")
	testsupport.WriteImage(t, path, 8, 8)

	client := &fakeChat{reply: func(llm.Request) (string, error) { return `{}`, nil }}
	labeler := labeling.New(t.TempDir(), testSchema(t), client)

	records, err := labeler.Process(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "elsewhere.jpg", records[0].Filename)
	assert.Equal(t, []int{0, 0}, records[0].Labels)
}
