package output_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fable/internal/output"
	"fable/internal/schema"
	"fable/internal/testsupport"
)

func testSchema(t *testing.T, names ...string) *schema.Schema {
	t.Helper()
	fields := make([]schema.Field, len(names))
	for i, name := range names {
		fields[i] = schema.Field{Name: name, Description: name}
	}
	s, err := schema.New(fields)
	require.NoError(t, err)
	return s
}

func record(name string, person int, labels ...int) output.Record {
	return output.Record{
		Filename: name,
		PersonID: person,
		Box:      output.Box{XMin: 0, YMin: 0, XMax: 10, YMax: 20},
		Labels:   labels,
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestWriterCreatesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	s := testSchema(t, "glasses", "hat")

	w, err := output.Open(path, s)
	require.NoError(t, err)
	require.NoError(t, w.Write([]output.Record{record("a.jpg", 0, 1, 0)}))
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	w, err = output.Open(path, s)
	require.NoError(t, err)
	require.NoError(t, w.Write([]output.Record{record("b.jpg", 0, 0, 1), record("b.jpg", 1, 1, 1)}))
	assert.Equal(t, 2, w.Rows())
	require.NoError(t, w.Close())

	want := "filename,person_id,xmin,ymin,xmax,ymax,glasses,hat\n" +
		"a.jpg,0,0,0,10,20,1,0\n" +
		"b.jpg,0,0,0,10,20,0,1\n" +
		"b.jpg,1,0,0,10,20,1,1\n"
	assert.Equal(t, want, readFile(t, path))
}

func TestWriterRejectsForeignHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, []byte("filename,person_id,xmin,ymin,xmax,ymax,mask\n"), 0o644))

	_, err := output.Open(path, testSchema(t, "glasses"))
	assert.ErrorIs(t, err, output.ErrHeaderMismatch)
	assert.Equal(t, "filename,person_id,xmin,ymin,xmax,ymax,mask\n", readFile(t, path))
}

func TestWriterTruncatesTornRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	content := "filename,person_id,xmin,ymin,xmax,ymax,hat\na.jpg,0,0,0,10,20,1\nb.jpg,0,0,"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	w, err := output.Open(path, testSchema(t, "hat"))
	require.NoError(t, err)
	require.NoError(t, w.Write([]output.Record{record("b.jpg", 0, 0)}))
	require.NoError(t, w.Close())

	assert.Equal(t,
		"filename,person_id,xmin,ymin,xmax,ymax,hat\na.jpg,0,0,0,10,20,1\nb.jpg,0,0,0,10,20,0\n",
		readFile(t, path))
}

func TestWriterRejectsWrongLabelCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := output.Open(path, testSchema(t, "glasses", "hat"))
	require.NoError(t, err)
	defer w.Close()

	err = w.Write([]output.Record{record("a.jpg", 0, 1)})
	assert.ErrorIs(t, err, output.ErrWrite)
	assert.Zero(t, w.Rows())
}

func TestWriterRecoversAfterFailedWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := output.Open(path, testSchema(t, "hat"))
	require.NoError(t, err)
	defer w.Close()

	testsupport.LimitFileSize(t, 256)

	big := record(strings.Repeat("x", 1000)+".jpg", 0, 1)
	err = w.Write([]output.Record{big})
	require.ErrorIs(t, err, output.ErrWrite)
	assert.Zero(t, w.Rows())
	assert.Equal(t, "filename,person_id,xmin,ymin,xmax,ymax,hat\n", readFile(t, path))

	require.NoError(t, w.Write([]output.Record{record("a.jpg", 0, 1)}))
	require.NoError(t, w.Write([]output.Record{record("b.jpg", 0, 0)}))
	require.NoError(t, w.Sync())
	assert.Equal(t, 2, w.Rows())
	assert.Equal(t,
		"filename,person_id,xmin,ymin,xmax,ymax,hat\na.jpg,0,0,0,10,20,1\nb.jpg,0,0,0,10,20,0\n",
		readFile(t, path))
}

func TestWriterRejectsWritesAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := output.Open(path, testSchema(t, "hat"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.ErrorIs(t, w.Write([]output.Record{record("a.jpg", 0, 1)}), output.ErrWrite)
	assert.ErrorIs(t, w.Sync(), output.ErrWrite)
}

func TestWriterQuotesFilenames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := output.Open(path, testSchema(t, "hat"))
	require.NoError(t, err)
	require.NoError(t, w.Write([]output.Record{record("my, photo.jpg", 0, 1)}))
	require.NoError(t, w.Close())

	assert.True(t, strings.Contains(readFile(t, path), `"my, photo.jpg",0`))
}

func TestSummarize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := output.Open(path, testSchema(t, "glasses", "hat"))
	require.NoError(t, err)
	require.NoError(t, w.Write([]output.Record{
		record("a.jpg", 0, 1, 0),
		record("a.jpg", 1, 1, 1),
		record("b.jpg", 0, 0, 1),
	}))
	require.NoError(t, w.Close())

	summary, err := output.Summarize(path)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Rows)
	assert.Equal(t, 2, summary.Files)
	assert.Equal(t, []output.ClassCount{{Name: "glasses", Count: 2}, {Name: "hat", Count: 2}}, summary.Classes)
}
