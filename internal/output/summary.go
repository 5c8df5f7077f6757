package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"fable/internal/schema"
)

// ClassCount is the number of rows where a label column is set.
type ClassCount struct {
	Name  string
	Count int
}

// Summary describes the class distribution of an artifact.
type Summary struct {
	Rows    int
	Files   int
	Classes []ClassCount
}

// Summarize sums every label column of the CSV at path. Identity columns are
// skipped; label columns keep header order.
func Summarize(path string) (Summary, error) {
	file, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("open output: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Summary{}, fmt.Errorf("%s has no header", path)
		}
		return Summary{}, fmt.Errorf("read header: %w", err)
	}

	var (
		summary  Summary
		labelIdx []int
		fileIdx  = -1
	)
	for i, col := range header {
		if col == "filename" {
			fileIdx = i
		}
		if slices.Contains(schema.IdentityColumns, col) {
			continue
		}
		labelIdx = append(labelIdx, i)
		summary.Classes = append(summary.Classes, ClassCount{Name: col})
	}

	files := make(map[string]struct{})
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Summary{}, fmt.Errorf("read row %d: %w", summary.Rows+2, err)
		}
		summary.Rows++
		if fileIdx >= 0 {
			files[row[fileIdx]] = struct{}{}
		}
		for j, idx := range labelIdx {
			n, err := strconv.Atoi(row[idx])
			if err != nil {
				return Summary{}, fmt.Errorf("row %d column %s: %w", summary.Rows+1, header[idx], err)
			}
			summary.Classes[j].Count += n
		}
	}
	summary.Files = len(files)
	return summary, nil
}
