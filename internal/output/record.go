package output

import "strconv"

// Box is a face bounding box in pixel coordinates. Max bounds are exclusive.
type Box struct {
	XMin int
	YMin int
	XMax int
	YMax int
}

// Empty reports whether the box covers no pixels.
func (b Box) Empty() bool {
	return b.XMax <= b.XMin || b.YMax <= b.YMin
}

// Width returns the horizontal extent.
func (b Box) Width() int { return b.XMax - b.XMin }

// Height returns the vertical extent.
func (b Box) Height() int { return b.YMax - b.YMin }

// Record is one labeled face crop.
type Record struct {
	Filename string
	PersonID int
	Box      Box
	Labels   []int
}

func (r Record) row() []string {
	row := make([]string, 0, 6+len(r.Labels))
	row = append(row,
		r.Filename,
		strconv.Itoa(r.PersonID),
		strconv.Itoa(r.Box.XMin),
		strconv.Itoa(r.Box.YMin),
		strconv.Itoa(r.Box.XMax),
		strconv.Itoa(r.Box.YMax),
	)
	for _, label := range r.Labels {
		row = append(row, strconv.Itoa(label))
	}
	return row
}
