package raster

// Mask is a read-only boolean grid. Classification stages derive new masks
// rather than editing existing ones, so no setter is exported.
type Mask struct {
	rows, cols int
	cells      []bool
	count      int
}

// NewMaskFunc evaluates fn for every cell in row-major order.
func NewMaskFunc(rows, cols int, fn func(i, j int) bool) *Mask {
	m := &Mask{rows: rows, cols: cols, cells: make([]bool, rows*cols)}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if fn(i, j) {
				m.cells[i*cols+j] = true
				m.count++
			}
		}
	}
	return m
}

// Dims returns the mask height and width.
func (m *Mask) Dims() (rows, cols int) { return m.rows, m.cols }

// At reports whether cell (i, j) is set.
func (m *Mask) At(i, j int) bool { return m.cells[i*m.cols+j] }

// Count returns the number of set cells.
func (m *Mask) Count() int {
	if m == nil {
		return 0
	}
	return m.count
}

// Cells returns a copy of the row-major cell values.
func (m *Mask) Cells() []bool { return append([]bool(nil), m.cells...) }

// MaskFromCells builds a mask from row-major values, as decoded from storage.
func MaskFromCells(rows, cols int, cells []bool) (*Mask, error) {
	if len(cells) != rows*cols {
		return nil, &ShapeMismatchError{What: "mask cells", WantRows: rows, WantCols: cols, GotRows: len(cells), GotCols: 1}
	}
	return NewMaskFunc(rows, cols, func(i, j int) bool { return cells[i*cols+j] }), nil
}

// CheckShape returns a ShapeMismatchError unless the mask matches rows x cols.
// A nil mask never matches.
func (m *Mask) CheckShape(what string, rows, cols int) error {
	if m == nil {
		return &ShapeMismatchError{What: what, WantRows: rows, WantCols: cols}
	}
	if m.rows != rows || m.cols != cols {
		return &ShapeMismatchError{What: what, WantRows: rows, WantCols: cols, GotRows: m.rows, GotCols: m.cols}
	}
	return nil
}
