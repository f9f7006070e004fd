// Package gridio decodes and encodes single-band grids in the formats the
// service can read without a native raster library: ESRI ASCII grids and a
// msgpack grid container.
package gridio

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/snowsense/internal/stacker"
)

// ErrUnsupportedFormat is returned for extensions no decoder handles, such as
// JPEG 2000 products straight from the archive.
var ErrUnsupportedFormat = errors.New("unsupported grid format")

// MaxCells caps the size of a decoded grid. A full Sentinel-2 10 m tile is
// about 1.2e8 cells.
const MaxCells = 1 << 28

// checkSize rejects grids that are empty or larger than MaxCells.
func checkSize(rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return fmt.Errorf("grid size %dx%d must be positive", rows, cols)
	}
	if rows > MaxCells/cols {
		return fmt.Errorf("grid size %dx%d exceeds %d cells", rows, cols, MaxCells)
	}
	return nil
}

// Extensions handled by Reader.
const (
	ExtASCII   = ".asc"
	ExtMsgpack = ".grid"
)

// Reader implements stacker.GridReader by dispatching on file extension.
type Reader struct{}

var _ stacker.GridReader = Reader{}

// ReadGrid decodes the file at path.
func (Reader) ReadGrid(ctx context.Context, path string) (stacker.Grid, error) {
	if err := ctx.Err(); err != nil {
		return stacker.Grid{}, err
	}
	switch ext := extOf(path); ext {
	case ExtASCII:
		return ReadASCII(ctx, path)
	case ExtMsgpack:
		return ReadMsgpack(path)
	default:
		return stacker.Grid{}, fmt.Errorf("%w %q", ErrUnsupportedFormat, ext)
	}
}

// Write encodes the grid in the format implied by the path's extension.
func Write(path string, g stacker.Grid) error {
	switch ext := extOf(path); ext {
	case ExtASCII:
		return WriteASCII(path, g)
	case ExtMsgpack:
		return WriteMsgpack(path, g)
	default:
		return fmt.Errorf("%w %q", ErrUnsupportedFormat, ext)
	}
}

func extOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
