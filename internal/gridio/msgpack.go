package gridio

import (
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/snowsense/internal/raster"
	"github.com/couchcryptid/snowsense/internal/stacker"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"
)

const gridVersion = 1

// gridFile is the on-disk msgpack layout of a single band.
type gridFile struct {
	Version int               `msgpack:"v"`
	Profile raster.GeoProfile `msgpack:"profile"`
	Rows    int               `msgpack:"rows"`
	Cols    int               `msgpack:"cols"`
	Data    []float64         `msgpack:"data"`
}

// EncodeMsgpack writes the grid and its profile in row-major order.
func EncodeMsgpack(w io.Writer, g stacker.Grid) error {
	rows, cols := g.Data.Dims()
	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		data = append(data, g.Data.RawRowView(i)...)
	}
	return msgpack.NewEncoder(w).Encode(gridFile{
		Version: gridVersion,
		Profile: g.Profile,
		Rows:    rows,
		Cols:    cols,
		Data:    data,
	})
}

// DecodeMsgpack reads a grid written by EncodeMsgpack.
func DecodeMsgpack(r io.Reader) (stacker.Grid, error) {
	var f gridFile
	if err := msgpack.NewDecoder(r).Decode(&f); err != nil {
		return stacker.Grid{}, err
	}
	if f.Version != gridVersion {
		return stacker.Grid{}, fmt.Errorf("unsupported grid version %d", f.Version)
	}
	if err := checkSize(f.Rows, f.Cols); err != nil {
		return stacker.Grid{}, err
	}
	if len(f.Data) != f.Rows*f.Cols {
		return stacker.Grid{}, fmt.Errorf("grid %dx%d holds %d values", f.Rows, f.Cols, len(f.Data))
	}
	if f.Profile.Height != f.Rows || f.Profile.Width != f.Cols {
		return stacker.Grid{}, &raster.ShapeMismatchError{
			What:     "grid profile",
			WantRows: f.Rows, WantCols: f.Cols,
			GotRows: f.Profile.Height, GotCols: f.Profile.Width,
		}
	}
	return stacker.Grid{Data: mat.NewDense(f.Rows, f.Cols, f.Data), Profile: f.Profile}, nil
}

// ReadMsgpack reads a .grid file.
func ReadMsgpack(path string) (stacker.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return stacker.Grid{}, err
	}
	defer f.Close()

	g, err := DecodeMsgpack(f)
	if err != nil {
		return stacker.Grid{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return g, nil
}

// WriteMsgpack writes a .grid file.
func WriteMsgpack(path string, g stacker.Grid) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeMsgpack(f, g); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
