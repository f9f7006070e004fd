package gridio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/snowsense/internal/raster"
	"github.com/couchcryptid/snowsense/internal/stacker"
	"gonum.org/v1/gonum/mat"
)

// DecodeASCII parses an ESRI ASCII grid. Both corner and centre origin
// headers are accepted; the profile CRS is left empty.
func DecodeASCII(ctx context.Context, r io.Reader) (stacker.Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)

	header := map[string]float64{}
	var first string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			first = sc.Text()
			break
		}
		if !sc.Scan() {
			return stacker.Grid{}, fmt.Errorf("header %q has no value", key)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return stacker.Grid{}, fmt.Errorf("header %q: %w", key, err)
		}
		header[key] = v
	}
	if err := sc.Err(); err != nil {
		return stacker.Grid{}, err
	}

	profile, err := profileFromHeader(header)
	if err != nil {
		return stacker.Grid{}, err
	}

	n := profile.Height * profile.Width
	values := make([]float64, 0, min(n, 1<<16))
	if first != "" {
		v, _ := strconv.ParseFloat(first, 64)
		values = append(values, v)
	}
	for sc.Scan() {
		if len(values)%profile.Width == 0 && ctx.Err() != nil {
			return stacker.Grid{}, ctx.Err()
		}
		if len(values) == n {
			return stacker.Grid{}, fmt.Errorf("more than %d values", n)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return stacker.Grid{}, fmt.Errorf("value %d: %w", len(values), err)
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		return stacker.Grid{}, err
	}
	if len(values) != n {
		return stacker.Grid{}, fmt.Errorf("expected %d values, got %d", n, len(values))
	}

	return stacker.Grid{Data: mat.NewDense(profile.Height, profile.Width, values), Profile: profile}, nil
}

func profileFromHeader(h map[string]float64) (raster.GeoProfile, error) {
	for _, k := range []string{"ncols", "nrows", "cellsize"} {
		if _, ok := h[k]; !ok {
			return raster.GeoProfile{}, fmt.Errorf("missing %s header", k)
		}
	}
	for _, k := range []string{"ncols", "nrows"} {
		if v := h[k]; !(v >= 1 && v <= MaxCells) || v != math.Trunc(v) {
			return raster.GeoProfile{}, fmt.Errorf("%s %g must be a whole number in [1, %d]", k, v, MaxCells)
		}
	}
	cols, rows, size := int(h["ncols"]), int(h["nrows"]), h["cellsize"]
	if err := checkSize(rows, cols); err != nil {
		return raster.GeoProfile{}, err
	}
	if !(size > 0) {
		return raster.GeoProfile{}, fmt.Errorf("cellsize %g must be positive", size)
	}

	var xll, yll float64
	switch {
	case has(h, "xllcorner") && has(h, "yllcorner"):
		xll, yll = h["xllcorner"], h["yllcorner"]
	case has(h, "xllcenter") && has(h, "yllcenter"):
		xll, yll = h["xllcenter"]-size/2, h["yllcenter"]-size/2
	default:
		return raster.GeoProfile{}, errors.New("missing xllcorner/yllcorner or xllcenter/yllcenter headers")
	}

	p := raster.GeoProfile{
		Transform: raster.NorthUp(xll, yll+float64(rows)*size, size),
		Height:    rows,
		Width:     cols,
	}
	if nd, ok := h["nodata_value"]; ok {
		p.NoData = &nd
	}
	return p, nil
}

func has(h map[string]float64, k string) bool {
	_, ok := h[k]
	return ok
}

// EncodeASCII writes the grid as an ESRI ASCII grid with a corner origin.
// Only north-up grids with square pixels can be represented.
func EncodeASCII(w io.Writer, g stacker.Grid) error {
	t := g.Profile.Transform
	if t.B != 0 || t.D != 0 || t.A <= 0 || t.E != -t.A {
		return errors.New("ascii grid requires a north-up transform with square pixels")
	}
	rows, cols := g.Data.Dims()

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\nnrows %d\n", cols, rows)
	fmt.Fprintf(bw, "xllcorner %s\nyllcorner %s\ncellsize %s\n",
		formatFloat(t.C), formatFloat(t.F+float64(rows)*t.E), formatFloat(t.A))
	if g.Profile.NoData != nil {
		fmt.Fprintf(bw, "NODATA_value %s\n", formatFloat(*g.Profile.NoData))
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if j > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(formatFloat(g.Data.At(i, j)))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ReadASCII reads an .asc file and its optional .prj sidecar.
func ReadASCII(ctx context.Context, path string) (stacker.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return stacker.Grid{}, err
	}
	defer f.Close()

	g, err := DecodeASCII(ctx, f)
	if err != nil {
		return stacker.Grid{}, fmt.Errorf("decode %s: %w", path, err)
	}

	crs, err := os.ReadFile(sidecar(path))
	switch {
	case err == nil:
		g.Profile.CRS = strings.TrimSpace(string(crs))
	case !errors.Is(err, fs.ErrNotExist):
		return stacker.Grid{}, fmt.Errorf("read projection: %w", err)
	}
	return g, nil
}

// WriteASCII writes an .asc file and, when the profile has a CRS, a .prj sidecar.
func WriteASCII(path string, g stacker.Grid) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeASCII(f, g); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	if g.Profile.CRS != "" {
		return os.WriteFile(sidecar(path), []byte(g.Profile.CRS+"\n"), 0o644)
	}
	return nil
}

func sidecar(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
}
