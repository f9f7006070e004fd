package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/snowsense/internal/raster"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"
)

const (
	diskVersion = 1
	diskExt     = ".session"
)

// DiskStore writes one msgpack file per session into a directory, so several
// stateless processes can share artifacts. File modification times carry the
// entry age.
type DiskStore struct {
	dir        string
	maxEntries int
	maxAge     time.Duration
	opts       options
	mu         sync.Mutex
}

// NewDiskStore creates the directory if needed.
func NewDiskStore(dir string, maxEntries int, maxAge time.Duration, opts ...Option) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	s := &DiskStore{dir: dir, maxEntries: maxEntries, maxAge: maxAge, opts: buildOptions(opts)}
	if files, err := s.list(); err == nil {
		s.report(len(files))
	}
	return s, nil
}

type diskBand struct {
	Role string    `msgpack:"role"`
	Data []float64 `msgpack:"data"`
}

type diskEntry struct {
	Version int               `msgpack:"v"`
	ID      string            `msgpack:"id"`
	Profile raster.GeoProfile `msgpack:"profile"`
	Rows    int               `msgpack:"rows"`
	Cols    int               `msgpack:"cols"`
	Bands   []diskBand        `msgpack:"bands,omitempty"`
	Masks   map[string][]bool `msgpack:"masks,omitempty"`
}

func (s *DiskStore) path(id string) string {
	return filepath.Join(s.dir, id+diskExt)
}

func (s *DiskStore) Put(_ context.Context, e Entry) error {
	if !ValidID(e.ID) {
		return fmt.Errorf("put session: invalid id %q", e.ID)
	}
	de, err := toDisk(e)
	if err != nil {
		return fmt.Errorf("put session %s: %w", e.ID, err)
	}
	data, err := msgpack.Marshal(de)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", e.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write then rename so readers never see a partial file.
	tmp, err := os.CreateTemp(s.dir, e.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("write session %s: %w", e.ID, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write session %s: %w", e.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write session %s: %w", e.ID, err)
	}
	now := s.opts.clock.Now()
	if err := os.Chtimes(tmp.Name(), now, now); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("stamp session %s: %w", e.ID, err)
	}
	if err := os.Rename(tmp.Name(), s.path(e.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write session %s: %w", e.ID, err)
	}

	files, err := s.list()
	if err != nil {
		return err
	}
	if s.maxEntries > 0 && len(files) > s.maxEntries {
		for _, f := range files[:len(files)-s.maxEntries] {
			if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("evict session: %w", err)
			}
		}
		files = files[len(files)-s.maxEntries:]
	}
	s.report(len(files))
	return nil
}

func (s *DiskStore) Get(_ context.Context, id string) (Entry, error) {
	if !ValidID(id) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("stat session %s: %w", id, err)
	}
	if s.expired(info.ModTime()) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return Entry{}, fmt.Errorf("read session %s: %w", id, err)
	}
	var de diskEntry
	if err := msgpack.Unmarshal(data, &de); err != nil {
		return Entry{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	e, err := fromDisk(de)
	if err != nil {
		return Entry{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	e.UpdatedAt = info.ModTime()
	return e, nil
}

func (s *DiskStore) Delete(_ context.Context, id string) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if files, err := s.list(); err == nil {
		s.report(len(files))
	}
	return nil
}

func (s *DiskStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.list()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files {
		if !s.expired(f.modTime) {
			continue
		}
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("sweep session: %w", err)
		}
		removed++
	}
	s.report(len(files) - removed)
	return removed, nil
}

func (s *DiskStore) expired(modTime time.Time) bool {
	return s.maxAge > 0 && s.opts.clock.Since(modTime) > s.maxAge
}

func (s *DiskStore) report(n int) {
	if s.opts.live != nil {
		s.opts.live.Set(float64(n))
	}
}

type sessionFile struct {
	path    string
	modTime time.Time
}

// list returns session files oldest first.
func (s *DiskStore) list() ([]sessionFile, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var files []sessionFile
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), diskExt) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		files = append(files, sessionFile{path: filepath.Join(s.dir, de.Name()), modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].path < files[j].path
		}
		return files[i].modTime.Before(files[j].modTime)
	})
	return files, nil
}

func toDisk(e Entry) (diskEntry, error) {
	de := diskEntry{
		Version: diskVersion,
		ID:      e.ID,
		Profile: e.Profile,
		Rows:    e.Profile.Height,
		Cols:    e.Profile.Width,
	}
	if e.Stack != nil {
		de.Rows, de.Cols = e.Stack.Dims()
		for i, role := range e.Stack.Roles() {
			band := e.Stack.At(i)
			data := make([]float64, 0, de.Rows*de.Cols)
			for r := 0; r < de.Rows; r++ {
				data = append(data, mat.Row(nil, r, band)...)
			}
			de.Bands = append(de.Bands, diskBand{Role: string(role), Data: data})
		}
	}
	if len(e.Masks) > 0 {
		de.Masks = make(map[string][]bool, len(e.Masks))
		for stage, m := range e.Masks {
			if m == nil {
				continue
			}
			if err := m.CheckShape(string(stage)+" mask", de.Rows, de.Cols); err != nil {
				return diskEntry{}, err
			}
			de.Masks[string(stage)] = m.Cells()
		}
	}
	return de, nil
}

func fromDisk(de diskEntry) (Entry, error) {
	if de.Version != diskVersion {
		return Entry{}, fmt.Errorf("unsupported session version %d", de.Version)
	}
	e := Entry{ID: de.ID, Profile: de.Profile}

	if len(de.Bands) > 0 {
		roles := make([]raster.BandRole, len(de.Bands))
		bands := make([]*mat.Dense, len(de.Bands))
		for i, b := range de.Bands {
			if len(b.Data) != de.Rows*de.Cols {
				return Entry{}, fmt.Errorf("band %s holds %d values for %dx%d", b.Role, len(b.Data), de.Rows, de.Cols)
			}
			roles[i] = raster.BandRole(b.Role)
			bands[i] = mat.NewDense(de.Rows, de.Cols, b.Data)
		}
		stack, err := raster.NewStack(roles, bands)
		if err != nil {
			return Entry{}, err
		}
		e.Stack = stack
	}

	if len(de.Masks) > 0 {
		e.Masks = make(map[Stage]*raster.Mask, len(de.Masks))
		for name, cells := range de.Masks {
			stage, err := ParseStage(name)
			if err != nil {
				return Entry{}, err
			}
			m, err := raster.MaskFromCells(de.Rows, de.Cols, cells)
			if err != nil {
				return Entry{}, err
			}
			e.Masks[stage] = m
		}
	}
	return e, nil
}
