package catalog

import (
	"fmt"
	"os"

	"github.com/couchcryptid/snowsense/internal/clip"
	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"
)

// Builtin returns the three study regions shipped with the dashboard data set.
// Clip polygons are in the tile's UTM zone (metres).
func Builtin() []Region {
	return []Region{
		{
			Key:     "Central_Tibetan_Plateau",
			Name:    "Central Tibetan Plateau",
			Aliases: []string{"tibet", "tibetan plateau"},
			Dir:     "Central_Tibetan_Plateau",
			Bounds:  orb.Bound{Min: orb.Point{84, 30}, Max: orb.Point{94, 35}},
			Clips: []NamedClip{
				{Name: "Region 1", Polygon: rect(700000, 3600000, 720000, 3620000)},
				{Name: "Region 2", Polygon: rect(730000, 3630000, 750000, 3650000)},
			},
		},
		{
			Key:     "European_Alps",
			Name:    "European Alps",
			Aliases: []string{"alps"},
			Dir:     "European_Alps",
			Bounds:  orb.Bound{Min: orb.Point{5, 43.5}, Max: orb.Point{16.5, 48.5}},
			Clips: []NamedClip{
				{Name: "Region 1", Polygon: rect(300000, 5000000, 320000, 5020000)},
				{Name: "Region 2", Polygon: rect(350000, 5050000, 370000, 5070000)},
			},
		},
		{
			Key:     "Siachen",
			Name:    "Siachen Glacier",
			Aliases: []string{"siachen"},
			Dir:     "Siachen",
			Bounds:  orb.Bound{Min: orb.Point{76.7, 35.0}, Max: orb.Point{77.6, 35.8}},
			Clips: []NamedClip{
				{Name: "Region 1", Polygon: rect(700000, 3700000, 720000, 3720000)},
			},
		},
	}
}

func rect(x0, y0, x1, y1 float64) clip.Polygon {
	return clip.FromPairs([][2]float64{{x0, y0}, {x0, y1}, {x1, y1}, {x1, y0}})
}

type fileClip struct {
	Name    string       `yaml:"name"`
	Polygon [][2]float64 `yaml:"polygon,flow"`
}

type fileRegion struct {
	Key     string     `yaml:"key"`
	Name    string     `yaml:"name"`
	Aliases []string   `yaml:"aliases,omitempty,flow"`
	Dir     string     `yaml:"dir,omitempty"`
	Bounds  []float64  `yaml:"bounds,omitempty,flow"` // min lon, min lat, max lon, max lat
	Clips   []fileClip `yaml:"clips,omitempty"`
}

type catalogFile struct {
	Regions []fileRegion `yaml:"regions"`
}

// LoadRegions reads a YAML region list. Dir defaults to the key.
func LoadRegions(path string) ([]Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	regions := make([]Region, 0, len(f.Regions))
	for _, fr := range f.Regions {
		r := Region{Key: fr.Key, Name: fr.Name, Aliases: fr.Aliases, Dir: fr.Dir}
		if r.Dir == "" {
			r.Dir = r.Key
		}
		switch len(fr.Bounds) {
		case 0:
		case 4:
			r.Bounds = orb.Bound{
				Min: orb.Point{fr.Bounds[0], fr.Bounds[1]},
				Max: orb.Point{fr.Bounds[2], fr.Bounds[3]},
			}
		default:
			return nil, fmt.Errorf("region %s: bounds need 4 values, got %d", fr.Key, len(fr.Bounds))
		}
		for _, fc := range fr.Clips {
			r.Clips = append(r.Clips, NamedClip{Name: fc.Name, Polygon: clip.FromPairs(fc.Polygon)})
		}
		regions = append(regions, r)
	}
	return regions, nil
}

// SaveRegions writes regions in the format LoadRegions reads.
func SaveRegions(path string, regions []Region) error {
	f := catalogFile{Regions: make([]fileRegion, 0, len(regions))}
	for _, r := range regions {
		fr := fileRegion{Key: r.Key, Name: r.Name, Aliases: r.Aliases, Dir: r.Dir}
		if fr.Dir == r.Key {
			fr.Dir = ""
		}
		if !r.Bounds.IsZero() {
			fr.Bounds = []float64{r.Bounds.Min.X(), r.Bounds.Min.Y(), r.Bounds.Max.X(), r.Bounds.Max.Y()}
		}
		for _, c := range r.Clips {
			fr.Clips = append(fr.Clips, fileClip{Name: c.Name, Polygon: c.Polygon.Pairs()})
		}
		f.Regions = append(f.Regions, fr)
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}
