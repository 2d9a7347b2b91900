package ebird

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
)

// RegistryFileName is the pack index expected inside the pack root
// directory.
const RegistryFileName = "registry.yaml"

// Bounds is a latitude/longitude bounding box in degrees.
type Bounds struct {
	MinLat float64 `yaml:"min_lat"`
	MaxLat float64 `yaml:"max_lat"`
	MinLon float64 `yaml:"min_lon"`
	MaxLon float64 `yaml:"max_lon"`
}

// Contains reports whether the point falls inside the box. Edges are
// inclusive so adjacent regions can share a boundary.
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Region describes one installed regional pack.
type Region struct {
	ID     string `yaml:"id"`
	Pack   string `yaml:"pack"` // pack filename relative to the registry directory
	Bounds Bounds `yaml:"bounds"`
}

// Registry is the installed pack index, mapping bounding boxes to pack
// files. Regions are checked in file order, so the first match wins
// when boxes overlap.
type Registry struct {
	Regions []Region `yaml:"regions"`

	root string
}

// LoadRegistry reads registry.yaml from the pack root directory. A
// missing registry is not an error; it returns nil, meaning no regional
// data is installed.
func LoadRegistry(packRoot string) (*Registry, error) {
	if packRoot == "" {
		return nil, nil
	}

	path := filepath.Join(packRoot, RegistryFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(err).
			Component("ebird").
			Category(errors.CategoryFileIO).
			Context("operation", "load_registry").
			Context("path", path).
			Build()
	}

	var registry Registry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, errors.New(err).
			Component("ebird").
			Category(errors.CategoryConfiguration).
			Context("operation", "load_registry").
			Context("path", path).
			Build()
	}
	registry.root = packRoot

	return &registry, nil
}

// Locate returns the first region whose bounding box contains the
// point, or nil when no installed pack covers it.
func (r *Registry) Locate(lat, lon float64) *Region {
	if r == nil {
		return nil
	}
	for i := range r.Regions {
		if r.Regions[i].Bounds.Contains(lat, lon) {
			return &r.Regions[i]
		}
	}
	return nil
}

// PackPath resolves the pack file location for a region.
func (r *Registry) PackPath(region *Region) string {
	if filepath.IsAbs(region.Pack) {
		return region.Pack
	}
	return filepath.Join(r.root, region.Pack)
}
