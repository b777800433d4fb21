package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
)

// Well-known sub-path keys within a network's paths table. Each value is a
// path relative to data/<network>, pointing at either a directory, a .zip
// archive or a .tar.gz archive.
const (
	MDPath        = "md_path"
	OpticalPath   = "optical_path"
	GCMSPath      = "gcms_path"
	GCMSFlaskPath = "gcms_flask_path"
	ALEPath       = "ale_path"
	GAGEPath      = "gage_path"
	MagnumPath    = "magnum_path"
	OutputPath    = "output_path"
)

// Config mirrors config.yaml. All sub-paths are relative to the network
// subfolder in the data directory; files living elsewhere need symlinks.
type Config struct {
	User    User                    `yaml:"user"`
	DataDir string                  `yaml:"data_directory,omitempty"`
	Paths   map[string]NetworkPaths `yaml:"paths"`

	dir string
}

// User identifies who ran the archive build, recorded in output attributes
type User struct {
	Name string `yaml:"name"`
}

// NetworkPaths holds the sub-path table for one network
type NetworkPaths map[string]SubPath

// SubPath is one entry in a network's paths table: either a single sub-path
// shared by all sites, or a per-site map when site data live in separate
// sub-directories.
type SubPath struct {
	Path    string
	PerSite map[string]string
}

// UnmarshalYAML accepts either a scalar sub-path or a site->sub-path mapping
func (s *SubPath) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&s.Path)
	case yaml.MappingNode:
		return value.Decode(&s.PerSite)
	default:
		return fmt.Errorf("sub-path must be a string or a site map, got %v", value.Kind)
	}
}

// Resolve returns the sub-path for site. Entries without a per-site map
// ignore the site argument.
func (s SubPath) Resolve(site string) (string, error) {
	if s.PerSite == nil {
		return s.Path, nil
	}
	if site == "" {
		return "", fmt.Errorf("sub-path is keyed by site but no site was given")
	}
	p, ok := s.PerSite[site]
	if !ok {
		return "", fmt.Errorf("site %s not present in sub-path table", site)
	}
	return p, nil
}

// Load reads and parses a config.yaml file
func Load(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindConfiguration, pipeline.Unit{},
			fmt.Errorf("failed to read config file: %v", err))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, pipeline.Wrap(pipeline.KindConfiguration, pipeline.Unit{},
			fmt.Errorf("failed to parse %s: %v", file, err))
	}

	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %v", err)
	}
	cfg.dir = filepath.Dir(abs)
	return &cfg, nil
}

// Data returns the absolute data directory: data_directory when set in the
// config, otherwise the data folder next to config.yaml
func (c *Config) Data() string {
	if c.DataDir == "" {
		return filepath.Join(c.dir, "data")
	}
	if filepath.IsAbs(c.DataDir) {
		return c.DataDir
	}
	return filepath.Join(c.dir, c.DataDir)
}

// Network returns the resolved path set for one network
func (c *Config) Network(name string) (*Paths, error) {
	np, ok := c.Paths[name]
	if !ok {
		return nil, pipeline.Errorf(pipeline.KindConfiguration,
			pipeline.Unit{Network: name}, "network %s not found in config file", name)
	}
	return &Paths{
		Network: name,
		Data:    c.Data(),
		User:    c.User.Name,
		subs:    np,
	}, nil
}

// Paths resolves data locations for one network. Sub returns individual
// entries; Root anchors them on disk.
type Paths struct {
	Network string
	Data    string
	User    string
	subs    NetworkPaths
}

// Root returns the absolute network data directory, data/<network>
func (p *Paths) Root() string {
	return filepath.Join(p.Data, p.Network)
}

// Sub resolves one sub-path key for the given site. Keys without per-site
// tables accept an empty site.
func (p *Paths) Sub(key, site string) (string, error) {
	s, ok := p.subs[key]
	if !ok {
		return "", pipeline.Errorf(pipeline.KindConfiguration,
			pipeline.Unit{Network: p.Network, Site: site},
			"%s not found in config file", key)
	}
	resolved, err := s.Resolve(site)
	if err != nil {
		return "", pipeline.Wrap(pipeline.KindConfiguration,
			pipeline.Unit{Network: p.Network, Site: site},
			fmt.Errorf("failed to resolve %s: %v", key, err))
	}
	return resolved, nil
}

// Output returns the output_path entry, the archive (zip or folder) that
// receives the published datasets
func (p *Paths) Output() (string, error) {
	return p.Sub(OutputPath, "")
}
