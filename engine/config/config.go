package config

import (
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/memmaker/voxelstore/engine/generator"
	"github.com/memmaker/voxelstore/engine/mesher"
	"github.com/memmaker/voxelstore/engine/util"
	"github.com/memmaker/voxelstore/engine/voxel"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Volume    VolumeConfig    `yaml:"volume"`
	Generator GeneratorConfig `yaml:"generator"`
	Cache     CacheConfig     `yaml:"cache"`
	Mesher    MesherConfig    `yaml:"mesher"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Region    RegionConfig    `yaml:"region"`
}

type LogConfig struct {
	Level      string   `yaml:"level"`
	Categories []string `yaml:"categories,omitempty"`
}

type VolumeConfig struct {
	Depth          int      `yaml:"depth"`
	LeafSize       int32    `yaml:"leaf_size"`
	LockTimeout    Duration `yaml:"lock_timeout"`
	SkipLockChecks bool     `yaml:"skip_lock_checks"`
}

type GeneratorConfig struct {
	// Type is one of sphere, plane, terrain or construction.
	Type     string         `yaml:"type"`
	Material voxel.Material `yaml:"material"`

	Center [3]float32 `yaml:"center,omitempty"`
	Radius float32    `yaml:"radius,omitempty"`

	Axis   int     `yaml:"axis,omitempty"`
	Height float32 `yaml:"height,omitempty"`

	Terrain TerrainConfig `yaml:"terrain,omitempty"`

	File   string   `yaml:"file,omitempty"`
	Origin [3]int32 `yaml:"origin,omitempty"`
}

type TerrainConfig struct {
	Seed        int64   `yaml:"seed"`
	Scale       float64 `yaml:"scale"`
	BaseHeight  float64 `yaml:"base_height"`
	Amplitude   float64 `yaml:"amplitude"`
	Octaves     int     `yaml:"octaves"`
	Persistence float64 `yaml:"persistence"`
	Lacunarity  float64 `yaml:"lacunarity"`
}

type CacheConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Interval  Duration `yaml:"interval"`
	Threshold uint32   `yaml:"threshold"`
	Budget    int      `yaml:"budget"`
	Priority  int      `yaml:"priority"`
}

type MesherConfig struct {
	Kind      string `yaml:"kind"`
	Policy    string `yaml:"material_policy"`
	ChunkSize int32  `yaml:"chunk_size"`
	LOD       int    `yaml:"lod"`
	Collision bool   `yaml:"collision"`
}

type SchedulerConfig struct {
	Workers int `yaml:"workers"`
}

// RegionConfig is the box the command line tool meshes.
type RegionConfig struct {
	Min [3]int32 `yaml:"min"`
	Max [3]int32 `yaml:"max"`
}

func (r RegionConfig) Bounds() voxel.Bounds {
	return voxel.Bounds{
		Min: voxel.NewInt3(r.Min[0], r.Min[1], r.Min[2]),
		Max: voxel.NewInt3(r.Max[0], r.Max[1], r.Max[2]),
	}
}

// Duration reads strings like "250ms" or "2s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "line %d", value.Line)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if _, err := util.ParseLogCategories(c.Log.Categories); err != nil {
		return errors.Wrap(err, "log.categories")
	}
	if c.Volume.Depth < 0 || c.Volume.Depth > voxel.MaxDepth {
		return errors.Errorf("volume.depth must be in [0, %d]", voxel.MaxDepth)
	}
	if c.Volume.LeafSize < voxel.MinLeafSize || c.Volume.LeafSize > voxel.MaxLeafSize || c.Volume.LeafSize&(c.Volume.LeafSize-1) != 0 {
		return errors.Errorf("volume.leaf_size must be a power of two in [%d, %d]", voxel.MinLeafSize, voxel.MaxLeafSize)
	}
	if c.Volume.LockTimeout.Duration <= 0 {
		c.Volume.LockTimeout.Duration = voxel.DefaultLockTimeout
	}
	switch c.Generator.Type {
	case "sphere":
		if c.Generator.Radius <= 0 {
			return errors.New("generator.radius must be positive")
		}
	case "plane":
		if c.Generator.Axis < 0 || c.Generator.Axis > 2 {
			return errors.New("generator.axis must be 0, 1 or 2")
		}
	case "terrain":
	case "construction":
		if c.Generator.File == "" {
			return errors.New("generator.file must be set for constructions")
		}
	default:
		return errors.Errorf("generator.type %q unknown", c.Generator.Type)
	}
	if c.Cache.Enabled && c.Cache.Interval.Duration <= 0 {
		return errors.New("cache.interval must be positive")
	}
	if c.Cache.Budget < 0 {
		return errors.New("cache.budget cannot be negative")
	}
	if _, err := mesher.ParseKind(c.Mesher.Kind); err != nil {
		return errors.Wrap(err, "mesher.kind")
	}
	if _, err := mesher.ParseMaterialPolicy(c.Mesher.Policy); err != nil {
		return errors.Wrap(err, "mesher.material_policy")
	}
	if c.Mesher.ChunkSize < mesher.MinChunkSize || c.Mesher.ChunkSize > mesher.MaxChunkSize {
		return errors.Errorf("mesher.chunk_size must be in [%d, %d]", mesher.MinChunkSize, mesher.MaxChunkSize)
	}
	if c.Mesher.LOD < 0 || c.Mesher.LOD > c.Volume.Depth {
		return errors.Errorf("mesher.lod must be in [0, %d]", c.Volume.Depth)
	}
	if c.Scheduler.Workers < 0 {
		return errors.New("scheduler.workers cannot be negative")
	}
	if !c.Region.Bounds().IsValid() {
		return errors.Errorf("region %v is empty", c.Region.Bounds())
	}
	return nil
}

// ApplyLogging sets the global log level and categories.
func (c *Config) ApplyLogging() {
	util.GLOBAL_LOG_LEVEL = util.ParseLogLevel(c.Log.Level)
	if len(c.Log.Categories) > 0 {
		mask, _ := util.ParseLogCategories(c.Log.Categories)
		util.GLOBAL_LOG_CATEGORIES = mask
	}
}

func (c GeneratorConfig) Build() (voxel.Generator, error) {
	switch c.Type {
	case "sphere":
		return generator.Sphere{Center: mgl32.Vec3(c.Center), Radius: c.Radius, Material: c.Material}, nil
	case "plane":
		return generator.Plane{Axis: c.Axis, Height: c.Height, Material: c.Material}, nil
	case "terrain":
		return generator.NewTerrain(c.Terrain.options()), nil
	case "construction":
		construction, err := generator.LoadConstruction(c.File)
		if err != nil {
			return nil, err
		}
		origin := voxel.NewInt3(c.Origin[0], c.Origin[1], c.Origin[2])
		return generator.NewConstructionGenerator(construction, origin, generator.NewPalette(nil)), nil
	}
	return nil, errors.Errorf("generator.type %q unknown", c.Type)
}

func (t TerrainConfig) options() generator.TerrainOptions {
	opts := generator.DefaultTerrainOptions()
	opts.Seed = t.Seed
	if t.Scale > 0 {
		opts.Scale = t.Scale
	}
	opts.BaseHeight = t.BaseHeight
	if t.Amplitude > 0 {
		opts.Amplitude = t.Amplitude
	}
	if t.Octaves > 0 {
		opts.Octaves = t.Octaves
	}
	if t.Persistence > 0 {
		opts.Persistence = t.Persistence
	}
	if t.Lacunarity > 0 {
		opts.Lacunarity = t.Lacunarity
	}
	return opts
}

func (c VolumeConfig) Options(gen voxel.Generator) voxel.VolumeOptions {
	return voxel.VolumeOptions{
		Depth:          c.Depth,
		LeafSize:       c.LeafSize,
		Generator:      gen,
		SkipLockChecks: c.SkipLockChecks,
		LockTimeout:    c.LockTimeout.Duration,
	}
}

func (c MesherConfig) Build() (mesher.Mesher, error) {
	kind, err := mesher.ParseKind(c.Kind)
	if err != nil {
		return mesher.Mesher{}, err
	}
	policy, err := mesher.ParseMaterialPolicy(c.Policy)
	if err != nil {
		return mesher.Mesher{}, err
	}
	return mesher.New(kind, mesher.Options{Policy: policy}), nil
}
