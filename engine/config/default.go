package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Default is a small sphere world that can be meshed without a config file.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level: "info",
		},
		Volume: VolumeConfig{
			Depth:       5,
			LeafSize:    32,
			LockTimeout: Duration{2 * time.Second},
		},
		Generator: GeneratorConfig{
			Type:     "sphere",
			Radius:   50,
			Material: 1,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Interval:  Duration{time.Second},
			Threshold: 4,
			Budget:    512,
		},
		Mesher: MesherConfig{
			Kind:      "surface-nets",
			Policy:    "split",
			ChunkSize: 32,
		},
		Region: RegionConfig{
			Min: [3]int32{-64, -64, -64},
			Max: [3]int32{64, 64, 64},
		},
	}
}

// WriteDefault writes the default configuration to the provided path.
func WriteDefault(path string) error {
	cfg := Default()

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return errors.Wrap(err, "marshal default config")
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create config directory")
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "write default config")
	}

	return nil
}
