package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/memmaker/voxelstore/engine/config"
	"github.com/memmaker/voxelstore/engine/jobs"
	"github.com/memmaker/voxelstore/engine/mesher"
	"github.com/memmaker/voxelstore/engine/util"
	"github.com/memmaker/voxelstore/engine/voxel"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

const (
	flagConfig  = "config"
	flagOut     = "out"
	flagMetrics = "metrics-addr"
	flagDebug   = "debug"
	flagFrom    = "from"
	flagTo      = "to"
)

var app = &cli.App{
	Name:            "voxelstore",
	Usage:           "mesh regions of a sparse voxel volume",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:  flagDebug,
			Usage: "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:  "mesh",
			Usage: "mesh the configured region and write it as binary glTF",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  flagOut,
					Value: "region.glb",
					Usage: "write the meshes to `FILE`",
				},
				&cli.StringFlag{
					Name:  flagMetrics,
					Usage: "serve prometheus metrics on `ADDR` while meshing",
				},
			},
			Action: meshAction,
		},
		{
			Name:      "default-config",
			Usage:     "write the default configuration",
			ArgsUsage: "FILE",
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return errors.New("expected one output file")
				}
				return config.WriteDefault(c.Args().First())
			},
		},
		{
			Name:  "pick",
			Usage: "print the first solid voxel along a ray",
			Flags: []cli.Flag{
				&cli.Float64SliceFlag{
					Name:     flagFrom,
					Usage:    "ray start as `X,Y,Z`",
					Required: true,
				},
				&cli.Float64SliceFlag{
					Name:     flagTo,
					Usage:    "ray end as `X,Y,Z`",
					Required: true,
				},
			},
			Action: pickAction,
		},
		{
			Name:      "inspect",
			Usage:     "print vertex and triangle counts of a glTF file",
			ArgsUsage: "FILE",
			Action:    inspectAction,
		},
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		util.LogSystemError("%v", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	if path := c.String(flagConfig); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		d := config.Default()
		cfg = &d
	}
	cfg.ApplyLogging()
	if c.Bool(flagDebug) {
		util.GLOBAL_LOG_LEVEL = util.LogLevelDebug
	}
	return cfg, nil
}

func meshAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String(flagMetrics); addr != "" {
		go func() {
			if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
				util.LogSystemError("metrics server: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	gen, err := cfg.Generator.Build()
	if err != nil {
		return err
	}
	vol, err := voxel.NewVolume(cfg.Volume.Options(gen))
	if err != nil {
		return err
	}
	m, err := cfg.Mesher.Build()
	if err != nil {
		return err
	}

	scheduler := jobs.NewPoolScheduler(cfg.Scheduler.Workers)
	defer scheduler.Close()

	if cfg.Cache.Enabled {
		cache := voxel.NewCacheManager(vol, voxel.CacheOptions{
			LockTimeout: cfg.Volume.LockTimeout.Duration,
			Scheduler:   scheduler,
			Priority:    cfg.Cache.Priority,
		})
		cacheCtx, cancelCache := context.WithCancel(ctx)
		defer cancelCache()
		go cache.Run(cacheCtx, cfg.Cache.Interval.Duration, cfg.Cache.Threshold, cfg.Cache.Budget)
	}

	region := cfg.Region.Bounds()
	timer := util.NewTimer()
	stopProgress := showProgress(scheduler)
	done := timer.Start("mesh region")
	results, err := jobs.MeshRegion(ctx, scheduler, vol, m, jobs.RegionRequest{
		Region:        region,
		ChunkSize:     cfg.Mesher.ChunkSize,
		LOD:           cfg.Mesher.LOD,
		WantCollision: cfg.Mesher.Collision,
		Focus:         region.Min.Add(region.Size().FloorDiv(2)),
		LockTimeout:   cfg.Volume.LockTimeout.Duration,
	})
	done()
	stopProgress()
	if err != nil {
		return err
	}

	var meshes []*mesher.Mesh
	triangles, failed := 0, 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			util.LogMeshError("chunk %v: %v", r.Request.Origin, r.Err)
			continue
		}
		if !r.Mesh.IsEmpty() {
			meshes = append(meshes, r.Mesh)
			triangles += r.Mesh.TriangleCount()
		}
	}
	stats := vol.Stats()
	util.LogSystemInfo("%d chunks, %d non-empty, %d failed, %d triangles", len(results), len(meshes), failed, triangles)
	util.LogSystemInfo("volume: %d nodes, %d leaves, %d cached, %d dirty, %d bytes", stats.Nodes, stats.Leaves, stats.Cached, stats.Dirty, stats.Bytes)
	fmt.Print(timer.String())

	if failed > 0 {
		return errors.Errorf("%d of %d chunks failed", failed, len(results))
	}
	return mesher.ExportGLTF(c.String(flagOut), meshes...)
}

// showProgress redraws the number of queued chunks while stdout is a terminal.
func showProgress(s *jobs.PoolScheduler) func() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return func() {}
	}
	stop := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				fmt.Print("\r\033[K")
				return
			case <-ticker.C:
				fmt.Printf("\r\033[K%d chunks queued", s.Pending())
			}
		}
	}()
	return func() {
		close(stop)
		<-finished
	}
}

func inspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("expected one glTF file")
	}
	f, err := os.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()
	meshes, err := mesher.DecodeGLTF(f)
	if err != nil {
		return err
	}
	vertices, triangles := 0, 0
	for _, m := range meshes {
		vertices += len(m.Vertices)
		triangles += m.TriangleCount()
	}
	fmt.Printf("%d meshes, %d vertices, %d triangles\n", len(meshes), vertices, triangles)
	return nil
}

func vecFlag(c *cli.Context, name string) (mgl32.Vec3, error) {
	values := c.Float64Slice(name)
	if len(values) != 3 {
		return mgl32.Vec3{}, errors.Errorf("--%s needs three coordinates, got %d", name, len(values))
	}
	return mgl32.Vec3{float32(values[0]), float32(values[1]), float32(values[2])}, nil
}

func pickAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	from, err := vecFlag(c, flagFrom)
	if err != nil {
		return err
	}
	to, err := vecFlag(c, flagTo)
	if err != nil {
		return err
	}
	gen, err := cfg.Generator.Build()
	if err != nil {
		return err
	}
	vol, err := voxel.NewVolume(cfg.Volume.Options(gen))
	if err != nil {
		return err
	}
	return vol.WithLock(c.Context, voxel.LockRead, vol.Bounds(), func(acc *voxel.Accessor) error {
		hit, err := acc.Raycast(from, to)
		if err != nil {
			return err
		}
		if !hit.Hit {
			fmt.Println("no hit")
			return nil
		}
		fmt.Printf("hit %v material %d at distance %.2f, face normal %v, free voxel %v\n",
			hit.Voxel, hit.Material, hit.Distance, hit.Normal, hit.Previous)
		return nil
	})
}
