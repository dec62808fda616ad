package mesher

import (
	"time"

	"github.com/memmaker/voxelstore/engine/util"
	"github.com/memmaker/voxelstore/engine/voxel"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Kind selects the meshing algorithm.
type Kind uint8

const (
	Cubic Kind = iota
	GreedyCubic
	SurfaceNets
)

func (k Kind) String() string {
	switch k {
	case Cubic:
		return "cubic"
	case GreedyCubic:
		return "greedy"
	case SurfaceNets:
		return "surface-nets"
	}
	return "unknown"
}

func ParseKind(name string) (Kind, error) {
	for _, k := range []Kind{Cubic, GreedyCubic, SurfaceNets} {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, errors.Errorf("unknown mesher %q", name)
}

// MaterialPolicy decides what the greedy mesher does with mixed materials.
type MaterialPolicy uint8

const (
	// MaterialSplit only merges faces of the same material.
	MaterialSplit MaterialPolicy = iota
	// MaterialOrigin merges by occupancy and tags the quad with its first voxel's material.
	MaterialOrigin
)

func ParseMaterialPolicy(name string) (MaterialPolicy, error) {
	switch name {
	case "", "split":
		return MaterialSplit, nil
	case "origin":
		return MaterialOrigin, nil
	}
	return 0, errors.Errorf("unknown material policy %q", name)
}

const (
	MinChunkSize = 1
	// MaxChunkSize keeps one padded row in a 64 bit word.
	MaxChunkSize = 62
	MaxLOD       = 20
)

// Request describes one chunk to mesh.
type Request struct {
	// Origin is the minimum corner of the chunk in voxels.
	Origin voxel.Int3
	// Size is the number of samples per axis.
	Size           int32
	LOD            int
	TransitionMask TransitionMask
	WantCollision  bool
}

// Step is the distance between two samples.
func (r Request) Step() int32 {
	return 1 << r.LOD
}

// Bounds is the area the chunk covers.
func (r Request) Bounds() voxel.Bounds {
	return voxel.BoundsFromSize(r.Origin, r.Size*r.Step())
}

// AccessBounds is the chunk padded by one sample on every side.
func (r Request) AccessBounds() voxel.Bounds {
	s := r.Step()
	return voxel.Bounds{Min: r.Origin.Sub(voxel.Splat(s)), Max: r.Origin.Add(voxel.Splat((r.Size + 1) * s))}
}

func (r Request) Validate() error {
	if r.Size < MinChunkSize || r.Size > MaxChunkSize {
		return errors.Wrapf(voxel.ErrInvalidBounds, "chunk size %d not in [%d, %d]", r.Size, MinChunkSize, MaxChunkSize)
	}
	if r.LOD < 0 || r.LOD > MaxLOD {
		return errors.Wrapf(voxel.ErrInvalidBounds, "lod %d", r.LOD)
	}
	if aligned := r.Origin.FloorDiv(r.Step()).Mul(r.Step()); aligned != r.Origin {
		return errors.Wrapf(voxel.ErrInvalidBounds, "origin %v not on the lod %d lattice", r.Origin, r.LOD)
	}
	return nil
}

type Options struct {
	Policy MaterialPolicy
}

// Mesher is one configured meshing strategy.
type Mesher struct {
	Kind    Kind
	Options Options
}

func New(kind Kind, opts Options) Mesher {
	return Mesher{Kind: kind, Options: opts}
}

var (
	extractSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mesher_extract_seconds",
		Help:    "Time spent extracting one chunk mesh.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 3, 9),
	}, []string{
		"kind",
	})

	extractTriangles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mesher_triangles_total",
		Help: "Triangles produced by chunk extraction.",
	}, []string{
		"kind",
	})
)

// Extract meshes one chunk. acc must be a read accessor covering req.AccessBounds().
func (m Mesher) Extract(acc *voxel.Accessor, req Request) (*Mesh, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	var mesh *Mesh
	var err error
	switch m.Kind {
	case Cubic:
		mesh, err = extractBlocks(acc, req, false, m.Options)
	case GreedyCubic:
		mesh, err = extractBlocks(acc, req, true, m.Options)
	case SurfaceNets:
		mesh, err = extractSurfaceNets(acc, req)
	default:
		return nil, errors.Errorf("unknown mesher kind %d", m.Kind)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s mesh at %v lod %d", m.Kind, req.Origin, req.LOD)
	}
	extractSeconds.WithLabelValues(m.Kind.String()).Observe(time.Since(start).Seconds())
	extractTriangles.WithLabelValues(m.Kind.String()).Add(float64(mesh.TriangleCount()))
	util.LogMeshDebug("%s chunk %v lod %d was meshed into %d triangles", m.Kind, req.Origin, req.LOD, mesh.TriangleCount())
	return mesh, nil
}

// skipUniform reports whether the padded chunk is entirely air or entirely solid.
func skipUniform(acc *voxel.Accessor, req Request) (bool, error) {
	b := req.AccessBounds()
	empty, err := acc.IsEmpty(b, req.LOD)
	if err != nil || empty {
		return empty, err
	}
	return acc.IsFull(b, req.LOD)
}

// readPadded samples the chunk plus a one sample halo.
func readPadded(acc *voxel.Accessor, req Request) (*voxel.Grid, error) {
	s := req.Step()
	dims := voxel.Splat(req.Size + 2)
	return acc.ReadGrid(req.Origin.Sub(voxel.Splat(s)), dims, s, req.LOD)
}
