package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/memmaker/voxelstore/engine/mesher"
	"github.com/memmaker/voxelstore/engine/util"
	"github.com/memmaker/voxelstore/engine/voxel"
	"github.com/pkg/errors"
)

// lockContext applies timeout unless ctx already carries a deadline.
func lockContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// MeshTask extracts one chunk under a read lock over its padded bounds.
type MeshTask struct {
	Volume      *voxel.Volume
	Mesher      mesher.Mesher
	Request     mesher.Request
	LockTimeout time.Duration
}

func (t MeshTask) Name() string {
	return fmt.Sprintf("mesh %s %v lod %d", t.Mesher.Kind, t.Request.Origin, t.Request.LOD)
}

func (t MeshTask) Run(ctx context.Context) (any, error) {
	return t.extract(ctx)
}

func (t MeshTask) extract(ctx context.Context) (*mesher.Mesh, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.Request.Validate(); err != nil {
		return nil, err
	}
	lockCtx, cancel := lockContext(ctx, t.LockTimeout)
	defer cancel()
	acc, err := t.Volume.Access(lockCtx, voxel.LockRead, t.Request.AccessBounds())
	if err != nil {
		return nil, err
	}
	defer acc.Release()
	return t.Mesher.Extract(acc, t.Request)
}

// EditTask applies one SetRegion under a write lock. A task cancelled before
// its lock is granted never touches the volume.
type EditTask struct {
	Volume      *voxel.Volume
	Bounds      voxel.Bounds
	Channels    voxel.Channels
	Edit        func(pos voxel.Int3, vox *voxel.Voxel)
	LockTimeout time.Duration
}

func (t EditTask) Name() string {
	return fmt.Sprintf("edit %v", t.Bounds)
}

func (t EditTask) Run(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lockCtx, cancel := lockContext(ctx, t.LockTimeout)
	defer cancel()
	acc, err := t.Volume.Access(lockCtx, voxel.LockWrite, t.Bounds)
	if err != nil {
		return nil, err
	}
	defer acc.Release()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, acc.SetRegion(t.Bounds, t.Channels, t.Edit)
}

// CacheTask runs one cache manager pass.
type CacheTask struct {
	Manager   *voxel.CacheManager
	Threshold uint32
	Budget    int
}

func (t CacheTask) Name() string {
	return "cache-pass"
}

func (t CacheTask) Run(ctx context.Context) (any, error) {
	return t.Manager.CacheMostUsed(ctx, t.Threshold, t.Budget)
}

// RegionRequest asks for every chunk of a box at one lod.
type RegionRequest struct {
	Region        voxel.Bounds
	ChunkSize     int32
	LOD           int
	WantCollision bool
	// Focus gets meshed first; priority drops with the chunk distance to it.
	Focus       voxel.Int3
	Priority    int
	LockTimeout time.Duration
}

// Chunks splits the region into requests whose origins sit on the chunk grid.
func (r RegionRequest) Chunks() ([]mesher.Request, error) {
	if !r.Region.IsValid() {
		return nil, errors.Wrapf(voxel.ErrInvalidBounds, "region %v", r.Region)
	}
	if r.ChunkSize < mesher.MinChunkSize || r.ChunkSize > mesher.MaxChunkSize {
		return nil, errors.Wrapf(voxel.ErrInvalidBounds, "chunk size %d", r.ChunkSize)
	}
	if r.LOD < 0 || r.LOD > mesher.MaxLOD {
		return nil, errors.Wrapf(voxel.ErrInvalidBounds, "lod %d", r.LOD)
	}
	span := r.ChunkSize << r.LOD
	aligned := r.Region.Align(span)
	var chunks []mesher.Request
	for z := aligned.Min.Z; z < aligned.Max.Z; z += span {
		for y := aligned.Min.Y; y < aligned.Max.Y; y += span {
			for x := aligned.Min.X; x < aligned.Max.X; x += span {
				chunks = append(chunks, mesher.Request{
					Origin:        voxel.Int3{X: x, Y: y, Z: z},
					Size:          r.ChunkSize,
					LOD:           r.LOD,
					WantCollision: r.WantCollision,
				})
			}
		}
	}
	return chunks, nil
}

func (r RegionRequest) priority(req mesher.Request) int {
	span := r.ChunkSize << r.LOD
	center := req.Origin.Add(voxel.Splat(span / 2))
	return r.Priority - int(voxel.ManhattanDistance3(center, r.Focus)/span)
}

// ChunkResult is the outcome for one chunk of a region.
type ChunkResult struct {
	TaskID  uuid.UUID
	Request mesher.Request
	Mesh    *mesher.Mesh
	Err     error
}

// MeshRegion fans the region out over the scheduler and collects one result
// per chunk. A failing chunk never stops its siblings; when ctx ends, the
// chunks that did not start yet are dropped and reported as cancelled.
func MeshRegion(ctx context.Context, s Scheduler, vol *voxel.Volume, m mesher.Mesher, r RegionRequest) ([]ChunkResult, error) {
	chunks, err := r.Chunks()
	if err != nil {
		return nil, err
	}
	futures := make([]*Future, len(chunks))
	for i, req := range chunks {
		futures[i] = s.Submit(r.priority(req), MeshTask{
			Volume:      vol,
			Mesher:      m,
			Request:     req,
			LockTimeout: r.LockTimeout,
		})
	}

	results := make([]ChunkResult, len(chunks))
	failed := 0
	for i, f := range futures {
		value, err := f.Wait(ctx)
		if ctx.Err() != nil {
			for _, rest := range futures[i:] {
				rest.Cancel()
			}
			value, err = f.Wait(context.Background())
		}
		results[i] = ChunkResult{TaskID: f.ID(), Request: chunks[i], Err: err}
		if mesh, ok := value.(*mesher.Mesh); ok {
			results[i].Mesh = mesh
		}
		if err != nil {
			failed++
		}
	}
	util.LogJobsInfo("meshed %d chunks of %v, %d failed", len(chunks), r.Region, failed)
	return results, ctx.Err()
}
