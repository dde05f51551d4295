// Package partition implements one sub-network's runtime state: the
// SimulatorClient it owns, its border edges, and the cross-partition
// protocol (see protocol.go) that keeps traffic flowing continuously
// across partition boundaries.
package partition

import (
	"context"
	"sync/atomic"

	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/parasplit/parasplit/simclient"
	"github.com/parasplit/parasplit/synch"
	"github.com/parasplit/parasplit/types"
)

// Table resolves a peer partition by id. Partitions refer to each other
// through a Table rather than by pointer, which is how the cyclic
// reference between a BorderEdge and its From/To partitions is broken
// (spec section 9, "Cyclic peer references"); the Coordinator is the
// concrete implementation.
type Table interface {
	Partition(id types.PartitionID) *Partition
}

// Partition is one sub-network, driven by its own SimulatorClient.
type Partition struct {
	id        types.PartitionID
	client    simclient.Client
	table     Table
	synch     *synch.SharedSynch
	endTime   float64
	toEdges   []types.BorderEdge
	fromEdges []types.BorderEdge

	prevToVehicles   map[types.EdgeID][]types.VehicleID
	prevFromVehicles map[types.EdgeID][]types.VehicleID

	synching atomic.Bool
	waiting  atomic.Bool

	transientErrors atomic.Int64
}

// New creates a Partition. client may be nil: coordinator builds every
// Partition before the simulator processes are started and attaches each
// connected client later with SetClient.
func New(
	id types.PartitionID,
	client simclient.Client,
	table Table,
	synch *synch.SharedSynch,
	endTime float64,
	toEdges, fromEdges []types.BorderEdge,
) *Partition {
	return &Partition{
		id:               id,
		client:           client,
		table:            table,
		synch:            synch,
		endTime:          endTime,
		toEdges:          toEdges,
		fromEdges:        fromEdges,
		prevToVehicles:   map[types.EdgeID][]types.VehicleID{},
		prevFromVehicles: map[types.EdgeID][]types.VehicleID{},
	}
}

// ID returns the partition's identifier.
func (p *Partition) ID() types.PartitionID {
	return p.id
}

// TransientErrors returns the number of swallowed transient vehicle
// errors observed so far (spec section 9's observability note).
func (p *Partition) TransientErrors() int64 {
	return p.transientErrors.Load()
}

// SetClient attaches the connected SimulatorClient for this partition.
// Coordinator calls this once, after the external simulator process has
// accepted the connection; Partition.New itself never dials.
func (p *Partition) SetClient(client simclient.Client) {
	p.client = client
}

// Close releases the partition's simulator connection, if one was ever
// attached.
func (p *Partition) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

// The methods below are the peer-callable contract from spec section 4.3.
// None of them lock SharedSynch.Mu themselves: the caller — either this
// partition's own tick body (see protocol.go's withLock) or a peer's
// handshake critical section (see protocol.go's mutate) — is responsible
// for holding the lock for as long as a group of calls must be atomic.
// This mirrors original_source/PartitionManager.cpp, where
// getEdgeVehicles/add/moveTo/slowDown never lock internally; their
// callers bracket the critical sections.

// VehiclesOnEdge returns the vehicles currently on edge.
func (p *Partition) VehiclesOnEdge(ctx context.Context, edge types.EdgeID) ([]types.VehicleID, error) {
	return p.client.VehiclesOnEdge(ctx, edge)
}

// RouteEdges returns the ordered edges of route.
func (p *Partition) RouteEdges(ctx context.Context, route types.RouteID) ([]types.EdgeID, error) {
	return p.client.RouteEdges(ctx, route)
}

// AddVehicle inserts a mirrored vehicle into this partition.
func (p *Partition) AddVehicle(
	ctx context.Context,
	v types.VehicleID,
	route types.RouteID,
	typeID string,
	laneIndex int,
	departPosition, speed float64,
) error {
	return p.client.AddVehicle(ctx, v, route, typeID, laneIndex, departPosition, speed)
}

// MoveTo relocates a vehicle to an exact lane position.
func (p *Partition) MoveTo(ctx context.Context, v types.VehicleID, lane types.LaneID, position float64) error {
	return p.client.MoveTo(ctx, v, lane, position)
}

// SlowDown clamps a vehicle's speed over one tick.
func (p *Partition) SlowDown(ctx context.Context, v types.VehicleID, targetSpeed, duration float64) error {
	return p.client.SlowDown(ctx, v, targetSpeed, duration)
}

// SetSynching sets the flag that tells this partition a peer is about to
// mutate it.
func (p *Partition) SetSynching(b bool) {
	p.synching.Store(b)
}

// IsSynching reports whether a peer has announced intent to mutate this
// partition.
func (p *Partition) IsSynching() bool {
	return p.synching.Load()
}

// IsWaiting reports whether this partition is parked at its barrier wait
// or inside WaitForSynch, and is therefore safe to be mutated.
func (p *Partition) IsWaiting() bool {
	return p.waiting.Load()
}

// WaitForSynch blocks the caller until this partition's synching flag
// turns false, marking it waiting (and therefore safe to touch) while
// parked. Grounded on original_source/PartitionManager.cpp's
// waitForSynch: lock, set waiting, loop on the condition variable while
// synching holds, clear waiting, unlock.
func (p *Partition) WaitForSynch() {
	p.synch.Mu.Lock()
	defer p.synch.Mu.Unlock()

	p.waiting.Store(true)
	for p.synching.Load() {
		p.synch.Cond.Wait()
	}
	p.waiting.Store(false)
}

func (p *Partition) swallowTransient(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, simclient.ErrVehicleTransient) {
		p.transientErrors.Add(1)
		logger.Get(ctx).Debug("swallowing transient vehicle error", zap.Error(err), zap.Int("partition", int(p.id)))
		return true
	}
	return false
}
