package partition

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/parasplit/parasplit/types"
)

// splitRoutePartMarker is the substring spec section 4.3 uses to detect a
// vehicle that has already crossed one border and needs its route rewritten
// for the partition it is entering.
const splitRoutePartMarker = "_part"

// maxSplitRouteScan bounds the candidate scan in resolveSplitRoute. The
// original implementation scans unboundedly; a well-formed split-route
// family never has more than a handful of members, so this is a safety net
// rather than a semantic change.
const maxSplitRouteScan = 1024

// Run drives this partition's tick loop until its client reports
// currentTime() >= endTime.
func (p *Partition) Run(ctx context.Context) error {
	for {
		var now float64
		if err := p.withLock(func() error {
			var err error
			now, err = p.client.CurrentTime(ctx)
			return err
		}); err != nil {
			return err
		}
		if now >= p.endTime {
			return nil
		}
		if err := p.Tick(ctx); err != nil {
			return err
		}
	}
}

// Tick advances the simulator by one step, runs the two border-edge
// handlers, and rendezvouses with every other partition at the barrier
// before returning. Grounded on original_source/PartitionManager.cpp's
// main loop: step, handleToEdges, handleFromEdges, barrier wait.
func (p *Partition) Tick(ctx context.Context) error {
	if err := p.withLock(func() error {
		return p.client.Step(ctx)
	}); err != nil {
		return err
	}

	if err := p.handleToEdges(ctx); err != nil {
		return err
	}
	if err := p.handleFromEdges(ctx); err != nil {
		return err
	}

	p.waiting.Store(true)
	p.synch.Barrier.Wait()
	p.waiting.Store(false)
	return nil
}

// withLock runs fn while holding the shared mutex. It is used for local,
// single-call critical sections; multi-step peer critical sections use
// mutate instead.
func (p *Partition) withLock(fn func() error) error {
	p.synch.Mu.Lock()
	defer p.synch.Mu.Unlock()
	return fn()
}

// handleToEdges pushes this partition's measured speed for vehicles that
// have been present on a to-edge for at least two consecutive ticks back
// to the from-partition's copy of that vehicle, slowing it so it does not
// outrun the mirrored copy before the mirrored copy has itself crossed.
// Grounded on original_source/PartitionManager.cpp's handleToEdges.
func (p *Partition) handleToEdges(ctx context.Context) error {
	for _, e := range p.toEdges {
		var curr []types.VehicleID
		if err := p.withLock(func() error {
			var err error
			curr, err = p.client.VehiclesOnEdge(ctx, e.EdgeID)
			return err
		}); err != nil {
			return err
		}
		if len(curr) == 0 {
			continue
		}

		prev := p.prevToVehicles[e.EdgeID]
		for _, veh := range curr {
			if !containsVehicle(prev, veh) {
				continue
			}

			edge := e
			v := veh
			if err := p.mutate(ctx, edge.From, func(from *Partition) error {
				transferred, err := from.client.VehiclesOnEdge(ctx, edge.EdgeID)
				if err != nil {
					return err
				}
				if !containsVehicle(transferred, v) {
					// Already crossed out of the from-partition; nothing to slow.
					return nil
				}

				speed, err := p.client.Speed(ctx, v)
				if p.swallowTransient(ctx, err) {
					return nil
				}
				if err != nil {
					return err
				}

				deltaT, err := p.client.DeltaT(ctx)
				if err != nil {
					return err
				}

				err = from.client.SlowDown(ctx, v, speed, deltaT)
				if p.swallowTransient(ctx, err) {
					return nil
				}
				return err
			}); err != nil {
				return err
			}
		}

		p.prevToVehicles[e.EdgeID] = curr
	}
	return nil
}

// handleFromEdges mirrors vehicles that newly appeared on a from-edge into
// the to-partition, rewriting their route if they already carry a
// split-route marker. Grounded on
// original_source/PartitionManager.cpp's handleFromEdges.
func (p *Partition) handleFromEdges(ctx context.Context) error {
	for _, e := range p.fromEdges {
		var curr []types.VehicleID
		if err := p.withLock(func() error {
			var err error
			curr, err = p.client.VehiclesOnEdge(ctx, e.EdgeID)
			return err
		}); err != nil {
			return err
		}
		if len(curr) == 0 {
			continue
		}

		prev := p.prevFromVehicles[e.EdgeID]
		// A vehicle whose mutation was aborted is left out of the memory,
		// so the next tick treats it as new and tries again.
		seen := make([]types.VehicleID, 0, len(curr))
		for _, veh := range curr {
			if containsVehicle(prev, veh) {
				seen = append(seen, veh)
				continue
			}

			edge := e
			v := veh
			attempted := false
			if err := p.mutate(ctx, edge.To, func(to *Partition) error {
				attempted = true
				return p.insertVehicle(ctx, to, v, edge)
			}); err != nil {
				return err
			}
			if attempted {
				seen = append(seen, veh)
			}
		}

		p.prevFromVehicles[e.EdgeID] = seen
	}
	return nil
}

// insertVehicle runs inside a mutate critical section on the to-partition.
func (p *Partition) insertVehicle(ctx context.Context, to *Partition, v types.VehicleID, edge types.BorderEdge) error {
	already, err := to.client.VehiclesOnEdge(ctx, edge.EdgeID)
	if err != nil {
		return err
	}
	if containsVehicle(already, v) {
		// A previous tick's retry already mirrored this vehicle.
		return nil
	}

	route, err := p.client.RouteID(ctx, v)
	if p.swallowTransient(ctx, err) {
		return nil
	}
	if err != nil {
		return err
	}

	if strings.Contains(string(v), splitRoutePartMarker) {
		resolved, err := resolveSplitRoute(ctx, to, route, edge.EdgeID)
		if err != nil {
			return err
		}
		route = resolved
	}

	typeID, err := p.client.VehicleTypeID(ctx, v)
	if p.swallowTransient(ctx, err) {
		return nil
	}
	if err != nil {
		return err
	}

	laneIndex, err := p.client.LaneIndex(ctx, v)
	if p.swallowTransient(ctx, err) {
		return nil
	}
	if err != nil {
		return err
	}

	lanePos, err := p.client.LanePosition(ctx, v)
	if p.swallowTransient(ctx, err) {
		return nil
	}
	if err != nil {
		return err
	}

	laneID, err := p.client.LaneID(ctx, v)
	if p.swallowTransient(ctx, err) {
		return nil
	}
	if err != nil {
		return err
	}

	speed, err := p.client.Speed(ctx, v)
	if p.swallowTransient(ctx, err) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := to.client.AddVehicle(ctx, v, route, typeID, laneIndex, lanePos, speed); err != nil {
		if p.swallowTransient(ctx, err) {
			return nil
		}
		return err
	}

	if err := to.client.MoveTo(ctx, v, laneID, lanePos); err != nil {
		if p.swallowTransient(ctx, err) {
			return nil
		}
		return err
	}

	return nil
}

// mutate performs the cross-partition handshake from spec section 4.5,
// then runs fn against q inside the resulting critical section.
//
// Grounded on original_source/PartitionManager.cpp's synchronization
// around cross-partition mutation: if this partition is itself being
// mutated, it waits that out first; then it claims q by setting its
// synching flag, spins until q parks itself (waiting), runs the mutation
// under the shared lock, and releases q.
func (p *Partition) mutate(ctx context.Context, qid types.PartitionID, fn func(q *Partition) error) error {
	q := p.table.Partition(qid)

	if p.synching.Load() {
		p.WaitForSynch()
	}

	q.SetSynching(true)
	for !q.IsWaiting() {
		if p.synching.Load() {
			// A peer claimed us while we were spinning for q; abort this
			// mutation for the current tick rather than deadlock. It will
			// be retried on the next tick since the underlying vehicle
			// state it reacts to is re-read from scratch every tick.
			q.SetSynching(false)
			p.synch.Cond.Signal()
			logger.Get(ctx).Debug(
				"aborting cross-partition mutation, claimed by a peer",
				zap.Int("partition", int(p.id)),
				zap.Int("target", int(qid)),
			)
			return nil
		}
		runtime.Gosched()
	}

	p.synch.Mu.Lock()
	err := fn(q)
	p.synch.Mu.Unlock()

	q.SetSynching(false)
	p.synch.Cond.Signal()
	return err
}

// resolveSplitRoute finds the member of a split-route family whose first
// edge matches borderEdge, by scanning to.RouteEdges(base+"0"),
// to.RouteEdges(base+"1"), ... Grounded on
// original_source/PartitionManager.cpp's route-rewriting loop.
func resolveSplitRoute(ctx context.Context, to *Partition, route types.RouteID, borderEdge types.EdgeID) (types.RouteID, error) {
	idx := strings.Index(string(route), splitRoutePartMarker)
	if idx < 0 {
		return route, nil
	}
	base := string(route)[:idx+len(splitRoutePartMarker)]

	for k := 0; k < maxSplitRouteScan; k++ {
		candidate := types.RouteID(fmt.Sprintf("%s%d", base, k))
		edges, err := to.client.RouteEdges(ctx, candidate)
		if err != nil {
			return "", err
		}
		if len(edges) > 0 && edges[0] == borderEdge {
			return candidate, nil
		}
	}
	return "", errors.Errorf("no split-route member of %q enters via edge %q", base, borderEdge)
}

func containsVehicle(vehicles []types.VehicleID, v types.VehicleID) bool {
	for _, existing := range vehicles {
		if existing == v {
			return true
		}
	}
	return false
}
