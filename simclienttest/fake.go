// Package simclienttest provides a deterministic in-memory double for
// simclient.Client, used by this module's own tests in place of a real
// TCP connection to a simulator process.
package simclienttest

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/parasplit/parasplit/simclient"
	"github.com/parasplit/parasplit/types"
)

// Vehicle holds the per-vehicle state the fake reports back.
type Vehicle struct {
	TypeID       string
	Route        types.RouteID
	LaneIndex    int
	Lane         types.LaneID
	LanePosition float64
	Speed        float64
}

// Fake is an in-memory simclient.Client. All fields are accessed under mu;
// the exported helpers (SetRoute, SetEdge, PutVehicle, Vehicle, Steps,
// Closed) are safe for concurrent
// use by the test and by the code under test.
type Fake struct {
	mu sync.Mutex

	deltaT  float64
	now     float64
	closed  bool
	edges   map[types.EdgeID][]types.VehicleID
	routes  map[types.RouteID][]types.EdgeID
	vehicle map[types.VehicleID]Vehicle
	steps   int
}

// New creates a fake client ticking by deltaT seconds per step.
func New(deltaT float64) *Fake {
	return &Fake{
		deltaT:  deltaT,
		edges:   map[types.EdgeID][]types.VehicleID{},
		routes:  map[types.RouteID][]types.EdgeID{},
		vehicle: map[types.VehicleID]Vehicle{},
	}
}

// SetRoute registers the edges of a route, for RouteEdges and for
// split-route resolution in tests.
func (f *Fake) SetRoute(route types.RouteID, edges []types.EdgeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route] = edges
}

// SetEdge sets the current vehicle list reported for edge.
func (f *Fake) SetEdge(edge types.EdgeID, vehicles []types.VehicleID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edges[edge] = vehicles
}

// PutVehicle registers or overwrites a vehicle's state.
func (f *Fake) PutVehicle(id types.VehicleID, v Vehicle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vehicle[id] = v
}

// Vehicle returns a vehicle's current recorded state.
func (f *Fake) Vehicle(id types.VehicleID) (Vehicle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicle[id]
	return v, ok
}

// Steps reports how many times Step has been called.
func (f *Fake) Steps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.steps
}

// CurrentTime implements simclient.Client.
func (f *Fake) CurrentTime(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now, nil
}

// Step implements simclient.Client.
func (f *Fake) Step(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += f.deltaT
	f.steps++
	return nil
}

// DeltaT implements simclient.Client.
func (f *Fake) DeltaT(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deltaT, nil
}

// VehiclesOnEdge implements simclient.Client.
func (f *Fake) VehiclesOnEdge(_ context.Context, edge types.EdgeID) ([]types.VehicleID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.VehicleID, len(f.edges[edge]))
	copy(out, f.edges[edge])
	return out, nil
}

func (f *Fake) lookup(v types.VehicleID) (Vehicle, error) {
	vv, ok := f.vehicle[v]
	if !ok {
		return Vehicle{}, errors.Wrapf(simclient.ErrVehicleTransient, "vehicle %q not found", v)
	}
	return vv, nil
}

// VehicleTypeID implements simclient.Client.
func (f *Fake) VehicleTypeID(_ context.Context, v types.VehicleID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vv, err := f.lookup(v)
	return vv.TypeID, err
}

// RouteID implements simclient.Client.
func (f *Fake) RouteID(_ context.Context, v types.VehicleID) (types.RouteID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vv, err := f.lookup(v)
	return vv.Route, err
}

// LaneIndex implements simclient.Client.
func (f *Fake) LaneIndex(_ context.Context, v types.VehicleID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vv, err := f.lookup(v)
	return vv.LaneIndex, err
}

// LaneID implements simclient.Client.
func (f *Fake) LaneID(_ context.Context, v types.VehicleID) (types.LaneID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vv, err := f.lookup(v)
	return vv.Lane, err
}

// LanePosition implements simclient.Client.
func (f *Fake) LanePosition(_ context.Context, v types.VehicleID) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vv, err := f.lookup(v)
	return vv.LanePosition, err
}

// Speed implements simclient.Client.
func (f *Fake) Speed(_ context.Context, v types.VehicleID) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vv, err := f.lookup(v)
	return vv.Speed, err
}

// RouteEdges implements simclient.Client.
func (f *Fake) RouteEdges(_ context.Context, route types.RouteID) ([]types.EdgeID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	edges, ok := f.routes[route]
	if !ok {
		return nil, errors.Errorf("unknown route %q", route)
	}
	out := make([]types.EdgeID, len(edges))
	copy(out, edges)
	return out, nil
}

// AddVehicle implements simclient.Client.
func (f *Fake) AddVehicle(
	_ context.Context,
	v types.VehicleID,
	route types.RouteID,
	typeID string,
	laneIndex int,
	departPosition, speed float64,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.vehicle[v]; exists {
		return errors.Errorf("vehicle %q already exists", v)
	}
	f.vehicle[v] = Vehicle{
		TypeID:       typeID,
		Route:        route,
		LaneIndex:    laneIndex,
		LanePosition: departPosition,
		Speed:        speed,
	}
	return nil
}

// MoveTo implements simclient.Client.
func (f *Fake) MoveTo(_ context.Context, v types.VehicleID, lane types.LaneID, position float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	vv, err := f.lookup(v)
	if err != nil {
		return err
	}
	vv.Lane = lane
	vv.LanePosition = position
	f.vehicle[v] = vv
	return nil
}

// SlowDown implements simclient.Client.
func (f *Fake) SlowDown(_ context.Context, v types.VehicleID, targetSpeed float64, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	vv, err := f.lookup(v)
	if err != nil {
		return err
	}
	vv.Speed = targetSpeed
	f.vehicle[v] = vv
	return nil
}

// Close implements simclient.Client.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
