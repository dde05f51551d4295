// Package simclient defines the contract a partition uses to talk to its
// external simulator process. The implementation of this contract — the
// TCP wire client for the simulator's own control protocol — is an
// external collaborator and is not part of this module; packages in this
// repository depend only on the Client interface below.
package simclient

import (
	"context"

	"github.com/pkg/errors"

	"github.com/parasplit/parasplit/types"
)

// ErrVehicleTransient is wrapped by any per-vehicle read or write that
// fails because the vehicle has already left the simulation or has not
// yet been inserted. Callers that operate on lists of vehicles swallow
// errors satisfying errors.Is(err, ErrVehicleTransient) and continue with
// the remaining vehicles.
var ErrVehicleTransient = errors.New("vehicle transiently unavailable")

// Client is a single connection to one partition's external simulator
// process.
type Client interface {
	// CurrentTime returns the simulated clock, in seconds. Monotone
	// non-decreasing within a connection.
	CurrentTime(ctx context.Context) (float64, error)
	// Step advances the simulator exactly one delta-t tick. Blocking.
	Step(ctx context.Context) error
	// DeltaT returns the simulator's tick duration, in seconds.
	DeltaT(ctx context.Context) (float64, error)

	// VehiclesOnEdge returns the vehicles currently on edge, in the order
	// the simulator reports them.
	VehiclesOnEdge(ctx context.Context, edge types.EdgeID) ([]types.VehicleID, error)

	// VehicleTypeID, RouteID, LaneIndex, LaneID, LanePosition, and Speed
	// read per-vehicle state. Each may fail with an error satisfying
	// errors.Is(err, ErrVehicleTransient).
	VehicleTypeID(ctx context.Context, v types.VehicleID) (string, error)
	RouteID(ctx context.Context, v types.VehicleID) (types.RouteID, error)
	LaneIndex(ctx context.Context, v types.VehicleID) (int, error)
	LaneID(ctx context.Context, v types.VehicleID) (types.LaneID, error)
	LanePosition(ctx context.Context, v types.VehicleID) (float64, error)
	Speed(ctx context.Context, v types.VehicleID) (float64, error)

	// RouteEdges returns the ordered edges of a route.
	RouteEdges(ctx context.Context, route types.RouteID) ([]types.EdgeID, error)

	// AddVehicle inserts a vehicle departing now, with the given initial
	// lane index, lane position, and speed.
	AddVehicle(
		ctx context.Context,
		v types.VehicleID,
		route types.RouteID,
		typeID string,
		laneIndex int,
		departPosition, speed float64,
	) error
	// MoveTo relocates a vehicle to an exact lane position. May fail with
	// an error satisfying errors.Is(err, ErrVehicleTransient).
	MoveTo(ctx context.Context, v types.VehicleID, lane types.LaneID, position float64) error
	// SlowDown instructs the simulator to clamp the vehicle's speed to
	// targetSpeed over duration. May fail with an error satisfying
	// errors.Is(err, ErrVehicleTransient).
	SlowDown(ctx context.Context, v types.VehicleID, targetSpeed float64, duration float64) error

	// Close releases the connection.
	Close() error
}

// Factory yields a connected Client for the given partition. Dialing and
// connection retry policy belong to the factory; see
// coordinator.Option/WithConnectRetry for the retry-loop seam this module
// exposes around it.
type Factory func(ctx context.Context, host string, port int) (Client, error)
