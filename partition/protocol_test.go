package partition

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/qa"
	"github.com/parasplit/parasplit/simclienttest"
	"github.com/parasplit/parasplit/synch"
	"github.com/parasplit/parasplit/types"
)

// withTimeout runs fn in a goroutine and fails the test if it doesn't
// return within d. Every test below exercises mutate's handshake, which
// spins forever if the handshake is wired wrong; a deadline turns that
// into a fast, readable failure instead of a hung test binary.
func withTimeout(t *testing.T, d time.Duration, fn func() error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(d):
		t.Fatal("operation did not complete in time")
		return nil
	}
}

func TestHandleFromEdgesMirrorsNewVehicle(t *testing.T) {
	requireT := require.New(t)
	ctx := qa.NewContext(t)

	tb := table{}
	sh := synch.New(2)
	edge := types.BorderEdge{EdgeID: "b", From: 0, To: 1, Lanes: []types.LaneID{"b_0"}}

	fake0 := simclienttest.New(1)
	fake1 := simclienttest.New(1)

	p0 := New(0, fake0, tb, sh, 1000, nil, []types.BorderEdge{edge})
	p1 := New(1, fake1, tb, sh, 1000, []types.BorderEdge{edge}, nil)
	tb[0], tb[1] = p0, p1

	fake0.SetRoute("r1", []types.EdgeID{"b", "c"})
	fake0.PutVehicle("v1", simclienttest.Vehicle{
		TypeID: "car", Route: "r1", LaneIndex: 0, Lane: "b_0", LanePosition: 5, Speed: 10,
	})
	fake0.SetEdge("b", []types.VehicleID{"v1"})
	fake1.SetEdge("b", nil)

	// p1 is the target of the handshake; mark it parked so mutate's spin
	// resolves immediately instead of hanging.
	p1.waiting.Store(true)

	err := withTimeout(t, 2*time.Second, func() error {
		return p0.handleFromEdges(ctx)
	})
	requireT.NoError(err)

	v, ok := fake1.Vehicle("v1")
	requireT.True(ok)
	requireT.Equal("car", v.TypeID)
	requireT.Equal(types.RouteID("r1"), v.Route)
	requireT.Equal(types.LaneID("b_0"), v.Lane)
	requireT.Equal(5.0, v.LanePosition)

	requireT.False(p1.IsSynching())
}

func TestHandleFromEdgesSkipsAlreadyMirroredVehicle(t *testing.T) {
	requireT := require.New(t)
	ctx := qa.NewContext(t)

	tb := table{}
	sh := synch.New(2)
	edge := types.BorderEdge{EdgeID: "b", From: 0, To: 1}

	fake0 := simclienttest.New(1)
	fake1 := simclienttest.New(1)

	p0 := New(0, fake0, tb, sh, 1000, nil, []types.BorderEdge{edge})
	p1 := New(1, fake1, tb, sh, 1000, []types.BorderEdge{edge}, nil)
	tb[0], tb[1] = p0, p1

	fake0.SetRoute("r1", []types.EdgeID{"b"})
	fake0.PutVehicle("v1", simclienttest.Vehicle{TypeID: "car", Route: "r1"})
	fake0.SetEdge("b", []types.VehicleID{"v1"})

	// v1 already landed on the destination edge on an earlier retry.
	fake1.PutVehicle("v1", simclienttest.Vehicle{TypeID: "car", Route: "r1"})
	fake1.SetEdge("b", []types.VehicleID{"v1"})

	p1.waiting.Store(true)

	err := withTimeout(t, 2*time.Second, func() error {
		return p0.handleFromEdges(ctx)
	})
	requireT.NoError(err)
}

func TestHandleFromEdgesIgnoresVehicleSeenLastTick(t *testing.T) {
	requireT := require.New(t)
	ctx := qa.NewContext(t)

	tb := table{}
	sh := synch.New(2)
	edge := types.BorderEdge{EdgeID: "b", From: 0, To: 1}

	fake0 := simclienttest.New(1)
	fake1 := simclienttest.New(1)

	p0 := New(0, fake0, tb, sh, 1000, nil, []types.BorderEdge{edge})
	p1 := New(1, fake1, tb, sh, 1000, []types.BorderEdge{edge}, nil)
	tb[0], tb[1] = p0, p1

	fake0.SetEdge("b", []types.VehicleID{"v1"})
	p0.prevFromVehicles["b"] = []types.VehicleID{"v1"}

	// p1 is deliberately left not-waiting: if handleFromEdges incorrectly
	// tried to mutate it for a vehicle it has already processed, mutate
	// would spin forever and the timeout below would catch it.
	err := withTimeout(t, 500*time.Millisecond, func() error {
		return p0.handleFromEdges(ctx)
	})
	requireT.NoError(err)
}

func TestHandleToEdgesSlowsDownUpstreamVehicle(t *testing.T) {
	requireT := require.New(t)
	ctx := qa.NewContext(t)

	tb := table{}
	sh := synch.New(2)
	edge := types.BorderEdge{EdgeID: "b", From: 0, To: 1}

	fake0 := simclienttest.New(2) // deltaT = 2
	fake1 := simclienttest.New(2)

	p0 := New(0, fake0, tb, sh, 1000, nil, []types.BorderEdge{edge})
	p1 := New(1, fake1, tb, sh, 1000, []types.BorderEdge{edge}, nil)
	tb[0], tb[1] = p0, p1

	fake0.PutVehicle("v1", simclienttest.Vehicle{TypeID: "car"})
	fake0.SetEdge("b", []types.VehicleID{"v1"})

	fake1.PutVehicle("v1", simclienttest.Vehicle{TypeID: "car", Speed: 7})
	fake1.SetEdge("b", []types.VehicleID{"v1"})
	// Seed the prior-tick memory so v1 is recognized as having been
	// present for two consecutive ticks, per handleToEdges's contract.
	p1.prevToVehicles["b"] = []types.VehicleID{"v1"}

	p0.waiting.Store(true)

	err := withTimeout(t, 2*time.Second, func() error {
		return p1.handleToEdges(ctx)
	})
	requireT.NoError(err)

	v, ok := fake0.Vehicle("v1")
	requireT.True(ok)
	requireT.Equal(7.0, v.Speed)
}

func TestHandleToEdgesSkipsVehicleAlreadyGoneFromFromPartition(t *testing.T) {
	requireT := require.New(t)
	ctx := qa.NewContext(t)

	tb := table{}
	sh := synch.New(2)
	edge := types.BorderEdge{EdgeID: "b", From: 0, To: 1}

	fake0 := simclienttest.New(1)
	fake1 := simclienttest.New(1)

	p0 := New(0, fake0, tb, sh, 1000, nil, []types.BorderEdge{edge})
	p1 := New(1, fake1, tb, sh, 1000, []types.BorderEdge{edge}, nil)
	tb[0], tb[1] = p0, p1

	// v1 has already fully crossed out of partition 0's copy of edge b.
	fake0.SetEdge("b", nil)

	fake1.PutVehicle("v1", simclienttest.Vehicle{TypeID: "car", Speed: 9})
	fake1.SetEdge("b", []types.VehicleID{"v1"})
	p1.prevToVehicles["b"] = []types.VehicleID{"v1"}

	p0.waiting.Store(true)

	err := withTimeout(t, 2*time.Second, func() error {
		return p1.handleToEdges(ctx)
	})
	requireT.NoError(err)

	v, ok := fake0.Vehicle("v1")
	requireT.False(ok)
	_ = v
}

func TestResolveSplitRouteFindsMatchingMember(t *testing.T) {
	requireT := require.New(t)
	ctx := qa.NewContext(t)

	tb := table{}
	sh := synch.New(1)
	fake := simclienttest.New(1)
	to := New(1, fake, tb, sh, 1000, nil, nil)
	tb[1] = to

	fake.SetRoute("main_part0", []types.EdgeID{"x", "y"})
	fake.SetRoute("main_part1", []types.EdgeID{"b", "z"})

	resolved, err := resolveSplitRoute(ctx, to, "main_part1", "b")
	requireT.NoError(err)
	requireT.Equal(types.RouteID("main_part1"), resolved)
}

func TestResolveSplitRouteLeavesPlainRouteUnchanged(t *testing.T) {
	requireT := require.New(t)
	ctx := qa.NewContext(t)

	tb := table{}
	sh := synch.New(1)
	fake := simclienttest.New(1)
	to := New(1, fake, tb, sh, 1000, nil, nil)
	tb[1] = to

	resolved, err := resolveSplitRoute(ctx, to, "plain", "b")
	requireT.NoError(err)
	requireT.Equal(types.RouteID("plain"), resolved)
}

func TestMutateAbortsWhenCallerIsClaimedByAPeer(t *testing.T) {
	requireT := require.New(t)
	ctx := qa.NewContext(t)

	tb := table{}
	sh := synch.New(2)
	fake0 := simclienttest.New(1)
	fake1 := simclienttest.New(1)
	p0 := New(0, fake0, tb, sh, 1000, nil, nil)
	p1 := New(1, fake1, tb, sh, 1000, nil, nil)
	tb[0], tb[1] = p0, p1

	// p1 never parks itself as waiting, so mutate must spin. While it
	// spins, a (simulated) third partition claims p0.
	go func() {
		time.Sleep(20 * time.Millisecond)
		p0.SetSynching(true)
	}()

	var called bool
	err := withTimeout(t, 2*time.Second, func() error {
		return p0.mutate(ctx, 1, func(q *Partition) error {
			called = true
			return nil
		})
	})
	requireT.NoError(err)
	requireT.False(called)
	requireT.False(p1.IsSynching())
}

func TestWithLockRunsUnderSharedMutex(t *testing.T) {
	requireT := require.New(t)
	ctx := context.Background()

	tb := table{}
	sh := synch.New(1)
	fake := simclienttest.New(1)
	p := New(0, fake, tb, sh, 10, nil, nil)

	requireT.NoError(fake.Step(ctx))
	now, err := fake.CurrentTime(ctx)
	requireT.NoError(err)
	requireT.Equal(1.0, now)

	requireT.NoError(p.withLock(func() error {
		requireT.False(sh.Mu.TryLock(), "shared mutex must be held while fn runs")
		return p.client.Step(ctx)
	}))
}
