// Package coordinator builds the set of Partitions for a run, starts
// their external simulator processes, connects each partition's
// SimulatorClient, and drives every partition's tick loop to completion
// in lockstep.
package coordinator

import (
	"context"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/parasplit/parasplit/partition"
	"github.com/parasplit/parasplit/partnet"
	"github.com/parasplit/parasplit/simclient"
	"github.com/parasplit/parasplit/synch"
	"github.com/parasplit/parasplit/types"
)

// connectWait is the fixed post-spawn wait spec.md describes: the
// coordinator gives the simulator process one second to start listening
// before dialing. See WithConnectRetry for the opt-in replacement.
const connectWait = time.Second

// Binary names the external simulator executable to spawn, and the
// command-line flag naming its connection port. These mirror
// original_source/ParallelSim.cpp's selection between "sumo" and
// "sumo-gui".
type Binary struct {
	Path     string
	PortFlag string
	ExtraArg []string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConnectRetry replaces the default fixed post-spawn wait with a
// connect-with-backoff loop: up to attempts dial attempts, sleeping
// backoff between each. This is the §9 "correct replacement" for the
// fixed wait, kept opt-in so the default run matches spec.md's stated
// default behavior exactly. With attempts of one or less the default
// fixed wait and startup barrier stay in effect.
func WithConnectRetry(attempts int, backoff time.Duration) Option {
	return func(c *Coordinator) {
		c.connectAttempts = attempts
		c.connectBackoff = backoff
	}
}

// Coordinator owns every Partition in a run plus the processes and
// client connections backing them.
type Coordinator struct {
	host            string
	clientFactory   simclient.Factory
	binary          Binary
	connectAttempts int
	connectBackoff  time.Duration

	partitions []*partition.Partition
	byID       map[types.PartitionID]*partition.Partition
	synch      *synch.SharedSynch

	cmdsMu sync.Mutex
	cmds   []*exec.Cmd
}

// Partition implements partition.Table.
func (c *Coordinator) Partition(id types.PartitionID) *partition.Partition {
	return c.byID[id]
}

// New builds a Coordinator for the given per-partition configurations. It
// does not spawn processes or connect clients; call Run for that.
func New(
	host string,
	clientFactory simclient.Factory,
	binary Binary,
	configs []types.PartitionConfig,
	endTime float64,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		host:            host,
		clientFactory:   clientFactory,
		binary:          binary,
		connectAttempts: 1,
		connectBackoff:  0,
		byID:            map[types.PartitionID]*partition.Partition{},
		synch:           synch.New(len(configs)),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, cfg := range configs {
		p := partition.New(cfg.ID, nil, c, c.synch, endTime, cfg.ToEdges, cfg.FromEdges)
		c.partitions = append(c.partitions, p)
		c.byID[cfg.ID] = p
	}

	return c
}

// BuildIndex reads the network file named by each config's ConfigPath and
// returns the border-edge index, including the dropped-edge count. It does
// not modify configs; callers copy Index.ToEdges/FromEdges into them.
func BuildIndex(ctx context.Context, configs []types.PartitionConfig) (*partnet.Index, error) {
	paths := make(map[types.PartitionID]string, len(configs))
	for _, cfg := range configs {
		paths[cfg.ID] = cfg.ConfigPath
	}
	return partnet.Build(ctx, paths)
}

// Run spawns every partition's external simulator process, connects its
// client, and runs every partition's tick loop to completion. It returns
// once every partition has reached its end time, or as soon as any
// partition or process fails.
//
// Each partition's spawn-wait-connect-run sequence runs in its own
// goroutine, grounded on original_source/PartitionManager.cpp's
// internalSim, which does the same sequence in its own pthread — it
// spawns the simulator process, waits for it to start, rendezvouses with
// every other partition's thread at the startup barrier, connects, and
// only then enters the tick loop.
func (c *Coordinator) Run(ctx context.Context, configs []types.PartitionConfig) error {
	defer c.closeClients(ctx)

	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		for i, cfg := range configs {
			p := c.partitions[i]
			cfg := cfg

			spawn(partitionSpawnName(cfg.ID), parallel.Fail, func(ctx context.Context) error {
				if err := c.spawnProcess(ctx, cfg); err != nil {
					return err
				}

				client, err := c.connect(ctx, cfg)
				if err != nil {
					return err
				}
				p.SetClient(client)

				if err := p.Run(ctx); err != nil {
					logger.Get(ctx).Error("partition failed", zap.Int("partition", int(cfg.ID)), zap.Error(err))
					return err
				}
				return nil
			})
		}
		return nil
	})
}

func (c *Coordinator) spawnProcess(ctx context.Context, cfg types.PartitionConfig) error {
	args := append([]string{}, c.binary.ExtraArg...)
	args = append(args, "-c", cfg.ConfigPath, c.binary.PortFlag, portString(cfg.Port))

	cmd := exec.CommandContext(ctx, c.binary.Path, args...)
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "starting simulator process for partition %d", cfg.ID)
	}

	c.cmdsMu.Lock()
	c.cmds = append(c.cmds, cmd)
	c.cmdsMu.Unlock()

	return nil
}

// connect waits for the just-spawned process to be ready, then dials it.
// In the default, fixed-wait mode every partition rendezvouses at the
// shared startup barrier before dialing, exactly as
// original_source/PartitionManager.cpp's internalSim does between its
// usleep(1000000) and pthread_barrier_wait. WithConnectRetry replaces the
// wait with independent backoff instead, in which case the barrier is
// skipped since each partition already confirms its own readiness.
func (c *Coordinator) connect(ctx context.Context, cfg types.PartitionConfig) (simclient.Client, error) {
	if c.connectAttempts <= 1 {
		select {
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		case <-time.After(connectWait):
		}
		c.synch.Barrier.Wait()
		return c.clientFactory(ctx, c.host, cfg.Port)
	}

	var lastErr error
	for attempt := 0; attempt < c.connectAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.WithStack(ctx.Err())
			case <-time.After(c.connectBackoff):
			}
		}
		client, err := c.clientFactory(ctx, c.host, cfg.Port)
		if err == nil {
			return client, nil
		}
		lastErr = err
		logger.Get(ctx).Debug(
			"connect attempt failed, retrying",
			zap.Int("partition", int(cfg.ID)),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return nil, errors.Wrapf(lastErr, "connecting to partition %d after %d attempts", cfg.ID, c.connectAttempts)
}

func (c *Coordinator) closeClients(ctx context.Context) {
	for _, p := range c.partitions {
		if err := p.Close(); err != nil {
			logger.Get(ctx).Debug("error closing partition client", zap.Error(err))
		}
	}
}

func partitionSpawnName(id types.PartitionID) string {
	return "partition-" + strconv.Itoa(int(id))
}

func portString(p int) string {
	return strconv.Itoa(p)
}
