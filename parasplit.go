// Package parasplit wires the ambient configuration stack, the
// border-edge index, and the coordinator together into a single entry
// point. Grounded on original_source/ParallelSim.cpp's constructor +
// partitionNetwork + startSim sequence, which is the same three steps:
// resolve configuration, prepare each partition's files and border
// edges, then run.
package parasplit

import (
	"context"

	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/parasplit/parasplit/coordinator"
	"github.com/parasplit/parasplit/simclient"
	"github.com/parasplit/parasplit/simconfig"
	"github.com/parasplit/parasplit/types"
)

// sumoBinary and sumoGUIBinary are the executable names selected from
// $SUMO_HOME/bin, matching original_source/ParallelSim.cpp's choice
// between "sumo" and "sumo-gui".
const (
	sumoBinary     = "sumo"
	sumoGUIBinary  = "sumo-gui"
	remotePortFlag = "--remote-port"
)

// Run loads the top-level configuration named by config.TopLevelPath,
// writes each partition's net/route/config files, builds the
// border-edge index, and runs every partition to completion.
func Run(ctx context.Context, config types.Config, clientFactory simclient.Factory) error {
	if config.PartitionCount != len(config.PartitionNets) || config.PartitionCount != len(config.PartitionRoutes) {
		return errors.Errorf(
			"partition count %d does not match the number of supplied net/route files (%d/%d)",
			config.PartitionCount, len(config.PartitionNets), len(config.PartitionRoutes),
		)
	}

	tl, err := simconfig.LoadTopLevel(config.TopLevelPath)
	if err != nil {
		return errors.Wrap(err, "loading top-level configuration")
	}

	sumoHome, err := simconfig.ResolveSumoHome()
	if err != nil {
		return err
	}

	endTime := tl.EndTime
	if config.EndTime != 0 {
		endTime = config.EndTime
	}

	configs := make([]types.PartitionConfig, config.PartitionCount)
	for i := 0; i < config.PartitionCount; i++ {
		cfgPath, err := simconfig.WritePartitionConfig(tl, tl.Dir, i, config.PartitionNets[i], config.PartitionRoutes[i])
		if err != nil {
			return errors.Wrapf(err, "writing configuration for partition %d", i)
		}
		configs[i] = types.PartitionConfig{
			ID:         types.PartitionID(i),
			Host:       config.Host,
			Port:       config.BasePort + i,
			ConfigPath: cfgPath,
		}
	}

	// BuildIndex reads network files, so it gets the supplied net file of
	// each partition rather than the .sumocfg path written above.
	indexConfigs := make([]types.PartitionConfig, len(configs))
	for i := range configs {
		indexConfigs[i] = types.PartitionConfig{ID: configs[i].ID, ConfigPath: config.PartitionNets[i]}
	}
	index, err := coordinator.BuildIndex(ctx, indexConfigs)
	if err != nil {
		return errors.Wrap(err, "building border-edge index")
	}
	if index.Dropped > 0 {
		logger.Get(ctx).Warn("dropped border edges shared by more than two partitions", zap.Int("count", index.Dropped))
	}
	for i := range configs {
		configs[i].ToEdges = index.ToEdges[configs[i].ID]
		configs[i].FromEdges = index.FromEdges[configs[i].ID]
	}

	binaryName := sumoBinary
	if config.GUI {
		binaryName = sumoGUIBinary
	}

	c := coordinator.New(
		config.Host,
		clientFactory,
		coordinator.Binary{
			Path:     sumoHome + "/bin/" + binaryName,
			PortFlag: remotePortFlag,
			ExtraArg: []string{"--start"},
		},
		configs,
		endTime,
	)

	return c.Run(ctx, configs)
}
