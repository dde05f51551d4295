package main

import (
	"context"
	"os"

	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parasplit/parasplit"
	"github.com/parasplit/parasplit/simclient"
	"github.com/parasplit/parasplit/types"
)

var flags struct {
	host            string
	basePort        int
	configPath      string
	gui             bool
	partitionCount  int
	partitionNets   []string
	partitionRoutes []string
	endTime         float64
	driver          string
}

var rootCmd = &cobra.Command{
	Use:   "parasplit",
	Short: "Runs a partitioned traffic simulation across cooperating simulator processes",
	RunE: func(cmd *cobra.Command, args []string) error {
		factory, err := simclient.Lookup(flags.driver)
		if err != nil {
			return err
		}

		config := types.Config{
			Host:            flags.host,
			BasePort:        flags.basePort,
			TopLevelPath:    flags.configPath,
			GUI:             flags.gui,
			PartitionCount:  flags.partitionCount,
			PartitionNets:   flags.partitionNets,
			PartitionRoutes: flags.partitionRoutes,
			EndTime:         flags.endTime,
		}

		return parasplit.Run(cmd.Context(), config, factory)
	},
}

func init() {
	rootCmd.Flags().StringVar(&flags.host, "host", "127.0.0.1", "host the simulator processes bind their control port on")
	rootCmd.Flags().IntVar(&flags.basePort, "base-port", 8873, "control port of partition 0; partition i binds base-port+i")
	rootCmd.Flags().StringVar(&flags.configPath, "config", "", "path to the top-level simulator configuration file")
	rootCmd.Flags().BoolVar(&flags.gui, "gui", false, "run the GUI variant of the simulator binary")
	rootCmd.Flags().IntVar(&flags.partitionCount, "partitions", 2, "number of partitions")
	rootCmd.Flags().StringSliceVar(&flags.partitionNets, "net", nil, "pre-partitioned network file, one per partition, in partition order")
	rootCmd.Flags().StringSliceVar(&flags.partitionRoutes, "route", nil, "pre-partitioned route file, one per partition, in partition order")
	rootCmd.Flags().Float64Var(&flags.endTime, "end-time", 0, "override the configuration file's time/end value, in seconds")
	rootCmd.Flags().StringVar(&flags.driver, "driver", "", "name of the registered simulator client driver to dial partitions with")

	_ = rootCmd.MarkFlagRequired("config")
	_ = rootCmd.MarkFlagRequired("net")
	_ = rootCmd.MarkFlagRequired("route")
	_ = rootCmd.MarkFlagRequired("driver")
}

// Execute runs the CLI, logging a fatal error and exiting non-zero on
// failure, matching the teacher's own top-level error handling.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Get(ctx).Error("parasplit failed", zap.Error(errors.WithStack(err)))
		os.Exit(1)
	}
}
