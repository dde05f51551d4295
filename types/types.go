// Package types holds the value types shared across the coordinator,
// partition, and network-parsing packages.
package types

// PartitionID identifies one sub-network. IDs are dense and start at zero;
// a PartitionID doubles as the index into the Coordinator's partition
// table, which is how peer Partitions refer to each other without holding
// pointers to one another (see the BorderEdge From/To fields below).
type PartitionID int

// EdgeID is an edge identifier as assigned by the network description.
type EdgeID string

// LaneID is a lane identifier as assigned by the network description.
type LaneID string

// VehicleID is a vehicle identifier as assigned by the simulator.
type VehicleID string

// RouteID is a route identifier as assigned by the simulator or the
// route-cutting tool.
type RouteID string

// BorderEdge is a road edge shared by exactly two partitions. From is the
// partition traffic originates in, To is the partition it flows into.
type BorderEdge struct {
	EdgeID EdgeID
	Lanes  []LaneID
	From   PartitionID
	To     PartitionID
}

// PartitionConfig is the per-partition wiring a Coordinator hands to each
// Partition at construction time.
type PartitionConfig struct {
	ID         PartitionID
	Host       string
	Port       int
	ConfigPath string
	ToEdges    []BorderEdge
	FromEdges  []BorderEdge
}

// Config is the coordinator's top-level configuration, assembled from the
// external inputs described in spec section 6.
type Config struct {
	Host            string
	BasePort        int
	TopLevelPath    string
	GUI             bool
	PartitionCount  int
	// PartitionNets and PartitionRoutes are the pre-partitioned network
	// and route file paths, one per partition, produced by the external
	// partitioner tool (spec section 1's explicit exclusion).
	PartitionNets   []string
	PartitionRoutes []string
	// EndTime overrides the top-level configuration's time/end value
	// when non-zero.
	EndTime float64
}
