package partnet

import (
	"context"
	"sort"

	"github.com/outofforest/logger"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/parasplit/parasplit/types"
)

// Index is the result of scanning every partition's network file for
// border edges.
type Index struct {
	// ToEdges and FromEdges are keyed by the partition the edge belongs to
	// on that side, matching the ToEdges/FromEdges fields of
	// types.PartitionConfig.
	ToEdges   map[types.PartitionID][]types.BorderEdge
	FromEdges map[types.PartitionID][]types.BorderEdge
	// Dropped counts edge identifiers that occurred in three or more
	// partitions; spec.md treats these as unsupported and drops them.
	Dropped int
}

type edgePartition struct {
	Edge      types.EdgeID
	Partition types.PartitionID
}

// Build scans the network files named by paths (keyed by partition id) and
// returns one border edge for every non-internal edge identifier that
// occurs in exactly two partitions.
func Build(ctx context.Context, paths map[types.PartitionID]string) (*Index, error) {
	networks := make(map[types.PartitionID]*Network, len(paths))
	for pid, path := range paths {
		n, err := Load(path)
		if err != nil {
			return nil, err
		}
		networks[pid] = n
	}

	var pairs []edgePartition
	for pid, net := range networks {
		for _, eid := range net.NonInternalEdgeIDs() {
			pairs = append(pairs, edgePartition{Edge: eid, Partition: pid})
		}
	}

	groups := lo.GroupBy(pairs, func(p edgePartition) types.EdgeID { return p.Edge })

	edgeIDs := lo.Keys(groups)
	sort.Slice(edgeIDs, func(i, j int) bool { return edgeIDs[i] < edgeIDs[j] })

	idx := &Index{
		ToEdges:   map[types.PartitionID][]types.BorderEdge{},
		FromEdges: map[types.PartitionID][]types.BorderEdge{},
	}

	for _, eid := range edgeIDs {
		entries := groups[eid]
		switch {
		case len(entries) == 1:
			// Interior to exactly one partition: not a border edge.
			continue
		case len(entries) != 2:
			idx.Dropped++
			logger.Get(ctx).Warn(
				"edge appears in more than two partitions, dropping",
				zap.String("edge", string(eid)),
				zap.Int("partitions", len(entries)),
			)
			continue
		}

		partitions := []types.PartitionID{entries[0].Partition, entries[1].Partition}
		sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })
		p1, p2 := partitions[0], partitions[1]

		deadEnd, err := networks[p1].OriginIsDeadEnd(eid)
		if err != nil {
			return nil, err
		}

		from, to := p1, p2
		if deadEnd {
			from, to = p2, p1
		}

		be := types.BorderEdge{
			EdgeID: eid,
			Lanes:  networks[p1].Lanes(eid),
			From:   from,
			To:     to,
		}

		idx.ToEdges[to] = append(idx.ToEdges[to], be)
		idx.FromEdges[from] = append(idx.FromEdges[from], be)
	}

	return idx, nil
}
