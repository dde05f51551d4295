package partnet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/qa"
	"github.com/parasplit/parasplit/types"
)

const netA = `<net>
  <edge id="only_a" from="jx"/>
  <edge id="shared" from="jA"><lane id="shared_0"/></edge>
  <edge id="triple" from="jx"/>
  <junction id="jx" type="priority"/>
  <junction id="jA" type="priority"/>
</net>`

const netB = `<net>
  <edge id="shared" from="jB"><lane id="shared_0"/></edge>
  <edge id="triple" from="jy"/>
  <junction id="jB" type="dead_end"/>
  <junction id="jy" type="priority"/>
</net>`

const netC = `<net>
  <edge id="triple" from="jz"/>
  <junction id="jz" type="priority"/>
</net>`

func TestBuildIndex(t *testing.T) {
	requireT := require.New(t)

	paths := map[types.PartitionID]string{
		0: writeNet(t, netA),
		1: writeNet(t, netB),
		2: writeNet(t, netC),
	}

	idx, err := Build(qa.NewContext(t), paths)
	requireT.NoError(err)

	requireT.Equal(1, idx.Dropped)

	requireT.Len(idx.ToEdges[1], 1)
	be := idx.ToEdges[1][0]
	requireT.Equal(types.EdgeID("shared"), be.EdgeID)
	requireT.Equal(types.PartitionID(0), be.From)
	requireT.Equal(types.PartitionID(1), be.To)
	requireT.Equal([]types.LaneID{"shared_0"}, be.Lanes)

	requireT.Len(idx.FromEdges[0], 1)
	requireT.Equal(be, idx.FromEdges[0][0])

	requireT.Empty(idx.ToEdges[0])
	requireT.Empty(idx.FromEdges[1])
}

func TestBuildIndexDirectionFlipsOnDeadEnd(t *testing.T) {
	requireT := require.New(t)

	// Swap which side is the dead end: now partition 0's origin junction
	// is the dead end, so traffic flows 1 -> 0.
	flippedA := `<net>
  <edge id="shared" from="jA"><lane id="shared_0"/></edge>
  <junction id="jA" type="dead_end"/>
</net>`
	flippedB := `<net>
  <edge id="shared" from="jB"><lane id="shared_0"/></edge>
  <junction id="jB" type="priority"/>
</net>`

	paths := map[types.PartitionID]string{
		0: writeNet(t, flippedA),
		1: writeNet(t, flippedB),
	}

	idx, err := Build(qa.NewContext(t), paths)
	requireT.NoError(err)
	requireT.Equal(0, idx.Dropped)
	requireT.Len(idx.ToEdges[0], 1)
	requireT.Equal(types.PartitionID(1), idx.ToEdges[0][0].From)
	requireT.Equal(types.PartitionID(0), idx.ToEdges[0][0].To)
}
