package partnet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parasplit/parasplit/types"
)

const sampleNet = `<net>
  <edge id="e_internal" function="internal" from="j1"/>
  <edge id="e1" from="j1">
    <lane id="e1_0"/>
    <lane id="e1_1"/>
  </edge>
  <edge id="e2" from="j2"/>
  <junction id="j1" type="priority"/>
  <junction id="j2" type="dead_end"/>
</net>`

func writeNet(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "net.xml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	requireT := require.New(t)

	n, err := Load(writeNet(t, sampleNet))
	requireT.NoError(err)

	requireT.ElementsMatch([]types.EdgeID{"e1", "e2"}, n.NonInternalEdgeIDs())
	requireT.Equal([]types.LaneID{"e1_0", "e1_1"}, n.Lanes("e1"))
	requireT.Nil(n.Lanes("does-not-exist"))
}

func TestOriginIsDeadEnd(t *testing.T) {
	requireT := require.New(t)

	n, err := Load(writeNet(t, sampleNet))
	requireT.NoError(err)

	deadEnd, err := n.OriginIsDeadEnd("e1")
	requireT.NoError(err)
	requireT.False(deadEnd)

	deadEnd, err = n.OriginIsDeadEnd("e2")
	requireT.NoError(err)
	requireT.True(deadEnd)

	_, err = n.OriginIsDeadEnd("no-such-edge")
	requireT.Error(err)
}
