package simconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleTopLevel = `<configuration>
  <input>
    <net-file value="net.xml"/>
    <route-files value="routes.xml"/>
  </input>
  <time>
    <end value="1800"/>
  </time>
</configuration>`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadTopLevelParsesInputAndTime(t *testing.T) {
	requireT := require.New(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "run.sumocfg", sampleTopLevel)

	tl, err := LoadTopLevel(path)
	requireT.NoError(err)
	requireT.Equal(filepath.Join(dir, "net.xml"), tl.NetFile)
	requireT.Equal(filepath.Join(dir, "routes.xml"), tl.RouteFiles)
	requireT.Equal(1800.0, tl.EndTime)
	requireT.Empty(tl.GUISettingsFile)
}

func TestLoadTopLevelDefaultsEndTimeWhenAbsent(t *testing.T) {
	requireT := require.New(t)
	dir := t.TempDir()
	const doc = `<configuration>
  <input>
    <net-file value="net.xml"/>
    <route-files value="routes.xml"/>
  </input>
</configuration>`
	path := writeFile(t, dir, "run.sumocfg", doc)

	tl, err := LoadTopLevel(path)
	requireT.NoError(err)
	requireT.Equal(float64(defaultEndTime), tl.EndTime)
}

func TestLoadTopLevelRejectsMissingNetFile(t *testing.T) {
	requireT := require.New(t)
	dir := t.TempDir()
	const doc = `<configuration>
  <input>
    <route-files value="routes.xml"/>
  </input>
</configuration>`
	path := writeFile(t, dir, "run.sumocfg", doc)

	_, err := LoadTopLevel(path)
	requireT.Error(err)
}

func TestLoadTopLevelResolvesGUISettingsFile(t *testing.T) {
	requireT := require.New(t)
	dir := t.TempDir()
	const doc = `<configuration>
  <input>
    <net-file value="net.xml"/>
    <route-files value="routes.xml"/>
    <gui-settings-file value="gui.xml"/>
  </input>
</configuration>`
	path := writeFile(t, dir, "run.sumocfg", doc)

	tl, err := LoadTopLevel(path)
	requireT.NoError(err)
	requireT.Equal(filepath.Join(dir, "gui.xml"), tl.GUISettingsFile)
}

func TestWritePartitionConfigCopiesFilesAndRewritesReferences(t *testing.T) {
	requireT := require.New(t)
	dir := t.TempDir()
	outDir := t.TempDir()

	netSrc := writeFile(t, dir, "whole.net.xml", "<net/>")
	routeSrc := writeFile(t, dir, "whole.rou.xml", "<routes/>")

	tl := &TopLevel{Dir: dir, EndTime: 900}

	cfgPath, err := WritePartitionConfig(tl, outDir, 2, netSrc, routeSrc)
	requireT.NoError(err)
	requireT.Equal(filepath.Join(outDir, "part2.sumocfg"), cfgPath)

	netContent, err := os.ReadFile(filepath.Join(outDir, "part2.net.xml"))
	requireT.NoError(err)
	requireT.Equal("<net/>", string(netContent))

	routeContent, err := os.ReadFile(filepath.Join(outDir, "part2.rou.xml"))
	requireT.NoError(err)
	requireT.Equal("<routes/>", string(routeContent))

	written, err := LoadTopLevel(cfgPath)
	requireT.NoError(err)
	requireT.Equal(filepath.Join(outDir, "part2.net.xml"), written.NetFile)
	requireT.Equal(filepath.Join(outDir, "part2.rou.xml"), written.RouteFiles)
	requireT.Equal(900.0, written.EndTime)
}

func TestResolveSumoHomeReadsEnvironment(t *testing.T) {
	requireT := require.New(t)

	t.Setenv(sumoHomeEnv, "/opt/sumo")
	home, err := ResolveSumoHome()
	requireT.NoError(err)
	requireT.Equal("/opt/sumo", home)
}

func TestResolveSumoHomeFailsWhenUnset(t *testing.T) {
	requireT := require.New(t)

	t.Setenv(sumoHomeEnv, "")
	_, err := ResolveSumoHome()
	requireT.Error(err)
}
