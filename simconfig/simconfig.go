// Package simconfig is the ambient configuration stack: it parses the
// top-level simulator configuration, resolves the simulator installation
// from the environment, and produces the per-partition configuration
// files the external simulator processes are started with. Grounded on
// original_source/ParallelSim.cpp's constructor, getFilePaths, and the
// net-file/route-files/gui-settings-file rewriting loop inside
// partitionNetwork.
package simconfig

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

// defaultEndTime is used when the top-level config's time/end element is
// absent, matching original_source/ParallelSim.cpp's fallback.
const defaultEndTime = 1000

// sumoHomeEnv is the environment variable naming the simulator
// installation root.
const sumoHomeEnv = "SUMO_HOME"

// TopLevel is the parsed form of the run's top-level simulator
// configuration document.
type TopLevel struct {
	Dir             string
	NetFile         string
	RouteFiles      string
	GUISettingsFile string
	EndTime         float64
}

type configDoc struct {
	XMLName xml.Name `xml:"configuration"`
	Input   struct {
		NetFile         xmlValue  `xml:"net-file"`
		RouteFiles      xmlValue  `xml:"route-files"`
		GUISettingsFile *xmlValue `xml:"gui-settings-file"`
	} `xml:"input"`
	Time struct {
		End *xmlValue `xml:"end"`
	} `xml:"time"`
}

type xmlValue struct {
	Value string `xml:"value,attr"`
}

// LoadTopLevel parses the top-level configuration file at path.
func LoadTopLevel(path string) (*TopLevel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	var doc configDoc
	if err := xml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, errors.Wrapf(err, "parsing configuration file %q", path)
	}

	if doc.Input.NetFile.Value == "" {
		return nil, errors.Errorf("configuration file %q has no input/net-file", path)
	}
	if doc.Input.RouteFiles.Value == "" {
		return nil, errors.Errorf("configuration file %q has no input/route-files", path)
	}

	dir := filepath.Dir(path)

	end := float64(defaultEndTime)
	if doc.Time.End != nil && doc.Time.End.Value != "" {
		parsed, err := strconv.ParseFloat(doc.Time.End.Value, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing time/end in %q", path)
		}
		end = parsed
	}

	tl := &TopLevel{
		Dir:        dir,
		NetFile:    filepath.Join(dir, doc.Input.NetFile.Value),
		RouteFiles: filepath.Join(dir, doc.Input.RouteFiles.Value),
		EndTime:    end,
	}
	if doc.Input.GUISettingsFile != nil && doc.Input.GUISettingsFile.Value != "" {
		tl.GUISettingsFile = filepath.Join(dir, doc.Input.GUISettingsFile.Value)
	}
	return tl, nil
}

// WritePartitionConfig produces one partition's net/route/config files in
// outDir. parti.net.xml and parti.rou.xml are copied verbatim from
// netSrc/routeSrc — files supplied by the external partitioner tool, see
// spec section 6 — and parti.sumocfg is a new configuration document
// holding only input/net-file and input/route-files (pointing at the
// copies), the top-level gui-settings-file when one is set, and time/end.
// Other elements of the top-level configuration are not carried over. It
// returns the written config file's path.
func WritePartitionConfig(tl *TopLevel, outDir string, index int, netSrc, routeSrc string) (string, error) {
	netName := fmt.Sprintf("part%d.net.xml", index)
	rouName := fmt.Sprintf("part%d.rou.xml", index)
	cfgName := fmt.Sprintf("part%d.sumocfg", index)

	netDst := filepath.Join(outDir, netName)
	rouDst := filepath.Join(outDir, rouName)
	cfgDst := filepath.Join(outDir, cfgName)

	if err := copyFile(netSrc, netDst); err != nil {
		return "", err
	}
	if err := copyFile(routeSrc, rouDst); err != nil {
		return "", err
	}

	var doc configDoc
	doc.Input.NetFile.Value = netName
	doc.Input.RouteFiles.Value = rouName
	if tl.GUISettingsFile != "" {
		doc.Input.GUISettingsFile = &xmlValue{Value: tl.GUISettingsFile}
	}
	doc.Time.End = &xmlValue{Value: strconv.FormatFloat(tl.EndTime, 'f', -1, 64)}

	f, err := os.Create(cfgDst)
	if err != nil {
		return "", errors.WithStack(err)
	}
	defer f.Close()

	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(&doc); err != nil {
		return "", errors.Wrapf(err, "writing %q", cfgDst)
	}

	return cfgDst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.WithStack(err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.WithStack(err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "copying %q to %q", src, dst)
	}
	return nil
}

// ResolveSumoHome reads the simulator installation root from the
// environment, failing fatally (an error, not an os.Exit, since this is a
// library) if it is unset, matching
// original_source/ParallelSim.cpp's behavior.
func ResolveSumoHome() (string, error) {
	root := os.Getenv(sumoHomeEnv)
	if root == "" {
		return "", errors.Errorf("%s is not set; it must point at the simulator installation root", sumoHomeEnv)
	}
	return root, nil
}
