// Package partnet parses per-partition network description files and
// builds the set of border edges shared between partitions.
package partnet

import (
	"encoding/xml"
	"os"

	"github.com/pkg/errors"

	"github.com/parasplit/parasplit/types"
)

const functionInternal = "internal"

const junctionDeadEnd = "dead_end"

// Network is the parsed form of one partition's network description
// file: the edges (minus internal ones) and junctions needed to find
// border edges and determine their direction.
type Network struct {
	XMLName   xml.Name   `xml:"net"`
	Edges     []xmlEdge  `xml:"edge"`
	Junctions []xmlJunc  `xml:"junction"`
	byID      map[types.EdgeID]xmlEdge
	junByID   map[string]xmlJunc
}

type xmlEdge struct {
	ID       types.EdgeID `xml:"id,attr"`
	Function string       `xml:"function,attr"`
	From     string       `xml:"from,attr"`
	Lanes    []xmlLane    `xml:"lane"`
}

type xmlLane struct {
	ID types.LaneID `xml:"id,attr"`
}

type xmlJunc struct {
	ID   string `xml:"id,attr"`
	Type string `xml:"type,attr"`
}

// Load reads and parses a network description file.
func Load(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	var n Network
	if err := xml.NewDecoder(f).Decode(&n); err != nil {
		return nil, errors.Wrapf(err, "parsing network file %q", path)
	}

	n.byID = make(map[types.EdgeID]xmlEdge, len(n.Edges))
	for _, e := range n.Edges {
		n.byID[e.ID] = e
	}
	n.junByID = make(map[string]xmlJunc, len(n.Junctions))
	for _, j := range n.Junctions {
		n.junByID[j.ID] = j
	}

	return &n, nil
}

// NonInternalEdgeIDs returns the identifiers of every edge whose function
// is not "internal".
func (n *Network) NonInternalEdgeIDs() []types.EdgeID {
	ids := make([]types.EdgeID, 0, len(n.Edges))
	for _, e := range n.Edges {
		if e.Function == functionInternal {
			continue
		}
		ids = append(ids, e.ID)
	}
	return ids
}

// Lanes returns the lane identifiers of edge.
func (n *Network) Lanes(edge types.EdgeID) []types.LaneID {
	e, ok := n.byID[edge]
	if !ok {
		return nil
	}
	lanes := make([]types.LaneID, len(e.Lanes))
	for i, l := range e.Lanes {
		lanes[i] = l.ID
	}
	return lanes
}

// OriginIsDeadEnd reports whether edge's origin junction has type
// "dead_end". It returns false, along with an error, if the edge or its
// origin junction cannot be found.
func (n *Network) OriginIsDeadEnd(edge types.EdgeID) (bool, error) {
	e, ok := n.byID[edge]
	if !ok {
		return false, errors.Errorf("edge %q not found in network", edge)
	}
	j, ok := n.junByID[e.From]
	if !ok {
		return false, errors.Errorf("junction %q not found for edge %q", e.From, edge)
	}
	return j.Type == junctionDeadEnd, nil
}
