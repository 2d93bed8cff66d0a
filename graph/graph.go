// Package graph is the editor-facing authoring model: a set of canvas
// nodes and connections that compiles down to the flat block sequence the
// interpreter consumes.
package graph

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mbolis/quick-funnel/model"
)

type Node struct {
	ID      string          `json:"id"`
	Type    model.BlockType `json:"type"`
	Content model.Content   `json:"content"`
	X       float64         `json:"position_x"`
	Y       float64         `json:"position_y"`
}

type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

var (
	ErrCycle        = errors.New("graph: next chain contains a cycle")
	ErrMultipleEnds = errors.New("graph: more than one end block")
	ErrMultipleNext = errors.New("graph: node has more than one outgoing connection")
)

// Compile turns the editor graph into the ordered block sequence. Slice
// order becomes order_index; editor node ids (possibly temporary) are
// remapped to freshly generated ids, mirrored into the next pointers. The
// result is validated so the interpreter can trust it: known types only,
// resolvable edges, a single end block at most, and an acyclic next chain.
func Compile(funnelID string, nodes []Node, edges []Edge) ([]model.Block, error) {
	ids := map[string]int{}
	ends := 0
	for i, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("graph: node %d has no id", i)
		}
		if _, dup := ids[n.ID]; dup {
			return nil, fmt.Errorf("graph: duplicate node id %q", n.ID)
		}
		if !n.Type.Valid() {
			return nil, fmt.Errorf("graph: node %q has unknown type %q", n.ID, n.Type)
		}
		if n.Type == model.BlockEnd {
			ends++
		}
		ids[n.ID] = i
	}
	if ends > 1 {
		return nil, ErrMultipleEnds
	}

	next := map[string]string{}
	for _, e := range edges {
		if _, ok := ids[e.Source]; !ok {
			return nil, fmt.Errorf("graph: connection from unknown node %q", e.Source)
		}
		if _, ok := ids[e.Target]; !ok {
			return nil, fmt.Errorf("graph: connection to unknown node %q", e.Target)
		}
		if _, dup := next[e.Source]; dup {
			return nil, fmt.Errorf("%w: %q", ErrMultipleNext, e.Source)
		}
		next[e.Source] = e.Target
	}

	// remap editor ids to persistent ones
	fresh := make(map[string]string, len(nodes))
	for _, n := range nodes {
		fresh[n.ID] = uuid.NewString()
	}

	blocks := make([]model.Block, len(nodes))
	for i, n := range nodes {
		blocks[i] = model.Block{
			ID:         fresh[n.ID],
			FunnelID:   funnelID,
			Type:       n.Type,
			Content:    n.Content,
			PositionX:  n.X,
			PositionY:  n.Y,
			OrderIndex: i,
		}
		if target, ok := next[n.ID]; ok {
			blocks[i].NextBlockID = fresh[target]
		}
	}

	if err := checkAcyclic(blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// checkAcyclic follows the effective next chain (explicit pointer or
// order_index fallthrough) from every block; a walk that cannot terminate
// within len(blocks) steps loops.
func checkAcyclic(blocks []model.Block) error {
	for start := range blocks {
		i := start
		for steps := 0; ; steps++ {
			i = model.NextIndex(blocks, i)
			if i >= len(blocks) {
				break
			}
			if steps >= len(blocks) {
				return ErrCycle
			}
		}
	}
	return nil
}

// Explode is the inverse of Compile, reshaping stored blocks into the
// node/edge form the editor loads.
func Explode(blocks []model.Block) ([]Node, []Edge) {
	nodes := make([]Node, 0, len(blocks))
	edges := []Edge{}
	for _, b := range blocks {
		nodes = append(nodes, Node{
			ID:      b.ID,
			Type:    b.Type,
			Content: b.Content,
			X:       b.PositionX,
			Y:       b.PositionY,
		})
		if b.NextBlockID != "" {
			edges = append(edges, Edge{Source: b.ID, Target: b.NextBlockID})
		}
	}
	return nodes, edges
}
