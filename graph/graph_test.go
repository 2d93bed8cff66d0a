package graph

import (
	"testing"

	"github.com/mbolis/quick-funnel/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileAssignsOrderAndFreshIds(t *testing.T) {
	nodes := []Node{
		{ID: "tmp-1", Type: model.BlockText, Content: model.Content{Text: "Olá"}, X: 10, Y: 20},
		{ID: "tmp-2", Type: model.BlockQuestion, Content: model.Content{Text: "Nome?", QuestionType: model.QuestionText}},
		{ID: "tmp-3", Type: model.BlockEnd},
	}
	edges := []Edge{
		{Source: "tmp-1", Target: "tmp-2"},
		{Source: "tmp-2", Target: "tmp-3"},
	}

	blocks, err := Compile("f1", nodes, edges)
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	for i, b := range blocks {
		assert.Equal(t, i, b.OrderIndex)
		assert.Equal(t, "f1", b.FunnelID)
		assert.NotContains(t, []string{"tmp-1", "tmp-2", "tmp-3"}, b.ID, "editor ids are replaced")
	}
	assert.Equal(t, blocks[1].ID, blocks[0].NextBlockID, "edges follow the remapping")
	assert.Equal(t, blocks[2].ID, blocks[1].NextBlockID)
	assert.Empty(t, blocks[2].NextBlockID)
	assert.Equal(t, 10.0, blocks[0].PositionX)
	assert.Equal(t, 20.0, blocks[0].PositionY)
}

func TestCompileRejectsCycle(t *testing.T) {
	nodes := []Node{
		{ID: "a", Type: model.BlockText},
		{ID: "b", Type: model.BlockText},
	}
	edges := []Edge{
		{Source: "a", Target: "b"},
		{Source: "b", Target: "a"},
	}

	_, err := Compile("f1", nodes, edges)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestCompileRejectsSelfLoop(t *testing.T) {
	nodes := []Node{{ID: "a", Type: model.BlockText}}
	edges := []Edge{{Source: "a", Target: "a"}}

	_, err := Compile("f1", nodes, edges)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestCompileRejectsMultipleEnds(t *testing.T) {
	nodes := []Node{
		{ID: "a", Type: model.BlockEnd},
		{ID: "b", Type: model.BlockEnd},
	}

	_, err := Compile("f1", nodes, nil)
	assert.ErrorIs(t, err, ErrMultipleEnds)
}

func TestCompileRejectsMultipleOutgoing(t *testing.T) {
	nodes := []Node{
		{ID: "a", Type: model.BlockText},
		{ID: "b", Type: model.BlockText},
		{ID: "c", Type: model.BlockText},
	}
	edges := []Edge{
		{Source: "a", Target: "b"},
		{Source: "a", Target: "c"},
	}

	_, err := Compile("f1", nodes, edges)
	assert.ErrorIs(t, err, ErrMultipleNext)
}

func TestCompileRejectsBadInput(t *testing.T) {
	_, err := Compile("f1", []Node{{ID: "a", Type: "poll"}}, nil)
	assert.ErrorContains(t, err, "unknown type")

	_, err = Compile("f1", []Node{{Type: model.BlockText}}, nil)
	assert.ErrorContains(t, err, "no id")

	_, err = Compile("f1",
		[]Node{{ID: "a", Type: model.BlockText}, {ID: "a", Type: model.BlockText}}, nil)
	assert.ErrorContains(t, err, "duplicate")

	_, err = Compile("f1",
		[]Node{{ID: "a", Type: model.BlockText}},
		[]Edge{{Source: "a", Target: "ghost"}})
	assert.ErrorContains(t, err, "unknown node")

	_, err = Compile("f1",
		[]Node{{ID: "a", Type: model.BlockText}},
		[]Edge{{Source: "ghost", Target: "a"}})
	assert.ErrorContains(t, err, "unknown node")
}

func TestExplodeRoundTrip(t *testing.T) {
	nodes := []Node{
		{ID: "tmp-1", Type: model.BlockText, Content: model.Content{Text: "Olá"}, X: 1, Y: 2},
		{ID: "tmp-2", Type: model.BlockDelay, Content: model.Content{DurationMs: 500}},
		{ID: "tmp-3", Type: model.BlockEnd},
	}
	edges := []Edge{
		{Source: "tmp-1", Target: "tmp-2"},
		{Source: "tmp-2", Target: "tmp-3"},
	}

	blocks, err := Compile("f1", nodes, edges)
	require.NoError(t, err)

	outNodes, outEdges := Explode(blocks)
	require.Len(t, outNodes, 3)
	require.Len(t, outEdges, 2)

	for i := range nodes {
		assert.Equal(t, nodes[i].Type, outNodes[i].Type)
		assert.Equal(t, nodes[i].Content, outNodes[i].Content)
		assert.Equal(t, nodes[i].X, outNodes[i].X)
		assert.Equal(t, nodes[i].Y, outNodes[i].Y)
	}
	assert.Equal(t, outNodes[0].ID, outEdges[0].Source)
	assert.Equal(t, outNodes[1].ID, outEdges[0].Target)
	assert.Equal(t, outNodes[1].ID, outEdges[1].Source)
	assert.Equal(t, outNodes[2].ID, outEdges[1].Target)
}
