package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicon-platform/unicon-backend/internal/model"
	"github.com/unicon-platform/unicon-backend/internal/steps"
)

func intArtifact(v int64) *model.Artifact {
	a := model.PrimitiveArtifact(model.KindInt, v)
	return &a
}

func strArtifact(v string) *model.Artifact {
	a := model.PrimitiveArtifact(model.KindString, v)
	return &a
}

// simpleValidTestcase wires two literal INPUTs through a STRING_CONCAT into
// OUTPUT: input(a) -> concat.a, input(b) -> concat.b, concat.value -> output.
func simpleValidTestcase() model.Testcase {
	return model.Testcase{
		ID: "tc-1",
		Nodes: []model.StepDef{
			{ID: "in1", Type: model.StepInput, Outputs: []model.StepSocket{{ID: "a", Data: strArtifact("hello ")}}},
			{ID: "in2", Type: model.StepInput, Outputs: []model.StepSocket{{ID: "b", Data: strArtifact("world")}}},
			{ID: "concat", Type: model.StepStringConcat,
				Inputs:  []model.StepSocket{{ID: "a"}, {ID: "b"}},
				Outputs: []model.StepSocket{{ID: "value"}}},
			{ID: "out", Type: model.StepOutput, Inputs: []model.StepSocket{{ID: "value"}}},
		},
		Edges: []model.Edge{
			{From: model.SocketRef{NodeID: "in1", SocketID: "a"}, To: model.SocketRef{NodeID: "concat", SocketID: "a"}},
			{From: model.SocketRef{NodeID: "in2", SocketID: "b"}, To: model.SocketRef{NodeID: "concat", SocketID: "b"}},
			{From: model.SocketRef{NodeID: "concat", SocketID: "value"}, To: model.SocketRef{NodeID: "out", SocketID: "value"}},
		},
	}
}

func TestValidate_Passes(t *testing.T) {
	g, err := Build(simpleValidTestcase(), steps.NewRegistry())
	require.NoError(t, err)

	result, err := g.Validate()
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
}

func TestValidate_RejectsZeroOutputNodes(t *testing.T) {
	tc := simpleValidTestcase()
	tc.Nodes = tc.Nodes[:len(tc.Nodes)-1] // drop the OUTPUT node
	tc.Edges = tc.Edges[:len(tc.Edges)-1]

	g, err := Build(tc, steps.NewRegistry())
	require.NoError(t, err)

	_, err = g.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutputCount)
}

func TestValidate_RejectsMultipleOutputNodes(t *testing.T) {
	tc := simpleValidTestcase()
	tc.Nodes = append(tc.Nodes, model.StepDef{ID: "out2", Type: model.StepOutput, Inputs: []model.StepSocket{{ID: "value"}}})

	g, err := Build(tc, steps.NewRegistry())
	require.NoError(t, err)

	_, err = g.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutputCount)
}

func TestValidate_RejectsUnknownSocket(t *testing.T) {
	tc := simpleValidTestcase()
	tc.Edges[0].To.SocketID = "nonexistent"

	g, err := Build(tc, steps.NewRegistry())
	require.NoError(t, err)

	_, err = g.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownSocket)
}

func TestValidate_RejectsUnboundInput(t *testing.T) {
	tc := simpleValidTestcase()
	// Remove the edge feeding concat.b and give it no literal default.
	tc.Nodes[1].Outputs[0].Data = nil
	tc.Edges = tc.Edges[:1]
	tc.Edges = append(tc.Edges, model.Edge{From: model.SocketRef{NodeID: "concat", SocketID: "value"}, To: model.SocketRef{NodeID: "out", SocketID: "value"}})

	g, err := Build(tc, steps.NewRegistry())
	require.NoError(t, err)

	_, err = g.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnboundSocket)
}

func TestValidate_RejectsCycle(t *testing.T) {
	tc := model.Testcase{
		ID: "tc-cycle",
		Nodes: []model.StepDef{
			{ID: "a", Type: model.StepArithmetic, Inputs: []model.StepSocket{{ID: "a"}, {ID: "b"}}, Outputs: []model.StepSocket{{ID: "value"}}, Params: map[string]any{"op": "add"}},
			{ID: "b", Type: model.StepArithmetic, Inputs: []model.StepSocket{{ID: "a"}, {ID: "b"}}, Outputs: []model.StepSocket{{ID: "value"}}, Params: map[string]any{"op": "add"}},
			{ID: "out", Type: model.StepOutput, Inputs: []model.StepSocket{{ID: "value"}}},
		},
		Edges: []model.Edge{
			{From: model.SocketRef{NodeID: "a", SocketID: "value"}, To: model.SocketRef{NodeID: "b", SocketID: "a"}},
			{From: model.SocketRef{NodeID: "b", SocketID: "value"}, To: model.SocketRef{NodeID: "a", SocketID: "b"}},
			{From: model.SocketRef{NodeID: "a", SocketID: "value"}, To: model.SocketRef{NodeID: "out", SocketID: "value"}},
		},
	}
	tc.Nodes[0].Inputs[0].Data = intArtifact(1)
	tc.Nodes[1].Inputs[1].Data = intArtifact(1)

	g, err := Build(tc, steps.NewRegistry())
	require.NoError(t, err)

	_, err = g.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestValidate_WarnsOnDanglingProducer(t *testing.T) {
	tc := simpleValidTestcase()
	// Add an unconsumed output socket on in1.
	tc.Nodes[0].Outputs = append(tc.Nodes[0].Outputs, model.StepSocket{ID: "unused", Data: strArtifact("x")})

	g, err := Build(tc, steps.NewRegistry())
	require.NoError(t, err)

	result, err := g.Validate()
	require.NoError(t, err)
	assert.NotEmpty(t, result.Warnings)
}

func TestLower_IsDeterministic(t *testing.T) {
	tc := simpleValidTestcase()

	g1, err := Build(tc, steps.NewRegistry())
	require.NoError(t, err)
	first, err := g1.Lower()
	require.NoError(t, err)

	g2, err := Build(tc, steps.NewRegistry())
	require.NoError(t, err)
	second, err := g2.Lower()
	require.NoError(t, err)

	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.Files, second.Files)
}

func TestLower_RejectsInvalidGraph(t *testing.T) {
	tc := simpleValidTestcase()
	tc.Nodes = tc.Nodes[:len(tc.Nodes)-1]
	tc.Edges = tc.Edges[:len(tc.Edges)-1]

	g, err := Build(tc, steps.NewRegistry())
	require.NoError(t, err)

	_, err = g.Lower()
	require.Error(t, err)
}

func TestLower_DetectsFileCollision(t *testing.T) {
	tc := model.Testcase{
		ID: "tc-collide",
		Nodes: []model.StepDef{
			{ID: "in1", Type: model.StepInput, Outputs: []model.StepSocket{{ID: "f", Data: &model.Artifact{File: &model.File{FileName: "same.txt", Content: "one"}}}}},
			{ID: "in2", Type: model.StepInput, Outputs: []model.StepSocket{{ID: "f", Data: &model.Artifact{File: &model.File{FileName: "same.txt", Content: "two"}}}}},
			{ID: "concat", Type: model.StepStringConcat,
				Inputs:  []model.StepSocket{{ID: "a"}, {ID: "b"}},
				Outputs: []model.StepSocket{{ID: "value"}}},
			{ID: "out", Type: model.StepOutput, Inputs: []model.StepSocket{{ID: "value"}}},
		},
		Edges: []model.Edge{
			{From: model.SocketRef{NodeID: "in1", SocketID: "f"}, To: model.SocketRef{NodeID: "concat", SocketID: "a"}},
			{From: model.SocketRef{NodeID: "in2", SocketID: "f"}, To: model.SocketRef{NodeID: "concat", SocketID: "b"}},
			{From: model.SocketRef{NodeID: "concat", SocketID: "value"}, To: model.SocketRef{NodeID: "out", SocketID: "value"}},
		},
	}

	g, err := Build(tc, steps.NewRegistry())
	require.NoError(t, err)

	_, err = g.Lower()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileCollision)
}
