package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calltree/internal/database"
	"calltree/internal/models"
)

func testDatabase(t *testing.T) *database.Database {
	t.Helper()
	return database.New("/src", nil, t.TempDir())
}

func addFunction(db *database.Database, name, file string, callees ...string) *models.FunctionInfo {
	fn := &models.FunctionInfo{
		Name:         name,
		ReturnType:   "void",
		FilePath:     file,
		LineNumber:   1,
		FunctionType: models.FunctionTypeTraditionalC,
	}
	for _, callee := range callees {
		fn.Calls = append(fn.Calls, &models.FunctionCall{Name: callee})
	}
	db.Add(fn)
	return fn
}

func TestBuildTreeSimpleChain(t *testing.T) {
	db := testDatabase(t)
	addFunction(db, "A", "/src/a.c", "B")
	addFunction(db, "B", "/src/b.c", "C")
	addFunction(db, "C", "/src/c.c")

	builder := NewCallTreeBuilder(db)
	result, err := builder.BuildTree("A", 5, false)
	require.NoError(t, err)
	require.NotNil(t, result.CallTree)

	assert.Equal(t, "A", result.CallTree.FunctionInfo.Name)
	require.Len(t, result.CallTree.Children, 1)
	b := result.CallTree.Children[0]
	assert.Equal(t, "B", b.FunctionInfo.Name)
	assert.Equal(t, 1, b.Depth)
	require.Len(t, b.Children, 1)
	assert.Equal(t, 2, b.Children[0].Depth)

	assert.Equal(t, 3, result.Statistics.TotalFunctions)
	assert.Equal(t, 3, result.Statistics.UniqueFunctions)
	assert.Equal(t, 2, result.Statistics.MaxDepthReached)
	assert.Empty(t, result.Errors)
}

func TestBuildTreeUnknownFunction(t *testing.T) {
	db := testDatabase(t)
	addFunction(db, "A", "/src/a.c")

	builder := NewCallTreeBuilder(db)
	result, err := builder.BuildTree("Missing", 3, false)
	require.NoError(t, err)

	assert.Nil(t, result.CallTree)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Function 'Missing' not found in database", result.Errors[0])
	assert.Equal(t, 0, result.Statistics.TotalFunctions)
}

func TestBuildTreeDepthZero(t *testing.T) {
	db := testDatabase(t)
	addFunction(db, "A", "/src/a.c", "B")
	addFunction(db, "B", "/src/b.c")

	builder := NewCallTreeBuilder(db)
	result, err := builder.BuildTree("A", 0, false)
	require.NoError(t, err)
	require.NotNil(t, result.CallTree)

	assert.Empty(t, result.CallTree.Children)
	assert.True(t, result.CallTree.IsTruncated)
	assert.Equal(t, 1, result.Statistics.TotalFunctions)
	assert.Equal(t, 0, result.Statistics.MaxDepthReached)
}

func TestBuildTreeDepthZeroLeafNotTruncated(t *testing.T) {
	db := testDatabase(t)
	addFunction(db, "Leaf", "/src/leaf.c")

	builder := NewCallTreeBuilder(db)
	result, err := builder.BuildTree("Leaf", 0, false)
	require.NoError(t, err)

	assert.False(t, result.CallTree.IsTruncated)
}

func TestBuildTreeCycle(t *testing.T) {
	db := testDatabase(t)
	addFunction(db, "A", "/src/a.c", "B")
	addFunction(db, "B", "/src/b.c", "A")

	builder := NewCallTreeBuilder(db)
	result, err := builder.BuildTree("A", 10, false)
	require.NoError(t, err)

	// A -> B -> A; the second A is the single recursive node and has no
	// children.
	b := result.CallTree.Children[0]
	require.Len(t, b.Children, 1)
	again := b.Children[0]
	assert.True(t, again.IsRecursive)
	assert.Empty(t, again.Children)

	require.Len(t, result.CircularDependencies, 1)
	cycle := result.CircularDependencies[0]
	assert.Equal(t, []string{"a::A", "b::B", "a::A"}, cycle.Cycle)
	assert.Equal(t, 1, result.Statistics.CircularDependenciesFound)
}

func TestBuildTreeSelfRecursion(t *testing.T) {
	db := testDatabase(t)
	addFunction(db, "Rec", "/src/rec.c", "Rec")

	builder := NewCallTreeBuilder(db)
	result, err := builder.BuildTree("Rec", 5, false)
	require.NoError(t, err)

	require.Len(t, result.CallTree.Children, 1)
	child := result.CallTree.Children[0]
	assert.True(t, child.IsRecursive)
	assert.Empty(t, child.Children)
	assert.Len(t, result.CircularDependencies, 1)
}

func TestBuildTreeSkipsUnresolvedCallees(t *testing.T) {
	db := testDatabase(t)
	addFunction(db, "A", "/src/a.c", "Known", "Unknown_External")
	addFunction(db, "Known", "/src/k.c")

	builder := NewCallTreeBuilder(db)
	result, err := builder.BuildTree("A", 3, false)
	require.NoError(t, err)

	require.Len(t, result.CallTree.Children, 1)
	assert.Equal(t, "Known", result.CallTree.Children[0].FunctionInfo.Name)
	assert.Empty(t, result.Errors)
	// The unresolved edge still counts as an observed call.
	assert.Equal(t, 2, result.Statistics.TotalFunctionCalls)
}

func TestBuildTreeCopiesCallContext(t *testing.T) {
	db := testDatabase(t)
	a := addFunction(db, "A", "/src/a.c")
	a.Calls = []*models.FunctionCall{{
		Name:          "B",
		IsConditional: true,
		Condition:     "mode == ACTIVE",
		IsLoop:        true,
		LoopCondition: "i < n",
	}}
	addFunction(db, "B", "/src/b.c")

	builder := NewCallTreeBuilder(db)
	result, err := builder.BuildTree("A", 3, false)
	require.NoError(t, err)

	child := result.CallTree.Children[0]
	assert.True(t, child.IsOptional)
	assert.Equal(t, "mode == ACTIVE", child.Condition)
	assert.True(t, child.IsLoop)
	assert.Equal(t, "i < n", child.LoopCondition)
}

func TestBuildTreeIdempotent(t *testing.T) {
	db := testDatabase(t)
	addFunction(db, "A", "/src/a.c", "B", "C")
	addFunction(db, "B", "/src/b.c", "A")
	addFunction(db, "C", "/src/c.c")

	builder := NewCallTreeBuilder(db)
	first, err := builder.BuildTree("A", 4, false)
	require.NoError(t, err)
	second, err := builder.BuildTree("A", 4, false)
	require.NoError(t, err)

	assert.Equal(t, first.Statistics, second.Statistics)
	assert.Equal(t, first.CircularDependencies, second.CircularDependencies)
}

func TestBuildTreeStatisticsCounters(t *testing.T) {
	db := testDatabase(t)
	root := addFunction(db, "Root", "/src/root.c", "Rte_Read_Val", "Local_Step")
	root.FunctionType = models.FunctionTypeAutosarFunc
	rte := addFunction(db, "Rte_Read_Val", "/src/rte.c")
	rte.FunctionType = models.FunctionTypeRteCall
	local := addFunction(db, "Local_Step", "/src/root.c")
	local.IsStatic = true

	builder := NewCallTreeBuilder(db)
	result, err := builder.BuildTree("Root", 3, false)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Statistics.TotalFunctions)
	assert.Equal(t, 1, result.Statistics.RteFunctions)
	assert.Equal(t, 1, result.Statistics.StaticFunctions)
	assert.Equal(t, 1, result.Statistics.AutosarFunctions)
}

func TestAllFunctionsInTree(t *testing.T) {
	db := testDatabase(t)
	addFunction(db, "A", "/src/a.c", "B", "C")
	addFunction(db, "B", "/src/b.c", "C")
	addFunction(db, "C", "/src/c.c")

	builder := NewCallTreeBuilder(db)
	result, err := builder.BuildTree("A", 5, false)
	require.NoError(t, err)

	fns := AllFunctionsInTree(result.CallTree)
	// C appears twice in the tree but once here, sorted by qualified name.
	require.Len(t, fns, 3)
	assert.Equal(t, "A", fns[0].Name)
	assert.Equal(t, "B", fns[1].Name)
	assert.Equal(t, "C", fns[2].Name)
}

func TestTreeDepthAndLeaves(t *testing.T) {
	db := testDatabase(t)
	addFunction(db, "A", "/src/a.c", "B")
	addFunction(db, "B", "/src/b.c", "C")
	addFunction(db, "C", "/src/c.c")

	builder := NewCallTreeBuilder(db)
	result, err := builder.BuildTree("A", 5, false)
	require.NoError(t, err)

	assert.Equal(t, 2, TreeDepth(result.CallTree))
	assert.Equal(t, -1, TreeDepth(nil))

	leaves := LeafNodes(result.CallTree)
	require.Len(t, leaves, 1)
	assert.Equal(t, "C", leaves[0].FunctionInfo.Name)
}

func TestFormatTreeText(t *testing.T) {
	db := testDatabase(t)
	addFunction(db, "A", "/src/a.c", "B", "C")
	addFunction(db, "B", "/src/b.c")
	addFunction(db, "C", "/src/c.c")

	builder := NewCallTreeBuilder(db)
	result, err := builder.BuildTree("A", 3, false)
	require.NoError(t, err)

	text := FormatTreeText(result.CallTree, true)
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "A (a.c:1)", lines[0])
	assert.Equal(t, "├── B (b.c:1)", lines[1])
	assert.Equal(t, "└── C (c.c:1)", lines[2])
}

func TestFormatTreeTextRecursiveMarker(t *testing.T) {
	db := testDatabase(t)
	addFunction(db, "Rec", "/src/rec.c", "Rec")

	builder := NewCallTreeBuilder(db)
	result, err := builder.BuildTree("Rec", 3, false)
	require.NoError(t, err)

	text := FormatTreeText(result.CallTree, false)
	assert.Contains(t, text, "[RECURSIVE]")
}
