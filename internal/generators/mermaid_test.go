package generators

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calltree/internal/models"
)

func node(name, file, module string, params ...models.Parameter) *models.CallTreeNode {
	return &models.CallTreeNode{
		FunctionInfo: &models.FunctionInfo{
			Name:         name,
			ReturnType:   "void",
			FilePath:     file,
			LineNumber:   1,
			FunctionType: models.FunctionTypeTraditionalC,
			SwModule:     module,
			Parameters:   params,
		},
	}
}

func sampleResult() *models.AnalysisResult {
	root := node("Demo_Init", "demo.c", "DemoModule")
	root.AddChild(node("HW_Init", "hw.c", "HardwareModule"))
	root.AddChild(node("SW_Init", "sw.c", "SoftwareModule"))

	return &models.AnalysisResult{
		RootFunction: "Demo_Init",
		CallTree:     root,
		Statistics: models.AnalysisStatistics{
			TotalFunctions:  3,
			UniqueFunctions: 3,
			MaxDepthReached: 1,
		},
		Timestamp:       time.Now(),
		SourceDirectory: "/test",
		MaxDepthLimit:   3,
	}
}

func TestMermaidHeader(t *testing.T) {
	gen := NewMermaidGenerator()
	diagram := gen.generateMermaidDiagram(sampleResult().CallTree)

	lines := strings.Split(diagram, "\n")
	assert.Equal(t, "sequenceDiagram", lines[0])
}

func TestCollectParticipantsFunctionMode(t *testing.T) {
	gen := NewMermaidGenerator()
	participants := gen.collectParticipants(sampleResult().CallTree)

	assert.Equal(t, []string{"Demo_Init", "HW_Init", "SW_Init"}, participants)
}

func TestCollectParticipantsModuleMode(t *testing.T) {
	gen := NewMermaidGenerator()
	gen.UseModuleNames = true
	participants := gen.collectParticipants(sampleResult().CallTree)

	assert.Equal(t, []string{"DemoModule", "HardwareModule", "SoftwareModule"}, participants)
}

func TestModuleFallbackToFileStem(t *testing.T) {
	root := node("Demo_Init", "demo.c", "DemoModule")
	root.AddChild(node("Unmapped_Init", "unmapped.c", ""))

	gen := NewMermaidGenerator()
	gen.UseModuleNames = true
	participants := gen.collectParticipants(root)

	assert.Equal(t, []string{"DemoModule", "unmapped"}, participants)
}

func TestParticipantDeduplication(t *testing.T) {
	root := node("Main", "main.c", "MainMod")
	root.AddChild(node("Helper", "helper.c", "HelperMod"))
	root.AddChild(node("Helper", "helper.c", "HelperMod"))

	gen := NewMermaidGenerator()
	gen.UseModuleNames = true
	diagram := gen.generateMermaidDiagram(root)

	assert.Equal(t, 1, strings.Count(diagram, "participant HelperMod"))
}

func TestAbbreviateRteName(t *testing.T) {
	assert.Equal(t, "Rte_Read_PVV", abbreviateRteName("Rte_Read_P_Voltage_Value"))
	assert.Equal(t, "Rte_Write_SDS", abbreviateRteName("Rte_Write_SW_Data_State"))
	// Short names stay as they are.
	assert.Equal(t, "Rte_Call", abbreviateRteName("Rte_Call"))
	assert.Equal(t, "Rte_Read", abbreviateRteName("Rte_Read"))
}

func TestRteAbbreviationDisabled(t *testing.T) {
	gen := NewMermaidGenerator()
	gen.AbbreviateRte = false
	assert.Equal(t, "Rte_Read_P_Voltage_Value", gen.participantName("Rte_Read_P_Voltage_Value"))
}

func TestSequenceCallsFunctionMode(t *testing.T) {
	root := node("Demo_Init", "demo.c", "")
	root.AddChild(node("HW_Init", "hw.c", ""))

	gen := NewMermaidGenerator()
	diagram := gen.generateMermaidDiagram(root)

	assert.Contains(t, diagram, "Demo_Init->>HW_Init: call")
}

func TestSequenceCallsModuleMode(t *testing.T) {
	root := node("Demo_Init", "demo.c", "DemoModule")
	root.AddChild(node("HW_Init", "hw.c", "HardwareModule",
		models.Parameter{Name: "timerId", Type: "uint32"}))

	gen := NewMermaidGenerator()
	gen.UseModuleNames = true
	diagram := gen.generateMermaidDiagram(root)

	assert.Contains(t, diagram, "DemoModule->>HardwareModule: HW_Init(timerId)")
}

func TestSequenceCallsRecursive(t *testing.T) {
	root := node("Demo_Init", "demo.c", "DemoModule")
	child := node("HW_Init", "hw.c", "HardwareModule")
	child.IsRecursive = true
	root.AddChild(child)

	gen := NewMermaidGenerator()
	gen.UseModuleNames = true
	diagram := gen.generateMermaidDiagram(root)

	assert.Contains(t, diagram, "DemoModule-->>xHardwareModule: HW_Init [recursive]")
}

func TestSequenceCallsOptAndLoopFragments(t *testing.T) {
	root := node("Main", "main.c", "")
	cond := node("Guarded", "g.c", "")
	cond.IsOptional = true
	cond.Condition = "mode == ACTIVE"
	root.AddChild(cond)
	looped := node("Repeated", "r.c", "")
	looped.IsLoop = true
	looped.LoopCondition = "i < n"
	root.AddChild(looped)

	gen := NewMermaidGenerator()
	diagram := gen.generateMermaidDiagram(root)

	assert.Contains(t, diagram, "opt mode == ACTIVE")
	assert.Contains(t, diagram, "loop i < n")
	assert.Equal(t, 2, strings.Count(diagram, "    end"))
}

func TestReturnArrows(t *testing.T) {
	root := node("Demo_Init", "demo.c", "DemoModule")
	root.AddChild(node("HW_Init", "hw.c", "HardwareModule"))

	gen := NewMermaidGenerator()
	gen.UseModuleNames = true
	gen.IncludeReturns = true
	diagram := gen.generateMermaidDiagram(root)
	assert.Contains(t, diagram, "HardwareModule-->>DemoModule: return")

	gen.IncludeReturns = false
	diagram = gen.generateMermaidDiagram(root)
	assert.NotContains(t, diagram, "return")
}

func TestFunctionTableFunctionMode(t *testing.T) {
	gen := NewMermaidGenerator()
	table := gen.generateFunctionTable(sampleResult().CallTree)

	assert.Contains(t, table, "| Function | File | Line | Parameters |")
	assert.NotContains(t, table, "| Module |")
	assert.Contains(t, table, "| `Demo_Init` | demo.c | 1 | `void` |")
}

func TestFunctionTableModuleMode(t *testing.T) {
	root := node("Demo_Init", "demo.c", "DemoModule")
	root.AddChild(node("Unmapped", "unmapped.c", ""))

	gen := NewMermaidGenerator()
	gen.UseModuleNames = true
	table := gen.generateFunctionTable(root)

	assert.Contains(t, table, "| Function | Module | File | Line | Parameters |")
	assert.Contains(t, table, "| `Demo_Init` | DemoModule |")
	assert.Contains(t, table, "| `Unmapped` | N/A |")
}

func TestFunctionTableSortedAndUnique(t *testing.T) {
	root := node("Z_Func", "z.c", "")
	root.AddChild(node("A_Func", "a.c", ""))
	mid := node("M_Func", "m.c", "")
	mid.AddChild(node("A_Func", "a.c", ""))
	root.AddChild(mid)

	gen := NewMermaidGenerator()
	table := gen.generateFunctionTable(root)

	assert.Equal(t, 1, strings.Count(table, "`A_Func`"))
	aPos := strings.Index(table, "`A_Func`")
	mPos := strings.Index(table, "`M_Func`")
	zPos := strings.Index(table, "`Z_Func`")
	assert.Less(t, aPos, mPos)
	assert.Less(t, mPos, zPos)
}

func TestFormatParameters(t *testing.T) {
	fn := &models.FunctionInfo{Name: "Func", Parameters: []models.Parameter{
		{Name: "value", Type: "uint32"},
		{Name: "ptr", Type: "uint8", IsPointer: true},
	}}

	formatted := formatParameters(fn)
	assert.Contains(t, formatted, "`uint32 value`")
	assert.Contains(t, formatted, "`uint8* ptr`")

	assert.Equal(t, "`void`", formatParameters(&models.FunctionInfo{Name: "Empty"}))
}

func TestFormatParametersForDiagram(t *testing.T) {
	fn := &models.FunctionInfo{Name: "Func", Parameters: []models.Parameter{
		{Name: "value", Type: "uint32"},
		{Name: "status", Type: "uint8", IsPointer: true},
	}}
	assert.Equal(t, "value, status", formatParametersForDiagram(fn))

	unnamed := &models.FunctionInfo{Name: "Func", Parameters: []models.Parameter{
		{Type: "uint32"},
	}}
	assert.Equal(t, "uint32", formatParametersForDiagram(unnamed))

	assert.Equal(t, "", formatParametersForDiagram(&models.FunctionInfo{Name: "Empty"}))
}

func TestMetadataSection(t *testing.T) {
	result := sampleResult()
	result.Statistics.TotalFunctions = 10
	result.Statistics.UniqueFunctions = 8
	result.Statistics.MaxDepthReached = 3

	gen := NewMermaidGenerator()
	metadata := gen.generateMetadata(result)

	assert.Contains(t, metadata, "## Metadata")
	assert.Contains(t, metadata, "- **Root Function**: `Demo_Init`")
	assert.Contains(t, metadata, "- **Total Functions**: 10")
	assert.Contains(t, metadata, "- **Unique Functions**: 8")
	assert.Contains(t, metadata, "- **Max Depth**: 3")
	assert.Contains(t, metadata, "- **Circular Dependencies**: 0")
}

func TestCircularDependenciesSection(t *testing.T) {
	result := sampleResult()
	result.CircularDependencies = []models.CircularDependency{
		{Cycle: []string{"FuncA", "FuncB", "FuncA"}, Depth: 3},
		{Cycle: []string{"X", "Y", "Z", "X"}, Depth: 4},
	}

	gen := NewMermaidGenerator()
	section := gen.generateCircularDepsSection(result)

	assert.Contains(t, section, "## Circular Dependencies")
	assert.Contains(t, section, "Found 2 circular dependencies")
	assert.Contains(t, section, "FuncA → FuncB → FuncA")
	assert.Contains(t, section, "X → Y → Z → X")
	assert.Contains(t, section, "**Depth 3**")
	assert.Contains(t, section, "**Depth 4**")
}

func TestGenerateToString(t *testing.T) {
	gen := NewMermaidGenerator()
	output, err := gen.GenerateToString(sampleResult())
	require.NoError(t, err)

	assert.Contains(t, output, "# Call Tree: Demo_Init")
	assert.Contains(t, output, "## Metadata")
	assert.Contains(t, output, "## Sequence Diagram")
	assert.Contains(t, output, "```mermaid")
	assert.Contains(t, output, "## Function Details")
	assert.Contains(t, output, "## Call Tree (Text)")
}

func TestGenerateNilTree(t *testing.T) {
	result := sampleResult()
	result.CallTree = nil

	gen := NewMermaidGenerator()
	_, err := gen.GenerateToString(result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call tree is nil")
}

func TestGenerateWritesFile(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "sub", "output.md")

	gen := NewMermaidGenerator()
	require.NoError(t, gen.Generate(sampleResult(), outPath))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Call Tree: Demo_Init")
}

func TestOptionalSectionsDisabled(t *testing.T) {
	gen := NewMermaidGenerator()
	gen.IncludeMetadata = false
	gen.IncludeFunctionTable = false
	gen.IncludeTextTree = false

	output, err := gen.GenerateToString(sampleResult())
	require.NoError(t, err)

	assert.NotContains(t, output, "## Metadata")
	assert.NotContains(t, output, "## Function Details")
	assert.NotContains(t, output, "## Call Tree (Text)")
	assert.Contains(t, output, "## Sequence Diagram")
}
