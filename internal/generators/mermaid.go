// Package generators renders analysis results into Mermaid markdown and
// XMI sequence-diagram documents.
package generators

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"calltree/internal/analyzer"
	"calltree/internal/models"
)

// MermaidGenerator renders an analysis result as a markdown report with an
// embedded Mermaid sequence diagram. The zero value is not useful; use
// NewMermaidGenerator.
type MermaidGenerator struct {
	// AbbreviateRte shortens long Rte_ function names in diagrams.
	AbbreviateRte bool
	// UseModuleNames draws one lifeline per SW module (falling back to the
	// file stem) instead of one per function.
	UseModuleNames bool
	// IncludeReturns adds a dashed return arrow after each call subtree.
	IncludeReturns bool

	IncludeMetadata      bool
	IncludeFunctionTable bool
	IncludeTextTree      bool
}

// NewMermaidGenerator returns a generator with report sections enabled and
// RTE abbreviation on.
func NewMermaidGenerator() *MermaidGenerator {
	return &MermaidGenerator{
		AbbreviateRte:        true,
		IncludeMetadata:      true,
		IncludeFunctionTable: true,
		IncludeTextTree:      true,
	}
}

// Generate writes the full markdown report to outputPath, creating parent
// directories as needed.
func (g *MermaidGenerator) Generate(result *models.AnalysisResult, outputPath string) error {
	content, err := g.GenerateToString(result)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}
	if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %v", err)
	}
	return nil
}

// GenerateToString renders the full markdown report. A result without a
// call tree cannot be rendered.
func (g *MermaidGenerator) GenerateToString(result *models.AnalysisResult) (string, error) {
	if result.CallTree == nil {
		return "", fmt.Errorf("cannot generate diagram: call tree is nil")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Call Tree: %s\n\n", result.RootFunction)

	if g.IncludeMetadata {
		sb.WriteString(g.generateMetadata(result))
		sb.WriteString("\n")
	}

	sb.WriteString("## Sequence Diagram\n\n```mermaid\n")
	sb.WriteString(g.generateMermaidDiagram(result.CallTree))
	sb.WriteString("```\n\n")

	if g.IncludeFunctionTable {
		sb.WriteString("## Function Details\n\n")
		sb.WriteString(g.generateFunctionTable(result.CallTree))
		sb.WriteString("\n")
	}

	if g.IncludeTextTree {
		sb.WriteString("## Call Tree (Text)\n\n```\n")
		sb.WriteString(analyzer.FormatTreeText(result.CallTree, true))
		sb.WriteString("```\n\n")
	}

	if len(result.CircularDependencies) > 0 {
		sb.WriteString(g.generateCircularDepsSection(result))
	}

	return sb.String(), nil
}

func (g *MermaidGenerator) generateMermaidDiagram(root *models.CallTreeNode) string {
	var lines []string
	lines = append(lines, "sequenceDiagram")
	for _, p := range g.collectParticipants(root) {
		lines = append(lines, "    participant "+p)
	}
	g.generateSequenceCalls(root, &lines)
	return strings.Join(lines, "\n") + "\n"
}

// collectParticipants returns lifeline names in order of first encounter.
func (g *MermaidGenerator) collectParticipants(root *models.CallTreeNode) []string {
	var participants []string
	seen := make(map[string]struct{})

	var walk func(n *models.CallTreeNode)
	walk = func(n *models.CallTreeNode) {
		name := g.participantFor(n.FunctionInfo)
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			participants = append(participants, name)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return participants
}

func (g *MermaidGenerator) participantFor(fn *models.FunctionInfo) string {
	if g.UseModuleNames {
		if fn.SwModule != "" {
			return fn.SwModule
		}
		return models.FileStem(fn.FilePath)
	}
	return g.participantName(fn.Name)
}

// participantName applies RTE abbreviation when enabled.
func (g *MermaidGenerator) participantName(name string) string {
	if g.AbbreviateRte && strings.HasPrefix(name, "Rte_") {
		return abbreviateRteName(name)
	}
	return name
}

// abbreviateRteName shortens Rte_<Op>_<Long>_<Port>_<Name> to
// Rte_<Op>_<initials>. Names with fewer than four segments stay unchanged.
func abbreviateRteName(name string) string {
	parts := strings.Split(name, "_")
	if len(parts) < 4 {
		return name
	}
	var initials strings.Builder
	for _, part := range parts[2:] {
		if part != "" {
			initials.WriteByte(part[0])
		}
	}
	return parts[0] + "_" + parts[1] + "_" + initials.String()
}

func (g *MermaidGenerator) generateSequenceCalls(node *models.CallTreeNode, lines *[]string) {
	caller := g.participantFor(node.FunctionInfo)

	for _, child := range node.Children {
		callee := g.participantFor(child.FunctionInfo)

		label := "call"
		if g.UseModuleNames {
			label = g.participantName(child.FunctionInfo.Name)
			if params := formatParametersForDiagram(child.FunctionInfo); params != "" {
				label += "(" + params + ")"
			}
		}

		wrapped := false
		switch {
		case child.IsLoop:
			cond := child.LoopCondition
			if cond == "" {
				cond = "loop"
			}
			*lines = append(*lines, "    loop "+cond)
			wrapped = true
		case child.IsOptional:
			cond := child.Condition
			if cond == "" {
				cond = "condition"
			}
			*lines = append(*lines, "    opt "+cond)
			wrapped = true
		}

		if child.IsRecursive {
			*lines = append(*lines, fmt.Sprintf("    %s-->>x%s: %s [recursive]", caller, callee, label))
		} else {
			*lines = append(*lines, fmt.Sprintf("    %s->>%s: %s", caller, callee, label))
			g.generateSequenceCalls(child, lines)
			if g.IncludeReturns {
				*lines = append(*lines, fmt.Sprintf("    %s-->>%s: return", callee, caller))
			}
		}

		if wrapped {
			*lines = append(*lines, "    end")
		}
	}
}

// generateFunctionTable renders the unique functions of the tree as a
// markdown table sorted by name.
func (g *MermaidGenerator) generateFunctionTable(root *models.CallTreeNode) string {
	byName := make(map[string]*models.FunctionInfo)
	var walk func(n *models.CallTreeNode)
	walk = func(n *models.CallTreeNode) {
		if _, ok := byName[n.FunctionInfo.Name]; !ok {
			byName[n.FunctionInfo.Name] = n.FunctionInfo
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	if g.UseModuleNames {
		sb.WriteString("| Function | Module | File | Line | Parameters |\n")
		sb.WriteString("|----------|--------|------|------|------------|\n")
	} else {
		sb.WriteString("| Function | File | Line | Parameters |\n")
		sb.WriteString("|----------|------|------|------------|\n")
	}
	for _, name := range names {
		fn := byName[name]
		if g.UseModuleNames {
			module := fn.SwModule
			if module == "" {
				module = "N/A"
			}
			fmt.Fprintf(&sb, "| `%s` | %s | %s | %d | %s |\n",
				fn.Name, module, filepath.Base(fn.FilePath), fn.LineNumber, formatParameters(fn))
		} else {
			fmt.Fprintf(&sb, "| `%s` | %s | %d | %s |\n",
				fn.Name, filepath.Base(fn.FilePath), fn.LineNumber, formatParameters(fn))
		}
	}
	return sb.String()
}

// formatParameters renders the table signature, one backticked "type name"
// per parameter.
func formatParameters(fn *models.FunctionInfo) string {
	if len(fn.Parameters) == 0 {
		return "`void`"
	}
	parts := make([]string, 0, len(fn.Parameters))
	for _, p := range fn.Parameters {
		typ := p.Type
		if p.IsPointer && !strings.HasSuffix(typ, "*") {
			typ += "*"
		}
		if p.Name != "" {
			parts = append(parts, fmt.Sprintf("`%s %s`", typ, p.Name))
		} else {
			parts = append(parts, fmt.Sprintf("`%s`", typ))
		}
	}
	return strings.Join(parts, ", ")
}

// formatParametersForDiagram renders arrow labels: parameter names only,
// falling back to the type for unnamed parameters.
func formatParametersForDiagram(fn *models.FunctionInfo) string {
	parts := make([]string, 0, len(fn.Parameters))
	for _, p := range fn.Parameters {
		if p.Name != "" {
			parts = append(parts, p.Name)
			continue
		}
		typ := p.Type
		if p.IsPointer && !strings.HasSuffix(typ, "*") {
			typ += "*"
		}
		parts = append(parts, typ)
	}
	return strings.Join(parts, ", ")
}

func (g *MermaidGenerator) generateMetadata(result *models.AnalysisResult) string {
	var sb strings.Builder
	sb.WriteString("## Metadata\n\n")
	fmt.Fprintf(&sb, "- **Root Function**: `%s`\n", result.RootFunction)
	fmt.Fprintf(&sb, "- **Source Directory**: %s\n", result.SourceDirectory)
	fmt.Fprintf(&sb, "- **Generated**: %s\n", result.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "- **Max Depth Limit**: %d\n", result.MaxDepthLimit)
	fmt.Fprintf(&sb, "- **Total Functions**: %d\n", result.Statistics.TotalFunctions)
	fmt.Fprintf(&sb, "- **Unique Functions**: %d\n", result.Statistics.UniqueFunctions)
	fmt.Fprintf(&sb, "- **Max Depth**: %d\n", result.Statistics.MaxDepthReached)
	fmt.Fprintf(&sb, "- **Total Function Calls**: %d\n", result.Statistics.TotalFunctionCalls)
	fmt.Fprintf(&sb, "- **Static Functions**: %d\n", result.Statistics.StaticFunctions)
	fmt.Fprintf(&sb, "- **RTE Functions**: %d\n", result.Statistics.RteFunctions)
	fmt.Fprintf(&sb, "- **AUTOSAR Functions**: %d\n", result.Statistics.AutosarFunctions)
	fmt.Fprintf(&sb, "- **Circular Dependencies**: %d\n", result.Statistics.CircularDependenciesFound)
	return sb.String()
}

func (g *MermaidGenerator) generateCircularDepsSection(result *models.AnalysisResult) string {
	var sb strings.Builder
	sb.WriteString("## Circular Dependencies\n\n")
	fmt.Fprintf(&sb, "Found %d circular dependencies:\n\n", len(result.CircularDependencies))
	for _, dep := range result.CircularDependencies {
		fmt.Fprintf(&sb, "- **Depth %d**: %s\n", dep.Depth, strings.Join(dep.Cycle, " → "))
	}
	return sb.String()
}
