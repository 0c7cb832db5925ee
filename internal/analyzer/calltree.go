// Package analyzer builds depth-bounded, cycle-safe call trees from an
// indexed function database.
package analyzer

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"calltree/internal/database"
	"calltree/internal/models"
)

// CallTreeBuilder expands call trees from a database. A builder is reusable:
// every BuildTree call resets all traversal state, so repeated builds of the
// same root yield identical results. Not safe for concurrent use.
type CallTreeBuilder struct {
	db *database.Database

	visited   map[string]struct{}
	callStack []string
	circulars []models.CircularDependency

	totalNodes      int
	maxDepthReached int
	totalCalls      int
	staticCount     int
	rteCount        int
	autosarCount    int
}

// NewCallTreeBuilder creates a builder over an already populated database.
func NewCallTreeBuilder(db *database.Database) *CallTreeBuilder {
	return &CallTreeBuilder{db: db}
}

func (b *CallTreeBuilder) reset() {
	b.visited = make(map[string]struct{})
	b.callStack = nil
	b.circulars = nil
	b.totalNodes = 0
	b.maxDepthReached = 0
	b.totalCalls = 0
	b.staticCount = 0
	b.rteCount = 0
	b.autosarCount = 0
}

// BuildTree expands the call tree rooted at startFunction down to maxDepth
// levels below the root. An unknown start function yields a result with a
// nil tree and the failure recorded in Errors; it is not an error return.
func (b *CallTreeBuilder) BuildTree(startFunction string, maxDepth int, verbose bool) (*models.AnalysisResult, error) {
	b.reset()

	result := &models.AnalysisResult{
		RootFunction:    startFunction,
		Timestamp:       time.Now(),
		SourceDirectory: b.db.SourceDir,
		MaxDepthLimit:   maxDepth,
	}

	candidates := b.db.Lookup(startFunction, "")
	root := b.db.ResolveBest(candidates, "")
	if root == nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Function '%s' not found in database", startFunction))
		return result, nil
	}

	if verbose {
		log.Printf("Building call tree for %s (max depth %d)", root.QualifiedName(), maxDepth)
	}

	result.CallTree = b.buildNode(root, nil, 0, maxDepth)
	result.CircularDependencies = b.circulars

	result.Statistics = models.AnalysisStatistics{
		TotalFunctions:            b.totalNodes,
		UniqueFunctions:           len(b.visited),
		MaxDepthReached:           b.maxDepthReached,
		TotalFunctionCalls:        b.totalCalls,
		StaticFunctions:           b.staticCount,
		RteFunctions:              b.rteCount,
		AutosarFunctions:          b.autosarCount,
		CircularDependenciesFound: len(b.circulars),
	}

	if verbose {
		log.Printf("Analysis complete: %d nodes, %d unique functions, %d cycles",
			b.totalNodes, len(b.visited), len(b.circulars))
	}
	return result, nil
}

// buildNode creates the node for fn and, unless the depth limit or a cycle
// stops it, recurses into its resolvable callees. call is nil for the root.
func (b *CallTreeBuilder) buildNode(fn *models.FunctionInfo, call *models.FunctionCall, depth, maxDepth int) *models.CallTreeNode {
	node := &models.CallTreeNode{
		FunctionInfo: fn,
		Depth:        depth,
	}
	if call != nil {
		node.IsOptional = call.IsConditional
		node.Condition = call.Condition
		node.IsLoop = call.IsLoop
		node.LoopCondition = call.LoopCondition
	}

	b.totalNodes++
	if depth > b.maxDepthReached {
		b.maxDepthReached = depth
	}
	qualified := fn.QualifiedName()
	b.visited[qualified] = struct{}{}
	if fn.IsStatic {
		b.staticCount++
	}
	if fn.IsRte() {
		b.rteCount++
	}
	if fn.IsAutosar() {
		b.autosarCount++
	}

	// Cycle: this function is already on the active call path. Record the
	// closed loop and stop expanding here.
	for i, entry := range b.callStack {
		if entry == qualified {
			cycle := make([]string, 0, len(b.callStack)-i+1)
			cycle = append(cycle, b.callStack[i:]...)
			cycle = append(cycle, qualified)
			b.circulars = append(b.circulars, models.CircularDependency{
				Cycle: cycle,
				Depth: depth,
			})
			node.IsRecursive = true
			return node
		}
	}

	if depth == maxDepth {
		node.IsTruncated = len(fn.Calls) > 0
		return node
	}

	b.callStack = append(b.callStack, qualified)
	for _, c := range fn.Calls {
		b.totalCalls++
		callee := b.db.ResolveBest(b.db.Lookup(c.Name, fn.FilePath), fn.FilePath)
		if callee == nil {
			continue
		}
		child := b.buildNode(callee, c, depth+1, maxDepth)
		child.Parent = node
		node.Children = append(node.Children, child)
	}
	b.callStack = b.callStack[:len(b.callStack)-1]
	return node
}

// AllFunctionsInTree returns the distinct functions appearing in the tree,
// sorted by qualified name.
func AllFunctionsInTree(root *models.CallTreeNode) []*models.FunctionInfo {
	seen := make(map[string]*models.FunctionInfo)
	var walk func(n *models.CallTreeNode)
	walk = func(n *models.CallTreeNode) {
		if n == nil {
			return
		}
		seen[n.FunctionInfo.QualifiedName()] = n.FunctionInfo
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	fns := make([]*models.FunctionInfo, 0, len(names))
	for _, name := range names {
		fns = append(fns, seen[name])
	}
	return fns
}

// TreeDepth returns the maximum depth value found in the tree, or -1 for a
// nil tree.
func TreeDepth(root *models.CallTreeNode) int {
	if root == nil {
		return -1
	}
	max := root.Depth
	for _, c := range root.Children {
		if d := TreeDepth(c); d > max {
			max = d
		}
	}
	return max
}

// LeafNodes returns every node without children, in traversal order.
func LeafNodes(root *models.CallTreeNode) []*models.CallTreeNode {
	if root == nil {
		return nil
	}
	if len(root.Children) == 0 {
		return []*models.CallTreeNode{root}
	}
	var leaves []*models.CallTreeNode
	for _, c := range root.Children {
		leaves = append(leaves, LeafNodes(c)...)
	}
	return leaves
}

// FormatTreeText renders the tree with box-drawing connectors, one node per
// line. showFile appends the defining file and line to each node.
func FormatTreeText(root *models.CallTreeNode, showFile bool) string {
	if root == nil {
		return ""
	}
	var sb strings.Builder
	writeNodeText(&sb, root, "", true, true, showFile)
	return sb.String()
}

func writeNodeText(sb *strings.Builder, n *models.CallTreeNode, prefix string, isLast, isRoot bool, showFile bool) {
	label := n.FunctionInfo.Name
	if showFile {
		label = fmt.Sprintf("%s (%s:%d)", label, filepath.Base(n.FunctionInfo.FilePath), n.FunctionInfo.LineNumber)
	}
	if n.IsRecursive {
		label += " [RECURSIVE]"
	}
	if n.IsTruncated {
		label += " [...]"
	}

	if isRoot {
		sb.WriteString(label + "\n")
	} else {
		connector := "├── "
		if isLast {
			connector = "└── "
		}
		sb.WriteString(prefix + connector + label + "\n")
	}

	childPrefix := prefix
	if !isRoot {
		if isLast {
			childPrefix += "    "
		} else {
			childPrefix += "│   "
		}
	}
	for i, c := range n.Children {
		writeNodeText(sb, c, childPrefix, i == len(n.Children)-1, false, showFile)
	}
}
