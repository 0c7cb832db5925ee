package models

import (
	"path/filepath"
	"strings"
	"time"
)

// FunctionType classifies how a function declaration was recognized.
type FunctionType string

const (
	FunctionTypeAutosarFunc        FunctionType = "autosar_func"
	FunctionTypeAutosarFuncP2Var   FunctionType = "autosar_func_p2var"
	FunctionTypeAutosarFuncP2Const FunctionType = "autosar_func_p2const"
	FunctionTypeTraditionalC       FunctionType = "traditional_c"
	FunctionTypeRteCall            FunctionType = "rte_call"
	FunctionTypeUnknown            FunctionType = "unknown"
)

// Parameter represents a single function parameter.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	IsPointer   bool   `json:"is_pointer"`
	IsConst     bool   `json:"is_const"`
	MemoryClass string `json:"memory_class,omitempty"`
}

// FunctionCall represents a call site found in a function body.
// A caller's call list is keyed by callee name; repeated sightings merge
// through MergeSighting.
type FunctionCall struct {
	Name          string `json:"name"`
	IsConditional bool   `json:"is_conditional"`
	Condition     string `json:"condition,omitempty"`
	IsLoop        bool   `json:"is_loop"`
	LoopCondition string `json:"loop_condition,omitempty"`
	LineNumber    int    `json:"line_number"`
}

// MergeSighting folds another sighting of the same callee into this call.
// Flags are ORed and the first recorded condition text wins: a callee seen
// conditionally once stays conditional no matter how many unconditional
// sightings follow.
func (fc *FunctionCall) MergeSighting(isConditional bool, condition string, isLoop bool, loopCondition string) {
	if isConditional {
		fc.IsConditional = true
		if condition != "" && fc.Condition == "" {
			fc.Condition = condition
		}
	}
	if isLoop {
		fc.IsLoop = true
		if loopCondition != "" && fc.LoopCondition == "" {
			fc.LoopCondition = loopCondition
		}
	}
}

// FunctionKey is the identity of a function record: the same textual
// declaration is one entity even if calls or module data are attached later.
type FunctionKey struct {
	Name       string
	FilePath   string
	LineNumber int
}

// FunctionInfo represents one function declaration or definition.
type FunctionInfo struct {
	Name         string          `json:"name"`
	ReturnType   string          `json:"return_type"`
	FilePath     string          `json:"file_path"`
	LineNumber   int             `json:"line_number"`
	IsStatic     bool            `json:"is_static"`
	FunctionType FunctionType    `json:"function_type"`
	MemoryClass  string          `json:"memory_class,omitempty"`
	MacroType    string          `json:"macro_type,omitempty"`
	Parameters   []Parameter     `json:"parameters,omitempty"`
	Calls        []*FunctionCall `json:"calls,omitempty"`
	SwModule     string          `json:"sw_module,omitempty"`
}

// Key returns the identity triple used for equality and indexing.
func (f *FunctionInfo) Key() FunctionKey {
	return FunctionKey{Name: f.Name, FilePath: f.FilePath, LineNumber: f.LineNumber}
}

// FileStem returns the file name without directory or extension.
func FileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// QualifiedName returns "<file-stem>::<name>", disambiguating same-named
// functions across files.
func (f *FunctionInfo) QualifiedName() string {
	return FileStem(f.FilePath) + "::" + f.Name
}

// IsRte reports whether the function is an AUTOSAR runtime-environment call.
func (f *FunctionInfo) IsRte() bool {
	return f.FunctionType == FunctionTypeRteCall || strings.HasPrefix(f.Name, "Rte_")
}

// IsAutosar reports whether the function was declared through an AUTOSAR macro.
func (f *FunctionInfo) IsAutosar() bool {
	switch f.FunctionType {
	case FunctionTypeAutosarFunc, FunctionTypeAutosarFuncP2Var, FunctionTypeAutosarFuncP2Const:
		return true
	}
	return false
}

// CallTreeNode is one position in a built call tree. Many nodes may share
// the same FunctionInfo. Parent is a plain back-reference, never serialized.
type CallTreeNode struct {
	FunctionInfo  *FunctionInfo   `json:"function_info"`
	Depth         int             `json:"depth"`
	Children      []*CallTreeNode `json:"children,omitempty"`
	Parent        *CallTreeNode   `json:"-"`
	IsRecursive   bool            `json:"is_recursive,omitempty"`
	IsTruncated   bool            `json:"is_truncated,omitempty"`
	IsOptional    bool            `json:"is_optional,omitempty"`
	Condition     string          `json:"condition,omitempty"`
	IsLoop        bool            `json:"is_loop,omitempty"`
	LoopCondition string          `json:"loop_condition,omitempty"`
	CallCount     int             `json:"call_count,omitempty"`
}

// AddChild links child under n, keeping the depth invariant
// child.Depth == n.Depth+1.
func (n *CallTreeNode) AddChild(child *CallTreeNode) {
	child.Parent = n
	child.Depth = n.Depth + 1
	n.Children = append(n.Children, child)
}

// CircularDependency records one closed loop of qualified names discovered
// during traversal. The first and last element of Cycle are equal.
type CircularDependency struct {
	Cycle []string `json:"cycle"`
	Depth int      `json:"depth"`
}

// AnalysisStatistics carries aggregate counters for one analysis run.
type AnalysisStatistics struct {
	TotalFunctions            int `json:"total_functions"`
	UniqueFunctions           int `json:"unique_functions"`
	MaxDepthReached           int `json:"max_depth_reached"`
	TotalFunctionCalls        int `json:"total_function_calls"`
	StaticFunctions           int `json:"static_functions"`
	RteFunctions              int `json:"rte_functions"`
	AutosarFunctions          int `json:"autosar_functions"`
	CircularDependenciesFound int `json:"circular_dependencies_found"`
}

// AnalysisResult is the complete outcome of one call-tree build. CallTree is
// nil only when the start function could not be found; the failure is then
// reported through Errors rather than an error return.
type AnalysisResult struct {
	RootFunction         string               `json:"root_function"`
	CallTree             *CallTreeNode        `json:"call_tree,omitempty"`
	Statistics           AnalysisStatistics   `json:"statistics"`
	CircularDependencies []CircularDependency `json:"circular_dependencies,omitempty"`
	Errors               []string             `json:"errors,omitempty"`
	Timestamp            time.Time            `json:"timestamp"`
	SourceDirectory      string               `json:"source_directory"`
	MaxDepthLimit        int                  `json:"max_depth_limit"`
}
