// Package database indexes parsed function records and resolves ambiguous
// call targets.
package database

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"calltree/internal/config"
	"calltree/internal/models"
	"calltree/internal/parser"
)

// Database holds every function record found in a source tree, indexed
// three ways: by bare name (insertion order preserved), by qualified name
// ("stem::name", last write wins) and by file. It is read-mostly after
// Build; rebuilds replace the indices wholesale.
type Database struct {
	SourceDir string

	Functions          map[string][]*models.FunctionInfo
	QualifiedFunctions map[string]*models.FunctionInfo
	FunctionsByFile    map[string][]*models.FunctionInfo

	TotalFilesScanned   int
	TotalFunctionsFound int
	ParseErrors         []string
	ModuleStats         map[string]int

	moduleConfig *config.ModuleConfig
	cacheDir     string
	parser       *parser.CParser
}

// Statistics is the database-level counter snapshot.
type Statistics struct {
	TotalFilesScanned   int            `json:"total_files_scanned"`
	TotalFunctionsFound int            `json:"total_functions_found"`
	UniqueFunctionNames int            `json:"unique_function_names"`
	StaticFunctions     int            `json:"static_functions"`
	ParseErrors         int            `json:"parse_errors"`
	ModuleStats         map[string]int `json:"module_stats"`
}

// New creates a database for a source directory. cacheDir may be empty, in
// which case the cache lives under <sourceDir>/.cache. moduleConfig may be
// nil when no module mapping is configured.
func New(sourceDir string, moduleConfig *config.ModuleConfig, cacheDir string) *Database {
	if cacheDir == "" {
		cacheDir = filepath.Join(sourceDir, ".cache")
	}
	db := &Database{
		SourceDir:    sourceDir,
		moduleConfig: moduleConfig,
		cacheDir:     cacheDir,
		parser:       parser.NewCParser(),
	}
	db.resetIndices()
	return db
}

func (db *Database) resetIndices() {
	db.Functions = make(map[string][]*models.FunctionInfo)
	db.QualifiedFunctions = make(map[string]*models.FunctionInfo)
	db.FunctionsByFile = make(map[string][]*models.FunctionInfo)
	db.TotalFilesScanned = 0
	db.TotalFunctionsFound = 0
	db.ParseErrors = nil
	db.ModuleStats = make(map[string]int)
}

// BuildOptions controls a Build run.
type BuildOptions struct {
	UseCache     bool
	RebuildCache bool
	Verbose      bool
}

// Build scans the source tree and populates the indices. Parse errors are
// collected and never abort the scan. When the cache is enabled and valid
// it is used instead of scanning; after a scan the cache is refreshed.
func (db *Database) Build(opts BuildOptions) error {
	if opts.UseCache && !opts.RebuildCache {
		if db.LoadFromCache(opts.Verbose) {
			if opts.Verbose {
				fmt.Printf("Loaded %d functions from cache\n", db.TotalFunctionsFound)
			}
			return nil
		}
	}

	db.resetIndices()

	files, err := db.findSourceFiles()
	if err != nil {
		return fmt.Errorf("failed to scan source directory %s: %v", db.SourceDir, err)
	}

	// Parse files in parallel, merge on this goroutine in sorted file
	// order so insertion order (and disambiguation tie-breaks) stay
	// deterministic.
	results := make([][]*models.FunctionInfo, len(files))
	parseErrs := make([]error, len(files))

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			fns, err := db.parser.ParseFile(file)
			results[i] = fns
			parseErrs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	for i, file := range files {
		db.TotalFilesScanned++
		if opts.Verbose {
			size := int64(0)
			if info, err := os.Stat(file); err == nil {
				size = info.Size()
			}
			fmt.Printf("Processing: %s (Size: %s)\n", file, formatFileSize(size))
		}
		if parseErrs[i] != nil {
			db.ParseErrors = append(db.ParseErrors, fmt.Sprintf("%s: %v", file, parseErrs[i]))
			if opts.Verbose {
				fmt.Printf("Warning: failed to parse %s: %v\n", file, parseErrs[i])
			}
			continue
		}
		for _, fn := range results[i] {
			db.Add(fn)
		}
	}

	if opts.UseCache {
		db.SaveToCache(opts.Verbose)
	}
	return nil
}

func (db *Database) findSourceFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(db.SourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".c") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Add inserts a record into all three indices and assigns its SW module
// from the configured mapping. Records are never removed during the
// database's lifetime.
func (db *Database) Add(fn *models.FunctionInfo) {
	if db.moduleConfig != nil {
		fn.SwModule = db.moduleConfig.ModuleForFile(fn.FilePath)
	}
	if fn.SwModule != "" {
		db.ModuleStats[fn.SwModule]++
	}

	db.Functions[fn.Name] = append(db.Functions[fn.Name], fn)
	db.QualifiedFunctions[fn.QualifiedName()] = fn
	db.FunctionsByFile[fn.FilePath] = append(db.FunctionsByFile[fn.FilePath], fn)
	db.TotalFunctionsFound++
}

// Lookup returns all candidates for a bare name, or the single record for a
// qualified "stem::name". A miss returns an empty slice, never an error.
func (db *Database) Lookup(name, contextFile string) []*models.FunctionInfo {
	if strings.Contains(name, "::") {
		if fn, ok := db.QualifiedFunctions[name]; ok {
			return []*models.FunctionInfo{fn}
		}
		return nil
	}
	return db.Functions[name]
}

// ByQualifiedName returns the record for "stem::name" or nil.
func (db *Database) ByQualifiedName(qualified string) *models.FunctionInfo {
	return db.QualifiedFunctions[qualified]
}

// ResolveBest disambiguates between several records sharing a bare name.
// The strategy chain is ordered; each step short-circuits on a unique
// winner. An empty candidate list resolves to nil.
func (db *Database) ResolveBest(candidates []*models.FunctionInfo, contextFile string) *models.FunctionInfo {
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) == 1 {
		return candidates[0]
	}

	// 1. A non-empty call list means a body was parsed; prefer
	// implementations over bare declarations.
	var withCalls []*models.FunctionInfo
	for _, fn := range candidates {
		if len(fn.Calls) > 0 {
			withCalls = append(withCalls, fn)
		}
	}
	if len(withCalls) == 1 {
		return withCalls[0]
	}
	if len(withCalls) > 1 {
		candidates = withCalls
	}

	// 2. Naming convention: the defining file's stem relates to the
	// function name (COM_Init in communication.c) and a module is mapped.
	for _, fn := range candidates {
		if fn.SwModule != "" && fileStemMatchesName(fn.FilePath, fn.Name) {
			return fn
		}
	}

	// 3. Avoid resolving back to a forward declaration in the caller's own
	// file.
	if contextFile != "" {
		var others []*models.FunctionInfo
		for _, fn := range candidates {
			if fn.FilePath != contextFile {
				others = append(others, fn)
			}
		}
		if len(others) == 1 {
			return others[0]
		}
		if len(others) > 1 {
			candidates = others
		}
	}

	// 4. Prefer records with a module assignment.
	var withModules []*models.FunctionInfo
	for _, fn := range candidates {
		if fn.SwModule != "" {
			withModules = append(withModules, fn)
		}
	}
	if len(withModules) > 0 {
		candidates = withModules
	}

	// 5. First candidate in original insertion order.
	return candidates[0]
}

func fileStemMatchesName(filePath, funcName string) bool {
	stem := strings.ToLower(models.FileStem(filePath))
	name := strings.ToLower(funcName)
	if strings.Contains(name, stem) {
		return true
	}
	// A module prefix like "COM_" commonly abbreviates the file stem.
	if idx := strings.Index(name, "_"); idx >= 2 {
		return strings.Contains(stem, name[:idx])
	}
	return false
}

// Search returns every function whose name contains the pattern,
// case-insensitively. The empty pattern matches everything. Results follow
// sorted bare-name order so equal databases yield identical slices.
func (db *Database) Search(pattern string) []*models.FunctionInfo {
	needle := strings.ToLower(pattern)

	names := make([]string, 0, len(db.Functions))
	for name := range db.Functions {
		names = append(names, name)
	}
	sort.Strings(names)

	var matches []*models.FunctionInfo
	for _, name := range names {
		if needle == "" || strings.Contains(strings.ToLower(name), needle) {
			matches = append(matches, db.Functions[name]...)
		}
	}
	return matches
}

// AllFunctionNames returns the sorted list of bare function names.
func (db *Database) AllFunctionNames() []string {
	names := make([]string, 0, len(db.Functions))
	for name := range db.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FunctionsInFile returns the records parsed from one file, in source order.
func (db *Database) FunctionsInFile(path string) []*models.FunctionInfo {
	return db.FunctionsByFile[path]
}

// GetStatistics returns the counter snapshot for the current indices.
func (db *Database) GetStatistics() Statistics {
	static := 0
	for _, fns := range db.Functions {
		for _, fn := range fns {
			if fn.IsStatic {
				static++
			}
		}
	}
	return Statistics{
		TotalFilesScanned:   db.TotalFilesScanned,
		TotalFunctionsFound: db.TotalFunctionsFound,
		UniqueFunctionNames: len(db.Functions),
		StaticFunctions:     static,
		ParseErrors:         len(db.ParseErrors),
		ModuleStats:         db.ModuleStats,
	}
}
