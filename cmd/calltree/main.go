package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"calltree/internal/analyzer"
	"calltree/internal/config"
	"calltree/internal/database"
	"calltree/internal/generators"
	"calltree/internal/models"
)

func main() {
	godotenv.Load()

	startFunction := flag.String("s", "", "Start function for call tree analysis")
	maxDepth := flag.Int("d", 3, "Maximum call tree depth")
	sourceDir := flag.String("i", ".", "Source directory to scan")
	outputPath := flag.String("o", "call_tree.md", "Output file path")
	format := flag.String("f", "mermaid", "Output format: mermaid, xmi or both")
	moduleConfigPath := flag.String("m", "", "Path to module mapping YAML file")
	cacheDir := flag.String("cache-dir", "", "Cache directory (default <source>/.cache)")
	noCache := flag.Bool("no-cache", false, "Disable the function database cache")
	rebuildCache := flag.Bool("rebuild-cache", false, "Force a rescan and refresh the cache")
	listFunctions := flag.Bool("l", false, "List all function names and exit")
	searchPattern := flag.String("search", "", "Search functions by name substring and exit")
	noAbbreviateRte := flag.Bool("no-abbreviate-rte", false, "Keep full RTE function names in diagrams")
	useModuleNames := flag.Bool("module-names", false, "Use SW module names as diagram participants")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	if err := run(options{
		startFunction:   *startFunction,
		maxDepth:        *maxDepth,
		sourceDir:       *sourceDir,
		outputPath:      *outputPath,
		format:          *format,
		moduleConfig:    *moduleConfigPath,
		cacheDir:        *cacheDir,
		noCache:         *noCache,
		rebuildCache:    *rebuildCache,
		listFunctions:   *listFunctions,
		searchPattern:   *searchPattern,
		noAbbreviateRte: *noAbbreviateRte,
		useModuleNames:  *useModuleNames,
		verbose:         *verbose,
	}); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

type options struct {
	startFunction   string
	maxDepth        int
	sourceDir       string
	outputPath      string
	format          string
	moduleConfig    string
	cacheDir        string
	noCache         bool
	rebuildCache    bool
	listFunctions   bool
	searchPattern   string
	noAbbreviateRte bool
	useModuleNames  bool
	verbose         bool
}

func run(opts options) error {
	var moduleConfig *config.ModuleConfig
	if opts.moduleConfig != "" {
		cfg, err := config.Load(opts.moduleConfig)
		if err != nil {
			return err
		}
		moduleConfig = cfg
	}

	db := database.New(opts.sourceDir, moduleConfig, opts.cacheDir)
	err := db.Build(database.BuildOptions{
		UseCache:     !opts.noCache,
		RebuildCache: opts.rebuildCache,
		Verbose:      opts.verbose,
	})
	if err != nil {
		return err
	}

	stats := db.GetStatistics()
	if opts.verbose {
		fmt.Printf("Scanned %d files, found %d functions (%d unique names)\n",
			stats.TotalFilesScanned, stats.TotalFunctionsFound, stats.UniqueFunctionNames)
		if stats.ParseErrors > 0 {
			fmt.Printf("Warning: %d files failed to parse\n", stats.ParseErrors)
		}
	}

	if opts.listFunctions {
		for _, name := range db.AllFunctionNames() {
			fmt.Println(name)
		}
		return nil
	}

	if opts.searchPattern != "" {
		for _, fn := range db.Search(opts.searchPattern) {
			line := fmt.Sprintf("%s  %s:%d", fn.Name, fn.FilePath, fn.LineNumber)
			if fn.SwModule != "" {
				line += "  [" + fn.SwModule + "]"
			}
			fmt.Println(line)
		}
		return nil
	}

	if opts.startFunction == "" {
		flag.Usage()
		return fmt.Errorf("start function is required (-s)")
	}

	builder := analyzer.NewCallTreeBuilder(db)
	result, err := builder.BuildTree(opts.startFunction, opts.maxDepth, opts.verbose)
	if err != nil {
		return err
	}
	if result.CallTree == nil {
		for _, msg := range result.Errors {
			fmt.Fprintln(os.Stderr, msg)
		}
		return fmt.Errorf("analysis failed for '%s'", opts.startFunction)
	}

	switch opts.format {
	case "mermaid":
		if err := writeMermaid(result, opts); err != nil {
			return err
		}
	case "xmi":
		if err := writeXmi(result, xmiPath(opts.outputPath), opts); err != nil {
			return err
		}
	case "both":
		if err := writeMermaid(result, opts); err != nil {
			return err
		}
		if err := writeXmi(result, xmiPath(opts.outputPath), opts); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown output format '%s' (expected mermaid, xmi or both)", opts.format)
	}

	fmt.Printf("Call tree for %s: %d functions, max depth %d, %d cycles\n",
		opts.startFunction,
		result.Statistics.TotalFunctions,
		result.Statistics.MaxDepthReached,
		result.Statistics.CircularDependenciesFound)
	return nil
}

func writeMermaid(result *models.AnalysisResult, opts options) error {
	gen := generators.NewMermaidGenerator()
	gen.AbbreviateRte = !opts.noAbbreviateRte
	gen.UseModuleNames = opts.useModuleNames
	if err := gen.Generate(result, opts.outputPath); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", opts.outputPath)
	return nil
}

func writeXmi(result *models.AnalysisResult, path string, opts options) error {
	gen := generators.NewXmiGenerator()
	gen.UseModuleNames = opts.useModuleNames
	if err := gen.Generate(result, path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

// xmiPath swaps the output extension for .xmi so both formats can share one
// -o value.
func xmiPath(outputPath string) string {
	ext := filepath.Ext(outputPath)
	return strings.TrimSuffix(outputPath, ext) + ".xmi"
}
