// Package config loads the software-module mapping used to label functions
// with their owning SW module.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// PatternMapping is one glob pattern compiled to a regexp, paired with the
// module it maps to. Patterns keep their declaration order; the first match
// wins and matching is case-sensitive.
type PatternMapping struct {
	Glob    string
	Pattern *regexp.Regexp
	Module  string
}

// ModuleConfig resolves source file names to SW module names. Lookup order:
// exact filename mapping, then pattern mappings in declaration order, then
// the default module (may be empty).
type ModuleConfig struct {
	SpecificMappings map[string]string
	PatternMappings  []PatternMapping
	DefaultModule    string
}

// Load reads and validates a module configuration YAML file. Any malformed
// content is a fatal load-time error; there is no partial result.
func Load(path string) (*ModuleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read configuration file %s: %v", path, err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %v", path, err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("invalid configuration %s: expected dictionary at root level", path)
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("invalid configuration %s: expected dictionary at root level", path)
	}

	cfg := &ModuleConfig{SpecificMappings: make(map[string]string)}

	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i].Value
		value := doc.Content[i+1]

		switch key {
		case "file_mappings":
			if value.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("invalid configuration %s: 'file_mappings' must be a dictionary", path)
			}
			for j := 0; j+1 < len(value.Content); j += 2 {
				file := value.Content[j].Value
				moduleNode := value.Content[j+1]
				if moduleNode.Kind != yaml.ScalarNode || moduleNode.Tag != "!!str" {
					return nil, fmt.Errorf("invalid configuration %s: file mappings must be strings", path)
				}
				module := moduleNode.Value
				if strings.TrimSpace(module) == "" {
					return nil, fmt.Errorf("invalid configuration %s: module name cannot be empty (file %q)", path, file)
				}
				cfg.SpecificMappings[file] = module
			}

		case "pattern_mappings":
			if value.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("invalid configuration %s: 'pattern_mappings' must be a dictionary", path)
			}
			for j := 0; j+1 < len(value.Content); j += 2 {
				glob := value.Content[j].Value
				moduleNode := value.Content[j+1]
				if moduleNode.Kind != yaml.ScalarNode || moduleNode.Tag != "!!str" {
					return nil, fmt.Errorf("invalid configuration %s: pattern mappings must be strings", path)
				}
				module := moduleNode.Value
				if strings.TrimSpace(module) == "" {
					return nil, fmt.Errorf("invalid configuration %s: module name cannot be empty (pattern %q)", path, glob)
				}
				re, err := compileGlob(glob)
				if err != nil {
					return nil, fmt.Errorf("invalid configuration %s: bad pattern %q: %v", path, glob, err)
				}
				cfg.PatternMappings = append(cfg.PatternMappings, PatternMapping{
					Glob:    glob,
					Pattern: re,
					Module:  module,
				})
			}

		case "default_module":
			if value.Kind != yaml.ScalarNode || value.Tag != "!!str" || strings.TrimSpace(value.Value) == "" {
				return nil, fmt.Errorf("invalid configuration %s: 'default_module' must be a non-empty string", path)
			}
			cfg.DefaultModule = value.Value
		}
	}

	return cfg, nil
}

// compileGlob translates a shell-style glob ("*", "?") into an anchored,
// case-sensitive regexp over the file name.
func compileGlob(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// ModuleForFile returns the module for a source file path, or "" when no
// mapping applies and no default module is configured.
func (c *ModuleConfig) ModuleForFile(path string) string {
	name := filepath.Base(path)

	if module, ok := c.SpecificMappings[name]; ok {
		return module
	}
	for _, pm := range c.PatternMappings {
		if pm.Pattern.MatchString(name) {
			return pm.Module
		}
	}
	return c.DefaultModule
}
