package parser

import (
	"regexp"
	"strings"

	"calltree/internal/models"
)

// AutosarParser recognizes AUTOSAR macro-based function declarations:
//
//	[STATIC] FUNC(rettype, memclass) name(params)
//	[STATIC] FUNC_P2VAR(type, ptrclass, memclass) name(params)
//	[STATIC] FUNC_P2CONST(type, ptrclass, memclass) name(params)
//
// and the VAR/P2VAR/P2CONST/CONST parameter macros. Patterns are compiled
// once per parser instance.
type AutosarParser struct {
	funcPattern        *regexp.Regexp
	funcP2VarPattern   *regexp.Regexp
	funcP2ConstPattern *regexp.Regexp

	varParamPattern     *regexp.Regexp
	p2VarParamPattern   *regexp.Regexp
	p2ConstParamPattern *regexp.Regexp
	constParamPattern   *regexp.Regexp
}

// NewAutosarParser creates a parser with all macro patterns compiled.
func NewAutosarParser() *AutosarParser {
	return &AutosarParser{
		funcPattern: regexp.MustCompile(
			`(STATIC\s+)?FUNC\(\s*([^,]+?)\s*,\s*([^)]+?)\s*\)\s+(\w+)\s*\(`),
		funcP2VarPattern: regexp.MustCompile(
			`(STATIC\s+)?FUNC_P2VAR\(\s*([^,]+?)\s*,\s*([^,]+?)\s*,\s*([^)]+?)\s*\)\s+(\w+)\s*\(`),
		funcP2ConstPattern: regexp.MustCompile(
			`(STATIC\s+)?FUNC_P2CONST\(\s*([^,]+?)\s*,\s*([^,]+?)\s*,\s*([^)]+?)\s*\)\s+(\w+)\s*\(`),

		varParamPattern:     regexp.MustCompile(`^VAR\(\s*([^,]+?)\s*,\s*([^)]+?)\s*\)\s+(\w+)`),
		p2VarParamPattern:   regexp.MustCompile(`^P2VAR\(\s*([^,]+?)\s*,\s*([^,]+?)\s*,\s*([^)]+?)\s*\)\s+(\w+)`),
		p2ConstParamPattern: regexp.MustCompile(`^P2CONST\(\s*([^,]+?)\s*,\s*([^,]+?)\s*,\s*([^)]+?)\s*\)\s+(\w+)`),
		constParamPattern:   regexp.MustCompile(`^CONST\(\s*([^,]+?)\s*,\s*([^)]+?)\s*\)\s+(\w+)`),
	}
}

// ParseDeclaration tries the FUNC, FUNC_P2VAR and FUNC_P2CONST patterns, in
// that order, against a single source line. A line with no macro match
// returns nil, which is not an error.
func (p *AutosarParser) ParseDeclaration(line, filePath string, lineNumber int) *models.FunctionInfo {
	if m := p.funcPattern.FindStringSubmatch(line); m != nil {
		return &models.FunctionInfo{
			Name:         m[4],
			ReturnType:   strings.TrimSpace(m[2]),
			FilePath:     filePath,
			LineNumber:   lineNumber,
			IsStatic:     m[1] != "",
			FunctionType: models.FunctionTypeAutosarFunc,
			MemoryClass:  strings.TrimSpace(m[3]),
			MacroType:    "FUNC",
		}
	}

	if m := p.funcP2VarPattern.FindStringSubmatch(line); m != nil {
		return &models.FunctionInfo{
			Name:         m[5],
			ReturnType:   strings.TrimSpace(m[2]) + "*",
			FilePath:     filePath,
			LineNumber:   lineNumber,
			IsStatic:     m[1] != "",
			FunctionType: models.FunctionTypeAutosarFuncP2Var,
			MemoryClass:  strings.TrimSpace(m[4]),
			MacroType:    "FUNC_P2VAR",
		}
	}

	if m := p.funcP2ConstPattern.FindStringSubmatch(line); m != nil {
		return &models.FunctionInfo{
			Name:         m[5],
			ReturnType:   "const " + strings.TrimSpace(m[2]) + "*",
			FilePath:     filePath,
			LineNumber:   lineNumber,
			IsStatic:     m[1] != "",
			FunctionType: models.FunctionTypeAutosarFuncP2Const,
			MemoryClass:  strings.TrimSpace(m[4]),
			MacroType:    "FUNC_P2CONST",
		}
	}

	return nil
}

// IsAutosarDeclaration reports whether the line contains any AUTOSAR
// function declaration macro.
func (p *AutosarParser) IsAutosarDeclaration(line string) bool {
	return p.funcPattern.MatchString(line) ||
		p.funcP2VarPattern.MatchString(line) ||
		p.funcP2ConstPattern.MatchString(line)
}

// ExtractParameterText scans content forward from the opening parenthesis
// of the declaration's parameter list, counting balanced parentheses until
// depth returns to zero. Parameter lists may contain nested macro calls
// (e.g. function-pointer parameters), so a regex cannot delimit them.
// Returns the text between the outer parentheses and true on balance.
func ExtractParameterText(content string, openParen int) (string, bool) {
	if openParen < 0 || openParen >= len(content) || content[openParen] != '(' {
		return "", false
	}
	depth := 0
	for i := openParen; i < len(content); i++ {
		switch content[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return content[openParen+1 : i], true
			}
		}
	}
	return "", false
}

// ParseParameters splits a parameter list on top-level commas and parses
// each part through the AUTOSAR parameter macros, falling back to a
// traditional "[const] type [*] name" parse.
func (p *AutosarParser) ParseParameters(paramString string) []models.Parameter {
	trimmed := strings.TrimSpace(paramString)
	if trimmed == "" || trimmed == "void" {
		return nil
	}

	var parameters []models.Parameter
	for _, part := range SplitBalanced(paramString, ',') {
		part = strings.TrimSpace(part)
		if part == "" || part == "void" {
			continue
		}
		if param, ok := p.parseSingleParameter(part); ok {
			parameters = append(parameters, param)
		}
	}
	return parameters
}

func (p *AutosarParser) parseSingleParameter(paramStr string) (models.Parameter, bool) {
	if m := p.p2VarParamPattern.FindStringSubmatch(paramStr); m != nil {
		return models.Parameter{
			Name:        m[4],
			Type:        strings.TrimSpace(m[1]),
			IsPointer:   true,
			MemoryClass: strings.TrimSpace(m[3]),
		}, true
	}
	if m := p.p2ConstParamPattern.FindStringSubmatch(paramStr); m != nil {
		return models.Parameter{
			Name:        m[4],
			Type:        strings.TrimSpace(m[1]),
			IsPointer:   true,
			IsConst:     true,
			MemoryClass: strings.TrimSpace(m[3]),
		}, true
	}
	if m := p.constParamPattern.FindStringSubmatch(paramStr); m != nil {
		return models.Parameter{
			Name:        m[3],
			Type:        strings.TrimSpace(m[1]),
			IsConst:     true,
			MemoryClass: strings.TrimSpace(m[2]),
		}, true
	}
	if m := p.varParamPattern.FindStringSubmatch(paramStr); m != nil {
		return models.Parameter{
			Name:        m[3],
			Type:        strings.TrimSpace(m[1]),
			MemoryClass: strings.TrimSpace(m[2]),
		}, true
	}
	return parseTraditionalParameter(paramStr)
}

func parseTraditionalParameter(paramStr string) (models.Parameter, bool) {
	paramStr = strings.TrimSpace(paramStr)

	isConst := strings.Contains(paramStr, "const")
	if isConst {
		paramStr = strings.TrimSpace(strings.ReplaceAll(paramStr, "const", ""))
	}
	isPointer := strings.Contains(paramStr, "*")
	if isPointer {
		paramStr = strings.TrimSpace(strings.ReplaceAll(paramStr, "*", ""))
	}

	fields := strings.Fields(paramStr)
	switch {
	case len(fields) >= 2:
		return models.Parameter{
			Name:      fields[len(fields)-1],
			Type:      strings.Join(fields[:len(fields)-1], " "),
			IsPointer: isPointer,
			IsConst:   isConst,
		}, true
	case len(fields) == 1:
		// Type only, parameter name omitted.
		return models.Parameter{
			Type:      fields[0],
			IsPointer: isPointer,
			IsConst:   isConst,
		}, true
	}
	return models.Parameter{}, false
}

// SplitBalanced splits text on a delimiter, ignoring delimiters nested
// inside (), [] or {}.
func SplitBalanced(text string, delimiter byte) []string {
	var parts []string
	var current strings.Builder
	depth := 0

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '(' || c == '[' || c == '{':
			depth++
			current.WriteByte(c)
		case c == ')' || c == ']' || c == '}':
			depth--
			current.WriteByte(c)
		case c == delimiter && depth == 0:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
