package parser

import (
	"os"
	"regexp"
	"strings"

	"calltree/internal/models"
)

// cKeywords are excluded from function and call detection.
var cKeywords = map[string]bool{
	"if": true, "else": true, "while": true, "for": true, "do": true,
	"switch": true, "case": true, "default": true, "return": true,
	"break": true, "continue": true, "goto": true, "sizeof": true,
	"typedef": true, "struct": true, "union": true, "enum": true,
	"const": true, "volatile": true, "static": true, "extern": true,
	"auto": true, "register": true, "inline": true, "__inline": true,
	"__inline__": true, "restrict": true, "__restrict": true,
	"__restrict__": true, "_Bool": true, "_Complex": true,
	"_Imaginary": true, "_Alignas": true, "_Alignof": true,
	"_Atomic": true, "_Static_assert": true, "_Noreturn": true,
	"_Thread_local": true, "_Generic": true,
}

// autosarMacros look like function calls but must not be parsed as
// functions (stdint literal macros, TS_MAKE* config macros, STD_ON/OFF).
var autosarMacros = map[string]bool{
	"INT8_C": true, "INT16_C": true, "INT32_C": true, "INT64_C": true,
	"UINT8_C": true, "UINT16_C": true, "UINT32_C": true, "UINT64_C": true,
	"INTMAX_C": true, "UINTMAX_C": true,
	"TS_MAKEREF2CFG": true, "TS_MAKENULLREF2CFG": true, "TS_MAKEREFLIST2CFG": true,
	"STD_ON": true, "STD_OFF": true,
}

// autosarTypes are AUTOSAR scalar type names, never callees.
var autosarTypes = map[string]bool{
	"uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"sint8": true, "sint16": true, "sint32": true, "sint64": true,
	"boolean": true, "Boolean": true, "float32": true, "float64": true,
	"Std_ReturnType": true, "StatusType": true,
}

// CParser extracts function definitions and their call sites from C source.
// It scans files line by line and caps every capturing group's length; a
// human-written signature never approaches the caps, and rejecting longer
// candidates keeps worst-case matching linear on hostile input.
type CParser struct {
	autosar *AutosarParser

	// [static] [inline] return_type name(params), with length caps:
	// identifier <= 50, return type <= 101, parameter text <= 500 with one
	// level of nested-paren allowance.
	functionPattern *regexp.Regexp
	callPattern     *regexp.Regexp
	rteCallPattern  *regexp.Regexp
	paramPattern    *regexp.Regexp
	typeLinePattern *regexp.Regexp

	blockCommentPattern *regexp.Regexp
	lineCommentPattern  *regexp.Regexp
	ifCondPattern       *regexp.Regexp
	elseIfCondPattern   *regexp.Regexp
	forCondPattern      *regexp.Regexp
	whileCondPattern    *regexp.Regexp
}

// NewCParser creates a parser with all patterns compiled.
func NewCParser() *CParser {
	return &CParser{
		autosar: NewAutosarParser(),
		functionPattern: regexp.MustCompile(
			`^\s*` +
				`(static\s+)?` +
				`((?:inline|__inline__|__inline)\s+)?` +
				`([\w\s*]{1,101}?)\s+` +
				`([a-zA-Z_][a-zA-Z0-9_]{1,50})\s*` +
				`\(([^()]{0,500}(?:\([^()]{0,100}\)[^()]{0,500})*)\)`),
		callPattern:     regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`),
		rteCallPattern:  regexp.MustCompile(`\bRte_[a-zA-Z_][a-zA-Z0-9_]*\s*\(`),
		paramPattern:    regexp.MustCompile(`^([\w\s*]+?)\s*([a-zA-Z_][a-zA-Z0-9_]*)?(\[[^\]]*\])?$`),
		typeLinePattern: regexp.MustCompile(`^[\w\s*]+$`),

		blockCommentPattern: regexp.MustCompile(`(?s)/\*.*?\*/`),
		lineCommentPattern:  regexp.MustCompile(`(?m)//.*?$`),
		ifCondPattern:       regexp.MustCompile(`^if\s*\(\s*(.+?)\s*\)`),
		elseIfCondPattern:   regexp.MustCompile(`^else\s+if\s*\(\s*(.+?)\s*\)`),
		forCondPattern:      regexp.MustCompile(`^for\s*\(\s*[^;]*;\s*(.+?)\s*;`),
		whileCondPattern:    regexp.MustCompile(`^while\s*\(\s*(.+?)\s*\)`),
	}
}

// signatureMatch is a matched function signature with offsets already
// absolute in the file content, including after multi-line reassembly.
type signatureMatch struct {
	isStatic   bool
	returnType string
	name       string
	params     string
	start      int // absolute offset of the match
	end        int // absolute offset just past the closing paren
}

// ParseFile parses a C source file and returns all functions found,
// AUTOSAR-declared functions first.
func (p *CParser) ParseFile(path string) ([]*models.FunctionInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return p.ParseContent(string(data), path), nil
}

// ParseContent parses source text. Comments are stripped first so commented
// declarations and calls are not seen.
func (p *CParser) ParseContent(content, filePath string) []*models.FunctionInfo {
	content = p.removeComments(content)

	var functions []*models.FunctionInfo
	seen := make(map[models.FunctionKey]bool)

	lines := strings.Split(content, "\n")

	// Absolute offset of the start of each line.
	offsets := make([]int, len(lines))
	pos := 0
	for i, line := range lines {
		offsets[i] = pos
		pos += len(line) + 1
	}

	// AUTOSAR pass, only when the file uses declaration macros at all.
	if strings.Contains(content, "FUNC(") || strings.Contains(content, "FUNC_P2") {
		for i, line := range lines {
			if !strings.Contains(line, "FUNC") || !strings.Contains(line, "(") {
				continue
			}
			fn := p.autosar.ParseDeclaration(line, filePath, i+1)
			if fn == nil {
				continue
			}
			p.attachAutosarDetails(fn, content, offsets[i], line)
			functions = append(functions, fn)
			seen[fn.Key()] = true
		}
	}

	// Traditional pass, line by line.
	for i := 0; i < len(lines); {
		line := lines[i]

		// A definition line must open a parameter list; a line with a
		// semicolon and no brace is a prototype or statement.
		if line == "" || !strings.Contains(line, "(") ||
			(strings.Contains(line, ";") && !strings.Contains(line, "{")) {
			i++
			continue
		}

		if sig, ok := p.matchSingleLine(line, offsets[i]); ok {
			if fn := p.buildFunction(sig, content, filePath); fn != nil && !seen[fn.Key()] {
				functions = append(functions, fn)
				seen[fn.Key()] = true
			}
			i++
			continue
		}

		if sig, consumed, ok := p.matchMultiLine(lines, offsets, i); ok {
			if fn := p.buildFunction(sig, content, filePath); fn != nil && !seen[fn.Key()] {
				functions = append(functions, fn)
				seen[fn.Key()] = true
			}
			i += consumed
			continue
		}
		i++
	}

	return functions
}

// attachAutosarDetails fills parameters and calls for a macro-declared
// function by scanning forward from the function name.
func (p *CParser) attachAutosarDetails(fn *models.FunctionInfo, content string, lineOffset int, line string) {
	nameIdx := strings.Index(line, fn.Name)
	if nameIdx < 0 {
		return
	}
	parenIdx := strings.Index(line[nameIdx:], "(")
	if parenIdx < 0 {
		return
	}
	openParen := lineOffset + nameIdx + parenIdx

	paramText, ok := ExtractParameterText(content, openParen)
	if !ok {
		return
	}
	fn.Parameters = p.autosar.ParseParameters(paramText)

	bodyStart := openParen + len(paramText) + 2
	if body, ok := p.extractFunctionBody(content, bodyStart); ok {
		fn.Calls = p.extractFunctionCalls(body)
	}
}

func (p *CParser) matchSingleLine(line string, lineOffset int) (signatureMatch, bool) {
	m := p.functionPattern.FindStringSubmatchIndex(line)
	if m == nil {
		return signatureMatch{}, false
	}
	return p.signatureFromMatch(line, m, lineOffset), true
}

func (p *CParser) signatureFromMatch(text string, m []int, offset int) signatureMatch {
	group := func(i int) string {
		if m[2*i] < 0 {
			return ""
		}
		return text[m[2*i]:m[2*i+1]]
	}
	return signatureMatch{
		isStatic:   group(1) != "",
		returnType: strings.TrimSpace(group(3)),
		name:       group(4),
		params:     group(5),
		start:      offset + m[0],
		end:        offset + m[1],
	}
}

// matchMultiLine reconstructs a prototype that spans lines: it looks
// backward for a return type on its own line, then joins lines forward
// until the parenthesis balance closes and re-runs the single-line pattern
// on the joined text. Joining with spaces keeps every offset identical to
// the original content, so match positions map back directly.
func (p *CParser) matchMultiLine(lines []string, offsets []int, startIdx int) (signatureMatch, int, bool) {
	actualStart := startIdx
	for actualStart > 0 {
		prev := strings.TrimSpace(lines[actualStart-1])
		if prev == "" || strings.Contains(prev, "(") ||
			strings.HasPrefix(prev, "//") || strings.HasPrefix(prev, "/*") {
			break
		}
		if !p.typeLinePattern.MatchString(prev) {
			break
		}
		actualStart--
	}

	parenDepth := 0
	balanced := -1
	var joined strings.Builder
	for i := actualStart; i < len(lines); i++ {
		if i > actualStart {
			joined.WriteByte(' ')
		}
		joined.WriteString(lines[i])
		for _, c := range lines[i] {
			switch c {
			case '(':
				parenDepth++
			case ')':
				parenDepth--
			}
		}
		if parenDepth == 0 && strings.Contains(joined.String(), "(") {
			balanced = i
			break
		}
	}
	if balanced < 0 {
		return signatureMatch{}, 0, false
	}

	combined := joined.String()
	m := p.functionPattern.FindStringSubmatchIndex(combined)
	if m == nil {
		return signatureMatch{}, 0, false
	}

	sig := p.signatureFromMatch(combined, m, offsets[actualStart])
	consumed := balanced - startIdx + 1
	if consumed < 1 {
		consumed = 1
	}
	return sig, consumed, true
}

// buildFunction turns a signature match into a FunctionInfo, applying the
// keyword/macro filters, and extracts the body and call sites.
func (p *CParser) buildFunction(sig signatureMatch, content, filePath string) *models.FunctionInfo {
	if strings.HasPrefix(sig.returnType, "#") {
		return nil
	}
	if cKeywords[sig.returnType] || cKeywords[sig.name] {
		return nil
	}
	if autosarMacros[sig.name] || strings.HasSuffix(sig.name, "_C") {
		return nil
	}
	switch sig.name {
	case "if", "for", "while", "switch", "case", "else":
		return nil
	}

	fn := &models.FunctionInfo{
		Name:         sig.name,
		ReturnType:   sig.returnType,
		FilePath:     filePath,
		LineNumber:   strings.Count(content[:sig.start], "\n") + 1,
		IsStatic:     sig.isStatic,
		FunctionType: models.FunctionTypeTraditionalC,
		Parameters:   p.parseCParameters(sig.params),
	}

	if body, ok := p.extractFunctionBody(content, sig.end); ok {
		fn.Calls = p.extractFunctionCalls(body)
	}
	return fn
}

func (p *CParser) parseCParameters(paramsStr string) []models.Parameter {
	paramsStr = strings.TrimSpace(paramsStr)
	if paramsStr == "" || paramsStr == "void" {
		return nil
	}

	var parameters []models.Parameter
	for _, part := range SplitBalanced(paramsStr, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m := p.paramPattern.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		paramType := strings.TrimSpace(m[1])
		isPointer := strings.Contains(paramType, "*")
		paramType = strings.TrimSpace(strings.TrimRight(
			strings.Join(strings.Fields(paramType), " "), "*"))
		parameters = append(parameters, models.Parameter{
			Name:      m[2],
			Type:      strings.TrimSpace(paramType),
			IsPointer: isPointer,
			IsConst:   strings.Contains(m[1], "const"),
		})
	}
	return parameters
}

func (p *CParser) removeComments(content string) string {
	content = p.blockCommentPattern.ReplaceAllString(content, "")
	return p.lineCommentPattern.ReplaceAllString(content, "")
}

// extractFunctionBody scans forward from pos, skips whitespace, and
// requires an opening brace; it then counts braces until balance returns
// to zero. Unbalanced input yields no body, which is not an error.
func (p *CParser) extractFunctionBody(content string, pos int) (string, bool) {
	i := pos
	for i < len(content) && (content[i] == ' ' || content[i] == '\t' ||
		content[i] == '\n' || content[i] == '\r') {
		i++
	}
	if i >= len(content) || content[i] != '{' {
		return "", false
	}

	depth := 0
	for j := i; j < len(content); j++ {
		switch content[j] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[i : j+1], true
			}
		}
	}
	return "", false
}
