package parser

import (
	"regexp"
	"sort"
	"strings"

	"calltree/internal/models"
)

// conditionCollector buffers a control-flow header whose condition spans
// multiple lines, appending lines until the parenthesis balance closes.
// rest holds whatever followed the closing parenthesis on the final line.
type conditionCollector struct {
	collecting bool
	buffer     string
	parenDepth int
	condition  string
	rest       string
	isLoop     bool
}

func (c *conditionCollector) start(line string, isLoop bool) {
	c.collecting = true
	c.buffer = line
	c.parenDepth = strings.Count(line, "(") - strings.Count(line, ")")
	c.condition = ""
	c.rest = ""
	c.isLoop = isLoop
}

func (c *conditionCollector) processLine(line string, p *CParser) {
	c.buffer += " " + line
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '(':
			c.parenDepth++
		case ')':
			c.parenDepth--
			if c.parenDepth == 0 {
				c.rest = strings.TrimSpace(line[i+1:])
				c.extract(p)
				return
			}
		}
	}
}

func (c *conditionCollector) extract(p *CParser) {
	defer func() { c.collecting = false }()

	keyword := "if"
	if c.isLoop {
		switch {
		case strings.HasPrefix(strings.TrimSpace(c.buffer), "for"):
			keyword = "for"
		default:
			keyword = "while"
		}
	}
	kwPos := strings.Index(c.buffer, keyword)
	if kwPos < 0 {
		return
	}
	open := strings.Index(c.buffer[kwPos:], "(")
	if open < 0 {
		return
	}
	open += kwPos
	closing := strings.LastIndex(c.buffer, ")")
	if closing <= open {
		return
	}
	inner := strings.TrimSpace(c.buffer[open+1 : closing])
	if keyword == "for" {
		// The loop condition is the middle clause.
		parts := strings.Split(inner, ";")
		if len(parts) >= 2 {
			inner = strings.TrimSpace(parts[1])
		}
	}
	c.condition = p.sanitizeCondition(inner)
}

// activeBlock tracks a conditional or loop region and the brace depth at
// which it opened; the region closes when depth returns to that level.
// pending marks a header whose opening brace has not appeared yet (Allman
// style or a single-statement body on the following line).
type activeBlock struct {
	active    bool
	condition string
	openDepth int
	pending   bool
}

// extractFunctionCalls walks a function body line by line and records every
// identifier immediately followed by "(" that is not a keyword or an AUTOSAR
// scalar type, annotated with the surrounding if/else and for/while context.
// This is a textual heuristic, not control-flow analysis; pathological
// formatting can over- or under-attribute conditionality.
func (p *CParser) extractFunctionCalls(body string) []*models.FunctionCall {
	var order []string
	byName := make(map[string]*models.FunctionCall)

	var ifBlock, loopBlock activeBlock
	var ifCollector, loopCollector conditionCollector
	braceDepth := 0

	for lineIdx, line := range strings.Split(body, "\n") {
		stripped := strings.TrimSpace(line)
		ifHeaderLine := false
		loopHeaderLine := false

		if ifCollector.collecting {
			ifCollector.processLine(stripped, p)
			if ifCollector.collecting {
				continue
			}
			ifBlock = activeBlock{active: true, condition: ifCollector.condition, openDepth: braceDepth, pending: ifCollector.rest == ""}
			ifHeaderLine = true
		}
		if loopCollector.collecting {
			loopCollector.processLine(stripped, p)
			if loopCollector.collecting {
				continue
			}
			loopBlock = activeBlock{active: true, condition: loopCollector.condition, openDepth: braceDepth, pending: loopCollector.rest == ""}
			loopHeaderLine = true
		}

		// Leading closers ("} else {") end their blocks before any header
		// on the same line is considered.
		working := stripped
		for strings.HasPrefix(working, "}") {
			braceDepth--
			if ifBlock.active && braceDepth <= ifBlock.openDepth {
				ifBlock = activeBlock{}
			}
			if loopBlock.active && braceDepth <= loopBlock.openDepth {
				loopBlock = activeBlock{}
			}
			working = strings.TrimSpace(working[1:])
		}

		if cond, ok := p.conditionalHeader(working, &ifCollector); ok {
			ifBlock = activeBlock{active: true, condition: cond, openDepth: braceDepth, pending: headerTrailing(working) == ""}
			ifHeaderLine = true
		} else if strings.HasPrefix(working, "else") && !strings.HasPrefix(working, "else if") {
			rest := strings.TrimSpace(strings.TrimPrefix(working, "else"))
			ifBlock = activeBlock{active: true, condition: "else", openDepth: braceDepth, pending: rest == ""}
			ifHeaderLine = true
		}

		if cond, ok := p.loopHeader(working, &loopCollector); ok {
			loopBlock = activeBlock{active: true, condition: cond, openDepth: braceDepth, pending: headerTrailing(working) == ""}
			loopHeaderLine = true
		}

		braceDepth += strings.Count(working, "{")
		braceDepth -= strings.Count(working, "}")

		// A pending header is anchored once its opening brace arrives, on
		// this line or a later one.
		if ifBlock.active && ifBlock.pending && braceDepth > ifBlock.openDepth {
			ifBlock.pending = false
		}
		if loopBlock.active && loopBlock.pending && braceDepth > loopBlock.openDepth {
			loopBlock.pending = false
		}

		// Header lines count as inside their own region, so calls in the
		// condition itself and brace-less single-statement bodies are
		// attributed.
		isConditional := ifBlock.active && (braceDepth > ifBlock.openDepth || ifHeaderLine || ifBlock.pending)
		isLoop := loopBlock.active && (braceDepth > loopBlock.openDepth || loopHeaderLine || loopBlock.pending)

		condition := ""
		if isConditional {
			condition = ifBlock.condition
		}
		loopCondition := ""
		if isLoop {
			loopCondition = loopBlock.condition
		}
		p.addCallsFromLine(line, lineIdx+1, &order, byName, isConditional, condition, isLoop, loopCondition)

		// A block closes when depth returns to its opening level, except
		// for a still-pending header line, which is waiting for its brace.
		if ifBlock.active && braceDepth <= ifBlock.openDepth && !(ifBlock.pending && ifHeaderLine) {
			ifBlock = activeBlock{}
		}
		if loopBlock.active && braceDepth <= loopBlock.openDepth && !(loopBlock.pending && loopHeaderLine) {
			loopBlock = activeBlock{}
		}
	}

	calls := make([]*models.FunctionCall, 0, len(order))
	for _, name := range order {
		calls = append(calls, byName[name])
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].Name < calls[j].Name })
	return calls
}

func (p *CParser) addCallsFromLine(
	line string, lineIdx int,
	order *[]string, byName map[string]*models.FunctionCall,
	isConditional bool, condition string,
	isLoop bool, loopCondition string,
) {
	record := func(name string) {
		if existing, ok := byName[name]; ok {
			existing.MergeSighting(isConditional, condition, isLoop, loopCondition)
			return
		}
		call := &models.FunctionCall{
			Name:          name,
			IsConditional: isConditional,
			IsLoop:        isLoop,
			LineNumber:    lineIdx,
		}
		if isConditional {
			call.Condition = condition
		}
		if isLoop {
			call.LoopCondition = loopCondition
		}
		byName[name] = call
		*order = append(*order, name)
	}

	for _, m := range p.callPattern.FindAllStringSubmatch(line, -1) {
		name := m[1]
		if cKeywords[name] || autosarTypes[name] || autosarMacros[name] {
			continue
		}
		record(name)
	}
	for _, m := range p.rteCallPattern.FindAllString(line, -1) {
		name := strings.TrimSpace(strings.TrimRight(m, "("))
		name = strings.TrimSpace(name)
		record(name)
	}
}

// headerTrailing returns the text after a header's balanced condition
// parentheses, or "" when the header ends at the closing parenthesis.
func headerTrailing(line string) string {
	open := strings.Index(line, "(")
	if open < 0 {
		return ""
	}
	depth := 0
	for i := open; i < len(line); i++ {
		switch line[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return strings.TrimSpace(line[i+1:])
			}
		}
	}
	return ""
}

// conditionalHeader recognizes if/else-if headers and returns the sanitized
// condition. When the condition spans lines the collector takes over and
// ok is false until it completes.
func (p *CParser) conditionalHeader(line string, collector *conditionCollector) (string, bool) {
	isIf := strings.HasPrefix(line, "if ") || strings.HasPrefix(line, "if(")
	isElseIf := strings.HasPrefix(line, "else if")
	if !isIf && !isElseIf {
		return "", false
	}

	pattern := p.ifCondPattern
	if isElseIf {
		pattern = p.elseIfCondPattern
	}
	if m := pattern.FindStringSubmatch(line); m != nil {
		candidate := strings.TrimSpace(m[1])
		if strings.Count(candidate, "(") != strings.Count(candidate, ")") {
			// The lazy match stopped inside a nested call. Whether the
			// condition continues on the next line is decided by the whole
			// header, not the truncated candidate.
			if strings.Count(line, "(") > strings.Count(line, ")") {
				collector.start(line, false)
				return "", false
			}
			if inner, ok := ExtractParameterText(line, strings.Index(line, "(")); ok {
				return p.sanitizeCondition(strings.TrimSpace(inner)), true
			}
		}
		return p.sanitizeCondition(candidate), true
	}

	if strings.Count(line, "(") > strings.Count(line, ")") {
		collector.start(line, false)
		return "", false
	}

	if bracePos := strings.Index(line, "{"); bracePos > 0 {
		ifPos := strings.Index(line, "if")
		if ifPos >= 0 && bracePos > ifPos {
			part := strings.TrimSpace(line[ifPos+2 : bracePos])
			part = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(part, "("), ")"))
			return p.sanitizeCondition(part), true
		}
	}

	return p.sanitizeCondition("condition"), true
}

// loopHeader recognizes for/while headers, with the same multi-line
// collection fallback as conditionals.
func (p *CParser) loopHeader(line string, collector *conditionCollector) (string, bool) {
	isFor := strings.HasPrefix(line, "for ") || strings.HasPrefix(line, "for(")
	isWhile := strings.HasPrefix(line, "while ") || strings.HasPrefix(line, "while(")
	if !isFor && !isWhile {
		return "", false
	}

	if isFor {
		if m := p.forCondPattern.FindStringSubmatch(line); m != nil {
			return p.sanitizeCondition(strings.TrimSpace(m[1])), true
		}
		if strings.Count(line, "(") > strings.Count(line, ")") {
			collector.start(line, true)
			return "", false
		}
		forStart := strings.Index(line, "for")
		parenEnd := strings.Index(line, ")")
		if parenEnd > forStart {
			parts := strings.Split(strings.TrimSpace(line[forStart+3:parenEnd]), ";")
			if len(parts) >= 2 {
				return p.sanitizeCondition(strings.TrimSpace(parts[1])), true
			}
		}
		return p.sanitizeCondition("condition"), true
	}

	if m := p.whileCondPattern.FindStringSubmatch(line); m != nil {
		candidate := strings.TrimSpace(m[1])
		if strings.Count(candidate, "(") != strings.Count(candidate, ")") {
			if strings.Count(line, "(") > strings.Count(line, ")") {
				collector.start(line, true)
				return "", false
			}
			if inner, ok := ExtractParameterText(line, strings.Index(line, "(")); ok {
				return p.sanitizeCondition(strings.TrimSpace(inner)), true
			}
		}
		return p.sanitizeCondition(candidate), true
	}
	if strings.Count(line, "(") > strings.Count(line, ")") {
		collector.start(line, true)
		return "", false
	}
	whileStart := strings.Index(line, "while")
	parenEnd := strings.Index(line, ")")
	if parenEnd > whileStart {
		part := strings.TrimSpace(line[whileStart+5 : parenEnd])
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(part, "("), ")"))
		return p.sanitizeCondition(part), true
	}
	return p.sanitizeCondition("condition"), true
}

var (
	preprocessorTail = regexp.MustCompile(`(?i)\s*#\s*(?:if|ifdef|ifndef|elif|else|endif|define)\b.*`)
	preprocessorAny  = regexp.MustCompile(`\s*#.*`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
)

// sanitizeCondition cleans extracted condition text for diagram output:
// preprocessor tails and trailing statements are cut, unbalanced closing
// parentheses removed, whitespace collapsed. Very short leftovers fall back
// to the literal "condition".
func (p *CParser) sanitizeCondition(condition string) string {
	if condition == "" {
		return condition
	}

	s := preprocessorTail.ReplaceAllString(condition, "")
	s = preprocessorAny.ReplaceAllString(s, "")

	if brace := strings.Index(s, "{"); brace >= 0 {
		s = strings.TrimSpace(s[:brace])
	}
	s = strings.TrimSpace(strings.TrimRight(s, ";"))

	openCount := strings.Count(s, "(")
	closeCount := strings.Count(s, ")")
	if closeCount > openCount {
		toRemove := closeCount - openCount
		chars := []byte(s)
		for i := len(chars) - 1; i >= 0 && toRemove > 0; i-- {
			if chars[i] == ')' {
				chars = append(chars[:i], chars[i+1:]...)
				toRemove--
			}
		}
		s = strings.TrimSpace(string(chars))
	}

	s = strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
	if len(s) < 3 {
		return "condition"
	}
	return s
}
