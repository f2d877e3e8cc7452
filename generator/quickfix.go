package generator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// FixResult is the outcome of a quick-fix pass. Fixes is empty when the
// source needed nothing.
type FixResult struct {
	Code  string
	Fixes []string
}

// forbiddenModules are packages LLMs habitually reach for that can never
// run inside the sandbox. Removing their import is always safe: the
// validator would reject the source anyway, and the usual mistake is an
// unused reflex import.
var forbiddenModules = map[string]bool{
	"axios":         true,
	"node-fetch":    true,
	"undici":        true,
	"got":           true,
	"request":       true,
	"fs":            true,
	"fs/promises":   true,
	"path":          true,
	"os":            true,
	"http":          true,
	"https":         true,
	"net":           true,
	"crypto":        true,
	"child_process": true,
	"dotenv":        true,
	"ethers":        true,
	"web3":          true,
}

// Statement-level import forms. \s inside the class covers newlines, so
// multi-line named imports are captured whole.
var (
	importFromStmt   = regexp.MustCompile(`(?m)^[ \t]*import\s+(?:type\s+)?[\w$*{},\s]*?from\s+["']([^"']+)["'][ \t]*;?[ \t]*\r?\n?`)
	importBareStmt   = regexp.MustCompile(`(?m)^[ \t]*import\s+["']([^"']+)["'][ \t]*;?[ \t]*\r?\n?`)
	requireStmt      = regexp.MustCompile(`(?m)^[ \t]*(?:const|let|var)\s+[\w$*{},:\s]*?=\s*require\s*\(\s*["']([^"']+)["']\s*\)[ \t]*;?[ \t]*\r?\n?`)
	quickHandlerCall = regexp.MustCompile(`\bhandler\s*\(`)
	quickIdent       = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)
	asyncMarker      = regexp.MustCompile(`^async[\s(]`)
	awaitToken       = regexp.MustCompile(`\bawait\s+`)
	unexportedMain   = regexp.MustCompile(`(?m)^([ \t]*)((?:async\s+)?function\s+main\s*\()`)
	unexportedArrow  = regexp.MustCompile(`(?m)^([ \t]*)((?:const|let|var)\s+main\s*=)`)
	anyExportedMain  = regexp.MustCompile(`(?m)^\s*export\s+(?:default\s+)?(?:async\s+)?function\s+main\s*\(|^\s*export\s+(?:const|let|var)\s+main\s*=`)
)

// QuickFix applies the deterministic repairs: forbidden imports are removed,
// async handler callbacks are made synchronous, an unexported main gains its
// export. Identical input always yields identical output; no rewrite ever
// adds an import or touches code outside handler callbacks.
func QuickFix(source string) FixResult {
	code, fixes := removeForbiddenImports(source)

	code, asyncFixes := fixAsyncHandlers(code)
	fixes = append(fixes, asyncFixes...)

	code, exportFixes := exportMain(code)
	fixes = append(fixes, exportFixes...)

	return FixResult{Code: code, Fixes: fixes}
}

func removeForbiddenImports(source string) (string, []string) {
	var fixes []string
	code := source

	for _, pattern := range []*regexp.Regexp{importFromStmt, importBareStmt, requireStmt} {
		code = pattern.ReplaceAllStringFunc(code, func(stmt string) string {
			module := pattern.FindStringSubmatch(stmt)[1]
			if !isForbiddenModule(module) {
				return stmt
			}
			fixes = append(fixes, fmt.Sprintf("removed forbidden import %q", module))
			return ""
		})
	}
	return code, fixes
}

func isForbiddenModule(name string) bool {
	return forbiddenModules[strings.TrimPrefix(name, "node:")]
}

// edit is one span replacement, applied back-to-front so earlier offsets
// stay valid.
type edit struct {
	start, end int
	text       string
	fix        string
}

func applyEdits(source string, edits []edit) (string, []string) {
	if len(edits) == 0 {
		return source, nil
	}

	// Deduplicate by span; two handler calls naming the same callback must
	// not double-strip its declaration.
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })
	dedup := edits[:1]
	for _, e := range edits[1:] {
		if e.start == dedup[len(dedup)-1].start {
			continue
		}
		dedup = append(dedup, e)
	}

	var fixes []string
	code := source
	for i := len(dedup) - 1; i >= 0; i-- {
		e := dedup[i]
		code = code[:e.start] + e.text + code[e.end:]
		if e.fix != "" {
			fixes = append(fixes, e.fix)
		}
	}
	// Edits were applied in reverse; report fixes in source order.
	for i, j := 0, len(fixes)-1; i < j; i, j = i+1, j-1 {
		fixes[i], fixes[j] = fixes[j], fixes[i]
	}
	return code, fixes
}

// fixAsyncHandlers locates every handler(...) callback and rewrites it to be
// synchronous: the async marker is dropped and await tokens inside the
// callback body are removed. Code outside handler callbacks is never
// touched.
func fixAsyncHandlers(source string) (string, []string) {
	var edits []edit

	for _, loc := range quickHandlerCall.FindAllStringIndex(source, -1) {
		open := loc[1] - 1
		closing := scanDelimiter(source, open, '(', ')')
		if closing < 0 {
			continue
		}

		argStart, argEnd := lastArgSpan(source, open+1, closing)
		if argStart < 0 {
			continue
		}

		cb := strings.TrimSpace(source[argStart:argEnd])
		if cb == "" {
			continue
		}

		if quickIdent.MatchString(cb) {
			edits = append(edits, namedCallbackEdits(source, cb)...)
			continue
		}
		edits = append(edits, callbackEdits(source, argStart, argEnd, "handler callback")...)
	}

	return applyEdits(source, edits)
}

// lastArgSpan returns the absolute span of the last non-empty top-level
// argument between parens, or (-1, -1).
func lastArgSpan(source string, from, to int) (int, int) {
	depth := 0
	start := from
	spans := make([][2]int, 0, 4)
	scanCode(source[from:to], func(i int, ch byte) bool {
		switch ch {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				spans = append(spans, [2]int{start, from + i})
				start = from + i + 1
			}
		}
		return true
	})
	spans = append(spans, [2]int{start, to})

	for i := len(spans) - 1; i >= 0; i-- {
		if strings.TrimSpace(source[spans[i][0]:spans[i][1]]) != "" {
			return spans[i][0], spans[i][1]
		}
	}
	return -1, -1
}

// namedCallbackEdits resolves a callback identifier to its declaration and
// produces the edits for that declaration site.
func namedCallbackEdits(source, name string) []edit {
	label := fmt.Sprintf("handler callback %q", name)

	constDecl := regexp.MustCompile(`(?m)^[ \t]*(?:export\s+)?(?:const|let|var)\s+` + regexp.QuoteMeta(name) + `\s*=\s*`)
	if m := constDecl.FindStringIndex(source); m != nil {
		return callbackEdits(source, m[1], len(source), label)
	}

	funcDecl := regexp.MustCompile(`(?m)^[ \t]*(?:export\s+)?(async\s+)?function\s+` + regexp.QuoteMeta(name) + `\s*\(`)
	if m := funcDecl.FindStringSubmatchIndex(source); m != nil {
		return functionEdits(source, m, label)
	}
	return nil
}

// callbackEdits rewrites an arrow or function expression starting at start.
// end caps the search; for declarations it is len(source) and the real end
// is found by brace matching.
func callbackEdits(source string, start, end int, label string) []edit {
	expr := source[start:end]
	trimmed := strings.TrimSpace(expr)
	lead := start + (len(expr) - len(strings.TrimLeft(expr, " \t\r\n")))

	var edits []edit
	if asyncMarker.MatchString(trimmed) {
		rest := strings.TrimLeft(trimmed[len("async"):], " \t\r\n")
		cut := len(trimmed) - len(rest)
		edits = append(edits, edit{
			start: lead,
			end:   lead + cut,
			fix:   fmt.Sprintf("stripped async marker from %s", label),
		})
		lead += cut
	}

	bodyStart, bodyEnd := expressionBodySpan(source, lead, end)
	if bodyStart >= 0 {
		edits = append(edits, awaitEdits(source, bodyStart, bodyEnd, label)...)
	}
	return edits
}

// functionEdits rewrites an `[async] function name(...) {...}` declaration
// located by the regex match m (group 1 is the async marker).
func functionEdits(source string, m []int, label string) []edit {
	var edits []edit
	if m[2] >= 0 {
		edits = append(edits, edit{
			start: m[2],
			end:   m[3],
			fix:   fmt.Sprintf("stripped async marker from %s", label),
		})
	}

	// m[1] points just past the opening paren of the parameter list.
	paramsClose := scanDelimiter(source, m[1]-1, '(', ')')
	if paramsClose < 0 {
		return edits
	}
	bodyOpen := strings.IndexByte(source[paramsClose:], '{')
	if bodyOpen < 0 {
		return edits
	}
	bodyOpen += paramsClose
	bodyClose := scanDelimiter(source, bodyOpen, '{', '}')
	if bodyClose < 0 {
		bodyClose = len(source)
	}
	edits = append(edits, awaitEdits(source, bodyOpen+1, bodyClose, label)...)
	return edits
}

// expressionBodySpan finds the body of an arrow or function expression that
// starts at from (async already stripped from consideration). Returns
// (-1, -1) when no body is found.
func expressionBodySpan(source string, from, limit int) (int, int) {
	region := source[from:limit]

	if strings.HasPrefix(strings.TrimLeft(region, " \t\r\n"), "function") {
		// Skip the parameter list first; destructured params contain braces.
		paramsOpen := strings.IndexByte(region, '(')
		if paramsOpen < 0 {
			return -1, -1
		}
		paramsClose := scanDelimiter(source, from+paramsOpen, '(', ')')
		if paramsClose < 0 {
			return -1, -1
		}
		open := strings.IndexByte(source[paramsClose:limit], '{')
		if open < 0 {
			return -1, -1
		}
		abs := paramsClose + open
		closing := scanDelimiter(source, abs, '{', '}')
		if closing < 0 {
			closing = limit
		}
		return abs + 1, closing
	}

	arrow := scanArrow(region)
	if arrow < 0 {
		return -1, -1
	}
	rest := from + arrow + 2
	tail := strings.TrimLeft(source[rest:limit], " \t\r\n")
	if tail == "" {
		return -1, -1
	}
	restStart := rest + strings.Index(source[rest:limit], tail)
	if strings.HasPrefix(tail, "{") {
		closing := scanDelimiter(source, restStart, '{', '}')
		if closing < 0 {
			closing = limit
		}
		return restStart + 1, closing
	}
	// Expression body: runs to the first top-level terminator so edits can
	// never leak into code that follows the declaration.
	return restStart, exprEnd(source, restStart, limit)
}

// exprEnd finds the end of a single expression starting at from: the first
// ';', ',' or newline at bracket depth zero, or limit.
func exprEnd(source string, from, limit int) int {
	end := limit
	depth := 0
	scanCode(source[from:limit], func(i int, ch byte) bool {
		switch ch {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth < 0 {
				end = from + i
				return false
			}
		case ';', ',', '\n':
			if depth == 0 {
				end = from + i
				return false
			}
		}
		return true
	})
	return end
}

func awaitEdits(source string, from, to int, label string) []edit {
	var edits []edit
	for _, loc := range awaitToken.FindAllStringIndex(source[from:to], -1) {
		edits = append(edits, edit{
			start: from + loc[0],
			end:   from + loc[1],
			fix:   fmt.Sprintf("removed await inside %s", label),
		})
	}
	return edits
}

// exportMain adds the export keyword to a top-level main that lacks it.
func exportMain(source string) (string, []string) {
	if anyExportedMain.MatchString(source) {
		return source, nil
	}

	if m := unexportedMain.FindStringSubmatchIndex(source); m != nil {
		code := source[:m[3]] + "export " + source[m[3]:]
		return code, []string{"exported main function"}
	}
	if m := unexportedArrow.FindStringSubmatchIndex(source); m != nil {
		code := source[:m[3]] + "export " + source[m[3]:]
		return code, []string{"exported main function"}
	}
	return source, nil
}

// scanCode walks s byte-by-byte skipping string literals, calling fn for
// every code byte until it returns false.
func scanCode(s string, fn func(i int, ch byte) bool) {
	var quote byte
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if escaped {
				escaped = false
				continue
			}
			if ch == '\\' {
				escaped = true
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}
		if ch == '\'' || ch == '"' || ch == '`' {
			quote = ch
			continue
		}
		if !fn(i, ch) {
			return
		}
	}
}

// scanDelimiter returns the index of the delimiter closing s[open], or -1.
func scanDelimiter(s string, open int, openCh, closeCh byte) int {
	depth := 0
	result := -1
	scanCode(s[open:], func(i int, ch byte) bool {
		switch ch {
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				result = open + i
				return false
			}
		}
		return true
	})
	return result
}

// scanArrow returns the index of the '=' of the first top-level "=>", or -1.
func scanArrow(s string) int {
	depth := 0
	result := -1
	scanCode(s, func(i int, ch byte) bool {
		switch ch {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '=':
			if depth == 0 && i+1 < len(s) && s[i+1] == '>' {
				result = i
				return false
			}
		}
		return true
	})
	return result
}
