package validator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Patterns for the textual checks. Brace- and paren-sensitive work happens
// in the scanning helpers below; regexes only locate anchors.
var (
	importPattern        = regexp.MustCompile(`(?m)^\s*import\s+(?:type\s+)?(?:[\w$*{},\s]+?from\s+)?["']([^"']+)["']`)
	requirePattern       = regexp.MustCompile(`\brequire\s*\(\s*["']([^"']+)["']\s*\)`)
	dynamicImportPattern = regexp.MustCompile(`\bimport\s*\(\s*["']([^"']+)["']\s*\)`)

	handlerCallPattern = regexp.MustCompile(`\bhandler\s*\(`)
	thenAsyncPattern   = regexp.MustCompile(`\.then\s*\(\s*async\b`)
	asyncPrefixPattern = regexp.MustCompile(`^async\b`)
	awaitPattern       = regexp.MustCompile(`\bawait\b`)
	identPattern       = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)

	exportedMainFunc  = regexp.MustCompile(`(?m)^\s*export\s+(?:default\s+)?(?:async\s+)?function\s+main\s*\(`)
	exportedMainArrow = regexp.MustCompile(`(?m)^\s*export\s+(?:const|let|var)\s+main\s*=`)

	configSchemaPattern = regexp.MustCompile(`(?m)^\s*(?:export\s+)?const\s+configSchema\s*=\s*z\s*\.\s*object\s*\(`)
)

// allowedModule reports whether an import specifier is on the whitelist.
func allowedModule(name string) bool {
	if strings.HasPrefix(name, "./") || strings.HasPrefix(name, "../") || strings.HasPrefix(name, "/") {
		return true
	}
	switch {
	case name == "@chainlink/cre-sdk", strings.HasPrefix(name, "@chainlink/cre-sdk/"):
		return true
	case name == "zod":
		return true
	case name == "viem", strings.HasPrefix(name, "viem/"):
		return true
	}
	return false
}

// checkImports scans module-style, dynamic and require-style imports against
// the whitelist. Each offending module is reported once.
func checkImports(source string) []string {
	var errs []string
	seen := make(map[string]bool)

	for _, pattern := range []*regexp.Regexp{importPattern, dynamicImportPattern, requirePattern} {
		for _, m := range pattern.FindAllStringSubmatch(source, -1) {
			module := m[1]
			if allowedModule(module) || seen[module] {
				continue
			}
			seen[module] = true
			errs = append(errs, fmt.Sprintf("[IMPORT] module %q is not allowed; imports are limited to @chainlink/cre-sdk, zod, viem and relative paths", module))
		}
	}
	return errs
}

// checkAsync flags asynchronous handler callbacks. The callback argument of
// every handler(...) call is located by balanced-paren scanning; a bare
// identifier is resolved to its declaration in the same file.
func checkAsync(source string) []string {
	var errs []string
	seen := make(map[string]bool)
	add := func(msg string) {
		if !seen[msg] {
			seen[msg] = true
			errs = append(errs, msg)
		}
	}

	for _, loc := range handlerCallPattern.FindAllStringIndex(source, -1) {
		open := loc[1] - 1
		end := matchDelimiter(source, open, '(', ')')
		if end < 0 {
			continue
		}
		args := splitTopLevel(source[open+1 : end])
		if len(args) < 2 {
			continue
		}
		callback := lastNonEmpty(args)
		if callback == "" {
			continue
		}
		analyzeCallback(source, callback, add)
	}

	if thenAsyncPattern.MatchString(source) {
		add("[ASYNC] .then(async ...) starts asynchronous work; handler logic must stay synchronous")
	}
	return errs
}

// analyzeCallback checks one handler callback expression for async markers
// and await usage inside its body.
func analyzeCallback(source, callback string, add func(string)) {
	cb := strings.TrimSpace(callback)
	if cb == "" {
		return
	}

	// A bare identifier refers to a function declared elsewhere in the file.
	if identPattern.MatchString(cb) {
		cb = namedCallbackExpr(source, cb)
		if cb == "" {
			return
		}
	}

	if asyncPrefixPattern.MatchString(cb) {
		add("[ASYNC] handler callback is async; trigger callbacks must be synchronous")
	}
	if body := callbackBody(cb); body != "" && awaitPattern.MatchString(body) {
		add("[ASYNC] await inside handler callback; resolve capability calls with .result()")
	}
}

// namedCallbackExpr returns the expression or declaration a callback
// identifier refers to, or "" when the name is not declared in this file.
func namedCallbackExpr(source, name string) string {
	constDecl := regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:const|let|var)\s+` + regexp.QuoteMeta(name) + `\s*=\s*`)
	if m := constDecl.FindStringIndex(source); m != nil {
		return strings.TrimSpace(source[m[1]:])
	}

	funcDecl := regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:async\s+)?function\s+` + regexp.QuoteMeta(name) + `\s*\(`)
	if m := funcDecl.FindStringIndex(source); m != nil {
		return strings.TrimSpace(source[m[0]:])
	}
	return ""
}

// callbackBody extracts the body text of an arrow or function expression.
// Returns "" when no body can be located.
func callbackBody(cb string) string {
	if idx := topLevelArrow(cb); idx >= 0 {
		rest := strings.TrimSpace(cb[idx+2:])
		if strings.HasPrefix(rest, "{") {
			if end := matchDelimiter(rest, 0, '{', '}'); end > 0 {
				return rest[1:end]
			}
			return rest[1:]
		}
		// Expression body runs to the first top-level terminator.
		if end := topLevelTerminator(rest); end >= 0 {
			return rest[:end]
		}
		return rest
	}

	noAsync := strings.TrimSpace(strings.TrimPrefix(cb, "async"))
	if strings.HasPrefix(noAsync, "function") {
		if open := bodyBraceIndex(cb); open >= 0 {
			if end := matchDelimiter(cb, open, '{', '}'); end > 0 {
				return cb[open+1 : end]
			}
			return cb[open+1:]
		}
	}
	return ""
}

// checkMain requires an exported top-level main function or arrow.
func checkMain(source string) []string {
	if exportedMainFunc.MatchString(source) || exportedMainArrow.MatchString(source) {
		return nil
	}
	return []string{"[MAIN] missing exported main function; declare export async function main()"}
}

// checkZod requires a top-level configSchema bound to z.object(...).
func checkZod(source string) []string {
	if configSchemaPattern.MatchString(source) {
		return nil
	}
	return []string{"[ZOD] missing top-level configSchema declared with z.object(...)"}
}

// checkConfig parses the config document and cross-checks it against the
// capabilities the source actually uses.
func checkConfig(source, configJSON string) []string {
	var parsed any
	if err := json.Unmarshal([]byte(configJSON), &parsed); err != nil {
		return []string{fmt.Sprintf("[CONFIG] config is not valid JSON: %v", err)}
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		return []string{"[CONFIG] config must be a JSON object"}
	}

	var errs []string
	if strings.Contains(source, ".writeReport(") && !hasKeyContaining(obj, "chain", "network") {
		errs = append(errs, "[CONFIG] EVM writes need a chain key in config (e.g. chainSelector)")
	}
	if strings.Contains(source, "CronCapability") && !hasKeyContaining(obj, "schedule", "cron", "interval") {
		errs = append(errs, "[CONFIG] cron trigger needs a schedule key in config")
	}
	if strings.Contains(source, "HTTPClient") && !hasURLEntry(obj) {
		errs = append(errs, "[CONFIG] HTTP client usage needs a URL value or URL-like key in config")
	}
	return errs
}

func hasKeyContaining(obj map[string]any, subs ...string) bool {
	for key := range obj {
		lower := strings.ToLower(key)
		for _, sub := range subs {
			if strings.Contains(lower, sub) {
				return true
			}
		}
	}
	return false
}

func hasURLEntry(obj map[string]any) bool {
	for key, value := range obj {
		lower := strings.ToLower(key)
		for _, sub := range []string{"url", "endpoint", "webhook", "host", "api"} {
			if strings.Contains(lower, sub) {
				return true
			}
		}
		if s, ok := value.(string); ok {
			if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
				return true
			}
		}
	}
	return false
}

// forEachCodeByte calls fn for every byte of s that sits outside a string
// literal. Template literals count as strings in their entirety. fn returns
// false to stop the walk.
func forEachCodeByte(s string, fn func(i int, ch byte) bool) {
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

// matchDelimiter returns the index of the delimiter closing s[open], or -1.
func matchDelimiter(s string, open int, openCh, closeCh byte) int {
	depth := 0
	result := -1
	forEachCodeByte(s[open:], func(i int, ch byte) bool {
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

// splitTopLevel splits s on commas at zero bracket depth.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	forEachCodeByte(s, func(i int, ch byte) bool {
		switch ch {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
		return true
	})
	parts = append(parts, s[start:])
	return parts
}

func lastNonEmpty(parts []string) string {
	for i := len(parts) - 1; i >= 0; i-- {
		if p := strings.TrimSpace(parts[i]); p != "" {
			return p
		}
	}
	return ""
}

// topLevelArrow returns the index of the '=' of the first "=>" found at zero
// bracket depth, or -1.
func topLevelArrow(s string) int {
	depth := 0
	result := -1
	forEachCodeByte(s, func(i int, ch byte) bool {
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

// topLevelTerminator returns the index of the first ';' at zero bracket
// depth, or -1.
func topLevelTerminator(s string) int {
	depth := 0
	result := -1
	forEachCodeByte(s, func(i int, ch byte) bool {
		switch ch {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ';':
			if depth == 0 {
				result = i
				return false
			}
		}
		return true
	})
	return result
}

// bodyBraceIndex returns the index of the first '{' outside any parens,
// which for a function expression is its body opener.
func bodyBraceIndex(s string) int {
	parens := 0
	result := -1
	forEachCodeByte(s, func(i int, ch byte) bool {
		switch ch {
		case '(':
			parens++
		case ')':
			parens--
		case '{':
			if parens == 0 {
				result = i
				return false
			}
		}
		return true
	})
	return result
}

// stripComments removes // and /* */ comments while preserving string
// literals and line structure.
func stripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var quote byte
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			b.WriteByte(ch)
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
			b.WriteByte(ch)
			continue
		}
		if ch == '/' && i+1 < len(s) {
			if s[i+1] == '/' {
				for i < len(s) && s[i] != '\n' {
					i++
				}
				if i < len(s) {
					b.WriteByte('\n')
				}
				continue
			}
			if s[i+1] == '*' {
				i += 2
				for i+1 < len(s) && !(s[i] == '*' && s[i+1] == '/') {
					if s[i] == '\n' {
						b.WriteByte('\n')
					}
					i++
				}
				i++
				continue
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}
