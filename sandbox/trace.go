package sandbox

import (
	"regexp"
	"strconv"
	"strings"
)

// Step is one classified trace entry.
type Step struct {
	Step       int            `json:"step"`
	Action     string         `json:"action"`
	Capability string         `json:"capability"`
	Status     string         `json:"status"`
	DurationMS int64          `json:"duration,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Trace is the classified view of raw simulator output. Every non-noise line
// lands in exactly one of the three lists.
type Trace struct {
	Steps    []Step
	Errors   []string
	Warnings []string
}

const (
	// minStepLen is the meaningfulness threshold for untagged lines.
	minStepLen = 20
	// maxActionLen truncates generic step actions.
	maxActionLen = 200
)

// tracePattern maps a bracket tag to a capability and an optional extractor
// for structured data.
type tracePattern struct {
	tag        string
	capability string
	extract    func(line string) map[string]any
}

var tracePatterns = []tracePattern{
	{tag: "[TRIGGER]", capability: "trigger"},
	{tag: "[HTTP]", capability: "HTTPClient", extract: extractHTTP},
	{tag: "[HTTPClient]", capability: "HTTPClient", extract: extractHTTP},
	{tag: "[EVM]", capability: "EVMClient", extract: extractEVM},
	{tag: "[EVMClient]", capability: "EVMClient", extract: extractEVM},
	{tag: "[CONSENSUS]", capability: "consensus", extract: extractConsensus},
	{tag: "[NODE_MODE]", capability: "runInNodeMode", extract: extractNodeMode},
}

// noisePrefixes drop installer and package-manager chatter. Compared
// case-insensitively.
var noisePrefixes = []string{
	"npm",
	"yarn",
	"pnpm",
	"added ",
	"removed ",
	"changed ",
	"audited ",
	"up to date",
	"found 0 vulnerabilities",
	"packages are looking for funding",
	"run `npm fund`",
}

var (
	httpMethodURL = regexp.MustCompile(`\b(GET|POST|PUT|PATCH|DELETE|HEAD)\b\s+(https?://\S+|/\S*)`)
	httpStatus    = regexp.MustCompile(`(?i)(?:->|status(?:\s+code)?[:\s])\s*(\d{3})\b`)
	evmCall       = regexp.MustCompile(`(?i)\b(balanceAt|writeReport|logTrigger|callContract|read|write)\b`)
	consensusAgg  = regexp.MustCompile(`(?i)\b(median|mean|mode|majority|identical)\b`)
	nodeMode      = regexp.MustCompile(`(?i)\b(\w+)\s+mode\b`)
	durationMS    = regexp.MustCompile(`(?i)\bduration[:\s]+(\d+)\s*ms\b`)
	tookSeconds   = regexp.MustCompile(`(?i)\btook[:\s]+([0-9.]+)\s*s(?:econds?)?\b`)
)

// ParseTrace classifies raw CLI output line by line. Blank, noise and
// too-short lines are dropped; everything else becomes exactly one step,
// error or warning.
func ParseTrace(raw string) Trace {
	var tr Trace
	stepNo := 0

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if p, rest, ok := matchPattern(line); ok {
			stepNo++
			tr.Steps = append(tr.Steps, patternStep(stepNo, p, rest, line))
			continue
		}

		switch {
		case hasErrorPrefix(line):
			tr.Errors = append(tr.Errors, line)
		case strings.HasPrefix(line, "WARNING"):
			tr.Warnings = append(tr.Warnings, line)
		case isNoise(line):
		case len(line) >= minStepLen:
			stepNo++
			tr.Steps = append(tr.Steps, genericStep(stepNo, line))
		}
	}
	return tr
}

func matchPattern(line string) (tracePattern, string, bool) {
	for _, p := range tracePatterns {
		if strings.HasPrefix(line, p.tag) {
			return p, strings.TrimSpace(line[len(p.tag):]), true
		}
	}
	return tracePattern{}, "", false
}

func hasErrorPrefix(line string) bool {
	return strings.HasPrefix(line, "ERROR") ||
		strings.HasPrefix(line, "FATAL") ||
		strings.HasPrefix(line, "FAILED")
}

func isNoise(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range noisePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func patternStep(n int, p tracePattern, rest, line string) Step {
	s := Step{
		Step:       n,
		Action:     rest,
		Capability: p.capability,
		Status:     lineStatus(line),
		DurationMS: lineDuration(line),
	}
	if p.extract != nil {
		s.Data = p.extract(line)
	}
	return s
}

func genericStep(n int, line string) Step {
	action := line
	if len(action) > maxActionLen {
		action = action[:maxActionLen]
	}
	return Step{
		Step:       n,
		Action:     action,
		Capability: "unknown",
		Status:     lineStatus(line),
		DurationMS: lineDuration(line),
	}
}

func lineStatus(line string) string {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "error"):
		return "error"
	case strings.Contains(lower, "skipped"):
		return "skipped"
	default:
		return "success"
	}
}

func lineDuration(line string) int64 {
	if m := durationMS.FindStringSubmatch(line); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			return n
		}
	}
	if m := tookSeconds.FindStringSubmatch(line); m != nil {
		sec, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return int64(sec * 1000)
		}
	}
	return 0
}

func extractHTTP(line string) map[string]any {
	data := map[string]any{}
	if m := httpMethodURL.FindStringSubmatch(line); m != nil {
		data["method"] = m[1]
		data["url"] = m[2]
	}
	if m := httpStatus.FindStringSubmatch(line); m != nil {
		code, err := strconv.Atoi(m[1])
		if err == nil {
			data["statusCode"] = code
		}
	}
	if len(data) == 0 {
		return nil
	}
	return data
}

func extractEVM(line string) map[string]any {
	if m := evmCall.FindStringSubmatch(line); m != nil {
		return map[string]any{"call": m[1]}
	}
	return nil
}

func extractConsensus(line string) map[string]any {
	if m := consensusAgg.FindStringSubmatch(line); m != nil {
		return map[string]any{"aggregation": strings.ToLower(m[1])}
	}
	return nil
}

func extractNodeMode(line string) map[string]any {
	if m := nodeMode.FindStringSubmatch(line); m != nil {
		return map[string]any{"mode": strings.ToLower(m[1])}
	}
	return nil
}
