// Package prompt assembles the system and user messages for workflow code
// generation. Static sections are fixed at init; per-request material is
// read from in-memory caches only, never from disk.
package prompt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chainweave/forge/docs"
	"github.com/chainweave/forge/intent"
	"github.com/chainweave/forge/nlp"
	"github.com/chainweave/forge/templates"
)

// stateKeywords flag requests that need cross-activation persistence. Intent
// keywords match on the raw form or on a shared stem, so "tracking" lands on
// "track".
var stateKeywords = []string{
	"state", "store", "persist", "remember", "track", "history", "previous", "counter",
}

var stateStems = func() map[string]struct{} {
	set := make(map[string]struct{}, len(stateKeywords)*2)
	for _, w := range stateKeywords {
		set[w] = struct{}{}
		set[nlp.Stem(w)] = struct{}{}
	}
	return set
}()

// Request is one generation attempt's prompt input. PreviousError and
// PreviousSelfReview are empty on the first attempt; on retries they are
// echoed verbatim into the Retry Context block.
type Request struct {
	UserPrompt         string
	Intent             intent.Intent
	Template           *templates.Template
	PreviousError      string
	PreviousSelfReview string
}

// Messages is an assembled system/user prompt pair.
type Messages struct {
	System string
	User   string
}

// Builder assembles generation prompts. Docs are read from the store's
// current snapshot, so a watcher reload shows up on the next Build without
// any locking here.
type Builder struct {
	matcher *templates.Matcher
	docs    *docs.Store
	logger  *slog.Logger
}

// NewBuilder wires the builder to the template catalog and the docs store.
func NewBuilder(matcher *templates.Matcher, store *docs.Store, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		matcher: matcher,
		docs:    store,
		logger:  logger.With("component", "prompt-builder"),
	}
}

// Build assembles the prompt pair for one attempt.
func (b *Builder) Build(req Request) Messages {
	return Messages{
		System: b.buildSystem(req),
		User:   buildUser(req),
	}
}

func (b *Builder) buildSystem(req Request) string {
	var sb strings.Builder
	sb.WriteString(roleSection())
	sb.WriteString("\n\n")
	sb.WriteString(hardConstraints())
	sb.WriteString("\n\n")
	sb.WriteString(apiReference())
	sb.WriteString("\n\n")
	sb.WriteString(outputFormat())

	b.writeExamples(&sb, req.Template)
	b.writeDocs(&sb, req.Template)

	if needsStateGuidance(req.Intent.Keywords) {
		sb.WriteString("\n\n")
		sb.WriteString(stateGuidanceSection())
	}
	return sb.String()
}

// writeExamples appends the template's two siblings as worked examples.
func (b *Builder) writeExamples(sb *strings.Builder, t *templates.Template) {
	if t == nil {
		return
	}
	siblings := b.matcher.Siblings(t)
	if len(siblings) == 0 {
		return
	}
	sb.WriteString("\n\n## Examples\n")
	for _, s := range siblings {
		fmt.Fprintf(sb, "\n### %s (%s, %s trigger)\n\n", s.Name, s.Category, s.TriggerType)
		sb.WriteString("```typescript\n")
		sb.WriteString(s.Source)
		sb.WriteString("```\n\nConfig:\n\n```json\n")
		cfg, err := json.MarshalIndent(s.DefaultConfig, "", "  ")
		if err != nil {
			cfg = []byte("{}")
		}
		sb.Write(cfg)
		sb.WriteString("\n```\n")
	}
}

// writeDocs appends capability docs for the template's required capabilities
// plus any supplementary guides present in the snapshot.
func (b *Builder) writeDocs(sb *strings.Builder, t *templates.Template) {
	if t == nil || b.docs == nil {
		return
	}
	snap := b.docs.Snapshot()

	wroteHeader := false
	for _, key := range t.Capabilities {
		doc, ok := snap.Capability(key)
		if !ok {
			continue
		}
		if !wroteHeader {
			sb.WriteString("\n\n## Capability Documentation\n")
			wroteHeader = true
		}
		fmt.Fprintf(sb, "\n### %s\n\n%s\n", doc.Title, doc.Markdown)
	}

	guides := snap.Guides()
	if len(guides) == 0 {
		return
	}
	sb.WriteString("\n\n## Additional Guides\n")
	for _, g := range guides {
		fmt.Fprintf(sb, "\n### %s\n\n%s\n", g.Title, g.Markdown)
	}
}

func buildUser(req Request) string {
	var sb strings.Builder

	sb.WriteString("## User Request\n\n")
	sb.WriteString(strings.TrimSpace(req.UserPrompt))
	sb.WriteString("\n\n## Parsed Intent\n\n")
	writeIntentSummary(&sb, req.Intent)

	if req.Template != nil {
		sb.WriteString("\n## Matched Template\n\n")
		fmt.Fprintf(&sb, "%s (id %d, category %s, %s trigger)\n%s\n",
			req.Template.Name, req.Template.ID, req.Template.Category,
			req.Template.TriggerType, req.Template.Summary)
	}

	if req.PreviousError != "" || req.PreviousSelfReview != "" {
		sb.WriteString("\n## Retry Context\n\n")
		if req.PreviousError != "" {
			sb.WriteString("The previous attempt failed with:\n\n")
			sb.WriteString(req.PreviousError)
			sb.WriteString("\n")
		}
		if req.PreviousSelfReview != "" {
			sb.WriteString("\nPrevious self-review:\n\n")
			sb.WriteString(req.PreviousSelfReview)
			sb.WriteString("\n")
		}
		sb.WriteString("\nFix every issue above in this attempt.\n")
	}
	return sb.String()
}

func writeIntentSummary(sb *strings.Builder, in intent.Intent) {
	fmt.Fprintf(sb, "- Trigger: %s (confidence %.2f)\n", in.TriggerType, in.Confidence)
	if in.Schedule != "" {
		fmt.Fprintf(sb, "- Schedule: %s\n", in.Schedule)
	}
	if len(in.DataSources) > 0 {
		fmt.Fprintf(sb, "- Data sources: %s\n", strings.Join(in.DataSources, ", "))
	}
	if len(in.Actions) > 0 {
		fmt.Fprintf(sb, "- Actions: %s\n", strings.Join(in.Actions, ", "))
	}
	if len(in.Chains) > 0 {
		fmt.Fprintf(sb, "- Chains: %s\n", strings.Join(in.Chains, ", "))
	}
	if len(in.Conditions) > 0 {
		fmt.Fprintf(sb, "- Conditions: %s\n", strings.Join(in.Conditions, "; "))
	}
	if in.Negated {
		sb.WriteString("- Caution: the request contains negation; honor the stated exclusions\n")
	}
}

func needsStateGuidance(keywords []string) bool {
	for _, k := range keywords {
		if _, ok := stateStems[k]; ok {
			return true
		}
		if _, ok := stateStems[nlp.Stem(k)]; ok {
			return true
		}
	}
	return false
}
