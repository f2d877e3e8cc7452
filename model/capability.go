// Package model provides capability-based model selection. Callers ask for a
// capability ("codegen") instead of a model name; the registry resolves it to
// provider endpoints with a fallback chain and tracks endpoint health so the
// LLM client can skip endpoints whose circuit is open.
package model

// Capability is a semantic model-selection key.
type Capability string

const (
	// CapabilityCodegen is workflow TypeScript generation, the structured
	// six-field contract used by the generation pipeline.
	CapabilityCodegen Capability = "codegen"
)

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	return c == CapabilityCodegen
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for
// invalid values. Configuration may still register chains under arbitrary
// capability strings; this only vets the built-in names.
func ParseCapability(s string) Capability {
	c := Capability(s)
	if c.IsValid() {
		return c
	}
	return ""
}
