package model

import (
	"encoding/json"
	"testing"
)

func TestNewDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry()

	caps := r.ListCapabilities()
	if len(caps) != 1 || caps[0] != CapabilityCodegen {
		t.Errorf("expected [codegen], got %v", caps)
	}

	endpoints := r.ListEndpoints()
	if len(endpoints) != 3 {
		t.Errorf("expected 3 endpoints, got %d", len(endpoints))
	}
}

func TestRegistryResolve(t *testing.T) {
	r := NewDefaultRegistry()

	tests := []struct {
		capability Capability
		expected   string
	}{
		{CapabilityCodegen, "claude-sonnet"},
		{Capability("unknown"), "claude-sonnet"}, // falls back to default
	}

	for _, tt := range tests {
		t.Run(string(tt.capability), func(t *testing.T) {
			got := r.Resolve(tt.capability)
			if got != tt.expected {
				t.Errorf("Resolve(%q) = %q, want %q", tt.capability, got, tt.expected)
			}
		})
	}
}

func TestRegistryGetFallbackChain(t *testing.T) {
	r := NewDefaultRegistry()

	chain := r.GetFallbackChain(CapabilityCodegen)
	want := []string{"claude-sonnet", "gpt-4o", "gemini-flash"}

	if len(chain) != len(want) {
		t.Fatalf("expected chain %v, got %v", want, chain)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Errorf("chain[%d] = %q, want %q", i, chain[i], want[i])
		}
	}

	// Unknown capability falls back to a single-entry default chain.
	chain = r.GetFallbackChain(Capability("nope"))
	if len(chain) != 1 || chain[0] != "claude-sonnet" {
		t.Errorf("expected default chain, got %v", chain)
	}
}

func TestRegistryGetEndpoint(t *testing.T) {
	r := NewDefaultRegistry()

	ep := r.GetEndpoint("gemini-flash")
	if ep == nil {
		t.Fatal("expected gemini-flash endpoint")
	}
	if ep.Provider != "gemini" {
		t.Errorf("expected provider gemini, got %q", ep.Provider)
	}
	if ep.Model == "" {
		t.Error("expected a model identifier")
	}

	if r.GetEndpoint("nope") != nil {
		t.Error("expected nil for unknown endpoint")
	}
}

func TestRegistrySetters(t *testing.T) {
	r := NewRegistry(nil, nil)

	r.SetCapability(CapabilityCodegen, &CapabilityConfig{Preferred: []string{"local"}})
	r.SetEndpoint("local", &EndpointConfig{Provider: "openai", URL: "http://localhost:8080/v1", Model: "stub"})
	r.SetDefault("local")

	if got := r.Resolve(CapabilityCodegen); got != "local" {
		t.Errorf("Resolve = %q, want local", got)
	}
	if ep := r.GetEndpoint("local"); ep == nil || ep.Model != "stub" {
		t.Errorf("unexpected endpoint %+v", ep)
	}
}

func TestRegistryMerge(t *testing.T) {
	r := NewDefaultRegistry()

	r.Merge(&RegistryConfig{
		Capabilities: map[string]*CapabilityConfig{
			"codegen": {Preferred: []string{"gpt-4o"}, Fallback: []string{"claude-sonnet"}},
		},
		Endpoints: map[string]*EndpointConfig{
			"gpt-4o": {Provider: "openai", URL: "http://proxy.internal/v1", Model: "gpt-4o"},
		},
	})

	if got := r.Resolve(CapabilityCodegen); got != "gpt-4o" {
		t.Errorf("Resolve = %q, want gpt-4o", got)
	}
	if ep := r.GetEndpoint("gpt-4o"); ep == nil || ep.URL != "http://proxy.internal/v1" {
		t.Errorf("endpoint not overlaid: %+v", ep)
	}
	// Untouched endpoints survive the merge.
	if ep := r.GetEndpoint("gemini-flash"); ep == nil {
		t.Error("expected gemini-flash to survive merge")
	}
}

func TestFromConfigNil(t *testing.T) {
	r := FromConfig(nil)
	if got := r.Resolve(CapabilityCodegen); got != "claude-sonnet" {
		t.Errorf("Resolve = %q, want claude-sonnet", got)
	}
}

func TestRegistryJSONRoundTrip(t *testing.T) {
	r := NewDefaultRegistry()

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Registry
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got := back.Resolve(CapabilityCodegen); got != "claude-sonnet" {
		t.Errorf("round-tripped Resolve = %q, want claude-sonnet", got)
	}
	if ep := back.GetEndpoint("gpt-4o"); ep == nil || ep.Provider != "openai" {
		t.Errorf("round-tripped endpoint wrong: %+v", ep)
	}
}
