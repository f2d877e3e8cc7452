package llm

import (
	"net/http"
	"sync"
)

// RequestOptions carries the per-request knobs providers may honor. A
// provider ignores what its API cannot express; ReasoningEffort in
// particular only reaches providers with a native effort parameter.
type RequestOptions struct {
	// Temperature is nil for the provider default, 0 for deterministic.
	Temperature *float64

	// MaxTokens caps the response length. 0 uses the provider default.
	MaxTokens int

	// ReasoningEffort is "low", "medium" or "high"; empty omits it.
	ReasoningEffort string
}

// Provider defines the wire codec for one LLM provider.
type Provider interface {
	// Name returns the provider identifier (e.g. "anthropic", "gemini").
	Name() string

	// BuildURL constructs the full API endpoint URL. Providers that encode
	// the model in the path (gemini) use the model argument.
	BuildURL(baseURL, model string) string

	// SetHeaders adds provider-specific headers, including authentication
	// read from the provider's environment variable.
	SetHeaders(req *http.Request)

	// BuildRequestBody creates the JSON request body for the provider.
	BuildRequestBody(model string, messages []Message, opts RequestOptions) ([]byte, error)

	// ParseResponse extracts the response from provider-specific JSON.
	ParseResponse(body []byte, model string) (*Response, error)
}

// providerRegistry holds registered providers.
var (
	providerRegistry = make(map[string]Provider)
	providerMu       sync.RWMutex
)

// RegisterProvider adds a provider to the registry.
func RegisterProvider(p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[p.Name()] = p
}

// GetProvider retrieves a provider by name.
func GetProvider(name string) Provider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providerRegistry[name]
}

// ListProviders returns all registered provider names.
func ListProviders() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()

	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	return names
}
