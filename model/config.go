package model

// RegistryConfig is the models section of the service configuration. It is
// deserialized by the config package (YAML) and applied over the default
// registry, so deployments only spell out what differs.
type RegistryConfig struct {
	Capabilities map[string]*CapabilityConfig `json:"capabilities" yaml:"capabilities"`
	Endpoints    map[string]*EndpointConfig   `json:"endpoints" yaml:"endpoints"`
	Defaults     *DefaultsConfig              `json:"defaults,omitempty" yaml:"defaults,omitempty"`
}

// FromConfig builds a registry from the built-in defaults overlaid with cfg.
// A nil cfg yields the default registry unchanged.
func FromConfig(cfg *RegistryConfig) *Registry {
	r := NewDefaultRegistry()
	if cfg != nil {
		r.Merge(cfg)
	}
	return r
}

// Merge overlays cfg onto the registry. Entries present in cfg replace
// existing ones; everything else is kept.
func (r *Registry) Merge(cfg *RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capabilities == nil {
		r.capabilities = make(map[Capability]*CapabilityConfig)
	}
	for k, v := range cfg.Capabilities {
		r.capabilities[Capability(k)] = v
	}

	if r.endpoints == nil {
		r.endpoints = make(map[string]*EndpointConfig)
	}
	for k, v := range cfg.Endpoints {
		r.endpoints[k] = v
	}

	if cfg.Defaults != nil {
		r.defaults = cfg.Defaults
	}
}

// ToConfig converts a registry back to its serializable form.
func (r *Registry) ToConfig() *RegistryConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make(map[string]*CapabilityConfig, len(r.capabilities))
	for k, v := range r.capabilities {
		caps[string(k)] = v
	}

	return &RegistryConfig{
		Capabilities: caps,
		Endpoints:    r.endpoints,
		Defaults:     r.defaults,
	}
}
