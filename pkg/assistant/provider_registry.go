package assistant

import (
	"fmt"
	"strings"

	"github.com/harunnryd/sage/pkg/llm"
	"github.com/harunnryd/sage/pkg/transports"
)

type LLMFactory func(cfg Config) (llm.Adapter, error)
type TransportFactory func(cfg Config) (transports.Transport, error)

// ProviderRegistry maps provider names from config to concrete factories.
// Register everything before NewEngine; lookups are read-only afterwards.
type ProviderRegistry struct {
	llm        map[string]LLMFactory
	transports map[string]TransportFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		llm:        make(map[string]LLMFactory),
		transports: make(map[string]TransportFactory),
	}
}

func (r *ProviderRegistry) RegisterLLM(name string, factory LLMFactory) {
	r.llm[normalizeName(name)] = factory
}

func (r *ProviderRegistry) RegisterTransport(name string, factory TransportFactory) {
	r.transports[normalizeName(name)] = factory
}

func (r *ProviderRegistry) BuildLLM(provider string, cfg Config) (llm.Adapter, error) {
	fn := r.llm[normalizeName(provider)]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildTransport(provider string, cfg Config) (transports.Transport, error) {
	fn := r.transports[normalizeName(provider)]
	if fn == nil {
		return nil, fmt.Errorf("transport not registered: %s", provider)
	}
	return fn(cfg)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
