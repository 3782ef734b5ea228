package assistant

import (
	"fmt"
	"strings"

	"github.com/harunnryd/sage/pkg/configutil"
	"github.com/harunnryd/sage/pkg/llm"
	"github.com/harunnryd/sage/pkg/providers/openai"
	"github.com/harunnryd/sage/pkg/transports"
	"github.com/harunnryd/sage/pkg/transports/httpapi"
	transportmock "github.com/harunnryd/sage/pkg/transports/mock"
	"github.com/harunnryd/sage/pkg/transports/ws"
)

// DefaultProviders returns a registry with the built-in LLM vendors and
// transports. Callers extend it with RegisterLLM/RegisterTransport before
// handing it to NewEngine.
func DefaultProviders() *ProviderRegistry {
	r := NewProviderRegistry()
	r.RegisterLLM("openai", buildOpenAI)
	r.RegisterTransport("http", buildHTTP)
	r.RegisterTransport("websocket", buildWS)
	r.RegisterTransport("mock", func(cfg Config) (transports.Transport, error) {
		return transportmock.New(), nil
	})
	return r
}

type openAISettings struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

func buildOpenAI(cfg Config) (llm.Adapter, error) {
	settings := cfg.Vendors.LLM.Settings
	if err := configutil.ValidateSettings(settings, configutil.Schema{
		Required: []string{"api_key", "model"},
		Optional: []string{"base_url"},
	}); err != nil {
		return nil, fmt.Errorf("openai settings: %w", err)
	}
	var s openAISettings
	if err := configutil.DecodeSettings(settings, &s); err != nil {
		return nil, fmt.Errorf("openai settings: %w", err)
	}
	adapter := openai.NewAdapter(s.APIKey, s.Model)
	if strings.TrimSpace(s.BaseURL) != "" {
		adapter.BaseURL = s.BaseURL
	}
	return adapter, nil
}

type httpSettings struct {
	Addr       string `mapstructure:"addr"`
	InvokePath string `mapstructure:"invoke_path"`
	StreamPath string `mapstructure:"stream_path"`
	HealthPath string `mapstructure:"health_path"`
}

func buildHTTP(cfg Config) (transports.Transport, error) {
	settings := cfg.Transports.Settings
	if err := configutil.ValidateSettings(settings, configutil.Schema{
		Optional: []string{"addr", "invoke_path", "stream_path", "health_path"},
	}); err != nil {
		return nil, fmt.Errorf("http settings: %w", err)
	}
	var s httpSettings
	if err := configutil.DecodeSettings(settings, &s); err != nil {
		return nil, fmt.Errorf("http settings: %w", err)
	}
	return httpapi.New(httpapi.Config{
		ServerAddr: s.Addr,
		InvokePath: s.InvokePath,
		StreamPath: s.StreamPath,
		HealthPath: s.HealthPath,
	}), nil
}

type wsSettings struct {
	Addr           string   `mapstructure:"addr"`
	Path           string   `mapstructure:"path"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func buildWS(cfg Config) (transports.Transport, error) {
	settings := cfg.Transports.Settings
	if err := configutil.ValidateSettings(settings, configutil.Schema{
		Optional: []string{"addr", "path", "allowed_origins"},
	}); err != nil {
		return nil, fmt.Errorf("websocket settings: %w", err)
	}
	var s wsSettings
	if err := configutil.DecodeSettings(settings, &s); err != nil {
		return nil, fmt.Errorf("websocket settings: %w", err)
	}
	return ws.New(ws.Config{
		ServerAddr:     s.Addr,
		Path:           s.Path,
		AllowedOrigins: s.AllowedOrigins,
	}), nil
}
