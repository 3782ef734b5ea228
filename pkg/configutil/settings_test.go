package configutil

import (
	"strings"
	"testing"
)

func TestDecodeSettingsMatchesLooseKeys(t *testing.T) {
	var out struct {
		APIKey  string `mapstructure:"api_key"`
		BaseURL string `mapstructure:"base_url"`
		Retries int    `mapstructure:"retries"`
	}
	input := map[string]any{
		"API-Key":  "sk-test",
		"base_url": "http://localhost",
		"retries":  "3",
	}
	if err := DecodeSettings(input, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.APIKey != "sk-test" || out.BaseURL != "http://localhost" {
		t.Fatalf("unexpected decode result: %+v", out)
	}
	if out.Retries != 3 {
		t.Fatalf("weak typing should coerce retries, got %d", out.Retries)
	}
}

func TestValidateSettings(t *testing.T) {
	schema := Schema{
		Required: []string{"api_key", "model"},
		Optional: []string{"base_url"},
	}

	err := ValidateSettings(map[string]any{"api_key": "k", "model": "m", "base_url": "u"}, schema)
	if err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}

	err = ValidateSettings(map[string]any{"api_key": " "}, schema)
	if err == nil {
		t.Fatalf("expected missing key error")
	}
	if !strings.Contains(err.Error(), "api_key") || !strings.Contains(err.Error(), "model") {
		t.Fatalf("error should name missing keys, got %v", err)
	}

	err = ValidateSettings(map[string]any{"api_key": "k", "model": "m", "extra": 1}, schema)
	if err == nil || !strings.Contains(err.Error(), "extra") {
		t.Fatalf("expected unknown key error, got %v", err)
	}

	schema.AllowUnknown = true
	if err := ValidateSettings(map[string]any{"api_key": "k", "model": "m", "extra": 1}, schema); err != nil {
		t.Fatalf("unknown keys allowed, got %v", err)
	}
}
