package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FormConfig holds the run parameters sent to POST /api/start.
// The client treats it as an opaque payload: multi-line fields (headers,
// proxies, user agents, request chain) are passed through as text and parsed
// by the worker.
type FormConfig struct {
	Method       string  `json:"method" yaml:"method,omitempty" toml:"method,omitempty"`
	URL          string  `json:"url" yaml:"url,omitempty" toml:"url,omitempty"`
	Body         string  `json:"body" yaml:"body,omitempty" toml:"body,omitempty"`
	Headers      string  `json:"headers" yaml:"headers,omitempty" toml:"headers,omitempty"`
	Proxies      string  `json:"proxies" yaml:"proxies,omitempty" toml:"proxies,omitempty"`
	UserAgents   string  `json:"user_agents" yaml:"user_agents,omitempty" toml:"user_agents,omitempty"`
	IntervalMS   int     `json:"interval_ms" yaml:"interval_ms,omitempty" toml:"interval_ms,omitempty"`
	Timeout      float64 `json:"timeout" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	Concurrency  int     `json:"concurrency" yaml:"concurrency,omitempty" toml:"concurrency,omitempty"`
	MaxRequests  int     `json:"max_requests" yaml:"max_requests,omitempty" toml:"max_requests,omitempty"`
	RequestChain string  `json:"request_chain" yaml:"request_chain,omitempty" toml:"request_chain,omitempty"`
	Mode         string  `json:"mode" yaml:"mode,omitempty" toml:"mode,omitempty"`
	ProxyMode    string  `json:"proxy_mode" yaml:"proxy_mode,omitempty" toml:"proxy_mode,omitempty"`
}

// Form defaults, matching what the worker assumes for missing fields.
const (
	DefaultMethod      = "GET"
	DefaultIntervalMS  = 1000
	DefaultTimeout     = 10.0
	DefaultConcurrency = 1
	DefaultMode        = "http"
	DefaultProxyMode   = "rotate"
)

// PresetFormat names a preset blob encoding.
type PresetFormat string

const (
	PresetJSON PresetFormat = "json"
	PresetYAML PresetFormat = "yaml"
	PresetTOML PresetFormat = "toml"
)

// ParsePresetFormat validates a user-supplied format name.
func ParsePresetFormat(s string) (PresetFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return PresetJSON, nil
	case "yaml", "yml":
		return PresetYAML, nil
	case "toml":
		return PresetTOML, nil
	default:
		return "", fmt.Errorf("unknown preset format: %s (expected json|yaml|toml)", s)
	}
}

// WithDefaults returns a copy with zero-valued fields replaced by the form defaults.
func (c FormConfig) WithDefaults() FormConfig {
	if strings.TrimSpace(c.Method) == "" {
		c.Method = DefaultMethod
	}
	if c.IntervalMS == 0 {
		c.IntervalMS = DefaultIntervalMS
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if strings.TrimSpace(c.Mode) == "" {
		c.Mode = DefaultMode
	}
	if strings.TrimSpace(c.ProxyMode) == "" {
		c.ProxyMode = DefaultProxyMode
	}
	return c
}

// Merge returns a copy of c where every non-empty field of preset overrides c.
// Empty strings and zero numbers in preset leave c untouched.
func (c FormConfig) Merge(preset FormConfig) FormConfig {
	if preset.Method != "" {
		c.Method = preset.Method
	}
	if preset.URL != "" {
		c.URL = preset.URL
	}
	if preset.Body != "" {
		c.Body = preset.Body
	}
	if preset.Headers != "" {
		c.Headers = preset.Headers
	}
	if preset.Proxies != "" {
		c.Proxies = preset.Proxies
	}
	if preset.UserAgents != "" {
		c.UserAgents = preset.UserAgents
	}
	if preset.IntervalMS != 0 {
		c.IntervalMS = preset.IntervalMS
	}
	if preset.Timeout != 0 {
		c.Timeout = preset.Timeout
	}
	if preset.Concurrency != 0 {
		c.Concurrency = preset.Concurrency
	}
	if preset.MaxRequests != 0 {
		c.MaxRequests = preset.MaxRequests
	}
	if preset.RequestChain != "" {
		c.RequestChain = preset.RequestChain
	}
	if preset.Mode != "" {
		c.Mode = preset.Mode
	}
	if preset.ProxyMode != "" {
		c.ProxyMode = preset.ProxyMode
	}
	return c
}

// DecodePreset parses a preset blob.
func DecodePreset(data []byte, format PresetFormat) (FormConfig, error) {
	var cfg FormConfig
	var err error
	switch format {
	case PresetJSON:
		err = json.Unmarshal(data, &cfg)
	case PresetYAML:
		err = yaml.Unmarshal(data, &cfg)
	case PresetTOML:
		_, err = toml.Decode(string(data), &cfg)
	default:
		return FormConfig{}, fmt.Errorf("unsupported preset format: %s", format)
	}
	if err != nil {
		return FormConfig{}, fmt.Errorf("invalid %s preset: %w", format, err)
	}
	return cfg, nil
}

// EncodePreset renders cfg as a preset blob. JSON uses a two-space indent.
func EncodePreset(cfg FormConfig, format PresetFormat) ([]byte, error) {
	switch format {
	case PresetJSON:
		return json.MarshalIndent(cfg, "", "  ")
	case PresetYAML:
		return yaml.Marshal(cfg)
	case PresetTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("encode toml preset: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported preset format: %s", format)
	}
}

// PresetFormatForPath picks a format from a file extension, defaulting to JSON.
func PresetFormatForPath(path string) PresetFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return PresetYAML
	case ".toml":
		return PresetTOML
	default:
		return PresetJSON
	}
}

// LoadPresetFile reads and decodes a preset file.
func LoadPresetFile(path string) (FormConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FormConfig{}, fmt.Errorf("read preset: %w", err)
	}
	return DecodePreset(data, PresetFormatForPath(path))
}
