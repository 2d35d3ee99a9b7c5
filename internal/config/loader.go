package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/netwire/internal/bench"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config represents the top-level configuration
type Config struct {
	Environments map[string]Environment `json:"environments" yaml:"environments"`
	Requests     map[string]Request     `json:"requests" yaml:"requests"`
	Bench        map[string]Bench       `json:"bench,omitempty" yaml:"bench,omitempty"`
}

// Environment represents an environment configuration: the server a
// request goes to and how the client talks to it.
type Environment struct {
	BaseURL        string            `json:"baseUrl" yaml:"baseUrl"`
	Headers        map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Vars           map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`
	Timeout        Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	ConnectTimeout Duration          `json:"connectTimeout,omitempty" yaml:"connectTimeout,omitempty"`
	Username       string            `json:"username,omitempty" yaml:"username,omitempty"`
	Password       string            `json:"password,omitempty" yaml:"password,omitempty"`
	BufferSize     int               `json:"bufferSize,omitempty" yaml:"bufferSize,omitempty"`
}

// Request represents a request configuration
type Request struct {
	URL         string            `json:"url" yaml:"url"`
	Method      string            `json:"method" yaml:"method"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	QueryParams map[string]string `json:"queryParams,omitempty" yaml:"queryParams,omitempty"`
	Body        interface{}       `json:"body,omitempty" yaml:"body,omitempty"`
	Extract     map[string]string `json:"extract,omitempty" yaml:"extract,omitempty"`
	Schema      string            `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// Bench describes a repeated run of one request.
type Bench struct {
	Request  string  `json:"request" yaml:"request"`
	Requests int     `json:"requests" yaml:"requests"`
	Clients  int     `json:"clients,omitempty" yaml:"clients,omitempty"`
	Rate     float64 `json:"rate,omitempty" yaml:"rate,omitempty"`
	Async    bool    `json:"async,omitempty" yaml:"async,omitempty"`

	// Thresholds are pass/fail conditions such as "p95 < 500ms".
	Thresholds []string `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// Duration is a time.Duration written as "250ms", "5s" or "1 minute".
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid duration %s", string(data))
		}
		*d = Duration(n)
		return nil
	}
	v, err := parseDurationString(s)
	if err != nil {
		return fmt.Errorf("invalid duration '%s': %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := parseDurationString(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration '%s': %w", value.Line, s, err)
	}
	*d = Duration(v)
	return nil
}

// LoadConfig loads a configuration file. Files ending in .yaml or .yml are
// read as YAML, everything else as JSON.
func LoadConfig(path string) (*Config, error) {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config, err := ParseConfig(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	if err := ValidateBenchConfigurations(config); err != nil {
		return nil, fmt.Errorf("bench configuration validation failed: %w", err)
	}

	return config, nil
}

// ParseConfig decodes data in the format named by ext.
func ParseConfig(data []byte, ext string) (*Config, error) {
	var config Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	return &config, nil
}

// ValidateBenchConfigurations validates all bench configurations
func ValidateBenchConfigurations(config *Config) error {
	for name, b := range config.Bench {
		if err := ValidateBench(config, &b); err != nil {
			return fmt.Errorf("invalid bench '%s': %w", name, err)
		}
	}
	return nil
}

// ValidateBench validates a single bench configuration
func ValidateBench(config *Config, b *Bench) error {
	if b == nil {
		return fmt.Errorf("bench cannot be nil")
	}
	if b.Request == "" {
		return fmt.Errorf("bench must reference a request")
	}
	if _, ok := config.Requests[b.Request]; !ok {
		return fmt.Errorf("request not found: %s", b.Request)
	}
	if b.Requests < 1 {
		return fmt.Errorf("requests must be at least 1")
	}
	if b.Clients < 0 {
		return fmt.Errorf("clients cannot be negative")
	}
	if b.Clients > 1000 {
		return fmt.Errorf("clients cannot exceed 1000")
	}
	if b.Rate < 0 {
		return fmt.Errorf("rate cannot be negative")
	}
	if _, err := bench.ParseThresholds(b.Thresholds); err != nil {
		return err
	}
	return nil
}

// parseDurationString parses duration strings like "30s", "5m", "1h"
func parseDurationString(duration string) (time.Duration, error) {
	duration = strings.TrimSpace(duration)
	if duration == "" {
		return 0, fmt.Errorf("duration cannot be empty")
	}

	if d, err := time.ParseDuration(duration); err == nil {
		return d, nil
	}

	// Handle additional formats like "1 minute", "30 seconds"
	duration = strings.ToLower(duration)
	duration = strings.ReplaceAll(duration, " ", "")

	// longest words first so "seconds" is not left as "s" + "s"
	replacements := []struct{ word, abbrev string }{
		{"milliseconds", "ms"},
		{"millisecond", "ms"},
		{"seconds", "s"},
		{"second", "s"},
		{"minutes", "m"},
		{"minute", "m"},
		{"hours", "h"},
		{"hour", "h"},
	}
	for _, r := range replacements {
		duration = strings.ReplaceAll(duration, r.word, r.abbrev)
	}

	return time.ParseDuration(duration)
}

// ProcessEnvironment processes environment variables in a string
func ProcessEnvironment(input string, env map[string]string) string {
	result := input
	for key, value := range env {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}

// ProcessEnvironmentInMap processes environment variables in a map
func ProcessEnvironmentInMap(input map[string]string, env map[string]string) map[string]string {
	result := make(map[string]string)
	for key, value := range input {
		result[key] = ProcessEnvironment(value, env)
	}
	return result
}

// ProcessEnvironmentInValue substitutes variables in every string inside a
// decoded body value.
func ProcessEnvironmentInValue(input interface{}, env map[string]string) interface{} {
	switch v := input.(type) {
	case string:
		return ProcessEnvironment(v, env)
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			result[key] = ProcessEnvironmentInValue(value, env)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, value := range v {
			result[i] = ProcessEnvironmentInValue(value, env)
		}
		return result
	}
	return input
}

// MergeEnvironments merges two environments, with the second taking precedence
func MergeEnvironments(base, override map[string]string) map[string]string {
	result := make(map[string]string)
	for key, value := range base {
		result[key] = value
	}
	for key, value := range override {
		result[key] = value
	}
	return result
}

// GetConfigDir returns the directory containing the config file
func GetConfigDir(configPath string) string {
	return filepath.Dir(configPath)
}

// Resolved is a request with its environment applied: variables
// substituted, headers merged and the URL joined to the base URL.
type Resolved struct {
	URL         string
	Method      string
	Headers     map[string]string
	QueryParams map[string]string
	Body        interface{}
	Extract     map[string]string
	Schema      string
	Env         Environment
}

// Resolve applies environment envName to request reqName. A relative
// schema path is taken relative to dir.
func Resolve(config *Config, envName, reqName, dir string) (*Resolved, error) {
	if err := ValidateEnvironment(config, envName); err != nil {
		return nil, err
	}
	if err := ValidateRequest(config, reqName); err != nil {
		return nil, err
	}
	env := config.Environments[envName]
	req := config.Requests[reqName]

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = "GET"
	}

	url := ProcessEnvironment(req.URL, env.Vars)
	if !strings.Contains(url, "://") {
		url = strings.TrimRight(ProcessEnvironment(env.BaseURL, env.Vars), "/") + "/" + strings.TrimLeft(url, "/")
	}

	schema := req.Schema
	if schema != "" && !filepath.IsAbs(schema) {
		schema = filepath.Join(dir, schema)
	}

	return &Resolved{
		URL:         url,
		Method:      method,
		Headers:     ProcessEnvironmentInMap(MergeEnvironments(env.Headers, req.Headers), env.Vars),
		QueryParams: ProcessEnvironmentInMap(req.QueryParams, env.Vars),
		Body:        ProcessEnvironmentInValue(req.Body, env.Vars),
		Extract:     req.Extract,
		Schema:      schema,
		Env:         env,
	}, nil
}
