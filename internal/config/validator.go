package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Path    string
	Message string
}

// Error returns the error message
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

var validMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}

// ValidateConfig validates the configuration
func ValidateConfig(config *Config) []ValidationError {
	var errors []ValidationError

	if len(config.Environments) == 0 {
		errors = append(errors, ValidationError{
			Path:    "environments",
			Message: "at least one environment is required",
		})
	}

	for name, env := range config.Environments {
		errors = append(errors, validateEnvironment(name, env)...)
	}

	if len(config.Requests) == 0 {
		errors = append(errors, ValidationError{
			Path:    "requests",
			Message: "at least one request is required",
		})
	}

	for name, req := range config.Requests {
		errors = append(errors, validateRequest(name, req)...)
	}

	for name, b := range config.Bench {
		if err := ValidateBench(config, &b); err != nil {
			errors = append(errors, ValidationError{
				Path:    fmt.Sprintf("bench.%s", name),
				Message: err.Error(),
			})
		}
	}

	return errors
}

func validateRequest(name string, req Request) []ValidationError {
	var errs []ValidationError
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Path: "requests." + name + "." + field, Message: msg})
	}

	if req.URL == "" {
		add("url", "url is required")
	}
	switch method := strings.ToUpper(req.Method); {
	case method == "":
		add("method", "method is required")
	case !slices.Contains(validMethods, method):
		add("method", "invalid method: "+req.Method)
	}
	for key, path := range req.Extract {
		if !strings.HasPrefix(path, "$") {
			add("extract."+key, fmt.Sprintf("extract path must start with $: %q", path))
		}
	}
	return errs
}

func validateEnvironment(name string, env Environment) []ValidationError {
	var errors []ValidationError
	path := func(field string) string {
		return fmt.Sprintf("environments.%s.%s", name, field)
	}

	if env.BaseURL == "" {
		errors = append(errors, ValidationError{Path: path("baseUrl"), Message: "baseUrl is required"})
	} else if !strings.Contains(env.BaseURL, "{{") {
		u, err := url.Parse(env.BaseURL)
		switch {
		case err != nil:
			errors = append(errors, ValidationError{Path: path("baseUrl"), Message: err.Error()})
		case u.Scheme != "http":
			errors = append(errors, ValidationError{
				Path:    path("baseUrl"),
				Message: fmt.Sprintf("unsupported scheme %q, only http is supported", u.Scheme),
			})
		}
	}

	if env.Timeout < 0 {
		errors = append(errors, ValidationError{Path: path("timeout"), Message: "timeout cannot be negative"})
	}
	if env.ConnectTimeout < 0 {
		errors = append(errors, ValidationError{Path: path("connectTimeout"), Message: "connectTimeout cannot be negative"})
	}
	if env.BufferSize < 0 {
		errors = append(errors, ValidationError{Path: path("bufferSize"), Message: "bufferSize cannot be negative"})
	}
	if env.Password != "" && env.Username == "" {
		errors = append(errors, ValidationError{Path: path("password"), Message: "password set without username"})
	}
	return errors
}

// ValidateEnvironment validates that an environment exists
func ValidateEnvironment(config *Config, envName string) error {
	if _, ok := config.Environments[envName]; !ok {
		return fmt.Errorf("environment not found: %s", envName)
	}
	return nil
}

// ValidateRequest validates that a request exists
func ValidateRequest(config *Config, reqName string) error {
	if _, ok := config.Requests[reqName]; !ok {
		return fmt.Errorf("request not found: %s", reqName)
	}
	return nil
}
