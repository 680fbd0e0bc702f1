package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateAuth(cfg, ve)
	validateChat(cfg, ve)
	validateHistory(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	s := cfg.Server
	if s.BaseURL == "" {
		ve.Add("server.base_url must not be empty")
	} else if u, err := url.Parse(s.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		ve.Add("server.base_url %q must be an absolute http(s) URL", s.BaseURL)
	}
	if s.ConnTimeout < 0 {
		ve.Add("server.conn_timeout must be >= 0")
	}
	if s.RespTimeout < 0 {
		ve.Add("server.resp_timeout must be >= 0")
	}
	if s.CircuitBreaker.Timeout < 0 || s.CircuitBreaker.Interval < 0 {
		ve.Add("server.circuit_breaker durations must be >= 0")
	}
	if s.RateLimit.RequestsPerMinute < 0 {
		ve.Add("server.rate_limit.requests_per_minute must be >= 0")
	}
	if s.RateLimit.Burst < 0 {
		ve.Add("server.rate_limit.burst must be >= 0")
	}
}

func validateAuth(cfg *Config, ve *ValidationError) {
	if cfg.Auth.Token == "" && cfg.Auth.TokenFile == "" {
		ve.Add("auth: one of token or token_file must be set")
	}
	if strings.HasPrefix(cfg.Auth.Token, "enc:") {
		ve.Add("auth.token is encrypted but XUNJI_CONFIG_KEY is not set")
	}
}

func validateChat(cfg *Config, ve *ValidationError) {
	if cfg.Chat.Model == "" {
		ve.Add("chat.model must not be empty")
	}
}

func validateHistory(cfg *Config, ve *ValidationError) {
	if cfg.History.Enabled && cfg.History.Path == "" {
		ve.Add("history.path is required when history is enabled")
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

var validLogFormats = map[string]bool{
	"text": true, "json": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

var validExporters = map[string]bool{
	"": true, "noop": true, "stdout": true,
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}
