// Package config provides configuration management for the post publisher.
// It handles loading and parsing YAML configuration files, overlays environment
// variables, and provides structured access to server, X OAuth and publishing settings.
package config

// SDKConfig holds the settings shared by every outbound HTTP client.
type SDKConfig struct {
	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	// Supported schemes are http, https and socks5.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url" env:"PROXY_URL"`

	// RequestLog enables debug logging of upstream request/response metadata.
	RequestLog bool `yaml:"request-log" json:"request-log"`
}
