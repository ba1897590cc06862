/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package config loads, validates, and hot-reloads the YAML configuration
// file describing rules, the cluster plane, and logging.
package config

// TLSConfig is the listener-side TLS termination block.
type TLSConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Cert    string `mapstructure:"cert" yaml:"cert"`
	Key     string `mapstructure:"key" yaml:"key"`
}

// BackendTLSConfig is the backend-dialing TLS block.
type BackendTLSConfig struct {
	Enabled      bool `mapstructure:"enabled" yaml:"enabled"`
	IgnoreVerify bool `mapstructure:"ignore_verify" yaml:"ignore_verify"`
}

// RateLimitConfig is the per-source-IP request limiter block.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             float64 `mapstructure:"burst" yaml:"burst"`
}

// BandwidthSide is one endpoint's upload/download byte-rate pair.
type BandwidthSide struct {
	UploadPerSec   float64 `mapstructure:"upload_per_sec" yaml:"upload_per_sec"`
	DownloadPerSec float64 `mapstructure:"download_per_sec" yaml:"download_per_sec"`
}

// BandwidthLimitConfig is the bandwidth_limit block.
type BandwidthLimitConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Client  BandwidthSide `mapstructure:"client" yaml:"client"`
	Backend BandwidthSide `mapstructure:"backend" yaml:"backend"`
}

// HealthCheckConfig is the health_check block.
type HealthCheckConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	IntervalMs int    `mapstructure:"interval_ms" yaml:"interval_ms"`
	TimeoutMs  int    `mapstructure:"timeout_ms" yaml:"timeout_ms"`
	Protocol   string `mapstructure:"protocol" yaml:"protocol" validate:"omitempty,oneof=tcp http"`
	Path       string `mapstructure:"path" yaml:"path"`
}

// BackendSpec is one entry of a rule's backends list: either a bare
// "ip:port" string or an object {addr, drain} in the source YAML; decoding
// from either shape is handled by the Manager before mapstructure runs.
type BackendSpec struct {
	Addr  string `mapstructure:"addr" yaml:"addr" validate:"required"`
	Drain bool   `mapstructure:"drain" yaml:"drain"`
}

// RuleConfig is one `rules[]` entry.
type RuleConfig struct {
	Name                    string               `mapstructure:"name" yaml:"name" validate:"required"`
	Listen                  string               `mapstructure:"listen" yaml:"listen" validate:"required"`
	Backends                []BackendSpec        `mapstructure:"backends" yaml:"backends"`
	Protocol                string               `mapstructure:"protocol" yaml:"protocol" validate:"omitempty,oneof=tcp"`
	TLS                     TLSConfig            `mapstructure:"tls" yaml:"tls"`
	BackendTLS              BackendTLSConfig     `mapstructure:"backend_tls" yaml:"backend_tls"`
	RateLimit               RateLimitConfig      `mapstructure:"rate_limit" yaml:"rate_limit"`
	BandwidthLimit          BandwidthLimitConfig `mapstructure:"bandwidth_limit" yaml:"bandwidth_limit"`
	BackendConnectionLimit  uint64               `mapstructure:"backend_connection_limit" yaml:"backend_connection_limit"`
	HealthCheck             HealthCheckConfig    `mapstructure:"health_check" yaml:"health_check"`
	ProxyProtocolV2         bool                 `mapstructure:"proxy_protocol_v2" yaml:"proxy_protocol_v2"`
}

// ClusterConfig is the `cluster` block.
type ClusterConfig struct {
	Enabled  bool     `mapstructure:"enabled" yaml:"enabled"`
	BindAddr string   `mapstructure:"bind_addr" yaml:"bind_addr"`
	Peers    []string `mapstructure:"peers" yaml:"peers"`
}

// LogConfig is the `log` block.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warning error"`
}

// AdminConfig is the `admin` block: the metrics
// and healthz HTTP surface.
type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// File is the top-level YAML document.
type File struct {
	Rules   []RuleConfig  `mapstructure:"rules" yaml:"rules" validate:"dive"`
	Cluster ClusterConfig `mapstructure:"cluster" yaml:"cluster"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Admin   AdminConfig   `mapstructure:"admin" yaml:"admin"`
}
