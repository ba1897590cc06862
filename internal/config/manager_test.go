package config_test

import (
	"testing"

	"github.com/nabbar/l4lb/internal/config"
)

func baseRule(name string) config.RuleConfig {
	return config.RuleConfig{
		Name:   name,
		Listen: "0.0.0.0:8080",
		Backends: []config.BackendSpec{
			{Addr: "10.0.0.1:80"},
			{Addr: "10.0.0.2:80"},
		},
	}
}

func TestDiffAddedAndRemoved(t *testing.T) {
	old := []config.RuleConfig{baseRule("a")}
	next := []config.RuleConfig{baseRule("b")}

	d := config.Diff(old, next)
	if len(d.Added) != 1 || d.Added[0].Name != "b" {
		t.Fatalf("expected b added, got %+v", d.Added)
	}
	if len(d.Removed) != 1 || d.Removed[0].Name != "a" {
		t.Fatalf("expected a removed, got %+v", d.Removed)
	}
	if len(d.BackendsOnly) != 0 || len(d.Restart) != 0 {
		t.Fatalf("expected no BackendsOnly/Restart entries, got %+v", d)
	}
}

func TestDiffUnchangedRuleOmitted(t *testing.T) {
	r := baseRule("a")
	d := config.Diff([]config.RuleConfig{r}, []config.RuleConfig{r})

	if len(d.Added)+len(d.Removed)+len(d.BackendsOnly)+len(d.Restart) != 0 {
		t.Fatalf("expected an identical rule to produce no diff entries, got %+v", d)
	}
}

func TestDiffBackendListChangeIsBackendsOnly(t *testing.T) {
	old := baseRule("a")
	next := baseRule("a")
	next.Backends = []config.BackendSpec{{Addr: "10.0.0.3:80"}}

	d := config.Diff([]config.RuleConfig{old}, []config.RuleConfig{next})
	if len(d.BackendsOnly) != 1 || d.BackendsOnly[0].Name != "a" {
		t.Fatalf("expected a backend list change to classify as BackendsOnly, got %+v", d)
	}
	if len(d.Restart) != 0 {
		t.Fatalf("expected no Restart entries, got %+v", d.Restart)
	}
}

func TestDiffRateLimitChangeIsBackendsOnly(t *testing.T) {
	old := baseRule("a")
	next := baseRule("a")
	next.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 10, Burst: 20}

	d := config.Diff([]config.RuleConfig{old}, []config.RuleConfig{next})
	if len(d.BackendsOnly) != 1 || d.BackendsOnly[0].Name != "a" {
		t.Fatalf("expected a rate_limit change to classify as BackendsOnly, got %+v", d)
	}
	if len(d.Restart) != 0 {
		t.Fatalf("expected no Restart entries, got %+v", d.Restart)
	}
}

func TestDiffBandwidthLimitChangeIsBackendsOnly(t *testing.T) {
	old := baseRule("a")
	next := baseRule("a")
	next.BandwidthLimit = config.BandwidthLimitConfig{
		Enabled: true,
		Client:  config.BandwidthSide{UploadPerSec: 1000, DownloadPerSec: 1000},
	}

	d := config.Diff([]config.RuleConfig{old}, []config.RuleConfig{next})
	if len(d.BackendsOnly) != 1 || d.BackendsOnly[0].Name != "a" {
		t.Fatalf("expected a bandwidth_limit change to classify as BackendsOnly, got %+v", d)
	}
	if len(d.Restart) != 0 {
		t.Fatalf("expected no Restart entries, got %+v", d.Restart)
	}
}

func TestDiffBackendConnectionLimitChangeIsBackendsOnly(t *testing.T) {
	old := baseRule("a")
	next := baseRule("a")
	next.BackendConnectionLimit = 5

	d := config.Diff([]config.RuleConfig{old}, []config.RuleConfig{next})
	if len(d.BackendsOnly) != 1 || d.BackendsOnly[0].Name != "a" {
		t.Fatalf("expected a backend_connection_limit change to classify as BackendsOnly, got %+v", d)
	}
	if len(d.Restart) != 0 {
		t.Fatalf("expected no Restart entries, got %+v", d.Restart)
	}
}

func TestDiffCombinedBackendsOnlyFieldsStillBackendsOnly(t *testing.T) {
	old := baseRule("a")
	next := baseRule("a")
	next.Backends = []config.BackendSpec{{Addr: "10.0.0.9:80"}}
	next.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 5, Burst: 5}
	next.BandwidthLimit = config.BandwidthLimitConfig{Enabled: true}
	next.BackendConnectionLimit = 3

	d := config.Diff([]config.RuleConfig{old}, []config.RuleConfig{next})
	if len(d.BackendsOnly) != 1 || d.BackendsOnly[0].Name != "a" {
		t.Fatalf("expected every BackendsOnly field changing at once to still classify as BackendsOnly, got %+v", d)
	}
	if len(d.Restart) != 0 {
		t.Fatalf("expected no Restart entries, got %+v", d.Restart)
	}
}

func TestDiffListenChangeIsRestart(t *testing.T) {
	old := baseRule("a")
	next := baseRule("a")
	next.Listen = "0.0.0.0:9090"

	d := config.Diff([]config.RuleConfig{old}, []config.RuleConfig{next})
	if len(d.Restart) != 1 || d.Restart[0].Name != "a" {
		t.Fatalf("expected a listen address change to classify as Restart, got %+v", d)
	}
	if len(d.BackendsOnly) != 0 {
		t.Fatalf("expected no BackendsOnly entries, got %+v", d.BackendsOnly)
	}
}

func TestDiffTLSChangeIsRestart(t *testing.T) {
	old := baseRule("a")
	next := baseRule("a")
	next.TLS = config.TLSConfig{Enabled: true, Cert: "cert.pem", Key: "key.pem"}

	d := config.Diff([]config.RuleConfig{old}, []config.RuleConfig{next})
	if len(d.Restart) != 1 || d.Restart[0].Name != "a" {
		t.Fatalf("expected a tls change to classify as Restart, got %+v", d)
	}
}

func TestDiffHealthCheckChangeIsRestart(t *testing.T) {
	old := baseRule("a")
	next := baseRule("a")
	next.HealthCheck = config.HealthCheckConfig{Enabled: true, IntervalMs: 1000, TimeoutMs: 500}

	d := config.Diff([]config.RuleConfig{old}, []config.RuleConfig{next})
	if len(d.Restart) != 1 || d.Restart[0].Name != "a" {
		t.Fatalf("expected a health_check change to classify as Restart, got %+v", d)
	}
}

func TestDiffProxyProtocolV2ChangeIsRestart(t *testing.T) {
	old := baseRule("a")
	next := baseRule("a")
	next.ProxyProtocolV2 = true

	d := config.Diff([]config.RuleConfig{old}, []config.RuleConfig{next})
	if len(d.Restart) != 1 || d.Restart[0].Name != "a" {
		t.Fatalf("expected a proxy_protocol_v2 change to classify as Restart, got %+v", d)
	}
}

func TestDiffRestartTakesPriorityOverBackendsOnlyFields(t *testing.T) {
	old := baseRule("a")
	next := baseRule("a")
	next.Listen = "0.0.0.0:9090"
	next.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 5, Burst: 5}

	d := config.Diff([]config.RuleConfig{old}, []config.RuleConfig{next})
	if len(d.Restart) != 1 || d.Restart[0].Name != "a" {
		t.Fatalf("expected a listen change alongside a rate_limit change to still classify as Restart, got %+v", d)
	}
	if len(d.BackendsOnly) != 0 {
		t.Fatalf("expected no BackendsOnly entries, got %+v", d.BackendsOnly)
	}
}
