package bandwidth_test

import (
	"testing"

	"github.com/nabbar/l4lb/internal/bandwidth"
)

func TestDisabledManagerReturnsNoBuckets(t *testing.T) {
	m := bandwidth.NewManager(bandwidth.Config{Enabled: false, ClientUploadPerSec: 1000})
	if b := m.ClientUpload("1.2.3.4"); b != nil {
		t.Fatal("expected nil bucket from a disabled manager")
	}
}

func TestZeroRateDirectionReturnsNoBucket(t *testing.T) {
	m := bandwidth.NewManager(bandwidth.Config{Enabled: true, ClientUploadPerSec: 1000})
	if b := m.ClientDownload("1.2.3.4"); b != nil {
		t.Fatal("expected nil bucket for a direction with rate 0")
	}
	if b := m.ClientUpload("1.2.3.4"); b == nil {
		t.Fatal("expected a bucket for the configured direction")
	}
}

func TestBucketsAreKeyedIndependently(t *testing.T) {
	m := bandwidth.NewManager(bandwidth.Config{Enabled: true, ClientUploadPerSec: 1000})
	a := m.ClientUpload("1.1.1.1")
	b := m.ClientUpload("2.2.2.2")
	if a == b {
		t.Fatal("expected distinct buckets for distinct keys")
	}
	if m.ClientUpload("1.1.1.1") != a {
		t.Fatal("expected the same bucket to be returned for the same key")
	}
}

func TestBackendBucketsAreSeparateFromClientBuckets(t *testing.T) {
	m := bandwidth.NewManager(bandwidth.Config{
		Enabled:               true,
		ClientUploadPerSec:    1000,
		BackendUploadPerSec:   2000,
		ClientDownloadPerSec:  1000,
		BackendDownloadPerSec: 2000,
	})
	if m.ClientUpload("k") == m.BackendUpload("k") {
		t.Fatal("expected client and backend buckets to be distinct even for the same key")
	}
}
