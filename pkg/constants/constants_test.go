package constants

import (
	"strings"
	"testing"
)

func TestGetConfig(t *testing.T) {
	cfg, err := GetConfig()
	if err != nil {
		t.Fatalf("GetConfig() failed: %v", err)
	}
	if cfg == nil {
		t.Fatal("GetConfig() returned nil config")
	}

	cfg2, err := GetConfig()
	if err != nil {
		t.Fatalf("second GetConfig() call failed: %v", err)
	}
	if cfg != cfg2 {
		t.Error("GetConfig() should return the same instance (singleton)")
	}
}

func TestMustGetConfig(t *testing.T) {
	cfg := MustGetConfig()
	if cfg == nil {
		t.Fatal("MustGetConfig() returned nil")
	}
	if cfg.Core.DefaultThreads <= 0 {
		t.Errorf("expected positive DefaultThreads, got %d", cfg.Core.DefaultThreads)
	}
}

func TestConfigSingleton_Concurrent(t *testing.T) {
	configs := make(chan interface{}, 10)
	for i := 0; i < 10; i++ {
		go func() {
			cfg, _ := GetConfig()
			configs <- cfg
		}()
	}

	first := <-configs
	for i := 1; i < 10; i++ {
		if cfg := <-configs; cfg != first {
			t.Errorf("config %d is different from first config", i)
		}
	}
}

func TestConstants_Values(t *testing.T) {
	if DefaultThreads != 4 {
		t.Errorf("expected DefaultThreads=4, got %d", DefaultThreads)
	}
	if HTTPUserAgent == "" || !strings.Contains(HTTPUserAgent, "Mozilla") {
		t.Error("HTTPUserAgent should be a browser-like string")
	}
	if SegmentMaxAttempts != 3 {
		t.Errorf("expected SegmentMaxAttempts=3, got %d", SegmentMaxAttempts)
	}
	if SegmentBackoffCapMillis != 5000 {
		t.Errorf("expected SegmentBackoffCapMillis=5000, got %d", SegmentBackoffCapMillis)
	}
	if CompletionMinorityFraction != 0.98 {
		t.Errorf("expected CompletionMinorityFraction=0.98, got %v", CompletionMinorityFraction)
	}
}

func TestConfig_Integration(t *testing.T) {
	cfg := MustGetConfig()
	if cfg.HTTP.UserAgent != HTTPUserAgent {
		t.Errorf("config UserAgent (%s) should match constant (%s)", cfg.HTTP.UserAgent, HTTPUserAgent)
	}
}
