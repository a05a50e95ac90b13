package cache_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/JaimeStill/kisaanseva/pkg/cache"
)

func TestConfigDefaults(t *testing.T) {
	cfg := cache.Config{}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if cfg.Enabled() {
		t.Error("config without addr should be disabled")
	}
	if cfg.KeyPrefix != "kisaanseva" {
		t.Errorf("key prefix: got %s", cfg.KeyPrefix)
	}
	if cfg.DialTimeoutDuration().Seconds() != 5 {
		t.Errorf("dial timeout: got %s", cfg.DialTimeoutDuration())
	}
}

func TestConfigEnv(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "redis:6379")
	t.Setenv("TEST_REDIS_DB", "3")

	cfg := cache.Config{}
	env := &cache.Env{Addr: "TEST_REDIS_ADDR", DB: "TEST_REDIS_DB"}
	if err := cfg.Finalize(env); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if cfg.Addr != "redis:6379" || cfg.DB != 3 {
		t.Errorf("env overrides: got addr=%s db=%d", cfg.Addr, cfg.DB)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  cache.Config
	}{
		{"negative db", cache.Config{DB: -1}},
		{"bad dial timeout", cache.Config{DialTimeout: "fast"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Finalize(nil); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := cache.New(&cache.Config{}, logger); err == nil {
		t.Error("expected error without addr")
	}

	sys, err := cache.New(&cache.Config{Addr: "localhost:6379", KeyPrefix: "ks"}, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { sys.Client().Close() })

	if sys.Ready() {
		t.Error("cache should not be ready before startup")
	}
	if got := sys.Key("refresh", "agent-1"); got != "ks:refresh:agent-1" {
		t.Errorf("Key() = %s", got)
	}
}
