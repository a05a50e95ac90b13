package storage_test

import (
	"strings"
	"testing"

	"github.com/JaimeStill/kisaanseva/pkg/storage"
)

func TestFinalizeDefaults(t *testing.T) {
	cfg := storage.Config{}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	if cfg.ContainerName != "forms" {
		t.Errorf("container_name: got %s, want forms", cfg.ContainerName)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("max_retries: got %d, want 3", cfg.MaxRetries)
	}
	if cfg.UploadConcurrency != 2 {
		t.Errorf("upload_concurrency: got %d, want 2", cfg.UploadConcurrency)
	}
	if cfg.Enabled() {
		t.Error("storage should be disabled without an endpoint")
	}
}

func TestFinalizeEnvOverrides(t *testing.T) {
	t.Setenv("TEST_CONTAINER", "scheme-forms")
	t.Setenv("TEST_ACCOUNT_URL", "https://kisaanseva.blob.core.windows.net")
	t.Setenv("TEST_CONCURRENCY", "8")

	env := &storage.Env{
		ContainerName:     "TEST_CONTAINER",
		ConnectionString:  "TEST_CONN",
		AccountURL:        "TEST_ACCOUNT_URL",
		UploadConcurrency: "TEST_CONCURRENCY",
	}

	cfg := storage.Config{}
	if err := cfg.Finalize(env); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	if cfg.ContainerName != "scheme-forms" {
		t.Errorf("container_name: got %s, want scheme-forms", cfg.ContainerName)
	}
	if cfg.AccountURL != "https://kisaanseva.blob.core.windows.net" {
		t.Errorf("account_url: got %s", cfg.AccountURL)
	}
	if cfg.UploadConcurrency != 8 {
		t.Errorf("upload_concurrency: got %d, want 8", cfg.UploadConcurrency)
	}
	if !cfg.Enabled() {
		t.Error("storage should be enabled with an account url")
	}
}

func TestFinalizeBadEnvInt(t *testing.T) {
	t.Setenv("TEST_RETRIES", "three")

	cfg := storage.Config{}
	if err := cfg.Finalize(&storage.Env{MaxRetries: "TEST_RETRIES"}); err == nil {
		t.Fatal("expected error for non-numeric max_retries")
	}
}

func TestFinalizeValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  storage.Config
		want string
	}{
		{"both endpoints", storage.Config{ConnectionString: "conn", AccountURL: "https://acct.blob.core.windows.net"}, "mutually exclusive"},
		{"negative retries", storage.Config{MaxRetries: -1}, "max_retries"},
		{"negative concurrency", storage.Config{UploadConcurrency: -2}, "upload_concurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Finalize(nil)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %s", err.Error(), tt.want)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := storage.Config{
		ContainerName:    "forms",
		ConnectionString: "base-conn",
	}

	overlay := storage.Config{ConnectionString: "overlay-conn"}
	base.Merge(&overlay)

	if base.ContainerName != "forms" {
		t.Errorf("container_name should remain forms, got %s", base.ContainerName)
	}
	if base.ConnectionString != "overlay-conn" {
		t.Errorf("connection_string: got %s, want overlay-conn", base.ConnectionString)
	}
}
