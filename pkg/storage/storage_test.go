package storage_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/JaimeStill/kisaanseva/pkg/storage"
)

const azuriteConnString = "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

func azurite(t *testing.T) storage.System {
	t.Helper()
	cfg := &storage.Config{ConnectionString: azuriteConnString}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	sys, err := storage.New(cfg, slog.Default())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return sys
}

func TestNewInvalidConnectionString(t *testing.T) {
	cfg := &storage.Config{ContainerName: "forms", ConnectionString: "not-a-connection-string"}
	if _, err := storage.New(cfg, slog.Default()); err == nil {
		t.Fatal("expected error for invalid connection string")
	}
}

func TestMemoryDocument(t *testing.T) {
	ctx := context.Background()
	sys := storage.NewMemory()
	obj := storage.Object{
		Key:         "forms/KSXR7BM2QAL/3f2b8c1e/KSXR7BM2QAL_PM-KISAN_20261015.pdf",
		ContentType: "application/pdf",
		FileName:    "KSXR7BM2QAL_PM-KISAN_20261015.pdf",
		Metadata:    map[string]string{"farmer_id": "KSXR7BM2QAL"},
	}

	if err := sys.Upload(ctx, obj, strings.NewReader("%PDF-1.7")); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	obj.Metadata["farmer_id"] = "changed"

	blob, err := sys.Download(ctx, obj.Key)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	defer blob.Body.Close()

	data, _ := io.ReadAll(blob.Body)
	if string(data) != "%PDF-1.7" {
		t.Errorf("body = %q", data)
	}
	if blob.ContentLength != int64(len(data)) {
		t.Errorf("content length = %d, want %d", blob.ContentLength, len(data))
	}
	if blob.FileName != obj.FileName {
		t.Errorf("file name = %q", blob.FileName)
	}
	if blob.Metadata["farmer_id"] != "KSXR7BM2QAL" {
		t.Errorf("metadata not copied on upload: %v", blob.Metadata)
	}
	if blob.LastModified.IsZero() {
		t.Error("last modified not set")
	}
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	sys := storage.NewMemory()
	key := "forms/a/b.pdf"

	if err := sys.Upload(ctx, storage.Object{Key: key}, strings.NewReader("x")); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if err := sys.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := sys.Download(ctx, key); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Download() after delete error = %v, want ErrNotFound", err)
	}
	if err := sys.Delete(ctx, key); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want error
	}{
		{"nested", "forms/KSXR7BM2QAL/s1/form.pdf", nil},
		{"dotted file", "forms/a/b.v2.pdf", nil},
		{"empty", "", storage.ErrEmptyKey},
		{"traversal", "forms/../secrets/key", storage.ErrInvalidKey},
		{"dot-dot prefix", "forms/..hidden/file.pdf", storage.ErrInvalidKey},
		{"current dir", "forms/./file.pdf", storage.ErrInvalidKey},
		{"absolute", "/forms/file.pdf", storage.ErrInvalidKey},
		{"empty segment", "forms//file.pdf", storage.ErrInvalidKey},
		{"backslash", `forms\file.pdf`, storage.ErrInvalidKey},
		{"too long", strings.Repeat("a", 1025), storage.ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := storage.ValidateKey(tt.key); !errors.Is(err, tt.want) {
				t.Errorf("ValidateKey() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestInvalidKeyRejectedBeforeIO(t *testing.T) {
	ctx := context.Background()
	systems := map[string]storage.System{
		"azure":  azurite(t),
		"memory": storage.NewMemory(),
	}

	for name, sys := range systems {
		t.Run(name, func(t *testing.T) {
			if err := sys.Upload(ctx, storage.Object{Key: "a/../b"}, strings.NewReader("")); !errors.Is(err, storage.ErrInvalidKey) {
				t.Errorf("Upload() error = %v", err)
			}
			if _, err := sys.Download(ctx, ""); !errors.Is(err, storage.ErrEmptyKey) {
				t.Errorf("Download() error = %v", err)
			}
			if err := sys.Delete(ctx, "/abs"); !errors.Is(err, storage.ErrInvalidKey) {
				t.Errorf("Delete() error = %v", err)
			}
		})
	}
}
