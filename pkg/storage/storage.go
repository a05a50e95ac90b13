// Package storage keeps generated documents in a blob container. Azure Blob
// Storage backs deployed instances and an in-process store backs local runs.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"mime"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/JaimeStill/kisaanseva/pkg/lifecycle"
)

// maxKeyLength is the Azure limit on blob names.
const maxKeyLength = 1024

// System stores and retrieves documents by key.
type System interface {
	// Start creates the container once the lifecycle coordinator starts up.
	Start(lc *lifecycle.Coordinator) error
	// Upload streams body to obj.Key, replacing any existing document.
	Upload(ctx context.Context, obj Object, body io.Reader) error
	// Download opens the document at key. The caller closes Body.
	Download(ctx context.Context, key string) (*Blob, error)
	// Delete removes the document at key.
	Delete(ctx context.Context, key string) error
}

// Object describes a document being written.
type Object struct {
	Key         string
	ContentType string
	// FileName is offered to clients as the attachment name.
	FileName string
	Metadata map[string]string
}

// Blob is an open document stream.
type Blob struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	FileName      string
	Metadata      map[string]string
	LastModified  time.Time
}

type azure struct {
	client      *azblob.Client
	container   string
	concurrency int
	logger      *slog.Logger
}

// New builds the Azure-backed System. The container is created on Start.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &azure{
		client:      client,
		container:   cfg.ContainerName,
		concurrency: cfg.UploadConcurrency,
		logger:      logger.With("system", "storage", "container", cfg.ContainerName),
	}, nil
}

func (a *azure) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup(func() {
		_, err := a.client.CreateContainer(lc.Context(), a.container, nil)
		switch {
		case err == nil:
			a.logger.Info("storage container created")
		case bloberror.HasCode(err, bloberror.ContainerAlreadyExists):
			a.logger.Info("storage container ready")
		default:
			a.logger.Error("storage container unavailable", "error", err)
		}
	})

	return nil
}

func (a *azure) Upload(ctx context.Context, obj Object, body io.Reader) error {
	if err := ValidateKey(obj.Key); err != nil {
		return err
	}

	headers := &blob.HTTPHeaders{}
	if obj.ContentType != "" {
		headers.BlobContentType = &obj.ContentType
	}
	if obj.FileName != "" {
		disposition := mime.FormatMediaType("attachment", map[string]string{"filename": obj.FileName})
		headers.BlobContentDisposition = &disposition
	}

	_, err := a.client.UploadStream(ctx, a.container, obj.Key, body, &azblob.UploadStreamOptions{
		Concurrency: a.concurrency,
		HTTPHeaders: headers,
		Metadata:    toAzure(obj.Metadata),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", obj.Key, err)
	}

	return nil
}

func (a *azure) Download(ctx context.Context, key string) (*Blob, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download %s: %w", key, err)
	}

	out := &Blob{
		Body:          resp.Body,
		ContentType:   deref(resp.ContentType),
		ContentLength: deref(resp.ContentLength),
		LastModified:  deref(resp.LastModified),
		Metadata:      fromAzure(resp.Metadata),
	}
	if _, params, err := mime.ParseMediaType(deref(resp.ContentDisposition)); err == nil {
		out.FileName = params["filename"]
	}

	return out, nil
}

func (a *azure) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	if _, err := a.client.DeleteBlob(ctx, a.container, key, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete %s: %w", key, err)
	}

	return nil
}

// ValidateKey rejects keys Azure would refuse or that escape their prefix.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return ErrEmptyKey
	case len(key) > maxKeyLength,
		strings.HasPrefix(key, "/"),
		strings.ContainsRune(key, '\\'):
		return ErrInvalidKey
	}
	for seg := range strings.SplitSeq(key, "/") {
		if seg == "" || seg == "." || strings.HasPrefix(seg, "..") {
			return ErrInvalidKey
		}
	}
	return nil
}

func newClient(cfg *Config) (*azblob.Client, error) {
	opts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry:     policy.RetryOptions{MaxRetries: int32(cfg.MaxRetries)},
			Telemetry: policy.TelemetryOptions{ApplicationID: "kisaanseva"},
		},
	}

	if cfg.ConnectionString != "" {
		return azblob.NewClientFromConnectionString(cfg.ConnectionString, opts)
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("default credential: %w", err)
	}
	return azblob.NewClient(cfg.AccountURL, cred, opts)
}

func toAzure(md map[string]string) map[string]*string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]*string, len(md))
	for k, v := range md {
		out[k] = &v
	}
	return out
}

// Azure returns metadata keys with their first letter upper-cased.
func fromAzure(md map[string]*string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		if v != nil {
			out[strings.ToLower(k)] = *v
		}
	}
	return out
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func clone(md map[string]string) map[string]string {
	out := make(map[string]string, len(md))
	maps.Copy(out, md)
	return out
}
