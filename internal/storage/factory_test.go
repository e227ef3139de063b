package storage

import (
	"context"
	"testing"

	"postcraft/internal/config"
	"postcraft/internal/pkg/errors"
)

func TestNewProviderNotConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.StorageConfig
	}{
		{"empty provider", config.StorageConfig{}},
		{"localfs without root", config.StorageConfig{Provider: "localfs"}},
		{"gcs without bucket", config.StorageConfig{Provider: "gcs"}},
		{"gdrive without token", config.StorageConfig{Provider: "gdrive", DriveClientID: "id"}},
		{"gcs with bad base64", config.StorageConfig{Provider: "gcs", GCSBucket: "b", GCSCredentialsBase64: "%%%"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), tt.cfg)
			if !errors.IsCode(err, errors.CodeDestinationNotConfigured) {
				t.Errorf("expected DESTINATION_NOT_CONFIGURED, got %v", err)
			}
			if !errors.IsBatchFatal(err) {
				t.Error("expected a batch-fatal error")
			}
		})
	}
}

func TestNewProviderLocalFS(t *testing.T) {
	p, err := NewProvider(context.Background(), config.StorageConfig{
		Provider:     "localfs",
		LocalRoot:    t.TempDir(),
		LocalBaseURL: "http://localhost/files",
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.Provider() != "localfs" {
		t.Errorf("unexpected provider %s", p.Provider())
	}
	if got := p.PublicURL("a/b.jpg"); got != "http://localhost/files/a/b.jpg" {
		t.Errorf("unexpected url %q", got)
	}
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(context.Background(), config.StorageConfig{Provider: "s3"})
	if !errors.IsCode(err, errors.CodeValidation) {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}
