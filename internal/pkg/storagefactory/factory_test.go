package storagefactory

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"storyforge/internal/config"
)

func localConfig(t *testing.T) *config.StorageConfig {
	return &config.StorageConfig{
		Type: "local",
		Local: &config.LocalConfig{
			BasePath:      t.TempDir(),
			BaseURL:       "http://localhost:8080/storage",
			PresignExpiry: 3600,
		},
	}
}

func TestNewStorage(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.StorageConfig
		wantErr bool
	}{
		{
			name:    "valid local storage config",
			cfg:     localConfig(t),
			wantErr: false,
		},
		{
			name:    "missing local config",
			cfg:     &config.StorageConfig{Type: "local"},
			wantErr: true,
		},
		{
			name:    "missing oss config",
			cfg:     &config.StorageConfig{Type: "oss"},
			wantErr: true,
		},
		{
			name:    "unsupported storage type",
			cfg:     &config.StorageConfig{Type: "invalid"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStorage(context.Background(), tt.cfg)

			if tt.wantErr {
				if err == nil {
					t.Errorf("NewStorage() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("NewStorage() unexpected error: %v", err)
				return
			}
			if store == nil {
				t.Errorf("NewStorage() expected storage instance, got nil")
				return
			}
			if store.GetStorageType() != "local" {
				t.Errorf("GetStorageType() = %v, want local", store.GetStorageType())
			}
		})
	}
}

func TestLocalStorage_Operations(t *testing.T) {
	ctx := context.Background()
	store, err := NewStorage(ctx, localConfig(t))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	// 上传成片产物
	testKey := "merged/final_video.mp4"
	testContent := "fake video bytes"

	if _, err := store.Upload(ctx, testKey, strings.NewReader(testContent), "video/mp4"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	exists, err := store.Exists(ctx, testKey)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Errorf("Exists() = false, want true")
	}

	// 下载并核对内容
	reader, err := store.Download(ctx, testKey)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	defer reader.Close()

	downloaded, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(downloaded) != testContent {
		t.Errorf("Download() content = %v, want %v", string(downloaded), testContent)
	}

	info, err := store.GetFileInfo(ctx, testKey)
	if err != nil {
		t.Fatalf("GetFileInfo() error = %v", err)
	}
	if info.Size != int64(len(testContent)) {
		t.Errorf("GetFileInfo() Size = %v, want %v", info.Size, len(testContent))
	}

	if _, err := store.GetPresignedDownloadURL(ctx, testKey, time.Hour); err != nil {
		t.Fatalf("GetPresignedDownloadURL() error = %v", err)
	}

	// 删除后不再存在
	if err := store.Delete(ctx, testKey); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	exists, err = store.Exists(ctx, testKey)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Errorf("Exists() = true after delete, want false")
	}
}
