package app

import (
	"errors"
	"testing"

	"github.com/yungbote/storybook-admin/internal/platform/gcp"
	"github.com/yungbote/storybook-admin/internal/platform/gcp/gcptest"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func TestClassifyStorageProviderBootstrapError(t *testing.T) {
	cases := []struct {
		name string
		src  error
		want StorageProviderBootstrapErrorCode
	}{
		{"invalid mode", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorInvalidMode, Value: "bad"}, StorageProviderBootstrapErrorInvalidMode},
		{"missing bucket", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorMissingBucket}, StorageProviderBootstrapErrorMissingBucket},
		{"missing emulator host", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorMissingEmulatorHost}, StorageProviderBootstrapErrorMissingEmulatorHost},
		{"invalid url", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorInvalidURL, Value: "nope"}, StorageProviderBootstrapErrorInvalidURL},
		{"connect failed", errors.New("dial tcp: connection refused"), StorageProviderBootstrapErrorConnectFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyStorageProviderBootstrapError(gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCS}, tc.src)
			var got *StorageProviderBootstrapError
			if !errors.As(err, &got) {
				t.Fatalf("expected StorageProviderBootstrapError, got=%T", err)
			}
			if got.Code != tc.want {
				t.Fatalf("code: want=%q got=%q", tc.want, got.Code)
			}
			if !errors.Is(err, tc.src) {
				t.Fatalf("cause not preserved")
			}
		})
	}
}

func TestResolveBucketServiceDisabled(t *testing.T) {
	got, err := resolveBucketService(newTestLogger(t), Config{
		Storage: gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeDisabled},
	})
	if err != nil {
		t.Fatalf("resolveBucketService: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no bucket when storage is disabled")
	}
}

func TestResolveBucketServiceGCSEmulatorMode(t *testing.T) {
	orig := newBucketServiceWithConfig
	t.Cleanup(func() {
		newBucketServiceWithConfig = orig
	})

	var captured gcp.ObjectStorageConfig
	expected := gcptest.NewMemoryBucket()
	newBucketServiceWithConfig = func(_ *logger.Logger, cfg gcp.ObjectStorageConfig) (gcp.BucketService, error) {
		captured = cfg
		return expected, nil
	}

	got, err := resolveBucketService(newTestLogger(t), Config{
		Storage: gcp.ObjectStorageConfig{
			Mode:         gcp.ObjectStorageModeGCSEmulator,
			EmulatorHost: "http://fake-gcs:4443",
			BucketName:   "books",
		},
	})
	if err != nil {
		t.Fatalf("resolveBucketService: %v", err)
	}
	if got != gcp.BucketService(expected) {
		t.Fatalf("bucket: expected stub bucket instance")
	}
	if captured.EmulatorHost != "http://fake-gcs:4443" {
		t.Fatalf("emulator host: want=%q got=%q", "http://fake-gcs:4443", captured.EmulatorHost)
	}
}

func TestResolveBucketServiceMissingEmulatorHost(t *testing.T) {
	_, err := resolveBucketService(newTestLogger(t), Config{
		Storage: gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCSEmulator, BucketName: "books"},
	})
	if err == nil {
		t.Fatalf("resolveBucketService: expected error, got nil")
	}
	var got *StorageProviderBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected StorageProviderBootstrapError, got=%T", err)
	}
	if got.Code != StorageProviderBootstrapErrorMissingEmulatorHost {
		t.Fatalf("code: want=%q got=%q", StorageProviderBootstrapErrorMissingEmulatorHost, got.Code)
	}
}
