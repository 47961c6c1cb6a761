package artifacts

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestObjectKey(t *testing.T) {
	if got := ObjectKey("t1", "d1"); got != "t1/d1.tar.gz" {
		t.Errorf("ObjectKey() = %q", got)
	}
}

func TestLocalDevice_Upload(t *testing.T) {
	src := filepath.Join(t.TempDir(), "code.tar.gz")
	if err := os.WriteFile(src, []byte("archive"), 0o644); err != nil {
		t.Fatal(err)
	}

	root := t.TempDir()
	dev := NewLocalDevice(root)

	got, err := dev.Upload(context.Background(), "t1", "d1", src)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if want := filepath.Join(root, "t1", "d1.tar.gz"); got != want {
		t.Errorf("path = %q, want %q", got, want)
	}
	data, err := os.ReadFile(got)
	if err != nil || string(data) != "archive" {
		t.Errorf("copied content = %q, err = %v", data, err)
	}
	if dev.DeviceType() != DeviceLocal {
		t.Errorf("DeviceType() = %q", dev.DeviceType())
	}
}

func TestLocalDevice_MissingSource(t *testing.T) {
	dev := NewLocalDevice(t.TempDir())
	if _, err := dev.Upload(context.Background(), "t1", "d1", "/nonexistent/code.tar.gz"); err == nil {
		t.Error("expected error for missing source")
	}
}

func TestS3Device_Upload(t *testing.T) {
	var (
		mu      sync.Mutex
		method  string
		reqPath string
		body    []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method = r.Method
		reqPath = r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	dev, err := NewS3Device(S3Config{
		Endpoint:  u.Host,
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "functions",
	})
	if err != nil {
		t.Fatalf("NewS3Device: %v", err)
	}

	src := filepath.Join(t.TempDir(), "code.tar.gz")
	if err := os.WriteFile(src, []byte("archive"), 0o644); err != nil {
		t.Fatal(err)
	}

	key, err := dev.Upload(context.Background(), "t1", "d1", src)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if key != "t1/d1.tar.gz" {
		t.Errorf("key = %q", key)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut || reqPath != "/functions/t1/d1.tar.gz" {
		t.Errorf("request = %s %s", method, reqPath)
	}
	if len(body) == 0 {
		t.Error("expected uploaded body")
	}
}
