package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/shaiso/Forge/internal/domain"
)

func TestCreateRuntime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/runtimes" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer s3cret" {
			t.Errorf("Authorization = %q", got)
		}
		var req RuntimeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.RuntimeID != "t1-d1" {
			t.Errorf("runtimeId = %q, want t1-d1", req.RuntimeID)
		}
		json.NewEncoder(w).Encode(RuntimeResult{Path: "/builds/t1-d1.tar.gz", Size: 10, Output: "done"})
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL + "/", Secret: "s3cret"})
	res, err := c.CreateRuntime(context.Background(), RuntimeRequest{TenantID: "t1", DeploymentID: "d1"})
	if err != nil {
		t.Fatalf("CreateRuntime: %v", err)
	}
	if res.Path != "/builds/t1-d1.tar.gz" || res.Size != 10 || res.Output != "done" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestCreateExecution_CodedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/runtimes/t1-d1/executions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusGatewayTimeout)
		w.Write([]byte(`{"message":"execution timed out"}`))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL})
	_, err := c.CreateExecution(context.Background(), ExecutionRequest{TenantID: "t1", DeploymentID: "d1"})

	var coded *domain.CodedError
	if !errors.As(err, &coded) {
		t.Fatalf("error = %v, want CodedError", err)
	}
	if coded.Code != http.StatusGatewayTimeout || coded.Message != "execution timed out" {
		t.Errorf("unexpected coded error: %+v", coded)
	}
}

func TestCreateExecution_Transport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := New(Config{Endpoint: srv.URL})
	_, err := c.CreateExecution(context.Background(), ExecutionRequest{TenantID: "t1", DeploymentID: "d1"})
	if !errors.Is(err, ErrTransport) {
		t.Errorf("error = %v, want ErrTransport", err)
	}
}

func TestStreamLogs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/runtimes/t1-d1/logs" {
			t.Errorf("path = %s", r.URL.Path)
		}
		flusher := w.(http.Flusher)
		for _, chunk := range []string{"step 1\n", "step 2\n"} {
			w.Write([]byte(chunk))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	var got strings.Builder
	c := New(Config{Endpoint: srv.URL})
	err := c.StreamLogs(context.Background(), "t1", "d1", func(chunk string) error {
		got.WriteString(chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamLogs: %v", err)
	}
	if got.String() != "step 1\nstep 2\n" {
		t.Errorf("logs = %q", got.String())
	}
}

func TestStreamLogs_KeepsRunesWhole(t *testing.T) {
	// "é" попадает на границу буфера чтения
	payload := strings.Repeat("a", 4095) + "é собрано ✓\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		half := len(payload) - 3
		w.Write([]byte(payload[:half]))
		flusher.Flush()
		w.Write([]byte(payload[half:]))
	}))
	defer srv.Close()

	var got strings.Builder
	c := New(Config{Endpoint: srv.URL})
	err := c.StreamLogs(context.Background(), "t1", "d1", func(chunk string) error {
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk is not valid UTF-8: %q", chunk[max(0, len(chunk)-8):])
		}
		got.WriteString(chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamLogs: %v", err)
	}
	if got.String() != payload {
		t.Errorf("logs differ: got %d bytes, want %d", got.Len(), len(payload))
	}
}

func TestCompleteRunes(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 3},
		{"ab\xc3", 2},
		{"ab\xc3\xa9", 4},
		{"\xe2\x9c", 0},
		{"x\xe2\x9c\x93", 4},
		{"x\xf0\x9f\x98", 1},
		{"\xa9\xa9\xa9\xa9", 4},
	}
	for _, tt := range tests {
		if got := completeRunes([]byte(tt.in)); got != tt.want {
			t.Errorf("completeRunes(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestStreamLogs_StopsOnCallbackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("chunk"))
	}))
	defer srv.Close()

	stop := errors.New("stop")
	c := New(Config{Endpoint: srv.URL})
	err := c.StreamLogs(context.Background(), "t1", "d1", func(string) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("error = %v, want stop", err)
	}
}
