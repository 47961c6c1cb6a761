// Package executor — HTTP клиент удалённого executor'а.
//
// Один сервис и собирает артефакты (CreateRuntime + StreamLogs),
// и выполняет их (CreateExecution). Рантайм адресуется как
// "<tenant>-<deployment>".
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/shaiso/Forge/internal/domain"
)

// ErrTransport — executor недоступен или ответ не прочитан.
var ErrTransport = errors.New("executor transport error")

// Config — конфигурация клиента.
type Config struct {
	Endpoint   string
	Secret     string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client — клиент executor'а.
type Client struct {
	endpoint string
	secret   string
	http     *http.Client
	logger   *slog.Logger
}

// New создаёт клиент.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		secret:   cfg.Secret,
		http:     hc,
		logger:   logger,
	}
}

// RuntimeID возвращает идентификатор рантайма деплоймента.
func RuntimeID(tenantID, deploymentID string) string {
	return tenantID + "-" + deploymentID
}

// RuntimeRequest — запрос на сборку.
type RuntimeRequest struct {
	TenantID     string            `json:"-"`
	DeploymentID string            `json:"-"`
	RuntimeID    string            `json:"runtimeId"`
	Source       string            `json:"source"`
	Destination  string            `json:"destination"`
	Image        string            `json:"image"`
	Entrypoint   string            `json:"entrypoint"`
	Variables    map[string]string `json:"variables"`
	Command      string            `json:"command"`
	Version      string            `json:"version"`
	CPUs         float64           `json:"cpus"`
	Memory       int               `json:"memory"`
	Timeout      int               `json:"timeout"`
	Remove       bool              `json:"remove"`
}

// RuntimeResult — результат сборки.
type RuntimeResult struct {
	Path      string  `json:"path"`
	Size      int64   `json:"size"`
	Output    string  `json:"output"`
	StartTime float64 `json:"startTime"`
	Duration  float64 `json:"duration"`
}

// ExecutionRequest — запрос на выполнение.
type ExecutionRequest struct {
	TenantID          string            `json:"-"`
	DeploymentID      string            `json:"-"`
	Body              string            `json:"body"`
	Path              string            `json:"path"`
	Method            string            `json:"method"`
	Headers           map[string]string `json:"headers"`
	Timeout           int               `json:"timeout"`
	Image             string            `json:"image"`
	Source            string            `json:"source"`
	Entrypoint        string            `json:"entrypoint"`
	Version           string            `json:"version"`
	Variables         map[string]string `json:"variables"`
	RuntimeEntrypoint string            `json:"runtimeEntrypoint,omitempty"`
	Logging           bool              `json:"logging"`
	CPUs              float64           `json:"cpus"`
	Memory            int               `json:"memory"`
}

// ExecutionResult — ответ функции.
type ExecutionResult struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Logs       string            `json:"logs"`
	Errors     string            `json:"errors"`
	Duration   float64           `json:"duration"`
	StartTime  float64           `json:"startTime"`
}

// CreateRuntime собирает артефакт и ждёт результата.
func (c *Client) CreateRuntime(ctx context.Context, req RuntimeRequest) (*RuntimeResult, error) {
	if req.RuntimeID == "" {
		req.RuntimeID = RuntimeID(req.TenantID, req.DeploymentID)
	}
	var res RuntimeResult
	if err := c.call(ctx, http.MethodPost, "/v1/runtimes", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateExecution выполняет функцию.
func (c *Client) CreateExecution(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	path := "/v1/runtimes/" + url.PathEscape(RuntimeID(req.TenantID, req.DeploymentID)) + "/executions"
	var res ExecutionResult
	if err := c.call(ctx, http.MethodPost, path, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// StreamLogs читает лог сборки и передаёт куски в onChunk, пока executor
// не закроет поток. Ошибка onChunk прекращает чтение и возвращается.
func (c *Client) StreamLogs(ctx context.Context, tenantID, deploymentID string, onChunk func(string) error) error {
	path := "/v1/runtimes/" + url.PathEscape(RuntimeID(tenantID, deploymentID)) + "/logs"

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	// Кусок режется только по границе руны: хвост незавершённой руны
	// ждёт следующего чтения.
	buf := make([]byte, 4096)
	var pending []byte
	emit := func(p []byte) error {
		if len(p) == 0 {
			return nil
		}
		return onChunk(strings.ToValidUTF8(string(p), string(utf8.RuneError)))
	}
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			data := append(pending, buf[:n]...)
			cut := completeRunes(data)
			if err := emit(data[:cut]); err != nil {
				return err
			}
			pending = append([]byte(nil), data[cut:]...)
		}
		if readErr == io.EOF {
			return emit(pending)
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: read logs: %v", ErrTransport, readErr)
		}
	}
}

// completeRunes возвращает длину префикса p без незавершённой последней руны.
func completeRunes(p []byte) int {
	for i := len(p) - 1; i >= 0 && i > len(p)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(p[i]) {
			continue
		}
		if utf8.FullRune(p[i:]) {
			return len(p)
		}
		return i
	}
	return len(p)
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, method, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrTransport, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}
	return req, nil
}

// decodeError превращает ответ executor'а с ошибкой в CodedError.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
		msg = payload.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &domain.CodedError{Code: resp.StatusCode, Message: msg}
}
