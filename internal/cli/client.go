package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// BuildResponse — сборка из API.
type BuildResponse struct {
	ID           string `json:"id"`
	DeploymentID string `json:"deployment_id"`
	Status       string `json:"status"`
	StartTime    string `json:"start_time,omitempty"`
	EndTime      string `json:"end_time,omitempty"`
	Duration     int    `json:"duration"`
	Size         int64  `json:"size"`
	Logs         string `json:"logs,omitempty"`
}

// BuildQueuedResponse — сборка, поставленная в очередь.
type BuildQueuedResponse struct {
	Type         string `json:"type"`
	FunctionID   string `json:"function_id"`
	DeploymentID string `json:"deployment_id"`
	BuildID      string `json:"build_id,omitempty"`
}

// ExecutionResponse — выполнение из API.
type ExecutionResponse struct {
	ID                 string  `json:"id"`
	FunctionID         string  `json:"function_id"`
	DeploymentID       string  `json:"deployment_id"`
	Trigger            string  `json:"trigger"`
	Status             string  `json:"status"`
	RequestPath        string  `json:"request_path"`
	RequestMethod      string  `json:"request_method"`
	ResponseStatusCode int     `json:"response_status_code"`
	Logs               string  `json:"logs"`
	Errors             string  `json:"errors"`
	Duration           float64 `json:"duration"`
	CreatedAt          string  `json:"created_at"`
}

// InvokeResponse — ответ синхронного вызова функции.
type InvokeResponse struct {
	ExecutionID string `json:"execution_id"`
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

// --- Request types ---

// TemplateRequest — шаблон для первой сборки.
type TemplateRequest struct {
	Owner         string `json:"owner"`
	Repository    string `json:"repository"`
	Branch        string `json:"branch"`
	RootDirectory string `json:"root_directory"`
}

// CreateBuildRequest — постановка сборки.
type CreateBuildRequest struct {
	Retry    bool             `json:"retry,omitempty"`
	Template *TemplateRequest `json:"template,omitempty"`
}

// CreateExecutionRequest — асинхронное выполнение.
type CreateExecutionRequest struct {
	Data    string            `json:"data,omitempty"`
	Path    string            `json:"path,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	UserID  string            `json:"user_id,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Forge API одного тенанта.
type Client struct {
	baseURL    string
	tenantID   string
	token      string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL, tenantID, token string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		tenantID: tenantID,
		token:    token,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (c *Client) tenantPath(format string, args ...any) string {
	return "/v1/tenants/" + c.tenantID + fmt.Sprintf(format, args...)
}

// --- Builds ---

// CreateBuild ставит сборку деплоймента в очередь.
func (c *Client) CreateBuild(functionID, deploymentID string, req CreateBuildRequest) (*BuildQueuedResponse, error) {
	var queued BuildQueuedResponse
	err := c.post(c.tenantPath("/functions/%s/deployments/%s/builds", functionID, deploymentID), req, &queued)
	return &queued, err
}

// GetBuild возвращает сборку по ID.
func (c *Client) GetBuild(id string) (*BuildResponse, error) {
	var build BuildResponse
	err := c.get(c.tenantPath("/builds/%s", id), &build)
	return &build, err
}

// CancelBuild отменяет сборку.
func (c *Client) CancelBuild(id string) (*BuildResponse, error) {
	var build BuildResponse
	err := c.post(c.tenantPath("/builds/%s/cancel", id), nil, &build)
	return &build, err
}

// --- Executions ---

// CreateExecution ставит выполнение в очередь.
func (c *Client) CreateExecution(functionID string, req CreateExecutionRequest) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	err := c.post(c.tenantPath("/functions/%s/executions", functionID), req, &exec)
	return &exec, err
}

// GetExecution возвращает выполнение по ID.
func (c *Client) GetExecution(id string) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	err := c.get(c.tenantPath("/executions/%s", id), &exec)
	return &exec, err
}

// Invoke синхронно вызывает функцию. Ответ функции возвращается как есть,
// ошибкой считаются только ответы самого API (JSON с полем error).
func (c *Client) Invoke(functionID, method, path, body, jwt string) (*InvokeResponse, error) {
	req, err := http.NewRequest(method,
		c.baseURL+c.tenantPath("/functions/%s/http/%s", functionID, strings.TrimPrefix(path, "/")),
		strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if jwt != "" {
		req.Header.Set("X-Forge-JWT", jwt)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	executionID := resp.Header.Get("X-Forge-Execution-Id")
	if executionID == "" {
		if err := c.checkError(resp); err != nil {
			return nil, err
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &InvokeResponse{
		ExecutionID: executionID,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        string(data),
	}, nil
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
