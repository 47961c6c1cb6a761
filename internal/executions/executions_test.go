package executions

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/executor"
	"github.com/shaiso/Forge/internal/mq"
	"github.com/shaiso/Forge/internal/repo"
)

// --- fakes ---

type fakeFunctions struct {
	list []domain.Function

	// listErr возвращается для страниц начиная с listErrOffset.
	listErr       error
	listErrOffset int
}

func (f *fakeFunctions) GetByID(_ context.Context, _, id string) (*domain.Function, error) {
	for i := range f.list {
		if f.list[i].ID == id {
			fn := f.list[i]
			return &fn, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeFunctions) ListPage(_ context.Context, _ string, limit, offset int) ([]domain.Function, error) {
	if f.listErr != nil && offset >= f.listErrOffset {
		return nil, f.listErr
	}
	if offset >= len(f.list) {
		return nil, nil
	}
	end := min(offset+limit, len(f.list))
	return append([]domain.Function(nil), f.list[offset:end]...), nil
}

type fakeDeployments map[string]*domain.Deployment

func (f fakeDeployments) GetByID(_ context.Context, _, id string) (*domain.Deployment, error) {
	if d, ok := f[id]; ok {
		return d, nil
	}
	return nil, repo.ErrNotFound
}

type fakeBuilds map[string]*domain.Build

func (f fakeBuilds) GetByID(_ context.Context, _, id string) (*domain.Build, error) {
	if b, ok := f[id]; ok {
		return b, nil
	}
	return nil, repo.ErrNotFound
}

type fakeExecutions struct {
	mu      sync.Mutex
	byID    map[string]domain.Execution
	created int
	updates []domain.Execution

	// failUpdates — сколько ближайших Update вернут ошибку.
	failUpdates int
}

func newFakeExecutions() *fakeExecutions {
	return &fakeExecutions{byID: make(map[string]domain.Execution)}
}

func (f *fakeExecutions) Create(_ context.Context, e *domain.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	f.byID[e.ID] = *e
	return nil
}

func (f *fakeExecutions) Update(_ context.Context, e *domain.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdates > 0 {
		f.failUpdates--
		return errors.New("connection reset")
	}
	f.byID[e.ID] = *e
	f.updates = append(f.updates, *e)
	return nil
}

func (f *fakeExecutions) GetByID(_ context.Context, _, id string) (*domain.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &e, nil
}

func (f *fakeExecutions) last() domain.Execution {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[len(f.updates)-1]
}

type fakeInvoker struct {
	mu       sync.Mutex
	requests []executor.ExecutionRequest
	result   *executor.ExecutionResult
	err      error
}

func (f *fakeInvoker) CreateExecution(_ context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	return &res, nil
}

func (f *fakeInvoker) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeCatalog map[string]domain.Runtime

func (c fakeCatalog) Resolve(_, key string) (domain.Runtime, error) {
	rt, ok := c[key]
	if !ok {
		return domain.Runtime{}, domain.ErrUnsupported
	}
	return rt, nil
}

type fakeEvents struct {
	published [][]string
}

func (f *fakeEvents) PublishEvent(_ context.Context, _ string, events []string, _ any) error {
	f.published = append(f.published, events)
	return nil
}

type fakeUsage struct {
	values map[string]int64
}

func (f *fakeUsage) Record(_ context.Context, _, metric string, value int64) error {
	if f.values == nil {
		f.values = make(map[string]int64)
	}
	f.values[metric] += value
	return nil
}

type fakeGeo struct{}

func (fakeGeo) Lookup(ip string) (GeoInfo, bool) {
	if ip == "1.2.3.4" {
		return GeoInfo{CountryCode: "de", ContinentCode: "EU", EU: true}, true
	}
	return GeoInfo{}, false
}

// --- fixture ---

type fixture struct {
	functions  *fakeFunctions
	builds     fakeBuilds
	executions *fakeExecutions
	invoker    *fakeInvoker
	events     *fakeEvents
	usage      *fakeUsage
	dispatcher *Dispatcher
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFunction(id string) domain.Function {
	return domain.Function{
		ID:           id,
		TenantID:     "t1",
		Name:         "fn-" + id,
		Runtime:      "node-18.0",
		DeploymentID: "dep-" + id,
		Execute:      []string{domain.RoleAny},
		Enabled:      true,
		Logging:      true,
		Timeout:      15,
	}
}

func newFixture(t *testing.T, fns ...domain.Function) *fixture {
	t.Helper()

	f := &fixture{
		functions:  &fakeFunctions{list: fns},
		builds:     fakeBuilds{},
		executions: newFakeExecutions(),
		invoker: &fakeInvoker{result: &executor.ExecutionResult{
			StatusCode: 200,
			Headers:    map[string]string{"Content-Type": "application/json", "X-Secret": "s"},
			Body:       `{"ok":true}`,
			Logs:       "log line",
			Duration:   0.25,
		}},
		events: &fakeEvents{},
		usage:  &fakeUsage{},
	}

	deployments := fakeDeployments{}
	for _, fn := range fns {
		depID := "dep-" + fn.ID
		buildID := "build-" + fn.ID
		deployments[depID] = &domain.Deployment{ID: depID, TenantID: fn.TenantID, FunctionID: fn.ID, BuildID: buildID, Entrypoint: "index.js"}
		f.builds[buildID] = &domain.Build{ID: buildID, TenantID: fn.TenantID, Status: domain.BuildStatusReady, Path: "/builds/" + buildID + ".tar.gz"}
	}

	signer, err := NewTokenSigner("secret", time.Minute)
	if err != nil {
		t.Fatalf("NewTokenSigner: %v", err)
	}

	f.dispatcher = NewDispatcher(Config{
		Functions:   f.functions,
		Deployments: deployments,
		Builds:      f.builds,
		Executions:  f.executions,
		Invoker:     f.invoker,
		Runtimes:    fakeCatalog{"node-18.0": {Key: "node-18.0", Name: "Node.js", Version: "18.0", Image: "runtimes/node:18"}},
		Geo:         fakeGeo{},
		Tokens:      signer,
		Events:      f.events,
		Usage:       f.usage,
		Logger:      discardLogger(),
	})
	return f
}

// --- tests ---

func TestInvoke_Success(t *testing.T) {
	f := newFixture(t, testFunction("f1"))

	res, err := f.dispatcher.Invoke(context.Background(), Invocation{
		TenantID:   "t1",
		FunctionID: "f1",
		Trigger:    domain.TriggerHTTP,
		Inline:     true,
		UserID:     "u1",
		Path:       "/hello",
		Method:     "GET",
		Headers:    map[string]string{"Content-Type": "text/plain", "Cookie": "c", "X-Real-IP": "1.2.3.4"},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	exec := f.executions.last()
	if exec.Status != domain.ExecutionStatusCompleted {
		t.Errorf("status = %s, want completed", exec.Status)
	}
	if exec.Duration != 0.25 {
		t.Errorf("duration = %v, want 0.25", exec.Duration)
	}
	if exec.RequestPath != "/hello" || exec.RequestMethod != "GET" {
		t.Errorf("unexpected request: %s %s", exec.RequestMethod, exec.RequestPath)
	}
	if _, ok := exec.RequestHeaders["cookie"]; ok {
		t.Error("cookie must not be stored")
	}
	if _, ok := exec.ResponseHeaders["X-Secret"]; ok {
		t.Error("x-secret must not be returned")
	}
	if res.ContentType != "application/json" || string(res.Body) != `{"ok":true}` || res.StatusCode != 200 {
		t.Errorf("unexpected result: %+v", res)
	}

	req := f.invoker.requests[0]
	if req.Headers[HeaderCountryCode] != "de" || req.Headers[HeaderContinentEU] != "true" {
		t.Errorf("geo headers not injected: %v", req.Headers)
	}
	if req.Headers[HeaderUserJWT] == "" || req.Variables["FORGE_FUNCTION_JWT"] != req.Headers[HeaderUserJWT] {
		t.Error("expected signed jwt in headers and variables")
	}
	if req.Variables["FORGE_FUNCTION_TRIGGER"] != "http" || req.Variables["FORGE_FUNCTION_RUNTIME_NAME"] != "Node.js" {
		t.Errorf("unexpected variables: %v", req.Variables)
	}
	if req.Timeout != 15 || req.Source != "/builds/build-f1.tar.gz" || req.Entrypoint != "index.js" {
		t.Errorf("unexpected request: %+v", req)
	}

	if f.usage.values["executions"] != 1 || f.usage.values["functions.f1.executions.compute"] != 250 {
		t.Errorf("unexpected usage: %v", f.usage.values)
	}
	if len(f.events.published) != 1 || f.events.published[0][0] != "functions.f1.executions."+exec.ID+".update" {
		t.Errorf("unexpected events: %v", f.events.published)
	}
}

func TestInvoke_BuildNotReady(t *testing.T) {
	f := newFixture(t, testFunction("f1"))
	f.builds["build-f1"].Status = domain.BuildStatusBuilding

	_, err := f.dispatcher.Invoke(context.Background(), Invocation{
		TenantID: "t1", FunctionID: "f1", Trigger: domain.TriggerHTTP, Inline: true,
	})
	if !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if f.invoker.calls() != 0 {
		t.Error("executor must not be called")
	}
	if f.executions.created != 0 {
		t.Error("inline rejection must not create an execution")
	}

	// Из очереди отказ записывается как failed выполнение.
	res, err := f.dispatcher.Invoke(context.Background(), Invocation{
		TenantID: "t1", FunctionID: "f1", Trigger: domain.TriggerSchedule,
	})
	if !errors.Is(err, domain.ErrNotReady) || res == nil {
		t.Fatalf("Invoke = %v, %v", res, err)
	}
	if exec := f.executions.last(); exec.Status != domain.ExecutionStatusFailed || exec.ResponseStatusCode != 400 {
		t.Errorf("unexpected execution: %s %d", exec.Status, exec.ResponseStatusCode)
	}
	if f.invoker.calls() != 0 {
		t.Error("executor must not be called")
	}
}

func TestInvoke_ResolveErrors(t *testing.T) {
	disabled := testFunction("off")
	disabled.Enabled = false
	foreign := testFunction("foreign")
	noRuntime := testFunction("nort")
	noRuntime.Runtime = "cobol-1"

	f := newFixture(t, disabled, foreign, noRuntime)
	f.dispatcher.deployments.(fakeDeployments)["dep-foreign"].FunctionID = "other"

	tests := []struct {
		id   string
		want error
	}{
		{"missing", domain.ErrNotFound},
		{"off", domain.ErrNotFound},
		{"foreign", domain.ErrNotFound},
		{"nort", domain.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			_, err := f.dispatcher.Invoke(context.Background(), Invocation{
				TenantID: "t1", FunctionID: tt.id, Trigger: domain.TriggerHTTP, Inline: true,
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if f.invoker.calls() != 0 {
		t.Error("executor must not be called")
	}
}

func TestInvoke_TransportFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain", errors.New("connection refused"), 500},
		{"coded", &domain.CodedError{Code: 408, Message: "timed out"}, 408},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testFunction("f1"))
			f.invoker.err = tt.err

			res, err := f.dispatcher.Invoke(context.Background(), Invocation{
				TenantID: "t1", FunctionID: "f1", Trigger: domain.TriggerHTTP, Inline: true,
			})
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			exec := f.executions.last()
			if exec.Status != domain.ExecutionStatusFailed || exec.ResponseStatusCode != tt.want {
				t.Errorf("execution = %s %d, want failed %d", exec.Status, exec.ResponseStatusCode, tt.want)
			}
			if exec.Errors != tt.err.Error() || exec.Duration < 0 {
				t.Errorf("unexpected errors/duration: %q %v", exec.Errors, exec.Duration)
			}
			if res.StatusCode != tt.want || res.ContentType != "text/plain" {
				t.Errorf("unexpected result: %d %s", res.StatusCode, res.ContentType)
			}
		})
	}
}

func TestInvoke_FunctionErrorStatus(t *testing.T) {
	f := newFixture(t, testFunction("f1"))
	f.invoker.result = &executor.ExecutionResult{StatusCode: 503, Body: "down"}

	res, err := f.dispatcher.Invoke(context.Background(), Invocation{
		TenantID: "t1", FunctionID: "f1", Trigger: domain.TriggerHTTP, Inline: true,
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Execution.Status != domain.ExecutionStatusFailed || res.StatusCode != 503 {
		t.Errorf("unexpected result: %s %d", res.Execution.Status, res.StatusCode)
	}
}

func TestInvoke_DecodesBase64Body(t *testing.T) {
	f := newFixture(t, testFunction("f1"))
	f.invoker.result = &executor.ExecutionResult{
		StatusCode: 200,
		Headers:    map[string]string{"x-open-runtimes-encoding": "base64", "content-type": "image/png"},
		Body:       base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'}),
	}

	res, err := f.dispatcher.Invoke(context.Background(), Invocation{
		TenantID: "t1", FunctionID: "f1", Trigger: domain.TriggerHTTP, Inline: true,
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if string(res.Body) != "\x89PNG" || res.ContentType != "image/png" {
		t.Errorf("unexpected body: %q %s", res.Body, res.ContentType)
	}
	if _, ok := res.Headers["x-open-runtimes-encoding"]; ok {
		t.Error("encoding header must be filtered")
	}
}

func TestInvoke_PermissionDenied(t *testing.T) {
	fn := testFunction("f1")
	fn.Execute = []string{"user:u1"}
	f := newFixture(t, fn)

	_, err := f.dispatcher.Invoke(context.Background(), Invocation{
		TenantID: "t1", FunctionID: "f1", Trigger: domain.TriggerHTTP, Inline: true, UserID: "u2",
	})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if f.invoker.calls() != 0 || f.executions.created != 0 {
		t.Error("denied call must not reach executor or storage")
	}

	if _, err := f.dispatcher.Invoke(context.Background(), Invocation{
		TenantID: "t1", FunctionID: "f1", Trigger: domain.TriggerHTTP, Inline: true, UserID: "u1",
	}); err != nil {
		t.Errorf("allowed user: %v", err)
	}
}

func TestInvoke_LoggingDisabledDropsLogs(t *testing.T) {
	fn := testFunction("f1")
	fn.Logging = false
	f := newFixture(t, fn)
	f.invoker.result.Errors = "stack"

	if _, err := f.dispatcher.Invoke(context.Background(), Invocation{
		TenantID: "t1", FunctionID: "f1", Trigger: domain.TriggerSchedule,
	}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	exec := f.executions.last()
	if exec.Logs != "" || exec.Errors != "" {
		t.Errorf("logs must be dropped: %q %q", exec.Logs, exec.Errors)
	}
	if exec.Status != domain.ExecutionStatusCompleted {
		t.Errorf("status = %s", exec.Status)
	}
}

func TestInvoke_ReusesExecutionByID(t *testing.T) {
	fn := testFunction("f1")
	f := newFixture(t, fn)
	waiting := domain.NewExecution("exec-1", &fn, "", domain.TriggerHTTP)
	f.executions.byID[waiting.ID] = *waiting

	res, err := f.dispatcher.Invoke(context.Background(), Invocation{
		TenantID: "t1", FunctionID: "f1", Trigger: domain.TriggerHTTP, ExecutionID: "exec-1",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Execution.ID != "exec-1" || f.executions.created != 0 {
		t.Errorf("expected reuse of exec-1, created %d", f.executions.created)
	}
	if res.Execution.DeploymentID != "dep-f1" {
		t.Errorf("deployment = %q", res.Execution.DeploymentID)
	}
}

func TestWorker_SkipsFinishedExecution(t *testing.T) {
	fn := testFunction("f1")
	f := newFixture(t, fn)
	done := domain.NewExecution("exec-1", &fn, "dep-f1", domain.TriggerSchedule)
	done.Finish(200, nil, "", "", "", 1)
	f.executions.byID[done.ID] = *done

	w := NewWorker(WorkerConfig{Dispatcher: f.dispatcher, Logger: discardLogger()})
	err := w.Handle(context.Background(), mq.ExecutionJob{
		Type: domain.TriggerSchedule, TenantID: "t1", FunctionID: "f1", ExecutionID: "exec-1",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if f.invoker.calls() != 0 {
		t.Error("finished execution must not run again")
	}
}

func TestWorker_StartFailureAcksAndFailsExecution(t *testing.T) {
	f := newFixture(t, testFunction("f1"))
	f.executions.failUpdates = 1
	w := NewWorker(WorkerConfig{Dispatcher: f.dispatcher, Logger: discardLogger()})
	job := mq.ExecutionJob{Type: domain.TriggerSchedule, TenantID: "t1", FunctionID: "f1", ExecutionID: "exec-1"}

	// вторая доставка того же задания
	for i := 0; i < 2; i++ {
		if err := w.Handle(context.Background(), job); err != nil {
			t.Fatalf("Handle #%d: %v, want ack", i+1, err)
		}
	}

	if f.executions.created != 1 {
		t.Errorf("created = %d, want 1", f.executions.created)
	}
	if f.invoker.calls() != 0 {
		t.Errorf("executor calls = %d, want 0", f.invoker.calls())
	}
	for id, e := range f.executions.byID {
		if !e.Status.IsTerminal() {
			t.Errorf("execution %s left %s", id, e.Status)
		}
	}
	if got := f.executions.byID["exec-1"]; got.Status != domain.ExecutionStatusFailed || got.ResponseStatusCode != 500 {
		t.Errorf("execution = %s/%d, want failed/500", got.Status, got.ResponseStatusCode)
	}
}

func TestInvoke_StartFailureReturnsResult(t *testing.T) {
	f := newFixture(t, testFunction("f1"))
	f.executions.failUpdates = 1

	res, err := f.dispatcher.Invoke(context.Background(), Invocation{
		TenantID: "t1", FunctionID: "f1", Trigger: domain.TriggerHTTP, Inline: true,
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.StatusCode != 500 || res.Execution.Status != domain.ExecutionStatusFailed {
		t.Errorf("result = %d/%s, want 500/failed", res.StatusCode, res.Execution.Status)
	}
	if f.executions.last().Status != domain.ExecutionStatusFailed {
		t.Errorf("persisted status = %s", f.executions.last().Status)
	}
}

func TestGuard(t *testing.T) {
	d := &Dispatcher{}
	if got := d.guard(&domain.Function{Timeout: 30}); got != 45*time.Second {
		t.Errorf("guard = %v, want 45s", got)
	}
	d.maxWait = 20 * time.Second
	if got := d.guard(&domain.Function{Timeout: 30}); got != 20*time.Second {
		t.Errorf("guard = %v, want 20s", got)
	}
}

func TestFilterHeaders(t *testing.T) {
	in := map[string]string{"Content-Type": "a", "HOST": "h", "Cookie": "c", "agent": "x"}
	got := FilterHeaders(in, RequestAllowList)

	if len(got) != 3 || got["Content-Type"] != "a" || got["HOST"] != "h" || got["agent"] != "x" {
		t.Errorf("FilterHeaders() = %v", got)
	}
}

func TestMergeVariables_Precedence(t *testing.T) {
	got := mergeVariables(
		map[string]string{"A": "1", "B": "1", "C": "1"},
		map[string]string{"B": "2", "C": "2"},
		map[string]string{"C": "3", "D": "3"},
	)
	want := map[string]string{"A": "1", "B": "2", "C": "3", "D": "3"}
	if len(got) != len(want) {
		t.Fatalf("mergeVariables() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestRuntimeEntrypoint(t *testing.T) {
	rt := domain.Runtime{StartCommand: "node src/server.js"}
	if got := runtimeEntrypoint(domain.VersionV2, rt); got != "" {
		t.Errorf("v2 entrypoint = %q, want empty", got)
	}
	want := `cp /tmp/code.tar.gz /mnt/code/code.tar.gz && nohup helpers/start.sh "node src/server.js"`
	if got := runtimeEntrypoint(domain.VersionV1, rt); got != want {
		t.Errorf("v1 entrypoint = %q", got)
	}
}

func TestFanOut_InvokesSubscribers(t *testing.T) {
	subscribed := testFunction("sub")
	subscribed.Events = []string{"users.*.create"}
	other := testFunction("other")
	other.Events = []string{"buckets.*.delete"}

	f := newFixture(t, other, subscribed)

	n, err := f.dispatcher.FanOut(context.Background(), Event{
		TenantID: "t1",
		Events:   []string{"users.u1.create", "users.*.create"},
		Payload:  map[string]string{"id": "u1"},
	})
	if err != nil {
		t.Fatalf("FanOut: %v", err)
	}
	if n != 1 || f.invoker.calls() != 1 {
		t.Fatalf("invoked %d (executor %d), want 1", n, f.invoker.calls())
	}
	req := f.invoker.requests[0]
	if req.Variables["FORGE_FUNCTION_ID"] != "sub" || req.Variables["FORGE_FUNCTION_TRIGGER"] != "event" {
		t.Errorf("unexpected variables: %v", req.Variables)
	}
	if req.Variables["FORGE_FUNCTION_EVENT"] != "users.u1.create" || req.Variables["FORGE_FUNCTION_EVENT_DATA"] != `{"id":"u1"}` {
		t.Errorf("unexpected event variables: %v", req.Variables)
	}
}

func TestFanOut_Paginates(t *testing.T) {
	var fns []domain.Function
	for i := 0; i < fanOutPageSize+5; i++ {
		fn := testFunction(string(rune('a'+i%26)) + string(rune('a'+i/26)))
		fn.Events = []string{"users.*.create"}
		fns = append(fns, fn)
	}
	f := newFixture(t, fns...)

	n, err := f.dispatcher.FanOut(context.Background(), Event{TenantID: "t1", Events: []string{"users.*.create"}})
	if err != nil {
		t.Fatalf("FanOut: %v", err)
	}
	if n != fanOutPageSize+5 {
		t.Errorf("invoked %d, want %d", n, fanOutPageSize+5)
	}
}

func TestFanOut_ListFailureAfterInvocations(t *testing.T) {
	var fns []domain.Function
	for i := 0; i < fanOutPageSize+5; i++ {
		fn := testFunction(string(rune('a'+i%26)) + string(rune('a'+i/26)))
		fn.Events = []string{"users.*.create"}
		fns = append(fns, fn)
	}
	f := newFixture(t, fns...)
	f.functions.listErr = errors.New("connection reset")
	f.functions.listErrOffset = fanOutPageSize

	n, err := f.dispatcher.FanOut(context.Background(), Event{TenantID: "t1", Events: []string{"users.*.create"}})
	if err != nil {
		t.Fatalf("FanOut: %v, want nil after invocations", err)
	}
	if n != fanOutPageSize || f.invoker.calls() != fanOutPageSize {
		t.Errorf("invoked %d (executor %d), want %d", n, f.invoker.calls(), fanOutPageSize)
	}

	// на первой странице ещё никто не вызван: задание можно повторить
	f.functions.listErrOffset = 0
	if _, err := f.dispatcher.FanOut(context.Background(), Event{TenantID: "t1", Events: []string{"users.*.create"}}); err == nil {
		t.Error("first page failure must be returned")
	}
}

func TestWorker_Handle(t *testing.T) {
	f := newFixture(t, testFunction("f1"))
	w := NewWorker(WorkerConfig{Dispatcher: f.dispatcher, Logger: discardLogger()})
	ctx := context.Background()

	if err := w.Handle(ctx, mq.ExecutionJob{Type: domain.TriggerHTTP, TenantID: domain.ConsoleTenant, FunctionID: "f1"}); err != nil {
		t.Errorf("console job: %v", err)
	}
	if f.invoker.calls() != 0 {
		t.Error("console job must be ignored")
	}

	if err := w.Handle(ctx, mq.ExecutionJob{Type: "webhook", TenantID: "t1", FunctionID: "f1"}); !errors.Is(err, mq.ErrDiscard) {
		t.Errorf("unknown type: err = %v, want ErrDiscard", err)
	}

	if err := w.Handle(ctx, mq.ExecutionJob{Type: domain.TriggerSchedule, TenantID: "t1", FunctionID: "missing"}); !errors.Is(err, mq.ErrDiscard) {
		t.Errorf("missing function: err = %v, want ErrDiscard", err)
	}

	// Отказ по неготовой сборке записан в Execution, сообщение подтверждается.
	f.builds["build-f1"].Status = domain.BuildStatusFailed
	if err := w.Handle(ctx, mq.ExecutionJob{Type: domain.TriggerSchedule, TenantID: "t1", FunctionID: "f1"}); err != nil {
		t.Errorf("recorded rejection: %v", err)
	}

	f.builds["build-f1"].Status = domain.BuildStatusReady
	if err := w.Handle(ctx, mq.ExecutionJob{Type: domain.TriggerSchedule, TenantID: "t1", FunctionID: "f1", Data: "x"}); err != nil {
		t.Fatalf("schedule job: %v", err)
	}
	if f.invoker.calls() != 1 || f.invoker.requests[0].Body != "x" {
		t.Errorf("unexpected executor calls: %+v", f.invoker.requests)
	}
}

func TestTokenSigner(t *testing.T) {
	s, err := NewTokenSigner("secret", time.Minute)
	if err != nil {
		t.Fatalf("NewTokenSigner: %v", err)
	}
	token, err := s.Sign("t1", "f1", "u1")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	claims, err := s.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "u1" || claims.TenantID != "t1" || claims.FunctionID != "f1" {
		t.Errorf("unexpected claims: %+v", claims)
	}

	other, _ := NewTokenSigner("other", time.Minute)
	if _, err := other.Parse(token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("foreign secret: err = %v, want ErrUnauthorized", err)
	}

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := s.Parse(token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expired: err = %v, want ErrUnauthorized", err)
	}

	if _, err := NewTokenSigner("", 0); err == nil {
		t.Error("expected error for empty secret")
	}
}
