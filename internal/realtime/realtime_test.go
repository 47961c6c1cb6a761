package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/shaiso/Forge/internal/domain"
)

type fakePublisher struct {
	msgs []Message
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, msg Message) error {
	f.msgs = append(f.msgs, msg)
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_ExecutionUpdated(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, testLogger())

	exec := &domain.Execution{ID: "e1", TenantID: "t1", FunctionID: "f1"}
	n.ExecutionUpdated(context.Background(), []string{"functions.f1.executions.e1.update"}, exec, []string{"any"})

	if len(pub.msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(pub.msgs))
	}
	if pub.msgs[0].Project != ConsoleProject {
		t.Errorf("first project = %q, want console", pub.msgs[0].Project)
	}
	if pub.msgs[1].Project != "t1" {
		t.Errorf("second project = %q, want t1", pub.msgs[1].Project)
	}
	if !slices.Contains(pub.msgs[1].Channels, "executions.e1") {
		t.Errorf("tenant channels = %v", pub.msgs[1].Channels)
	}
}

func TestNotifier_BuildUpdated_ConsoleOnly(t *testing.T) {
	pub := &fakePublisher{err: errors.New("redis down")}
	n := NewNotifier(pub, testLogger())

	n.BuildUpdated(context.Background(), "t1", []string{"functions.f1.deployments.d1.update"}, &domain.Build{ID: "b1"})

	if len(pub.msgs) != 1 || pub.msgs[0].Project != ConsoleProject {
		t.Errorf("unexpected messages: %+v", pub.msgs)
	}
}

func TestNotifier_NilPublisher(t *testing.T) {
	n := NewNotifier(nil, testLogger())
	n.BuildUpdated(context.Background(), "t1", nil, &domain.Build{ID: "b1"})
}
