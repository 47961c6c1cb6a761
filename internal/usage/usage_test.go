package usage

import (
	"context"
	"errors"
	"testing"

	"github.com/shaiso/Forge/internal/mq"
)

type fakeRecorder struct {
	got map[string]int64
	err error
}

func (f *fakeRecorder) Record(_ context.Context, tenantID, metric string, value int64) error {
	if f.got == nil {
		f.got = make(map[string]int64)
	}
	f.got[tenantID+"/"+metric] = value
	return f.err
}

func TestBatch_Flush(t *testing.T) {
	rec := &fakeRecorder{}
	b := NewBatch("t1", "f1").
		Add(MetricBuilds, 1).
		Add(MetricBuildsCompute, 3000)

	if b.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", b.Len())
	}
	if err := b.Flush(context.Background(), rec); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	want := map[string]int64{
		"t1/builds":                      1,
		"t1/functions.f1.builds":         1,
		"t1/builds.compute":              3000,
		"t1/functions.f1.builds.compute": 3000,
	}
	for k, v := range want {
		if rec.got[k] != v {
			t.Errorf("%s = %d, want %d", k, rec.got[k], v)
		}
	}
}

func TestBatch_FlushJoinsErrors(t *testing.T) {
	boom := errors.New("queue down")
	err := NewBatch("t1", "f1").Add(MetricExecutions, 1).Flush(context.Background(), &fakeRecorder{err: boom})
	if !errors.Is(err, boom) {
		t.Errorf("Flush() error = %v, want %v", err, boom)
	}
}

type fakeUsagePublisher struct {
	got []mq.UsagePayload
}

func (f *fakeUsagePublisher) PublishUsage(_ context.Context, u mq.UsagePayload) error {
	f.got = append(f.got, u)
	return nil
}

func TestQueueRecorder(t *testing.T) {
	pub := &fakeUsagePublisher{}
	if err := NewQueueRecorder(pub).Record(context.Background(), "t1", MetricExecutions, 1); err != nil {
		t.Fatal(err)
	}
	if len(pub.got) != 1 || pub.got[0].Metric != MetricExecutions || pub.got[0].TenantID != "t1" {
		t.Errorf("unexpected payloads: %+v", pub.got)
	}
}
