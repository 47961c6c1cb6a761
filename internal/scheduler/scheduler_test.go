package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/mq"
)

type fakeSchedules struct {
	due     []domain.Schedule
	updated []domain.Schedule
}

func (f *fakeSchedules) ListDue(_ context.Context, _ time.Time, limit int) ([]domain.Schedule, error) {
	return f.due[:min(limit, len(f.due))], nil
}

func (f *fakeSchedules) Update(_ context.Context, s *domain.Schedule) error {
	f.updated = append(f.updated, *s)
	return nil
}

type fakePublisher struct {
	jobs []mq.ExecutionJob
	err  error
}

func (f *fakePublisher) PublishExecution(_ context.Context, job mq.ExecutionJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeLeader struct {
	leader   bool
	released bool
}

func (f *fakeLeader) TryAcquire(context.Context) (bool, error) { return f.leader, nil }

func (f *fakeLeader) Release(context.Context) error {
	f.released = true
	return nil
}

func newScheduler(store *fakeSchedules, pub *fakePublisher, now time.Time) *Scheduler {
	s := New(Config{
		Schedules: store,
		Publisher: pub,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	s.now = func() time.Time { return now }
	return s
}

func TestTick_EnqueuesDueSchedule(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 2, 0, 0, time.UTC)
	due := now.Add(-2 * time.Minute)
	store := &fakeSchedules{due: []domain.Schedule{
		{ID: "s1", TenantID: "t1", FunctionID: "f1", CronExpr: "*/5 * * * *", Active: true, NextDueAt: &due},
	}}
	pub := &fakePublisher{}

	if err := newScheduler(store, pub, now).Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(pub.jobs) != 1 {
		t.Fatalf("published %d jobs, want 1", len(pub.jobs))
	}
	job := pub.jobs[0]
	if job.Type != domain.TriggerSchedule || job.TenantID != "t1" || job.FunctionID != "f1" || job.ExecutionID == "" {
		t.Errorf("unexpected job: %+v", job)
	}

	if len(store.updated) != 1 {
		t.Fatalf("updated %d schedules, want 1", len(store.updated))
	}
	got := store.updated[0]
	if want := time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC); !got.NextDueAt.Equal(want) {
		t.Errorf("next_due_at = %v, want %v", got.NextDueAt, want)
	}
	if got.LastRunAt == nil || !got.LastRunAt.Equal(now) {
		t.Errorf("last_run_at = %v, want %v", got.LastRunAt, now)
	}
}

func TestTick_DeterministicExecutionID(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 2, 0, 0, time.UTC)
	due := now.Add(-time.Minute)
	sched := domain.Schedule{ID: "s1", TenantID: "t1", FunctionID: "f1", CronExpr: "* * * * *", Active: true, NextDueAt: &due}

	pub := &fakePublisher{}
	for n := 0; n < 2; n++ {
		store := &fakeSchedules{due: []domain.Schedule{sched}}
		if err := newScheduler(store, pub, now).Tick(context.Background()); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if pub.jobs[0].ExecutionID != pub.jobs[1].ExecutionID {
		t.Errorf("ids differ: %s %s", pub.jobs[0].ExecutionID, pub.jobs[1].ExecutionID)
	}
}

func TestTick_InitializesNextDue(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 2, 0, 0, time.UTC)
	store := &fakeSchedules{due: []domain.Schedule{
		{ID: "s1", TenantID: "t1", FunctionID: "f1", CronExpr: "0 * * * *", Active: true},
	}}
	pub := &fakePublisher{}

	if err := newScheduler(store, pub, now).Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(pub.jobs) != 0 {
		t.Error("schedule without next_due_at must not run")
	}
	if len(store.updated) != 1 || !store.updated[0].NextDueAt.Equal(time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected update: %+v", store.updated)
	}
}

func TestTick_SkipsInvalidAndContinues(t *testing.T) {
	now := time.Now()
	due := now.Add(-time.Minute)
	store := &fakeSchedules{due: []domain.Schedule{
		{ID: "bad", CronExpr: "not a cron", Active: true, NextDueAt: &due},
		{ID: "ok", TenantID: "t1", FunctionID: "f1", CronExpr: "* * * * *", Active: true, NextDueAt: &due},
	}}
	pub := &fakePublisher{}

	if err := newScheduler(store, pub, now).Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(pub.jobs) != 1 || pub.jobs[0].FunctionID != "f1" {
		t.Errorf("unexpected jobs: %+v", pub.jobs)
	}
}

func TestTick_PublishFailureKeepsSchedule(t *testing.T) {
	now := time.Now()
	due := now.Add(-time.Minute)
	store := &fakeSchedules{due: []domain.Schedule{
		{ID: "s1", CronExpr: "* * * * *", Active: true, NextDueAt: &due},
	}}
	pub := &fakePublisher{err: errors.New("broker down")}

	if err := newScheduler(store, pub, now).Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(store.updated) != 0 {
		t.Error("schedule must stay due when publish fails")
	}
}

func TestRun_OnlyLeaderTicks(t *testing.T) {
	due := time.Now().Add(-time.Minute)
	store := &fakeSchedules{due: []domain.Schedule{
		{ID: "s1", CronExpr: "* * * * *", Active: true, NextDueAt: &due},
	}}
	pub := &fakePublisher{}
	leader := &fakeLeader{}

	s := New(Config{
		Schedules: store,
		Publisher: pub,
		Leader:    leader,
		Interval:  time.Millisecond,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if len(pub.jobs) != 0 {
		t.Error("follower must not publish")
	}
	if !leader.released {
		t.Error("leadership must be released on exit")
	}
}

func TestValidateCronExpr(t *testing.T) {
	if err := ValidateCronExpr("*/5 * * * *"); err != nil {
		t.Errorf("valid expression: %v", err)
	}
	if err := ValidateCronExpr("* * *"); err == nil {
		t.Error("expected error for short expression")
	}
}
