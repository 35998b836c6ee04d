package api

import (
	"context"
	"fmt"
	"testing"

	"github.com/FocuswithJustin/jatspkg/core/convert"
	apperrors "github.com/FocuswithJustin/jatspkg/core/errors"
)

func dirFor(id string) string { return "/work/" + id }

func TestJobStoreLifecycle(t *testing.T) {
	s := NewJobStore()
	job, ctx := s.Create(context.Background(), "a1", dirFor)
	if job.Status != JobStatusPending || job.dir != "/work/"+job.ID {
		t.Fatalf("created = %+v", job)
	}

	got, ok := s.Stage(job.ID, convert.StageRender)
	if !ok || got.Status != JobStatusRunning || got.Progress != stageProgress[convert.StageRender] {
		t.Errorf("after stage = %+v", got)
	}

	got, ok = s.Complete(job.ID, &JobResult{Package: "p"})
	if !ok || got.Status != JobStatusCompleted || got.Progress != 100 || got.CompletedAt == "" {
		t.Errorf("after complete = %+v", got)
	}
	if ctx.Err() == nil {
		t.Error("job context not released on completion")
	}

	// Final jobs ignore further updates.
	if _, ok := s.Fail(job.ID, fmt.Errorf("late")); ok {
		t.Error("completed job accepted a failure")
	}
	if _, err := s.Cancel(job.ID); err == nil {
		t.Error("completed job cancelled")
	}
}

func TestJobStoreCancel(t *testing.T) {
	s := NewJobStore()
	job, ctx := s.Create(context.Background(), "a1", dirFor)
	got, err := s.Cancel(job.ID)
	if err != nil || got.Status != JobStatusCancelled {
		t.Fatalf("Cancel = %+v, %v", got, err)
	}
	if ctx.Err() == nil {
		t.Error("context not cancelled")
	}

	if _, err := s.Cancel("missing"); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestJobStoreRemove(t *testing.T) {
	s := NewJobStore()
	job, _ := s.Create(context.Background(), "a1", dirFor)
	if _, err := s.Remove(job.ID); err == nil {
		t.Error("pending job removed")
	}
	s.Fail(job.ID, fmt.Errorf("boom"))
	dir, err := s.Remove(job.ID)
	if err != nil || dir != "/work/"+job.ID {
		t.Errorf("Remove = %q, %v", dir, err)
	}
	if _, ok := s.Get(job.ID); ok {
		t.Error("job still present")
	}
}

func TestJobStoreList(t *testing.T) {
	s := NewJobStore()
	for i := 0; i < 3; i++ {
		s.Create(context.Background(), fmt.Sprint(i), dirFor)
	}
	if n := len(s.List()); n != 3 {
		t.Errorf("List() has %d jobs", n)
	}
}

func TestJobContext(t *testing.T) {
	ctx := withJob(context.Background(), "j1")
	if jobFrom(ctx) != "j1" || jobFrom(context.Background()) != "" {
		t.Error("job id not carried by context")
	}
}
