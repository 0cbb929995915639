package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"tableservice-platform/internal/calls"
)

func seed(t *testing.T, repo *calls.MemoryRepo, cs ...calls.Call) {
	t.Helper()
	for _, c := range cs {
		if err := repo.Insert(context.Background(), c); err != nil {
			t.Fatalf("seed %s: %v", c.ID, err)
		}
	}
}

func at(base time.Time, sec int) *time.Time {
	v := base.Add(time.Duration(sec) * time.Second)
	return &v
}

func TestReporting_BusinessIsolation(t *testing.T) {
	repo := calls.NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	seed(t, repo,
		calls.Call{ID: "c1", BusinessID: "b1", TableID: "t1", StaffID: "s1", Status: calls.StatusPending, CalledAt: now, Version: 1},
		calls.Call{ID: "c2", BusinessID: "b2", TableID: "t9", StaffID: "s9", Status: calls.StatusPending, CalledAt: now, Version: 1},
	)
	svc := NewService(repo)

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{BusinessID: "b1", Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 1 || out.PendingCalls != 1 {
		t.Fatalf("expected 1 pending call, got %+v", out)
	}
}

func TestReporting_CallsSummaryAggregates(t *testing.T) {
	repo := calls.NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	seed(t, repo,
		calls.Call{ID: "c1", BusinessID: "b", TableID: "t1", StaffID: "s1", Status: calls.StatusCompleted, CalledAt: now, AcknowledgedAt: at(now, 30), CompletedAt: at(now, 90), Version: 3},
		calls.Call{ID: "c2", BusinessID: "b", TableID: "t2", StaffID: "s1", Status: calls.StatusAcknowledged, CalledAt: now, AcknowledgedAt: at(now, 10), Version: 2},
		calls.Call{ID: "c3", BusinessID: "b", TableID: "t3", StaffID: "s2", Status: calls.StatusCancelled, CalledAt: now, CancelledAt: at(now, 5), Version: 2},
		calls.Call{ID: "c4", BusinessID: "b", TableID: "t3", StaffID: "s2", Status: calls.StatusCompleted, CalledAt: now, CompletedAt: at(now, 60), Version: 2},
		// outside the range
		calls.Call{ID: "c5", BusinessID: "b", TableID: "t1", StaffID: "s1", Status: calls.StatusPending, CalledAt: now.Add(-2 * time.Hour), Version: 1},
	)
	svc := NewService(repo)

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{BusinessID: "b", Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 4 || out.CompletedCalls != 2 || out.AcknowledgedCalls != 1 || out.CancelledCalls != 1 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if out.AverageResponseSeconds != 20 {
		t.Fatalf("expected average response 20s, got %v", out.AverageResponseSeconds)
	}
	if out.MaxResponseSeconds != 30 {
		t.Fatalf("expected max response 30s, got %v", out.MaxResponseSeconds)
	}
	if out.AverageTotalSeconds != 75 {
		t.Fatalf("expected average total 75s, got %v", out.AverageTotalSeconds)
	}
	if len(out.ByStaff) != 2 || out.ByStaff[0].StaffID != "s1" || out.ByStaff[0].Calls != 2 || out.ByStaff[1].CompletedCalls != 1 {
		t.Fatalf("unexpected staff breakdown: %+v", out.ByStaff)
	}
}

func TestReporting_StaffFilter(t *testing.T) {
	repo := calls.NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	seed(t, repo,
		calls.Call{ID: "c1", BusinessID: "b", TableID: "t1", StaffID: "s1", Status: calls.StatusPending, CalledAt: now, Version: 1},
		calls.Call{ID: "c2", BusinessID: "b", TableID: "t2", StaffID: "s2", Status: calls.StatusPending, CalledAt: now, Version: 1},
	)

	out, err := NewService(repo).CallsSummary(context.Background(), CallsSummaryRequest{
		BusinessID: "b", StaffID: "s2", Range: TimeRange{From: now.Add(-time.Minute), To: now.Add(time.Minute)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 1 || len(out.ByStaff) != 1 || out.ByStaff[0].StaffID != "s2" {
		t.Fatalf("unexpected summary: %+v", out)
	}
}

func TestReporting_InvalidRequests(t *testing.T) {
	svc := NewService(calls.NewMemoryRepo())
	now := time.Unix(1700000000, 0).UTC()

	for name, req := range map[string]CallsSummaryRequest{
		"no business":    {Range: TimeRange{From: now, To: now.Add(time.Hour)}},
		"empty range":    {BusinessID: "b", Range: TimeRange{From: now, To: now}},
		"reversed range": {BusinessID: "b", Range: TimeRange{From: now, To: now.Add(-time.Hour)}},
		"too wide":       {BusinessID: "b", Range: TimeRange{From: now, To: now.Add(400 * 24 * time.Hour)}},
	} {
		if _, err := svc.CallsSummary(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%s: expected ErrInvalidRequest, got %v", name, err)
		}
	}
}
