package order

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCancelled, false},
		{StatusCompleted, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		// 同状态视为合法（幂等重申）
		{StatusPending, StatusPending, true},
		{StatusCompleted, StatusCompleted, true},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestApplyTransitionStampsTimestamps(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	o := &Order{Status: StatusPending}
	if err := ApplyTransition(o, StatusConfirmed, now); err != nil {
		t.Fatalf("ApplyTransition to Confirmed: %v", err)
	}
	if o.Status != StatusConfirmed {
		t.Fatalf("status = %s, want %s", o.Status, StatusConfirmed)
	}
	if o.ConfirmedAt == nil || !o.ConfirmedAt.Equal(now) {
		t.Fatalf("ConfirmedAt = %v, want %v", o.ConfirmedAt, now)
	}

	later := now.Add(time.Hour)
	if err := ApplyTransition(o, StatusCompleted, later); err != nil {
		t.Fatalf("ApplyTransition to Completed: %v", err)
	}
	if o.CompletedAt == nil || !o.CompletedAt.Equal(later) {
		t.Fatalf("CompletedAt = %v, want %v", o.CompletedAt, later)
	}
	// 确认时间不被后续流转覆盖
	if !o.ConfirmedAt.Equal(now) {
		t.Fatalf("ConfirmedAt overwritten: %v", o.ConfirmedAt)
	}
}

func TestApplyTransitionRejectsIllegal(t *testing.T) {
	now := time.Now()

	o := &Order{Status: StatusPending}
	if err := ApplyTransition(o, StatusCompleted, now); err == nil {
		t.Fatal("expected error for Pending -> Completed")
	}
	if o.Status != StatusPending {
		t.Fatalf("status changed on rejected transition: %s", o.Status)
	}

	o = &Order{Status: StatusCancelled}
	if err := ApplyTransition(o, StatusConfirmed, now); err == nil {
		t.Fatal("expected error for Cancelled -> Confirmed")
	}
}
