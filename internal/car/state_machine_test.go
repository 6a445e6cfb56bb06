package car

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	if !CanTransition(StatusAvailable, StatusReserved) {
		t.Fatalf("expected AVAILABLE -> RESERVED allowed")
	}
	if !CanTransition(StatusReserved, StatusAvailable) {
		t.Fatalf("expected RESERVED -> AVAILABLE allowed")
	}
	if !CanTransition(StatusReserved, StatusSold) {
		t.Fatalf("expected RESERVED -> SOLD allowed")
	}
	// 幂等重申
	if !CanTransition(StatusReserved, StatusReserved) {
		t.Fatalf("expected RESERVED -> RESERVED allowed")
	}
	// 非法流转
	if CanTransition(StatusAvailable, StatusSold) {
		t.Fatalf("expected AVAILABLE -> SOLD not allowed")
	}
	if CanTransition(StatusSold, StatusAvailable) {
		t.Fatalf("expected SOLD terminal")
	}
	if CanTransition(StatusSold, StatusReserved) {
		t.Fatalf("expected SOLD terminal")
	}
}

func TestYearBounds(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	if !YearValid(1900, now) {
		t.Fatalf("expected 1900 accepted")
	}
	if !YearValid(2027, now) {
		t.Fatalf("expected current_year+1 accepted")
	}
	if YearValid(1899, now) {
		t.Fatalf("expected 1899 rejected")
	}
	if YearValid(2028, now) {
		t.Fatalf("expected current_year+2 rejected")
	}
}
