package task

import (
	"errors"
	"testing"
)

func TestParseStatusRoundTrip(t *testing.T) {
	for status, name := range statusNames {
		parsed, err := ParseStatus(name)
		if err != nil {
			t.Fatalf("parse %q: %v", name, err)
		}
		if parsed != status {
			t.Fatalf("expected %v, got %v", status, parsed)
		}
		if parsed.String() != name {
			t.Fatalf("expected name %q, got %q", name, parsed.String())
		}
	}
}

func TestParseStatusInvalid(t *testing.T) {
	_, err := ParseStatus("cached")
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		status   Status
		terminal bool
		cache    bool
	}{
		{StatusPending, false, false},
		{StatusInProgress, false, false},
		{StatusSuccess, true, false},
		{StatusFailure, true, false},
		{StatusSkipped, true, false},
		{StatusStopped, true, false},
		{StatusLocalCache, true, true},
		{StatusLocalCacheKeptExisting, true, true},
		{StatusRemoteCache, true, true},
	}
	for _, tc := range cases {
		if tc.status.IsTerminal() != tc.terminal {
			t.Fatalf("%v: expected terminal %v", tc.status, tc.terminal)
		}
		if tc.status.IsCache() != tc.cache {
			t.Fatalf("%v: expected cache %v", tc.status, tc.cache)
		}
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusLocalCache, true},
		{StatusInProgress, StatusSuccess, true},
		{StatusInProgress, StatusPending, false},
		{StatusSuccess, StatusFailure, false},
		{StatusRemoteCache, StatusInProgress, false},
		{StatusFailure, StatusFailure, false},
		{StatusPending, Status(99), false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Fatalf("%v -> %v: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestTargetString(t *testing.T) {
	if got := (Target{Project: "app", Target: "build"}).String(); got != "app:build" {
		t.Fatalf("unexpected target string %q", got)
	}
	if got := (Target{Project: "app", Target: "build", Configuration: "prod"}).String(); got != "app:build:prod" {
		t.Fatalf("unexpected target string %q", got)
	}
}
