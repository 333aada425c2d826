package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"faceomatic/internal/jobs"
	"faceomatic/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "split", "ffmpeg", "segment failed", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"split", "ffmpeg", "segment failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestFailureStateMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want jobs.State
	}{
		{"download", services.Wrap(services.ErrTransient, "download", "get", "", errors.New("reset")), jobs.StateUnprocessed},
		{"timeout", services.Wrap(services.ErrTimeout, "download", "get", "", nil), jobs.StateUnprocessed},
		{"canceled", fmt.Errorf("download: %w", context.Canceled), jobs.StateUnprocessed},
		{"split", services.Wrap(services.ErrExternalTool, "split", "ffmpeg", "", nil), jobs.StateProcessing},
		{"probe", services.Wrap(services.ErrExternalTool, "probe", "ffprobe", "", nil), jobs.StateProcessing},
		{"malformed", services.Wrap(services.ErrValidation, "classify", "poll", "missing label_dict", nil), jobs.StateFailed},
		{"unknown", errors.New("mystery"), jobs.StateFailed},
	}
	for _, tc := range cases {
		if got := services.FailureState(tc.err); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}
