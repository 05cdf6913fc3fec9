package utils

import "testing"

func TestNormalizeDefaults(t *testing.T) {
	got := Normalize(Raw{})
	if got.Changed || got.Failed || got.Msg != "" {
		t.Fatalf("empty raw should normalize to zero result, got %+v", got)
	}
}

func TestNormalizeMsgPreferredOverStderr(t *testing.T) {
	got := Normalize(Raw{Failed: true, Msg: "explicit", Stderr: "noise"})
	if got.Msg != "explicit" {
		t.Fatalf("msg should win over stderr, got %q", got.Msg)
	}
	if !got.Failed {
		t.Fatalf("failed flag must survive normalization")
	}
}

func TestNormalizeStderrFallback(t *testing.T) {
	got := Normalize(Raw{Failed: true, Stderr: "boom from stderr"})
	if got.Msg != "boom from stderr" {
		t.Fatalf("empty msg should fall back to stderr, got %q", got.Msg)
	}
}

func TestNormalizeKeepsChanged(t *testing.T) {
	got := Normalize(Raw{Changed: true})
	if !got.Changed || got.Failed {
		t.Fatalf("changed-only raw mishandled: %+v", got)
	}
}

func TestFailureHelper(t *testing.T) {
	got := Failure("dial tcp: timeout")
	if !got.Failed || got.Changed || got.Msg != "dial tcp: timeout" {
		t.Fatalf("unexpected failure result: %+v", got)
	}
}
