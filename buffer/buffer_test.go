package buffer

import (
	"testing"

	"uscn.dev/protocol/hashing"
)

func TestNewRejectsBadMaxSize(t *testing.T) {
	cases := []struct {
		name    string
		maxSize int
	}{
		{"zero", 0},
		{"negative", -1},
		{"over_cap", MaxBufferSize + 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New([]byte("x"), tc.maxSize, SecurityNone); err == nil {
				t.Fatalf("expected error for max_size %d", tc.maxSize)
			}
		})
	}
}

func TestSetNormalizedEnforcesMaxSize(t *testing.T) {
	b, err := New([]byte("hello"), 4, SecurityNone)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.SetNormalized([]byte("hello")); err == nil {
		t.Fatalf("expected NORMALIZATION_FAILED when canonical exceeds max_size")
	}
	if b.Normalized() {
		t.Fatalf("normalized flag must not be set on failure")
	}
}

func TestCommitInvariants(t *testing.T) {
	b, err := New([]byte("hello"), 64, SecurityNone)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Commit(); err == nil {
		t.Fatalf("commit before normalize must fail")
	}
	if err := b.SetNormalized([]byte("hello")); err != nil {
		t.Fatalf("SetNormalized: %v", err)
	}
	b.SetCost(0.9, ZoneGovernance)
	if err := b.Commit(); err == nil {
		t.Fatalf("commit in GOVERNANCE zone must fail")
	}
	b.SetCost(0.1, ZoneAutonomous)
	if err := b.Commit(); err != nil {
		t.Fatalf("commit should succeed: %v", err)
	}
	if !b.Validated() {
		t.Fatalf("expected Validated() true")
	}
}

func TestPatternHashRoundTrip(t *testing.T) {
	b, err := New([]byte("{}"), 64, SecurityNone)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := b.PatternHash(); ok {
		t.Fatalf("expected no pattern hash before SetPatternHash")
	}
	h := hashing.PatternHash([]byte("{}"))
	b.SetPatternHash(h)
	got, ok := b.PatternHash()
	if !ok {
		t.Fatalf("expected pattern hash present")
	}
	if got != h {
		t.Fatalf("pattern hash mismatch")
	}
}
