package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	l, err := Init(path, "SOC2")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = l.Cleanup() })
	return l, path
}

func TestInitWritesInitEntry(t *testing.T) {
	_, path := newTestLog(t)
	entries, err := Verify(path)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(entries) != 1 || entries[0].Operation != OpInit {
		t.Fatalf("expected single AUDIT_INIT entry, got %+v", entries)
	}
	if entries[0].Seq != 1 {
		t.Fatalf("expected seq 1, got %d", entries[0].Seq)
	}
}

func TestSequenceNumbersStrictlyIncrease(t *testing.T) {
	l, path := newTestLog(t)
	for i := 0; i < 5; i++ {
		if _, err := l.Log(OpBufferValidate, "deadbeef"); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	entries, err := Verify(path)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Seq != entries[i-1].Seq+1 {
			t.Fatalf("sequence not strictly increasing at %d: %d -> %d", i, entries[i-1].Seq, entries[i].Seq)
		}
	}
}

func TestInitResumesSessionAfterCrash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")

	l, err := Init(path, "SOC2")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := l.Log(OpBufferValidate, "deadbeef"); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	wantSessionID, wantSeq := l.sessionID, l.seq

	// Simulate a crash: the file and session store are closed directly,
	// without going through Cleanup (so no AUDIT_CLEANUP entry and no
	// Verify-time rescan is available to the next Init).
	if err := l.file.Close(); err != nil {
		t.Fatalf("file.Close: %v", err)
	}
	if err := l.sessions.close(); err != nil {
		t.Fatalf("sessions.close: %v", err)
	}

	resumed, err := Init(path, "SOC2")
	if err != nil {
		t.Fatalf("Init (resume): %v", err)
	}
	t.Cleanup(func() { _ = resumed.Cleanup() })

	if resumed.sessionID != wantSessionID {
		t.Fatalf("expected resumed session id %q, got %q", wantSessionID, resumed.sessionID)
	}
	// Init's own AUDIT_INIT entry advances seq/checksum by one more step
	// past what was recorded before the simulated crash.
	entries, err := Verify(path)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	last := entries[len(entries)-1]
	if last.Seq != wantSeq+1 {
		t.Fatalf("expected resumed seq %d, got %d", wantSeq+1, last.Seq)
	}
	if last.Operation != OpInit {
		t.Fatalf("expected resumed entry to be AUDIT_INIT, got %q", last.Operation)
	}
	// Verify succeeding above already proves the checksum chain carried
	// correctly across the resume boundary (a stale checksum would have
	// produced a mismatch at this last entry).
}

func TestCleanupWritesCleanupEntryAndCloses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	l, err := Init(path, "SOC2")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := l.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	entries, err := Verify(path)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	last := entries[len(entries)-1]
	if last.Operation != OpCleanup {
		t.Fatalf("expected trailing AUDIT_CLEANUP entry, got %q", last.Operation)
	}
	if _, err := l.Log(OpBufferValidate, "deadbeef"); err == nil {
		t.Fatalf("expected error logging to a closed audit log")
	}
}

func TestVerifyDetectsTamperedEntry(t *testing.T) {
	// S6 (spec.md §8): flip one byte in any entry, Verify must fail.
	l, path := newTestLog(t)
	for i := 0; i < 3; i++ {
		if _, err := l.Log(OpBufferValidate, "deadbeef"); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	if err := l.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) < 3 {
		t.Fatalf("expected at least 3 entries, got %d", len(lines))
	}
	// Flip a character in the second entry's CONTEXT field.
	target := lines[1]
	tampered := strings.Replace(target, "_SEQ_2", "_SEQ_9", 1)
	if tampered == target {
		t.Fatalf("tamper substitution had no effect, test setup is wrong")
	}
	lines[1] = tampered

	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := Verify(path)
	if err == nil {
		t.Fatalf("expected Verify to detect tampering")
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 entry verified before the tampered one, got %d", len(entries))
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := Entry{
		Timestamp:  1700000000,
		Operation:  OpBufferValidate,
		HashRef:    "deadbeef",
		Context:    "session=abc seq=1",
		Compliance: "SOC2",
		Seq:        1,
		Checksum:   0xdeadbeef,
	}
	line := encode(e)
	got, err := decode(line)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != e {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, e)
	}
}

func TestOperationTagLengthEnforced(t *testing.T) {
	l, _ := newTestLog(t)
	tooLong := strings.Repeat("x", MaxOperationLen+1)
	if _, err := l.Log(tooLong, NullHash); err == nil {
		t.Fatalf("expected error for oversized operation tag")
	}
}
