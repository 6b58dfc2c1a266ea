// Package audit implements the append-only, checksum-protected audit
// trail every validation decision is required to produce (spec.md §3,
// §4.6). The wire format is the pipe-delimited line spec.md §6 fixes;
// the append/verify lifecycle and hash-chaining discipline are
// grounded on the audit logger pattern in the wider example pack (see
// the audit entry of DESIGN.md), adapted here to the fixed-field format and
// session model spec.md §4.6 requires.
package audit

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"uscn.dev/protocol/hashing"
	"uscn.dev/protocol/protoerr"
)

// Operation tags the core emits itself (spec.md §4.6, §8).
const (
	OpInit           = "AUDIT_INIT"
	OpCleanup        = "AUDIT_CLEANUP"
	OpBufferValidate = "BUFFER_VALIDATION"
	OpValidationFail = "VALIDATION_FAILED"
)

// Log is the process-wide, mutex-serialized audit log singleton
// (spec.md §3, "Ownership": "The audit log is a process-wide singleton
// with explicit init/cleanup"). Construct one with Init; do not copy
// after first use.
type Log struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	sessions   *sessionStore
	sessionID  string
	compliance string

	seq          uint32
	prevChecksum uint32
	closed       bool
}

// Init opens or creates the log file at path in append mode. If the
// session store already has state recorded for path (a prior process
// crashed or exited without reaching Cleanup), it resumes that
// session's id, sequence counter, and checksum chain instead of
// rescanning the text log; otherwise it mints a fresh session id from
// (now, hash(now)) and starts the sequence at zero (spec.md §4.6,
// "Session lifecycle"). Either way it writes an AUDIT_INIT entry.
func Init(path, compliance string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, protoerr.Newf(protoerr.AuditRequired, protoerr.StageAudit, "open audit log %q: %v", path, err)
	}

	sessions, err := openSessionStore(path + ".sessions.db")
	if err != nil {
		_ = f.Close()
		return nil, protoerr.Newf(protoerr.AuditRequired, protoerr.StageAudit, "open session store: %v", err)
	}

	rec, resumed, err := sessions.lookup(path)
	if err != nil {
		_ = f.Close()
		_ = sessions.close()
		return nil, protoerr.Newf(protoerr.AuditRequired, protoerr.StageAudit, "lookup session: %v", err)
	}

	l := &Log{
		file:       f,
		path:       path,
		sessions:   sessions,
		compliance: compliance,
	}
	if resumed {
		l.sessionID = rec.sessionID
		l.seq = rec.seq
		l.prevChecksum = rec.checksum
	} else {
		l.sessionID = newSessionID()
	}

	if _, err := l.log(OpInit, NullHash); err != nil {
		_ = f.Close()
		_ = sessions.close()
		return nil, err
	}
	return l, nil
}

// newSessionID derives a session id from the current instant and its
// own hash (spec.md §4.6: "generates a session id from (now,
// hash(now))").
func newSessionID() string {
	now := time.Now().UTC().UnixNano()
	seed := fmt.Sprintf("%d", now)
	ref := hashing.HexRef([]byte(seed))
	return fmt.Sprintf("%d-%s", now, ref[:16])
}

// Log appends a new entry for operation with the given hash reference
// (NullHash if none applies), returning the committed Entry.
func (l *Log) Log(operation, hashRef string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return Entry{}, protoerr.New(protoerr.AuditRequired, protoerr.StageAudit, "audit log already closed")
	}
	return l.log(operation, hashRef)
}

// log appends an entry without taking l.mu; callers must hold it. It
// persists the session's resumable state (sequence number and
// checksum) to the session store on every call, so a process that
// crashes between entries still lets the next Init resume from the
// last entry actually written instead of replaying stale state
// (spec.md §4.6; SPEC_FULL.md §B, bbolt).
func (l *Log) log(operation, hashRef string) (Entry, error) {
	if len(operation) > MaxOperationLen {
		return Entry{}, protoerr.Newf(protoerr.InvalidInput, protoerr.StageAudit,
			"operation tag %q exceeds %d bytes", operation, MaxOperationLen)
	}

	seq := l.seq + 1
	context := fmt.Sprintf("SESSION_%s_SEQ_%d", l.sessionID, seq)
	if len(context) > MaxContextLen {
		context = context[:MaxContextLen]
	}

	e := Entry{
		Timestamp:  uint64(time.Now().UTC().Unix()),
		Operation:  operation,
		HashRef:    hashRef,
		Context:    context,
		Compliance: l.compliance,
		Seq:        seq,
	}
	e.Checksum = hashing.Sum32(fieldsForChecksum(e, l.prevChecksum))

	line := encode(e) + "\n"
	if _, err := l.file.WriteString(line); err != nil {
		return Entry{}, protoerr.Newf(protoerr.AuditRequired, protoerr.StageAudit, "write audit entry: %v", err)
	}
	if err := l.file.Sync(); err != nil {
		return Entry{}, protoerr.Newf(protoerr.AuditRequired, protoerr.StageAudit, "flush audit entry: %v", err)
	}

	l.seq = seq
	l.prevChecksum = e.Checksum
	if err := l.sessions.record(l.path, sessionRecord{sessionID: l.sessionID, seq: l.seq, checksum: l.prevChecksum}); err != nil {
		return Entry{}, protoerr.Newf(protoerr.AuditRequired, protoerr.StageAudit, "record session: %v", err)
	}
	return e, nil
}

// Cleanup logs an AUDIT_CLEANUP entry (itself recording the final
// session state, via log) and flushes/closes the log file and its
// session store (spec.md §4.6).
func (l *Log) Cleanup() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	_, logErr := l.log(OpCleanup, NullHash)
	closeErr := l.file.Close()
	storeErr := l.sessions.close()
	l.closed = true
	switch {
	case logErr != nil:
		return logErr
	case closeErr != nil:
		return protoerr.Newf(protoerr.AuditRequired, protoerr.StageAudit, "close audit log: %v", closeErr)
	case storeErr != nil:
		return protoerr.Newf(protoerr.AuditRequired, protoerr.StageAudit, "close session store: %v", storeErr)
	default:
		return nil
	}
}

// Verify re-derives the hash chain for the log file at path and
// reports the first entry whose checksum does not match, identified
// by its 1-based line index (spec.md §8, scenario S6).
func Verify(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, protoerr.Newf(protoerr.AuditRequired, protoerr.StageAudit, "open audit log %q: %v", path, err)
	}
	defer f.Close()

	var entries []Entry
	var prevChecksum uint32
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	idx := 0
	for scanner.Scan() {
		idx++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		e, err := decode(line)
		if err != nil {
			return entries, protoerr.Newf(protoerr.ValidationFailed, protoerr.StageAudit, "entry %d: %v", idx, err)
		}
		want := hashing.Sum32(fieldsForChecksum(e, prevChecksum))
		if want != e.Checksum {
			return entries, protoerr.Newf(protoerr.ValidationFailed, protoerr.StageAudit,
				"entry %d (seq=%d): checksum mismatch, tampering detected", idx, e.Seq)
		}
		entries = append(entries, e)
		prevChecksum = e.Checksum
	}
	if err := scanner.Err(); err != nil {
		return entries, protoerr.Newf(protoerr.AuditRequired, protoerr.StageAudit, "scan audit log: %v", err)
	}
	return entries, nil
}
