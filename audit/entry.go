package audit

import (
	"fmt"
	"strconv"
	"strings"

	"uscn.dev/protocol/protoerr"
)

// NullHash is the hash_reference placeholder for entries that carry no
// canonical-byte hash (spec.md §3, "Audit entry").
const NullHash = "NULL_HASH"

// MaxOperationLen and MaxContextLen are the byte caps spec.md §3
// places on the operation tag and context string.
const (
	MaxOperationLen = 64
	MaxContextLen   = 128
)

// Entry is one immutable audit log record (spec.md §3, §6).
type Entry struct {
	Timestamp  uint64
	Operation  string
	HashRef    string
	Context    string
	Compliance string
	Seq        uint32
	Checksum   uint32
}

// fieldsForChecksum is the subset of an entry's fields hashed to
// produce Checksum (spec.md §3: "checksum: hash over all prior
// fields"). prevChecksum folds the previous entry's checksum into this
// one, turning the log into a hash chain (spec.md's "tamper-evident
// audit trail", §1) so that reordering or truncating entries — not
// just editing one in place — is also detectable.
func fieldsForChecksum(e Entry, prevChecksum uint32) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|%s|%s|%s|%s|%d|%08x",
		e.Timestamp, e.Operation, e.HashRef, e.Context, e.Compliance, e.Seq, prevChecksum)
	return []byte(sb.String())
}

// encode renders e in the fixed-order pipe-delimited format spec.md §6
// defines: TIMESTAMP=<u64>|OPERATION=<tag>|HASH_REF=<hex-or-NULL_HASH>
// |CONTEXT=<str>|COMPLIANCE=<tag>|SEQ=<u32>|CHECKSUM=<8-hex>.
func encode(e Entry) string {
	return fmt.Sprintf("TIMESTAMP=%d|OPERATION=%s|HASH_REF=%s|CONTEXT=%s|COMPLIANCE=%s|SEQ=%d|CHECKSUM=%08x",
		e.Timestamp, e.Operation, e.HashRef, e.Context, e.Compliance, e.Seq, e.Checksum)
}

// decode parses one audit log line back into an Entry.
func decode(line string) (Entry, error) {
	parts := strings.Split(line, "|")
	if len(parts) != 7 {
		return Entry{}, protoerr.Newf(protoerr.ValidationFailed, protoerr.StageAudit,
			"malformed entry: expected 7 fields, got %d", len(parts))
	}
	vals := make(map[string]string, 7)
	for _, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return Entry{}, protoerr.Newf(protoerr.ValidationFailed, protoerr.StageAudit, "malformed field: %q", p)
		}
		vals[kv[0]] = kv[1]
	}

	ts, err := strconv.ParseUint(vals["TIMESTAMP"], 10, 64)
	if err != nil {
		return Entry{}, protoerr.Newf(protoerr.ValidationFailed, protoerr.StageAudit, "bad TIMESTAMP: %v", err)
	}
	seq, err := strconv.ParseUint(vals["SEQ"], 10, 32)
	if err != nil {
		return Entry{}, protoerr.Newf(protoerr.ValidationFailed, protoerr.StageAudit, "bad SEQ: %v", err)
	}
	checksum, err := strconv.ParseUint(vals["CHECKSUM"], 16, 32)
	if err != nil {
		return Entry{}, protoerr.Newf(protoerr.ValidationFailed, protoerr.StageAudit, "bad CHECKSUM: %v", err)
	}

	return Entry{
		Timestamp:  ts,
		Operation:  vals["OPERATION"],
		HashRef:    vals["HASH_REF"],
		Context:    vals["CONTEXT"],
		Compliance: vals["COMPLIANCE"],
		Seq:        uint32(seq),
		Checksum:   uint32(checksum),
	}, nil
}
