// Command uscn-trace replays the gated JSON fixtures uscn-fixtures
// emits through the real validation pipeline and records one JSONL
// trace entry per vector: gate, vector id, error code, outputs, and
// whether the outcome matched the fixture's expectation. It is the formal-trace
// counterpart for this engine (spec.md §8's conformance scenarios).
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"uscn.dev/protocol/audit"
	"uscn.dev/protocol/buffer"
	"uscn.dev/protocol/hashing"
	"uscn.dev/protocol/protoerr"
	"uscn.dev/protocol/schema"
	"uscn.dev/protocol/validate"
)

type traceHeader struct {
	Type               string `json:"type"`
	SchemaVersion      int    `json:"schema_version"`
	GeneratedAtUTC     string `json:"generated_at_utc"`
	FixturesDigestSHA3 string `json:"fixtures_digest_sha3_256"`
}

type traceEntry struct {
	Type     string         `json:"type"`
	Gate     string         `json:"gate"`
	VectorID string         `json:"vector_id"`
	Ok       bool           `json:"ok"`
	Matched  bool           `json:"matched_expectation"`
	Err      string         `json:"err"`
	Outputs  map[string]any `json:"outputs"`
}

type fixtureFile struct {
	Gate    string           `json:"gate"`
	Vectors []map[string]any `json:"vectors"`
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "uscn-trace: "+format+"\n", args...)
	os.Exit(2)
}

func writeJSON(buf *bytes.Buffer, v any) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fatalf("encode: %v", err)
	}
}

func listFixtureNames(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		fatalf("list %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if matched, _ := filepath.Match("S*.json", e.Name()); matched {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func digestFixtures(dir string, names []string) string {
	var all bytes.Buffer
	for _, name := range names {
		b, err := fs.ReadFile(os.DirFS(dir), name)
		if err != nil {
			fatalf("read %s: %v", name, err)
		}
		all.WriteString(name)
		all.WriteByte(0)
		all.Write(b)
		all.WriteByte(0)
	}
	return hashing.HexRef(all.Bytes())
}

func errCode(err error) string {
	if err == nil {
		return ""
	}
	if code, ok := protoerr.CodeOf(err); ok {
		return string(code)
	}
	return err.Error()
}

func main() {
	var fixturesDir, outPath string
	flag.StringVar(&fixturesDir, "fixtures-dir", "testdata/conformance", "path to conformance fixtures dir")
	flag.StringVar(&outPath, "out", "testdata/trace/go_trace_v1.jsonl", "output JSONL path")
	flag.Parse()

	names := listFixtureNames(fixturesDir)
	if len(names) == 0 {
		fatalf("no fixtures found in %s", fixturesDir)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		fatalf("mkdir: %v", err)
	}
	var out bytes.Buffer
	writeJSON(&out, traceHeader{
		Type:               "header",
		SchemaVersion:      1,
		GeneratedAtUTC:     time.Now().UTC().Format(time.RFC3339Nano),
		FixturesDigestSHA3: digestFixtures(fixturesDir, names),
	})

	for _, name := range names {
		b, err := fs.ReadFile(os.DirFS(fixturesDir), name)
		if err != nil {
			fatalf("read %s: %v", name, err)
		}
		var f fixtureFile
		if err := json.Unmarshal(b, &f); err != nil {
			fatalf("parse %s: %v", name, err)
		}
		for _, v := range f.Vectors {
			entry := replay(f.Gate, v)
			writeJSON(&out, entry)
		}
	}

	if err := os.WriteFile(outPath, out.Bytes(), 0o600); err != nil {
		fatalf("write %s: %v", outPath, err)
	}
	fmt.Fprintf(os.Stdout, "wrote trace to %s\n", outPath)
}

// replay dispatches a single vector to its gate-specific handler and
// always returns a traceEntry, even on a setup error (captured in Err).
func replay(gate string, v map[string]any) traceEntry {
	id, _ := v["id"].(string)
	switch gate {
	case "S1", "S2", "S3":
		return replayValidateVector(gate, id, v)
	case "S4":
		return replayOversizeVector(gate, id, v)
	case "S5":
		return replayConstructionVector(gate, id, v)
	case "S6":
		return replayTamperVector(gate, id, v)
	default:
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Ok: false, Err: "unknown gate"}
	}
}

func replayValidateVector(gate, id string, v map[string]any) traceEntry {
	schemaYAML, _ := v["schema_yaml"].(string)
	alpha, _ := v["alpha"].(float64)
	beta, _ := v["beta"].(float64)
	input, _ := v["input"].(string)

	dir, err := os.MkdirTemp("", "uscn-trace-*")
	if err != nil {
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: err.Error()}
	}
	defer os.RemoveAll(dir)

	s, err := schema.Parse([]byte(schemaYAML))
	if err != nil {
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: err.Error()}
	}
	logPath := filepath.Join(dir, "audit.log")
	log, err := audit.Init(logPath, s.Compliance)
	if err != nil {
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: err.Error()}
	}
	defer log.Cleanup()

	vr, err := validate.New(validate.Options{Alpha: alpha, Beta: beta, ZeroTrust: true, InlineNormalize: true}, s, log)
	if err != nil {
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: err.Error()}
	}

	b, err := buffer.New([]byte(input), buffer.MaxBufferSize, buffer.SecurityNone)
	if err != nil {
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: err.Error()}
	}
	valErr := vr.Validate(b)
	expectOk, _ := v["expect_ok"].(bool)
	outputs := map[string]any{
		"normalized": b.Normalized(),
		"validated":  b.Validated(),
	}
	if valErr == nil {
		outputs["zone"] = b.Zone().String()
		outputs["cost"] = b.CostValue()
		if ph, ok := b.PatternHash(); ok {
			outputs["pattern_hash"] = fmt.Sprintf("%x", ph[:])
		}
	}
	return traceEntry{
		Type:     "entry",
		Gate:     gate,
		VectorID: id,
		Ok:       valErr == nil,
		Matched:  (valErr == nil) == expectOk,
		Err:      errCode(valErr),
		Outputs:  outputs,
	}
}

func replayOversizeVector(gate, id string, v map[string]any) traceEntry {
	schemaYAML, _ := v["schema_yaml"].(string)
	alpha, _ := v["alpha"].(float64)
	beta, _ := v["beta"].(float64)
	length := int(v["input_length"].(float64))
	fill := byte('a')
	if s, ok := v["input_fill_byte"].(string); ok && len(s) == 1 {
		fill = s[0]
	}
	data := make([]byte, length)
	for i := range data {
		data[i] = fill
	}

	dir, err := os.MkdirTemp("", "uscn-trace-*")
	if err != nil {
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: err.Error()}
	}
	defer os.RemoveAll(dir)

	s, err := schema.Parse([]byte(schemaYAML))
	if err != nil {
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: err.Error()}
	}
	logPath := filepath.Join(dir, "audit.log")
	log, err := audit.Init(logPath, s.Compliance)
	if err != nil {
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: err.Error()}
	}
	defer log.Cleanup()

	vr, err := validate.New(validate.Options{Alpha: alpha, Beta: beta, ZeroTrust: true, InlineNormalize: true}, s, log)
	if err != nil {
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: err.Error()}
	}

	b, err := buffer.New(data, buffer.MaxBufferSize, buffer.SecurityNone)
	if err != nil {
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: err.Error()}
	}
	valErr := vr.Validate(b)
	expectOk, _ := v["expect_ok"].(bool)
	return traceEntry{
		Type:     "entry",
		Gate:     gate,
		VectorID: id,
		Ok:       valErr == nil,
		Matched:  (valErr == nil) == expectOk,
		Err:      errCode(valErr),
		Outputs:  map[string]any{"normalized": b.Normalized()},
	}
}

func replayConstructionVector(gate, id string, v map[string]any) traceEntry {
	schemaYAML, _ := v["schema_yaml"].(string)
	alpha, _ := v["alpha"].(float64)
	beta, _ := v["beta"].(float64)

	dir, err := os.MkdirTemp("", "uscn-trace-*")
	if err != nil {
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: err.Error()}
	}
	defer os.RemoveAll(dir)

	s, err := schema.Parse([]byte(schemaYAML))
	if err != nil {
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: err.Error()}
	}
	logPath := filepath.Join(dir, "audit.log")
	log, err := audit.Init(logPath, s.Compliance)
	if err != nil {
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: err.Error()}
	}
	defer log.Cleanup()

	_, ctorErr := validate.New(validate.Options{Alpha: alpha, Beta: beta, ZeroTrust: true, InlineNormalize: true}, s, log)
	expectOk, _ := v["expect_ok"].(bool)
	return traceEntry{
		Type:     "entry",
		Gate:     gate,
		VectorID: id,
		Ok:       ctorErr == nil,
		Matched:  (ctorErr == nil) == expectOk,
		Err:      errCode(ctorErr),
		Outputs:  map[string]any{},
	}
}

func replayTamperVector(gate, id string, v map[string]any) traceEntry {
	dir, err := os.MkdirTemp("", "uscn-trace-*")
	if err != nil {
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: err.Error()}
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "audit.log")

	log, err := audit.Init(path, "SOC2")
	if err != nil {
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: err.Error()}
	}
	ops, _ := v["operations"].([]any)
	for range ops {
		if _, err := log.Log(audit.OpBufferValidate, "deadbeef"); err != nil {
			return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: err.Error()}
		}
	}
	if err := log.Cleanup(); err != nil {
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: err.Error()}
	}

	idx := 2
	if f, ok := v["tamper_entry_index"].(float64); ok {
		idx = int(f)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: err.Error()}
	}
	lines := bytes.Split(bytes.TrimRight(raw, "\n"), []byte("\n"))
	// tamper_entry_index is 1-based, like the entry index Verify reports.
	if idx < 1 || idx > len(lines) {
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: "tamper_entry_index out of range"}
	}
	lines[idx-1] = tamperSeq(lines[idx-1])
	if err := os.WriteFile(path, bytes.Join(lines, []byte("\n")), 0o600); err != nil {
		return traceEntry{Type: "entry", Gate: gate, VectorID: id, Err: err.Error()}
	}

	entries, verr := audit.Verify(path)
	expectOk, _ := v["expect_ok"].(bool)
	expectCount := -1
	if f, ok := v["expect_entries_verified"].(float64); ok {
		expectCount = int(f)
	}
	matched := (verr == nil) == expectOk
	if expectCount >= 0 {
		matched = matched && len(entries) == expectCount
	}
	return traceEntry{
		Type:     "entry",
		Gate:     gate,
		VectorID: id,
		Ok:       verr == nil,
		Matched:  matched,
		Err:      errCode(verr),
		Outputs:  map[string]any{"entries_verified": len(entries)},
	}
}

// tamperSeq flips the sequence-number token the hash chain covers,
// reproducing the "flip one byte" scenario spec.md §8 S6 describes.
func tamperSeq(line []byte) []byte {
	marker := []byte("_SEQ_")
	idx := bytes.Index(line, marker)
	if idx < 0 {
		return append(append([]byte{}, line...), 'X')
	}
	pos := idx + len(marker)
	out := append([]byte{}, line...)
	if pos < len(out) {
		out[pos] = out[pos] + 1
	}
	return out
}
